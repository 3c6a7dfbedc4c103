package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
)

var _ EntitlementUseCase = (*entitlementUC)(nil)

type EntitlementUseCase interface {
	// ListActive sweeps lapsed codes of the device, then returns one entry
	// per course with the latest expiry, newest first.
	ListActive(ctx context.Context, deviceID string) ([]model.Entitlement, error)
}

type entitlementUC struct {
	codes repository.RedeemableCodeRepository
	log   *zerolog.Logger
	now   func() time.Time
}

func NewEntitlementUseCase(codes repository.RedeemableCodeRepository, logger *zerolog.Logger) *entitlementUC {
	return &entitlementUC{codes: codes, log: logger, now: time.Now}
}

func (uc *entitlementUC) SetClock(now func() time.Time) { uc.now = now }

func (uc *entitlementUC) ListActive(ctx context.Context, deviceID string) ([]model.Entitlement, error) {
	defer logging.TraceDuration(uc.log, "EntitlementUC.ListActive")()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, domain.ErrValidation
	}
	now := uc.now()

	swept, err := uc.codes.MarkExpired(ctx, repository.NoTX, deviceID, now)
	if err != nil {
		return nil, err
	}
	if swept > 0 {
		metrics.AddCodesExpired(swept)
	}

	active, err := uc.codes.ListActiveByDevice(ctx, repository.NoTX, deviceID, now)
	if err != nil {
		return nil, err
	}

	byCourse := make(map[string]int)
	out := make([]model.Entitlement, 0, len(active))
	for _, c := range active {
		if !c.GrantsAccess(deviceID, now) {
			continue
		}
		if i, ok := byCourse[c.Course]; ok {
			if c.ExpiresAt.After(out[i].ExpiresAt) {
				out[i].ExpiresAt = c.ExpiresAt
			}
			continue
		}
		byCourse[c.Course] = len(out)
		out = append(out, model.Entitlement{Course: c.Course, ExpiresAt: c.ExpiresAt})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.After(out[j].ExpiresAt) })
	return out, nil
}
