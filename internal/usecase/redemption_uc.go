package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
)

var _ RedemptionUseCase = (*redemptionUC)(nil)

type RedemptionUseCase interface {
	// Redeem binds code to deviceID. Every failure other than a device
	// mismatch is reported as domain.ErrInvalidCode.
	Redeem(ctx context.Context, code, deviceID string) (*model.Activation, error)
}

type redemptionUC struct {
	codes repository.RedeemableCodeRepository
	log   *zerolog.Logger
	dev   bool
	now   func() time.Time
}

func NewRedemptionUseCase(codes repository.RedeemableCodeRepository, logger *zerolog.Logger, dev bool) *redemptionUC {
	return &redemptionUC{codes: codes, log: logger, dev: dev, now: time.Now}
}

func (uc *redemptionUC) SetClock(now func() time.Time) { uc.now = now }

func (uc *redemptionUC) Redeem(ctx context.Context, code, deviceID string) (*model.Activation, error) {
	defer logging.TraceDuration(uc.log, "RedemptionUC.Redeem")()

	code, deviceID = strings.TrimSpace(code), strings.TrimSpace(deviceID)
	if code == "" || deviceID == "" {
		return nil, domain.ErrValidation
	}
	log := logging.With(ctx, uc.log)
	now := uc.now()

	c, err := uc.codes.FindByCode(ctx, repository.NoTX, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, uc.reject(ctx, log, "unknown", code, deviceID)
	}
	if err != nil {
		return nil, err
	}
	if c.BoundElsewhere(deviceID) {
		metrics.IncRedemption("device_mismatch")
		log.Warn().Str("code", logging.Redact(code, uc.dev)).Str("device", logging.Redact(deviceID, uc.dev)).Msg("code bound to another device")
		return nil, domain.ErrDeviceMismatch
	}
	if !c.IsRedeemable(now) {
		reason := "expired"
		if c.Used {
			reason = "used"
		}
		return nil, uc.reject(ctx, log, reason, code, deviceID)
	}

	ok, err := uc.codes.Redeem(ctx, repository.NoTX, code, deviceID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, uc.reject(ctx, log, "race", code, deviceID)
	}
	metrics.IncRedemption("ok")
	log.Info().Str("course", c.Course).Str("device", logging.Redact(deviceID, uc.dev)).Msg("code redeemed")
	return &model.Activation{Course: c.Course, ExpiresAt: c.ExpiresAt}, nil
}

// reject logs the concrete reason together with what the device already
// holds, and returns the uniform error the caller sees.
func (uc *redemptionUC) reject(ctx context.Context, log *zerolog.Logger, reason, code, deviceID string) error {
	metrics.IncRedemption(reason)
	ev := log.Warn().Str("reason", reason).Str("code", logging.Redact(code, uc.dev)).Str("device", logging.Redact(deviceID, uc.dev))
	held, err := uc.codes.ListByDevice(ctx, repository.NoTX, deviceID)
	if err != nil {
		ev = ev.AnErr("list_err", err)
	} else {
		arr := zerolog.Arr()
		for _, h := range held {
			arr = arr.Dict(zerolog.Dict().
				Str("code", logging.Redact(h.Code, uc.dev)).
				Str("course", h.Course).
				Bool("used", h.Used).
				Bool("expired", h.Expired).
				Time("expires_at", h.ExpiresAt))
		}
		ev = ev.Array("device_codes", arr)
	}
	ev.Msg("redemption rejected")
	return domain.ErrInvalidCode
}
