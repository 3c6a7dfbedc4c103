package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
)

const (
	DefaultExtendDays = 30
	MaxExtendDays     = 365
)

var _ CodeAdminUseCase = (*codeAdminUC)(nil)

// CodeAdminUseCase backs the operational /promo endpoints.
type CodeAdminUseCase interface {
	Lookup(ctx context.Context, code string) (*model.RedeemableCode, error)
	// Extend pushes the expiry of code by days (DefaultExtendDays when 0)
	// counted from its current expiry, and clears the expired flag.
	Extend(ctx context.Context, code string, days int) (*model.RedeemableCode, error)
}

type codeAdminUC struct {
	codes repository.RedeemableCodeRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewCodeAdminUseCase(codes repository.RedeemableCodeRepository, tm repository.TransactionManager, logger *zerolog.Logger) *codeAdminUC {
	return &codeAdminUC{codes: codes, tm: tm, log: logger}
}

func (uc *codeAdminUC) Lookup(ctx context.Context, code string) (*model.RedeemableCode, error) {
	defer logging.TraceDuration(uc.log, "CodeAdminUC.Lookup")()
	if code == "" {
		return nil, domain.ErrValidation
	}
	return uc.codes.FindByCode(ctx, repository.NoTX, code)
}

func (uc *codeAdminUC) Extend(ctx context.Context, code string, days int) (*model.RedeemableCode, error) {
	defer logging.TraceDuration(uc.log, "CodeAdminUC.Extend")()

	if days == 0 {
		days = DefaultExtendDays
	}
	if code == "" || days < 1 || days > MaxExtendDays {
		return nil, fmt.Errorf("extend by %d days: %w", days, domain.ErrValidation)
	}

	var out *model.RedeemableCode
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		c, err := uc.codes.FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		expiresAt := c.ExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
		ok, err := uc.codes.Extend(ctx, tx, code, expiresAt)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		c.ExpiresAt = expiresAt
		c.Expired = false
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncCodeExtended()
	uc.log.Info().Str("course", out.Course).Int("days", days).Time("expires_at", out.ExpiresAt).Msg("code extended")
	return out, nil
}
