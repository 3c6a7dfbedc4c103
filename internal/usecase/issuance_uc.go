package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
)

const maxIssueAttempts = 3

var errTokenCollisions = errors.New("token collisions exhausted")

var _ IssuanceUseCase = (*issuanceUC)(nil)

// IssuanceUseCase is the only path that creates redeemable codes.
type IssuanceUseCase interface {
	// Issue creates a fresh code inside tx so it commits or rolls back with
	// the decision that triggered it.
	Issue(ctx context.Context, tx repository.Tx, userID int64, displayName, course string) (*model.RedeemableCode, error)
}

type issuanceUC struct {
	codes    repository.RedeemableCodeRepository
	log      *zerolog.Logger
	now      func() time.Time
	newToken func() string
}

func NewIssuanceUseCase(codes repository.RedeemableCodeRepository, logger *zerolog.Logger) *issuanceUC {
	return &issuanceUC{
		codes:    codes,
		log:      logger,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

func (uc *issuanceUC) SetClock(now func() time.Time) { uc.now = now }

// SetTokenSource replaces the uuid generator.
func (uc *issuanceUC) SetTokenSource(gen func() string) { uc.newToken = gen }

func (uc *issuanceUC) Issue(ctx context.Context, tx repository.Tx, userID int64, displayName, course string) (*model.RedeemableCode, error) {
	defer logging.TraceDuration(uc.log, "IssuanceUC.Issue")()

	if userID <= 0 || course == "" {
		return nil, domain.ErrValidation
	}
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		code := model.NewRedeemableCode(uc.newToken(), userID, displayName, course, uc.now())
		ok, err := uc.codes.Create(ctx, tx, code)
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.IncCodeIssued(course)
			uc.log.Info().Int64("user_id", userID).Str("course", course).Time("expires_at", code.ExpiresAt).Msg("code issued")
			return code, nil
		}
		metrics.IncCodeCollision()
		uc.log.Warn().Int("attempt", attempt).Msg("code token collision")
	}
	return nil, domain.StoreError("issue code", errTokenCollisions)
}
