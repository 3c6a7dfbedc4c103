package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/adapter"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/i18n"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
)

// DateLayout is how expiry dates are shown to buyers.
const DateLayout = "02.01.2006"

// Callback data prefixes for the approver buttons.
const (
	ApprovePrefix = "approve:"
	RejectPrefix  = "reject:"
)

var _ RequestUseCase = (*requestUC)(nil)

// RequestUseCase drives a purchase from request to decision.
type RequestUseCase interface {
	CreateRequest(ctx context.Context, userID int64, displayName, courseKey string) (*model.PendingRequest, error)
	AttachProof(ctx context.Context, requestID string, userID int64, proofRef string) error
	Decide(ctx context.Context, requestID string, approver Actor, outcome model.Outcome) (*Decision, error)
	// PurgeStale removes abandoned requests last touched more than olderThan ago.
	PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Decision is the committed result of Decide. Code is nil for rejections.
type Decision struct {
	RequestID string
	UserID    int64
	Course    model.Course
	Outcome   model.Outcome
	Code      *model.RedeemableCode
}

type requestUC struct {
	requests       repository.PendingRequestRepository
	codes          repository.RedeemableCodeRepository
	users          UserUseCase
	issuance       IssuanceUseCase
	catalogue      *model.Catalogue
	policy         *ApproverPolicy
	bot            adapter.TelegramBotAdapter
	translator     *i18n.Translator
	activationSite string
	tm             repository.TransactionManager
	log            *zerolog.Logger
	now            func() time.Time
}

func NewRequestUseCase(
	requests repository.PendingRequestRepository,
	codes repository.RedeemableCodeRepository,
	users UserUseCase,
	issuance IssuanceUseCase,
	catalogue *model.Catalogue,
	policy *ApproverPolicy,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	activationSite string,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *requestUC {
	return &requestUC{
		requests:       requests,
		codes:          codes,
		users:          users,
		issuance:       issuance,
		catalogue:      catalogue,
		policy:         policy,
		bot:            bot,
		translator:     translator,
		activationSite: activationSite,
		tm:             tm,
		log:            logger,
		now:            time.Now,
	}
}

func (uc *requestUC) SetClock(now func() time.Time) { uc.now = now }

func (uc *requestUC) CreateRequest(ctx context.Context, userID int64, displayName, courseKey string) (*model.PendingRequest, error) {
	defer logging.TraceDuration(uc.log, "RequestUC.CreateRequest")()

	course, ok := uc.catalogue.Lookup(courseKey)
	if !ok {
		metrics.IncRequest("invalid")
		return nil, fmt.Errorf("unknown course %q: %w", courseKey, domain.ErrValidation)
	}
	now := uc.now()

	existing, err := uc.codes.FindValidForUser(ctx, repository.NoTX, userID, course.Name, now)
	switch {
	case err == nil:
		metrics.IncRequest("entitled")
		e := &domain.AlreadyEntitledError{Course: course.Name, ExpiresAt: existing.ExpiresAt}
		if !existing.Used {
			e.Code = existing.Code
		}
		return nil, e
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	latest, err := uc.requests.FindLatestByUser(ctx, repository.NoTX, userID)
	switch {
	case err == nil:
		if rem := latest.CooldownRemaining(now); rem > 0 {
			metrics.IncRequest("cooldown")
			return nil, &domain.CooldownError{Remaining: rem}
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	req, err := model.NewPendingRequest(userID, displayName, course.Key, now)
	if err != nil {
		return nil, err
	}
	if err := uc.requests.Create(ctx, repository.NoTX, req); err != nil {
		return nil, err
	}
	metrics.IncRequest("created")
	uc.log.Info().Str("request_id", req.ID).Int64("user_id", userID).Str("course", course.Key).Msg("payment request created")
	return req, nil
}

func (uc *requestUC) AttachProof(ctx context.Context, requestID string, userID int64, proofRef string) error {
	defer logging.TraceDuration(uc.log, "RequestUC.AttachProof")()

	if proofRef == "" {
		return domain.ErrValidation
	}
	req, err := uc.requests.FindByID(ctx, repository.NoTX, requestID)
	if err != nil {
		metrics.IncProof("not_found")
		return err
	}
	if req.UserID != userID || !req.IsPending() {
		metrics.IncProof("not_found")
		return domain.ErrNotFound
	}
	if req.HasProof() {
		metrics.IncProof("duplicate")
		return domain.ErrAlreadyAttached
	}
	ok, err := uc.requests.AttachProof(ctx, repository.NoTX, requestID, userID, proofRef)
	if err != nil {
		return err
	}
	if !ok {
		metrics.IncProof("duplicate")
		return domain.ErrAlreadyAttached
	}
	metrics.IncProof("attached")
	uc.notifyApprovers(ctx, req, proofRef)
	return nil
}

func (uc *requestUC) notifyApprovers(ctx context.Context, req *model.PendingRequest, proofRef string) {
	ids, err := uc.users.ApproverChatIDs(ctx)
	if err != nil {
		uc.log.Error().Err(err).Str("request_id", req.ID).Msg("failed to list approvers")
		return
	}
	courseName := req.CourseKey
	if c, ok := uc.catalogue.Lookup(req.CourseKey); ok {
		courseName = c.Name
	}
	caption := uc.translator.T("approver_new_request", courseName, req.DisplayName, req.UserID, req.ID)
	rows := [][]adapter.InlineButton{{
		{Text: uc.translator.T("btn_approve"), Data: ApprovePrefix + req.ID},
		{Text: uc.translator.T("btn_reject"), Data: RejectPrefix + req.ID},
	}}
	for _, id := range ids {
		if err := uc.bot.SendPhoto(ctx, id, proofRef, caption, rows); err != nil {
			uc.log.Warn().Err(err).Int64("approver_id", id).Str("request_id", req.ID).Msg("failed to notify approver")
		}
	}
}

func (uc *requestUC) Decide(ctx context.Context, requestID string, approver Actor, outcome model.Outcome) (*Decision, error) {
	defer logging.TraceDuration(uc.log, "RequestUC.Decide")()

	if !outcome.Valid() {
		return nil, domain.ErrValidation
	}
	if !uc.policy.Allows(approver) {
		metrics.IncDecision(string(outcome), "forbidden")
		return nil, domain.ErrForbidden
	}

	var decision *Decision
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		req, err := uc.requests.FindByID(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !req.IsPending() {
			return domain.ErrAlreadyDecided
		}
		course, ok := uc.catalogue.Lookup(req.CourseKey)
		if !ok {
			return fmt.Errorf("request %s references unknown course %q: %w", req.ID, req.CourseKey, domain.ErrValidation)
		}
		moved, err := uc.requests.TransitionStatus(ctx, tx, req.ID, model.RequestPending, outcome.Status())
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrAlreadyDecided
		}
		d := &Decision{RequestID: req.ID, UserID: req.UserID, Course: course, Outcome: outcome}
		if outcome == model.OutcomeApprove {
			code, err := uc.issuance.Issue(ctx, tx, req.UserID, req.DisplayName, course.Name)
			if err != nil {
				return err
			}
			d.Code = code
		}
		decision = d
		return nil
	})
	if err != nil {
		metrics.IncDecision(string(outcome), decisionResult(err))
		return nil, err
	}
	metrics.IncDecision(string(outcome), "ok")
	uc.log.Info().Str("request_id", requestID).Str("outcome", string(outcome)).Int64("approver_id", approver.TelegramID).Msg("request decided")

	uc.notifyBuyer(ctx, decision)
	// A failed delete leaves a decided row behind; PurgeStale removes it later.
	if err := uc.requests.Delete(ctx, repository.NoTX, requestID); err != nil {
		uc.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to delete decided request")
	}
	return decision, nil
}

func decisionResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyDecided):
		return "already_decided"
	default:
		return "error"
	}
}

func (uc *requestUC) notifyBuyer(ctx context.Context, d *Decision) {
	var text string
	if d.Code != nil {
		text = uc.translator.T("buyer_approved", d.Course.Name, d.Code.Code, d.Code.ExpiresAt.Format(DateLayout), uc.activationSite)
	} else {
		text = uc.translator.T("buyer_rejected")
	}
	if err := uc.bot.SendMessage(ctx, d.UserID, text); err != nil {
		uc.log.Warn().Err(err).Int64("user_id", d.UserID).Str("request_id", d.RequestID).Msg("failed to notify buyer")
	}
}

func (uc *requestUC) PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	defer logging.TraceDuration(uc.log, "RequestUC.PurgeStale")()

	n, err := uc.requests.DeleteStale(ctx, repository.NoTX, uc.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddRequestsPurged(n)
		uc.log.Info().Int64("purged", n).Msg("stale requests removed")
	}
	return n, nil
}
