package application

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/adapter"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/i18n"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
	"course-access-bot/internal/usecase"
)

// Callback data understood by the bot.
const (
	CoursePrefix      = "course:"
	CBAdminPanel      = "admin:panel"
	CBAdminBroadcast  = "admin:broadcast"
	CBSupport         = "support"
	CBSupportExit     = "support:exit"
	requestIDStateKey = "request_id"
)

// Sender is the Telegram user behind an update.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
}

func (s Sender) actor() usecase.Actor { return usecase.Actor{TelegramID: s.ID, Username: s.Username} }

func (s Sender) displayName() string { return model.DisplayName(s.ID, s.Username, s.FirstName) }

// Reply is what the adapter sends back to the chat.
type Reply struct {
	Text string
	Rows [][]adapter.InlineButton
}

// BotFacade composes usecases into high-level bot interactions.
// Methods return ready-to-send replies so the Telegram adapter just forwards them.
type BotFacade struct {
	UserUC      UserUseCaseIface
	RequestUC   RequestUseCaseIface
	BroadcastUC BroadcastUseCaseIface
	StatsUC     StatsUseCaseIface

	states         repository.StateRepository
	bot            adapter.TelegramBotAdapter
	catalogue      *model.Catalogue
	policy         *usecase.ApproverPolicy
	translator     *i18n.Translator
	paymentInfo    string
	activationSite string
	log            *zerolog.Logger
}

func NewBotFacade(
	userUC UserUseCaseIface,
	requestUC RequestUseCaseIface,
	broadcastUC BroadcastUseCaseIface,
	statsUC StatsUseCaseIface,
	states repository.StateRepository,
	bot adapter.TelegramBotAdapter,
	catalogue *model.Catalogue,
	policy *usecase.ApproverPolicy,
	translator *i18n.Translator,
	paymentInfo, activationSite string,
	logger *zerolog.Logger,
) *BotFacade {
	return &BotFacade{
		UserUC:         userUC,
		RequestUC:      requestUC,
		BroadcastUC:    broadcastUC,
		StatsUC:        statsUC,
		states:         states,
		bot:            bot,
		catalogue:      catalogue,
		policy:         policy,
		translator:     translator,
		paymentInfo:    paymentInfo,
		activationSite: activationSite,
		log:            logger,
	}
}

// IsApprover reports whether s may use the admin surface.
func (b *BotFacade) IsApprover(s Sender) bool { return b.policy.Allows(s.actor()) }

func (b *BotFacade) text(key string, args ...interface{}) Reply {
	return Reply{Text: b.translator.T(key, args...)}
}

func (b *BotFacade) failure(ctx context.Context, op string, err error) (Reply, error) {
	logging.With(ctx, b.log).Error().Err(err).Str("op", op).Msg("bot interaction failed")
	return b.text("generic_error"), err
}

// HandleStart registers the user, resets the conversation and shows the catalogue.
func (b *BotFacade) HandleStart(ctx context.Context, s Sender) (Reply, error) {
	defer logging.TraceDuration(b.log, "BotFacade.HandleStart")()

	u, err := b.UserUC.RegisterOrFetch(ctx, s.ID, s.Username, s.FirstName)
	if err != nil {
		return b.failure(ctx, "start", err)
	}
	if err := b.states.ClearState(ctx, s.ID); err != nil {
		b.log.Warn().Err(err).Int64("tg_id", s.ID).Msg("failed to clear conversation state")
	}

	name := u.FirstName
	if name == "" {
		name = u.DisplayName()
	}
	rows := make([][]adapter.InlineButton, 0, len(b.catalogue.All())+2)
	for _, c := range b.catalogue.All() {
		rows = append(rows, []adapter.InlineButton{{Text: b.translator.T("btn_course", c.Name, c.Price), Data: CoursePrefix + c.Key}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: b.translator.T("btn_support"), Data: CBSupport}})
	if u.IsApprover || b.IsApprover(s) {
		rows = append(rows, []adapter.InlineButton{{Text: b.translator.T("btn_admin_panel"), Data: CBAdminPanel}})
	}
	return Reply{Text: b.translator.T("welcome", name), Rows: rows}, nil
}

// HandleCourseSelected opens a payment request and shows the payment details.
func (b *BotFacade) HandleCourseSelected(ctx context.Context, s Sender, courseKey string) (Reply, error) {
	defer logging.TraceDuration(b.log, "BotFacade.HandleCourseSelected")()

	if _, err := b.UserUC.RegisterOrFetch(ctx, s.ID, s.Username, s.FirstName); err != nil {
		return b.failure(ctx, "course", err)
	}
	req, err := b.RequestUC.CreateRequest(ctx, s.ID, s.displayName(), courseKey)
	if err != nil {
		var (
			ent *domain.AlreadyEntitledError
			cd  *domain.CooldownError
		)
		switch {
		case errors.As(err, &ent):
			until := ent.ExpiresAt.Format(usecase.DateLayout)
			if ent.Code == "" {
				return b.text("already_entitled_redeemed", ent.Course, until), nil
			}
			return b.text("already_entitled", ent.Course, ent.Code, until, b.activationSite), nil
		case errors.As(err, &cd):
			return b.text("cooldown", cd.MinutesLeft()), nil
		case errors.Is(err, domain.ErrValidation):
			return b.text("course_unknown"), nil
		default:
			return b.failure(ctx, "course", err)
		}
	}

	course, _ := b.catalogue.Lookup(req.CourseKey)
	state := &repository.ConversationState{
		Step: repository.StepAwaitingProof,
		Data: map[string]string{requestIDStateKey: req.ID},
	}
	if err := b.states.SetState(ctx, s.ID, state); err != nil {
		b.log.Warn().Err(err).Int64("tg_id", s.ID).Msg("failed to store conversation state")
	}
	payment := strings.ReplaceAll(b.paymentInfo, "{price}", strconv.Itoa(course.Price))
	return b.text("course_card", course.Name, course.Description, course.Price, payment), nil
}

// HandlePhoto attaches a payment screenshot to the request the user is paying for.
func (b *BotFacade) HandlePhoto(ctx context.Context, s Sender, fileID string) (Reply, error) {
	defer logging.TraceDuration(b.log, "BotFacade.HandlePhoto")()

	state, err := b.states.GetState(ctx, s.ID)
	if err != nil {
		return b.failure(ctx, "photo", err)
	}
	if state == nil || state.Step != repository.StepAwaitingProof || state.Data[requestIDStateKey] == "" {
		return b.text("proof_no_request"), nil
	}

	err = b.RequestUC.AttachProof(ctx, state.Data[requestIDStateKey], s.ID, fileID)
	switch {
	case err == nil:
		b.clearState(ctx, s.ID)
		return b.text("proof_received"), nil
	case errors.Is(err, domain.ErrAlreadyAttached):
		b.clearState(ctx, s.ID)
		return b.text("proof_already_attached"), nil
	case errors.Is(err, domain.ErrNotFound):
		b.clearState(ctx, s.ID)
		return b.text("proof_not_found"), nil
	default:
		return b.failure(ctx, "photo", err)
	}
}

// HandleDecision applies an approve:/reject: callback and returns the short
// status shown to the approver.
func (b *BotFacade) HandleDecision(ctx context.Context, s Sender, data string) (string, error) {
	defer logging.TraceDuration(b.log, "BotFacade.HandleDecision")()

	var (
		outcome model.Outcome
		id      string
	)
	switch {
	case strings.HasPrefix(data, usecase.ApprovePrefix):
		outcome, id = model.OutcomeApprove, strings.TrimPrefix(data, usecase.ApprovePrefix)
	case strings.HasPrefix(data, usecase.RejectPrefix):
		outcome, id = model.OutcomeReject, strings.TrimPrefix(data, usecase.RejectPrefix)
	default:
		return b.translator.T("decision_done"), domain.ErrValidation
	}

	_, err := b.RequestUC.Decide(ctx, id, s.actor(), outcome)
	switch {
	case err == nil && outcome == model.OutcomeApprove:
		return b.translator.T("decision_approved"), nil
	case err == nil:
		return b.translator.T("decision_rejected"), nil
	case errors.Is(err, domain.ErrForbidden):
		return b.translator.T("admin_only"), nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAlreadyDecided):
		return b.translator.T("decision_done"), nil
	default:
		logging.With(ctx, b.log).Error().Err(err).Str("request_id", id).Msg("decision failed")
		return b.translator.T("generic_error"), err
	}
}

// HandleAdminPanel shows counters and admin actions to approvers.
func (b *BotFacade) HandleAdminPanel(ctx context.Context, s Sender) (Reply, error) {
	if !b.IsApprover(s) {
		return b.text("admin_only"), nil
	}
	st, err := b.StatsUC.Snapshot(ctx)
	if err != nil {
		return b.failure(ctx, "admin panel", err)
	}
	r := b.text("admin_panel", st.Users, st.PendingRequests, st.CodesIssued, st.CodesUsed)
	r.Rows = [][]adapter.InlineButton{{{Text: b.translator.T("btn_broadcast"), Data: CBAdminBroadcast}}}
	return r, nil
}

// HandleBroadcastStart puts an approver into broadcast mode.
func (b *BotFacade) HandleBroadcastStart(ctx context.Context, s Sender) (Reply, error) {
	if !b.IsApprover(s) {
		return b.text("admin_only"), nil
	}
	if err := b.states.SetState(ctx, s.ID, &repository.ConversationState{Step: repository.StepAwaitingBroadcast}); err != nil {
		return b.failure(ctx, "broadcast start", err)
	}
	return b.text("broadcast_prompt"), nil
}

// HandleSupportStart puts the user into support mode.
func (b *BotFacade) HandleSupportStart(ctx context.Context, s Sender) (Reply, error) {
	if err := b.states.SetState(ctx, s.ID, &repository.ConversationState{Step: repository.StepSupport}); err != nil {
		return b.failure(ctx, "support start", err)
	}
	r := b.text("support_prompt")
	r.Rows = b.exitSupportRows()
	return r, nil
}

func (b *BotFacade) HandleSupportExit(ctx context.Context, s Sender) (Reply, error) {
	b.clearState(ctx, s.ID)
	return b.text("support_exit"), nil
}

// HandleText routes free text according to the conversation step.
func (b *BotFacade) HandleText(ctx context.Context, s Sender, text string) (Reply, error) {
	defer logging.TraceDuration(b.log, "BotFacade.HandleText")()

	state, err := b.states.GetState(ctx, s.ID)
	if err != nil {
		return b.failure(ctx, "text", err)
	}
	if state == nil {
		return b.text("fallback"), nil
	}
	switch state.Step {
	case repository.StepAwaitingBroadcast:
		if !b.IsApprover(s) {
			b.clearState(ctx, s.ID)
			return b.text("fallback"), nil
		}
		return b.broadcast(ctx, s, text)
	case repository.StepSupport:
		return b.relaySupport(ctx, s, text)
	default:
		return b.text("fallback"), nil
	}
}

func (b *BotFacade) broadcast(ctx context.Context, s Sender, text string) (Reply, error) {
	n, err := b.BroadcastUC.Broadcast(ctx, text)
	switch {
	case errors.Is(err, domain.ErrLockNotAcquired):
		return b.text("broadcast_busy"), nil
	case errors.Is(err, domain.ErrValidation):
		return b.text("broadcast_prompt"), nil
	case err != nil:
		return b.failure(ctx, "broadcast", err)
	}
	b.clearState(ctx, s.ID)
	metrics.IncAdminCommand("broadcast", "ok")
	return b.text("broadcast_done", n), nil
}

func (b *BotFacade) relaySupport(ctx context.Context, s Sender, text string) (Reply, error) {
	ids, err := b.UserUC.ApproverChatIDs(ctx)
	if err != nil {
		return b.failure(ctx, "support", err)
	}
	msg := b.translator.T("support_relay", s.displayName(), s.ID, text)
	for _, id := range ids {
		if err := b.bot.SendMessage(ctx, id, msg); err != nil {
			b.log.Warn().Err(err).Int64("approver_id", id).Msg("failed to relay support message")
		}
	}
	metrics.IncSupportMessage()
	r := b.text("support_sent")
	r.Rows = b.exitSupportRows()
	return r, nil
}

func (b *BotFacade) exitSupportRows() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{{{Text: b.translator.T("btn_exit_support"), Data: CBSupportExit}}}
}

func (b *BotFacade) clearState(ctx context.Context, tgID int64) {
	if err := b.states.ClearState(ctx, tgID); err != nil {
		b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("failed to clear conversation state")
	}
}
