package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"course-access-bot/internal/application"
	"course-access-bot/internal/infra/metrics"
	"course-access-bot/internal/usecase"
)

// cbHandler may set *answer to show a toast to the user who pressed the button.
type cbHandler func(ctx context.Context, query *tgbotapi.CallbackQuery, answer *string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		application.CBAdminPanel:     r.adminOnly(r.adminPanelCBRoute),
		application.CBAdminBroadcast: r.adminOnly(r.broadcastCBRoute),
		application.CBSupport:        r.supportCBRoute,
		application.CBSupportExit:    r.supportExitCBRoute,
	}
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: application.CoursePrefix, Fn: r.coursePrefixCBRoute},
		{Prefix: usecase.ApprovePrefix, Fn: r.adminOnly(r.decisionPrefixCBRoute)},
		{Prefix: usecase.RejectPrefix, Fn: r.adminOnly(r.decisionPrefixCBRoute)},
	}
}

// adminOnly rejects callbacks from anyone outside the approver policy.
func (r *RealTelegramBotAdapter) adminOnly(next cbHandler) cbHandler {
	return func(ctx context.Context, query *tgbotapi.CallbackQuery, answer *string) error {
		name := callbackName(query.Data)
		if !r.facade.IsApprover(senderOf(query.From)) {
			metrics.IncAdminCommand(name, "unauthorized")
			*answer = r.translator.T("admin_only")
			return nil
		}
		metrics.IncAdminCommand(name, "authorized")
		return next(ctx, query, answer)
	}
}

func (r *RealTelegramBotAdapter) reply(ctx context.Context, query *tgbotapi.CallbackQuery, rep application.Reply, err error) error {
	if sendErr := r.sendReply(ctx, chatOf(query), rep); sendErr != nil && err == nil {
		err = sendErr
	}
	return err
}

func (r *RealTelegramBotAdapter) coursePrefixCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, _ *string) error {
	key := strings.TrimPrefix(query.Data, application.CoursePrefix)
	rep, err := r.facade.HandleCourseSelected(ctx, senderOf(query.From), key)
	return r.reply(ctx, query, rep, err)
}

// decisionPrefixCBRoute applies approve:/reject: and stamps the outcome onto
// the approver's notification so the buttons cannot be pressed twice.
func (r *RealTelegramBotAdapter) decisionPrefixCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, answer *string) error {
	status, err := r.facade.HandleDecision(ctx, senderOf(query.From), query.Data)
	*answer = status
	if err != nil || query.Message == nil || query.Message.Chat == nil {
		return err
	}
	caption := query.Message.Caption
	if caption == "" {
		caption = query.Message.Text
	}
	edit := tgbotapi.NewEditMessageCaption(query.Message.Chat.ID, query.Message.MessageID, caption+"\n\n"+status)
	if _, editErr := r.bot.Request(edit); editErr != nil {
		r.log.Warn().Err(editErr).Int("message_id", query.Message.MessageID).Msg("failed to stamp decision on approver message")
	}
	return nil
}

func (r *RealTelegramBotAdapter) adminPanelCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, _ *string) error {
	rep, err := r.facade.HandleAdminPanel(ctx, senderOf(query.From))
	return r.reply(ctx, query, rep, err)
}

func (r *RealTelegramBotAdapter) broadcastCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, _ *string) error {
	rep, err := r.facade.HandleBroadcastStart(ctx, senderOf(query.From))
	return r.reply(ctx, query, rep, err)
}

func (r *RealTelegramBotAdapter) supportCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, _ *string) error {
	rep, err := r.facade.HandleSupportStart(ctx, senderOf(query.From))
	return r.reply(ctx, query, rep, err)
}

func (r *RealTelegramBotAdapter) supportExitCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, _ *string) error {
	rep, err := r.facade.HandleSupportExit(ctx, senderOf(query.From))
	return r.reply(ctx, query, rep, err)
}
