package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": r.handleStartCommand,
		"menu":  r.handleStartCommand,
		"admin": r.handleAdminCommand,
	}
}

// handleStartCommand registers the user and shows the course menu.
func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	rep, err := r.facade.HandleStart(ctx, senderOf(message.From))
	if sendErr := r.sendReply(ctx, message.Chat.ID, rep); sendErr != nil && err == nil {
		err = sendErr
	}
	return err
}

func (r *RealTelegramBotAdapter) handleAdminCommand(ctx context.Context, message *tgbotapi.Message) error {
	rep, err := r.facade.HandleAdminPanel(ctx, senderOf(message.From))
	if sendErr := r.sendReply(ctx, message.Chat.ID, rep); sendErr != nil && err == nil {
		err = sendErr
	}
	return err
}
