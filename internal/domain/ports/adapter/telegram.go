package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// TelegramBotAdapter is the outbound side of the bot used by use cases.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
	// SendPhoto re-sends a previously uploaded photo by its file reference.
	SendPhoto(ctx context.Context, telegramID int64, fileRef, caption string, rows [][]InlineButton) error
}
