package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"course-access-bot/internal/application"
	"course-access-bot/internal/config"
	"course-access-bot/internal/domain/ports/adapter"
	"course-access-bot/internal/infra/i18n"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
	red "course-access-bot/internal/infra/redis"
	"course-access-bot/internal/usecase"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// RealTelegramBotAdapter uses tgbotapi to poll updates and delegates to BotFacade.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	facade      *application.BotFacade
	rateLimiter *red.RateLimiter
	translator  *i18n.Translator
	log         *zerolog.Logger

	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, rateLimiter *red.RateLimiter, translator *i18n.Translator, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if translator == nil {
		return nil, errors.New("translator is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		rateLimiter:   rateLimiter,
		translator:    translator,
		log:           logger,
		updateWorkers: workers,
	}, nil
}

// SetFacade must be called before StartPolling. The facade needs the adapter
// to notify approvers, so the two are wired in two steps.
func (r *RealTelegramBotAdapter) SetFacade(f *application.BotFacade) { r.facade = f }

func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.facade == nil {
		return errors.New("bot facade is nil")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case up, ok := <-updateChan:
					if !ok {
						return
					}
					r.dispatch(ctx, workerID, up)
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	r.log.Info().Str("bot", r.bot.Self.UserName).Int("workers", r.updateWorkers).Msg("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			r.log.Info().Msg("telegram polling stopped")
			return nil
		case up := <-updates:
			select {
			case updateChan <- up:
			case <-ctx.Done():
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// dispatch handles one update, isolating panics to the update that caused them.
func (r *RealTelegramBotAdapter) dispatch(ctx context.Context, workerID int, up tgbotapi.Update) {
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Int("worker", workerID).Msg("panic while handling update")
		}
	}()
	if err := r.handleUpdate(ctx, up); err != nil {
		logging.With(ctx, r.log).Error().Err(err).Int("worker", workerID).Int("update_id", up.UpdateID).Msg("error handling update")
	}
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendButtons sends a message with inline buttons.
func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if kb := buildKeyboard(rows); kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := r.bot.Send(msg)
	return err
}

// SendPhoto re-sends an already uploaded photo by its Telegram file id.
func (r *RealTelegramBotAdapter) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileRef))
	photo.Caption = caption
	if kb := buildKeyboard(rows); kb != nil {
		photo.ReplyMarkup = *kb
	}
	_, err := r.bot.Send(photo)
	return err
}

func (r *RealTelegramBotAdapter) sendReply(ctx context.Context, chatID int64, rep application.Reply) error {
	if len(rep.Rows) == 0 {
		return r.SendMessage(ctx, chatID, rep.Text)
	}
	return r.SendButtons(ctx, chatID, rep.Text, rep.Rows)
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return nil
	}
	// Only private chats drive the purchase flow.
	if !message.Chat.IsPrivate() {
		return nil
	}
	ctx = logging.WithTgID(ctx, message.From.ID)

	command := "message"
	switch {
	case message.IsCommand():
		command = message.Command()
	case len(message.Photo) > 0:
		command = "photo"
	}
	if !r.allow(ctx, message.From.ID, command) {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("rate_limited"))
	}

	switch {
	case message.IsCommand():
		metrics.IncTelegramCommand(command)
		if fn, ok := r.commandRoutes()[command]; ok {
			return fn(ctx, message)
		}
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("fallback"))
	case len(message.Photo) > 0:
		metrics.IncTelegramCommand("photo")
		rep, err := r.facade.HandlePhoto(ctx, senderOf(message.From), largestPhoto(message.Photo))
		if sendErr := r.sendReply(ctx, message.Chat.ID, rep); sendErr != nil && err == nil {
			err = sendErr
		}
		return err
	case strings.TrimSpace(message.Text) != "":
		rep, err := r.facade.HandleText(ctx, senderOf(message.From), message.Text)
		if sendErr := r.sendReply(ctx, message.Chat.ID, rep); sendErr != nil && err == nil {
			err = sendErr
		}
		return err
	default:
		return nil
	}
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}
	ctx = logging.WithTgID(ctx, query.From.ID)

	// answer is shown as a toast; empty just stops the spinner.
	answer := ""
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, answer)) }()

	chatID := chatOf(query)
	if chatID == 0 {
		return nil
	}

	data := strings.TrimSpace(query.Data)
	if !r.allow(ctx, query.From.ID, "cb:"+callbackName(data)) {
		answer = r.translator.T("rate_limited")
		return nil
	}
	metrics.IncTelegramCommand("cb:" + callbackName(data))

	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, query, &answer)
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, query, &answer)
		}
	}
	return errors.New("unknown callback data")
}

// allow applies the per-user fixed window. Limiter failures fail open.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, command string) bool {
	if r.rateLimiter == nil || r.cfg.RateLimit <= 0 {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(tgID, command), r.cfg.RateLimit, time.Minute)
	if err != nil {
		r.log.Warn().Err(err).Int64("tg_id", tgID).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

func buildKeyboard(rows [][]adapter.InlineButton) *tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, out)
	}
	if len(kbRows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	return &markup
}

func senderOf(u *tgbotapi.User) application.Sender {
	return application.Sender{ID: u.ID, Username: u.UserName, FirstName: u.FirstName}
}

func chatOf(query *tgbotapi.CallbackQuery) int64 {
	if query.Message != nil && query.Message.Chat != nil {
		return query.Message.Chat.ID
	}
	if query.From != nil {
		return query.From.ID
	}
	return 0
}

// largestPhoto picks the highest resolution size Telegram sent.
func largestPhoto(sizes []tgbotapi.PhotoSize) string {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best.FileID
}

// callbackName strips ids from callback data so metric and limiter keys stay bounded.
func callbackName(data string) string {
	if i := strings.LastIndex(data, ":"); i >= 0 && i < len(data)-1 {
		switch data[:i+1] {
		case application.CoursePrefix, usecase.ApprovePrefix, usecase.RejectPrefix:
			return data[:i]
		}
	}
	return data
}
