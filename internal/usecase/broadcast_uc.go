package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/ports/adapter"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
	"course-access-bot/internal/infra/redis"
	"course-access-bot/internal/infra/worker"
)

const (
	broadcastLockKey = "lock:broadcast"
	broadcastLockTTL = 30 * time.Minute
	// Telegram allows roughly 30 messages per second per bot.
	broadcastRate = 25
)

var _ BroadcastUseCase = (*broadcastUC)(nil)

type BroadcastUseCase interface {
	// Broadcast sends message to every non-approver user and returns how
	// many deliveries succeeded. Only one broadcast runs at a time.
	Broadcast(ctx context.Context, message string) (int, error)
}

type broadcastUC struct {
	users      repository.UserRepository
	bot        adapter.TelegramBotAdapter
	workerPool *worker.Pool
	locker     redis.Locker
	interval   time.Duration
	log        *zerolog.Logger
}

func NewBroadcastUseCase(
	users repository.UserRepository,
	bot adapter.TelegramBotAdapter,
	pool *worker.Pool,
	locker redis.Locker,
	logger *zerolog.Logger,
) *broadcastUC {
	return &broadcastUC{
		users:      users,
		bot:        bot,
		workerPool: pool,
		locker:     locker,
		interval:   time.Second / broadcastRate,
		log:        logger,
	}
}

// SetInterval changes the gap between two queued sends.
func (uc *broadcastUC) SetInterval(d time.Duration) { uc.interval = d }

func (uc *broadcastUC) Broadcast(ctx context.Context, message string) (int, error) {
	defer logging.TraceDuration(uc.log, "BroadcastUC.Broadcast")()

	message = strings.TrimSpace(message)
	if message == "" {
		return 0, domain.ErrValidation
	}
	token, err := uc.locker.TryLock(ctx, broadcastLockKey, broadcastLockTTL)
	if err != nil {
		metrics.IncBroadcast("locked")
		return 0, err
	}
	defer func() {
		if err := uc.locker.Unlock(context.WithoutCancel(ctx), broadcastLockKey, token); err != nil {
			uc.log.Warn().Err(err).Msg("failed to release broadcast lock")
		}
	}()

	recipients, err := uc.users.ListRecipients(ctx, repository.NoTX)
	if err != nil {
		uc.log.Error().Err(err).Msg("failed to fetch users for broadcast")
		return 0, err
	}
	uc.log.Info().Int("user_count", len(recipients)).Msg("starting broadcast")

	throttle := time.NewTicker(uc.interval)
	defer throttle.Stop()

	var (
		wg   sync.WaitGroup
		sent int64
	)
	for _, user := range recipients {
		select {
		case <-ctx.Done():
			return int(atomic.LoadInt64(&sent)), ctx.Err()
		case <-throttle.C:
		}
		wg.Add(1)
		task := uc.createSendTask(user.TelegramID, message, &wg, &sent)
		if err := uc.workerPool.Submit(task); err != nil {
			wg.Done()
			metrics.IncBroadcast("dropped")
			uc.log.Warn().Err(err).Int64("tg_id", user.TelegramID).Msg("failed to submit broadcast task")
		}
	}
	if err := waitGroup(ctx, &wg); err != nil {
		return int(atomic.LoadInt64(&sent)), err
	}

	n := int(atomic.LoadInt64(&sent))
	uc.log.Info().Int("sent", n).Int("recipients", len(recipients)).Msg("broadcast finished")
	return n, nil
}

// waitGroup waits for wg unless ctx ends first. Queued tasks never run once
// the pool's context is cancelled.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// createSendTask creates a closure for the worker pool to execute.
func (uc *broadcastUC) createSendTask(telegramID int64, message string, wg *sync.WaitGroup, sent *int64) worker.Task {
	return func(ctx context.Context) error {
		defer wg.Done()
		if err := uc.bot.SendMessage(ctx, telegramID, message); err != nil {
			// Usually the user blocked the bot.
			metrics.IncBroadcast("failed")
			uc.log.Warn().Err(err).Int64("tg_id", telegramID).Msg("failed to send broadcast message")
			return nil
		}
		metrics.IncBroadcast("sent")
		atomic.AddInt64(sent, 1)
		return nil
	}
}
