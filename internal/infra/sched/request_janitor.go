package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StalePurger is the slice of RequestUseCase the janitor drives.
type StalePurger interface {
	PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RequestJanitor periodically removes abandoned payment requests and the
// decided leftovers whose delete failed.
type RequestJanitor struct {
	interval     time.Duration
	abandonAfter time.Duration
	requests     StalePurger
	log          *zerolog.Logger
}

func NewRequestJanitor(interval, abandonAfter time.Duration, requests StalePurger, logger *zerolog.Logger) *RequestJanitor {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if abandonAfter <= 0 {
		abandonAfter = 24 * time.Hour
	}
	l := logger.With().Str("component", "RequestJanitor").Logger()
	return &RequestJanitor{
		interval:     interval,
		abandonAfter: abandonAfter,
		requests:     requests,
		log:          &l,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (j *RequestJanitor) Run(ctx context.Context) error {
	j.log.Info().Dur("interval", j.interval).Dur("abandon_after", j.abandonAfter).Msg("Starting request janitor")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Stopping request janitor")
			return nil
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *RequestJanitor) sweep(ctx context.Context) {
	n, err := j.requests.PurgeStale(ctx, j.abandonAfter)
	if err != nil {
		j.log.Error().Err(err).Msg("request janitor error")
		return
	}
	if n > 0 {
		j.log.Debug().Int64("count", n).Msg("stale requests purged")
	}
}
