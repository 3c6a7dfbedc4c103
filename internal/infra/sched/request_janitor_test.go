//go:build !integration

package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakePurger struct {
	calls     int32
	olderThan atomic.Value
	err       error
}

func (f *fakePurger) PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	f.olderThan.Store(olderThan)
	return 1, f.err
}

func TestRequestJanitor(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("sweeps on start and on every tick", func(t *testing.T) {
		// Arrange
		p := &fakePurger{}
		j := NewRequestJanitor(10*time.Millisecond, 48*time.Hour, p, &logger)
		ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
		defer cancel()

		// Act
		err := j.Run(ctx)

		// Assert
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
		if n := atomic.LoadInt32(&p.calls); n < 2 {
			t.Errorf("expected several sweeps, got %d", n)
		}
		if got := p.olderThan.Load().(time.Duration); got != 48*time.Hour {
			t.Errorf("expected abandon window to be forwarded, got %v", got)
		}
	})

	t.Run("errors do not stop the loop", func(t *testing.T) {
		p := &fakePurger{err: errors.New("db down")}
		j := NewRequestJanitor(5*time.Millisecond, time.Hour, p, &logger)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_ = j.Run(ctx)

		if n := atomic.LoadInt32(&p.calls); n < 2 {
			t.Errorf("expected the janitor to keep sweeping after errors, got %d calls", n)
		}
	})

	t.Run("defaults apply to non-positive durations", func(t *testing.T) {
		j := NewRequestJanitor(0, 0, &fakePurger{}, &logger)
		if j.interval != 30*time.Minute || j.abandonAfter != 24*time.Hour {
			t.Errorf("unexpected defaults %v %v", j.interval, j.abandonAfter)
		}
	})
}
