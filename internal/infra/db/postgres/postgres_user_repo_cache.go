package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/metrics"
	red "course-access-bot/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

// userRepoCacheDecorator caches single-user lookups, which happen on every
// bot update. Reads inside a transaction bypass the cache.
type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func userKey(tgID int64) string { return fmt.Sprintf("user:tgid:%d", tgID) }

func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if err := d.inner.Save(ctx, tx, u); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, userKey(u.TelegramID)); err != nil {
		d.log.Warn().Err(err).Int64("tg_id", u.TelegramID).Msg("user cache invalidation failed")
	}
	return nil
}

func (d *userRepoCacheDecorator) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if inTx(tx) {
		return d.inner.FindByTelegramID(ctx, tx, tgID)
	}
	key := userKey(tgID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &user, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Msg("user cache read failed")
	}

	metrics.IncCacheRequest("user", "miss")
	user, err := d.inner.FindByTelegramID(ctx, tx, tgID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(user); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return user, nil
}

func (d *userRepoCacheDecorator) ListApprovers(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return d.inner.ListApprovers(ctx, tx)
}

func (d *userRepoCacheDecorator) ListRecipients(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return d.inner.ListRecipients(ctx, tx)
}

func (d *userRepoCacheDecorator) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	return d.inner.CountUsers(ctx, tx)
}
