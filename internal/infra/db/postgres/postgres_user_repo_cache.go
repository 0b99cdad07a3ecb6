package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/repository"
	"rollingpi/internal/infra/metrics"
	red "rollingpi/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

// userRepoCacheDecorator serves the per-request user lookups of the auth
// middleware from Redis.
type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func idKey(id int64) string          { return fmt.Sprintf("user:id:%d", id) }
func usernameKey(name string) string { return "user:name:" + name }

// Upsert may rename the user, so both keys are dropped after the write.
func (d *userRepoCacheDecorator) Upsert(ctx context.Context, tx repository.Tx, u *model.User) error {
	if err := d.inner.Upsert(ctx, tx, u); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, idKey(u.ID), usernameKey(u.Username))
	return nil
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	return d.lookup(ctx, idKey(id), func() (*model.User, error) { return d.inner.FindByID(ctx, tx, id) })
}

func (d *userRepoCacheDecorator) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	return d.lookup(ctx, usernameKey(username), func() (*model.User, error) { return d.inner.FindByUsername(ctx, tx, username) })
}

func (d *userRepoCacheDecorator) lookup(ctx context.Context, key string, load func() (*model.User, error)) (*model.User, error) {
	if val, err := d.cache.Get(ctx, key); err == nil {
		var u model.User
		if json.Unmarshal([]byte(val), &u) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &u, nil
		}
	}

	metrics.IncCacheRequest("user", "miss")
	u, err := load()
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(u); err == nil {
		_ = d.cache.Set(ctx, idKey(u.ID), b, d.ttl)
		_ = d.cache.Set(ctx, usernameKey(u.Username), b, d.ttl)
	}
	return u, nil
}
