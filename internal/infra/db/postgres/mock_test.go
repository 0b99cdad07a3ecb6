//go:build !integration

package postgres

import (
	"context"
	"time"

	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/repository"
	red "rollingpi/internal/infra/redis"
)

// mockInnerUserRepo mocks the database repository that the User decorator wraps.
type mockInnerUserRepo struct {
	UpsertFunc         func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc       func(ctx context.Context, tx repository.Tx, id int64) (*model.User, error)
	FindByUsernameFunc func(ctx context.Context, tx repository.Tx, username string) (*model.User, error)
}

func (m *mockInnerUserRepo) Upsert(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.UpsertFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerUserRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	return m.FindByUsernameFunc(ctx, tx, username)
}

// mockRedisClient mocks our Redis client wrapper; unset funcs are no-ops.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(context.Context) error                         { return nil }
func (m *mockRedisClient) Incr(context.Context, string) (int64, error)        { return 0, nil }
func (m *mockRedisClient) Expire(context.Context, string, time.Duration) error { return nil }
func (m *mockRedisClient) HSet(context.Context, string, string, interface{}) error {
	return nil
}
func (m *mockRedisClient) HGet(context.Context, string, string) (string, error) { return "", nil }
func (m *mockRedisClient) HDel(context.Context, string, ...string) error       { return nil }
func (m *mockRedisClient) HGetAll(context.Context, string) (map[string]string, error) {
	return nil, nil
}
func (m *mockRedisClient) Publish(context.Context, string, interface{}) error { return nil }
func (m *mockRedisClient) Close() error                                       { return nil }
