package adapter

import (
	"context"
	"time"

	"rollingpi/internal/domain/model"
)

// SessionPublisher announces a synced session to whoever waits on the code.
type SessionPublisher interface {
	PublishSession(ctx context.Context, code string, s model.LinkedSession) error
}

// SessionSubscriber delivers the session pushed for code. The returned
// channel yields at most one value and is closed when ctx ends or the
// subscription is released.
type SessionSubscriber interface {
	SubscribeSession(ctx context.Context, code string) (<-chan model.LinkedSession, func(), error)
}

// QRRenderer encodes content as a PNG QR code.
type QRRenderer interface {
	Render(content string, size int) (*model.QRCode, error)
}

// Locker is a best-effort distributed mutex.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter counts hits per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// TokenIssuer mints the backend bearer token for an authenticated user.
type TokenIssuer interface {
	Mint(u *model.User) (string, error)
}
