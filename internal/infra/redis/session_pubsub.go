// File: internal/infra/redis/session_pubsub.go
package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
)

var (
	_ adapter.SessionPublisher  = (*SessionNotifier)(nil)
	_ adapter.SessionSubscriber = (*SessionNotifier)(nil)
)

// SessionNotifier carries synced sessions over Redis pub/sub on the
// channel session/<code>.
type SessionNotifier struct {
	cli *redis.Client
	log *zerolog.Logger
}

func NewSessionNotifier(c *Client, logger *zerolog.Logger) *SessionNotifier {
	l := logger.With().Str("component", "SessionNotifier").Logger()
	return &SessionNotifier{cli: c.cli, log: &l}
}

func SessionChannel(code string) string { return "session/" + code }

func (n *SessionNotifier) PublishSession(ctx context.Context, code string, s model.LinkedSession) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return n.cli.Publish(ctx, SessionChannel(code), b).Err()
}

func (n *SessionNotifier) SubscribeSession(ctx context.Context, code string) (<-chan model.LinkedSession, func(), error) {
	sub := n.cli.Subscribe(ctx, SessionChannel(code))
	// wait for the subscription confirmation so no publish is missed after return
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan model.LinkedSession, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var s model.LinkedSession
				if err := json.Unmarshal([]byte(m.Payload), &s); err != nil {
					n.log.Warn().Err(err).Msg("dropping malformed session message")
					continue
				}
				out <- s
				return
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, release, nil
}
