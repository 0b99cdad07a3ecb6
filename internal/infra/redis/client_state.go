package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/domain/ports/repository"
)

var (
	_ repository.ClientStateRepository = (*ClientStateRepo)(nil)
	_ adapter.TokenSource              = (*ClientStateRepo)(nil)
)

const (
	fieldUser     = "user"
	pendingPrefix = "pending:"
)

// ClientStateRepo keeps one device's state in a single hash: the current
// user under "user" and one "pending:<paymentId>" field per attempt.
type ClientStateRepo struct {
	client RedisClient
	key    string
	sealer Sealer // optional
}

// Sealer encrypts the stored session so the bearer token is not readable
// by anyone else with access to the Redis instance.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

func NewClientStateRepo(client RedisClient, prefix, deviceID string) *ClientStateRepo {
	return &ClientStateRepo{client: client, key: fmt.Sprintf("%s:%s", prefix, deviceID)}
}

func (s *ClientStateRepo) WithSealer(sealer Sealer) *ClientStateRepo {
	s.sealer = sealer
	return s
}

func (s *ClientStateRepo) CurrentUser(ctx context.Context) (*model.UserSession, error) {
	raw, err := s.client.HGet(ctx, s.key, fieldUser)
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	b := []byte(raw)
	if s.sealer != nil {
		// sealed under another passphrase reads as signed out
		if b, err = s.sealer.Open(raw); err != nil {
			return nil, domain.ErrUnauthenticated
		}
	}
	var u model.UserSession
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	if !u.Valid() {
		return nil, domain.ErrUnauthenticated
	}
	return &u, nil
}

func (s *ClientStateRepo) SaveUser(ctx context.Context, u model.UserSession) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(b)
		if err != nil {
			return err
		}
		return s.client.HSet(ctx, s.key, fieldUser, sealed)
	}
	return s.client.HSet(ctx, s.key, fieldUser, b)
}

func (s *ClientStateRepo) ClearUser(ctx context.Context) error {
	return s.client.HDel(ctx, s.key, fieldUser)
}

// AccessToken serves the relay's bearer credential.
func (s *ClientStateRepo) AccessToken(ctx context.Context) (string, error) {
	u, err := s.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return u.AccessToken, nil
}

func (s *ClientStateRepo) PutPending(ctx context.Context, p model.PendingPayment) error {
	if p.PaymentID == "" {
		return domain.ErrInvalidArgument
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, pendingPrefix+p.PaymentID, b)
}

func (s *ClientStateRepo) DeletePending(ctx context.Context, paymentID string) error {
	return s.client.HDel(ctx, s.key, pendingPrefix+paymentID)
}

func (s *ClientStateRepo) ListPending(ctx context.Context) ([]model.PendingPayment, error) {
	all, err := s.client.HGetAll(ctx, s.key)
	if err != nil {
		return nil, err
	}
	out := make([]model.PendingPayment, 0, len(all))
	for field, raw := range all {
		if !strings.HasPrefix(field, pendingPrefix) {
			continue
		}
		var p model.PendingPayment
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
