// File: internal/usecase/session_link_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/domain/ports/repository"
	"rollingpi/internal/infra/logging"
	"rollingpi/internal/infra/metrics"
)

// Compile-time check
var _ SessionLinkUseCase = (*sessionLinkUC)(nil)

const (
	syncRateLimit  = 5
	syncRateWindow = time.Minute
)

// SessionLinkUseCase is the backend half of the session link bridge.
type SessionLinkUseCase interface {
	Create(ctx context.Context) (string, error)
	// Sync binds code to the caller and pushes the session to the initiator.
	Sync(ctx context.Context, userID int64, code string) error
	// Status returns (nil, nil) until the code is synced, the session exactly
	// once after that, and ErrCodeExpired from then on.
	Status(ctx context.Context, code string) (*model.LinkedSession, error)
	Sweep(ctx context.Context, before time.Time) (int64, error)
}

type sessionLinkUC struct {
	links     repository.SessionLinkRepository
	users     repository.UserRepository
	tm        repository.TransactionManager
	tokens    adapter.TokenIssuer
	publisher adapter.SessionPublisher // optional
	limiter   adapter.RateLimiter      // optional
	maxAge    time.Duration
	log       *zerolog.Logger

	now func() time.Time
}

func NewSessionLinkUseCase(
	links repository.SessionLinkRepository,
	users repository.UserRepository,
	tm repository.TransactionManager,
	tokens adapter.TokenIssuer,
	publisher adapter.SessionPublisher,
	limiter adapter.RateLimiter,
	maxAge time.Duration,
	logger *zerolog.Logger,
) *sessionLinkUC {
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	l := logger.With().Str("component", "SessionLinkUseCase").Logger()
	return &sessionLinkUC{
		links:     links,
		users:     users,
		tm:        tm,
		tokens:    tokens,
		publisher: publisher,
		limiter:   limiter,
		maxAge:    maxAge,
		log:       &l,
		now:       time.Now,
	}
}

func (u *sessionLinkUC) Create(ctx context.Context) (string, error) {
	l := &model.SessionLink{Code: uuid.NewString(), CreatedAt: u.now()}
	if err := u.links.Save(ctx, repository.NoTX, l); err != nil {
		return "", err
	}
	metrics.IncSessionLink("issued")
	return l.Code, nil
}

func (u *sessionLinkUC) Sync(ctx context.Context, userID int64, code string) error {
	log := logging.With(logging.WithCode(ctx, code), u.log)
	defer logging.TraceDuration(log, "SessionLinkUseCase.Sync")()

	if code == "" {
		return domain.ErrInvalidArgument
	}
	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, rateKey(userID, "link_sync"), syncRateLimit, syncRateWindow)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			return domain.ErrRateLimited
		}
	}

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		link, err := u.links.FindByCode(ctx, tx, code)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrCodeExpired
			}
			return err
		}
		if link.Synced() {
			return domain.ErrCodeAlreadyUsed
		}
		if u.expired(link) {
			return domain.ErrCodeExpired
		}
		return u.links.MarkUsed(ctx, tx, code, userID, u.now())
	})
	if err != nil {
		return err
	}
	metrics.IncSessionLink("synced")

	if u.publisher != nil {
		sess, err := u.sessionFor(ctx, userID)
		if err == nil {
			err = u.publisher.PublishSession(ctx, code, *sess)
		}
		if err != nil {
			// the initiator still gets the session through Status
			log.Warn().Err(err).Msg("session push failed")
		}
	}
	log.Info().Int64("user_id", userID).Msg("session link synced")
	return nil
}

func (u *sessionLinkUC) Status(ctx context.Context, code string) (*model.LinkedSession, error) {
	link, err := u.links.FindByCode(ctx, repository.NoTX, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCodeExpired
		}
		return nil, err
	}
	if !link.Synced() {
		if u.expired(link) {
			return nil, domain.ErrCodeExpired
		}
		return nil, nil
	}
	claimed, err := u.links.MarkClaimed(ctx, repository.NoTX, code, u.now())
	if err != nil {
		return nil, err
	}
	if !claimed || link.UserID == nil {
		return nil, domain.ErrCodeExpired
	}
	metrics.IncSessionLink("claimed")
	return u.sessionFor(ctx, *link.UserID)
}

func (u *sessionLinkUC) Sweep(ctx context.Context, before time.Time) (int64, error) {
	return u.links.DeleteOlderThan(ctx, repository.NoTX, before)
}

func rateKey(userID int64, action string) string {
	return fmt.Sprintf("rate_limit:%d:%s", userID, action)
}

func (u *sessionLinkUC) expired(l *model.SessionLink) bool {
	return u.now().Sub(l.CreatedAt) > u.maxAge
}

func (u *sessionLinkUC) sessionFor(ctx context.Context, userID int64) (*model.LinkedSession, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	tok, err := u.tokens.Mint(user)
	if err != nil {
		return nil, err
	}
	return &model.LinkedSession{Username: user.Username, PiID: user.PiID, AccessToken: tok, Role: user.Role}, nil
}
