// File: internal/usecase/session_link_bridge.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/domain/ports/repository"
	"rollingpi/internal/infra/logging"
	"rollingpi/internal/infra/metrics"
)

// Compile-time check
var _ SessionLinkBridge = (*sessionLinkBridge)(nil)

// PendingLink is the initiator's handle on an issued code.
type PendingLink struct {
	Code string
	URL  string
	QR   *model.QRCode

	mu    sync.Mutex
	state model.SessionLinkState
}

func (p *PendingLink) State() model.SessionLinkState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// transition moves out of CODE_ISSUED at most once.
func (p *PendingLink) transition(to model.SessionLinkState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != model.LinkCodeIssued {
		return false
	}
	p.state = to
	return true
}

type SessionLinkBridge interface {
	// Begin issues a code and renders its QR payload.
	Begin(ctx context.Context) (*PendingLink, error)
	// Await blocks until the code is synced by another device. There is no
	// timeout; only ctx ends the wait.
	Await(ctx context.Context, link *PendingLink) (*model.LinkedSession, error)
	// Sync is the secondary-device side: sign in if needed, then hand the
	// session to the initiator waiting on code.
	Sync(ctx context.Context, code string) error
}

type SessionLinkOptions struct {
	LinkBaseURL  string
	QRSize       int
	PollInterval time.Duration
}

type sessionLinkBridge struct {
	relay      adapter.PaymentRelay
	gateway    GatewayClient
	qr         adapter.QRRenderer
	subscriber adapter.SessionSubscriber // optional
	state      repository.ClientStateRepository
	opts       SessionLinkOptions
	log        *zerolog.Logger
}

func NewSessionLinkBridge(
	relay adapter.PaymentRelay,
	gateway GatewayClient,
	qr adapter.QRRenderer,
	subscriber adapter.SessionSubscriber,
	state repository.ClientStateRepository,
	opts SessionLinkOptions,
	logger *zerolog.Logger,
) *sessionLinkBridge {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.QRSize <= 0 {
		opts.QRSize = 256
	}
	l := logger.With().Str("component", "SessionLinkBridge").Logger()
	return &sessionLinkBridge{
		relay:      relay,
		gateway:    gateway,
		qr:         qr,
		subscriber: subscriber,
		state:      state,
		opts:       opts,
		log:        &l,
	}
}

func (b *sessionLinkBridge) Begin(ctx context.Context) (*PendingLink, error) {
	defer logging.TraceDuration(b.log, "SessionLinkBridge.Begin")()

	link := &PendingLink{state: model.LinkAwaitingCode}
	code, err := b.relay.CreateSessionLink(ctx)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("%w: empty session link code", domain.ErrOperationFailed)
	}
	link.Code = code
	link.URL = withQuery(b.opts.LinkBaseURL, url.Values{"code": {code}})

	qr, err := b.qr.Render(link.URL, b.opts.QRSize)
	if err != nil {
		return nil, fmt.Errorf("render link qr: %w", err)
	}
	link.QR = qr
	link.state = model.LinkCodeIssued
	b.log.Info().Str("link_code", logging.Redact(code, false)).Msg("session link issued")
	return link, nil
}

func (b *sessionLinkBridge) Await(ctx context.Context, link *PendingLink) (*model.LinkedSession, error) {
	if link == nil {
		return nil, domain.ErrInvalidArgument
	}
	switch link.State() {
	case model.LinkSynced:
		return nil, domain.ErrCodeAlreadyUsed
	case model.LinkExpired:
		return nil, domain.ErrCodeExpired
	case model.LinkAwaitingCode:
		return nil, domain.ErrInvalidState
	}
	ctx = logging.WithCode(ctx, link.Code)

	var (
		sess *model.LinkedSession
		err  error
	)
	if b.subscriber != nil {
		sess, err = b.awaitPush(ctx, link.Code)
	} else {
		sess, err = b.awaitPoll(ctx, link.Code)
	}
	if err != nil {
		if errors.Is(err, domain.ErrCodeExpired) {
			link.transition(model.LinkExpired)
		}
		return nil, err
	}

	if !link.transition(model.LinkSynced) {
		return nil, domain.ErrCodeAlreadyUsed
	}
	if err := b.state.SaveUser(ctx, sess.AsUserSession()); err != nil {
		return nil, fmt.Errorf("persist linked session: %w", err)
	}
	metrics.IncSessionLink("received")
	logging.With(ctx, b.log).Info().Str("username", sess.Username).Msg("session linked")
	return sess, nil
}

// awaitPush subscribes first, then checks status once so a sync that landed
// before the subscription is not missed.
func (b *sessionLinkBridge) awaitPush(ctx context.Context, code string) (*model.LinkedSession, error) {
	ch, release, err := b.subscriber.SubscribeSession(ctx, code)
	if err != nil {
		b.log.Warn().Err(err).Msg("push unavailable; polling instead")
		return b.awaitPoll(ctx, code)
	}
	defer release()

	if sess, err := b.relay.SessionLinkStatus(ctx, code); err != nil {
		return nil, err
	} else if sess != nil {
		return sess, nil
	}

	select {
	case sess, ok := <-ch:
		if !ok {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: session subscription closed", domain.ErrNetwork)
		}
		return &sess, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *sessionLinkBridge) awaitPoll(ctx context.Context, code string) (*model.LinkedSession, error) {
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		sess, err := b.relay.SessionLinkStatus(ctx, code)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
}

func (b *sessionLinkBridge) Sync(ctx context.Context, code string) error {
	defer logging.TraceDuration(b.log, "SessionLinkBridge.Sync")()

	if code == "" {
		return domain.ErrInvalidArgument
	}
	if _, err := b.state.CurrentUser(ctx); err != nil {
		if !errors.Is(err, domain.ErrUnauthenticated) {
			return err
		}
		if _, err := b.gateway.Authenticate(ctx); err != nil {
			return err
		}
	}

	if err := b.relay.SyncSession(ctx, code); err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			if cerr := b.state.ClearUser(ctx); cerr != nil {
				b.log.Warn().Err(cerr).Msg("failed to clear expired session")
			}
		}
		return err
	}
	metrics.IncSessionLink("synced")
	return nil
}

func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + q.Encode()
	}
	existing := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			existing.Add(k, v)
		}
	}
	u.RawQuery = existing.Encode()
	return u.String()
}
