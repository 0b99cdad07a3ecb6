// File: internal/usecase/gateway_client.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/domain/ports/repository"
	"rollingpi/internal/infra/logging"
	"rollingpi/internal/infra/metrics"
)

// Compile-time check
var _ GatewayClient = (*gatewayClient)(nil)

// authScopes requested from the wallet on every sign-in.
var authScopes = []string{"username", "payments"}

type PaymentEventKind string

const (
	EventApprovalReady   PaymentEventKind = "approval_ready"
	EventCompletionReady PaymentEventKind = "completion_ready"
	EventCancelled       PaymentEventKind = "cancelled"
	EventFailed          PaymentEventKind = "failed"
)

// Terminal reports whether the event ends the attempt.
func (k PaymentEventKind) Terminal() bool { return k != EventApprovalReady }

// PaymentEvent is one SDK callback, in arrival order.
type PaymentEvent struct {
	Kind      PaymentEventKind
	PaymentID string
	Txid      string
	Err       error
}

type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the single terminal result of an attempt on the wallet side.
type Outcome struct {
	Kind      OutcomeKind
	PaymentID string
	Txid      string
	Err       error
}

// PaymentAttempt turns the SDK's callbacks into a channel that yields at
// most one approval event followed by exactly one terminal event, then closes.
type PaymentAttempt struct {
	intent model.PaymentIntent
	events chan PaymentEvent

	mu       sync.Mutex
	approved bool
	outcome  *Outcome
}

func newPaymentAttempt(intent model.PaymentIntent) *PaymentAttempt {
	// approval + terminal; sends never block the SDK goroutine
	return &PaymentAttempt{intent: intent, events: make(chan PaymentEvent, 2)}
}

func (a *PaymentAttempt) Intent() model.PaymentIntent { return a.intent }

// Events yields callbacks in order and is closed after the terminal one.
func (a *PaymentAttempt) Events() <-chan PaymentEvent { return a.events }

// Outcome returns the terminal result once one has arrived.
func (a *PaymentAttempt) Outcome() (Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome == nil {
		return Outcome{}, false
	}
	return *a.outcome, true
}

// Next blocks until the next event, the end of the stream, or ctx.
func (a *PaymentAttempt) Next(ctx context.Context) (PaymentEvent, bool, error) {
	select {
	case ev, ok := <-a.events:
		return ev, ok, nil
	case <-ctx.Done():
		return PaymentEvent{}, false, ctx.Err()
	}
}

// emit records ev and reports whether it was accepted. Duplicate approvals
// and anything after the terminal event are dropped.
func (a *PaymentAttempt) emit(ev PaymentEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome != nil {
		return false
	}
	if ev.Kind == EventApprovalReady {
		if a.approved {
			return false
		}
		a.approved = true
		a.events <- ev
		return true
	}

	out := Outcome{PaymentID: ev.PaymentID, Txid: ev.Txid, Err: ev.Err}
	switch ev.Kind {
	case EventCompletionReady:
		out.Kind = OutcomeCompleted
	case EventCancelled:
		out.Kind = OutcomeCancelled
	default:
		out.Kind = OutcomeFailed
	}
	a.outcome = &out
	a.events <- ev
	close(a.events)
	return true
}

// abort terminates the attempt locally when the wallet never reports back.
func (a *PaymentAttempt) abort(err error) {
	a.emit(PaymentEvent{Kind: EventFailed, PaymentID: a.intent.PaymentID, Err: err})
}

// GatewayClient wraps the payment SDK.
type GatewayClient interface {
	Available() bool
	// Authenticate signs in through the wallet and persists the session.
	Authenticate(ctx context.Context) (*model.UserSession, error)
	// Open hands intent to the wallet and returns the attempt's event stream.
	Open(ctx context.Context, intent model.PaymentIntent) (*PaymentAttempt, error)
}

type gatewayClient struct {
	sdk     adapter.PaymentSDK
	relay   adapter.PaymentRelay
	state   repository.ClientStateRepository
	sandbox bool
	log     *zerolog.Logger
}

func NewGatewayClient(sdk adapter.PaymentSDK, relay adapter.PaymentRelay, state repository.ClientStateRepository, sandbox bool, logger *zerolog.Logger) *gatewayClient {
	l := logger.With().Str("component", "GatewayClient").Logger()
	return &gatewayClient{sdk: sdk, relay: relay, state: state, sandbox: sandbox, log: &l}
}

func (g *gatewayClient) Available() bool { return g.sdk != nil && g.sdk.Available() }

func (g *gatewayClient) Authenticate(ctx context.Context) (*model.UserSession, error) {
	defer logging.TraceDuration(g.log, "GatewayClient.Authenticate")()

	if !g.Available() {
		return nil, domain.ErrAuthUnavailable
	}
	auth, err := g.sdk.Authenticate(ctx, authScopes)
	if err != nil {
		if errors.Is(err, domain.ErrAuthUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthDeclined, err)
	}
	if auth == nil || auth.AccessToken == "" {
		return nil, domain.ErrAuthDeclined
	}

	sess, err := g.relay.Login(ctx, *auth, g.sandbox)
	if err != nil {
		return nil, err
	}
	if err := g.state.SaveUser(ctx, *sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	g.log.Info().Str("username", sess.Username).Msg("signed in")
	return sess, nil
}

func (g *gatewayClient) Open(ctx context.Context, intent model.PaymentIntent) (*PaymentAttempt, error) {
	if !g.Available() {
		return nil, domain.ErrAuthUnavailable
	}
	attempt := newPaymentAttempt(intent)
	log := g.log.With().Str("payment_id", intent.PaymentID).Logger()

	// Callbacks can outlive ctx; marker cleanup must still run.
	bg := context.WithoutCancel(ctx)
	clearPending := func(id string) {
		for _, pid := range uniqueIDs(id, intent.PaymentID) {
			if err := g.state.DeletePending(bg, pid); err != nil {
				log.Warn().Err(err).Str("pending_id", pid).Msg("failed to clear pending marker")
			}
		}
	}

	cb := adapter.PaymentCallbacks{
		OnReadyForServerApproval: func(paymentID string) {
			attempt.emit(PaymentEvent{Kind: EventApprovalReady, PaymentID: paymentID})
		},
		OnReadyForServerCompletion: func(paymentID, txid string) {
			attempt.emit(PaymentEvent{Kind: EventCompletionReady, PaymentID: paymentID, Txid: txid})
		},
		OnCancel: func(paymentID string) {
			if attempt.emit(PaymentEvent{Kind: EventCancelled, PaymentID: paymentID, Err: domain.ErrUserCancelled}) {
				metrics.IncSDKCallback("cancel")
			}
			clearPending(paymentID)
		},
		OnError: func(err error, paymentID string) {
			if err == nil {
				err = domain.ErrPaymentFailed
			}
			if attempt.emit(PaymentEvent{Kind: EventFailed, PaymentID: paymentID, Err: err}) {
				metrics.IncSDKCallback("error")
			}
			clearPending(paymentID)
		},
	}

	if err := g.sdk.CreatePayment(ctx, intent, cb); err != nil {
		attempt.abort(err)
		clearPending(intent.PaymentID)
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err)
	}
	log.Debug().Msg("payment handed to wallet")
	return attempt, nil
}

func uniqueIDs(ids ...string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
