// File: internal/infra/adapters/sdk/wallet.go
package sdk

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentSDK = (*Unavailable)(nil)
	_ adapter.PaymentSDK = (*SimulatedWallet)(nil)
)

// Unavailable is the SDK on surfaces without a wallet, e.g. a desktop shell.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Authenticate(context.Context, []string) (*model.SDKAuth, error) {
	return nil, domain.ErrAuthUnavailable
}

func (Unavailable) CreatePayment(context.Context, model.PaymentIntent, adapter.PaymentCallbacks) error {
	return domain.ErrAuthUnavailable
}

// Behavior selects how the simulated wallet ends a payment.
type Behavior string

const (
	BehaviorComplete Behavior = "complete"
	BehaviorCancel   Behavior = "cancel"
	BehaviorError    Behavior = "error"
	// BehaviorCancelAfterApproval approves, then cancels before completion.
	BehaviorCancelAfterApproval Behavior = "cancel-after-approval"
)

var errSimulated = errors.New("simulated wallet failure")

// SimulatedWallet drives the callback protocol on its own goroutine, the way
// the browser SDK does, with a fixed delay between steps.
type SimulatedWallet struct {
	Auth     model.SDKAuth
	Behavior Behavior
	Delay    time.Duration
	// Declines makes Authenticate fail as if the user refused consent.
	Declines bool

	wg sync.WaitGroup
}

func NewSimulatedWallet(auth model.SDKAuth, behavior Behavior, delay time.Duration) *SimulatedWallet {
	if behavior == "" {
		behavior = BehaviorComplete
	}
	return &SimulatedWallet{Auth: auth, Behavior: behavior, Delay: delay}
}

func (w *SimulatedWallet) Available() bool { return true }

func (w *SimulatedWallet) Authenticate(ctx context.Context, scopes []string) (*model.SDKAuth, error) {
	if w.Declines {
		return nil, errors.New("user declined consent")
	}
	auth := w.Auth
	return &auth, nil
}

func (w *SimulatedWallet) CreatePayment(ctx context.Context, intent model.PaymentIntent, cb adapter.PaymentCallbacks) error {
	if intent.PaymentID == "" {
		return domain.ErrInvalidArgument
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		id := intent.PaymentID
		switch w.Behavior {
		case BehaviorCancel:
			w.pause()
			cb.OnCancel(id)
			return
		case BehaviorError:
			w.pause()
			cb.OnError(errSimulated, id)
			return
		}

		w.pause()
		cb.OnReadyForServerApproval(id)
		w.pause()
		if w.Behavior == BehaviorCancelAfterApproval {
			cb.OnCancel(id)
			return
		}
		cb.OnReadyForServerCompletion(id, "sim-tx-"+strconv.FormatInt(time.Now().UnixNano(), 36))
	}()
	return nil
}

// Wait blocks until every simulated payment has delivered its callbacks.
func (w *SimulatedWallet) Wait() { w.wg.Wait() }

func (w *SimulatedWallet) pause() {
	if w.Delay > 0 {
		time.Sleep(w.Delay)
	}
}
