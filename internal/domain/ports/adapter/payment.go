package adapter

import (
	"context"

	"rollingpi/internal/domain/model"
)

// PaymentCallbacks mirrors the SDK's callback protocol. Callbacks may fire on
// any goroutine; implementations must not assume ordering beyond
// approval-before-completion.
type PaymentCallbacks struct {
	OnReadyForServerApproval   func(paymentID string)
	OnReadyForServerCompletion func(paymentID, txid string)
	OnCancel                   func(paymentID string)
	OnError                    func(err error, paymentID string)
}

// PaymentSDK is the hex port for the wallet-side payment SDK.
type PaymentSDK interface {
	// Available reports whether the SDK can be driven in this environment.
	Available() bool
	Authenticate(ctx context.Context, scopes []string) (*model.SDKAuth, error)
	// CreatePayment hands control to the wallet. It returns once the
	// payment dialog is open; progress is reported through cb.
	CreatePayment(ctx context.Context, intent model.PaymentIntent, cb PaymentCallbacks) error
}

// PiPlatform is the server-side Pi Platform API.
type PiPlatform interface {
	Name() string
	// Me resolves an SDK access token to the wallet user.
	Me(ctx context.Context, accessToken string) (*model.SDKAuth, error)
	Approve(ctx context.Context, paymentID string) error
	Complete(ctx context.Context, paymentID, txid string) error
}

// PriceOracle quotes the current Pi price in USD.
type PriceOracle interface {
	PiPriceUSD(ctx context.Context) (float64, error)
}
