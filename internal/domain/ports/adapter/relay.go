package adapter

import (
	"context"

	"rollingpi/internal/domain/model"
)

type CompleteRequest struct {
	PaymentID string `json:"paymentId"`
	Txid      string `json:"txid"`
	ArticleID *int64 `json:"articleId,omitempty"`
}

type ActivateRequest struct {
	ArticleID *int64         `json:"articleId,omitempty"`
	PlanType  model.PlanType `json:"planType"`
	Username  string         `json:"username"`
}

// PaymentRelay is the client's view of the REST backend. Bearer tokens are
// supplied by the implementation. Errors are domain sentinels:
// ErrAuthExpired on 401/403, ErrNotFound on 404, ErrNetwork otherwise.
type PaymentRelay interface {
	Login(ctx context.Context, auth model.SDKAuth, sandbox bool) (*model.UserSession, error)

	CreatePayment(ctx context.Context, intent model.PaymentIntent, sandbox bool) (*model.CreatedPayment, error)
	ApprovePayment(ctx context.Context, paymentID string, plan model.PlanType) error
	CompletePayment(ctx context.Context, req CompleteRequest) (*model.Completion, error)
	// PaymentStatus succeeds only once the payment is COMPLETED.
	PaymentStatus(ctx context.Context, paymentID string) (*model.PaymentView, error)

	Slots(ctx context.Context, plan model.PlanType, categorySlug string) (*model.SlotAvailability, error)
	ActivePlans(ctx context.Context, articleID int64) ([]model.ActivePlan, error)
	ActivatePlan(ctx context.Context, req ActivateRequest) (*model.Completion, error)
	CancelPlan(ctx context.Context, articleID int64, plan model.PlanType) error
	Prices(ctx context.Context) (*model.PlanPrices, error)

	CreateSessionLink(ctx context.Context) (string, error)
	SyncSession(ctx context.Context, code string) error
	// SessionLinkStatus returns (nil, nil) while the code is not yet synced
	// and ErrCodeExpired once the backend no longer knows it.
	SessionLinkStatus(ctx context.Context, code string) (*model.LinkedSession, error)
}

// TokenSource yields the bearer token of the current user.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}
