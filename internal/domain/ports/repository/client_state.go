package repository

import (
	"context"

	"rollingpi/internal/domain/model"
)

// ClientStateRepository is the client's persistent state: the single current
// user plus pending payment markers keyed by payment id.
type ClientStateRepository interface {
	// CurrentUser returns ErrUnauthenticated when nobody is signed in.
	CurrentUser(ctx context.Context) (*model.UserSession, error)
	SaveUser(ctx context.Context, s model.UserSession) error
	ClearUser(ctx context.Context) error

	PutPending(ctx context.Context, p model.PendingPayment) error
	DeletePending(ctx context.Context, paymentID string) error
	ListPending(ctx context.Context) ([]model.PendingPayment, error)
}
