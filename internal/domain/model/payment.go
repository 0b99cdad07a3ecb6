package model

import (
	"time"

	"rollingpi/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "CREATED"   // persisted by the backend on create
	PaymentStatusApproved  PaymentStatus = "APPROVED"  // server approval forwarded
	PaymentStatusCompleted PaymentStatus = "COMPLETED" // txid recorded, plan applied
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusError     PaymentStatus = "ERROR"
)

// Terminal reports whether no further transition is possible.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusCancelled, PaymentStatusError:
		return true
	}
	return false
}

// PaymentIntent is the client-side record of an intended purchase, prior to
// SDK or backend confirmation.
type PaymentIntent struct {
	PaymentID    string   `json:"paymentId"`
	PlanType     PlanType `json:"planType"`
	Username     string   `json:"username"`
	Amount       float64  `json:"amount"`
	Memo         string   `json:"memo"`
	ArticleID    *int64   `json:"articleId,omitempty"`
	CategorySlug string   `json:"categorySlug,omitempty"`
}

// Validate checks the fields required by the backend create call.
func (i PaymentIntent) Validate() error {
	if i.PaymentID == "" || i.Username == "" || !i.PlanType.Valid() {
		return domain.ErrInvalidArgument
	}
	return nil
}

// Payment is the backend-owned payment record.
type Payment struct {
	ID           int64
	PaymentID    string // client-minted, unique
	Username     string
	PlanType     PlanType
	Txid         *string
	Status       PaymentStatus
	Sandbox      bool
	ArticleID    *int64
	CreatedAt    time.Time
	CompletedAt  *time.Time
	ExpirationAt *time.Time
}

// CanTransition enforces CREATED -> APPROVED -> COMPLETED plus the terminal
// failure states. Re-applying the current status is allowed so repeated
// callbacks stay harmless.
func (p *Payment) CanTransition(next PaymentStatus) bool {
	if p.Status == next {
		return true
	}
	switch p.Status {
	case PaymentStatusCreated:
		return next == PaymentStatusApproved || next == PaymentStatusCancelled || next == PaymentStatusError
	case PaymentStatusApproved:
		return next == PaymentStatusCompleted || next == PaymentStatusCancelled || next == PaymentStatusError
	}
	return false
}

// CreatedPayment is the backend response to create.
type CreatedPayment struct {
	PaymentID string                 `json:"paymentId"`
	Amount    float64                `json:"amount"`
	Memo      string                 `json:"memo"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Completion is the backend response to complete.
type Completion struct {
	ArticleID    *int64     `json:"articleId,omitempty"`
	ExpirationAt *time.Time `json:"expirationAt,omitempty"`
}

// PaymentView is the status object served for a settled payment.
type PaymentView struct {
	PaymentID    string        `json:"paymentId"`
	PlanType     PlanType      `json:"planType"`
	Status       PaymentStatus `json:"status"`
	ArticleID    *int64        `json:"articleId,omitempty"`
	ExpirationAt *time.Time    `json:"expirationAt,omitempty"`
}

// PendingPayment is per-attempt metadata kept on the client while a payment
// is in flight. It is keyed by PaymentID so concurrent attempts never share a
// slot.
type PendingPayment struct {
	PaymentID string    `json:"paymentId"`
	PlanType  PlanType  `json:"planType"`
	ArticleID *int64    `json:"articleId,omitempty"`
	Sandbox   bool      `json:"sandbox"`
	StartedAt time.Time `json:"startedAt"`
}
