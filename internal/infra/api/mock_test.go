//go:build !integration

package api_test

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type mockPaymentUC struct {
	CreateFunc      func(ctx context.Context, in usecase.CreatePaymentInput) (*model.CreatedPayment, error)
	ApproveFunc     func(ctx context.Context, paymentID string, plan model.PlanType) error
	CompleteFunc    func(ctx context.Context, req adapter.CompleteRequest) (*model.Completion, error)
	ByPaymentIDFunc func(ctx context.Context, paymentID, username string) (*model.PaymentView, error)
	SlotsFunc       func(ctx context.Context, plan model.PlanType, slug string) (*model.SlotAvailability, error)
	ActivePlansFunc func(ctx context.Context, articleID int64) ([]model.ActivePlan, error)
	ActivateFunc    func(ctx context.Context, req adapter.ActivateRequest) (*model.Completion, error)
	CancelPlanFunc  func(ctx context.Context, articleID int64, plan model.PlanType) error
}

var _ usecase.PaymentUseCase = (*mockPaymentUC)(nil)

func (m *mockPaymentUC) Create(ctx context.Context, in usecase.CreatePaymentInput) (*model.CreatedPayment, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, in)
	}
	return &model.CreatedPayment{PaymentID: in.PaymentID, Amount: in.PlanType.PriceInPi()}, nil
}

func (m *mockPaymentUC) Approve(ctx context.Context, paymentID string, plan model.PlanType) error {
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, paymentID, plan)
	}
	return nil
}

func (m *mockPaymentUC) Complete(ctx context.Context, req adapter.CompleteRequest) (*model.Completion, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &model.Completion{ArticleID: req.ArticleID}, nil
}

func (m *mockPaymentUC) ByPaymentID(ctx context.Context, paymentID, username string) (*model.PaymentView, error) {
	if m.ByPaymentIDFunc != nil {
		return m.ByPaymentIDFunc(ctx, paymentID, username)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentUC) Slots(ctx context.Context, plan model.PlanType, slug string) (*model.SlotAvailability, error) {
	if m.SlotsFunc != nil {
		return m.SlotsFunc(ctx, plan, slug)
	}
	return &model.SlotAvailability{Available: true, TotalSlots: plan.TotalSlots(), RemainingSlots: plan.TotalSlots()}, nil
}

func (m *mockPaymentUC) ActivePlans(ctx context.Context, articleID int64) ([]model.ActivePlan, error) {
	if m.ActivePlansFunc != nil {
		return m.ActivePlansFunc(ctx, articleID)
	}
	return nil, nil
}

func (m *mockPaymentUC) Activate(ctx context.Context, req adapter.ActivateRequest) (*model.Completion, error) {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, req)
	}
	return &model.Completion{ArticleID: req.ArticleID}, nil
}

func (m *mockPaymentUC) CancelPlan(ctx context.Context, articleID int64, plan model.PlanType) error {
	if m.CancelPlanFunc != nil {
		return m.CancelPlanFunc(ctx, articleID, plan)
	}
	return nil
}

func (m *mockPaymentUC) SweepStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type mockLinkUC struct {
	CreateFunc func(ctx context.Context) (string, error)
	SyncFunc   func(ctx context.Context, userID int64, code string) error
	StatusFunc func(ctx context.Context, code string) (*model.LinkedSession, error)
}

var _ usecase.SessionLinkUseCase = (*mockLinkUC)(nil)

func (m *mockLinkUC) Create(ctx context.Context) (string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx)
	}
	return "code-1", nil
}

func (m *mockLinkUC) Sync(ctx context.Context, userID int64, code string) error {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, userID, code)
	}
	return nil
}

func (m *mockLinkUC) Status(ctx context.Context, code string) (*model.LinkedSession, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, code)
	}
	return nil, nil
}

func (m *mockLinkUC) Sweep(ctx context.Context, before time.Time) (int64, error) { return 0, nil }

type mockUserUC struct {
	PiLoginFunc func(ctx context.Context, in usecase.PiLoginInput) (*model.UserSession, error)
}

var _ usecase.UserUseCase = (*mockUserUC)(nil)

func (m *mockUserUC) PiLogin(ctx context.Context, in usecase.PiLoginInput) (*model.UserSession, error) {
	if m.PiLoginFunc != nil {
		return m.PiLoginFunc(ctx, in)
	}
	return &model.UserSession{Username: in.Username, PiID: in.UID, AccessToken: "jwt-" + in.UID, Role: model.RoleUser}, nil
}

func (m *mockUserUC) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if id == 1 {
		return &model.User{ID: 1, PiID: "uid-1", Username: "alice", Role: model.RoleUser}, nil
	}
	return nil, domain.ErrNotFound
}

type mockPriceUC struct {
	Err error
}

func (m *mockPriceUC) Prices(ctx context.Context) (*model.PlanPrices, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &model.PlanPrices{PiPriceUSD: 0.5, Standard: 7, CategorySlider: 50, MainSlider: 70}, nil
}

// staticToken feeds a fixed bearer token to the HTTP relay.
type staticToken string

func (s staticToken) AccessToken(ctx context.Context) (string, error) {
	if s == "" {
		return "", domain.ErrUnauthenticated
	}
	return string(s), nil
}
