//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"rollingpi/internal/domain"
)

// --- User Model Tests ---

func TestNewUser(t *testing.T) {
	t.Run("should create a new user successfully", func(t *testing.T) {
		user, err := NewUser(" pi-uid-1 ", "alice")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if user.PiID != "pi-uid-1" {
			t.Errorf("expected trimmed pi id, got %q", user.PiID)
		}
		if user.Role != RoleUser {
			t.Errorf("expected default role USER, got %s", user.Role)
		}
	})

	t.Run("should fail with empty username", func(t *testing.T) {
		user, err := NewUser("pi-uid-1", "")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if user != nil {
			t.Error("expected nil user on error")
		}
	})
}

// --- Plan Tests ---

func TestParsePlanType(t *testing.T) {
	p, err := ParsePlanType("main_slider")
	if err != nil || p != PlanMainSlider {
		t.Fatalf("expected MAIN_SLIDER, got %q (%v)", p, err)
	}
	if _, err := ParsePlanType("GOLD"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown plan, got %v", err)
	}
}

func TestPlanType_Slots(t *testing.T) {
	if PlanCategorySlider.TotalSlots() != SliderCapacity || PlanMainSlider.TotalSlots() != SliderCapacity {
		t.Error("slider plans should be capped")
	}
	if PlanStandard.TotalSlots() <= SliderCapacity {
		t.Error("standard plan should be effectively unlimited")
	}
	if PlanStandard.IsSlider() {
		t.Error("standard is not a slider plan")
	}
}

// --- Payment Tests ---

func TestPayment_CanTransition(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		ok       bool
	}{
		{PaymentStatusCreated, PaymentStatusApproved, true},
		{PaymentStatusCreated, PaymentStatusCompleted, false},
		{PaymentStatusApproved, PaymentStatusCompleted, true},
		{PaymentStatusApproved, PaymentStatusApproved, true},
		{PaymentStatusCompleted, PaymentStatusCancelled, false},
		{PaymentStatusCancelled, PaymentStatusApproved, false},
	}
	for _, tc := range cases {
		p := &Payment{Status: tc.from}
		if got := p.CanTransition(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestPaymentIntent_Validate(t *testing.T) {
	ok := PaymentIntent{PaymentID: "p1", Username: "alice", PlanType: PlanStandard}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := ok
	bad.PaymentID = ""
	if err := bad.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

// --- Promotion Tests ---

func TestNextExpiration(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("should extend from now when nothing is active", func(t *testing.T) {
		got := NextExpiration(now, nil)
		if !got.Equal(now.AddDate(0, 0, 30)) {
			t.Errorf("unexpected expiry %v", got)
		}
	})

	t.Run("should extend from the later previous expiry", func(t *testing.T) {
		prev := now.AddDate(0, 0, 10)
		got := NextExpiration(now, &prev)
		if !got.Equal(now.AddDate(0, 0, 40)) {
			t.Errorf("unexpected expiry %v", got)
		}
	})

	t.Run("should ignore an already expired promotion", func(t *testing.T) {
		prev := now.AddDate(0, 0, -5)
		got := NextExpiration(now, &prev)
		if !got.Equal(now.AddDate(0, 0, 30)) {
			t.Errorf("unexpected expiry %v", got)
		}
	})
}

func TestArticlePromotion_ActiveAt(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	if !(ArticlePromotion{ExpirationAt: &future}).ActiveAt(now) {
		t.Error("future expiry should be active")
	}
	if (ArticlePromotion{ExpirationAt: &past}).ActiveAt(now) {
		t.Error("past expiry should be inactive")
	}
	if (ArticlePromotion{ExpirationAt: &future, Cancelled: true}).ActiveAt(now) {
		t.Error("cancelled promotion should be inactive")
	}
}

func TestLinkedSession_AsUserSession(t *testing.T) {
	s := LinkedSession{Username: "bob", PiID: "uid", AccessToken: "tok", Role: RoleUser}.AsUserSession()
	if !s.Valid() || s.Username != "bob" {
		t.Errorf("unexpected session %+v", s)
	}
}
