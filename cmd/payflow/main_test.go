//go:build !integration

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/infra/adapters/relay"
	"rollingpi/internal/infra/adapters/sdk"
)

func TestParseQRLink(t *testing.T) {
	t.Run("should read id, plan and article", func(t *testing.T) {
		id, req, err := parseQRLink("https://pi.app/rollingpi/payment-qr?paymentId=01HX&plan=MAIN_SLIDER&articleId=42")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "01HX" || req.Plan != model.PlanMainSlider || req.ArticleID == nil || *req.ArticleID != 42 {
			t.Errorf("unexpected %s %+v", id, req)
		}
	})

	t.Run("should leave the article empty when absent", func(t *testing.T) {
		_, req, err := parseQRLink("https://x.example/q?paymentId=p&plan=standard")
		if err != nil || req.ArticleID != nil || req.Plan != model.PlanStandard {
			t.Errorf("unexpected %+v %v", req, err)
		}
	})

	t.Run("should reject incomplete links", func(t *testing.T) {
		for _, raw := range []string{
			"https://x.example/q?plan=STANDARD",
			"https://x.example/q?paymentId=p&plan=GOLD",
			"https://x.example/q?paymentId=p&plan=STANDARD&articleId=x",
		} {
			if _, _, err := parseQRLink(raw); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", raw, err)
			}
		}
	})
}

func TestCodeFromLink(t *testing.T) {
	if got := codeFromLink("https://pi.app/rollingpi?code=abc"); got != "abc" {
		t.Errorf("want abc, got %s", got)
	}
	if got := codeFromLink("abc"); got != "abc" {
		t.Errorf("want abc, got %s", got)
	}
}

func TestParseBehavior(t *testing.T) {
	cases := map[string]sdk.Behavior{
		"none":                  "",
		"":                      "",
		"Complete":              sdk.BehaviorComplete,
		"cancel-after-approval": sdk.BehaviorCancelAfterApproval,
	}
	for in, want := range cases {
		got, err := parseBehavior(in)
		if err != nil || got != want {
			t.Errorf("%q: want %q, got %q %v", in, want, got, err)
		}
	}
	if _, err := parseBehavior("flaky"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrUserCancelled), 3},
		{domain.ErrAuthExpired, 4},
		{domain.ErrInvalidArgument, 2},
		{context.Canceled, 130},
		{errors.New("other"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("%v: want %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestPurchaseFlags(t *testing.T) {
	fs := newFlags("pay")
	var p purchaseFlags
	p.register(fs)
	if err := fs.Parse([]string{"-plan", "category_slider", "-category", "tech"}); err != nil {
		t.Fatal(err)
	}
	req, err := p.request()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Plan != model.PlanCategorySlider || req.CategorySlug != "tech" || req.ArticleID != nil {
		t.Errorf("unexpected request %+v", req)
	}
}

type fixedToken string

func (f fixedToken) AccessToken(ctx context.Context) (string, error) { return string(f), nil }

func relayApp(t *testing.T, h http.Handler) *App {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := zerolog.New(io.Discard)
	rl, err := relay.NewHTTPRelay(srv.URL+"/api", 0, fixedToken("jwt-admin"), &logger)
	if err != nil {
		t.Fatalf("NewHTTPRelay: %v", err)
	}
	return &App{log: &logger, relay: rl}
}

func TestPlanCommands(t *testing.T) {
	ctx := context.Background()
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/payments/by-article/5", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "plans")
		_, _ = w.Write([]byte(`[{"planType":"STANDARD","cancelled":false}]`))
	})
	mux.HandleFunc("/api/payments/activate", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "activate")
		_, _ = w.Write([]byte(`{"articleId":5}`))
	})
	mux.HandleFunc("/api/payments/cancel-subscription", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "cancel:"+r.URL.Query().Get("planType"))
		w.WriteHeader(http.StatusNoContent)
	})
	app := relayApp(t, mux)

	t.Run("should list, activate and cancel through the relay", func(t *testing.T) {
		var out bytes.Buffer
		if err := runPlans(ctx, app, []string{"-article", "5"}, &out); err != nil {
			t.Fatalf("plans: %v", err)
		}
		if !strings.Contains(out.String(), `"planType": "STANDARD"`) {
			t.Errorf("unexpected plans output %s", out.String())
		}
		if err := runActivate(ctx, app, []string{"-article", "5", "-plan", "main_slider"}, io.Discard); err != nil {
			t.Fatalf("activate: %v", err)
		}
		out.Reset()
		if err := runCancel(ctx, app, []string{"-article", "5", "-plan", "MAIN_SLIDER"}, &out); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if !strings.Contains(out.String(), `"cancelled": true`) {
			t.Errorf("unexpected cancel output %s", out.String())
		}
		if got := strings.Join(seen, ","); got != "plans,activate,cancel:MAIN_SLIDER" {
			t.Errorf("unexpected calls %s", got)
		}
	})

	t.Run("should require an article and a valid plan", func(t *testing.T) {
		if err := runPlans(ctx, app, nil, io.Discard); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("plans: expected ErrInvalidArgument, got %v", err)
		}
		if err := runCancel(ctx, app, []string{"-article", "5", "-plan", "GOLD"}, io.Discard); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("cancel: expected ErrInvalidArgument, got %v", err)
		}
	})
}
