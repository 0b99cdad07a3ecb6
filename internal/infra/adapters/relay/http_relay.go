// File: internal/infra/adapters/relay/http_relay.go
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/infra/metrics"
)

var _ adapter.PaymentRelay = (*HTTPRelay)(nil)

// HTTPRelay implements adapter.PaymentRelay against the rollingpi REST API.
// baseURL includes the API prefix, e.g. https://rollingpi.example/api.
type HTTPRelay struct {
	baseURL string
	client  *http.Client
	tokens  adapter.TokenSource
	log     *zerolog.Logger
}

func NewHTTPRelay(baseURL string, timeout time.Duration, tokens adapter.TokenSource, logger *zerolog.Logger) (*HTTPRelay, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	l := logger.With().Str("component", "HTTPRelay").Logger()
	return &HTTPRelay{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     &l,
	}, nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// call performs one request. A 204 leaves out untouched and reports
// status 204 with a nil error.
func (r *HTTPRelay) call(ctx context.Context, op, method, path string, bearer bool, in, out any) (int, error) {
	start := time.Now()
	status, err := r.roundTrip(ctx, method, path, bearer, in, out)
	metrics.ObserveRelay(op, resultLabel(err), time.Since(start))
	if err != nil {
		r.log.Debug().Err(err).Str("op", op).Int("status", status).Msg("relay call failed")
	}
	return status, err
}

func (r *HTTPRelay) roundTrip(ctx context.Context, method, path string, bearer bool, in, out any) (int, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer {
		tok, err := r.tokens.AccessToken(ctx)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}
		if raw, ok := out.(*[]byte); ok {
			b, err := io.ReadAll(resp.Body)
			*raw = b
			return resp.StatusCode, err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", domain.ErrNetwork, path, err)
		}
		return resp.StatusCode, nil
	}
	return resp.StatusCode, statusError(resp)
}

// statusError maps a non-2xx response onto the domain taxonomy.
func statusError(resp *http.Response) error {
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &eb)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrAuthExpired
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusGone:
		return domain.ErrCodeExpired
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	}
	if sentinel := domain.ErrorFromCode(eb.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, eb.Error)
	}
	msg := eb.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return fmt.Errorf("%w: http %d: %s", domain.ErrNetwork, resp.StatusCode, msg)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAuthExpired):
		return "auth_expired"
	default:
		return "error"
	}
}

// --- auth ---

func (r *HTTPRelay) Login(ctx context.Context, auth model.SDKAuth, sandbox bool) (*model.UserSession, error) {
	in := map[string]any{
		"accessToken": auth.AccessToken,
		"uid":         auth.UID,
		"username":    auth.Username,
		"sandbox":     sandbox,
	}
	var out model.UserSession
	if _, err := r.call(ctx, "login", http.MethodPost, "/auth/pi-login", false, in, &out); err != nil {
		return nil, err
	}
	if !out.Valid() {
		return nil, fmt.Errorf("%w: login response without token", domain.ErrNetwork)
	}
	return &out, nil
}

// --- payments ---

func (r *HTTPRelay) CreatePayment(ctx context.Context, intent model.PaymentIntent, sandbox bool) (*model.CreatedPayment, error) {
	in := map[string]any{
		"paymentId": intent.PaymentID,
		"planType":  intent.PlanType,
		"username":  intent.Username,
		"sandbox":   sandbox,
	}
	if intent.ArticleID != nil {
		in["articleId"] = *intent.ArticleID
	}
	if intent.CategorySlug != "" {
		in["categorySlug"] = intent.CategorySlug
	}
	var out model.CreatedPayment
	if _, err := r.call(ctx, "create", http.MethodPost, "/payments/create", true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRelay) ApprovePayment(ctx context.Context, paymentID string, plan model.PlanType) error {
	in := map[string]any{"paymentId": paymentID, "planType": plan}
	_, err := r.call(ctx, "approve", http.MethodPost, "/payments/approve", true, in, nil)
	return err
}

func (r *HTTPRelay) CompletePayment(ctx context.Context, req adapter.CompleteRequest) (*model.Completion, error) {
	var out model.Completion
	if _, err := r.call(ctx, "complete", http.MethodPost, "/payments/complete", true, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentStatus treats any 2xx as settled; an unreadable body is not an error.
func (r *HTTPRelay) PaymentStatus(ctx context.Context, paymentID string) (*model.PaymentView, error) {
	var raw []byte
	if _, err := r.call(ctx, "status", http.MethodGet, "/payments/by-payment-id/"+url.PathEscape(paymentID), true, nil, &raw); err != nil {
		return nil, err
	}
	view := model.PaymentView{PaymentID: paymentID, Status: model.PaymentStatusCompleted}
	_ = json.Unmarshal(raw, &view)
	return &view, nil
}

func (r *HTTPRelay) Slots(ctx context.Context, plan model.PlanType, categorySlug string) (*model.SlotAvailability, error) {
	q := url.Values{"promoteType": {string(plan)}}
	if categorySlug != "" {
		q.Set("categorySlug", categorySlug)
	}
	var out model.SlotAvailability
	if _, err := r.call(ctx, "slots", http.MethodGet, "/payments/slots?"+q.Encode(), false, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRelay) ActivePlans(ctx context.Context, articleID int64) ([]model.ActivePlan, error) {
	var out []model.ActivePlan
	if _, err := r.call(ctx, "by_article", http.MethodGet, "/payments/by-article/"+strconv.FormatInt(articleID, 10), true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *HTTPRelay) ActivatePlan(ctx context.Context, req adapter.ActivateRequest) (*model.Completion, error) {
	var out model.Completion
	if _, err := r.call(ctx, "activate", http.MethodPost, "/payments/activate", true, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRelay) CancelPlan(ctx context.Context, articleID int64, plan model.PlanType) error {
	q := url.Values{"articleId": {strconv.FormatInt(articleID, 10)}, "planType": {string(plan)}}
	_, err := r.call(ctx, "cancel", http.MethodDelete, "/payments/cancel-subscription?"+q.Encode(), true, nil, nil)
	return err
}

func (r *HTTPRelay) Prices(ctx context.Context) (*model.PlanPrices, error) {
	var out model.PlanPrices
	if _, err := r.call(ctx, "price", http.MethodGet, "/price", false, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- session links ---

func (r *HTTPRelay) CreateSessionLink(ctx context.Context) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	if _, err := r.call(ctx, "link_create", http.MethodPost, "/session-links", false, struct{}{}, &out); err != nil {
		return "", err
	}
	return out.Code, nil
}

func (r *HTTPRelay) SyncSession(ctx context.Context, code string) error {
	_, err := r.call(ctx, "link_sync", http.MethodPost, "/session-links/sync", true, map[string]string{"code": code}, nil)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrCodeExpired
	case errors.Is(err, domain.ErrAlreadyExists):
		return domain.ErrCodeAlreadyUsed
	}
	return err
}

func (r *HTTPRelay) SessionLinkStatus(ctx context.Context, code string) (*model.LinkedSession, error) {
	var out model.LinkedSession
	status, err := r.call(ctx, "link_status", http.MethodGet, "/session-links/status/"+url.PathEscape(code), false, nil, &out)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCodeExpired
		}
		return nil, err
	}
	if status == http.StatusNoContent || out.Username == "" {
		return nil, nil
	}
	return &out, nil
}
