// File: internal/infra/adapters/payment/pi_platform.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
)

var _ adapter.PiPlatform = (*PiPlatformGateway)(nil)

// PiPlatformGateway implements adapter.PiPlatform over the Pi Platform REST API:
// /v2/me with the user's token, and server-side approve/complete with the
// app's API key.
type PiPlatformGateway struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewPiPlatformGateway(apiKey, baseURL string, timeout time.Duration) (*PiPlatformGateway, error) {
	if apiKey == "" {
		return nil, errors.New("pi api key empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid pi base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PiPlatformGateway{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *PiPlatformGateway) Name() string { return "pi" }

func (p *PiPlatformGateway) endpoint(path string) string { return p.baseURL + path }

// Me resolves a wallet access token to the wallet user.
func (p *PiPlatformGateway) Me(ctx context.Context, accessToken string) (*model.SDKAuth, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v2/me"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: pi /me: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domain.ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: pi /me http %d", domain.ErrNetwork, resp.StatusCode)
	}
	var out struct {
		UID      string `json:"uid"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.UID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return &model.SDKAuth{AccessToken: accessToken, UID: out.UID, Username: out.Username}, nil
}

// Approve calls POST /v2/payments/{id}/approve.
func (p *PiPlatformGateway) Approve(ctx context.Context, paymentID string) error {
	return p.post(ctx, "/v2/payments/"+url.PathEscape(paymentID)+"/approve", nil)
}

// Complete calls POST /v2/payments/{id}/complete with the blockchain txid.
func (p *PiPlatformGateway) Complete(ctx context.Context, paymentID, txid string) error {
	return p.post(ctx, "/v2/payments/"+url.PathEscape(paymentID)+"/complete", map[string]any{"txid": txid})
}

func (p *PiPlatformGateway) post(ctx context.Context, path string, payload map[string]any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: pi %s: %v", domain.ErrNetwork, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: pi %s http %d: %s", domain.ErrPaymentFailed, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
