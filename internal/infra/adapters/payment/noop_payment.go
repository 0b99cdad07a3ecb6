package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
)

var _ adapter.PiPlatform = (*NoopPiPlatform)(nil)

// NoopPiPlatform is an in-memory Pi Platform used in sandbox mode and tests.
// Any non-empty token is accepted; the username is derived from the token.
type NoopPiPlatform struct {
	mu        sync.Mutex
	approved  map[string]bool
	completed map[string]string // payment id -> txid
}

func NewNoopPiPlatform() *NoopPiPlatform {
	return &NoopPiPlatform{
		approved:  make(map[string]bool),
		completed: make(map[string]string),
	}
}

func (g *NoopPiPlatform) Name() string { return "noop" }

func (g *NoopPiPlatform) Me(ctx context.Context, accessToken string) (*model.SDKAuth, error) {
	tok := strings.TrimSpace(accessToken)
	if tok == "" {
		return nil, domain.ErrUnauthenticated
	}
	name := tok
	if len(name) > 16 {
		name = name[:16]
	}
	return &model.SDKAuth{AccessToken: tok, UID: "sandbox-" + name, Username: name}, nil
}

func (g *NoopPiPlatform) Approve(ctx context.Context, paymentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approved[paymentID] = true
	return nil
}

func (g *NoopPiPlatform) Complete(ctx context.Context, paymentID, txid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.approved[paymentID] {
		return fmt.Errorf("noop: payment %s not approved", paymentID)
	}
	g.completed[paymentID] = txid
	return nil
}

// Completed reports the txid recorded for paymentID.
func (g *NoopPiPlatform) Completed(paymentID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.completed[paymentID]
	return tx, ok
}
