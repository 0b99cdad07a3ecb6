// File: internal/usecase/completion_watcher.go
package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/infra/metrics"
)

// DefaultPollInterval matches the web client's polling cadence.
const DefaultPollInterval = 3 * time.Second

// ErrWatchStopped is returned by Wait when the watch ended without a result.
var ErrWatchStopped = errors.New("watch stopped before settlement")

// Compile-time check
var _ CompletionWatcher = (*completionWatcher)(nil)

type WatchResult struct {
	PaymentID string
	View      *model.PaymentView
	Err       error
}

// Watch is one polling loop. Its result channel yields at most one value.
type Watch struct {
	scope     string
	paymentID string

	cancel context.CancelFunc
	result chan WatchResult
	done   chan struct{}
}

func (w *Watch) PaymentID() string { return w.paymentID }

// Result yields the terminal result, if any.
func (w *Watch) Result() <-chan WatchResult { return w.result }

// Done is closed once the polling goroutine has exited and its ticker is released.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Stop is idempotent and safe after the watch finished on its own.
func (w *Watch) Stop() { w.cancel() }

// Wait blocks until the watch settles, stops, or ctx ends.
func (w *Watch) Wait(ctx context.Context) (*model.PaymentView, error) {
	select {
	case r := <-w.result:
		return r.View, r.Err
	case <-w.done:
		select {
		case r := <-w.result:
			return r.View, r.Err
		default:
			return nil, ErrWatchStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CompletionWatcher polls the backend until a payment settles.
type CompletionWatcher interface {
	// Start begins polling paymentID, replacing any watch active in scope.
	Start(ctx context.Context, scope, paymentID string) *Watch
	Stop(scope string)
	StopAll()
	// CheckOnce issues a single status query; settled is false on 404.
	CheckOnce(ctx context.Context, paymentID string) (view *model.PaymentView, settled bool, err error)
}

type completionWatcher struct {
	relay    adapter.PaymentRelay
	interval time.Duration
	log      *zerolog.Logger

	mu     sync.Mutex
	active map[string]*Watch
}

func NewCompletionWatcher(relay adapter.PaymentRelay, interval time.Duration, logger *zerolog.Logger) *completionWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	l := logger.With().Str("component", "CompletionWatcher").Logger()
	return &completionWatcher{
		relay:    relay,
		interval: interval,
		log:      &l,
		active:   make(map[string]*Watch),
	}
}

func (c *completionWatcher) Start(ctx context.Context, scope, paymentID string) *Watch {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		scope:     scope,
		paymentID: paymentID,
		cancel:    cancel,
		result:    make(chan WatchResult, 1),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.active[scope]
	c.active[scope] = w
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
		<-prev.done
	}

	go c.run(wctx, w)
	return w
}

func (c *completionWatcher) Stop(scope string) {
	c.mu.Lock()
	w := c.active[scope]
	c.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func (c *completionWatcher) StopAll() {
	c.mu.Lock()
	ws := make([]*Watch, 0, len(c.active))
	for _, w := range c.active {
		ws = append(ws, w)
	}
	c.mu.Unlock()
	for _, w := range ws {
		w.Stop()
		<-w.done
	}
}

func (c *completionWatcher) CheckOnce(ctx context.Context, paymentID string) (*model.PaymentView, bool, error) {
	view, err := c.relay.PaymentStatus(ctx, paymentID)
	switch {
	case err == nil:
		return view, true, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (c *completionWatcher) run(ctx context.Context, w *Watch) {
	ticker := time.NewTicker(c.interval)
	log := c.log.With().Str("scope", w.scope).Str("payment_id", w.paymentID).Logger()
	defer func() {
		ticker.Stop()
		w.cancel()
		c.release(w)
		close(w.done)
	}()

	log.Debug().Dur("interval", c.interval).Msg("watch started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("watch stopped")
			metrics.IncWatcherTerminal("stopped")
			return
		case <-ticker.C:
		}

		view, settled, err := c.CheckOnce(ctx, w.paymentID)
		if ctx.Err() != nil {
			continue
		}
		switch {
		case settled:
			metrics.IncWatcherPoll("completed")
			metrics.IncWatcherTerminal("completed")
			log.Info().Msg("payment settled")
			w.result <- WatchResult{PaymentID: w.paymentID, View: view}
			return
		case err != nil:
			metrics.IncWatcherPoll("error")
			metrics.IncWatcherTerminal("failed")
			log.Warn().Err(err).Msg("status query failed; watch ends")
			w.result <- WatchResult{PaymentID: w.paymentID, Err: err}
			return
		default:
			metrics.IncWatcherPoll("pending")
		}
	}
}

// release drops w from the active set unless a newer watch replaced it.
func (c *completionWatcher) release(w *Watch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[w.scope] == w {
		delete(c.active, w.scope)
	}
}
