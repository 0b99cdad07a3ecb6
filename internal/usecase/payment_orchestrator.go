// File: internal/usecase/payment_orchestrator.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/domain/ports/repository"
	"rollingpi/internal/infra/logging"
	"rollingpi/internal/infra/metrics"
)

// Compile-time check
var _ PaymentOrchestrator = (*paymentOrchestrator)(nil)

const (
	editArticlePath   = "/user-dashboard/edit-article/"
	createArticlePath = "/user-dashboard/create-article"
)

type PurchaseRequest struct {
	Plan         model.PlanType
	ArticleID    *int64
	CategorySlug string
}

type PurchaseResult struct {
	PaymentID  string
	Completion model.Completion
	// NavigateTo is the screen to open once the plan is applied.
	NavigateTo string
}

// ResumeResult reports what ResumePending decided for one marker.
type ResumeResult struct {
	PaymentID string
	Settled   bool
	Cleared   bool
	Err       error
}

type PaymentOrchestrator interface {
	// Purchase runs create -> approve -> complete, through the wallet in
	// production or simulated in sandbox mode.
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	// StartQRPayment is the fallback when no wallet is available: the
	// payment is made on another device and this one polls for settlement.
	StartQRPayment(ctx context.Context, req PurchaseRequest) (*QRPayment, error)
	// PurchaseFromQR runs the Purchase chain with the id scanned from a QR link.
	PurchaseFromQR(ctx context.Context, paymentID string, req PurchaseRequest) (*PurchaseResult, error)
	ResumePending(ctx context.Context) ([]ResumeResult, error)
	// InFlight lists attempts currently tracked by this orchestrator.
	InFlight() []model.PendingPayment
	Close()
}

type OrchestratorOptions struct {
	Sandbox      bool
	PaymentQRURL string
	QRSize       int
}

type inflightEntry struct {
	paymentID string
	qr        *QRPayment
}

type paymentOrchestrator struct {
	gateway GatewayClient
	relay   adapter.PaymentRelay
	watcher CompletionWatcher
	qr      adapter.QRRenderer
	state   repository.ClientStateRepository
	opts    OrchestratorOptions
	log     *zerolog.Logger

	newID func() string
	now   func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflightEntry        // resource key -> attempt
	attempts map[string]model.PendingPayment // payment id -> metadata
}

func NewPaymentOrchestrator(
	gateway GatewayClient,
	relay adapter.PaymentRelay,
	watcher CompletionWatcher,
	qr adapter.QRRenderer,
	state repository.ClientStateRepository,
	opts OrchestratorOptions,
	logger *zerolog.Logger,
) *paymentOrchestrator {
	if opts.QRSize <= 0 {
		opts.QRSize = 256
	}
	l := logger.With().Str("component", "PaymentOrchestrator").Logger()
	return &paymentOrchestrator{
		gateway:  gateway,
		relay:    relay,
		watcher:  watcher,
		qr:       qr,
		state:    state,
		opts:     opts,
		log:      &l,
		newID:    func() string { return ulid.Make().String() },
		now:      time.Now,
		inflight: make(map[string]*inflightEntry),
		attempts: make(map[string]model.PendingPayment),
	}
}

func (o *paymentOrchestrator) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	defer logging.TraceDuration(o.log, "PaymentOrchestrator.Purchase")()
	return o.purchase(ctx, "", req)
}

func (o *paymentOrchestrator) PurchaseFromQR(ctx context.Context, paymentID string, req PurchaseRequest) (*PurchaseResult, error) {
	defer logging.TraceDuration(o.log, "PaymentOrchestrator.PurchaseFromQR")()
	if paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return o.purchase(ctx, paymentID, req)
}

func (o *paymentOrchestrator) purchase(ctx context.Context, paymentID string, req PurchaseRequest) (*PurchaseResult, error) {
	if err := validatePurchase(req); err != nil {
		return nil, err
	}
	user, err := o.state.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if !o.opts.Sandbox && !o.gateway.Available() {
		return nil, domain.ErrAuthUnavailable
	}

	if paymentID == "" {
		paymentID = o.newID()
	}
	key := resourceKey(user.Username, req)
	if err := o.acquire(key, paymentID, nil); err != nil {
		return nil, err
	}
	defer o.release(key, paymentID)

	ctx = logging.WithPaymentID(ctx, paymentID)
	log := logging.With(ctx, o.log)

	if needsSlotCheck(req) {
		slots, err := o.relay.Slots(ctx, req.Plan, req.CategorySlug)
		if err != nil {
			return nil, o.fail(ctx, paymentID, err)
		}
		if !slots.Available {
			return nil, domain.ErrNoSlotsAvailable
		}
	}

	intent := model.PaymentIntent{
		PaymentID:    paymentID,
		PlanType:     req.Plan,
		Username:     user.Username,
		ArticleID:    req.ArticleID,
		CategorySlug: req.CategorySlug,
	}
	created, err := o.relay.CreatePayment(ctx, intent, o.opts.Sandbox)
	if err != nil {
		return nil, o.fail(ctx, paymentID, err)
	}
	if created.PaymentID != "" {
		intent.PaymentID = created.PaymentID
	}
	intent.Amount = created.Amount
	intent.Memo = created.Memo

	var completion *model.Completion
	if o.opts.Sandbox {
		completion, err = o.runSandbox(ctx, intent)
	} else {
		completion, err = o.runWallet(ctx, intent)
	}
	if err != nil {
		log.Warn().Err(err).Msg("purchase failed")
		metrics.IncPurchase(outcomeLabel(err))
		return nil, err
	}

	metrics.IncPurchase("completed")
	log.Info().Str("plan", string(req.Plan)).Msg("purchase completed")
	return &PurchaseResult{
		PaymentID:  intent.PaymentID,
		Completion: *completion,
		NavigateTo: navigationTarget(completion),
	}, nil
}

// runSandbox simulates the wallet: approve then complete with a synthetic txid.
func (o *paymentOrchestrator) runSandbox(ctx context.Context, intent model.PaymentIntent) (*model.Completion, error) {
	if err := o.markPending(ctx, intent, true); err != nil {
		return nil, err
	}
	if err := o.relay.ApprovePayment(ctx, intent.PaymentID, intent.PlanType); err != nil {
		return nil, o.fail(ctx, intent.PaymentID, err)
	}
	txid := "sandbox-tx-" + strconv.FormatInt(o.now().UnixMilli(), 10)
	completion, err := o.relay.CompletePayment(ctx, adapter.CompleteRequest{
		PaymentID: intent.PaymentID,
		Txid:      txid,
		ArticleID: intent.ArticleID,
	})
	if err != nil {
		return nil, o.fail(ctx, intent.PaymentID, err)
	}
	o.clearPending(ctx, intent.PaymentID)
	return completion, nil
}

// runWallet drives the wallet attempt as a linear sequence of events.
func (o *paymentOrchestrator) runWallet(ctx context.Context, intent model.PaymentIntent) (*model.Completion, error) {
	attempt, err := o.gateway.Open(ctx, intent)
	if err != nil {
		return nil, o.fail(ctx, intent.PaymentID, err)
	}

	approved := false
	for {
		ev, ok, err := attempt.Next(ctx)
		if err != nil {
			// The wallet cannot be aborted; the marker stays for ResumePending.
			o.forget(intent.PaymentID)
			return nil, err
		}
		if !ok {
			return nil, o.fail(ctx, intent.PaymentID, domain.ErrPaymentFailed)
		}

		switch ev.Kind {
		case EventApprovalReady:
			if ev.PaymentID != intent.PaymentID {
				return nil, o.fail(ctx, intent.PaymentID, fmt.Errorf("%w: wallet=%s backend=%s", domain.ErrIDMismatch, ev.PaymentID, intent.PaymentID))
			}
			if err := o.markPending(ctx, intent, false); err != nil {
				return nil, err
			}
			if err := o.relay.ApprovePayment(ctx, intent.PaymentID, intent.PlanType); err != nil {
				return nil, o.fail(ctx, intent.PaymentID, err)
			}
			approved = true

		case EventCompletionReady:
			if ev.PaymentID != intent.PaymentID {
				return nil, o.fail(ctx, intent.PaymentID, fmt.Errorf("%w: wallet=%s backend=%s", domain.ErrIDMismatch, ev.PaymentID, intent.PaymentID))
			}
			if !approved {
				return nil, o.fail(ctx, intent.PaymentID, fmt.Errorf("%w: completion before approval", domain.ErrInvalidState))
			}
			completion, err := o.relay.CompletePayment(ctx, adapter.CompleteRequest{
				PaymentID: intent.PaymentID,
				Txid:      ev.Txid,
				ArticleID: intent.ArticleID,
			})
			if err != nil {
				return nil, o.fail(ctx, intent.PaymentID, err)
			}
			o.clearPending(ctx, intent.PaymentID)
			return completion, nil

		case EventCancelled:
			// The gateway already cleared the marker, but an approval handled
			// after the cancel arrived may have written it again.
			o.clearPending(ctx, intent.PaymentID)
			return nil, domain.ErrUserCancelled

		case EventFailed:
			o.clearPending(ctx, intent.PaymentID)
			return nil, fmt.Errorf("%w: %v", domain.ErrPaymentFailed, ev.Err)
		}
	}
}

func (o *paymentOrchestrator) StartQRPayment(ctx context.Context, req PurchaseRequest) (*QRPayment, error) {
	defer logging.TraceDuration(o.log, "PaymentOrchestrator.StartQRPayment")()
	if err := validatePurchase(req); err != nil {
		return nil, err
	}
	username := ""
	if u, err := o.state.CurrentUser(ctx); err == nil {
		username = u.Username
	}

	paymentID := o.newID()
	q := url.Values{"paymentId": {paymentID}, "plan": {string(req.Plan)}}
	if req.ArticleID != nil {
		q.Set("articleId", strconv.FormatInt(*req.ArticleID, 10))
	}
	link := withQuery(o.opts.PaymentQRURL, q)
	code, err := o.qr.Render(link, o.opts.QRSize)
	if err != nil {
		return nil, fmt.Errorf("render payment qr: %w", err)
	}

	key := resourceKey(username, req)
	qp := &QRPayment{
		PaymentID: paymentID,
		URL:       link,
		QR:        code,
		orch:      o,
		key:       key,
		plan:      req.Plan,
		articleID: req.ArticleID,
	}
	if err := o.acquire(key, paymentID, qp); err != nil {
		return nil, err
	}

	intent := model.PaymentIntent{PaymentID: paymentID, PlanType: req.Plan, ArticleID: req.ArticleID}
	if err := o.markPending(ctx, intent, false); err != nil {
		o.release(key, paymentID)
		return nil, err
	}
	qp.watch = o.watcher.Start(context.WithoutCancel(ctx), key, paymentID)
	o.log.Info().Str("payment_id", paymentID).Str("scope", key).Msg("waiting for qr payment")
	return qp, nil
}

func (o *paymentOrchestrator) ResumePending(ctx context.Context) ([]ResumeResult, error) {
	defer logging.TraceDuration(o.log, "PaymentOrchestrator.ResumePending")()

	pending, err := o.state.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ResumeResult, 0, len(pending))
	for _, p := range pending {
		res := ResumeResult{PaymentID: p.PaymentID}
		_, settled, err := o.watcher.CheckOnce(ctx, p.PaymentID)
		switch {
		case errors.Is(err, domain.ErrAuthExpired):
			o.expireSession(ctx)
			res.Err = err
			out = append(out, res)
			return out, err
		case err != nil:
			res.Err = err
		default:
			res.Settled = settled
			o.clearPending(ctx, p.PaymentID)
			res.Cleared = true
		}
		out = append(out, res)
	}
	return out, nil
}

func (o *paymentOrchestrator) InFlight() []model.PendingPayment {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.PendingPayment, 0, len(o.attempts))
	for _, p := range o.attempts {
		out = append(out, p)
	}
	return out
}

// Close stops every watch started by this orchestrator.
func (o *paymentOrchestrator) Close() {
	o.watcher.StopAll()
}

// acquire claims key for paymentID. A QR payment supersedes an earlier QR
// payment on the same resource; anything else is rejected.
func (o *paymentOrchestrator) acquire(key, paymentID string, qr *QRPayment) error {
	o.mu.Lock()
	cur, busy := o.inflight[key]
	if busy && (cur.qr == nil || qr == nil) {
		o.mu.Unlock()
		return domain.ErrPaymentInFlight
	}
	o.inflight[key] = &inflightEntry{paymentID: paymentID, qr: qr}
	o.mu.Unlock()

	if busy {
		cur.qr.stop()
	}
	return nil
}

func (o *paymentOrchestrator) release(key, paymentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.inflight[key]; ok && cur.paymentID == paymentID {
		delete(o.inflight, key)
	}
}

func (o *paymentOrchestrator) markPending(ctx context.Context, intent model.PaymentIntent, sandbox bool) error {
	p := model.PendingPayment{
		PaymentID: intent.PaymentID,
		PlanType:  intent.PlanType,
		ArticleID: intent.ArticleID,
		Sandbox:   sandbox,
		StartedAt: o.now(),
	}
	o.mu.Lock()
	o.attempts[p.PaymentID] = p
	o.mu.Unlock()
	if err := o.state.PutPending(ctx, p); err != nil {
		return fmt.Errorf("store pending payment: %w", err)
	}
	return nil
}

func (o *paymentOrchestrator) clearPending(ctx context.Context, paymentID string) {
	o.forget(paymentID)
	if err := o.state.DeletePending(context.WithoutCancel(ctx), paymentID); err != nil {
		o.log.Warn().Err(err).Str("payment_id", paymentID).Msg("failed to clear pending marker")
	}
}

func (o *paymentOrchestrator) forget(paymentID string) {
	o.mu.Lock()
	delete(o.attempts, paymentID)
	o.mu.Unlock()
}

// fail is the single exit for a broken attempt: the marker is dropped and an
// expired token also drops the stored user.
func (o *paymentOrchestrator) fail(ctx context.Context, paymentID string, err error) error {
	o.clearPending(ctx, paymentID)
	if errors.Is(err, domain.ErrAuthExpired) {
		o.expireSession(ctx)
	}
	return err
}

func (o *paymentOrchestrator) expireSession(ctx context.Context) {
	if err := o.state.ClearUser(context.WithoutCancel(ctx)); err != nil {
		o.log.Warn().Err(err).Msg("failed to clear expired session")
	}
}

// QRPayment is a payment the user completes by scanning a QR code on another
// device while this one watches for settlement.
type QRPayment struct {
	PaymentID string
	URL       string
	QR        *model.QRCode

	orch      *paymentOrchestrator
	watch     *Watch
	key       string
	plan      model.PlanType
	articleID *int64
	closeOnce sync.Once
}

// Wait returns once the backend reports the payment completed or the watch
// fails. The watch is released on every path.
func (q *QRPayment) Wait(ctx context.Context) (*PurchaseResult, error) {
	defer q.Close()

	view, err := q.watch.Wait(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			q.orch.expireSession(ctx)
		}
		if !errors.Is(err, ErrWatchStopped) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			q.orch.clearPending(ctx, q.PaymentID)
		}
		metrics.IncPurchase(outcomeLabel(err))
		return nil, err
	}
	q.orch.clearPending(ctx, q.PaymentID)

	completion := model.Completion{ArticleID: q.articleID}
	if view != nil {
		if view.ArticleID != nil {
			completion.ArticleID = view.ArticleID
		}
		completion.ExpirationAt = view.ExpirationAt
	}
	metrics.IncPurchase("completed")
	return &PurchaseResult{
		PaymentID:  q.PaymentID,
		Completion: completion,
		NavigateTo: navigationTarget(&completion),
	}, nil
}

// Close stops watching. The pending marker is kept: the other device may
// still pay, and ResumePending settles it later.
func (q *QRPayment) Close() {
	q.closeOnce.Do(func() {
		if q.watch != nil {
			q.watch.Stop()
		}
		q.orch.release(q.key, q.PaymentID)
	})
}

// stop is used when a newer QR payment replaces this one.
func (q *QRPayment) stop() {
	q.closeOnce.Do(func() {
		if q.watch != nil {
			q.watch.Stop()
		}
	})
}

func validatePurchase(req PurchaseRequest) error {
	if !req.Plan.Valid() {
		return domain.ErrInvalidArgument
	}
	if req.Plan == model.PlanCategorySlider && req.CategorySlug == "" && req.ArticleID == nil {
		return fmt.Errorf("%w: category slider needs a category", domain.ErrInvalidArgument)
	}
	return nil
}

// needsSlotCheck skips the pre-check for a category slider on an existing
// article without a known category; complete enforces capacity anyway.
func needsSlotCheck(req PurchaseRequest) bool {
	if !req.Plan.IsSlider() {
		return false
	}
	return req.Plan != model.PlanCategorySlider || req.CategorySlug != ""
}

func resourceKey(username string, req PurchaseRequest) string {
	if req.ArticleID != nil {
		return "article:" + strconv.FormatInt(*req.ArticleID, 10)
	}
	return "new:" + username + ":" + string(req.Plan)
}

func navigationTarget(c *model.Completion) string {
	if c != nil && c.ArticleID != nil {
		return editArticlePath + strconv.FormatInt(*c.ArticleID, 10)
	}
	return createArticlePath
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, domain.ErrIDMismatch):
		return "id_mismatch"
	case errors.Is(err, ErrWatchStopped), errors.Is(err, context.Canceled):
		return "abandoned"
	default:
		return "failed"
	}
}
