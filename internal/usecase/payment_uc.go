// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/domain/ports/repository"
	"rollingpi/internal/infra/logging"
	"rollingpi/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

const slotLockTTL = 10 * time.Second

// CreatePaymentInput is the backend side of the create call.
type CreatePaymentInput struct {
	PaymentID    string
	PlanType     model.PlanType
	Username     string
	ArticleID    *int64
	CategorySlug string
	Sandbox      bool
}

// PaymentUseCase is the backend half of the payment relay.
type PaymentUseCase interface {
	Create(ctx context.Context, in CreatePaymentInput) (*model.CreatedPayment, error)
	// Approve forwards the wallet's approval to the Pi Platform (skipped in
	// sandbox) and moves the payment to APPROVED.
	Approve(ctx context.Context, paymentID string, plan model.PlanType) error
	// Complete records the txid and applies the plan to an article.
	Complete(ctx context.Context, req adapter.CompleteRequest) (*model.Completion, error)
	// ByPaymentID serves only COMPLETED payments owned by username; anything
	// else is ErrNotFound. An empty username skips the owner check.
	ByPaymentID(ctx context.Context, paymentID, username string) (*model.PaymentView, error)
	Slots(ctx context.Context, plan model.PlanType, categorySlug string) (*model.SlotAvailability, error)
	ActivePlans(ctx context.Context, articleID int64) ([]model.ActivePlan, error)
	// Activate applies a plan without a payment (admin).
	Activate(ctx context.Context, req adapter.ActivateRequest) (*model.Completion, error)
	CancelPlan(ctx context.Context, articleID int64, plan model.PlanType) error
	// SweepStale deletes CREATED payments without an article older than before.
	SweepStale(ctx context.Context, before time.Time) (int64, error)
}

type paymentUC struct {
	payments     repository.PaymentRepository
	articles     repository.ArticleRepository
	promotions   repository.PromotionRepository
	tm           repository.TransactionManager
	pi           adapter.PiPlatform
	locker       adapter.Locker // optional
	allowSandbox bool
	log          *zerolog.Logger

	now func() time.Time
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	articles repository.ArticleRepository,
	promotions repository.PromotionRepository,
	tm repository.TransactionManager,
	pi adapter.PiPlatform,
	locker adapter.Locker,
	allowSandbox bool,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "PaymentUseCase").Logger()
	return &paymentUC{
		payments:     payments,
		articles:     articles,
		promotions:   promotions,
		tm:           tm,
		pi:           pi,
		locker:       locker,
		allowSandbox: allowSandbox,
		log:          &l,
		now:          time.Now,
	}
}

func (u *paymentUC) Create(ctx context.Context, in CreatePaymentInput) (*model.CreatedPayment, error) {
	log := logging.With(logging.WithPaymentID(ctx, in.PaymentID), u.log)
	defer logging.TraceDuration(log, "PaymentUseCase.Create")()

	if in.PaymentID == "" || in.Username == "" || !in.PlanType.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if in.Sandbox && !u.allowSandbox {
		return nil, fmt.Errorf("%w: sandbox payments are disabled", domain.ErrInvalidArgument)
	}
	if in.ArticleID != nil {
		if _, err := u.articles.FindByID(ctx, repository.NoTX, *in.ArticleID); err != nil {
			return nil, err
		}
	}

	p := &model.Payment{
		PaymentID: in.PaymentID,
		Username:  in.Username,
		PlanType:  in.PlanType,
		Status:    model.PaymentStatusCreated,
		Sandbox:   in.Sandbox,
		ArticleID: in.ArticleID,
		CreatedAt: u.now(),
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentStatusCreated))

	meta := map[string]interface{}{"planType": in.PlanType}
	if in.ArticleID != nil {
		meta["articleId"] = *in.ArticleID
	}
	if in.CategorySlug != "" {
		meta["categorySlug"] = in.CategorySlug
	}
	log.Info().Str("plan", string(in.PlanType)).Bool("sandbox", in.Sandbox).Msg("payment created")
	return &model.CreatedPayment{
		PaymentID: in.PaymentID,
		Amount:    in.PlanType.PriceInPi(),
		Memo:      "Payment for plan: " + string(in.PlanType),
		Metadata:  meta,
	}, nil
}

func (u *paymentUC) Approve(ctx context.Context, paymentID string, plan model.PlanType) error {
	log := logging.With(logging.WithPaymentID(ctx, paymentID), u.log)
	defer logging.TraceDuration(log, "PaymentUseCase.Approve")()

	if paymentID == "" {
		return domain.ErrInvalidArgument
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByPaymentID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if plan != "" && plan != p.PlanType {
			return fmt.Errorf("%w: plan %s does not match payment", domain.ErrInvalidArgument, plan)
		}
		if p.Status == model.PaymentStatusApproved {
			return nil
		}
		if !p.CanTransition(model.PaymentStatusApproved) {
			return fmt.Errorf("%w: %s -> APPROVED", domain.ErrInvalidState, p.Status)
		}
		if !p.Sandbox {
			if err := u.pi.Approve(ctx, paymentID); err != nil {
				return err
			}
		}
		p.Status = model.PaymentStatusApproved
		if err := u.payments.Update(ctx, tx, p); err != nil {
			return err
		}
		metrics.IncPayment(string(model.PaymentStatusApproved))
		log.Info().Msg("payment approved")
		return nil
	})
}

func (u *paymentUC) Complete(ctx context.Context, req adapter.CompleteRequest) (*model.Completion, error) {
	log := logging.With(logging.WithPaymentID(ctx, req.PaymentID), u.log)
	defer logging.TraceDuration(log, "PaymentUseCase.Complete")()

	if req.PaymentID == "" || req.Txid == "" {
		return nil, domain.ErrInvalidArgument
	}
	p, err := u.payments.FindByPaymentID(ctx, repository.NoTX, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PaymentStatusCompleted {
		return &model.Completion{ArticleID: p.ArticleID, ExpirationAt: p.ExpirationAt}, nil
	}
	if p.Status != model.PaymentStatusApproved {
		return nil, fmt.Errorf("%w: %s -> COMPLETED", domain.ErrInvalidState, p.Status)
	}

	articleID := req.ArticleID
	if articleID == nil {
		articleID = p.ArticleID
	}
	slug := model.DefaultCategorySlug
	if articleID != nil {
		a, err := u.articles.FindByID(ctx, repository.NoTX, *articleID)
		if err != nil {
			return nil, err
		}
		slug = a.CategorySlug
	}

	unlock, err := u.lockSlots(ctx, p.PlanType, slug)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := u.checkCapacity(ctx, p.PlanType, slug, articleID); err != nil {
		return nil, err
	}

	if !p.Sandbox {
		if err := u.pi.Complete(ctx, p.PaymentID, req.Txid); err != nil {
			return nil, err
		}
	}

	var out model.Completion
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.payments.FindByPaymentID(ctx, tx, req.PaymentID)
		if err != nil {
			return err
		}
		if cur.Status == model.PaymentStatusCompleted {
			out = model.Completion{ArticleID: cur.ArticleID, ExpirationAt: cur.ExpirationAt}
			return nil
		}
		id, err := u.ensureArticle(ctx, tx, articleID, cur.Username)
		if err != nil {
			return err
		}
		exp, err := u.applyPlan(ctx, tx, id, cur.PlanType)
		if err != nil {
			return err
		}
		now := u.now()
		txid := req.Txid
		cur.Status = model.PaymentStatusCompleted
		cur.Txid = &txid
		cur.ArticleID = &id
		cur.CompletedAt = &now
		cur.ExpirationAt = exp
		if err := u.payments.Update(ctx, tx, cur); err != nil {
			return err
		}
		out = model.Completion{ArticleID: &id, ExpirationAt: exp}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentStatusCompleted))
	ev := log.Info().Int64("article_id", *out.ArticleID)
	if out.ExpirationAt != nil {
		ev = ev.Time("expires_at", *out.ExpirationAt)
	}
	ev.Msg("payment completed")
	return &out, nil
}

func (u *paymentUC) ByPaymentID(ctx context.Context, paymentID, username string) (*model.PaymentView, error) {
	p, err := u.payments.FindByPaymentID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentStatusCompleted {
		return nil, domain.ErrNotFound
	}
	if username != "" && p.Username != username {
		return nil, domain.ErrNotFound
	}
	return &model.PaymentView{
		PaymentID:    p.PaymentID,
		PlanType:     p.PlanType,
		Status:       p.Status,
		ArticleID:    p.ArticleID,
		ExpirationAt: p.ExpirationAt,
	}, nil
}

func (u *paymentUC) Slots(ctx context.Context, plan model.PlanType, categorySlug string) (*model.SlotAvailability, error) {
	if !plan.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	var categoryName *string
	scope := ""
	if plan == model.PlanCategorySlider {
		if categorySlug == "" {
			return nil, fmt.Errorf("%w: categorySlug is required", domain.ErrInvalidArgument)
		}
		name, err := u.articles.CategoryName(ctx, repository.NoTX, categorySlug)
		if err != nil {
			return nil, err
		}
		categoryName = &name
		scope = categorySlug
	}

	used, err := u.promotions.CountActive(ctx, repository.NoTX, plan, scope, u.now())
	if err != nil {
		return nil, err
	}
	total := plan.TotalSlots()
	remaining := total - used
	if remaining < 0 {
		remaining = 0
	}
	return &model.SlotAvailability{
		Available:      remaining > 0,
		UsedSlots:      used,
		RemainingSlots: remaining,
		TotalSlots:     total,
		CategoryName:   categoryName,
		Price:          plan.PriceInPi(),
	}, nil
}

// ActivePlans lists promotions that have not expired, cancelled ones included.
func (u *paymentUC) ActivePlans(ctx context.Context, articleID int64) ([]model.ActivePlan, error) {
	promos, err := u.promotions.ListByArticle(ctx, repository.NoTX, articleID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	out := make([]model.ActivePlan, 0, len(promos))
	for _, p := range promos {
		if p.ExpirationAt != nil && !p.ExpirationAt.After(now) {
			continue
		}
		out = append(out, p.View())
	}
	return out, nil
}

func (u *paymentUC) Activate(ctx context.Context, req adapter.ActivateRequest) (*model.Completion, error) {
	defer logging.TraceDuration(u.log, "PaymentUseCase.Activate")()

	if req.ArticleID == nil || *req.ArticleID == 0 || !req.PlanType.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	a, err := u.articles.FindByID(ctx, repository.NoTX, *req.ArticleID)
	if err != nil {
		return nil, err
	}
	unlock, err := u.lockSlots(ctx, req.PlanType, a.CategorySlug)
	if err != nil {
		return nil, err
	}
	defer unlock()
	articleID := a.ID
	if err := u.checkCapacity(ctx, req.PlanType, a.CategorySlug, &articleID); err != nil {
		return nil, err
	}

	var exp *time.Time
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if exp, err = u.applyPlan(ctx, tx, articleID, req.PlanType); err != nil {
			return err
		}
		now := u.now()
		username := req.Username
		if username == "" {
			username = a.CreatedBy
		}
		return u.payments.Save(ctx, tx, &model.Payment{
			PaymentID:    "manual-" + strconv.FormatInt(now.UnixMilli(), 10),
			Username:     username,
			PlanType:     req.PlanType,
			Status:       model.PaymentStatusCompleted,
			ArticleID:    &articleID,
			CreatedAt:    now,
			CompletedAt:  &now,
			ExpirationAt: exp,
		})
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Int64("article_id", articleID).Str("plan", string(req.PlanType)).Msg("plan activated manually")
	return &model.Completion{ArticleID: &articleID, ExpirationAt: exp}, nil
}

func (u *paymentUC) CancelPlan(ctx context.Context, articleID int64, plan model.PlanType) error {
	if articleID == 0 || !plan.Valid() {
		return domain.ErrInvalidArgument
	}
	n, err := u.promotions.Cancel(ctx, repository.NoTX, articleID, plan)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	u.log.Info().Int64("article_id", articleID).Str("plan", string(plan)).Msg("plan cancelled")
	return nil
}

func (u *paymentUC) SweepStale(ctx context.Context, before time.Time) (int64, error) {
	return u.payments.DeleteStaleCreated(ctx, repository.NoTX, before)
}

// lockSlots serialises capacity checks for slider scopes. STANDARD is
// unlimited and never locks.
func (u *paymentUC) lockSlots(ctx context.Context, plan model.PlanType, slug string) (func(), error) {
	if !plan.IsSlider() || u.locker == nil {
		return func() {}, nil
	}
	key := slotLockKey(plan, slug)
	token, err := u.locker.TryLock(ctx, key, slotLockTTL)
	if err != nil {
		return nil, fmt.Errorf("slot lock: %w", err)
	}
	return func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			u.log.Warn().Err(err).Str("key", key).Msg("slot unlock failed")
		}
	}, nil
}

func slotLockKey(plan model.PlanType, slug string) string {
	if plan != model.PlanCategorySlider || slug == "" {
		return "lock:slots:" + string(plan)
	}
	return "lock:slots:" + string(plan) + ":" + slug
}

// checkCapacity rejects a slider purchase when the scope is full. An
// article renewing a promotion it already holds keeps its slot.
func (u *paymentUC) checkCapacity(ctx context.Context, plan model.PlanType, slug string, articleID *int64) error {
	if !plan.IsSlider() {
		return nil
	}
	now := u.now()
	if articleID != nil {
		prev, err := u.promotions.FindByArticleAndType(ctx, repository.NoTX, *articleID, plan)
		if err == nil && prev.ActiveAt(now) {
			return nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	scope := ""
	if plan == model.PlanCategorySlider {
		scope = slug
	}
	used, err := u.promotions.CountActive(ctx, repository.NoTX, plan, scope, now)
	if err != nil {
		return err
	}
	if used >= plan.TotalSlots() {
		metrics.IncSlotRejection(string(plan))
		return domain.ErrNoSlotsAvailable
	}
	return nil
}

// ensureArticle returns articleID, or creates a draft in the default
// category owned by username.
func (u *paymentUC) ensureArticle(ctx context.Context, tx repository.Tx, articleID *int64, username string) (int64, error) {
	if articleID != nil {
		return *articleID, nil
	}
	a := &model.Article{
		CreatedBy:    username,
		Status:       model.ArticleDraft,
		CategorySlug: model.DefaultCategorySlug,
		CreatedAt:    u.now(),
	}
	if err := u.articles.Create(ctx, tx, a); err != nil {
		return 0, err
	}
	return a.ID, nil
}

// applyPlan extends slider plans from the later of now and the previous
// live expiry. STANDARD gets no expiry.
func (u *paymentUC) applyPlan(ctx context.Context, tx repository.Tx, articleID int64, plan model.PlanType) (*time.Time, error) {
	var exp *time.Time
	if plan.Expires() {
		var prevExp *time.Time
		prev, err := u.promotions.FindByArticleAndType(ctx, tx, articleID, plan)
		switch {
		case err == nil:
			if !prev.Cancelled {
				prevExp = prev.ExpirationAt
			}
		case errors.Is(err, domain.ErrNotFound):
		default:
			return nil, err
		}
		next := model.NextExpiration(u.now(), prevExp)
		exp = &next
	}

	promo := &model.ArticlePromotion{ArticleID: articleID, PromoteType: plan, ExpirationAt: exp}
	if err := u.promotions.Upsert(ctx, tx, promo); err != nil {
		return nil, err
	}
	return exp, nil
}
