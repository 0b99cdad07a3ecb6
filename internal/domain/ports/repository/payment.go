package repository

import (
	"context"
	"time"

	"rollingpi/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Save inserts a new payment; a duplicate payment id yields ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	// FindByPaymentID locks the row when called inside a transaction.
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Payment, error)
	Update(ctx context.Context, tx Tx, p *model.Payment) error
	// DeleteStaleCreated removes CREATED payments with no article older than before.
	DeleteStaleCreated(ctx context.Context, tx Tx, before time.Time) (int64, error)
}

// -----------------------------
// Articles & promotions
// -----------------------------

type ArticleRepository interface {
	Create(ctx context.Context, tx Tx, a *model.Article) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Article, error)
	// CategoryName resolves a category slug; ErrNotFound when unknown.
	CategoryName(ctx context.Context, tx Tx, slug string) (string, error)
}

type PromotionRepository interface {
	FindByArticleAndType(ctx context.Context, tx Tx, articleID int64, plan model.PlanType) (*model.ArticlePromotion, error)
	// Upsert keeps one row per (article, plan type).
	Upsert(ctx context.Context, tx Tx, p *model.ArticlePromotion) error
	ListByArticle(ctx context.Context, tx Tx, articleID int64) ([]*model.ArticlePromotion, error)
	// CountActive counts promotions of plan that occupy a slot at now. Only
	// published articles occupy one. An empty categorySlug counts across all
	// categories.
	CountActive(ctx context.Context, tx Tx, plan model.PlanType, categorySlug string, now time.Time) (int, error)
	Cancel(ctx context.Context, tx Tx, articleID int64, plan model.PlanType) (int64, error)
}
