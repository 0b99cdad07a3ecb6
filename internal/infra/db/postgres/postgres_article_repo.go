package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/repository"
)

var _ repository.ArticleRepository = (*articleRepo)(nil)

type articleRepo struct{ pool *pgxpool.Pool }

func NewArticleRepo(pool *pgxpool.Pool) *articleRepo {
	return &articleRepo{pool: pool}
}

func (r *articleRepo) Create(ctx context.Context, tx repository.Tx, a *model.Article) error {
	const q = `
INSERT INTO articles (created_by, status, category_slug, created_at)
VALUES ($1,$2,$3,$4) RETURNING id;`
	if a.Status == "" {
		a.Status = model.ArticleDraft
	}
	if a.CategorySlug == "" {
		a.CategorySlug = model.DefaultCategorySlug
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	row, err := pickRow(ctx, r.pool, tx, q, a.CreatedBy, a.Status, a.CategorySlug, a.CreatedAt)
	if err != nil {
		return err
	}
	return writeErr(row.Scan(&a.ID))
}

func (r *articleRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Article, error) {
	const q = `SELECT id, created_by, status, category_slug, created_at FROM articles WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	a := &model.Article{}
	if err := row.Scan(&a.ID, &a.CreatedBy, &a.Status, &a.CategorySlug, &a.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return a, nil
}

func (r *articleRepo) CategoryName(ctx context.Context, tx repository.Tx, slug string) (string, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT name FROM categories WHERE slug=$1;`, slug)
	if err != nil {
		return "", err
	}
	var name string
	if err := row.Scan(&name); err != nil {
		return "", scanErr(err)
	}
	return name, nil
}
