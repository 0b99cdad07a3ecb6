package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/repository"
)

var _ repository.PromotionRepository = (*promotionRepo)(nil)

type promotionRepo struct{ pool *pgxpool.Pool }

func NewPromotionRepo(pool *pgxpool.Pool) *promotionRepo {
	return &promotionRepo{pool: pool}
}

func (r *promotionRepo) FindByArticleAndType(ctx context.Context, tx repository.Tx, articleID int64, plan model.PlanType) (*model.ArticlePromotion, error) {
	q := `SELECT id, article_id, promote_type, expiration_at, cancelled FROM article_promotions WHERE article_id=$1 AND promote_type=$2`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", articleID, plan)
	if err != nil {
		return nil, err
	}
	p := &model.ArticlePromotion{}
	if err := row.Scan(&p.ID, &p.ArticleID, &p.PromoteType, &p.ExpirationAt, &p.Cancelled); err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

// Upsert reactivates a cancelled row with the new expiry.
func (r *promotionRepo) Upsert(ctx context.Context, tx repository.Tx, p *model.ArticlePromotion) error {
	const q = `
INSERT INTO article_promotions (article_id, promote_type, expiration_at, cancelled)
VALUES ($1,$2,$3,$4)
ON CONFLICT (article_id, promote_type) DO UPDATE SET
  expiration_at=EXCLUDED.expiration_at, cancelled=EXCLUDED.cancelled
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, p.ArticleID, p.PromoteType, p.ExpirationAt, p.Cancelled)
	if err != nil {
		return err
	}
	return writeErr(row.Scan(&p.ID))
}

func (r *promotionRepo) ListByArticle(ctx context.Context, tx repository.Tx, articleID int64) ([]*model.ArticlePromotion, error) {
	const q = `SELECT id, article_id, promote_type, expiration_at, cancelled FROM article_promotions WHERE article_id=$1 ORDER BY id;`
	rows, err := queryRows(ctx, r.pool, tx, q, articleID)
	if err != nil {
		return nil, writeErr(err)
	}
	defer rows.Close()

	var out []*model.ArticlePromotion
	for rows.Next() {
		p := &model.ArticlePromotion{}
		if err := rows.Scan(&p.ID, &p.ArticleID, &p.PromoteType, &p.ExpirationAt, &p.Cancelled); err != nil {
			return nil, scanErr(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, writeErr(err)
	}
	return out, nil
}

func (r *promotionRepo) CountActive(ctx context.Context, tx repository.Tx, plan model.PlanType, categorySlug string, now time.Time) (int, error) {
	const q = `
SELECT COUNT(*) FROM article_promotions p
  JOIN articles a ON a.id = p.article_id
 WHERE p.promote_type=$1 AND NOT p.cancelled
   AND a.status = 'PUBLISHED'
   AND (p.expiration_at IS NULL OR p.expiration_at > $2)
   AND ($3::text = '' OR a.category_slug = $3::text);`
	row, err := pickRow(ctx, r.pool, tx, q, plan, now, categorySlug)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, scanErr(err)
	}
	return n, nil
}

func (r *promotionRepo) Cancel(ctx context.Context, tx repository.Tx, articleID int64, plan model.PlanType) (int64, error) {
	const q = `UPDATE article_promotions SET cancelled=TRUE WHERE article_id=$1 AND promote_type=$2 AND NOT cancelled;`
	tag, err := execSQL(ctx, r.pool, tx, q, articleID, plan)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}
