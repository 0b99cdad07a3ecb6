package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, payment_id, username, plan_type, txid, status, sandbox, article_id, created_at, completed_at, expiration_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (payment_id, username, plan_type, txid, status, sandbox, article_id, created_at, completed_at, expiration_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id;`
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	row, err := pickRow(ctx, r.pool, tx, q, p.PaymentID, p.Username, p.PlanType, p.Txid, p.Status, p.Sandbox, p.ArticleID, p.CreatedAt, p.CompletedAt, p.ExpirationAt)
	if err != nil {
		return err
	}
	return writeErr(row.Scan(&p.ID))
}

func (r *paymentRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", paymentID)
	if err != nil {
		return nil, err
	}

	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.PaymentID, &p.Username, &p.PlanType, &p.Txid, &p.Status, &p.Sandbox, &p.ArticleID, &p.CreatedAt, &p.CompletedAt, &p.ExpirationAt); err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

func (r *paymentRepo) Update(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
UPDATE payments SET txid=$2, status=$3, article_id=$4, completed_at=$5, expiration_at=$6
 WHERE payment_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, p.PaymentID, p.Txid, p.Status, p.ArticleID, p.CompletedAt, p.ExpirationAt)
	return writeErr(err)
}

func (r *paymentRepo) DeleteStaleCreated(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	const q = `DELETE FROM payments WHERE status='CREATED' AND article_id IS NULL AND created_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, before)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}
