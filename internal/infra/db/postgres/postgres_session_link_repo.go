package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/repository"
)

var _ repository.SessionLinkRepository = (*sessionLinkRepo)(nil)

type sessionLinkRepo struct{ pool *pgxpool.Pool }

func NewSessionLinkRepo(pool *pgxpool.Pool) *sessionLinkRepo {
	return &sessionLinkRepo{pool: pool}
}

func (r *sessionLinkRepo) Save(ctx context.Context, tx repository.Tx, l *model.SessionLink) error {
	const q = `INSERT INTO session_links (code, created_at) VALUES ($1,$2) RETURNING id;`
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	row, err := pickRow(ctx, r.pool, tx, q, l.Code, l.CreatedAt)
	if err != nil {
		return err
	}
	return writeErr(row.Scan(&l.ID))
}

func (r *sessionLinkRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.SessionLink, error) {
	q := `SELECT id, code, user_id, used_at, claimed_at, created_at FROM session_links WHERE code=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", code)
	if err != nil {
		return nil, err
	}
	l := &model.SessionLink{}
	if err := row.Scan(&l.ID, &l.Code, &l.UserID, &l.UsedAt, &l.ClaimedAt, &l.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return l, nil
}

// MarkUsed is a conditional update so concurrent syncs cannot both win.
func (r *sessionLinkRepo) MarkUsed(ctx context.Context, tx repository.Tx, code string, userID int64, at time.Time) error {
	const q = `UPDATE session_links SET user_id=$2, used_at=$3 WHERE code=$1 AND used_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, code, userID, at)
	if err != nil {
		return writeErr(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByCode(ctx, tx, code); err != nil {
			return err
		}
		return domain.ErrCodeAlreadyUsed
	}
	return nil
}

func (r *sessionLinkRepo) MarkClaimed(ctx context.Context, tx repository.Tx, code string, at time.Time) (bool, error) {
	const q = `UPDATE session_links SET claimed_at=$2 WHERE code=$1 AND used_at IS NOT NULL AND claimed_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, code, at)
	if err != nil {
		return false, writeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *sessionLinkRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM session_links WHERE created_at < $1;`, before)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}
