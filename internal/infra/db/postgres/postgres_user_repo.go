package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

// Upsert keys on pi_id; a renamed Pi account keeps its row and role.
func (r *PostgresUserRepo) Upsert(ctx context.Context, tx repository.Tx, u *model.User) error {
	if u == nil || u.PiID == "" || u.Username == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO users (pi_id, username, role, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (pi_id) DO UPDATE SET username=EXCLUDED.username, updated_at=EXCLUDED.updated_at
RETURNING id, role, created_at;`
	now := time.Now()
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	row, err := pickRow(ctx, r.pool, tx, q, u.PiID, u.Username, u.Role, now, now)
	if err != nil {
		return err
	}
	if err := row.Scan(&u.ID, &u.Role, &u.CreatedAt); err != nil {
		return writeErr(err)
	}
	u.UpdatedAt = now
	return nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT id, pi_id, username, role, created_at, updated_at FROM users WHERE id=$1;`, id)
}

func (r *PostgresUserRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	return r.findOne(ctx, tx, `SELECT id, pi_id, username, role, created_at, updated_at FROM users WHERE username=$1;`, username)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.PiID, &u.Username, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &u, nil
}
