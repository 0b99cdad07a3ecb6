package repository

import (
	"context"
	"time"

	"rollingpi/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Upsert inserts or refreshes by PiID and fills in ID and Role.
	Upsert(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.User, error)
	FindByUsername(ctx context.Context, tx Tx, username string) (*model.User, error)
}

// -----------------------------
// Session links
// -----------------------------

type SessionLinkRepository interface {
	Save(ctx context.Context, tx Tx, l *model.SessionLink) error
	FindByCode(ctx context.Context, tx Tx, code string) (*model.SessionLink, error)
	// MarkUsed binds the code to userID once; a second call yields
	// ErrCodeAlreadyUsed.
	MarkUsed(ctx context.Context, tx Tx, code string, userID int64, at time.Time) error
	// MarkClaimed records that the initiator collected the session; it
	// reports false when the link was already claimed.
	MarkClaimed(ctx context.Context, tx Tx, code string, at time.Time) (bool, error)
	DeleteOlderThan(ctx context.Context, tx Tx, before time.Time) (int64, error)
}
