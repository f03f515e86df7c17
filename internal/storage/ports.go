package storage

import (
	"context"
	"time"

	"expenses/internal/core"
)

// Ports implemented by every store (SQLite, Postgres, memory). Missing rows
// are reported as core.ErrNotFound; expense lookups only match rows owned by
// the given user.
type (
	UserStore interface {
		CreateUser(ctx context.Context, u *core.User) error
		GetUserByID(ctx context.Context, id string) (*core.User, error)
		GetUserByEmail(ctx context.Context, email string) (*core.User, error)
		UsernameExists(ctx context.Context, username string) (bool, error)
		EmailExists(ctx context.Context, email string) (bool, error)
		SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
		SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error)
		PurgeExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
		// DeleteUserWithExpenses is atomic: either the user and all of its
		// expenses are gone, or nothing changed.
		DeleteUserWithExpenses(ctx context.Context, userID string) (int64, error)
	}

	ExpenseStore interface {
		CreateExpense(ctx context.Context, e *core.Expense) error
		// ListExpenses orders by date, newest first.
		ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)
		GetExpense(ctx context.Context, userID, id string) (*core.Expense, error)
		UpdateExpense(ctx context.Context, e *core.Expense) error
		DeleteExpense(ctx context.Context, userID, id string) error
		DeleteExpensesByUser(ctx context.Context, userID string) (int64, error)
		DeleteOrphanExpenses(ctx context.Context) (int64, error)
	}

	Repository interface {
		UserStore
		ExpenseStore
		Ping(ctx context.Context) error
		Close() error
	}
)

var _ Repository = (*SQLiteRepository)(nil)
