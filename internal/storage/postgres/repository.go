// Package postgres is the PostgreSQL credential and expense store, built on
// a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"expenses/internal/core"
)

const uniqueViolationCode = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, applies migrations and returns a ready
// repository.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

const userColumns = `id, username, email, password_hash, refresh_token_hash, refresh_token_expires_at, created_at, updated_at`

func scanUser(row pgx.Row) (*core.User, error) {
	var (
		u       core.User
		expires *time.Time
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.RefreshTokenHash, &expires, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if expires != nil {
		u.RefreshTokenExpiresAt = expires.UTC()
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (r *Repository) CreateUser(ctx context.Context, u *core.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		u.ID, u.Username, u.Email, u.PasswordHash, u.RefreshTokenHash,
		nullTime(u.RefreshTokenExpiresAt), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return fmt.Errorf("create user: %w", core.ErrEmailTaken)
			}
			return fmt.Errorf("create user: %w", core.ErrUsernameTaken)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *Repository) getUser(ctx context.Context, query, arg string) (*core.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

func (r *Repository) exists(ctx context.Context, query, arg string) (bool, error) {
	var found bool
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return found, nil
}

func (r *Repository) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token_hash = $1, refresh_token_expires_at = $2, updated_at = now() WHERE id = $3`,
		hash, nullTime(expiresAt), userID)
	if err != nil {
		return fmt.Errorf("failed to set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token_hash = $1, refresh_token_expires_at = $2, updated_at = now()
		WHERE id = $3 AND refresh_token_hash = $4 AND refresh_token_hash <> ''
	`, newHash, nullTime(expiresAt), userID, oldHash)
	if err != nil {
		return false, fmt.Errorf("failed to swap refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) PurgeExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token_hash = '', refresh_token_expires_at = NULL
		WHERE refresh_token_hash <> '' AND refresh_token_expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteUserWithExpenses(ctx context.Context, userID string) (int64, error) {
	var removed int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM expenses WHERE user_id = $1`, userID)
		if err != nil {
			return fmt.Errorf("failed to delete user expenses: %w", err)
		}
		removed = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

const expenseColumns = `id, user_id, amount::text, category, custom_category, description, date, created_at, updated_at`

func scanExpense(row pgx.Row) (*core.Expense, error) {
	var (
		e                core.Expense
		amount, category string
	)
	if err := row.Scan(&e.ID, &e.UserID, &amount, &category, &e.CustomCategory, &e.Description, &e.Date, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	e.Amount = d
	e.Category = core.Category(category)
	e.Date = e.Date.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (r *Repository) CreateExpense(ctx context.Context, e *core.Expense) error {
	query := `
		INSERT INTO expenses (id, user_id, amount, category, custom_category, description, date, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ID, e.UserID, e.Amount.String(), string(e.Category), e.CustomCategory, e.Description,
		e.Date, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

func (r *Repository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	return out, nil
}

func (r *Repository) GetExpense(ctx context.Context, userID, id string) (*core.Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, e *core.Expense) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE expenses
		SET amount = $1::numeric, category = $2, custom_category = $3, description = $4, date = $5, updated_at = $6
		WHERE id = $7 AND user_id = $8
	`, e.Amount.String(), string(e.Category), e.CustomCategory, e.Description, e.Date, e.UpdatedAt, e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteExpensesByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expenses: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteOrphanExpenses(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM expenses e
		WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = e.user_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan expenses: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
