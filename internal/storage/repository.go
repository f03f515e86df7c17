// Package storage is the SQLite credential and expense store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expenses/internal/core"

	_ "modernc.org/sqlite"
)

const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + dsnPragmas

	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, email, password_hash, refresh_token_hash, refresh_token_expires_at, created_at, updated_at`

func scanUser(row rowScanner) (*core.User, error) {
	var (
		u                         core.User
		expires, created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.RefreshTokenHash, &expires, &created, &updated); err != nil {
		return nil, err
	}
	if expires != 0 {
		u.RefreshTokenExpiresAt = fromMillis(expires)
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.RefreshTokenHash,
		optionalMillis(u.RefreshTokenExpiresAt), toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	if err != nil {
		if taken := uniqueViolation(err); taken != nil {
			return taken
		}
		return fmt.Errorf("create user: %w", err)
	}
	slog.DebugContext(ctx, "User saved to SQLite", "user_id", u.ID)
	return nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepository) getUser(ctx context.Context, query string, arg string) (*core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`, username)
}

func (r *SQLiteRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = ?)`, email)
}

func (r *SQLiteRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return found, nil
}

func (r *SQLiteRepository) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = ?, refresh_token_expires_at = ?, updated_at = ? WHERE id = ?`,
		hash, optionalMillis(expiresAt), toMillis(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = ?, refresh_token_expires_at = ?, updated_at = ?
		 WHERE id = ? AND refresh_token_hash = ? AND refresh_token_hash != ''`,
		newHash, optionalMillis(expiresAt), toMillis(time.Now()), userID, oldHash)
	if err != nil {
		return false, fmt.Errorf("swap refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap refresh token: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) PurgeExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = '', refresh_token_expires_at = 0
		 WHERE refresh_token_hash != '' AND refresh_token_expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// DeleteUserWithExpenses removes the user and every expense it owns in one
// transaction. It returns the number of expenses removed.
func (r *SQLiteRepository) DeleteUserWithExpenses(ctx context.Context, userID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete account: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user expenses: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete user expenses: %w", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	if err := requireRow(res); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete account: %w", err)
	}
	slog.InfoContext(ctx, "User deleted from SQLite", "user_id", userID, "expenses_removed", removed)
	return removed, nil
}

const expenseColumns = `id, user_id, amount, category, custom_category, description, date, created_at, updated_at`

func scanExpense(row rowScanner) (*core.Expense, error) {
	var (
		e                      core.Expense
		amount, category       string
		date, created, updated int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &amount, &category, &e.CustomCategory, &e.Description, &date, &created, &updated); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	e.Amount = d
	e.Category = core.Category(category)
	e.Date = fromMillis(date)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e *core.Expense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount.String(), string(e.Category), e.CustomCategory, e.Description,
		toMillis(e.Date), toMillis(e.CreatedAt), toMillis(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount", e.Amount.String(),
		"category", e.Category)
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (*core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e *core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount = ?, category = ?, custom_category = ?, description = ?, date = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		e.Amount.String(), string(e.Category), e.CustomCategory, e.Description,
		toMillis(e.Date), toMillis(e.UpdatedAt), e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) DeleteExpensesByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete expenses by user: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOrphanExpenses removes expenses whose owner no longer exists.
func (r *SQLiteRepository) DeleteOrphanExpenses(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE NOT EXISTS (SELECT 1 FROM users WHERE users.id = expenses.user_id)`)
	if err != nil {
		return 0, fmt.Errorf("delete orphan expenses: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// uniqueViolation maps SQLite's "UNIQUE constraint failed: users.<col>" to
// the matching sentinel.
func uniqueViolation(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "users.email"):
		return fmt.Errorf("create user: %w", core.ErrEmailTaken)
	case strings.Contains(msg, "users.username"):
		return fmt.Errorf("create user: %w", core.ErrUsernameTaken)
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func optionalMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return toMillis(t)
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
