// Package memory is an in-process store for local runs and tests. Nothing
// survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"expenses/internal/core"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]core.User
	expenses map[string]core.Expense
}

func New() *Store {
	return &Store{
		users:    make(map[string]core.User),
		expenses: make(map[string]core.Expense),
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("create user: %w", core.ErrUsernameTaken)
		}
		if existing.Email == u.Email {
			return fmt.Errorf("create user: %w", core.ErrEmailTaken)
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SetRefreshToken(_ context.Context, userID, hash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.RefreshTokenHash = hash
	u.RefreshTokenExpiresAt = expiresAt
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) SwapRefreshToken(_ context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.RefreshTokenHash == "" || u.RefreshTokenHash != oldHash {
		return false, nil
	}
	u.RefreshTokenHash = newHash
	u.RefreshTokenExpiresAt = expiresAt
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return true, nil
}

func (s *Store) PurgeExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, u := range s.users {
		if u.RefreshTokenHash != "" && u.RefreshTokenExpiresAt.Before(now) {
			u.RefreshTokenHash = ""
			u.RefreshTokenExpiresAt = time.Time{}
			s.users[id] = u
			n++
		}
	}
	return n, nil
}

// DeleteUserWithExpenses removes the user and its expenses under one lock.
func (s *Store) DeleteUserWithExpenses(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return 0, core.ErrNotFound
	}
	removed := s.deleteExpensesLocked(userID)
	delete(s.users, userID)
	return removed, nil
}

func (s *Store) CreateExpense(_ context.Context, e *core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.expenses[e.ID]; dup {
		return fmt.Errorf("create expense: duplicate id %s", e.ID)
	}
	s.expenses[e.ID] = *e
	return nil
}

func (s *Store) ListExpenses(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	out := []core.Expense{}
	for _, e := range s.expenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (*core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return nil, core.ErrNotFound
	}
	return &e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e *core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[e.ID]
	if !ok || cur.UserID != e.UserID {
		return core.ErrNotFound
	}
	updated := *e
	updated.CreatedAt = cur.CreatedAt
	s.expenses[e.ID] = updated
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) DeleteExpensesByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteExpensesLocked(userID), nil
}

func (s *Store) DeleteOrphanExpenses(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.expenses {
		if _, ok := s.users[e.UserID]; !ok {
			delete(s.expenses, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) deleteExpensesLocked(userID string) int64 {
	var n int64
	for id, e := range s.expenses {
		if e.UserID == userID {
			delete(s.expenses, id)
			n++
		}
	}
	return n
}
