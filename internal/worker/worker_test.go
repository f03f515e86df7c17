package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/storage/memory"
)

func testLogger() *log.Logger {
	return log.New(log.Config{Level: log.ParseLevel("error"), Output: io.Discard})
}

func seed(t *testing.T, store *memory.Store, userID string, withUser bool, expenses int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if withUser {
		require.NoError(t, store.CreateUser(ctx, &core.User{
			ID: userID, Username: userID, Email: userID + "@example.com", PasswordHash: "x",
			CreatedAt: now, UpdatedAt: now,
		}))
	}
	for i := 0; i < expenses; i++ {
		require.NoError(t, store.CreateExpense(ctx, &core.Expense{
			ID:        userID + "-e" + string(rune('a'+i)),
			UserID:    userID,
			Amount:    decimal.NewFromInt(int64(i + 1)),
			Category:  core.CategoryFood,
			Date:      now,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}
}

func TestHandleEvent_UserDeleted(t *testing.T) {
	store := memory.New()
	seed(t, store, "gone", false, 2)
	seed(t, store, "kept", true, 1)
	w := NewMaintenanceWorker(store, testLogger())
	ctx := context.Background()

	require.NoError(t, w.HandleEvent(ctx, amqp.NewEvent(amqp.EventUserDeleted, "gone", "")))
	left, err := store.ListExpenses(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, left)

	// Redelivery is harmless.
	require.NoError(t, w.HandleEvent(ctx, amqp.NewEvent(amqp.EventUserDeleted, "gone", "")))

	kept, err := store.ListExpenses(ctx, "kept")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestHandleEvent_OtherEventsChangeNothing(t *testing.T) {
	store := memory.New()
	seed(t, store, "u1", true, 1)
	w := NewMaintenanceWorker(store, testLogger())

	for _, typ := range []amqp.EventType{amqp.EventUserRegistered, amqp.EventExpenseCreated, amqp.EventExpenseUpdated, amqp.EventExpenseDeleted} {
		require.NoError(t, w.HandleEvent(context.Background(), amqp.NewEvent(typ, "u1", "u1-ea")))
	}
	list, err := store.ListExpenses(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type failingStore struct{}

func (failingStore) PurgeExpiredRefreshTokens(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}
func (failingStore) DeleteExpensesByUser(context.Context, string) (int64, error) {
	return 0, errors.New("disk full")
}
func (failingStore) DeleteOrphanExpenses(context.Context) (int64, error) {
	return 0, errors.New("disk full")
}

func TestHandleEvent_StoreFailureIsReturned(t *testing.T) {
	w := NewMaintenanceWorker(failingStore{}, testLogger())

	err := w.HandleEvent(context.Background(), amqp.NewEvent(amqp.EventUserDeleted, "u1", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Error(t, w.StartupCheck(context.Background()))
}

func TestPurgeExpiredRefreshTokens(t *testing.T) {
	store := memory.New()
	seed(t, store, "stale", true, 0)
	seed(t, store, "fresh", true, 0)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetRefreshToken(ctx, "stale", "h1", now.Add(-time.Minute)))
	require.NoError(t, store.SetRefreshToken(ctx, "fresh", "h2", now.Add(time.Hour)))

	w := NewMaintenanceWorker(store, testLogger())
	w.now = func() time.Time { return now }
	require.NoError(t, w.PurgeExpiredRefreshTokens(ctx))

	stale, err := store.GetUserByID(ctx, "stale")
	require.NoError(t, err)
	assert.Empty(t, stale.RefreshTokenHash)
	fresh, err := store.GetUserByID(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "h2", fresh.RefreshTokenHash)
}

func TestStartupCheckPurgesOrphans(t *testing.T) {
	store := memory.New()
	seed(t, store, "orphan", false, 3)
	seed(t, store, "owner", true, 2)
	w := NewMaintenanceWorker(store, testLogger())
	ctx := context.Background()

	require.NoError(t, w.StartupCheck(ctx))

	orphans, err := store.ListExpenses(ctx, "orphan")
	require.NoError(t, err)
	assert.Empty(t, orphans)
	owned, err := store.ListExpenses(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(testLogger())
	_, err := s.Add("every hour", "bad", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, 0, s.Entries())
}

func TestScheduler_RunsJobsUntilCancelled(t *testing.T) {
	s := NewScheduler(testLogger())
	var runs atomic.Int32
	ran := make(chan struct{}, 1)
	_, err := s.Add("@every 1s", "tick", func(ctx context.Context) error {
		runs.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return errors.New("logged, not fatal")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}
