// Package worker runs the background upkeep of the stores: scheduled purges
// and the reaction to domain events.
package worker

import (
	"context"
	"fmt"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/log"
)

// Store is the part of the repository the worker maintains.
type Store interface {
	PurgeExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
	DeleteExpensesByUser(ctx context.Context, userID string) (int64, error)
	DeleteOrphanExpenses(ctx context.Context) (int64, error)
}

// MaintenanceWorker purges stale credentials and orphaned expenses.
type MaintenanceWorker struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

func NewMaintenanceWorker(store Store, logger *log.Logger) *MaintenanceWorker {
	return &MaintenanceWorker{
		store:  store,
		logger: logger.WithComponent(log.ComponentWorker),
		now:    time.Now,
	}
}

// HandleEvent processes a single domain event from AMQP. Only user.deleted
// changes data; the purge is idempotent, so redelivery is harmless.
func (w *MaintenanceWorker) HandleEvent(ctx context.Context, e *amqp.Event) error {
	logger := w.logger.With(log.FieldEventType, string(e.Type), log.FieldUserID, e.UserID)

	if e.Type != amqp.EventUserDeleted {
		logger.DebugContext(ctx, "Event received", log.FieldExpenseID, e.ExpenseID)
		return nil
	}

	n, err := w.store.DeleteExpensesByUser(ctx, e.UserID)
	if err != nil {
		return fmt.Errorf("delete expenses of user %s: %w", e.UserID, err)
	}
	logger.InfoContext(ctx, "Expenses of deleted user purged", log.FieldAffected, n)
	return nil
}

// PurgeExpiredRefreshTokens clears stored refresh tokens past their expiry.
func (w *MaintenanceWorker) PurgeExpiredRefreshTokens(ctx context.Context) error {
	n, err := w.store.PurgeExpiredRefreshTokens(ctx, w.now().UTC())
	if err != nil {
		return fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	w.logger.InfoContext(ctx, "Expired refresh tokens purged",
		log.FieldJob, "purge_refresh_tokens",
		log.FieldAffected, n)
	return nil
}

// PurgeOrphanExpenses deletes expenses whose owner no longer exists.
func (w *MaintenanceWorker) PurgeOrphanExpenses(ctx context.Context) error {
	n, err := w.store.DeleteOrphanExpenses(ctx)
	if err != nil {
		return fmt.Errorf("purge orphan expenses: %w", err)
	}
	w.logger.InfoContext(ctx, "Orphan expenses purged",
		log.FieldJob, "purge_orphan_expenses",
		log.FieldAffected, n)
	return nil
}

// StartupCheck runs every job once. It is useful after downtime, when
// scheduled runs and events may have been missed.
func (w *MaintenanceWorker) StartupCheck(ctx context.Context) error {
	if err := w.PurgeExpiredRefreshTokens(ctx); err != nil {
		return err
	}
	return w.PurgeOrphanExpenses(ctx)
}
