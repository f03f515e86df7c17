// Package services holds the API operations: authentication flows and
// owner-scoped expense CRUD. Transport code maps their *core.Error results
// onto responses.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/storage"
)

const errExpenseNotFound = "Expense not found or unauthorized"

// ExpenseService scopes every expense operation to the calling user and
// announces mutations on the optional event publisher.
type ExpenseService struct {
	expenses storage.ExpenseStore
	events   EventPublisher
}

func NewExpenseService(expenses storage.ExpenseStore, events EventPublisher) *ExpenseService {
	return &ExpenseService{
		expenses: expenses,
		events:   events,
	}
}

// ExpenseInput carries the raw field values of a create request.
type ExpenseInput struct {
	Amount         string
	Category       string
	CustomCategory string
	Description    string
	Date           string
}

// ExpensePatch carries the fields present in an update request; nil means
// keep the stored value.
type ExpensePatch struct {
	Amount         *string
	Category       *string
	CustomCategory *string
	Description    *string
	Date           *string
}

// Create validates in and stores a new expense owned by userID.
func (s *ExpenseService) Create(ctx context.Context, userID string, in ExpenseInput) (core.ExpenseView, error) {
	if strings.TrimSpace(in.Amount) == "" || strings.TrimSpace(in.Category) == "" || strings.TrimSpace(in.Date) == "" {
		return core.ExpenseView{}, core.BadRequest("Amount, category, and date are required")
	}

	var e core.Expense
	if err := applyAmount(&e, in.Amount); err != nil {
		return core.ExpenseView{}, err
	}
	if err := applyCategory(&e, in.Category); err != nil {
		return core.ExpenseView{}, err
	}
	if err := applyDate(&e, in.Date); err != nil {
		return core.ExpenseView{}, err
	}
	e.CustomCategory = core.NormalizeCustomCategory(e.Category, in.CustomCategory)
	e.Description = strings.TrimSpace(in.Description)
	if err := e.Validate(); err != nil {
		return core.ExpenseView{}, err
	}

	now := stamp()
	e.ID = uuid.NewString()
	e.UserID = userID
	e.CreatedAt = now
	e.UpdatedAt = now

	if err := s.expenses.CreateExpense(ctx, &e); err != nil {
		return core.ExpenseView{}, core.Internal("Failed to create expense", err)
	}

	s.logMutation(ctx, "Expense created", log.OpCreate, &e)
	publish(ctx, s.events, amqp.EventExpenseCreated, userID, e.ID)
	return e.View(), nil
}

// List returns the caller's expenses, newest date first.
func (s *ExpenseService) List(ctx context.Context, userID string) ([]core.ExpenseView, error) {
	list, err := s.expenses.ListExpenses(ctx, userID)
	if err != nil {
		return nil, core.Internal("Failed to fetch expenses", err)
	}
	views := make([]core.ExpenseView, len(list))
	for i, e := range list {
		views[i] = e.View()
	}
	return views, nil
}

// Update applies patch to an expense the caller owns.
func (s *ExpenseService) Update(ctx context.Context, userID, expenseID string, patch ExpensePatch) (core.ExpenseView, error) {
	e, err := s.expenses.GetExpense(ctx, userID, expenseID)
	if errors.Is(err, core.ErrNotFound) {
		return core.ExpenseView{}, core.NotFound(errExpenseNotFound)
	}
	if err != nil {
		return core.ExpenseView{}, core.Internal("Failed to load expense", err)
	}

	if patch.Amount != nil {
		if err := applyAmount(e, *patch.Amount); err != nil {
			return core.ExpenseView{}, err
		}
	}
	if patch.Category != nil {
		if err := applyCategory(e, *patch.Category); err != nil {
			return core.ExpenseView{}, err
		}
	}
	if patch.Date != nil {
		if err := applyDate(e, *patch.Date); err != nil {
			return core.ExpenseView{}, err
		}
	}
	if patch.Description != nil {
		e.Description = strings.TrimSpace(*patch.Description)
	}
	custom := e.CustomCategory
	if patch.CustomCategory != nil {
		custom = *patch.CustomCategory
	}
	e.CustomCategory = core.NormalizeCustomCategory(e.Category, custom)
	if err := e.Validate(); err != nil {
		return core.ExpenseView{}, err
	}
	e.UpdatedAt = stamp()

	err = s.expenses.UpdateExpense(ctx, e)
	if errors.Is(err, core.ErrNotFound) {
		return core.ExpenseView{}, core.NotFound(errExpenseNotFound)
	}
	if err != nil {
		return core.ExpenseView{}, core.Internal("Failed to update expense", err)
	}

	s.logMutation(ctx, "Expense updated", log.OpUpdate, e)
	publish(ctx, s.events, amqp.EventExpenseUpdated, userID, e.ID)
	return e.View(), nil
}

// Delete removes an expense the caller owns.
func (s *ExpenseService) Delete(ctx context.Context, userID, expenseID string) error {
	err := s.expenses.DeleteExpense(ctx, userID, expenseID)
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFound(errExpenseNotFound)
	}
	if err != nil {
		return core.Internal("Failed to delete expense", err)
	}

	log.FromContext(ctx).InfoContext(ctx, "Expense deleted",
		log.FieldUserID, userID,
		log.FieldExpenseID, expenseID,
		log.FieldOperation, log.OpDelete)
	publish(ctx, s.events, amqp.EventExpenseDeleted, userID, expenseID)
	return nil
}

func (s *ExpenseService) logMutation(ctx context.Context, msg, op string, e *core.Expense) {
	log.FromContext(ctx).InfoContext(ctx, msg,
		log.NewFields().
			WithUser(e.UserID).
			WithExpense(e.ID, core.FormatAmount(e.Amount), string(e.Category)).
			WithOperation(op).
			ToSlice()...)
}

func applyAmount(e *core.Expense, raw string) error {
	amount, err := core.ParseAmount(raw)
	if errors.Is(err, core.ErrAmountTooLarge) {
		return core.BadRequest("Amount must be at most " + core.FormatAmount(core.MaxAmount))
	}
	if err != nil {
		return core.BadRequest("Amount must be a positive number")
	}
	e.Amount = amount
	return nil
}

func applyCategory(e *core.Expense, raw string) error {
	category, err := core.ParseCategory(raw)
	if err != nil {
		return core.BadRequest("Category must be one of " + categoryList())
	}
	e.Category = category
	return nil
}

func applyDate(e *core.Expense, raw string) error {
	date, err := core.ParseDate(raw)
	if err != nil {
		return core.BadRequest("Date must be YYYY-MM-DD or an RFC 3339 timestamp")
	}
	e.Date = date.UTC().Truncate(time.Millisecond)
	return nil
}

func categoryList() string {
	cats := core.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
