package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/amqp"
	"expenses/internal/core"
)

func TestExpenseCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "ann")

	v, err := f.expenses.Create(ctx, s.User.ID, ExpenseInput{
		Amount:         "12,345",
		Category:       "other",
		CustomCategory: "  Gym ",
		Description:    " monthly ",
		Date:           "2025-03-04",
	})
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, v.UserID)
	assert.True(t, decimal.RequireFromString("12.35").Equal(v.Amount))
	assert.Equal(t, core.CategoryOther, v.Category)
	assert.Equal(t, "Gym", v.CustomCategory)
	assert.Equal(t, "Gym", v.DisplayCategory)
	assert.Equal(t, "monthly", v.Description)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), v.Date)
	assert.Equal(t, []amqp.EventType{amqp.EventUserRegistered, amqp.EventExpenseCreated}, f.events.types())
}

func TestExpenseCreate_CustomCategoryOnlyForOther(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "ann")

	v, err := f.expenses.Create(ctx, s.User.ID, ExpenseInput{Amount: "1", Category: "Food", CustomCategory: "Gym", Date: "2025-01-01"})
	require.NoError(t, err)
	assert.Empty(t, v.CustomCategory)
	assert.Equal(t, "Food", v.DisplayCategory)

	v, err = f.expenses.Create(ctx, s.User.ID, ExpenseInput{Amount: "1", Category: "Other", CustomCategory: "   ", Date: "2025-01-01"})
	require.NoError(t, err)
	assert.Empty(t, v.CustomCategory)
	assert.Equal(t, "Other", v.DisplayCategory)
}

func TestExpenseCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "ann")

	tests := []struct {
		name string
		in   ExpenseInput
		msg  string
	}{
		{"missing amount", ExpenseInput{Category: "Food", Date: "2025-01-01"}, "Amount, category, and date are required"},
		{"missing category", ExpenseInput{Amount: "1", Date: "2025-01-01"}, "Amount, category, and date are required"},
		{"missing date", ExpenseInput{Amount: "1", Category: "Food"}, "Amount, category, and date are required"},
		{"zero amount", ExpenseInput{Amount: "0", Category: "Food", Date: "2025-01-01"}, "Amount must be a positive number"},
		{"negative amount", ExpenseInput{Amount: "-3", Category: "Food", Date: "2025-01-01"}, "Amount must be a positive number"},
		{"text amount", ExpenseInput{Amount: "ten", Category: "Food", Date: "2025-01-01"}, "Amount must be a positive number"},
		{"amount over max", ExpenseInput{Amount: "1e12", Category: "Food", Date: "2025-01-01"}, "Amount must be at most 999999999999.99"},
		{"huge exponent", ExpenseInput{Amount: "1e10000000", Category: "Food", Date: "2025-01-01"}, "Amount must be at most 999999999999.99"},
		{"unknown category", ExpenseInput{Amount: "1", Category: "Pets", Date: "2025-01-01"}, ""},
		{"bad date", ExpenseInput{Amount: "1", Category: "Food", Date: "01/02/2025"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.expenses.Create(ctx, s.User.ID, tt.in)
			requireKind(t, err, core.KindBadRequest, tt.msg)
		})
	}

	list, err := f.expenses.List(ctx, s.User.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected input must not be stored")
}

func TestExpenseList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "ann")
	bob := f.register(t, "bob")

	for _, d := range []string{"2025-01-10", "2025-03-01", "2025-02-15"} {
		_, err := f.expenses.Create(ctx, ann.User.ID, ExpenseInput{Amount: "1", Category: "Food", Date: d})
		require.NoError(t, err)
	}
	_, err := f.expenses.Create(ctx, bob.User.ID, ExpenseInput{Amount: "1", Category: "Food", Date: "2025-04-01"})
	require.NoError(t, err)

	list, err := f.expenses.List(ctx, ann.User.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2025-03-01", list[0].Date.Format(time.DateOnly))
	assert.Equal(t, "2025-02-15", list[1].Date.Format(time.DateOnly))
	assert.Equal(t, "2025-01-10", list[2].Date.Format(time.DateOnly))
	for _, v := range list {
		assert.Equal(t, ann.User.ID, v.UserID)
		assert.Equal(t, "Food", v.DisplayCategory)
	}

	empty, err := f.expenses.List(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestExpenseUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "ann")
	created, err := f.expenses.Create(ctx, s.User.ID, ExpenseInput{
		Amount: "10", Category: "Other", CustomCategory: "Gym", Description: "d", Date: "2025-01-01",
	})
	require.NoError(t, err)

	t.Run("absent fields keep stored values", func(t *testing.T) {
		v, err := f.expenses.Update(ctx, s.User.ID, created.ID, ExpensePatch{Amount: ptr("11.5")})
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("11.5").Equal(v.Amount))
		assert.Equal(t, core.CategoryOther, v.Category)
		assert.Equal(t, "Gym", v.CustomCategory)
		assert.Equal(t, "d", v.Description)
		assert.True(t, v.CreatedAt.Equal(created.CreatedAt))
	})

	t.Run("custom category dropped when category leaves Other", func(t *testing.T) {
		v, err := f.expenses.Update(ctx, s.User.ID, created.ID, ExpensePatch{Category: ptr("Transport")})
		require.NoError(t, err)
		assert.Equal(t, core.CategoryTransport, v.Category)
		assert.Empty(t, v.CustomCategory)
		assert.Equal(t, "Transport", v.DisplayCategory)
	})

	t.Run("custom category set with Other", func(t *testing.T) {
		v, err := f.expenses.Update(ctx, s.User.ID, created.ID, ExpensePatch{Category: ptr("Other"), CustomCategory: ptr("Pets")})
		require.NoError(t, err)
		assert.Equal(t, "Pets", v.DisplayCategory)
	})

	t.Run("invalid amount rejected", func(t *testing.T) {
		_, err := f.expenses.Update(ctx, s.User.ID, created.ID, ExpensePatch{Amount: ptr("0")})
		requireKind(t, err, core.KindBadRequest, "")

		stored, err := f.store.GetExpense(ctx, s.User.ID, created.ID)
		require.NoError(t, err)
		assert.True(t, stored.Amount.IsPositive())
	})

	t.Run("oversized amount rejected", func(t *testing.T) {
		_, err := f.expenses.Update(ctx, s.User.ID, created.ID, ExpensePatch{Amount: ptr("1e2000000000")})
		requireKind(t, err, core.KindBadRequest, "Amount must be at most 999999999999.99")
	})

	t.Run("persisted", func(t *testing.T) {
		stored, err := f.store.GetExpense(ctx, s.User.ID, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Pets", stored.CustomCategory)
	})
}

func TestExpenseOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "ann")
	bob := f.register(t, "bob")
	e, err := f.expenses.Create(ctx, ann.User.ID, ExpenseInput{Amount: "10", Category: "Food", Date: "2025-01-01"})
	require.NoError(t, err)

	_, err = f.expenses.Update(ctx, bob.User.ID, e.ID, ExpensePatch{Amount: ptr("1")})
	requireKind(t, err, core.KindNotFound, "Expense not found or unauthorized")

	err = f.expenses.Delete(ctx, bob.User.ID, e.ID)
	requireKind(t, err, core.KindNotFound, "Expense not found or unauthorized")

	_, err = f.expenses.Update(ctx, ann.User.ID, "missing", ExpensePatch{})
	requireKind(t, err, core.KindNotFound, "Expense not found or unauthorized")

	stored, err := f.store.GetExpense(ctx, ann.User.ID, e.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(stored.Amount))

	require.NoError(t, f.expenses.Delete(ctx, ann.User.ID, e.ID))
	err = f.expenses.Delete(ctx, ann.User.ID, e.ID)
	requireKind(t, err, core.KindNotFound, "")

	assert.Contains(t, f.events.types(), amqp.EventExpenseDeleted)
}
