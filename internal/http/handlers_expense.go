package http

import (
	"net/http"

	"expenses/internal/services"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) error {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return err
	}

	expense, err := s.expenses.Create(r.Context(), userFromContext(r.Context()).ID, services.ExpenseInput{
		Amount:         p.Get("amount"),
		Category:       p.Get("category"),
		CustomCategory: p.Get("customCategory"),
		Description:    p.Get("description"),
		Date:           p.Get("date"),
	})
	if err != nil {
		return err
	}

	NewResponse().
		Status(http.StatusCreated).
		Data(expense).
		Message("Expense created successfully").
		Write(w)
	return nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) error {
	expenses, err := s.expenses.List(r.Context(), userFromContext(r.Context()).ID)
	if err != nil {
		return err
	}

	NewResponse().
		Data(expenses).
		Message("Expenses fetched successfully").
		Write(w)
	return nil
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) error {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return err
	}

	expense, err := s.expenses.Update(r.Context(), userFromContext(r.Context()).ID, r.PathValue("id"), services.ExpensePatch{
		Amount:         p.Optional("amount"),
		Category:       p.Optional("category"),
		CustomCategory: p.Optional("customCategory"),
		Description:    p.Optional("description"),
		Date:           p.Optional("date"),
	})
	if err != nil {
		return err
	}

	NewResponse().
		Data(expense).
		Message("Expense updated successfully").
		Write(w)
	return nil
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) error {
	if err := s.expenses.Delete(r.Context(), userFromContext(r.Context()).ID, r.PathValue("id")); err != nil {
		return err
	}

	NewResponse().
		Message("Expense deleted successfully").
		Write(w)
	return nil
}
