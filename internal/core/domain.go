package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryUtilities     Category = "Utilities"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealthcare    Category = "Healthcare"
	CategoryShopping      Category = "Shopping"
	CategoryEducation     Category = "Education"
	CategoryOther         Category = "Other"
)

// Length limits in characters.
const (
	MaxUsernameLength       = 100
	MaxEmailLength          = 255
	MaxDescriptionLength    = 500
	MaxCustomCategoryLength = 50
)

type (
	// Category is one of the fixed expense categories.
	Category string

	// User is the stored credential record. It never leaves the server as is;
	// use Public for responses.
	User struct {
		ID                    string
		Username              string
		Email                 string
		PasswordHash          string
		RefreshTokenHash      string
		RefreshTokenExpiresAt time.Time
		CreatedAt             time.Time
		UpdatedAt             time.Time
	}

	// PublicUser is the profile returned to clients.
	PublicUser struct {
		ID        string    `json:"_id"`
		Username  string    `json:"username"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Expense struct {
		ID             string          `json:"_id"`
		UserID         string          `json:"user"`
		Amount         decimal.Decimal `json:"amount"`
		Category       Category        `json:"category"`
		CustomCategory string          `json:"customCategory"`
		Description    string          `json:"description"`
		Date           time.Time       `json:"date"`
		CreatedAt      time.Time       `json:"createdAt"`
		UpdatedAt      time.Time       `json:"updatedAt"`
	}

	// ExpenseView is an expense as listed to its owner.
	ExpenseView struct {
		Expense
		DisplayCategory string `json:"displayCategory"`
	}
)

var categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryUtilities,
	CategoryEntertainment,
	CategoryHealthcare,
	CategoryShopping,
	CategoryEducation,
	CategoryOther,
}

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrAmountTooLarge  = errors.New("amount too large")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDate     = errors.New("invalid date")
)

// Store sentinels. Stores wrap these; services translate them to *Error.
var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already taken")
)

// Categories returns the enumeration in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (c Category) Valid() bool {
	return c.Index() >= 0
}

// Index is the position of c in the enumeration, or -1.
func (c Category) Index() int {
	for i, known := range categories {
		if c == known {
			return i
		}
	}
	return -1
}

// ParseCategory matches s against the enumeration ignoring case and
// surrounding space.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// NormalizeCustomCategory returns the custom label to store for category c:
// the trimmed label when c is Other, otherwise empty.
func NormalizeCustomCategory(c Category, custom string) string {
	if c != CategoryOther {
		return ""
	}
	return strings.TrimSpace(custom)
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// DisplayCategory is the custom label for Other expenses that have one, the
// category name otherwise.
func (e Expense) DisplayCategory() string {
	if e.Category == CategoryOther && e.CustomCategory != "" {
		return e.CustomCategory
	}
	return string(e.Category)
}

func (e Expense) View() ExpenseView {
	return ExpenseView{Expense: e, DisplayCategory: e.DisplayCategory()}
}

// Validate checks an expense before it is persisted. The returned error is
// always a BadRequest *Error.
func (e Expense) Validate() error {
	if !e.Amount.IsPositive() {
		return BadRequest("Amount must be a positive number")
	}
	if e.Amount.GreaterThan(MaxAmount) {
		return BadRequest("Amount must be at most " + FormatAmount(MaxAmount))
	}
	if !e.Category.Valid() {
		return BadRequest(fmt.Sprintf("Category must be one of %s", joinCategories()))
	}
	if e.Date.IsZero() {
		return BadRequest("Date is required")
	}
	if e.Category != CategoryOther && e.CustomCategory != "" {
		return BadRequest("Custom category is only allowed for Other")
	}
	if utf8.RuneCountInString(e.CustomCategory) > MaxCustomCategoryLength {
		return BadRequest(fmt.Sprintf("Custom category must be at most %d characters", MaxCustomCategoryLength))
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLength {
		return BadRequest(fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLength))
	}
	return nil
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
// Calendar dates are taken as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t.UTC(), nil
}

func joinCategories() string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
