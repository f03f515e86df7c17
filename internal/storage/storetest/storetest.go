// Package storetest is a behavioural suite every storage.Repository must
// pass. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"expenses/internal/core"
	"expenses/internal/storage"
)

type repositorySuite struct {
	suite.Suite
	newRepo func(t *testing.T) storage.Repository
	repo    storage.Repository
	ctx     context.Context
}

// Run executes the suite, calling newRepo for a fresh, empty repository
// before each test.
func Run(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	suite.Run(t, &repositorySuite{newRepo: newRepo})
}

func (s *repositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo(s.T())
}

func (s *repositorySuite) TearDownTest() {
	s.NoError(s.repo.Close())
}

func stamp() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func (s *repositorySuite) user(name string) *core.User {
	now := stamp()
	u := &core.User{
		ID:           uuid.NewString(),
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash-" + name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.Require().NoError(s.repo.CreateUser(s.ctx, u))
	return u
}

func (s *repositorySuite) expense(userID, date string, amount string) *core.Expense {
	d, err := core.ParseDate(date)
	s.Require().NoError(err)
	now := stamp()
	e := &core.Expense{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    decimal.RequireFromString(amount),
		Category:  core.CategoryFood,
		Date:      d,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.repo.CreateExpense(s.ctx, e))
	return e
}

func (s *repositorySuite) TestPing() {
	s.NoError(s.repo.Ping(s.ctx))
}

func (s *repositorySuite) TestCreateAndGetUser() {
	u := s.user("ann")

	byID, err := s.repo.GetUserByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u.Username, byID.Username)
	s.Equal(u.PasswordHash, byID.PasswordHash)
	s.True(u.CreatedAt.Equal(byID.CreatedAt))

	byEmail, err := s.repo.GetUserByEmail(s.ctx, u.Email)
	s.Require().NoError(err)
	s.Equal(u.ID, byEmail.ID)

	_, err = s.repo.GetUserByID(s.ctx, uuid.NewString())
	s.ErrorIs(err, core.ErrNotFound)
	_, err = s.repo.GetUserByEmail(s.ctx, "nobody@example.com")
	s.ErrorIs(err, core.ErrNotFound)
}

// Values at every validation limit must be storable by every backend.
func (s *repositorySuite) TestLongestValuesRoundTrip() {
	now := stamp()
	u := &core.User{
		ID:           uuid.NewString(),
		Username:     strings.Repeat("é", core.MaxUsernameLength),
		Email:        strings.Repeat("é", core.MaxEmailLength-len("@example.com")) + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.Require().NoError(s.repo.CreateUser(s.ctx, u))

	got, err := s.repo.GetUserByEmail(s.ctx, u.Email)
	s.Require().NoError(err)
	s.Equal(u.Username, got.Username)

	e := &core.Expense{
		ID:             uuid.NewString(),
		UserID:         u.ID,
		Amount:         core.MaxAmount,
		Category:       core.CategoryOther,
		CustomCategory: strings.Repeat("ß", core.MaxCustomCategoryLength),
		Description:    strings.Repeat("ü", core.MaxDescriptionLength),
		Date:           now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.Require().NoError(e.Validate())
	s.Require().NoError(s.repo.CreateExpense(s.ctx, e))

	stored, err := s.repo.GetExpense(s.ctx, u.ID, e.ID)
	s.Require().NoError(err)
	s.True(core.MaxAmount.Equal(stored.Amount), "amount = %s", stored.Amount)
	s.Equal(e.CustomCategory, stored.CustomCategory)
	s.Equal(e.Description, stored.Description)
}

func (s *repositorySuite) TestUniqueUsernameAndEmail() {
	u := s.user("bob")

	dupName := *u
	dupName.ID = uuid.NewString()
	dupName.Email = "other@example.com"
	s.ErrorIs(s.repo.CreateUser(s.ctx, &dupName), core.ErrUsernameTaken)

	dupEmail := *u
	dupEmail.ID = uuid.NewString()
	dupEmail.Username = "bobby"
	s.ErrorIs(s.repo.CreateUser(s.ctx, &dupEmail), core.ErrEmailTaken)

	ok, err := s.repo.UsernameExists(s.ctx, "bob")
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.repo.EmailExists(s.ctx, "bob@example.com")
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.repo.UsernameExists(s.ctx, "carol")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *repositorySuite) TestRefreshTokenSwap() {
	u := s.user("dan")
	exp := stamp().Add(time.Hour)

	s.Require().NoError(s.repo.SetRefreshToken(s.ctx, u.ID, "h1", exp))
	got, err := s.repo.GetUserByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("h1", got.RefreshTokenHash)
	s.True(exp.Equal(got.RefreshTokenExpiresAt))

	swapped, err := s.repo.SwapRefreshToken(s.ctx, u.ID, "h1", "h2", exp)
	s.Require().NoError(err)
	s.True(swapped)

	swapped, err = s.repo.SwapRefreshToken(s.ctx, u.ID, "h1", "h3", exp)
	s.Require().NoError(err)
	s.False(swapped, "superseded hash must not swap")

	s.Require().NoError(s.repo.SetRefreshToken(s.ctx, u.ID, "", time.Time{}))
	swapped, err = s.repo.SwapRefreshToken(s.ctx, u.ID, "", "h4", exp)
	s.Require().NoError(err)
	s.False(swapped, "cleared token must not swap")

	s.ErrorIs(s.repo.SetRefreshToken(s.ctx, uuid.NewString(), "h", exp), core.ErrNotFound)
}

func (s *repositorySuite) TestPurgeExpiredRefreshTokens() {
	stale := s.user("erin")
	fresh := s.user("finn")
	now := stamp()
	s.Require().NoError(s.repo.SetRefreshToken(s.ctx, stale.ID, "old", now.Add(-time.Minute)))
	s.Require().NoError(s.repo.SetRefreshToken(s.ctx, fresh.ID, "new", now.Add(time.Hour)))

	n, err := s.repo.PurgeExpiredRefreshTokens(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	got, err := s.repo.GetUserByID(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Empty(got.RefreshTokenHash)
	got, err = s.repo.GetUserByID(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal("new", got.RefreshTokenHash)
}

func (s *repositorySuite) TestListOrderedByDateDesc() {
	u := s.user("gia")
	s.expense(u.ID, "2025-01-01", "1")
	s.expense(u.ID, "2025-03-01", "3")
	s.expense(u.ID, "2025-02-01", "2")
	other := s.user("hal")
	s.expense(other.ID, "2025-04-01", "4")

	list, err := s.repo.ListExpenses(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	var dates []string
	for _, e := range list {
		dates = append(dates, e.Date.Format(time.DateOnly))
	}
	s.Equal([]string{"2025-03-01", "2025-02-01", "2025-01-01"}, dates)
	s.True(decimal.NewFromInt(3).Equal(list[0].Amount))
}

func (s *repositorySuite) TestListEmptyIsNotNil() {
	u := s.user("ivy")
	list, err := s.repo.ListExpenses(s.ctx, u.ID)
	s.Require().NoError(err)
	s.NotNil(list)
	s.Empty(list)
}

func (s *repositorySuite) TestExpenseOwnership() {
	owner := s.user("jay")
	intruder := s.user("kim")
	e := s.expense(owner.ID, "2025-05-05", "9.99")

	_, err := s.repo.GetExpense(s.ctx, intruder.ID, e.ID)
	s.ErrorIs(err, core.ErrNotFound)

	hijack := *e
	hijack.UserID = intruder.ID
	hijack.Amount = decimal.NewFromInt(1)
	s.ErrorIs(s.repo.UpdateExpense(s.ctx, &hijack), core.ErrNotFound)
	s.ErrorIs(s.repo.DeleteExpense(s.ctx, intruder.ID, e.ID), core.ErrNotFound)
	s.ErrorIs(s.repo.DeleteExpense(s.ctx, owner.ID, uuid.NewString()), core.ErrNotFound)

	got, err := s.repo.GetExpense(s.ctx, owner.ID, e.ID)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("9.99").Equal(got.Amount))
}

func (s *repositorySuite) TestUpdateAndDeleteExpense() {
	u := s.user("lee")
	e := s.expense(u.ID, "2025-06-01", "5")

	e.Amount = decimal.RequireFromString("6.50")
	e.Category = core.CategoryOther
	e.CustomCategory = "Gym"
	e.Description = "monthly"
	e.UpdatedAt = stamp()
	s.Require().NoError(s.repo.UpdateExpense(s.ctx, e))

	got, err := s.repo.GetExpense(s.ctx, u.ID, e.ID)
	s.Require().NoError(err)
	s.Equal(core.CategoryOther, got.Category)
	s.Equal("Gym", got.CustomCategory)
	s.Equal("monthly", got.Description)
	s.True(e.Amount.Equal(got.Amount))

	s.Require().NoError(s.repo.DeleteExpense(s.ctx, u.ID, e.ID))
	_, err = s.repo.GetExpense(s.ctx, u.ID, e.ID)
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *repositorySuite) TestDeleteUserWithExpenses() {
	u := s.user("max")
	s.expense(u.ID, "2025-01-01", "1")
	s.expense(u.ID, "2025-01-02", "2")
	keep := s.user("ned")
	s.expense(keep.ID, "2025-01-03", "3")

	removed, err := s.repo.DeleteUserWithExpenses(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), removed)

	_, err = s.repo.GetUserByID(s.ctx, u.ID)
	s.ErrorIs(err, core.ErrNotFound)
	list, err := s.repo.ListExpenses(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(list)

	list, err = s.repo.ListExpenses(s.ctx, keep.ID)
	s.Require().NoError(err)
	s.Len(list, 1)

	_, err = s.repo.DeleteUserWithExpenses(s.ctx, u.ID)
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *repositorySuite) TestDeleteUserMissingKeepsExpenses() {
	ghost := uuid.NewString()
	s.expense(ghost, "2025-02-02", "2")

	_, err := s.repo.DeleteUserWithExpenses(s.ctx, ghost)
	s.ErrorIs(err, core.ErrNotFound)

	list, err := s.repo.ListExpenses(s.ctx, ghost)
	s.Require().NoError(err)
	s.Len(list, 1, "failed delete must roll back")
}

func (s *repositorySuite) TestDeleteOrphanAndByUser() {
	u := s.user("ora")
	s.expense(u.ID, "2025-01-01", "1")
	orphanOwner := uuid.NewString()
	s.expense(orphanOwner, "2025-01-01", "1")
	s.expense(orphanOwner, "2025-01-02", "1")

	n, err := s.repo.DeleteOrphanExpenses(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	n, err = s.repo.DeleteExpensesByUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.repo.DeleteExpensesByUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Zero(n)
}
