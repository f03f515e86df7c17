package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/amqp"
	"expenses/internal/auth"
	"expenses/internal/core"
)

func requireKind(t *testing.T, err error, kind core.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, core.KindOf(err), "error: %v", err)
	if msg != "" {
		var e *core.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, msg, e.Message)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.Register(ctx, RegisterInput{Username: "  ann ", Email: " Ann@Example.COM ", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "ann", u.Username)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.NotEmpty(t, u.ID)

	stored, err := f.store.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "pw", stored.PasswordHash)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "pw"))
	assert.Equal(t, []amqp.EventType{amqp.EventUserRegistered}, f.events.types())
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
		msg  string
	}{
		{"blank username", RegisterInput{Username: "  ", Email: "a@b.c", Password: "pw"}, "All fields are required"},
		{"blank email", RegisterInput{Username: "a", Email: "", Password: "pw"}, "All fields are required"},
		{"blank password", RegisterInput{Username: "a", Email: "a@b.c", Password: "   "}, "All fields are required"},
		{"no at sign", RegisterInput{Username: "a", Email: "abc", Password: "pw"}, "Email is not valid"},
		{"long username", RegisterInput{Username: strings.Repeat("é", 101), Email: "a@b.c", Password: "pw"}, "Username must be at most 100 characters"},
		{"long email", RegisterInput{Username: "a", Email: strings.Repeat("e", 244) + "@example.com", Password: "pw"}, "Email must be at most 255 characters"},
		{"long password", RegisterInput{Username: "a", Email: "a@b.c", Password: strings.Repeat("x", 73)}, "Password must be at most 72 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.Register(ctx, tt.in)
			requireKind(t, err, core.KindBadRequest, tt.msg)
		})
	}
}

func TestRegister_LongestValuesAccepted(t *testing.T) {
	f := newFixture(t)
	u, err := f.users.Register(context.Background(), RegisterInput{
		Username: strings.Repeat("é", 100),
		Email:    strings.Repeat("e", 243) + "@example.com",
		Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, 255, len(u.Email))
}

func TestRegister_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.users.Register(ctx, RegisterInput{Username: "ann", Email: "ann@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = f.users.Register(ctx, RegisterInput{Username: "ann", Email: "other@example.com", Password: "pw"})
	requireKind(t, err, core.KindConflict, "User with username already exists")

	_, err = f.users.Register(ctx, RegisterInput{Username: "bob", Email: "ANN@example.com", Password: "pw"})
	requireKind(t, err, core.KindConflict, "User with email already exists")

	_, err = f.users.Register(ctx, RegisterInput{Username: "ann", Email: "ann@example.com", Password: "pw"})
	requireKind(t, err, core.KindConflict, "User with username and email already exists")
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.users.Register(ctx, RegisterInput{Username: "ann", Email: "ann@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = f.users.Login(ctx, "", "pw")
	requireKind(t, err, core.KindBadRequest, "")

	_, err = f.users.Login(ctx, "nobody@example.com", "pw")
	requireKind(t, err, core.KindNotFound, "User does not exist")

	_, err = f.users.Login(ctx, "ann@example.com", "wrong")
	requireKind(t, err, core.KindUnauthorized, "Invalid user credentials")

	s, err := f.users.Login(ctx, " ANN@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "ann", s.User.Username)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)

	stored, err := f.store.GetUserByID(ctx, s.User.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.HashToken(s.RefreshToken), stored.RefreshTokenHash)
}

func TestLoginSupersedesPreviousRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, "ann")
	second, err := f.users.Login(ctx, "ann@example.com", "secret-ann")
	require.NoError(t, err)

	_, err = f.users.Refresh(ctx, first.RefreshToken)
	requireKind(t, err, core.KindUnauthorized, "Refresh token is expired or used")

	_, err = f.users.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "ann")

	pair, err := f.users.Refresh(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, s.RefreshToken, pair.RefreshToken)

	_, err = f.users.Refresh(ctx, s.RefreshToken)
	requireKind(t, err, core.KindUnauthorized, "")

	_, err = f.users.Refresh(ctx, "")
	requireKind(t, err, core.KindUnauthorized, "")
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "ann")

	require.NoError(t, f.users.Logout(ctx, s.User.ID))

	_, err := f.users.Refresh(ctx, s.RefreshToken)
	requireKind(t, err, core.KindUnauthorized, "")
}

func TestAuthenticateAndCurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "ann")

	u, err := f.users.Authenticate(ctx, s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, u.ID)

	_, err = f.users.Authenticate(ctx, s.RefreshToken)
	requireKind(t, err, core.KindUnauthorized, "")

	me, err := f.users.CurrentUser(ctx, s.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", me.Email)

	_, err = f.users.CurrentUser(ctx, "missing")
	requireKind(t, err, core.KindNotFound, "")
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "ann")
	bob := f.register(t, "bob")

	for _, d := range []string{"2025-01-01", "2025-01-02"} {
		_, err := f.expenses.Create(ctx, ann.User.ID, ExpenseInput{Amount: "5", Category: "Food", Date: d})
		require.NoError(t, err)
	}
	_, err := f.expenses.Create(ctx, bob.User.ID, ExpenseInput{Amount: "7", Category: "Food", Date: "2025-01-01"})
	require.NoError(t, err)

	require.NoError(t, f.users.DeleteAccount(ctx, ann.User.ID))

	_, err = f.users.Authenticate(ctx, ann.AccessToken)
	requireKind(t, err, core.KindUnauthorized, "")
	_, err = f.users.Refresh(ctx, ann.RefreshToken)
	requireKind(t, err, core.KindUnauthorized, "")

	left, err := f.store.ListExpenses(ctx, ann.User.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
	kept, err := f.store.ListExpenses(ctx, bob.User.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	assert.Contains(t, f.events.types(), amqp.EventUserDeleted)

	err = f.users.DeleteAccount(ctx, ann.User.ID)
	requireKind(t, err, core.KindNotFound, "")
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.events.err = errBroker

	_, err := f.users.Register(context.Background(), RegisterInput{Username: "ann", Email: "ann@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Empty(t, f.events.types())
}

func TestNilPublisher(t *testing.T) {
	f := newFixture(t)
	users := NewUserService(f.store, f.tokens, nil, 4)

	_, err := users.Register(context.Background(), RegisterInput{Username: "ann", Email: "ann@example.com", Password: "pw"})
	require.NoError(t, err)
}
