package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"expenses/internal/amqp"
	"expenses/internal/auth"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/storage"
)

// UserService implements registration, sessions and account deletion.
type UserService struct {
	users      storage.UserStore
	tokens     *auth.TokenService
	events     EventPublisher
	bcryptCost int
}

func NewUserService(users storage.UserStore, tokens *auth.TokenService, events EventPublisher, bcryptCost int) *UserService {
	return &UserService{
		users:      users,
		tokens:     tokens,
		events:     events,
		bcryptCost: bcryptCost,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Session is the body returned by a successful login.
type Session struct {
	User core.PublicUser `json:"user"`
	auth.TokenPair
}

// Register creates a user and returns its public profile.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (core.PublicUser, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)
	if username == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return core.PublicUser{}, core.BadRequest("All fields are required")
	}
	if !strings.Contains(email, "@") {
		return core.PublicUser{}, core.BadRequest("Email is not valid")
	}
	if utf8.RuneCountInString(username) > core.MaxUsernameLength {
		return core.PublicUser{}, core.BadRequest(fmt.Sprintf("Username must be at most %d characters", core.MaxUsernameLength))
	}
	if utf8.RuneCountInString(email) > core.MaxEmailLength {
		return core.PublicUser{}, core.BadRequest(fmt.Sprintf("Email must be at most %d characters", core.MaxEmailLength))
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return core.PublicUser{}, core.BadRequest("Password must be at most 72 bytes")
	}

	usernameTaken, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return core.PublicUser{}, core.Internal("Something went wrong while registering the user", err)
	}
	emailTaken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return core.PublicUser{}, core.Internal("Something went wrong while registering the user", err)
	}
	if err := conflict(usernameTaken, emailTaken); err != nil {
		return core.PublicUser{}, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return core.PublicUser{}, core.Internal("Something went wrong while registering the user", err)
	}

	now := stamp()
	u := &core.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		// Lost a race with a concurrent registration.
		switch {
		case errors.Is(err, core.ErrUsernameTaken):
			return core.PublicUser{}, conflict(true, false)
		case errors.Is(err, core.ErrEmailTaken):
			return core.PublicUser{}, conflict(false, true)
		}
		return core.PublicUser{}, core.Internal("Something went wrong while registering the user", err)
	}

	log.FromContext(ctx).InfoContext(ctx, "User registered",
		log.NewFields().WithUser(u.ID).WithOperation(log.OpRegister).ToSlice()...)
	publish(ctx, s.events, amqp.EventUserRegistered, u.ID, "")
	return u.Public(), nil
}

func conflict(usernameTaken, emailTaken bool) error {
	switch {
	case usernameTaken && emailTaken:
		return core.Conflict("User with username and email already exists")
	case usernameTaken:
		return core.Conflict("User with username already exists")
	case emailTaken:
		return core.Conflict("User with email already exists")
	}
	return nil
}

// Login checks the credentials and issues a fresh token pair.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, core.BadRequest("Email and password are required")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.NotFound("User does not exist")
	}
	if err != nil {
		return nil, core.Internal("Failed to load user", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, core.Unauthorized("Invalid user credentials")
	}

	pair, err := s.tokens.Issue(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	log.FromContext(ctx).InfoContext(ctx, "User logged in",
		log.NewFields().WithUser(u.ID).WithOperation(log.OpLogin).ToSlice()...)
	return &Session{User: u.Public(), TokenPair: pair}, nil
}

// Logout clears the user's refresh token.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.Revoke(ctx, userID); err != nil {
		return err
	}
	log.FromContext(ctx).InfoContext(ctx, "User logged out",
		log.NewFields().WithUser(userID).WithOperation(log.OpLogout).ToSlice()...)
	return nil
}

// Refresh rotates the refresh token and returns the new pair.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	return s.tokens.Renew(ctx, strings.TrimSpace(refreshToken))
}

// DeleteAccount removes the user and every expense it owns atomically.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	removed, err := s.users.DeleteUserWithExpenses(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFound("User does not exist")
	}
	if err != nil {
		return core.Internal("Failed to delete account", err)
	}

	log.FromContext(ctx).InfoContext(ctx, "Account deleted",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpDelete,
		log.FieldAffected, removed)
	publish(ctx, s.events, amqp.EventUserDeleted, userID, "")
	return nil
}

// CurrentUser returns the caller's public profile.
func (s *UserService) CurrentUser(ctx context.Context, userID string) (core.PublicUser, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.PublicUser{}, core.NotFound("User does not exist")
	}
	if err != nil {
		return core.PublicUser{}, core.Internal("Failed to load user", err)
	}
	return u.Public(), nil
}

// Authenticate resolves an access token to its user. Tokens of deleted
// users are rejected.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*core.User, error) {
	userID, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.Unauthorized("Invalid access token")
	}
	if err != nil {
		return nil, core.Internal("Failed to load user", err)
	}
	return u, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
