package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"expenses/internal/amqp"
	"expenses/internal/auth"
	"expenses/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *e)
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store    *memory.Store
	tokens   *auth.TokenService
	events   *recordingPublisher
	users    *UserService
	expenses *ExpenseService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	tokens, err := auth.NewTokenService(auth.Config{
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "expenses-test",
	}, store)
	require.NoError(t, err)
	events := &recordingPublisher{}
	return &fixture{
		store:    store,
		tokens:   tokens,
		events:   events,
		users:    NewUserService(store, tokens, events, 4),
		expenses: NewExpenseService(store, events),
	}
}

func (f *fixture) register(t *testing.T, username string) *Session {
	t.Helper()
	ctx := context.Background()
	_, err := f.users.Register(ctx, RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret-" + username,
	})
	require.NoError(t, err)
	s, err := f.users.Login(ctx, username+"@example.com", "secret-"+username)
	require.NoError(t, err)
	return s
}

func ptr(s string) *string { return &s }

var errBroker = errors.New("broker down")
