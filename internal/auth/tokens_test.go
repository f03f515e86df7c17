package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
)

type fakeStore struct {
	mu     sync.Mutex
	hashes map[string]string
}

func newFakeStore(users ...string) *fakeStore {
	s := &fakeStore{hashes: make(map[string]string)}
	for _, u := range users {
		s.hashes[u] = ""
	}
	return s
}

func (f *fakeStore) SetRefreshToken(_ context.Context, userID, hash string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.hashes[userID]; !ok {
		return core.ErrNotFound
	}
	f.hashes[userID] = hash
	return nil
}

func (f *fakeStore) SwapRefreshToken(_ context.Context, userID, oldHash, newHash string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.hashes[userID]
	if !ok || cur == "" || cur != oldHash {
		return false, nil
	}
	f.hashes[userID] = newHash
	return true, nil
}

func testConfig() Config {
	return Config{
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "expenses-test",
	}
}

func newTestService(t *testing.T, store RefreshTokenStore) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testConfig(), store)
	require.NoError(t, err)
	return svc
}

func TestNewTokenServiceRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	_, err := NewTokenService(cfg, newFakeStore())
	require.Error(t, err)

	cfg = testConfig()
	cfg.AccessSecret = nil
	_, err = NewTokenService(cfg, newFakeStore())
	require.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	store := newFakeStore("u1")
	svc := newTestService(t, store)

	pair, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, HashToken(pair.RefreshToken), store.hashes["u1"])

	userID, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestIssueUnknownUser(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	_, err := svc.Issue(context.Background(), "ghost")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestVerifyAccessRejects(t *testing.T) {
	svc := newTestService(t, newFakeStore("u1"))
	pair, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	other := testConfig()
	other.AccessSecret = []byte(strings.Repeat("z", 32))
	foreign, err := NewTokenService(other, newFakeStore("u1"))
	require.NoError(t, err)
	foreignPair, err := foreign.Issue(context.Background(), "u1")
	require.NoError(t, err)

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"refresh token":  pair.RefreshToken,
		"foreign secret": foreignPair.AccessToken,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.VerifyAccess(tok)
			assert.Equal(t, core.KindUnauthorized, core.KindOf(err))
		})
	}
}

func TestVerifyAccessExpired(t *testing.T) {
	svc := newTestService(t, newFakeStore("u1"))
	start := time.Now()
	svc.now = func() time.Time { return start }
	pair, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(testConfig().AccessTTL + time.Second) }
	_, err = svc.VerifyAccess(pair.AccessToken)
	assert.Equal(t, core.KindUnauthorized, core.KindOf(err))
}

func TestRenewRotatesOnce(t *testing.T) {
	svc := newTestService(t, newFakeStore("u1"))
	ctx := context.Background()
	original, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)

	renewed, err := svc.Renew(ctx, original.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, original.RefreshToken, renewed.RefreshToken)

	_, err = svc.Renew(ctx, original.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, core.KindUnauthorized, core.KindOf(err))

	_, err = svc.Renew(ctx, renewed.RefreshToken)
	assert.NoError(t, err)
}

func TestRenewConcurrentSingleWinner(t *testing.T) {
	svc := newTestService(t, newFakeStore("u1"))
	ctx := context.Background()
	original, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Renew(ctx, original.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestRenewRejects(t *testing.T) {
	svc := newTestService(t, newFakeStore("u1"))
	ctx := context.Background()
	pair, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":        "",
		"access token": pair.AccessToken,
		"garbage":      "x.y.z",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Renew(ctx, tok)
			assert.Equal(t, core.KindUnauthorized, core.KindOf(err))
		})
	}

	start := time.Now()
	svc.now = func() time.Time { return start.Add(testConfig().RefreshTTL + time.Minute) }
	_, err = svc.Renew(ctx, pair.RefreshToken)
	assert.Equal(t, core.KindUnauthorized, core.KindOf(err))
}

func TestRevokeInvalidatesRefresh(t *testing.T) {
	store := newFakeStore("u1")
	svc := newTestService(t, store)
	ctx := context.Background()
	pair, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, "u1"))
	assert.Empty(t, store.hashes["u1"])

	_, err = svc.Renew(ctx, pair.RefreshToken)
	assert.Equal(t, core.KindUnauthorized, core.KindOf(err))

	assert.NoError(t, svc.Revoke(ctx, "ghost"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))

	_, err = HashPassword(strings.Repeat("p", MaxPasswordBytes+1), 4)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
