package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"expenses/internal/core"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	errWrongTokenType = errors.New("wrong token type")
	errNoSubject      = errors.New("token has no subject")
)

// Config is built once at startup and handed to NewTokenService.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

func (c Config) validate() error {
	switch {
	case len(c.AccessSecret) == 0 || len(c.RefreshSecret) == 0:
		return errors.New("token secrets must not be empty")
	case string(c.AccessSecret) == string(c.RefreshSecret):
		return errors.New("access and refresh secrets must differ")
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return errors.New("token TTLs must be positive")
	}
	return nil
}

// Claims carried by both token kinds. Subject is the user id.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// RefreshTokenStore persists the single active refresh token of a user as a
// hash. SwapRefreshToken replaces the hash only if it still equals oldHash
// and reports whether it did.
type RefreshTokenStore interface {
	SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error)
}

type TokenService struct {
	cfg   Config
	store RefreshTokenStore
	now   func() time.Time
}

func NewTokenService(cfg Config, store RefreshTokenStore) (*TokenService, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("token service config: %w", err)
	}
	return &TokenService{cfg: cfg, store: store, now: time.Now}, nil
}

// Issue signs a new pair for userID and stores the refresh token, replacing
// any previous one.
func (s *TokenService) Issue(ctx context.Context, userID string) (TokenPair, error) {
	pair, err := s.newPair(userID)
	if err != nil {
		return TokenPair{}, core.Internal("Failed to generate tokens", err)
	}
	if err := s.store.SetRefreshToken(ctx, userID, HashToken(pair.RefreshToken), pair.RefreshExpiresAt); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return TokenPair{}, core.NotFound("User does not exist")
		}
		return TokenPair{}, core.Internal("Failed to store refresh token", err)
	}
	return pair, nil
}

// VerifyAccess returns the user id carried by a valid access token.
func (s *TokenService) VerifyAccess(token string) (string, error) {
	if token == "" {
		return "", core.Unauthorized("Unauthorized request")
	}
	claims, err := s.parse(token, TypeAccess, s.cfg.AccessSecret)
	if err != nil {
		return "", &core.Error{Kind: core.KindUnauthorized, Message: "Invalid access token", Err: err}
	}
	return claims.Subject, nil
}

// Renew exchanges the current refresh token for a new pair. The old token
// stops working as soon as the swap succeeds.
func (s *TokenService) Renew(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, core.Unauthorized("Unauthorized request")
	}
	claims, err := s.parse(refreshToken, TypeRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return TokenPair{}, &core.Error{Kind: core.KindUnauthorized, Message: "Invalid refresh token", Err: err}
	}

	pair, err := s.newPair(claims.Subject)
	if err != nil {
		return TokenPair{}, core.Internal("Failed to generate tokens", err)
	}
	swapped, err := s.store.SwapRefreshToken(ctx, claims.Subject, HashToken(refreshToken), HashToken(pair.RefreshToken), pair.RefreshExpiresAt)
	if err != nil {
		return TokenPair{}, core.Internal("Failed to rotate refresh token", err)
	}
	if !swapped {
		return TokenPair{}, core.Unauthorized("Refresh token is expired or used")
	}
	return pair, nil
}

// Revoke clears the stored refresh token of userID.
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	if err := s.store.SetRefreshToken(ctx, userID, "", time.Time{}); err != nil && !errors.Is(err, core.ErrNotFound) {
		return core.Internal("Failed to revoke refresh token", err)
	}
	return nil
}

func (s *TokenService) AccessTTL() time.Duration  { return s.cfg.AccessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

func (s *TokenService) newPair(userID string) (TokenPair, error) {
	now := s.now()
	access, accessExp, err := s.sign(userID, TypeAccess, s.cfg.AccessSecret, s.cfg.AccessTTL, now)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := s.sign(userID, TypeRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTTL, now)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) sign(userID, typ string, secret []byte, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	return signed, exp, err
}

func (s *TokenService) parse(raw, typ string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != typ {
		return nil, errWrongTokenType
	}
	if claims.Subject == "" {
		return nil, errNoSubject
	}
	return claims, nil
}

// HashToken is the form in which refresh tokens are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
