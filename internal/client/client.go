// Package client is a typed client for the expenses API. It keeps the token
// pair in a SessionStore and renews the access token once when a call is
// rejected with 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"expenses/internal/core"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 15 * time.Second
)

// APIError is a failure reported by the server in the response envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

type Client struct {
	baseURL string
	http    *http.Client
	session SessionStore
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 15s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the server at baseURL. A nil session keeps the
// tokens in memory.
func New(baseURL string, session SessionStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	if session == nil {
		session = &MemorySession{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		session: session,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the stored session, or ErrNoSession.
func (c *Client) Session() (Session, error) {
	return c.session.Load()
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	User         core.PublicUser `json:"user"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

// ExpenseRequest creates an expense. Amount and Date are sent as entered;
// the server parses them.
type ExpenseRequest struct {
	Amount         string `json:"amount"`
	Category       string `json:"category"`
	CustomCategory string `json:"customCategory,omitempty"`
	Description    string `json:"description"`
	Date           string `json:"date"`
}

// ExpenseUpdate changes the non-nil fields of an expense.
type ExpenseUpdate struct {
	Amount         *string `json:"amount,omitempty"`
	Category       *string `json:"category,omitempty"`
	CustomCategory *string `json:"customCategory,omitempty"`
	Description    *string `json:"description,omitempty"`
	Date           *string `json:"date,omitempty"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (core.PublicUser, error) {
	var user core.PublicUser
	err := c.do(ctx, http.MethodPost, "/users/register", req, "", &user)
	return user, err
}

// Login authenticates and stores the returned token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/users/login", body, "", &res); err != nil {
		return nil, err
	}
	if err := c.session.Save(Session{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Username:     res.User.Username,
	}); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout revokes the refresh token on the server and clears the session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.authorized(ctx, http.MethodPost, "/users/logout", nil, nil); err != nil {
		return err
	}
	return c.session.Clear()
}

// Refresh exchanges the stored refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context) (Session, error) {
	s, err := c.session.Load()
	if err != nil {
		return Session{}, err
	}
	var pair struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	body := map[string]string{"refreshToken": s.RefreshToken}
	if err := c.do(ctx, http.MethodPost, "/users/refresh-token", body, "", &pair); err != nil {
		return Session{}, err
	}
	s.AccessToken, s.RefreshToken = pair.AccessToken, pair.RefreshToken
	if err := c.session.Save(s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (c *Client) CurrentUser(ctx context.Context) (core.PublicUser, error) {
	var user core.PublicUser
	err := c.authorized(ctx, http.MethodGet, "/users/current-user", nil, &user)
	return user, err
}

// DeleteAccount removes the user and all their expenses, then clears the
// session.
func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.authorized(ctx, http.MethodPost, "/users/delete-account", nil, nil); err != nil {
		return err
	}
	return c.session.Clear()
}

func (c *Client) CreateExpense(ctx context.Context, req ExpenseRequest) (core.ExpenseView, error) {
	var e core.ExpenseView
	err := c.authorized(ctx, http.MethodPost, "/expenses/createExpense", req, &e)
	return e, err
}

// ListExpenses returns the caller's expenses, newest first.
func (c *Client) ListExpenses(ctx context.Context) ([]core.ExpenseView, error) {
	var list []core.ExpenseView
	if err := c.authorized(ctx, http.MethodPost, "/expenses/getExpenses", nil, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []core.ExpenseView{}
	}
	return list, nil
}

func (c *Client) UpdateExpense(ctx context.Context, id string, update ExpenseUpdate) (core.ExpenseView, error) {
	var e core.ExpenseView
	err := c.authorized(ctx, http.MethodPost, "/expenses/updateExpense/"+url.PathEscape(id), update, &e)
	return e, err
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	return c.authorized(ctx, http.MethodPost, "/expenses/deleteExpense/"+url.PathEscape(id), nil, nil)
}

// authorized sends the stored access token. On 401 the session is refreshed
// once and the call retried once.
func (c *Client) authorized(ctx context.Context, method, path string, body, out any) error {
	s, err := c.session.Load()
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, body, s.AccessToken, out)
	if !IsStatus(err, http.StatusUnauthorized) || s.RefreshToken == "" {
		return err
	}

	renewed, refreshErr := c.Refresh(ctx)
	if refreshErr != nil {
		return err
	}
	return c.do(ctx, method, path, body, renewed.AccessToken, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
