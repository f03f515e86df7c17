package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
	"expenses/internal/services"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to its collaborators.
type Options struct {
	Users    *services.UserService
	Expenses *services.ExpenseService
	Store    Pinger
	Logger   *log.Logger

	Cookies CookieConfig
	// CORSOrigin enables CORS for one origin; empty disables it.
	CORSOrigin string
	// AuthRateLimit is the number of register, login and refresh requests
	// allowed per client IP and minute.
	AuthRateLimit int
	// TrustedProxies are CIDRs, beyond loopback and private networks, whose
	// X-Forwarded-For header names the client.
	TrustedProxies []string
}

type Server struct {
	http.Server
	users    *services.UserService
	expenses *services.ExpenseService
	store    Pinger
	logger   *log.Logger
	cookies  CookieConfig

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// handlerFunc is an API handler. A returned error is written as the error
// envelope by handle.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	limiterCfg := ratelimit.DefaultConfig()
	if opts.AuthRateLimit > 0 {
		limiterCfg.Requests = opts.AuthRateLimit
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		users:    opts.Users,
		expenses: opts.Expenses,
		store:    opts.Store,
		logger:   logger,
		cookies:  opts.Cookies,
		limiter:  ratelimit.NewLimiter(limiterCfg),
		detector: security.NewDetector(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = cors(opts.CORSOrigin)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	h = log.Middleware(logger)(h)
	s.Handler = h

	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("POST /api/v1/users/register", limited(s.handle(s.handleRegister)))
	mux.Handle("POST /api/v1/users/login", limited(s.handle(s.handleLogin)))
	mux.Handle("POST /api/v1/users/refresh-token", limited(s.handle(s.handleRefresh)))
	mux.Handle("POST /api/v1/users/logout", s.handle(s.requireAuth(s.handleLogout)))
	mux.Handle("GET /api/v1/users/current-user", s.handle(s.requireAuth(s.handleCurrentUser)))
	mux.Handle("POST /api/v1/users/delete-account", s.handle(s.requireAuth(s.handleDeleteAccount)))

	mux.Handle("POST /api/v1/expenses/createExpense", s.handle(s.requireAuth(s.handleCreateExpense)))
	mux.Handle("POST /api/v1/expenses/getExpenses", s.handle(s.requireAuth(s.handleListExpenses)))
	mux.Handle("POST /api/v1/expenses/updateExpense/{id}", s.handle(s.requireAuth(s.handleUpdateExpense)))
	mux.Handle("POST /api/v1/expenses/deleteExpense/{id}", s.handle(s.requireAuth(s.handleDeleteExpense)))

	mux.Handle("/api/", s.handle(func(http.ResponseWriter, *http.Request) error {
		return core.NotFound("Route not found")
	}))
}

// handle is the single error boundary of the API.
func (s *Server) handle(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeError(w, r, err)
		}
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	kind := core.KindOf(err)
	status := statusFor(kind)

	message := "Internal server error"
	var apiErr *core.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message = apiErr.Message
	}

	logger := log.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed",
			log.FieldError, err.Error(),
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, status)
	} else {
		logger.DebugContext(ctx, "Request rejected",
			log.FieldError, err.Error(),
			"kind", kind.String(),
			log.FieldStatusCode, status)
	}

	ErrorResponse(status, message).Write(w)
}

func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindBadRequest:
		return http.StatusBadRequest
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path,
		log.FieldComponent, log.ComponentRateLimit)
	TooManyRequestsError("Too many requests, please try again later").Write(w)
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
