// Package server exposes onboarding intents over HTTP. Every response carries
// the visitor's current Directive.
package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/auth"
	"github.com/hkinc45/dev-kitchen-onboarding/errors"
	"github.com/hkinc45/dev-kitchen-onboarding/onboarding"
	"github.com/hkinc45/dev-kitchen-onboarding/worker"
)

const defaultCookie = "onboarding_sid"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAuth verifies visitor bearer tokens before any intent runs. Without it
// the bearer token is forwarded to the gateway unverified.
func WithAuth(m *auth.Middleware) Option {
	return func(s *Server) {
		s.auth = m
	}
}

// WithPool overrides the per-session execution pool.
func WithPool(p *worker.Pool) Option {
	return func(s *Server) {
		s.pool = p
	}
}

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.cookie = name
		}
	}
}

// Server routes intents to per-session orchestrators.
type Server struct {
	registry *Registry
	pool     *worker.Pool
	auth     *auth.Middleware
	logger   *zap.Logger
	cookie   string
	engine   *gin.Engine
}

// New builds the HTTP surface.
func New(factory VisitorFactory, opts ...Option) *Server {
	s := &Server{
		registry: NewRegistry(factory),
		logger:   zap.NewNop(),
		cookie:   defaultCookie,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = worker.NewPool(worker.Config{Logger: s.logger})
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Close stops accepting intents, waits for running ones and closes every
// visitor.
func (s *Server) Close() {
	s.pool.Stop()
	s.registry.Close()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), s.errorHandler())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.registry.Len()})
	})

	v1 := r.Group("/onboarding/v1")
	if s.auth != nil {
		v1.Use(s.auth.VisitorAuth())
	} else {
		v1.Use(auth.ForwardBearer())
	}
	v1.GET("/directive", s.intent(func(_ context.Context, _ *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
		return o.Directive(), nil
	}))
	v1.POST("/login", s.intent(s.login))
	v1.POST("/sign-in", s.intent(func(_ context.Context, _ *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
		return o.OpenSignIn(), nil
	}))
	v1.POST("/sign-in/complete", s.intent(func(ctx context.Context, _ *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
		return o.CompleteSignIn(ctx), nil
	}))
	v1.POST("/sign-up", s.intent(func(_ context.Context, _ *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
		return o.OpenSignUp(), nil
	}))
	v1.POST("/close", s.intent(func(_ context.Context, _ *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
		return o.CloseModal(), nil
	}))
	v1.POST("/reconcile-email", s.intent(func(ctx context.Context, _ *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
		d, _ := o.ReconcileEmail(ctx)
		return d, nil
	}))
	v1.POST("/field", s.intent(s.setField))
	v1.POST("/email-opt-in", s.intent(s.setEmailOptIn))
	v1.POST("/account", s.intent(s.updateAccount))
	return r
}

type intentFunc func(ctx context.Context, c *gin.Context, o *onboarding.Orchestrator) (onboarding.Directive, error)

// intent resolves the visitor and runs fn serialized with the visitor's
// other intents.
func (s *Server) intent(fn intentFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := s.sessionID(c)
		visitor := s.registry.Get(id)

		var directive onboarding.Directive
		err := s.pool.Do(c.Request.Context(), id, func(ctx context.Context) error {
			if visitor.SetBearer != nil {
				visitor.SetBearer(auth.TokenFromContext(c))
			}
			var err error
			directive, err = fn(ctx, c, visitor.Orchestrator)
			return err
		})
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, directive)
	}
}

// sessionID reads the session cookie, minting a new id when it is absent
// or malformed.
func (s *Server) sessionID(c *gin.Context) string {
	if raw, err := c.Cookie(s.cookie); err == nil {
		if _, err := uuid.Parse(raw); err == nil {
			return raw
		}
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookie, id, 0, "/", "", c.Request.TLS != nil, true)
	return id
}

// errorHandler renders the last handler error as an APIError body.
func (s *Server) errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		apiErr := toAPIError(last.Err)
		s.logger.Warn("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status_code", apiErr.StatusCode),
			zap.Error(last.Err))
		c.JSON(apiErr.StatusCode, apiErr)
	}
}

func toAPIError(err error) *errors.APIError {
	var apiErr *errors.APIError
	switch {
	case stderrors.As(err, &apiErr):
		return apiErr
	case stderrors.Is(err, worker.ErrStopped):
		return errors.NewAPIError(http.StatusServiceUnavailable, "server is shutting down")
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewAPIError(http.StatusGatewayTimeout, "operation timed out")
	default:
		return errors.NewInternalServerError(err.Error())
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-Id", requestID)

		c.Next()

		s.logger.Debug("Handled request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
