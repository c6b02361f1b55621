// Package engine is the single entry point the transport layer uses to serve
// chat completions. It owns request validation and the backend deadline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"llm-gateway/internal/models"
	"llm-gateway/internal/provider"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 60 * time.Second

// Router is the routing capability the engine delegates to.
type Router interface {
	Route(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
}

// ModelLister reports the models served by the registered providers.
type ModelLister interface {
	Models() []models.ModelInfo
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithLimits sets the accepted parameter ranges.
func WithLimits(limits models.Limits) Option {
	return func(e *Engine) {
		e.limits = limits
	}
}

// WithModels exposes a model listing through Models.
func WithModels(lister ModelLister) Option {
	return func(e *Engine) {
		e.lister = lister
	}
}

// Engine validates requests and hands them to the router.
type Engine struct {
	router  Router
	lister  ModelLister
	limits  models.Limits
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs an engine around router.
func New(router Router, opts ...Option) *Engine {
	e := &Engine{
		router:  router,
		limits:  models.DefaultLimits(),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chat serves one chat completion.
func (e *Engine) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if err := req.Validate(e.limits); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.router.Route(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = provider.Failed("engine", fmt.Errorf("backend call exceeded %s: %w", e.timeout, err))
		}
		level := slog.LevelError
		var cerr *provider.ConfigurationError
		if errors.As(err, &cerr) {
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "chat completion failed",
			"model", req.Model,
			"duration", time.Since(start),
			"error", err,
		)
		return nil, err
	}

	e.logger.InfoContext(ctx, "chat completion served",
		"model", req.Model,
		"resolved_model", resp.Model,
		"duration", time.Since(start),
	)
	return resp, nil
}

// Models lists the default model of every registered provider.
func (e *Engine) Models() []models.ModelInfo {
	if e.lister == nil {
		return nil
	}
	return e.lister.Models()
}
