package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"llm-gateway/internal/models"
	"llm-gateway/internal/observability"
	"llm-gateway/internal/provider"
)

// Rule maps case-insensitive model name prefixes to a provider identifier.
type Rule struct {
	Provider string
	Prefixes []string
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used for routing decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics enables per-provider request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// Router dispatches canonical requests to exactly one provider.
//
// Selection precedence:
//  1. an explicit "<provider>/<model>" naming a known provider;
//  2. the first rule whose prefix starts the model name, in rule order;
//  3. otherwise the model is unsupported.
//
// There is no fallback to a sole registered provider.
type Router struct {
	registry *provider.Registry
	rules    []Rule
	known    map[string]struct{}
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New constructs a router backed by the provided registry and rules.
func New(registry *provider.Registry, rules []Rule, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		rules:    make([]Rule, 0, len(rules)),
		known:    make(map[string]struct{}),
		logger:   slog.Default(),
	}
	for _, rule := range rules {
		prefixes := make([]string, 0, len(rule.Prefixes))
		for _, prefix := range rule.Prefixes {
			if p := strings.ToLower(strings.TrimSpace(prefix)); p != "" {
				prefixes = append(prefixes, p)
			}
		}
		r.rules = append(r.rules, Rule{Provider: rule.Provider, Prefixes: prefixes})
		r.known[rule.Provider] = struct{}{}
	}
	for _, name := range registry.Names() {
		r.known[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve selects the provider for model and returns the model name to send
// to it. It never contacts a backend.
func (r *Router) Resolve(model string) (provider.Provider, string, error) {
	model = strings.TrimSpace(model)

	if name, rest, ok := strings.Cut(model, "/"); ok {
		name = strings.ToLower(name)
		if _, known := r.known[name]; known {
			p, err := r.lookup(name)
			return p, rest, err
		}
	}

	lowered := strings.ToLower(model)
	for _, rule := range r.rules {
		for _, prefix := range rule.Prefixes {
			if strings.HasPrefix(lowered, prefix) {
				p, err := r.lookup(rule.Provider)
				return p, model, err
			}
		}
	}

	return nil, "", provider.UnsupportedModel(model)
}

func (r *Router) lookup(name string) (provider.Provider, error) {
	p, ok := r.registry.Lookup(name)
	if !ok {
		return nil, provider.NotConfigured(name)
	}
	return p, nil
}

// Route resolves the provider for the request and performs the single backend call.
func (r *Router) Route(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	p, model, err := r.Resolve(req.Model)
	if err != nil {
		r.logger.WarnContext(ctx, "model not routable", "model", req.Model, "error", err)
		return nil, err
	}

	r.logger.DebugContext(ctx, "routing request", "model", req.Model, "provider", p.Name(), "upstream_model", model)

	start := time.Now()
	resp, err := p.Complete(ctx, req.WithModel(model))
	elapsed := time.Since(start)

	if err != nil {
		r.metrics.ObserveProvider(p.Name(), "error", elapsed, 0, 0)
		return nil, fmt.Errorf("provider %s chat request: %w", p.Name(), err)
	}

	var prompt, completion int
	if resp.Usage != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	r.metrics.ObserveProvider(p.Name(), "ok", elapsed, prompt, completion)
	return resp, nil
}
