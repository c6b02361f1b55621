package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/models"
	"llm-gateway/internal/observability"
	"llm-gateway/internal/provider"
)

type recordingProvider struct {
	name   string
	calls  int
	models []string
	err    error
}

func (p *recordingProvider) Name() string         { return p.name }
func (p *recordingProvider) DefaultModel() string { return p.name + "-default" }

func (p *recordingProvider) Complete(_ context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	p.calls++
	p.models = append(p.models, req.Model)
	if p.err != nil {
		return nil, p.err
	}
	return &models.ChatResponse{
		Model: req.Model,
		Choices: []models.Choice{{
			Message:      models.Message{Role: models.RoleAssistant, Content: "from " + p.name},
			FinishReason: models.FinishReasonStop,
		}},
		Usage: &models.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
	}, nil
}

func defaultRules() []Rule {
	return []Rule{
		{Provider: "google", Prefixes: []string{"gemini", "google"}},
		{Provider: "openai", Prefixes: []string{"gpt", "o1", "openai"}},
		{Provider: "anthropic", Prefixes: []string{"claude", "anthropic"}},
	}
}

func newTestRouter(t *testing.T, providers ...*recordingProvider) *Router {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range providers {
		require.NoError(t, reg.Register(p))
	}
	return New(reg, defaultRules())
}

func request(model string) models.ChatRequest {
	return models.ChatRequest{
		Model:    model,
		Messages: []models.Message{{Role: models.RoleUser, Content: "Hi"}},
	}
}

func TestResolveByVendorToken(t *testing.T) {
	google := &recordingProvider{name: "google"}
	openai := &recordingProvider{name: "openai"}
	anthropic := &recordingProvider{name: "anthropic"}
	r := newTestRouter(t, google, openai, anthropic)

	tests := []struct {
		model    string
		provider string
		upstream string
	}{
		{model: "gemini-2.0-flash", provider: "google", upstream: "gemini-2.0-flash"},
		{model: "Gemini-1.5-Pro", provider: "google", upstream: "Gemini-1.5-Pro"},
		{model: "gemini", provider: "google", upstream: "gemini"},
		{model: "gpt-4o-mini", provider: "openai", upstream: "gpt-4o-mini"},
		{model: "o1-preview", provider: "openai", upstream: "o1-preview"},
		{model: "claude-3-5-sonnet-latest", provider: "anthropic", upstream: "claude-3-5-sonnet-latest"},
		{model: "openai/my-finetune", provider: "openai", upstream: "my-finetune"},
		{model: "google/gemini-exp", provider: "google", upstream: "gemini-exp"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, upstream, err := r.Resolve(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, p.Name())
			assert.Equal(t, tt.upstream, upstream)
		})
	}
}

func TestResolveUnsupportedModel(t *testing.T) {
	google := &recordingProvider{name: "google"}
	r := newTestRouter(t, google)

	for _, model := range []string{"unknown-model", "", "mistral/large", "llama3"} {
		_, _, err := r.Resolve(model)

		var cerr *provider.ConfigurationError
		require.ErrorAs(t, err, &cerr, model)
		assert.ErrorIs(t, err, provider.ErrUnsupportedModel)
		assert.Contains(t, strings.ToLower(err.Error()), "unsupported model")
	}
}

func TestResolveDoesNotFallBackToSoleProvider(t *testing.T) {
	r := newTestRouter(t, &recordingProvider{name: "google"})

	_, _, err := r.Resolve("gpt-4o")
	assert.ErrorIs(t, err, provider.ErrProviderNotConfigured)

	_, _, err = r.Resolve("anthropic/claude-3-opus")
	assert.ErrorIs(t, err, provider.ErrProviderNotConfigured)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestRulesAreEvaluatedInOrder(t *testing.T) {
	reg := provider.NewRegistry()
	first := &recordingProvider{name: "first"}
	second := &recordingProvider{name: "second"}
	require.NoError(t, reg.Register(first))
	require.NoError(t, reg.Register(second))

	r := New(reg, []Rule{
		{Provider: "first", Prefixes: []string{" GPT-4 "}},
		{Provider: "second", Prefixes: []string{"gpt"}},
	})

	p, _, err := r.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name())

	p, _, err = r.Resolve("gpt-3.5-turbo")
	require.NoError(t, err)
	assert.Equal(t, "second", p.Name())
}

func TestRouteCallsOnlySelectedProvider(t *testing.T) {
	google := &recordingProvider{name: "google"}
	openai := &recordingProvider{name: "openai"}
	r := newTestRouter(t, google, openai)

	resp, err := r.Route(context.Background(), request("google/gemini-2.0-flash"))
	require.NoError(t, err)

	assert.Equal(t, "from google", resp.Choices[0].Message.Content)
	assert.Equal(t, 1, google.calls)
	assert.Equal(t, []string{"gemini-2.0-flash"}, google.models)
	assert.Zero(t, openai.calls)
}

func TestRouteUnsupportedModelMakesNoBackendCall(t *testing.T) {
	google := &recordingProvider{name: "google"}
	r := newTestRouter(t, google)

	_, err := r.Route(context.Background(), request("unknown-model"))

	assert.ErrorIs(t, err, provider.ErrUnsupportedModel)
	assert.Zero(t, google.calls)
}

func TestRoutePropagatesProviderErrors(t *testing.T) {
	google := &recordingProvider{name: "google", err: provider.Failed("google", errors.New("quota"))}
	r := newTestRouter(t, google)

	_, err := r.Route(context.Background(), request("gemini-2.0-flash"))

	var perr *provider.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "google", perr.Provider)
}

func TestRouteRecordsMetrics(t *testing.T) {
	reg := provider.NewRegistry()
	google := &recordingProvider{name: "google"}
	failing := &recordingProvider{name: "openai", err: errors.New("boom")}
	require.NoError(t, reg.Register(google))
	require.NoError(t, reg.Register(failing))

	metrics := observability.New(prometheus.NewRegistry())
	r := New(reg, defaultRules(), WithMetrics(metrics))

	_, err := r.Route(context.Background(), request("gemini-2.0-flash"))
	require.NoError(t, err)
	_, err = r.Route(context.Background(), request("gpt-4o"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("google", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("openai", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ProviderTokensTotal.WithLabelValues("google", "input")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.ProviderTokensTotal.WithLabelValues("google", "output")))
}
