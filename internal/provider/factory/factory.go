package factory

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"llm-gateway/internal/config"
	"llm-gateway/internal/provider"
	anthropicProvider "llm-gateway/internal/provider/anthropic"
	geminiProvider "llm-gateway/internal/provider/gemini"
	openaiProvider "llm-gateway/internal/provider/openai"
)

const (
	defaultHTTPTimeout     = 120 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// Build constructs an adapter for every provider whose credential is present
// and returns the populated registry. Providers without credentials are
// skipped; any construction failure aborts startup.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*provider.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := provider.NewRegistry()

	builders := []struct {
		name  string
		cfg   config.ProviderConfig
		build func(config.ProviderConfig, *http.Client) (provider.Provider, error)
	}{
		{
			name: config.ProviderGoogle,
			cfg:  cfg.Providers.Google,
			build: func(pc config.ProviderConfig, client *http.Client) (provider.Provider, error) {
				return geminiProvider.New(ctx, geminiProvider.Config{
					APIKey:       pc.APIKey,
					BaseURL:      pc.BaseURL,
					DefaultModel: pc.DefaultModel,
					HTTPClient:   client,
				})
			},
		},
		{
			name: config.ProviderOpenAI,
			cfg:  cfg.Providers.OpenAI,
			build: func(pc config.ProviderConfig, client *http.Client) (provider.Provider, error) {
				return openaiProvider.New(openaiProvider.Config{
					APIKey:       pc.APIKey,
					BaseURL:      pc.BaseURL,
					DefaultModel: pc.DefaultModel,
					HTTPClient:   client,
				})
			},
		},
		{
			name: config.ProviderAnthropic,
			cfg:  cfg.Providers.Anthropic,
			build: func(pc config.ProviderConfig, client *http.Client) (provider.Provider, error) {
				return anthropicProvider.New(anthropicProvider.Config{
					APIKey:       pc.APIKey,
					BaseURL:      pc.BaseURL,
					DefaultModel: pc.DefaultModel,
					MaxTokens:    pc.MaxTokens,
					HTTPClient:   client,
				})
			},
		},
	}

	for _, b := range builders {
		if !b.cfg.Enabled() {
			logger.Info("provider disabled: no API key configured", "provider", b.name)
			continue
		}

		p, err := b.build(b.cfg, newHTTPClient(defaultHTTPTimeout, b.cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("initialise %s provider: %w", b.name, err)
		}
		if err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("register %s provider: %w", b.name, err)
		}
		logger.Info("provider registered", "provider", p.Name(), "default_model", p.DefaultModel())
	}

	return registry, nil
}

func newHTTPClient(timeout time.Duration, headers config.Headers) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	var rt http.RoundTripper = transport
	if len(headers) > 0 {
		rt = &headerTransport{base: transport, headers: headers}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

// headerTransport adds the configured static headers to every outbound request.
type headerTransport struct {
	base    http.RoundTripper
	headers config.Headers
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}
	return t.base.RoundTrip(req)
}
