// Package anthropic adapts the canonical chat schema to the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"llm-gateway/internal/models"
	"llm-gateway/internal/provider"
)

const (
	// ProviderName is the registry key of the Anthropic adapter.
	ProviderName = "anthropic"

	// DefaultModel is used when the request names only the vendor family.
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultMaxTokens is sent when the request leaves max_tokens unset;
	// the Messages API requires a value.
	DefaultMaxTokens = 1024

	credentialEnv = "ANTHROPIC_API_KEY"
)

// messageCreator is the slice of the SDK client the adapter depends on.
type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config carries the settings required to build the adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	HTTPClient   *http.Client
}

// Provider implements provider.Provider for Anthropic.
type Provider struct {
	defaultModel string
	maxTokens    int
	backend      messageCreator
	newID        func() string
}

// New creates the Anthropic adapter. SDK retries are disabled.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, provider.MissingCredential(ProviderName, credentialEnv)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := anthropic.NewClient(opts...)
	return newProvider(cfg.DefaultModel, cfg.MaxTokens, &client.Messages), nil
}

func newProvider(defaultModel string, maxTokens int, backend messageCreator) *Provider {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Provider{
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		backend:      backend,
		newID:        func() string { return "chatcmpl-" + uuid.NewString() },
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

func (p *Provider) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	params, err := p.translateRequest(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.backend.New(ctx, params)
	if err != nil {
		return nil, provider.Failed(ProviderName, fmt.Errorf("create message: %w", err))
	}

	out, err := p.translateResponse(string(params.Model), msg)
	if err != nil {
		return nil, provider.Failed(ProviderName, err)
	}
	return out, nil
}
