// Package openai adapts the canonical chat schema to OpenAI-compatible APIs.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"llm-gateway/internal/models"
	"llm-gateway/internal/provider"
)

const (
	// ProviderName is the registry key of the OpenAI adapter.
	ProviderName = "openai"

	// DefaultModel is used when the request names only the vendor family.
	DefaultModel = "gpt-4o-mini"

	credentialEnv = "OPENAI_API_KEY"
)

// chatCompleter is the slice of the go-openai client the adapter depends on.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config carries the settings required to build the adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
}

// Provider implements provider.Provider for OpenAI-compatible APIs.
type Provider struct {
	defaultModel string
	backend      chatCompleter
	newID        func() string
}

// New creates a new OpenAI provider.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, provider.MissingCredential(ProviderName, credentialEnv)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL := strings.TrimRight(cfg.BaseURL, "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return newProvider(cfg.DefaultModel, openai.NewClientWithConfig(clientCfg)), nil
}

func newProvider(defaultModel string, backend chatCompleter) *Provider {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = DefaultModel
	}
	return &Provider{
		defaultModel: defaultModel,
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
	payload, err := p.translateRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.backend.CreateChatCompletion(ctx, payload)
	if err != nil {
		return nil, provider.Failed(ProviderName, fmt.Errorf("create chat completion: %w", err))
	}

	out, err := p.translateResponse(payload.Model, resp)
	if err != nil {
		return nil, provider.Failed(ProviderName, err)
	}
	return out, nil
}
