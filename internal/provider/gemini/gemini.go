// Package gemini adapts the canonical chat schema to the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"llm-gateway/internal/models"
	"llm-gateway/internal/provider"
)

const (
	// ProviderName is the registry key of the Gemini adapter.
	ProviderName = "google"

	// DefaultModel is used when the request names only the vendor family.
	DefaultModel = "gemini-2.0-flash-lite-001"

	credentialEnv = "GOOGLE_API_KEY"
)

// generator is the slice of the genai client the adapter depends on.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config carries the settings required to build the adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
}

// Provider implements provider.Provider on top of the genai SDK.
type Provider struct {
	defaultModel string
	backend      generator
	now          func() time.Time
	newID        func() string
}

// New constructs the Gemini adapter. A missing API key is a configuration error.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, provider.MissingCredential(ProviderName, credentialEnv)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if baseURL := strings.TrimRight(cfg.BaseURL, "/"); baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL + "/"
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return newProvider(cfg.DefaultModel, client.Models), nil
}

func newProvider(defaultModel string, backend generator) *Provider {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = DefaultModel
	}
	return &Provider{
		defaultModel: defaultModel,
		backend:      backend,
		now:          time.Now,
		newID:        func() string { return "chatcmpl-" + uuid.NewString() },
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// Complete sends the whole conversation in a single stateless call.
func (p *Provider) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	call, err := p.translateRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.backend.GenerateContent(ctx, call.Model, call.Contents, call.Config)
	if err != nil {
		return nil, provider.Failed(ProviderName, fmt.Errorf("generate content: %w", err))
	}

	out, err := p.translateResponse(call.Model, resp)
	if err != nil {
		return nil, provider.Failed(ProviderName, err)
	}
	return out, nil
}
