package provider

import (
	"context"
	"errors"
	"fmt"

	"llm-gateway/internal/models"
)

var (
	// ErrUnsupportedModel indicates no routing rule matches the requested model.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrProviderNotConfigured indicates the model maps to a provider without credentials.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrMissingCredential indicates an adapter was constructed without an API key.
	ErrMissingCredential = errors.New("missing credential")
)

// Provider defines the behaviour required to serve canonical chat requests.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
}

// ConfigurationError is a client-visible routing or setup failure.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// UnsupportedModel builds the error returned when no provider claims a model.
func UnsupportedModel(model string) *ConfigurationError {
	return &ConfigurationError{
		Message: fmt.Sprintf("Unsupported model: %s", model),
		Err:     ErrUnsupportedModel,
	}
}

// NotConfigured builds the error returned when a model's provider has no credentials.
func NotConfigured(name string) *ConfigurationError {
	return &ConfigurationError{
		Message: fmt.Sprintf("provider %s is not configured (missing API key)", name),
		Err:     ErrProviderNotConfigured,
	}
}

// MissingCredential builds the error raised when an adapter is constructed without a key.
func MissingCredential(name, envVar string) *ConfigurationError {
	return &ConfigurationError{
		Message: fmt.Sprintf("%s provider requires an API key (%s)", name, envVar),
		Err:     ErrMissingCredential,
	}
}

// ProviderError wraps a failed backend call. Its details are never shown to clients.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Failed wraps err as a ProviderError unless it already is one.
func Failed(name string, err error) error {
	if err == nil {
		return nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return err
	}
	return &ProviderError{Provider: name, Err: err}
}
