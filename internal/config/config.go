package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider identifiers understood by the gateway.
const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	defaultPort           = 8000
	defaultAPIPrefix      = "/api/v1"
	defaultRequestTimeout = 60 * time.Second
	defaultAnthropicMax   = 1024
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Routing       []RouteRule         `yaml:"routing"`
	Limits        LimitsConfig        `yaml:"limits"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	APIPrefix string `yaml:"api_prefix"`
}

// ProvidersConfig catalogues the supported upstream providers.
type ProvidersConfig struct {
	Google    ProviderConfig `yaml:"google"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
}

// ProviderConfig captures authentication and defaults for a provider.
// A provider without an API key is not registered.
type ProviderConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	DefaultModel string  `yaml:"default_model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Headers      Headers `yaml:"headers"`
}

// Enabled reports whether a credential is present.
func (p ProviderConfig) Enabled() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// RouteRule maps case-insensitive model prefixes to a provider.
type RouteRule struct {
	Provider string   `yaml:"provider"`
	Prefixes []string `yaml:"prefixes"`
}

// LimitsConfig bounds request parameters and backend latency.
type LimitsConfig struct {
	MinTemperature float64       `yaml:"min_temperature"`
	MaxTemperature float64       `yaml:"max_temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ObservabilityConfig toggles logging and metrics output.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Metrics   bool   `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: defaultPort, APIPrefix: defaultAPIPrefix},
		Providers: ProvidersConfig{
			Google:    ProviderConfig{DefaultModel: "gemini-2.0-flash-lite-001"},
			OpenAI:    ProviderConfig{DefaultModel: "gpt-4o-mini"},
			Anthropic: ProviderConfig{DefaultModel: "claude-3-5-haiku-latest", MaxTokens: defaultAnthropicMax},
		},
		Routing: DefaultRoutes(),
		Limits: LimitsConfig{
			MinTemperature: 0,
			MaxTemperature: 2,
			RequestTimeout: defaultRequestTimeout,
		},
		Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "text", Metrics: true},
	}
}

// DefaultRoutes returns the built-in model prefix rules in evaluation order.
func DefaultRoutes() []RouteRule {
	return []RouteRule{
		{Provider: ProviderGoogle, Prefixes: []string{"gemini", "google"}},
		{Provider: ProviderOpenAI, Prefixes: []string{"gpt", "chatgpt", "o1", "o3", "o4", "openai"}},
		{Provider: ProviderAnthropic, Prefixes: []string{"claude", "anthropic"}},
	}
}

// Load reads an optional YAML file on top of the defaults. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}
	return cfg, nil
}

// LoadDotEnv populates the process environment from a .env file without
// overriding variables that are already set. A missing file is only an
// error when required is true.
func LoadDotEnv(path string, required bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides configuration values from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	str(&c.Providers.Google.APIKey, "GOOGLE_API_KEY", "GEMINI_API_KEY")
	str(&c.Providers.Google.DefaultModel, "GEMINI_DEFAULT_MODEL")
	str(&c.Providers.Google.BaseURL, "GOOGLE_BASE_URL")
	str(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&c.Providers.OpenAI.DefaultModel, "OPENAI_DEFAULT_MODEL")
	str(&c.Providers.OpenAI.BaseURL, "OPENAI_BASE_URL")
	str(&c.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	str(&c.Providers.Anthropic.DefaultModel, "ANTHROPIC_DEFAULT_MODEL")
	str(&c.Providers.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")
	str(&c.Observability.LogLevel, "LOG_LEVEL")
	str(&c.Observability.LogFormat, "LOG_FORMAT")

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PORT must be an integer, got %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("METRICS_ENABLED"); ok && strings.TrimSpace(v) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("METRICS_ENABLED must be a boolean, got %q", v)
		}
		c.Observability.Metrics = enabled
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		timeout, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT must be a duration, got %q", v)
		}
		c.Limits.RequestTimeout = timeout
	}
	return nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return fmt.Errorf("server.api_prefix must start with '/', got %q", c.Server.APIPrefix)
	}

	if c.Limits.MinTemperature < 0 || c.Limits.MaxTemperature < c.Limits.MinTemperature {
		return fmt.Errorf("limits: temperature range [%g, %g] is invalid", c.Limits.MinTemperature, c.Limits.MaxTemperature)
	}
	if c.Limits.RequestTimeout <= 0 {
		return fmt.Errorf("limits.request_timeout must be positive, got %s", c.Limits.RequestTimeout)
	}

	for name, provider := range c.Providers.byName() {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	if len(c.Routing) == 0 {
		return errors.New("routing: at least one rule must be configured")
	}
	for i, rule := range c.Routing {
		if _, ok := c.Providers.byName()[rule.Provider]; !ok {
			return fmt.Errorf("routing[%d]: unknown provider %q", i, rule.Provider)
		}
		if len(rule.Prefixes) == 0 {
			return fmt.Errorf("routing[%d]: at least one prefix must be configured", i)
		}
		for _, prefix := range rule.Prefixes {
			if strings.TrimSpace(prefix) == "" {
				return fmt.Errorf("routing[%d]: prefix must not be empty", i)
			}
		}
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("observability.log_level %q must be one of debug, info, warn or error", c.Observability.LogLevel)
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("observability.log_format %q must be text or json", c.Observability.LogFormat)
	}

	return nil
}

func (p ProvidersConfig) byName() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		ProviderGoogle:    p.Google,
		ProviderOpenAI:    p.OpenAI,
		ProviderAnthropic: p.Anthropic,
	}
}

func validateProvider(name string, provider ProviderConfig) error {
	if provider.MaxTokens < 0 {
		return fmt.Errorf("provider %s: max_tokens must not be negative", name)
	}
	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
