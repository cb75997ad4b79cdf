package llm

import (
	"fmt"
	"net/http"
	"strings"

	"lanecore/internal/config"
	"lanecore/internal/llm/anthropic"
	"lanecore/internal/llm/google"
	"lanecore/internal/llm/openai"
)

// NotFoundFallbacks lists, for each provider, the ordered candidate models
// tried when the configured model comes back as a "not found" error (spec.md
// §4.4's model-candidate fallback).
var NotFoundFallbacks = map[string][]string{
	"openai":    {"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini"},
	"anthropic": {"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest"},
	"google":    {"gemini-2.0-flash", "gemini-1.5-flash"},
}

// IsNotFoundError reports whether err looks like a provider "model not
// found" error, the trigger condition for trying the next fallback candidate.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "404")
}

// Factory builds Provider instances for the three configured backends and
// resolves a (provider, model) pair from routing config with a
// provider-specific default.
type Factory struct {
	cfg        config.Config
	httpClient *http.Client

	openai    *openai.Client
	anthropic *anthropic.Client
	google    *google.Client
}

// NewFactory constructs, up front, a client for each provider that has a
// non-empty API key configured.
func NewFactory(cfg config.Config, httpClient *http.Client) (*Factory, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	f := &Factory{cfg: cfg, httpClient: httpClient}

	if cfg.OpenAI.APIKey != "" {
		f.openai = openai.New(config.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		}, httpClient)
	}
	if cfg.Anthropic.APIKey != "" {
		f.anthropic = anthropic.New(config.AnthropicConfig{
			APIKey:  cfg.Anthropic.APIKey,
			Model:   cfg.Anthropic.Model,
			BaseURL: cfg.Anthropic.BaseURL,
		}, httpClient)
	}
	if cfg.Google.APIKey != "" {
		c, err := google.New(config.GoogleConfig{
			APIKey:  cfg.Google.APIKey,
			Model:   cfg.Google.Model,
			BaseURL: cfg.Google.BaseURL,
		}, httpClient)
		if err != nil {
			return nil, fmt.Errorf("init google provider: %w", err)
		}
		f.google = c
	}

	if f.openai == nil && f.anthropic == nil && f.google == nil {
		return nil, fmt.Errorf("llm: no provider configured with an API key")
	}
	return f, nil
}

// ResolveName normalizes a provider name, falling back to the process
// default (cfg.LLMProvider) when name is empty. Callers that need the
// resolved name (e.g. to look up NotFoundFallbacks) should use this instead
// of duplicating the fallback rule.
func (f *Factory) ResolveName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = f.cfg.LLMProvider
	}
	return name
}

// Provider resolves a provider by name ("openai" | "anthropic" | "google"),
// falling back to the process default (cfg.LLMProvider) when name is empty.
func (f *Factory) Provider(name string) (Provider, error) {
	name = f.ResolveName(name)
	switch name {
	case "openai":
		if f.openai == nil {
			return nil, fmt.Errorf("llm: openai provider not configured")
		}
		return f.openai, nil
	case "anthropic":
		if f.anthropic == nil {
			return nil, fmt.Errorf("llm: anthropic provider not configured")
		}
		return f.anthropic, nil
	case "google":
		if f.google == nil {
			return nil, fmt.Errorf("llm: google provider not configured")
		}
		return f.google, nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", name)
	}
}

// ConfiguredProviders lists the provider names with a successfully
// constructed client, in a stable order. Used by the /api/models route to
// report what's actually usable this process.
func (f *Factory) ConfiguredProviders() []string {
	var names []string
	if f.openai != nil {
		names = append(names, "openai")
	}
	if f.anthropic != nil {
		names = append(names, "anthropic")
	}
	if f.google != nil {
		names = append(names, "google")
	}
	return names
}

// DefaultProvider returns the process-wide default provider name
// (cfg.LLMProvider), resolved the same way ResolveName("") would.
func (f *Factory) DefaultProvider() string {
	return f.ResolveName("")
}

// DefaultModel returns the configured default model for a provider name.
func (f *Factory) DefaultModel(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic":
		return f.cfg.Anthropic.Model
	case "google":
		return f.cfg.Google.Model
	default:
		return f.cfg.OpenAI.Model
	}
}
