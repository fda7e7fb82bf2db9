package oracle

import (
	"fmt"
	"strings"

	"github.com/leon5354/Coc-AI-Runner/cocai/config"
	"github.com/rs/zerolog"
)

const (
	googleCompatBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	openRouterBaseURL   = "https://openrouter.ai/api/v1"
	ollamaBaseURL       = "http://localhost:11434/v1"
)

// ScripterBackend projects the scenario-authoring backend selection
// into an oracle configuration. Fields the scripter section leaves
// blank fall back to the main oracle settings.
func ScripterBackend(cfg *config.Config) config.OracleConfig {
	out := cfg.Oracle
	if cfg.Scripter.Provider != "" {
		out.Provider = cfg.Scripter.Provider
	}
	if cfg.Scripter.Model != "" {
		out.Model = cfg.Scripter.Model
	}
	if cfg.Scripter.APIKey != "" {
		out.APIKey = cfg.Scripter.APIKey
	}
	if cfg.Scripter.BaseURL != "" {
		out.BaseURL = cfg.Scripter.BaseURL
	}
	return out
}

// New builds the Provider selected by the configuration. Credentials and
// endpoints are resolved here, once, at session start.
func New(cfg config.OracleConfig, logger zerolog.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "google":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("missing API key for google provider")
		}
		base := cfg.BaseURL
		if base == "" {
			base = googleCompatBaseURL
		}
		return newOpenAICompat(base, cfg.APIKey, cfg.Model, logger), nil

	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("missing API key for openrouter provider")
		}
		base := cfg.BaseURL
		if base == "" {
			base = openRouterBaseURL
		}
		return newOpenAICompat(base, cfg.APIKey, cfg.Model, logger), nil

	case "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = ollamaBaseURL
		}
		// Ollama requires a key on the wire but ignores its value.
		return newOpenAICompat(base, "ollama", cfg.Model, logger), nil

	case "local":
		return newLocalProvider(cfg, logger)

	default:
		return nil, fmt.Errorf("unsupported oracle provider: %q", cfg.Provider)
	}
}
