package config

import (
	"fmt"
	"os"
	"strings"

	internal "github.com/leon5354/Coc-AI-Runner/cocai"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Scripter ScripterConfig `mapstructure:"scripter"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Recall   RecallConfig   `mapstructure:"recall"`
}

// PathsConfig stores the on-disk layout for campaigns, saves, and the
// recall database.
type PathsConfig struct {
	CampaignDir string `mapstructure:"campaign_dir"`
	SaveDir     string `mapstructure:"save_dir"`
	RecallDB    string `mapstructure:"recall_db"`
}

// OracleConfig stores the generation backend selection for the Keeper and
// the investigators. Provider is one of "google", "openrouter", "ollama",
// "local".
type OracleConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// Local (GGUF) settings, used only when provider is "local".
	ModelPath   string `mapstructure:"model_path"`
	ContextSize int    `mapstructure:"context_size"`
	GPULayers   int    `mapstructure:"gpu_layers"`
}

// ScripterConfig stores the (possibly different) backend used by the
// scenario-authoring assistant.
type ScripterConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// MemoryConfig stores tiered-memory tuning.
type MemoryConfig struct {
	SummaryThreshold int `mapstructure:"summary_threshold"` // buffer entries before condensation
	ContextTruncate  int `mapstructure:"context_truncate"`  // max chars of rendered context given to agents
}

// RecallConfig stores semantic-recall settings.
type RecallConfig struct {
	Enabled bool `mapstructure:"enabled"`
	K       int  `mapstructure:"k"` // top-k snippets per query
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
// Provider and model selection is resolved here, once, so the session
// components receive explicit constructor arguments instead of reading
// the environment ad hoc.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("paths.campaign_dir", internal.DefaultCampaignDir)
	viper.SetDefault("paths.save_dir", internal.DefaultSaveDir)
	viper.SetDefault("paths.recall_db", internal.DefaultRecallDB)

	// Oracle defaults
	viper.SetDefault("oracle.provider", "google")
	viper.SetDefault("oracle.model", "gemini-2.0-flash")
	viper.SetDefault("oracle.temperature", 0.7)
	viper.SetDefault("oracle.max_tokens", 8192)
	viper.SetDefault("oracle.context_size", 4096)
	viper.SetDefault("oracle.gpu_layers", 0)

	// Scripter defaults to the oracle backend unless overridden
	viper.SetDefault("scripter.provider", "")
	viper.SetDefault("scripter.model", "")

	// Memory defaults
	viper.SetDefault("memory.summary_threshold", 5)
	viper.SetDefault("memory.context_truncate", 800)

	// Recall defaults (off unless a database path is usable)
	viper.SetDefault("recall.enabled", false)
	viper.SetDefault("recall.k", 3)

	viper.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. oracle.provider becomes ORACLE_PROVIDER
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Legacy environment names kept from earlier releases.
	_ = viper.BindEnv("oracle.provider", "ORACLE_PROVIDER", "LLM_PROVIDER")
	_ = viper.BindEnv("oracle.model", "ORACLE_MODEL", "LLM_MODEL")
	_ = viper.BindEnv("scripter.provider", "SCRIPTER_PROVIDER")
	_ = viper.BindEnv("scripter.model", "SCRIPTER_MODEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment are enough.
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	resolveCredentials(&AppConfig)

	return &AppConfig, nil
}

// resolveCredentials fills API keys from the provider-specific variables
// the hosted backends document, so a plain .env works out of the box.
func resolveCredentials(cfg *Config) {
	if cfg.Oracle.APIKey == "" {
		cfg.Oracle.APIKey = keyForProvider(cfg.Oracle.Provider)
	}
	if cfg.Scripter.Provider == "" {
		cfg.Scripter.Provider = cfg.Oracle.Provider
	}
	if cfg.Scripter.Model == "" {
		cfg.Scripter.Model = cfg.Oracle.Model
	}
	if cfg.Scripter.APIKey == "" {
		cfg.Scripter.APIKey = keyForProvider(cfg.Scripter.Provider)
	}
}

func keyForProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "google":
		if k := os.Getenv("GOOGLE_API_KEY"); k != "" {
			return k
		}
		return os.Getenv("GEMINI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return ""
	}
}
