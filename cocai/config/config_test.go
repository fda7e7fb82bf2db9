package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/leon5354/Coc-AI-Runner/cocai"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	tempDir, err := os.MkdirTemp("", "cocai-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)

	// Each test starts from a clean viper instance.
	viper.Reset()
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
	os.Unsetenv("LLM_PROVIDER")
	os.Unsetenv("LLM_MODEL")
	os.Unsetenv("SCRIPTER_PROVIDER")
	os.Unsetenv("SCRIPTER_MODEL")
	os.Unsetenv("GOOGLE_API_KEY")
	os.Unsetenv("OPENROUTER_API_KEY")
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultCampaignDir, cfg.Paths.CampaignDir)
	assert.Equal(suite.T(), internal.DefaultSaveDir, cfg.Paths.SaveDir)
	assert.Equal(suite.T(), internal.DefaultRecallDB, cfg.Paths.RecallDB)

	assert.Equal(suite.T(), "google", cfg.Oracle.Provider)
	assert.Equal(suite.T(), "gemini-2.0-flash", cfg.Oracle.Model)
	assert.Equal(suite.T(), 5, cfg.Memory.SummaryThreshold)
	assert.Equal(suite.T(), 800, cfg.Memory.ContextTruncate)
	assert.False(suite.T(), cfg.Recall.Enabled)
	assert.Equal(suite.T(), 3, cfg.Recall.K)
}

func (suite *ConfigTestSuite) TestLoadConfigFromFile() {
	configContent := `
paths:
  campaign_dir: /srv/cocai/campaigns
oracle:
  provider: ollama
  model: llama3
memory:
  summary_threshold: 8
recall:
  enabled: true
  k: 5
`
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "/srv/cocai/campaigns", cfg.Paths.CampaignDir)
	assert.Equal(suite.T(), "ollama", cfg.Oracle.Provider)
	assert.Equal(suite.T(), "llama3", cfg.Oracle.Model)
	assert.Equal(suite.T(), 8, cfg.Memory.SummaryThreshold)
	assert.True(suite.T(), cfg.Recall.Enabled)
	assert.Equal(suite.T(), 5, cfg.Recall.K)

	// Unset sections keep defaults.
	assert.Equal(suite.T(), internal.DefaultSaveDir, cfg.Paths.SaveDir)
}

func (suite *ConfigTestSuite) TestLegacyEnvironmentNames() {
	os.Setenv("LLM_PROVIDER", "openrouter")
	os.Setenv("LLM_MODEL", "anthropic/claude-sonnet-4")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "openrouter", cfg.Oracle.Provider)
	assert.Equal(suite.T(), "anthropic/claude-sonnet-4", cfg.Oracle.Model)
}

func (suite *ConfigTestSuite) TestScripterFallsBackToOracle() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), cfg.Oracle.Provider, cfg.Scripter.Provider)
	assert.Equal(suite.T(), cfg.Oracle.Model, cfg.Scripter.Model)
}

func (suite *ConfigTestSuite) TestScripterOverride() {
	os.Setenv("SCRIPTER_PROVIDER", "openrouter")
	os.Setenv("SCRIPTER_MODEL", "deepseek/deepseek-chat")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "openrouter", cfg.Scripter.Provider)
	assert.Equal(suite.T(), "deepseek/deepseek-chat", cfg.Scripter.Model)
	// The Keeper's oracle keeps its own defaults.
	assert.Equal(suite.T(), "google", cfg.Oracle.Provider)
}

func (suite *ConfigTestSuite) TestCredentialResolution() {
	os.Setenv("GOOGLE_API_KEY", "test-google-key")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "test-google-key", cfg.Oracle.APIKey)
	assert.Equal(suite.T(), "test-google-key", cfg.Scripter.APIKey)
}

func (suite *ConfigTestSuite) TestInvalidConfigFile() {
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte("oracle: [broken"), 0o644))

	_, err := LoadConfig(configFile)
	assert.Error(suite.T(), err)
}
