// Package config handles configuration loading for warden.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for warden.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Trust        TrustConfig        `mapstructure:"trust"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	State        StateConfig        `mapstructure:"state"`
	TUI          TUIConfig          `mapstructure:"tui"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// TrustConfig holds the trust-root settings for skill resolution.
type TrustConfig struct {
	// Root is the residence path every plan step must live under.
	Root string `mapstructure:"root"`
	// SkillsDir is the on-disk directory skill declarations load from.
	SkillsDir string `mapstructure:"skills_dir"`
}

// OrchestratorConfig holds run-shaping settings.
type OrchestratorConfig struct {
	MaxParallelism int           `mapstructure:"max_parallelism"`
	QueueTimeout   time.Duration `mapstructure:"queue_timeout"`
	TotalTimeout   time.Duration `mapstructure:"total_timeout"`
	AbortOnError   bool          `mapstructure:"abort_on_error"`
	MaxTokens      int64         `mapstructure:"max_tokens"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// DBPath overrides the project-local database location.
	DBPath string `mapstructure:"db_path"`
	// TrailDir is where per-step paper trails are written.
	TrailDir string `mapstructure:"trail_dir"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.warden.yaml in current directory or parent)
// 3. User config (~/.config/warden/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_aws_bedrock", "CLAUDE_CODE_USE_BEDROCK")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("trust.root", "agents")
	v.SetDefault("trust.skills_dir", ".warden/skills")

	v.SetDefault("orchestrator.max_parallelism", 5)
	v.SetDefault("orchestrator.queue_timeout", "30s")
	v.SetDefault("orchestrator.total_timeout", "10m")
	v.SetDefault("orchestrator.abort_on_error", false)
	v.SetDefault("orchestrator.max_tokens", 4096)

	v.SetDefault("state.db_path", "")
	v.SetDefault("state.trail_dir", ".warden/trails")

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for warden.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "warden")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "warden")
	}
	return filepath.Join(home, ".config", "warden")
}

// findProjectConfig searches for .warden.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".warden.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Trust: TrustConfig{
			Root:      "agents",
			SkillsDir: ".warden/skills",
		},
		Orchestrator: OrchestratorConfig{
			MaxParallelism: 5,
			QueueTimeout:   30 * time.Second,
			TotalTimeout:   10 * time.Minute,
			MaxTokens:      4096,
		},
		State: StateConfig{
			TrailDir: ".warden/trails",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
