package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/artpar/stagehand/internal/core/deployment"
	"github.com/artpar/stagehand/internal/shell/orchestrator"
	"github.com/artpar/stagehand/internal/shell/runner"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Workspace    string            `mapstructure:"workspace"`
	Method       string            `mapstructure:"method"`
	StopExisting bool              `mapstructure:"stop_existing"`
	Timeout      time.Duration     `mapstructure:"timeout"` // Per component; zero means none
	Environment  EnvironmentConfig `mapstructure:"environment"`
	Tool         ToolConfig        `mapstructure:"tool"`
	Docker       DockerConfig      `mapstructure:"docker"`
	History      HistoryConfig     `mapstructure:"history"`
	Log          LogConfig         `mapstructure:"log"`
}

// EnvironmentConfig describes the container components run against.
type EnvironmentConfig struct {
	Image       string `mapstructure:"image"`
	Container   string `mapstructure:"container"`
	AutoRemove  bool   `mapstructure:"auto_remove"`
	PullMissing bool   `mapstructure:"pull_missing"`

	// StopTimeout is how long the daemon waits before killing the
	// container on teardown. Zero leaves the daemon default.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// ToolConfig holds automation tool configuration.
type ToolConfig struct {
	Binary           string `mapstructure:"binary"`
	User             string `mapstructure:"user"`
	Verbosity        int    `mapstructure:"verbosity"`
	Arguments        string `mapstructure:"arguments"`
	ExternalPlaybook string `mapstructure:"external_playbook"` // Entry point of the remote method
	PluginRoot       string `mapstructure:"plugin_root"`       // Staging root of the local method
	Shell            string `mapstructure:"shell"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// HistoryConfig holds run history configuration. An empty DSN disables it.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Settings converts the configuration into orchestrator settings.
func (c *Config) Settings() orchestrator.Settings {
	return orchestrator.Settings{
		WorkspacePath:    c.Workspace,
		Method:           c.Method,
		Image:            c.Environment.Image,
		ContainerName:    c.Environment.Container,
		StopExisting:     c.StopExisting,
		AutoRemove:       c.Environment.AutoRemove,
		PullMissing:      c.Environment.PullMissing,
		Arguments:        c.Tool.Arguments,
		ComponentTimeout: c.Timeout,
	}
}

// =============================================================================
// Config Loading
// =============================================================================

// newViper returns a viper instance carrying every default.
func newViper() *viper.Viper {
	v := viper.New()

	defaults := orchestrator.DefaultSettings()
	v.SetDefault("workspace", "")
	v.SetDefault("method", defaults.Method)
	v.SetDefault("stop_existing", false)
	v.SetDefault("timeout", "0s")

	v.SetDefault("environment.image", defaults.Image)
	v.SetDefault("environment.container", defaults.ContainerName)
	v.SetDefault("environment.auto_remove", defaults.AutoRemove)
	v.SetDefault("environment.pull_missing", false)
	v.SetDefault("environment.stop_timeout", "0s")

	v.SetDefault("tool.binary", deployment.DefaultTool)
	v.SetDefault("tool.user", "root")
	v.SetDefault("tool.verbosity", 4)
	v.SetDefault("tool.arguments", deployment.DefaultArguments)
	v.SetDefault("tool.external_playbook", "/srv/deploy_components/plugin-external-plugin/plugin-external-plugin.yml")
	v.SetDefault("tool.plugin_root", runner.DefaultPluginRoot)
	v.SetDefault("tool.shell", "sh")

	v.SetDefault("docker.host", "")
	v.SetDefault("history.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("STAGEHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig reads the optional settings file into v and unmarshals the
// merged configuration. Precedence is flag, environment, file, default.
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse settings file: %w", err)
			}
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component could work with. The workspace path
// and method are checked by the orchestrator.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return deployment.NewConfigurationError("timeout", "must not be negative", nil)
	}
	if c.Environment.StopTimeout < 0 {
		return deployment.NewConfigurationError("environment.stop_timeout", "must not be negative", nil)
	}
	if c.Tool.Verbosity < 0 {
		return deployment.NewConfigurationError("tool.verbosity", "must not be negative", nil)
	}
	if strings.TrimSpace(c.Environment.Image) == "" {
		return deployment.NewConfigurationError("environment.image", "must not be empty", deployment.ErrMissingKey)
	}
	if strings.TrimSpace(c.Environment.Container) == "" {
		return deployment.NewConfigurationError("environment.container", "must not be empty", deployment.ErrMissingKey)
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to w so the console stream stays clean.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
