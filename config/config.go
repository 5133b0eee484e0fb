// Package config loads runtime configuration for the patchgate daemon from a
// yaml file, environment variables and defaults, in that order of precedence
// reversed (env overrides file overrides defaults).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patchgate/patchgate/policy"
)

// Config is the root configuration.
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// WorkspaceConfig locates the directory patches are applied under.
type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// PolicyConfig selects the operating mode and per-capability overrides.
// File, when set, points at a standalone policy yaml and takes precedence
// over the inline mode/overrides fields.
type PolicyConfig struct {
	File      string            `mapstructure:"file"`
	Mode      string            `mapstructure:"mode"`
	Overrides map[string]string `mapstructure:"overrides"`
}

// StoreConfig selects where approval records live.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // memory, fs
	Path    string `mapstructure:"path"`    // record directory for the fs backend
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AuditConfig points at the JSONL audit trail; empty disables it.
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// LoggerConfig tunes zap output.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// TracingConfig enables the stdout trace exporter.
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"`
}

// Load reads configuration from path (optional; when empty viper searches
// ./patchgate.yaml and ./configs/patchgate.yaml), applies PATCHGATE_*
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("patchgate")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("PATCHGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// no file found, run on env and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace.root", "work")
	v.SetDefault("policy.mode", string(policy.ModeDev))
	v.SetDefault("store.backend", "memory")
	v.SetDefault("server.addr", ":8091")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("tracing.output", "traces.jsonl")
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory":
	case "fs":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the fs backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Policy.File == "" {
		if _, err := policy.ParseMode(c.Policy.Mode); err != nil {
			return err
		}
	}
	return nil
}

// PolicyEngine builds the policy engine this configuration describes, either
// from the referenced policy file or from the inline fields.
func (c *Config) PolicyEngine() (*policy.Engine, error) {
	if c.Policy.File != "" {
		fileCfg, err := policy.LoadConfig(c.Policy.File)
		if err != nil {
			return nil, err
		}
		return fileCfg.NewEngine()
	}
	inline := &policy.Config{Mode: c.Policy.Mode, Overrides: c.Policy.Overrides}
	return inline.NewEngine()
}

// NewLogger builds a zap logger per the logger section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logger level %q: %w", c.Logger.Level, err)
	}

	var zc zap.Config
	switch c.Logger.Format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json", "":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid logger format %q", c.Logger.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
