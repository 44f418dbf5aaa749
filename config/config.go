// Package config loads featurekit settings from FEATUREKIT_* environment
// variables.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/pkgmeta"
)

// Prefix of every environment variable.
const Prefix = "FEATUREKIT"

// Config holds all featurekit configuration.
type Config struct {
	Host     HostConfig
	Packages PackagesConfig
	Feature  FeatureConfig
	Modules  ModulesConfig
	Runtime  RuntimeConfig
	Log      LogConfig
}

// HostConfig describes the host application.
type HostConfig struct {
	Name         string   `split_words:"true" default:"featurectl"`
	Assets       string   `split_words:"true" default:"assets"`
	Capabilities []string `split_words:"true" default:"image-processing"`
}

// PackagesConfig locates installed packages.
type PackagesConfig struct {
	Dir string `split_words:"true" default:"packages"`
}

// FeatureConfig names the feature's plugin package and module.
type FeatureConfig struct {
	Plugin    string `split_words:"true" default:"com.example.plugin"`
	Module    string `split_words:"true" default:"feature"`
	Preview   string `split_words:"true" default:"preview.mp4"`
	LensGroup string `split_words:"true" default:"featured"`
}

// ModulesConfig locates dynamically installed modules.
type ModulesConfig struct {
	Catalog    string `split_words:"true" default:"modules"`
	InstallDir string `split_words:"true" default:"installed"`
}

// RuntimeConfig tunes the wasm runtime of package loaders.
type RuntimeConfig struct {
	CacheDir         string `split_words:"true" default:".cache"`
	MemoryLimitPages uint32 `split_words:"true" default:"0"`
	CompilationCache bool   `split_words:"true" default:"true"`
	WASI             bool   `split_words:"true" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `split_words:"true" default:"info"`
	Development bool   `split_words:"true" default:"false"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			Name:         "featurectl",
			Assets:       "assets",
			Capabilities: []string{"image-processing"},
		},
		Packages: PackagesConfig{Dir: "packages"},
		Feature: FeatureConfig{
			Plugin:    "com.example.plugin",
			Module:    "feature",
			Preview:   "preview.mp4",
			LensGroup: "featured",
		},
		Modules: ModulesConfig{
			Catalog:    "modules",
			InstallDir: "installed",
		},
		Runtime: RuntimeConfig{
			CacheDir:         ".cache",
			CompilationCache: true,
			WASI:             true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks identities and the log level.
func (c *Config) Validate() error {
	if err := pkgmeta.ValidateIdentity(c.Feature.Plugin); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "plugin package")
	}
	if err := pkgmeta.ValidateIdentity(c.Feature.Module); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "feature module")
	}
	if c.Packages.Dir == "" || c.Modules.Catalog == "" || c.Modules.InstallDir == "" {
		return errors.InvalidInput(errors.PhaseConfig, "directories cannot be empty")
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	return nil
}
