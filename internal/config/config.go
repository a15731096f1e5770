// Package config provides configuration management for markupc using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the MARKUPC_ prefix, and validation. It covers the bundle
// build (input tree, render template, output, exports, minifier), the
// preview server and the file watcher.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/markupc/internal/build"
	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/minifier"
	"github.com/conneroisu/markupc/internal/validation"
)

// Default values applied by Load.
const (
	DefaultTreePath = "formatter.yml"
	DefaultOutput   = "formatter.js"
	DefaultMinifier = "Noop"
	DefaultHost     = "localhost"
	DefaultPort     = 8080
	DefaultDebounce = 300 * time.Millisecond
)

type Config struct {
	Build  BuildConfig  `yaml:"build" mapstructure:"build"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Watch  WatchConfig  `yaml:"watch" mapstructure:"watch"`
}

type BuildConfig struct {
	// Tree is the YAML configuration tree to compile.
	Tree string `yaml:"tree" mapstructure:"tree"`
	// Template is the render template used for preview and hints.
	Template string `yaml:"template" mapstructure:"template"`
	// Fragments is an optional directory overriding embedded runtime files.
	Fragments    string   `yaml:"fragments" mapstructure:"fragments"`
	Output       string   `yaml:"output" mapstructure:"output"`
	Exports      []string `yaml:"exports" mapstructure:"exports"`
	Minifier     string   `yaml:"minifier" mapstructure:"minifier"`
	MinifierArgs []string `yaml:"minifier_args" mapstructure:"minifier_args"`
	// CacheSize bounds the minifier result cache in bytes; 0 disables it.
	CacheSize int64 `yaml:"cache_size" mapstructure:"cache_size"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// Load builds a Config from the global viper instance and validates it.
func Load() (*Config, error) {
	config, err := Decode()
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid configuration")
	}

	return config, nil
}

// Decode builds a Config from the global viper instance and applies
// defaults without validating. ValidateConfigWithDetails reports on the
// result.
func Decode() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "cannot decode configuration")
	}

	// Handle exports and minifier args set via viper (workaround for viper
	// slice handling of comma separated env values)
	if viper.IsSet("build.exports") && len(config.Build.Exports) == 0 {
		config.Build.Exports = viper.GetStringSlice("build.exports")
	}
	if viper.IsSet("build.minifier_args") && len(config.Build.MinifierArgs) == 0 {
		config.Build.MinifierArgs = viper.GetStringSlice("build.minifier_args")
	}
	// An unset export list means the default set, not an empty one; bound
	// flags report their empty default otherwise.
	if !viper.IsSet("build.exports") {
		config.Build.Exports = nil
	}
	config.Build.Exports = splitList(config.Build.Exports)

	if config.Build.Tree == "" {
		config.Build.Tree = DefaultTreePath
	}
	if config.Build.Output == "" {
		config.Build.Output = DefaultOutput
	}
	if config.Build.Minifier == "" {
		config.Build.Minifier = DefaultMinifier
	}
	if !viper.IsSet("build.cache_size") {
		config.Build.CacheSize = minifier.DefaultCacheSize
	}

	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if !viper.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}

	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = DefaultDebounce
	}

	return &config, nil
}

// splitList flattens comma separated entries such as MARKUPC_BUILD_EXPORTS
// values.
func splitList(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateBuildConfig(&config.Build); err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		if err := validation.ValidateListenHost(config.Host); err != nil {
			return fmt.Errorf("host: %w", err)
		}
	}

	return nil
}

func validateBuildConfig(config *BuildConfig) error {
	if err := validation.ValidatePath(config.Tree); err != nil {
		return fmt.Errorf("invalid tree path '%s': %w", config.Tree, err)
	}
	if config.Template != "" {
		if err := validation.ValidatePath(config.Template); err != nil {
			return fmt.Errorf("invalid template path '%s': %w", config.Template, err)
		}
	}
	if config.Fragments != "" {
		if err := validation.ValidatePath(config.Fragments); err != nil {
			return fmt.Errorf("invalid fragments path '%s': %w", config.Fragments, err)
		}
	}
	if err := validation.ValidateOutputPath(config.Output); err != nil {
		return fmt.Errorf("invalid output path '%s': %w", config.Output, err)
	}

	if _, err := build.NormalizeExports(config.Exports); err != nil {
		return err
	}

	if !slices.Contains(minifier.Names(), config.Minifier) {
		return fmt.Errorf("unknown minifier %q (available: %s)", config.Minifier, strings.Join(minifier.Names(), ", "))
	}
	if url := closureServiceURL(config); url != "" {
		if err := validation.ValidateServiceURL(url); err != nil {
			return fmt.Errorf("invalid compilation service URL '%s': %w", url, err)
		}
	}

	if config.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative: %d", config.CacheSize)
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative: %s", config.Debounce)
	}
	if config.Debounce > time.Minute {
		return fmt.Errorf("debounce %s is longer than one minute", config.Debounce)
	}
	return nil
}

// closureServiceURL returns the endpoint passed to a ClosureCompilerService
// minifier, or "" when the default endpoint is used.
func closureServiceURL(config *BuildConfig) string {
	if config.Minifier == "ClosureCompilerService" && len(config.MinifierArgs) > 0 {
		return config.MinifierArgs[0]
	}
	return ""
}
