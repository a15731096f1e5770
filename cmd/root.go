// Package cmd provides the command-line interface for markupc with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--tree, --port, etc.) - highest priority
//	2. MARKUPC_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (MARKUPC_BUILD_TREE, etc.)
//	4. Configuration files (.markupc.yml) - lowest priority
//
// Environment Variables:
//
//	MARKUPC_CONFIG_FILE: Path to custom configuration file
//	MARKUPC_BUILD_TREE: Override the configuration tree path
//	MARKUPC_BUILD_EXPORTS: Comma separated export methods
//	MARKUPC_SERVER_PORT: Override server port
//	And more following the MARKUPC_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/markupc/internal/logging"
	"github.com/conneroisu/markupc/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "markupc",
	Short: "Compile text formatter configurations into JavaScript parsers",
	Long: `markupc compiles a text formatter configuration (tags, attribute filters,
plugins and render template) into a self-contained JavaScript bundle that
parses markup in the browser and renders live previews.

Quick Start:
  markupc init                    Create a starter configuration
  markupc build                   Compile formatter.yml to formatter.js
  markupc watch                   Rebuild whenever an input changes
  markupc serve                   Serve the bundle with a live preview page
  markupc validate                Check the configuration

Command Aliases (for faster typing):
  build (b), watch (w), serve (s), validate (v)`,
	SilenceUsage: true,
	Version:      version.GetShortVersion(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .markupc.yml, can also use MARKUPC_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. MARKUPC_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .markupc.yml in current directory
//
// Automatic environment variable binding is enabled for every key with the
// MARKUPC_ prefix (e.g. MARKUPC_SERVER_PORT=9000).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("MARKUPC_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".markupc")
	}

	viper.SetEnvPrefix("MARKUPC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// A missing or unreadable config file falls back to defaults; an
	// explicitly requested one must exist.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: cannot read config file %s: %v\n", cfgFile, err)
	}
}

// newLogger builds the structured logger selected by --log-level and
// --log-format. Logs go to the command's error stream.
func newLogger(cmd *cobra.Command) (logging.Logger, error) {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}

	format := viper.GetString("log-format")
	if format != "" && format != "text" && format != "json" {
		return nil, fmt.Errorf("unsupported log format: %s (supported: text, json)", format)
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	}), nil
}

// commandContext returns the command's context, or a background context
// for commands invoked directly in tests.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
