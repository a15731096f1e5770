package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags onto configuration keys. Flags are bound
// when a command runs so that commands sharing a flag name never steal each
// other's binding.
var flagKeys = map[string]string{
	"tree":         "build.tree",
	"template":     "build.template",
	"fragments":    "build.fragments",
	"output":       "build.output",
	"export":       "build.exports",
	"minifier":     "build.minifier",
	"minifier-arg": "build.minifier_args",
	"cache-size":   "build.cache_size",
	"host":         "server.host",
	"port":         "server.port",
	"debounce":     "watch.debounce",
}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) {
	for _, flagType := range flagTypes {
		switch flagType {
		case "build":
			addBuildFlags(cmd.Flags())
		case "server":
			addServerFlags(cmd.Flags())
		case "watch":
			addWatchFlags(cmd.Flags())
		}
	}
}

func addBuildFlags(flags *pflag.FlagSet) {
	flags.String("tree", "", "configuration tree to compile (default formatter.yml)")
	flags.String("template", "", "render template used by preview")
	flags.String("fragments", "", "directory overriding the embedded runtime fragments")
	flags.StringP("output", "o", "", "output file, - for stdout (default formatter.js)")
	flags.StringSliceP("export", "e", nil, "methods to export (default all)")
	flags.StringP("minifier", "m", "", "minifier name (default Noop)")
	flags.StringArray("minifier-arg", nil, "minifier constructor argument (repeatable)")
	flags.Int64("cache-size", 0, "minifier cache size in bytes, 0 disables")
}

func addServerFlags(flags *pflag.FlagSet) {
	flags.IntP("port", "p", 8080, "Port to serve on")
	flags.String("host", "localhost", "Host to bind to")
}

func addWatchFlags(flags *pflag.FlagSet) {
	flags.Duration("debounce", 0, "delay before rebuilding after a change (default 300ms)")
}

// bindFlags binds the command's standard flags to their configuration keys.
func bindFlags(cmd *cobra.Command) error {
	names := make([]string, 0, len(flagKeys))
	for name := range flagKeys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(flagKeys[name], flag); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// ValidateFlags validates flag values before configuration loading
func ValidateFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()

	if flags.Changed("port") {
		port, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid port %d: must be between 0 and 65535", port)
		}
	}

	if flags.Changed("debounce") {
		debounce, err := flags.GetDuration("debounce")
		if err != nil {
			return err
		}
		if debounce < 0 || debounce > time.Minute {
			return fmt.Errorf("invalid debounce %s: must be between 0 and 1m", debounce)
		}
	}

	if flags.Changed("cache-size") {
		size, err := flags.GetInt64("cache-size")
		if err != nil {
			return err
		}
		if size < 0 {
			return fmt.Errorf("invalid cache size %d: must not be negative", size)
		}
	}

	if flags.Changed("minifier-arg") && !flags.Changed("minifier") && !viper.IsSet("build.minifier") {
		return fmt.Errorf("--minifier-arg requires --minifier")
	}

	return nil
}

// prepareCommand validates and binds flags. It runs as PreRunE of every
// command that loads configuration.
func prepareCommand(cmd *cobra.Command, _ []string) error {
	if err := ValidateFlags(cmd); err != nil {
		return err
	}
	return bindFlags(cmd)
}
