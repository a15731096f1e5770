package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/markupc/internal/build"
	"github.com/conneroisu/markupc/internal/config"
	"github.com/conneroisu/markupc/internal/configtree"
	"github.com/conneroisu/markupc/internal/minifier"
)

var (
	validateFormat string
	validateBuild  bool
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:     "validate",
	Aliases: []string{"v"},
	Short:   "Check the configuration without writing a bundle",
	Long: `Validate the markupc settings and the formatter configuration tree:

- Settings values (exports, minifier, paths, server, debounce)
- Presence of the plugins, registeredVars, rootContext and tags sections
- Variant resolution for the JS target
- A dry build with the Noop minifier (--build)

Examples:
  markupc validate                   # Check settings and tree
  markupc validate --tree other.yml  # Check another tree
  markupc validate --build           # Also run a dry build
  markupc validate --format json     # Output results as JSON`,
	PreRunE: prepareCommand,
	RunE:    runValidateCommand,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	AddStandardFlags(validateCmd, "build")
	validateCmd.Flags().
		StringVarP(&validateFormat, "format", "f", "text", "Output format (text, json)")
	validateCmd.Flags().
		BoolVar(&validateBuild, "build", false, "Run a dry build after validation")
}

// ValidationReport is the outcome of markupc validate.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Tree     string   `json:"tree"`
	Tags     int      `json:"tags"`
	Plugins  int      `json:"plugins"`
	Size     int      `json:"size,omitempty"`
}

func (r *ValidationReport) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	if validateFormat != "text" && validateFormat != "json" {
		return fmt.Errorf("unsupported format: %s (supported: text, json)", validateFormat)
	}

	cfg, err := config.Decode()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	report := validate(cmd, cfg)

	switch validateFormat {
	case "json":
		if err := outputValidationJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	default:
		outputValidationText(cmd.OutOrStdout(), report)
	}

	if !report.Valid {
		return fmt.Errorf("validation failed with %d error(s)", len(report.Errors))
	}
	return nil
}

func validate(cmd *cobra.Command, cfg *config.Config) *ValidationReport {
	report := &ValidationReport{
		Valid:    true,
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
		Tree:     cfg.Build.Tree,
	}

	details := config.ValidateConfigWithDetails(cfg)
	for _, e := range details.Errors {
		report.fail("%s: %s", e.Field, e.Message)
	}
	for _, w := range details.Warnings {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", w.Field, w.Message))
	}
	if !report.Valid {
		return report
	}

	tree, err := configtree.LoadFile(cfg.Build.Tree)
	if err != nil {
		report.fail("%v", err)
		return report
	}
	if err := tree.Validate(); err != nil {
		report.fail("%v", err)
		return report
	}
	report.Tags = tree.Tags.Len()
	report.Plugins = tree.Plugins.Len()
	if report.Tags == 0 {
		report.Warnings = append(report.Warnings, "tags: no tags are defined")
	}

	if _, err := configtree.FilterVariants(tree, "JS"); err != nil {
		report.fail("%v", err)
		return report
	}

	if !validateBuild {
		return report
	}

	logger, err := newLogger(cmd)
	if err != nil {
		report.fail("%v", err)
		return report
	}
	gen, err := build.New(build.Config{
		ConfigSource:   configtree.StaticConfig{Tree: tree},
		TemplateSource: configtree.FileTemplateSource{Path: cfg.Build.Template},
		Minifier:       minifier.Noop{},
		Exports:        cfg.Build.Exports,
		Logger:         logger,
	})
	if err != nil {
		report.fail("%v", err)
		return report
	}
	res, err := gen.Build(commandContext(cmd), build.Options{})
	if err != nil {
		report.fail("build: %v", err)
		return report
	}
	report.Size = res.Stats.Size
	return report
}

func outputValidationJSON(w io.Writer, report *ValidationReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func outputValidationText(w io.Writer, report *ValidationReport) {
	fmt.Fprintf(w, "Tree: %s (%d tags, %d plugins)\n", report.Tree, report.Tags, report.Plugins)

	for _, e := range report.Errors {
		fmt.Fprintf(w, "  ❌ %s\n", e)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  ⚠️  %s\n", warning)
	}
	if report.Size > 0 {
		fmt.Fprintf(w, "Dry build: %d bytes\n", report.Size)
	}

	if report.Valid {
		fmt.Fprintln(w, "✅ Configuration is valid")
	} else {
		fmt.Fprintf(w, "❌ %d error(s) found\n", len(report.Errors))
	}
}
