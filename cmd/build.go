package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/markupc/internal/build"
	"github.com/conneroisu/markupc/internal/minifier"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Compile the configuration into a JavaScript bundle",
	Long: `Compile the formatter configuration tree into a self-contained JavaScript
bundle exposing the selected API under window.s9e.TextFormatter.

Examples:
  markupc build                             # formatter.yml -> formatter.js
  markupc build --tree bbcodes.yml -o -     # Write the bundle to stdout
  markupc build --export parse,preview      # Export a subset of the API
  markupc build -m FirstAvailable --minifier-arg ClosureCompilerService --minifier-arg Whitespace
  markupc build --analyze                   # Print build statistics as JSON`,
	PreRunE: prepareCommand,
	RunE:    runBuild,
}

var buildAnalyze bool

func init() {
	rootCmd.AddCommand(buildCmd)

	AddStandardFlags(buildCmd, "build")
	buildCmd.Flags().BoolVar(&buildAnalyze, "analyze", false, "Print build statistics as JSON")
}

// buildAnalysis is the --analyze report.
type buildAnalysis struct {
	Output     string   `json:"output"`
	Exports    []string `json:"exports"`
	Minifier   string   `json:"minifier"`
	Size       int      `json:"size"`
	GzipSize   int      `json:"gzip_size"`
	Bindings   int      `json:"bindings"`
	Functions  int      `json:"functions"`
	Fragments  []string `json:"fragments"`
	DurationMS float64  `json:"duration_ms"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCommandConfig(cmd)
	if err != nil {
		return err
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	res, err := buildOnce(ctx, gen, cfg, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	report := reportWriter(cmd, cfg)

	if buildAnalyze {
		return writeAnalysis(report, cfg.Build.Output, gen, res)
	}

	fmt.Fprintln(report, summary(cfg.Build.Output, res))
	return nil
}

func writeAnalysis(report io.Writer, output string, gen *build.Generator, res *build.Result) error {
	analysis := buildAnalysis{
		Output:     output,
		Exports:    res.Exports,
		Minifier:   minifier.NameOf(gen.Minifier()),
		Size:       res.Stats.Size,
		GzipSize:   res.Stats.GzipSize,
		Bindings:   res.Stats.Bindings,
		Functions:  res.Stats.Functions,
		Fragments:  res.Stats.Fragments,
		DurationMS: float64(res.Stats.Duration.Microseconds()) / 1000,
	}
	if analysis.Exports == nil {
		analysis.Exports = []string{}
	}

	enc := json.NewEncoder(report)
	enc.SetIndent("", "  ")
	return enc.Encode(analysis)
}
