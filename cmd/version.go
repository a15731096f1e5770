package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/markupc/internal/jsruntime"
	"github.com/conneroisu/markupc/internal/minifier"
	"github.com/conneroisu/markupc/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the markupc version, the build it came from, the runtime
fragments compiled into it and the minifiers it can drive.

Examples:
  markupc version               # One line summary
  markupc version --short       # Version only
  markupc version --detailed    # Build metadata, fragments and minifiers
  markupc version --format json # Everything, as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().Bool("detailed", false, "Show detailed version information")
}

// versionReport is what `markupc version --format json` prints.
type versionReport struct {
	*version.BuildInfo
	Release   bool     `json:"is_release"`
	UserAgent string   `json:"user_agent"`
	Fragments []string `json:"runtime_fragments"`
	Minifiers []string `json:"minifiers"`
}

func newVersionReport() versionReport {
	info := version.GetBuildInfo()
	return versionReport{
		BuildInfo: info,
		Release:   info.IsRelease(),
		UserAgent: version.UserAgent(),
		Fragments: jsruntime.Names(),
		Minifiers: minifier.Names(),
	}
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	detailed, _ := cmd.Flags().GetBool("detailed")
	out := cmd.OutOrStdout()
	report := newVersionReport()

	switch versionFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}

	switch {
	case versionShort:
		fmt.Fprintln(out, report.Short())
	case detailed:
		report.writeDetailed(out)
	default:
		report.writeSummary(out)
	}
	return nil
}

// writeSummary prints "markupc v1.2.3 (abcdef0), go1.24 linux/amd64".
func (r versionReport) writeSummary(out io.Writer) {
	line := "markupc " + r.Short()
	if r.Dirty {
		line += " (dirty)"
	}
	fmt.Fprintf(out, "%s, %s %s\n", line, r.GoVersion, r.Platform)
}

func (r versionReport) writeDetailed(out io.Writer) {
	fmt.Fprintln(out, r.Detailed())
	if r.Dirty {
		fmt.Fprintln(out, "Working directory: dirty")
	}
	kind := "development"
	if r.Release {
		kind = "release"
	}
	fmt.Fprintln(out, "Build type: "+kind)
	fmt.Fprintln(out, "Runtime fragments: "+strings.Join(r.Fragments, ", "))
	fmt.Fprintln(out, "Minifiers: "+strings.Join(r.Minifiers, ", "))
}
