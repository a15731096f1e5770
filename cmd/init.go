package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Create a starter formatter configuration",
	Long: `Create a starter project: a .markupc.yml settings file, a formatter.yml
configuration tree with B, I and URL tags parsed by a small bracket-code
plugin, and a render.xsl template used by the preview.

If no directory is given, the current directory is used. Existing files are
left alone unless --force is set.

Examples:
  markupc init               # Initialize in the current directory
  markupc init my-formatter  # Initialize in ./my-formatter
  markupc init --minimal     # Skip the render template
  markupc init --force       # Overwrite existing files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initMinimal bool
	initForce   bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Skip the render template")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

type starterFile struct {
	name    string
	content string
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
	}
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	files := []starterFile{
		{".markupc.yml", starterSettings(!initMinimal)},
		{"formatter.yml", starterTree},
	}
	if !initMinimal {
		files = append(files, starterFile{"render.xsl", starterTemplate})
	}

	if !initForce {
		for _, f := range files {
			path := filepath.Join(projectDir, f.name)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initializing markupc project in %s\n", projectDir)
	for _, f := range files {
		path := filepath.Join(projectDir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(out, "  created %s\n", path)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  markupc build    # compile formatter.yml to formatter.js")
	fmt.Fprintln(out, "  markupc serve    # preview at http://localhost:8080")
	return nil
}

func starterSettings(withTemplate bool) string {
	template := ""
	if withTemplate {
		template = "  template: render.xsl\n"
	}
	return "build:\n" +
		"  tree: formatter.yml\n" +
		template +
		"  output: formatter.js\n" +
		"  minifier: Noop\n" +
		"server:\n" +
		"  host: localhost\n" +
		"  port: 8080\n" +
		"watch:\n" +
		"  debounce: 300ms\n"
}

const starterTree = `# Formatter configuration compiled by markupc.
plugins:
  BBCodes:
    quickMatch: "["
    regexp: !regexp {pattern: '\[(/?)(b|i|url)(?:=([^\]]*))?\]', global: true}
    parser: !callback |
      matches.forEach(function(m)
      {
        var name = m[2][0].toUpperCase(), pos = m[0][1], len = m[0][0].length;
        if (m[1][0])
        {
          addEndTag(name, pos, len);
          return;
        }
        var tag = addStartTag(name, pos, len);
        if (m[3][0])
        {
          tag.setAttribute('url', m[3][0]);
        }
      });
registeredVars:
  urlConfig:
    allowedSchemes: !regexp '^https?$'
rootContext:
  allowed: [1]
  flags: 0
tags:
  B:
    nestingLimit: 10
    tagLimit: 1000
  I:
    nestingLimit: 10
    tagLimit: 1000
  URL:
    attributes:
      url:
        filterChain:
          - !callback
            js: BuiltInFilters.filterUrl
            params: [attrValue, {var: urlConfig}, {var: logger}]
        required: true
    nestingLimit: 10
    tagLimit: 1000
`

const starterTemplate = `<?xml version="1.0" encoding="utf-8"?>
<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:output method="html" encoding="utf-8" indent="no"/>
  <xsl:template match="br"><br/></xsl:template>
  <xsl:template match="B"><b><xsl:apply-templates/></b></xsl:template>
  <xsl:template match="I"><i><xsl:apply-templates/></i></xsl:template>
  <xsl:template match="URL"><a href="{@url}"><xsl:apply-templates/></a></xsl:template>
  <xsl:template match="s|e|i"/>
</xsl:stylesheet>
`
