package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/conneroisu/markupc/internal/build"
	"github.com/conneroisu/markupc/internal/minifier"
	"github.com/conneroisu/markupc/internal/validation"
)

// ValidationError is one problem found in the settings, with hints on how
// to fix it.
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult collects every error and warning instead of stopping at
// the first one.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

func (vr *ValidationResult) fail(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) warn(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// String renders the errors, then the warnings, each followed by its
// suggestions.
func (vr *ValidationResult) String() string {
	var b strings.Builder
	section := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		b.WriteString(title + "\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "  • %s: %s\n", issue.Field, issue.Message)
			for _, s := range issue.Suggestions {
				fmt.Fprintf(&b, "    💡 %s\n", s)
			}
		}
	}

	section("❌ Validation Errors:", vr.Errors)
	if vr.HasErrors() && vr.HasWarnings() {
		b.WriteString("\n")
	}
	section("⚠️  Validation Warnings:", vr.Warnings)
	return b.String()
}

// ValidateConfigWithDetails checks the settings and the files they point
// at, reporting every problem with suggestions.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	checkServer(&config.Server, result)
	checkInputs(&config.Build, result)
	checkOutput(&config.Build, result)
	checkMinifier(&config.Build, result)
	checkWatch(&config.Watch, result)

	result.Valid = !result.HasErrors()
	return result
}

func checkServer(config *ServerConfig, result *ValidationResult) {
	switch {
	case config.Port < 0 || config.Port > 65535:
		result.fail("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows system to assign an available port")
	case config.Port > 0 && config.Port < 1024:
		result.warn("server.port", config.Port,
			"port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development")
	}

	if config.Host != "" {
		if err := validation.ValidateListenHost(config.Host); err != nil {
			result.fail("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}
}

// checkInputs validates the files a build reads.
func checkInputs(config *BuildConfig, result *ValidationResult) {
	if err := validation.ValidatePath(config.Tree); err != nil {
		result.fail("build.tree", config.Tree, err.Error(),
			"Point build.tree at the YAML configuration tree to compile")
	} else if !pathExists(config.Tree) {
		result.fail("build.tree", config.Tree, "configuration tree does not exist",
			"Check for typos in the path",
			"Pass --tree to select another file")
	}

	if config.Template != "" && !pathExists(config.Template) {
		result.fail("build.template", config.Template, "render template does not exist",
			"Remove build.template to build without a render template")
	}

	if config.Fragments != "" && !pathExists(config.Fragments) {
		result.warn("build.fragments", config.Fragments,
			"fragment directory does not exist - embedded fragments will be used",
			"Create the directory: mkdir -p "+config.Fragments)
	}
}

// checkOutput validates where the bundle goes and what it exports.
func checkOutput(config *BuildConfig, result *ValidationResult) {
	if err := validation.ValidateOutputPath(config.Output); err != nil {
		result.fail("build.output", config.Output, err.Error(),
			"Use a relative path such as 'dist/formatter.js'",
			"Use '-' to write the bundle to stdout")
	}

	exports, err := build.NormalizeExports(config.Exports)
	switch {
	case err != nil:
		result.fail("build.exports", config.Exports, err.Error(),
			"Available exports: "+strings.Join(build.DefaultExports, ", "))
	case len(exports) == 0:
		result.warn("build.exports", config.Exports,
			"no methods exported - the bundle will not publish an API",
			"Export at least 'parse'")
	case config.Exports != nil && slices.Contains(exports, "preview") && config.Template == "":
		// Unset exports fall back to the defaults, which include preview.
		result.warn("build.exports", "preview",
			"preview is exported but no render template is configured",
			"Set build.template to the stylesheet used for rendering")
	}
}

func checkMinifier(config *BuildConfig, result *ValidationResult) {
	names := minifier.Names()
	remote := config.Minifier == "ClosureCompilerService" ||
		(config.Minifier != "Noop" && slices.Contains(config.MinifierArgs, "ClosureCompilerService"))

	switch {
	case !slices.Contains(names, config.Minifier):
		result.fail("build.minifier", config.Minifier,
			fmt.Sprintf("unknown minifier '%s'", config.Minifier),
			"Available minifiers: "+strings.Join(names, ", "))
	case remote:
		result.warn("build.minifier", config.Minifier,
			"the bundle source will be sent to a remote compilation service",
			"Use 'FirstAvailable' with 'Whitespace' as a fallback for offline builds")
	}

	if url := closureServiceURL(config); url != "" {
		if err := validation.ValidateServiceURL(url); err != nil {
			result.fail("build.minifier_args", url,
				fmt.Sprintf("invalid compilation service URL: %v", err),
				"Use an http or https URL, or omit it to use "+minifier.DefaultClosureCompilerURL)
		}
	}

	if config.CacheSize < 0 {
		result.fail("build.cache_size", config.CacheSize, "cache size must not be negative",
			"Use 0 to disable the minifier cache")
	}
}

func checkWatch(config *WatchConfig, result *ValidationResult) {
	if err := validateWatchConfig(config); err != nil {
		result.fail("watch.debounce", config.Debounce, err.Error(),
			"Typical values are between 100ms and 1s")
	} else if config.Debounce > 0 && config.Debounce < 50*time.Millisecond {
		result.warn("watch.debounce", config.Debounce,
			"very short debounce may rebuild several times per save")
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
