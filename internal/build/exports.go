package build

import (
	"fmt"
	"strings"

	"github.com/conneroisu/markupc/internal/errors"
)

// DefaultExports is the full export vocabulary, exported when a build does
// not name its own set.
var DefaultExports = []string{
	"disablePlugin",
	"disableTag",
	"enablePlugin",
	"enableTag",
	"getLogger",
	"parse",
	"preview",
	"setNestingLimit",
	"setParameter",
	"setTagLimit",
}

var knownExports = func() map[string]bool {
	m := make(map[string]bool, len(DefaultExports))
	for _, name := range DefaultExports {
		m[name] = true
	}
	return m
}()

// Export names that mutate tag configs at runtime. Exporting any of them
// keeps every tag config an independent object.
var tagMutators = []string{"disableTag", "setNestingLimit", "setTagLimit"}

// NormalizeExports validates methods against the export vocabulary and drops
// duplicates, keeping the first occurrence. A nil slice selects
// DefaultExports; an empty one exports nothing.
func NormalizeExports(methods []string) ([]string, error) {
	if methods == nil {
		out := make([]string, len(DefaultExports))
		copy(out, DefaultExports)
		return out, nil
	}

	out := make([]string, 0, len(methods))
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		m = strings.TrimSpace(m)
		if !knownExports[m] {
			return nil, errors.NewConfigResolutionError(errors.ErrCodeUnknownExport,
				fmt.Sprintf("unknown export method %q", m), nil).
				WithContext("method", m)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}

// exportsSource returns the statement publishing methods under
// window.s9e.TextFormatter, or nothing when methods is empty.
func exportsSource(methods []string) string {
	if len(methods) == 0 {
		return ""
	}
	pairs := make([]string, len(methods))
	for i, m := range methods {
		pairs[i] = "'" + m + "':" + m
	}
	return "window['s9e'] = { 'TextFormatter': {" + strings.Join(pairs, ",") + "} }\n"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(list []string, candidates ...string) bool {
	for _, c := range candidates {
		if contains(list, c) {
			return true
		}
	}
	return false
}
