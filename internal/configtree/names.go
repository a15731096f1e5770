package configtree

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var tagNamePattern = regexp.MustCompile(`^(?i)(?:[a-z_][a-z_0-9]*:)?[a-z_][a-z_0-9]*$`)

// NormalizeTagName validates name and returns its canonical form: plain tag
// names are upper-cased, namespaced ones ("ns:tag") are kept as written.
func NormalizeTagName(name string) (string, error) {
	if !tagNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid tag name %q", name)
	}
	if strings.Contains(name, ":") {
		return name, nil
	}
	// Casers keep state, so each call gets its own.
	return cases.Upper(language.Und).String(name), nil
}
