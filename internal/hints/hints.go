// Package hints derives the HINT constants that let the runtime fragments
// drop support code a configuration never needs.
package hints

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/markupc/internal/configtree"
	"github.com/conneroisu/markupc/internal/jsvalue"
)

// Feature ties a hint to an attribute whose presence in the render
// template means the runtime needs the feature.
type Feature struct {
	Hint      string
	Attribute string
}

// DefaultFeatures are the template features the runtime knows about.
var DefaultFeatures = []Feature{
	{Hint: "postProcessing", Attribute: "data-s9e-livepreview-postprocess"},
	{Hint: "ignoreAttrs", Attribute: "data-s9e-livepreview-ignore-attrs"},
}

// Rule flags as stored in rules.flags.
var ruleFlags = []struct {
	Name string
	Bit  int64
}{
	{"RULE_AUTO_CLOSE", 1},
	{"RULE_AUTO_REOPEN", 2},
	{"RULE_BREAK_PARAGRAPH", 4},
	{"RULE_CREATE_PARAGRAPHS", 8},
	{"RULE_DISABLE_AUTO_BR", 16},
	{"RULE_ENABLE_AUTO_BR", 32},
	{"RULE_IGNORE_TAGS", 64},
	{"RULE_IGNORE_TEXT", 128},
	{"RULE_IGNORE_WHITESPACE", 256},
	{"RULE_IS_TRANSPARENT", 512},
	{"RULE_PREVENT_BR", 1024},
	{"RULE_SUSPEND_AUTO_BR", 2048},
	{"RULE_TRIM_FIRST_LINE", 4096},
}

// Tag rules whose presence anywhere enables a hint of the same name.
var ruleHints = []string{
	"closeAncestor",
	"closeParent",
	"createChild",
	"fosterParent",
	"requireAncestor",
}

var regexpLimitActions = map[string]string{
	"abort":  "regexpLimitActionAbort",
	"ignore": "regexpLimitActionIgnore",
	"warn":   "regexpLimitActionWarn",
}

// Generator computes hints. The zero value uses DefaultFeatures.
type Generator struct {
	Features []Feature
}

// New returns a generator for the given template features, or for
// DefaultFeatures when none are given.
func New(features ...Feature) *Generator {
	return &Generator{Features: features}
}

// Names returns the full hint vocabulary, sorted.
func (g *Generator) Names() []string {
	var names []string
	for _, f := range g.features() {
		names = append(names, f.Hint)
	}
	names = append(names, ruleHints...)
	for _, f := range ruleFlags {
		names = append(names, f.Name)
	}
	names = append(names, "attributeDefaultValue", "attributeGenerator", "namespaces")
	for _, name := range regexpLimitActions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute returns the value of every hint for tree and template.
func (g *Generator) Compute(tree *configtree.Tree, template string) (map[string]bool, error) {
	hints := make(map[string]bool)
	for _, name := range g.Names() {
		hints[name] = false
	}

	attrs, err := templateAttributes(template)
	if err != nil {
		return nil, err
	}
	for _, f := range g.features() {
		if attrs[f.Attribute] {
			hints[f.Hint] = true
		}
	}

	var flags int64
	if root, ok := configtree.Lookup(tree.RootContext, "flags"); ok {
		flags |= toInt(root)
	}

	tree.Tags.Range(func(name string, v any) bool {
		if strings.Contains(name, ":") {
			hints["namespaces"] = true
		}
		if rules, ok := configtree.Lookup(v, "rules"); ok {
			for _, rule := range ruleHints {
				if _, ok := configtree.Lookup(rules, rule); ok {
					hints[rule] = true
				}
			}
			if f, ok := configtree.Lookup(rules, "flags"); ok {
				flags |= toInt(f)
			}
		}
		if attributes, ok := configtree.Lookup(v, "attributes"); ok {
			eachValue(attributes, func(attr any) {
				if _, ok := configtree.Lookup(attr, "generator"); ok {
					hints["attributeGenerator"] = true
				}
				if _, ok := configtree.Lookup(attr, "defaultValue"); ok {
					hints["attributeDefaultValue"] = true
				}
			})
		}
		return true
	})

	for _, f := range ruleFlags {
		if flags&f.Bit != 0 {
			hints[f.Name] = true
		}
	}

	tree.Plugins.Range(func(_ string, v any) bool {
		action, ok := configtree.Lookup(v, "regexpLimitAction")
		if !ok {
			if _, limited := configtree.Lookup(v, "regexpLimit"); !limited {
				return true
			}
			action = "warn"
		}
		if name, ok := regexpLimitActions[fmt.Sprint(action)]; ok {
			hints[name] = true
		}
		return true
	})

	return hints, nil
}

// Hints returns the source declaring HINT and one constant per hint.
func (g *Generator) Hints(tree *configtree.Tree, template string) (string, error) {
	hints, err := g.Compute(tree, template)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("/** @const */ var HINT={};\n")
	for _, name := range g.Names() {
		v := 0
		if hints[name] {
			v = 1
		}
		fmt.Fprintf(&sb, "/** @const */ HINT.%s=%d;\n", name, v)
	}
	return sb.String(), nil
}

func (g *Generator) features() []Feature {
	if g == nil || len(g.Features) == 0 {
		return DefaultFeatures
	}
	return g.Features
}

// templateAttributes returns the attribute names used in template: those of
// literal elements and the names created with xsl:attribute.
func templateAttributes(template string) (map[string]bool, error) {
	attrs := make(map[string]bool)
	z := html.NewTokenizer(strings.NewReader(template))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenizing render template: %w", err)
			}
			return attrs, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			for _, a := range tok.Attr {
				if tok.Data == "xsl:attribute" {
					if a.Key == "name" {
						attrs[a.Val] = true
					}
					continue
				}
				attrs[a.Key] = true
			}
		}
	}
}

func eachValue(container any, fn func(v any)) {
	switch c := container.(type) {
	case *jsvalue.Dictionary:
		c.Range(func(_ string, v any) bool {
			fn(v)
			return true
		})
	case map[string]any:
		for _, v := range c {
			fn(v)
		}
	}
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
