// Package callbacks turns callback descriptors found in a configuration tree
// into JavaScript functions.
package callbacks

import (
	"fmt"
	"strings"

	"github.com/conneroisu/markupc/internal/jsvalue"
)

// Kind identifies where a callback is used, which fixes the parameters its
// generated function receives.
type Kind int

const (
	KindTagFilter Kind = iota
	KindAttributeFilter
	KindGenerator
	KindParser
)

var kindNames = map[Kind]string{
	KindTagFilter:       "tag filter",
	KindAttributeFilter: "attribute filter",
	KindGenerator:       "attribute generator",
	KindParser:          "plugin parser",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Signature returns the parameter names of functions generated for k.
func (k Kind) Signature() []string {
	switch k {
	case KindTagFilter:
		return []string{"tag", "tagConfig"}
	case KindAttributeFilter:
		return []string{"attrValue", "attrName"}
	case KindGenerator:
		return []string{"attrName"}
	case KindParser:
		return []string{"text", "matches"}
	}
	return nil
}

// Variables that are in scope wherever generated functions run.
var localVars = map[string]bool{
	"logger":         true,
	"openTags":       true,
	"registeredVars": true,
	"text":           true,
}

// Param is one argument of a callback: either a named runtime variable or a
// literal value.
type Param struct {
	Name  string
	Value any
}

// Var returns a parameter that reads the runtime variable name.
func Var(name string) Param {
	return Param{Name: name}
}

// Literal returns a parameter holding v.
func Literal(v any) Param {
	return Param{Value: v}
}

// IsLiteral reports whether p holds a literal value.
func (p Param) IsLiteral() bool {
	return p.Name == ""
}

// Callback describes a JavaScript callable and the arguments it is invoked
// with. For parsers JS is the function body and Params is unused.
type Callback struct {
	JS string
	// Params nil means the callable receives the kind's signature as is.
	Params []Param
}

// Descriptor is a callback at a known site.
type Descriptor struct {
	Kind     Kind
	Callback *Callback
}

// Runtime helpers that callbacks may name directly.
const (
	ReturnTrue  = "returnTrue"
	ReturnFalse = "returnFalse"
)

// Source returns the anonymous function generated for d, or the runtime
// expression that replaces it when no function is needed. generated is false
// in the latter case. Source is a pure function of d.
func Source(d Descriptor, enc *jsvalue.Encoder) (src string, generated bool, err error) {
	cb := d.Callback
	if cb == nil {
		return "", false, fmt.Errorf("%s without a callback", d.Kind)
	}
	if d.Kind == KindParser {
		return cb.JS, false, nil
	}
	if cb.JS == ReturnTrue || cb.JS == ReturnFalse {
		return cb.JS, false, nil
	}

	signature := d.Kind.Signature()
	inSignature := make(map[string]bool, len(signature))
	for _, name := range signature {
		inSignature[name] = true
	}

	params := cb.Params
	if params == nil {
		for _, name := range signature {
			params = append(params, Var(name))
		}
	}

	args := make([]string, len(params))
	for i, p := range params {
		switch {
		case p.IsLiteral():
			js, err := enc.Encode(p.Value)
			if err != nil {
				return "", false, err
			}
			args[i] = js
		case inSignature[p.Name] || localVars[p.Name]:
			args[i] = p.Name
		default:
			args[i] = "registeredVars[" + jsvalue.Quote(p.Name) + "]"
		}
	}

	js := cb.JS
	if !isDottedIdentifier(js) {
		js = "(" + js + ")"
	}

	return "function(" + strings.Join(signature, ",") + "){return " + js +
		"(" + strings.Join(args, ",") + ");}", true, nil
}

func isDottedIdentifier(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if !jsvalue.IsIdentifier(part) {
			return false
		}
	}
	return true
}
