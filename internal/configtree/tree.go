// Package configtree holds the configuration tree a bundle is compiled from,
// loads it from YAML documents and filters it down to one output target.
package configtree

import (
	"github.com/conneroisu/markupc/internal/callbacks"
	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/jsvalue"
)

// Section names as they appear in documents and error paths.
const (
	SectionPlugins        = "plugins"
	SectionRegisteredVars = "registeredVars"
	SectionRootContext    = "rootContext"
	SectionTags           = "tags"
)

// Tree is a text formatter configuration. Plugins, RegisteredVars and Tags
// keep their document order.
type Tree struct {
	Plugins        *jsvalue.Dictionary
	RegisteredVars *jsvalue.Dictionary
	RootContext    any
	Tags           *jsvalue.Dictionary
}

// New returns a tree with every section present and empty.
func New() *Tree {
	return &Tree{
		Plugins:        jsvalue.NewDictionary(),
		RegisteredVars: jsvalue.NewDictionary(),
		RootContext:    map[string]any{},
		Tags:           jsvalue.NewDictionary(),
	}
}

// Validate checks that every required section is present.
func (t *Tree) Validate() error {
	if t == nil {
		return errors.NewConfigResolutionError(errors.ErrCodeConfigResolution, "no configuration tree", nil)
	}
	var missing string
	switch {
	case t.Plugins == nil:
		missing = SectionPlugins
	case t.RegisteredVars == nil:
		missing = SectionRegisteredVars
	case t.RootContext == nil:
		missing = SectionRootContext
	case t.Tags == nil:
		missing = SectionTags
	default:
		return nil
	}
	return errors.NewConfigResolutionError(errors.ErrCodeConfigResolution,
		"configuration tree is missing the "+missing+" section", nil).WithPath(missing)
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	return &Tree{
		Plugins:        cloneDictionary(t.Plugins),
		RegisteredVars: cloneDictionary(t.RegisteredVars),
		RootContext:    Clone(t.RootContext),
		Tags:           cloneDictionary(t.Tags),
	}
}

func cloneDictionary(d *jsvalue.Dictionary) *jsvalue.Dictionary {
	if d == nil {
		return nil
	}
	return Clone(d).(*jsvalue.Dictionary)
}

// Clone deep-copies a tree value. Scalars and jsvalue.Code are returned as
// is. Variants that refer back to themselves are copied with the same shape.
func Clone(v any) any {
	return (&cloner{variants: map[*Variant]*Variant{}}).clone(v)
}

type cloner struct {
	variants map[*Variant]*Variant
}

func (c *cloner) clone(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = c.clone(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = c.clone(child)
		}
		return out
	case *jsvalue.Dictionary:
		if v == nil {
			return v
		}
		out := jsvalue.NewDictionary()
		v.Range(func(k string, child any) bool {
			out.Set(k, c.clone(child))
			return true
		})
		return out
	case *jsvalue.Regexp:
		if v == nil {
			return v
		}
		r := *v
		return &r
	case *callbacks.Callback:
		if v == nil {
			return v
		}
		cb := &callbacks.Callback{JS: v.JS}
		if v.Params != nil {
			cb.Params = make([]callbacks.Param, len(v.Params))
			for i, p := range v.Params {
				cb.Params[i] = callbacks.Param{Name: p.Name, Value: c.clone(p.Value)}
			}
		}
		return cb
	case *Variant:
		if v == nil {
			return v
		}
		if done, ok := c.variants[v]; ok {
			return done
		}
		out := &Variant{}
		c.variants[v] = out
		out.Default = c.clone(v.Default)
		if v.Variants != nil {
			out.Variants = make(map[string]any, len(v.Variants))
			for target, value := range v.Variants {
				out.Variants[target] = c.clone(value)
			}
		}
		return out
	}
	return v
}

// Lookup returns the value stored under key in a map or dictionary.
func Lookup(container any, key string) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[key]
		return v, ok
	case *jsvalue.Dictionary:
		return c.Get(key)
	}
	return nil, false
}
