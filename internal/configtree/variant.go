package configtree

import (
	"fmt"
	"strconv"

	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/jsvalue"
)

// TargetJS is the variant target used for JavaScript bundles.
const TargetJS = "JS"

// Variant is a value with per-target overrides.
type Variant struct {
	Default  any
	Variants map[string]any
}

// NewVariant returns a variant whose default is def.
func NewVariant(def any) *Variant {
	return &Variant{Default: def}
}

// Set stores the override for target.
func (v *Variant) Set(target string, value any) *Variant {
	if v.Variants == nil {
		v.Variants = make(map[string]any)
	}
	v.Variants[target] = value
	return v
}

// Get returns the override for target, or the default.
func (v *Variant) Get(target string) any {
	if value, ok := v.Variants[target]; ok {
		return value
	}
	return v.Default
}

// FilterVariants returns a deep copy of tree in which every Variant is
// replaced by its value for target. Entries whose variant resolves to nil
// are removed. The input tree is not modified.
func FilterVariants(tree *Tree, target string) (*Tree, error) {
	if tree == nil {
		return nil, errors.NewVariantFilterError("no configuration tree to filter", nil)
	}
	out := tree.Clone()

	var err error
	if out.Plugins, err = filterDictionary(out.Plugins, target); err != nil {
		return nil, wrapFilterError(err, SectionPlugins)
	}
	if out.RegisteredVars, err = filterDictionary(out.RegisteredVars, target); err != nil {
		return nil, wrapFilterError(err, SectionRegisteredVars)
	}
	if out.Tags, err = filterDictionary(out.Tags, target); err != nil {
		return nil, wrapFilterError(err, SectionTags)
	}

	root, keep, err := filterValue(out.RootContext, target, 0)
	if err != nil {
		return nil, wrapFilterError(err, SectionRootContext)
	}
	if !keep {
		return nil, errors.NewVariantFilterError(
			fmt.Sprintf("variant filter for %s removed the required rootContext section", target), nil).
			WithPath(SectionRootContext)
	}
	out.RootContext = root

	return out, nil
}

func wrapFilterError(err error, section string) error {
	if errors.IsVariantFilterError(err) {
		return errors.PrefixPath(err, section)
	}
	return errors.PrefixPath(errors.NewVariantFilterError("cannot filter variants", err), section)
}

func filterDictionary(d *jsvalue.Dictionary, target string) (*jsvalue.Dictionary, error) {
	if d == nil {
		return nil, nil
	}
	v, _, err := filterValue(d, target, 0)
	if err != nil {
		return nil, err
	}
	return v.(*jsvalue.Dictionary), nil
}

// maxDepth bounds nesting so variants that contain themselves through a
// container fail instead of recursing forever.
const maxDepth = 256

// filterValue resolves variants in v. keep is false when v itself resolves
// to nil and must be removed from its parent.
func filterValue(v any, target string, depth int) (resolved any, keep bool, err error) {
	if depth > maxDepth {
		return nil, false, errors.NewVariantFilterError("variant cycle detected", nil)
	}
	seen := map[*Variant]bool{}
	for {
		variant, ok := v.(*Variant)
		if !ok || variant == nil {
			break
		}
		if seen[variant] {
			return nil, false, errors.NewVariantFilterError("variant cycle detected", nil)
		}
		seen[variant] = true
		v = variant.Get(target)
		if v == nil {
			return nil, false, nil
		}
	}

	switch c := v.(type) {
	case map[string]any:
		for k, child := range c {
			r, keep, err := filterValue(child, target, depth+1)
			if err != nil {
				return nil, false, errors.PrefixPath(err, k)
			}
			if !keep {
				delete(c, k)
				continue
			}
			c[k] = r
		}
	case *jsvalue.Dictionary:
		for _, k := range c.Keys() {
			child, _ := c.Get(k)
			r, keep, err := filterValue(child, target, depth+1)
			if err != nil {
				return nil, false, errors.PrefixPath(err, k)
			}
			if !keep {
				c.Delete(k)
				continue
			}
			c.Set(k, r)
		}
	case []any:
		out := c[:0]
		for i, child := range c {
			r, keep, err := filterValue(child, target, depth+1)
			if err != nil {
				return nil, false, errors.PrefixPath(err, strconv.Itoa(i))
			}
			if keep {
				out = append(out, r)
			}
		}
		v = out
	}
	return v, true, nil
}
