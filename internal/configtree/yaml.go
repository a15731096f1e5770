package configtree

import (
	stderrors "errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/markupc/internal/callbacks"
	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/jsvalue"
)

// Custom YAML tags understood by the loader.
const (
	TagVariant  = "!variant"
	TagCallback = "!callback"
	TagCode     = "!code"
	TagRegexp   = "!regexp"
)

const maxAliasDepth = 32

// LoadFile reads a configuration document from path.
func LoadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "configuration file not found", err).
				WithContext("file", path)
		}
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "cannot read configuration file", err).
			WithContext("file", path)
	}
	tree, err := Load(data)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			e.WithContext("file", path)
		}
		return nil, err
	}
	return tree, nil
}

// Load decodes a configuration document. The document is a mapping with the
// sections plugins, registeredVars, rootContext and tags; absent sections
// are left nil for Tree.Validate to report. Section mappings, plugin and tag
// names and each tag's attributes keep their document order.
//
// Values may carry these tags:
//
//	!code      raw JavaScript:           !code "function(){}"
//	!regexp    host pattern:             !regexp '^\w+$'  or  {pattern: ..., global: true}
//	!callback  callback descriptor:      !callback BuiltInFilters.filterInt
//	                                     or {js: ..., params: [{var: attrValue}, {value: 3}]}
//	!variant   per-target value:         !variant {default: 1, JS: 2}
func Load(data []byte) (*Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid configuration document")
	}
	if len(doc.Content) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "empty configuration document")
	}

	d := &decoder{}
	tree, err := d.tree(doc.Content[0])
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid configuration document")
	}
	return tree, nil
}

type decoder struct {
	aliases int
}

func (d *decoder) tree(root *yaml.Node) (*Tree, error) {
	if root.Kind != yaml.MappingNode {
		return nil, nodeError(root, "configuration document must be a mapping")
	}

	tree := &Tree{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		var err error
		switch key.Value {
		case SectionPlugins:
			tree.Plugins, err = d.section(value)
		case SectionRegisteredVars:
			tree.RegisteredVars, err = d.section(value)
		case SectionRootContext:
			tree.RootContext, err = d.value(value, false)
			if err == nil && tree.RootContext == nil {
				tree.RootContext = map[string]any{}
			}
		case SectionTags:
			tree.Tags, err = d.tags(value)
		default:
			err = nodeError(key, fmt.Sprintf("unknown section %q", key.Value))
		}
		if err != nil {
			return nil, errors.PrefixPath(err, key.Value)
		}
	}
	return tree, nil
}

// section decodes an ordered top-level section. A null section is empty.
func (d *decoder) section(n *yaml.Node) (*jsvalue.Dictionary, error) {
	v, err := d.value(n, true)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case nil:
		return jsvalue.NewDictionary(), nil
	case *jsvalue.Dictionary:
		return v, nil
	}
	return nil, nodeError(n, "section must be a mapping")
}

func (d *decoder) tags(n *yaml.Node) (*jsvalue.Dictionary, error) {
	n = deref(n)
	out := jsvalue.NewDictionary()
	if n.ShortTag() == "!!null" {
		return out, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, nodeError(n, "section must be a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		name, err := NormalizeTagName(key.Value)
		if err != nil {
			return nil, nodeError(key, err.Error())
		}
		if out.Has(name) {
			return nil, nodeError(key, fmt.Sprintf("duplicate tag %q", name))
		}
		config, err := d.tagConfig(value)
		if err != nil {
			return nil, errors.PrefixPath(err, name)
		}
		out.Set(name, config)
	}
	return out, nil
}

// tagConfig decodes one tag. Its attributes mapping keeps document order.
func (d *decoder) tagConfig(n *yaml.Node) (any, error) {
	n = deref(n)
	if n.Kind != yaml.MappingNode || n.ShortTag() != "!!map" {
		return d.value(n, false)
	}
	config := make(map[string]any, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		v, err := d.value(value, key.Value == "attributes")
		if err != nil {
			return nil, errors.PrefixPath(err, key.Value)
		}
		config[key.Value] = v
	}
	return config, nil
}

// value decodes any node. ordered selects *jsvalue.Dictionary over
// map[string]any for plain mappings.
func (d *decoder) value(n *yaml.Node, ordered bool) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.value(n.Content[0], ordered)
	case yaml.AliasNode:
		if d.aliases >= maxAliasDepth {
			return nil, nodeError(n, "alias nesting too deep")
		}
		d.aliases++
		defer func() { d.aliases-- }()
		return d.value(n.Alias, ordered)
	case yaml.ScalarNode:
		return d.scalar(n)
	case yaml.SequenceNode:
		if tag := n.ShortTag(); tag != "!!seq" {
			return nil, nodeError(n, fmt.Sprintf("tag %s cannot be used on a sequence", tag))
		}
		out := make([]any, len(n.Content))
		for i, item := range n.Content {
			v, err := d.value(item, false)
			if err != nil {
				return nil, errors.PrefixPath(err, fmt.Sprint(i))
			}
			out[i] = v
		}
		return out, nil
	case yaml.MappingNode:
		switch tag := n.ShortTag(); tag {
		case TagVariant:
			return d.variant(n, ordered)
		case TagCallback:
			return d.callback(n)
		case TagRegexp:
			return d.regexp(n)
		case "!!map":
			return d.mapping(n, ordered)
		default:
			return nil, nodeError(n, fmt.Sprintf("unknown tag %s", tag))
		}
	}
	return nil, nodeError(n, "unsupported node")
}

// deref follows an alias to the anchored node.
func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func (d *decoder) scalar(n *yaml.Node) (any, error) {
	switch tag := n.ShortTag(); tag {
	case TagCode:
		return jsvalue.Code(n.Value), nil
	case TagRegexp:
		return jsvalue.NewRegexp(n.Value), nil
	case TagCallback:
		return &callbacks.Callback{JS: n.Value}, nil
	case "!!timestamp":
		return n.Value, nil
	case "!!null", "!!bool", "!!int", "!!float", "!!str":
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, nodeError(n, err.Error())
		}
		return v, nil
	default:
		return nil, nodeError(n, fmt.Sprintf("unknown tag %s", tag))
	}
}

func (d *decoder) mapping(n *yaml.Node, ordered bool) (any, error) {
	var dict *jsvalue.Dictionary
	var m map[string]any
	if ordered {
		dict = jsvalue.NewDictionary()
	} else {
		m = make(map[string]any, len(n.Content)/2)
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, nodeError(key, "mapping keys must be scalars")
		}
		if key.ShortTag() == "!!merge" {
			return nil, nodeError(key, "merge keys are not supported")
		}
		v, err := d.value(value, false)
		if err != nil {
			return nil, errors.PrefixPath(err, key.Value)
		}
		if ordered {
			dict.Set(key.Value, v)
		} else {
			m[key.Value] = v
		}
	}

	if ordered {
		return dict, nil
	}
	return m, nil
}

func (d *decoder) variant(n *yaml.Node, ordered bool) (*Variant, error) {
	v := &Variant{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		decoded, err := d.value(value, ordered)
		if err != nil {
			return nil, errors.PrefixPath(err, key.Value)
		}
		if key.Value == "default" {
			v.Default = decoded
			continue
		}
		v.Set(key.Value, decoded)
	}
	return v, nil
}

func (d *decoder) callback(n *yaml.Node) (*callbacks.Callback, error) {
	cb := &callbacks.Callback{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "js":
			if err := value.Decode(&cb.JS); err != nil {
				return nil, nodeError(value, "callback js must be a string")
			}
		case "params":
			params, err := d.params(value)
			if err != nil {
				return nil, errors.PrefixPath(err, "params")
			}
			cb.Params = params
		default:
			return nil, nodeError(key, fmt.Sprintf("unknown callback key %q", key.Value))
		}
	}
	if cb.JS == "" {
		return nil, nodeError(n, "callback without js")
	}
	return cb, nil
}

func (d *decoder) params(n *yaml.Node) ([]callbacks.Param, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, nodeError(n, "callback params must be a sequence")
	}
	params := make([]callbacks.Param, 0, len(n.Content))
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			params = append(params, callbacks.Var(item.Value))
		case yaml.MappingNode:
			if len(item.Content) != 2 {
				return nil, nodeError(item, "a param is either {var: name} or {value: literal}")
			}
			key, value := item.Content[0], item.Content[1]
			switch key.Value {
			case "var":
				params = append(params, callbacks.Var(value.Value))
			case "value":
				v, err := d.value(value, false)
				if err != nil {
					return nil, err
				}
				params = append(params, callbacks.Literal(v))
			default:
				return nil, nodeError(key, fmt.Sprintf("unknown param key %q", key.Value))
			}
		default:
			return nil, nodeError(item, "a param is either {var: name} or {value: literal}")
		}
	}
	return params, nil
}

func (d *decoder) regexp(n *yaml.Node) (*jsvalue.Regexp, error) {
	var raw struct {
		Pattern string `yaml:"pattern"`
		Global  bool   `yaml:"global"`
	}
	if err := n.Decode(&raw); err != nil {
		return nil, nodeError(n, err.Error())
	}
	return &jsvalue.Regexp{Pattern: raw.Pattern, Global: raw.Global}, nil
}

func nodeError(n *yaml.Node, msg string) error {
	return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("line %d: %s", n.Line, msg))
}
