package callbacks

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strconv"

	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/jsvalue"
)

// Translator replaces callbacks in configuration sections with references to
// generated functions. Identical functions are emitted once.
type Translator struct {
	enc       *jsvalue.Encoder
	functions map[string]string
}

// New returns a translator that encodes literal arguments with enc.
func New(enc *jsvalue.Encoder) *Translator {
	t := &Translator{enc: enc}
	t.Reset()
	return t
}

// Reset forgets every generated function.
func (t *Translator) Reset() {
	t.functions = make(map[string]string)
}

// Functions returns the generated function declarations sorted by name.
func (t *Translator) Functions() []string {
	names := make([]string, 0, len(t.functions))
	for name := range t.functions {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, len(names))
	for i, name := range names {
		out[i] = t.functions[name]
	}
	return out
}

// Len returns the number of generated functions.
func (t *Translator) Len() int {
	return len(t.functions)
}

// ReplaceCallbacks rewrites every callback site in the plugins and tags
// sections in place:
//
//	plugins.*.parser                     -> parser body
//	tags.*.filterChain.*                 -> tag filter
//	tags.*.attributes.*.filterChain.*    -> attribute filter
//	tags.*.attributes.*.generator        -> attribute generator
//
// Plugin, tag and attribute configs may be maps or dictionaries. Values that
// are already jsvalue.Code are left alone, so running it twice is a no-op.
func (t *Translator) ReplaceCallbacks(plugins, tags *jsvalue.Dictionary) error {
	for _, name := range plugins.Keys() {
		v, _ := plugins.Get(name)
		config, ok := asFields(v)
		if !ok {
			continue
		}
		if err := t.replaceKey(config, "parser", KindParser); err != nil {
			return errors.PrefixPath(errors.PrefixPath(err, name), "plugins")
		}
	}

	for _, name := range tags.Keys() {
		v, _ := tags.Get(name)
		config, ok := asFields(v)
		if !ok {
			continue
		}
		if err := t.replaceTag(config); err != nil {
			return errors.PrefixPath(errors.PrefixPath(err, name), "tags")
		}
	}
	return nil
}

// fields is a config container that callbacks can be replaced in.
type fields interface {
	Get(key string) (any, bool)
	Set(key string, v any)
}

type mapFields map[string]any

func (m mapFields) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapFields) Set(key string, v any) { m[key] = v }

func asFields(v any) (fields, bool) {
	switch c := v.(type) {
	case map[string]any:
		return mapFields(c), c != nil
	case *jsvalue.Dictionary:
		return c, c != nil
	}
	return nil, false
}

func (t *Translator) replaceTag(config fields) error {
	if err := t.replaceChain(config, KindTagFilter); err != nil {
		return err
	}

	attrs, _ := config.Get("attributes")
	var err error
	eachAttribute(attrs, func(name string, attr fields) bool {
		if err = t.replaceChain(attr, KindAttributeFilter); err == nil {
			err = t.replaceKey(attr, "generator", KindGenerator)
		}
		if err != nil {
			err = errors.PrefixPath(errors.PrefixPath(err, name), "attributes")
			return false
		}
		return true
	})
	return err
}

// eachAttribute visits attribute configs in key order.
func eachAttribute(attrs any, fn func(name string, attr fields) bool) {
	visit := func(name string, v any) bool {
		if attr, ok := asFields(v); ok {
			return fn(name, attr)
		}
		return true
	}
	switch attrs := attrs.(type) {
	case *jsvalue.Dictionary:
		attrs.Range(visit)
	case map[string]any:
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !visit(name, attrs[name]) {
				return
			}
		}
	}
}

func (t *Translator) replaceChain(config fields, kind Kind) error {
	v, _ := config.Get("filterChain")
	chain, ok := v.([]any)
	if !ok {
		return nil
	}
	for i, v := range chain {
		replaced, err := t.replace(v, kind)
		if err != nil {
			return errors.PrefixPath(errors.PrefixPath(err, strconv.Itoa(i)), "filterChain")
		}
		chain[i] = replaced
	}
	return nil
}

func (t *Translator) replaceKey(config fields, key string, kind Kind) error {
	v, ok := config.Get(key)
	if !ok {
		return nil
	}
	replaced, err := t.replace(v, kind)
	if err != nil {
		return errors.PrefixPath(err, key)
	}
	config.Set(key, replaced)
	return nil
}

func (t *Translator) replace(v any, kind Kind) (any, error) {
	cb, ok := v.(*Callback)
	if !ok {
		return v, nil
	}

	src, generated, err := Source(Descriptor{Kind: kind, Callback: cb}, t.enc)
	if err != nil {
		if errors.IsEncodingError(err) {
			return nil, err
		}
		return nil, errors.NewEncodingError("", err.Error())
	}
	if !generated {
		return jsvalue.Code(src), nil
	}

	name := fmt.Sprintf("c%08X", crc32.ChecksumIEEE([]byte(src)))
	// src starts with "function(", the declaration gets the name spliced in.
	t.functions[name] = "function " + name + src[len("function"):]
	return jsvalue.Code(name), nil
}
