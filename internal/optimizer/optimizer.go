// Package optimizer deduplicates structurally identical containers in a
// configuration value. Containers that occur more than once are hoisted into
// named constant bindings and every occurrence is rewritten to reference the
// binding.
package optimizer

import (
	"fmt"
	"hash/crc32"
	"maps"
	"slices"

	"github.com/conneroisu/markupc/internal/jsvalue"
)

// Optimizer records the containers seen since the last Reset. It is not safe
// for concurrent use; each build owns one.
type Optimizer struct {
	enc     *jsvalue.Encoder
	entries map[string]*entry
	names   map[string]*entry
	// order lists entries children-first.
	order []*entry
}

type entry struct {
	key   string
	name  string
	count int
	value any
}

func (e *entry) hoisted() bool {
	return e.count > 1
}

// ref stands in for a container in optimized output. It encodes as the
// binding name when its entry ends up hoisted and inline otherwise.
type ref struct {
	entry *entry
	value any
}

// MarshalJS implements jsvalue.Marshaler.
func (r *ref) MarshalJS(e *jsvalue.Encoder) (string, error) {
	if r.entry != nil && r.entry.hoisted() {
		return r.entry.name, nil
	}
	return e.Encode(r.value)
}

// New returns an optimizer that computes structural keys with enc.
func New(enc *jsvalue.Encoder) *Optimizer {
	o := &Optimizer{enc: enc}
	o.Reset()
	return o
}

// Reset forgets every recorded container.
func (o *Optimizer) Reset() {
	o.entries = make(map[string]*entry)
	o.names = make(map[string]*entry)
	o.order = nil
}

// OptimizeObject returns a compacted form of v in which v itself may be
// shared with other identical values. The caller must not modify v
// afterwards.
func (o *Optimizer) OptimizeObject(v any) (any, error) {
	return o.walk(v)
}

// OptimizeObjectContent is like OptimizeObject but the top-level container is
// never shared, so runtime code can mutate it without affecting other
// objects. Only its values are deduplicated.
func (o *Optimizer) OptimizeObjectContent(v any) (any, error) {
	if !isContainer(v) {
		return v, nil
	}
	rebuilt, err := o.rebuild(v)
	if err != nil {
		return nil, err
	}
	return &ref{value: rebuilt}, nil
}

// Objects returns one declaration per hoisted binding, children first.
func (o *Optimizer) Objects() ([]string, error) {
	var out []string
	for _, e := range o.order {
		if !e.hoisted() {
			continue
		}
		js, err := o.enc.Encode(e.value)
		if err != nil {
			return nil, err
		}
		out = append(out, "/** @const */ var "+e.name+"="+js+";")
	}
	return out, nil
}

// Len returns the number of hoisted bindings.
func (o *Optimizer) Len() int {
	n := 0
	for _, e := range o.order {
		if e.hoisted() {
			n++
		}
	}
	return n
}

func (o *Optimizer) walk(v any) (any, error) {
	if !isContainer(v) {
		return v, nil
	}
	key, err := o.enc.Encode(v)
	if err != nil {
		return nil, err
	}
	if e, ok := o.entries[key]; ok {
		// Already recorded: its children were counted on first sight.
		e.count++
		return &ref{entry: e, value: e.value}, nil
	}

	e := &entry{key: key, name: o.nameFor(key), count: 1}
	o.entries[key] = e
	o.names[e.name] = e

	rebuilt, err := o.rebuild(v)
	if err != nil {
		return nil, err
	}
	e.value = rebuilt
	o.order = append(o.order, e)

	return &ref{entry: e, value: rebuilt}, nil
}

// rebuild copies a container with every child walked.
func (o *Optimizer) rebuild(v any) (any, error) {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		// Keys are walked in encoding order so bindings are numbered the
		// same way on every build.
		for _, k := range slices.Sorted(maps.Keys(v)) {
			c, err := o.walk(v[k])
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case *jsvalue.Dictionary:
		out := jsvalue.NewDictionary()
		var err error
		v.Range(func(k string, child any) bool {
			var c any
			if c, err = o.walk(child); err != nil {
				return false
			}
			out.Set(k, c)
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			c, err := o.walk(child)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	return v, nil
}

func (o *Optimizer) nameFor(key string) string {
	base := fmt.Sprintf("o%08X", crc32.ChecksumIEEE([]byte(key)))
	name := base
	for i := 1; o.names[name] != nil; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	return name
}

// isContainer reports whether v is a non-empty container eligible for
// hoisting.
func isContainer(v any) bool {
	switch v := v.(type) {
	case map[string]any:
		return len(v) > 0
	case *jsvalue.Dictionary:
		return v.Len() > 0
	case []any:
		return len(v) > 0
	}
	return false
}
