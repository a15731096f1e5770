// Package jsvalue serializes configuration values into JavaScript source.
//
// Besides plain Go values (scalars, slices, string-keyed maps) the encoder
// understands three wrapper types:
//
//   - Code holds source that is emitted verbatim.
//   - Dictionary is an insertion-ordered map whose keys are data, so they are
//     always quoted and never renamed by a minifier.
//   - Regexp holds a pattern in the host (Go RE2) dialect that is converted
//     to a JavaScript regular expression literal on output.
//
// Types that need custom output implement Marshaler.
package jsvalue

import (
	"sort"
)

// Code is JavaScript source that must never be quoted or escaped.
type Code string

// String returns the source text.
func (c Code) String() string { return string(c) }

// Regexp is a pattern written in the host regexp dialect.
type Regexp struct {
	Pattern string
	// Global requests the JavaScript g flag.
	Global bool
}

// NewRegexp returns a non-global host pattern.
func NewRegexp(pattern string) *Regexp {
	return &Regexp{Pattern: pattern}
}

// Marshaler is implemented by values that produce their own JavaScript
// representation. The encoder passes itself so implementations can encode
// nested values consistently.
type Marshaler interface {
	MarshalJS(e *Encoder) (string, error)
}

// Dictionary is a string-keyed map that remembers insertion order.
type Dictionary struct {
	keys   []string
	values map[string]any
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{values: make(map[string]any)}
}

// DictionaryFrom copies m into a dictionary with keys in sorted order.
func DictionaryFrom(m map[string]any) *Dictionary {
	d := NewDictionary()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.Set(k, m[k])
	}
	return d
}

// Set stores v under key. An existing key keeps its position.
func (d *Dictionary) Set(key string, v any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the value stored under key.
func (d *Dictionary) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Has reports whether key is present.
func (d *Dictionary) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes key, preserving the order of the remaining keys.
func (d *Dictionary) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns a copy of the keys in insertion order.
func (d *Dictionary) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Range calls fn for every entry in order until fn returns false.
func (d *Dictionary) Range(fn func(key string, v any) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy.
func (d *Dictionary) Clone() *Dictionary {
	c := NewDictionary()
	d.Range(func(k string, v any) bool {
		c.Set(k, v)
		return true
	})
	return c
}
