// Package minifier provides the JavaScript minifiers a bundle can be passed
// through before it is wrapped.
package minifier

import (
	"context"
	"fmt"
	"sort"

	"github.com/conneroisu/markupc/internal/errors"
)

// Minifier transforms JavaScript source without changing its semantics.
type Minifier interface {
	Minify(ctx context.Context, src string) (string, error)
}

// Named is implemented by minifiers that report their registry name.
type Named interface {
	Name() string
}

// Constructor builds a minifier from string arguments.
type Constructor func(args ...string) (Minifier, error)

var registry map[string]Constructor

func init() {
	registry = map[string]Constructor{
		"Noop": func(...string) (Minifier, error) {
			return Noop{}, nil
		},
		"Whitespace": func(...string) (Minifier, error) {
			return Whitespace{}, nil
		},
		"ClosureCompilerService": func(args ...string) (Minifier, error) {
			return NewClosureCompilerService(args...), nil
		},
		"FirstAvailable": func(args ...string) (Minifier, error) {
			chain := make([]Minifier, 0, len(args))
			for _, name := range args {
				m, err := New(name)
				if err != nil {
					return nil, err
				}
				chain = append(chain, m)
			}
			return NewFirstAvailable(chain...), nil
		},
		"Cached": func(args ...string) (Minifier, error) {
			if len(args) == 0 {
				return nil, errors.NewUnknownMinifierError("").
					WithContext("reason", "Cached needs the name of the minifier to wrap")
			}
			inner, err := New(args[0], args[1:]...)
			if err != nil {
				return nil, err
			}
			return NewCached(inner, DefaultCacheSize), nil
		},
	}
}

// New returns the minifier registered under name, built with args.
func New(name string, args ...string) (Minifier, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.NewUnknownMinifierError(name)
	}
	return ctor(args...)
}

// Names returns the registered minifier names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NameOf returns the registry name of m, or its Go type for minifiers that
// do not implement Named.
func NameOf(m Minifier) string {
	if n, ok := m.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", m)
}

// Noop returns its input unchanged.
type Noop struct{}

// Minify implements Minifier.
func (Noop) Minify(_ context.Context, src string) (string, error) {
	return src, nil
}

// Name implements Named.
func (Noop) Name() string { return "Noop" }
