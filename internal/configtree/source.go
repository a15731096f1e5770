package configtree

import (
	"context"
	"os"

	"github.com/conneroisu/markupc/internal/errors"
)

// ConfigSource supplies the default configuration tree when a build is not
// given one explicitly.
type ConfigSource interface {
	Config(ctx context.Context) (*Tree, error)
}

// TemplateSource supplies the render template that preview support and
// hint derivation work from.
type TemplateSource interface {
	Template(ctx context.Context) (string, error)
}

// FileConfigSource loads the tree from a YAML file on every call.
type FileConfigSource struct {
	Path string
}

// Config implements ConfigSource.
func (s FileConfigSource) Config(ctx context.Context) (*Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadFile(s.Path)
}

// StaticConfig is a ConfigSource that always returns a copy of the same
// tree.
type StaticConfig struct {
	Tree *Tree
}

// Config implements ConfigSource.
func (s StaticConfig) Config(context.Context) (*Tree, error) {
	if s.Tree == nil {
		return nil, errors.NewConfigResolutionError(errors.ErrCodeConfigResolution, "no default configuration", nil)
	}
	return s.Tree.Clone(), nil
}

// FileTemplateSource reads the template from a file on every call. An empty
// Path yields an empty template.
type FileTemplateSource struct {
	Path string
}

// Template implements TemplateSource.
func (s FileTemplateSource) Template(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotFound, "cannot read render template", err).
			WithContext("file", s.Path)
	}
	return string(data), nil
}

// StaticTemplate is a TemplateSource holding the template text itself.
type StaticTemplate string

// Template implements TemplateSource.
func (s StaticTemplate) Template(context.Context) (string, error) {
	return string(s), nil
}
