// Package jsruntime holds the static JavaScript runtime fragments and the
// slot template used to inject a compiled configuration into them.
package jsruntime

import (
	"embed"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/conneroisu/markupc/internal/errors"
)

//go:embed fragments/*.js
var embedded embed.FS

// Fragment names, in the order the core parser expects them.
const (
	FragmentUtils             = "utils"
	FragmentBuiltInFilters    = "builtin-filters"
	FragmentLogger            = "logger"
	FragmentNullLogger        = "null-logger"
	FragmentTagRepresentation = "tag-representation"
	FragmentCoreParser        = "core-parser"
	FragmentRender            = "render"
)

var fragmentFiles = map[string]string{
	FragmentUtils:             "utils.js",
	FragmentBuiltInFilters:    "builtin-filters.js",
	FragmentLogger:            "logger.js",
	FragmentNullLogger:        "null-logger.js",
	FragmentTagRepresentation: "tag.js",
	FragmentCoreParser:        "parser.js",
	FragmentRender:            "render.js",
}

// Names returns every fragment name a Loader may be asked for.
func Names() []string {
	return []string{
		FragmentUtils,
		FragmentBuiltInFilters,
		FragmentLogger,
		FragmentNullLogger,
		FragmentTagRepresentation,
		FragmentCoreParser,
		FragmentRender,
	}
}

// FileName returns the file a fragment is stored in.
func FileName(name string) (string, bool) {
	file, ok := fragmentFiles[name]
	return file, ok
}

// Loader returns the source of a named fragment.
type Loader interface {
	Load(name string) (string, error)
}

// FSLoader loads fragments from a file system.
type FSLoader struct {
	FS fs.FS
	// Fallback is consulted when a fragment file is missing from FS.
	Fallback Loader
}

// Embedded returns the loader for the fragments compiled into the binary.
func Embedded() *FSLoader {
	sub, err := fs.Sub(embedded, "fragments")
	if err != nil {
		panic(err)
	}
	return &FSLoader{FS: sub}
}

// Dir returns a loader reading fragments from dir, falling back to the
// embedded copy for any file dir does not provide.
func Dir(dir string) *FSLoader {
	return &FSLoader{FS: os.DirFS(filepath.Clean(dir)), Fallback: Embedded()}
}

// Load implements Loader.
func (l *FSLoader) Load(name string) (string, error) {
	file, ok := fragmentFiles[name]
	if !ok {
		return "", errors.NewFragmentError(name, fs.ErrNotExist)
	}

	data, err := fs.ReadFile(l.FS, file)
	if err != nil {
		if l.Fallback != nil && stderrors.Is(err, fs.ErrNotExist) {
			return l.Fallback.Load(name)
		}
		return "", errors.NewFragmentError(name, err)
	}

	return string(data), nil
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(name string) (string, error)

// Load implements Loader.
func (f LoaderFunc) Load(name string) (string, error) {
	return f(name)
}
