package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conneroisu/markupc/internal/build"
	"github.com/conneroisu/markupc/internal/config"
	"github.com/conneroisu/markupc/internal/configtree"
	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/jsruntime"
	"github.com/conneroisu/markupc/internal/logging"
	"github.com/conneroisu/markupc/internal/minifier"
	"github.com/conneroisu/markupc/internal/watcher"
)

// newMinifier builds the configured minifier, wrapped in a result cache
// unless caching is disabled or pointless.
func newMinifier(cfg *config.BuildConfig) (minifier.Minifier, error) {
	m, err := minifier.New(cfg.Minifier, cfg.MinifierArgs...)
	if err != nil {
		return nil, err
	}
	switch m.(type) {
	case minifier.Noop, *minifier.Cached:
		return m, nil
	}
	if cfg.CacheSize > 0 {
		return minifier.NewCached(m, cfg.CacheSize), nil
	}
	return m, nil
}

// newGenerator wires a bundle generator to the files named in cfg.
func newGenerator(cfg *config.Config, logger logging.Logger) (*build.Generator, error) {
	m, err := newMinifier(&cfg.Build)
	if err != nil {
		return nil, err
	}

	var loader jsruntime.Loader = jsruntime.Embedded()
	if cfg.Build.Fragments != "" {
		loader = jsruntime.Dir(cfg.Build.Fragments)
	}

	return build.New(build.Config{
		ConfigSource:   configtree.FileConfigSource{Path: cfg.Build.Tree},
		TemplateSource: configtree.FileTemplateSource{Path: cfg.Build.Template},
		Loader:         loader,
		Minifier:       m,
		Exports:        cfg.Build.Exports,
		Logger:         logger,
	})
}

// loadCommandConfig loads the configuration and the logger for a command.
func loadCommandConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger, nil
}

// writeBundle writes the bundle to path, or to stdout when path is "-".
// Files are replaced atomically so watchers and servers never read a
// partial bundle.
func writeBundle(path, src string, stdout io.Writer) error {
	if path == "-" {
		_, err := io.WriteString(stdout, src)
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotFound, "cannot create output directory", err).
			WithContext("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, ".markupc-*.js")
	if err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotFound, "cannot create temporary output", err).
			WithContext("dir", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.WriteString(tmp, src); err != nil {
		tmp.Close()
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "cannot write bundle")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "cannot write bundle")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "cannot write bundle")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotFound, "cannot replace bundle", err).
			WithContext("file", path)
	}
	return nil
}

// summary is the one-line report printed after a build.
func summary(output string, res *build.Result) string {
	target := output
	if target == "-" {
		target = "stdout"
	}
	return fmt.Sprintf("Built %s: %s (%s gzipped), %d bindings, %d functions in %s",
		target,
		humanize.Bytes(uint64(res.Stats.Size)),
		humanize.Bytes(uint64(res.Stats.GzipSize)),
		res.Stats.Bindings,
		res.Stats.Functions,
		res.Stats.Duration.Round(100*time.Microsecond),
	)
}

// buildOnce runs one build and writes the result.
func buildOnce(ctx context.Context, gen *build.Generator, cfg *config.Config, stdout io.Writer) (*build.Result, error) {
	res, err := gen.Build(ctx, build.Options{})
	if err != nil {
		return nil, err
	}
	if err := writeBundle(cfg.Build.Output, res.Source, stdout); err != nil {
		return nil, err
	}
	return res, nil
}

// newInputWatcher watches every file a build reads: the tree, the render
// template and the fragment override directory.
func newInputWatcher(cfg *config.Config, logger logging.Logger) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw.AddFilter(watcher.NoBackupFilter)

	if err := fw.AddFile(cfg.Build.Tree); err != nil {
		fw.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.Build.Tree, err)
	}
	if cfg.Build.Template != "" {
		if err := fw.AddFile(cfg.Build.Template); err != nil {
			fw.Stop()
			return nil, fmt.Errorf("failed to watch %s: %w", cfg.Build.Template, err)
		}
	}
	if cfg.Build.Fragments != "" {
		if err := fw.AddRecursive(cfg.Build.Fragments); err != nil {
			fw.Stop()
			return nil, fmt.Errorf("failed to watch %s: %w", cfg.Build.Fragments, err)
		}
		fw.AddFilter(func(path string) bool {
			if !isUnder(path, cfg.Build.Fragments) {
				return true
			}
			return watcher.NoHiddenFilter(path) && watcher.ExtensionFilter(".js")(path)
		})
	}

	return fw, nil
}

func isUnder(path, dir string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
