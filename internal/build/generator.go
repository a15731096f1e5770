// Package build compiles a formatter configuration into a self-contained
// JavaScript parser bundle.
package build

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/markupc/internal/callbacks"
	"github.com/conneroisu/markupc/internal/configtree"
	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/hints"
	"github.com/conneroisu/markupc/internal/jsruntime"
	"github.com/conneroisu/markupc/internal/jsvalue"
	"github.com/conneroisu/markupc/internal/logging"
	"github.com/conneroisu/markupc/internal/minifier"
	"github.com/conneroisu/markupc/internal/optimizer"
	"github.com/conneroisu/markupc/internal/regexpconv"
)

// Config wires a Generator to its collaborators. Zero fields get defaults.
type Config struct {
	// ConfigSource supplies the tree for builds that do not pass one.
	ConfigSource configtree.ConfigSource
	// TemplateSource supplies the render template. Defaults to an empty
	// template.
	TemplateSource configtree.TemplateSource
	// Loader supplies the runtime fragments. Defaults to the embedded set.
	Loader jsruntime.Loader
	// Minifier defaults to minifier.Noop.
	Minifier minifier.Minifier
	// Hints defaults to the built-in feature vocabulary.
	Hints *hints.Generator
	// Exports is the default export set; nil means DefaultExports.
	Exports []string
	Logger  logging.Logger
}

// Options are per-build inputs.
type Options struct {
	// Tree overrides the ConfigSource. It is not modified.
	Tree *configtree.Tree
	// Exports overrides the Generator's export set when non-nil.
	Exports []string
}

// Result is a finished bundle.
type Result struct {
	Source  string
	Exports []string
	Stats   Stats
}

// Generator runs builds one at a time. It is safe for concurrent use.
type Generator struct {
	mu sync.Mutex

	configSource   configtree.ConfigSource
	templateSource configtree.TemplateSource
	loader         jsruntime.Loader
	minifier       minifier.Minifier
	hints          *hints.Generator
	exports        []string
	logger         logging.Logger
	metrics        *Metrics

	// per-build state, reset at the start of every build
	enc  *jsvalue.Encoder
	conv *regexpconv.Convertor
	opt  *optimizer.Optimizer
	tr   *callbacks.Translator
}

// New returns a generator. The export set in cfg must be valid.
func New(cfg Config) (*Generator, error) {
	exports, err := NormalizeExports(cfg.Exports)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		configSource:   cfg.ConfigSource,
		templateSource: cfg.TemplateSource,
		loader:         cfg.Loader,
		minifier:       cfg.Minifier,
		hints:          cfg.Hints,
		exports:        exports,
		logger:         cfg.Logger,
		metrics:        NewMetrics(),
	}
	if g.templateSource == nil {
		g.templateSource = configtree.StaticTemplate("")
	}
	if g.loader == nil {
		g.loader = jsruntime.Embedded()
	}
	if g.minifier == nil {
		g.minifier = minifier.Noop{}
	}
	if g.hints == nil {
		g.hints = hints.New()
	}
	if g.logger == nil {
		g.logger = logging.NopLogger{}
	}
	g.logger = g.logger.WithComponent("build")

	g.conv = regexpconv.New()
	g.enc = jsvalue.NewEncoder(g.conv)
	g.opt = optimizer.New(g.enc)
	g.tr = callbacks.New(g.enc)

	return g, nil
}

// SetMinifier selects a registered minifier by name. Unknown names fail
// here, before any build work.
func (g *Generator) SetMinifier(name string, args ...string) (minifier.Minifier, error) {
	m, err := minifier.New(name, args...)
	if err != nil {
		return nil, err
	}
	g.UseMinifier(m)
	return m, nil
}

// UseMinifier installs an already constructed minifier.
func (g *Generator) UseMinifier(m minifier.Minifier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.minifier = m
}

// Minifier returns the current minifier.
func (g *Generator) Minifier() minifier.Minifier {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minifier
}

// SetExports replaces the default export set.
func (g *Generator) SetExports(methods []string) error {
	exports, err := NormalizeExports(methods)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exports = exports
	return nil
}

// Exports returns a copy of the default export set.
func (g *Generator) Exports() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.exports))
	copy(out, g.exports)
	return out
}

// Metrics returns the generator's build metrics.
func (g *Generator) Metrics() *Metrics {
	return g.metrics
}

// state carries one build through the pipeline.
type state struct {
	ctx     context.Context
	logger  logging.Logger
	exports []string

	enc  *jsvalue.Encoder
	conv *regexpconv.Convertor
	opt  *optimizer.Optimizer
	tr   *callbacks.Translator

	tree      *configtree.Tree
	template  string
	fragments []string
}

// Build compiles one bundle. It either returns the complete source or an
// error; no partial output is produced.
func (g *Generator) Build(ctx context.Context, opts Options) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	perf := logging.StartOperation(g.logger, "build")

	cacheHitsBefore := g.cacheHits()
	res, err := g.build(ctx, opts)
	duration := time.Since(start)

	cacheHit := g.cacheHits() > cacheHitsBefore
	if err != nil {
		perf.EndWithError(ctx, err)
		g.metrics.RecordBuild(duration, nil, cacheHit, err)
		return nil, err
	}

	res.Stats.Duration = duration
	g.metrics.RecordBuild(duration, &res.Stats, cacheHit, nil)
	perf.End(ctx,
		"size", res.Stats.Size,
		"gzip_size", res.Stats.GzipSize,
		"bindings", res.Stats.Bindings,
		"functions", res.Stats.Functions,
	)
	return res, nil
}

func (g *Generator) build(ctx context.Context, opts Options) (*Result, error) {
	exports := g.exports
	if opts.Exports != nil {
		var err error
		if exports, err = NormalizeExports(opts.Exports); err != nil {
			return nil, err
		}
	}

	// Reset
	g.opt.Reset()
	g.tr.Reset()
	s := &state{
		ctx:     ctx,
		logger:  g.logger,
		exports: exports,
		enc:     g.enc,
		conv:    g.conv,
		opt:     g.opt,
		tr:      g.tr,
	}

	// Render resolve
	template, err := g.templateSource.Template(ctx)
	if err != nil {
		return nil, err
	}
	s.template = template
	g.logger.Debug(ctx, "render template resolved", "bytes", len(template))

	// Config resolve
	tree := opts.Tree
	if tree == nil {
		if g.configSource == nil {
			return nil, errors.NewConfigResolutionError(errors.ErrCodeConfigResolution,
				"no configuration tree given and no default source configured", nil)
		}
		if tree, err = g.configSource.Config(ctx); err != nil {
			return nil, errors.NewConfigResolutionError(errors.ErrCodeConfigResolution,
				"cannot resolve default configuration", err)
		}
	}
	if err := tree.Validate(); err != nil {
		return nil, err
	}

	// Variant filter
	if s.tree, err = configtree.FilterVariants(tree, configtree.TargetJS); err != nil {
		return nil, err
	}
	g.logger.Debug(ctx, "variants filtered", "target", configtree.TargetJS)

	// Callback replace
	if err := s.tr.ReplaceCallbacks(s.tree.Plugins, s.tree.Tags); err != nil {
		return nil, err
	}
	g.logger.Debug(ctx, "callbacks replaced", "functions", s.tr.Len())

	// Source concatenation
	src, err := s.source(g.loader)
	if err != nil {
		return nil, err
	}

	// Hints
	hintSrc, err := g.hints.Hints(s.tree, s.template)
	if err != nil {
		return nil, errors.WrapInternal(err, errors.ErrCodeInternalError, "cannot compute hints")
	}

	// Config injection
	injected, err := s.inject(src)
	if err != nil {
		return nil, err
	}
	src = hintSrc + injected

	// Exports
	src += exportsSource(exports)

	// Minify
	minified, err := g.minifier.Minify(ctx, src)
	if err != nil {
		if errors.IsMinifyError(err) {
			return nil, err
		}
		return nil, errors.NewMinifyError(minifier.NameOf(g.minifier), err)
	}

	// Wrap
	out := "(function(){" + minified + "})()"

	stats, err := computeStats(out)
	if err != nil {
		return nil, err
	}
	stats.Bindings = s.opt.Len()
	stats.Functions = s.tr.Len()
	stats.Fragments = s.fragments

	return &Result{Source: out, Exports: exports, Stats: stats}, nil
}

// source concatenates the runtime fragments the export set needs.
func (s *state) source(loader jsruntime.Loader) (string, error) {
	logger := jsruntime.FragmentNullLogger
	if contains(s.exports, "getLogger") {
		logger = jsruntime.FragmentLogger
	}
	names := []string{
		jsruntime.FragmentUtils,
		jsruntime.FragmentBuiltInFilters,
		logger,
		jsruntime.FragmentTagRepresentation,
		jsruntime.FragmentCoreParser,
	}

	var sb strings.Builder
	if contains(s.exports, "preview") {
		names = append(names, jsruntime.FragmentRender)
		sb.WriteString("/** @const */ var xsl=")
		sb.WriteString(jsvalue.Quote(s.template))
		sb.WriteString(";\n")
	}

	for _, name := range names {
		frag, err := loader.Load(name)
		if err != nil {
			if errors.IsFragmentError(err) {
				return "", err
			}
			return "", errors.NewFragmentError(name, err)
		}
		sb.WriteString(frag)
		sb.WriteByte('\n')
	}
	s.fragments = names
	s.logger.Debug(s.ctx, "fragments concatenated", "fragments", strings.Join(names, ","))

	return sb.String(), nil
}

// inject fills the four config slots of src, prepends the hoisted bindings
// and appends the generated functions.
func (s *state) inject(src string) (string, error) {
	tmpl, err := jsruntime.ParseTemplate(src)
	if err != nil {
		return "", err
	}

	values := make(map[jsruntime.Slot]string, len(jsruntime.Slots))
	if values[jsruntime.SlotPlugins], err = s.pluginsSource(s.tree.Plugins); err != nil {
		return "", err
	}
	if values[jsruntime.SlotRegisteredVars], err = s.registeredVarsSource(s.tree.RegisteredVars); err != nil {
		return "", err
	}
	if values[jsruntime.SlotRootContext], err = s.rootContextSource(s.tree.RootContext); err != nil {
		return "", err
	}
	if values[jsruntime.SlotTagsConfig], err = s.tagsSource(s.tree.Tags); err != nil {
		return "", err
	}

	filled, err := tmpl.Fill(values)
	if err != nil {
		return "", err
	}

	objects, err := s.opt.Objects()
	if err != nil {
		return "", err
	}
	s.logger.Debug(s.ctx, "config injected", "bindings", len(objects))

	var sb strings.Builder
	for _, obj := range objects {
		sb.WriteString(obj)
		sb.WriteByte('\n')
	}
	sb.WriteString(filled)
	sb.WriteByte('\n')
	sb.WriteString(strings.Join(s.tr.Functions(), "\n"))
	sb.WriteByte('\n')

	return sb.String(), nil
}

func (g *Generator) cacheHits() int64 {
	if c, ok := g.minifier.(*minifier.Cached); ok {
		return c.GetHits()
	}
	return 0
}
