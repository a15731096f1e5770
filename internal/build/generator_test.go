package build

import (
	"bytes"
	"context"
	stderrors "errors"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/markupc/internal/callbacks"
	"github.com/conneroisu/markupc/internal/configtree"
	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/jsruntime"
	"github.com/conneroisu/markupc/internal/jsvalue"
	"github.com/conneroisu/markupc/internal/logging"
	"github.com/conneroisu/markupc/internal/minifier"
)

var namespacePattern = regexp.MustCompile(`window\['s9e'\] = \{ 'TextFormatter': \{([^}]*)\} \}\n`)

// namespaceKeys returns the keys of every exported namespace object in src.
func namespaceKeys(t *testing.T, src string) [][]string {
	t.Helper()
	var out [][]string
	for _, m := range namespacePattern.FindAllStringSubmatch(src, -1) {
		var keys []string
		for _, pair := range strings.Split(m[1], ",") {
			key, value, ok := strings.Cut(pair, ":")
			require.True(t, ok, pair)
			key = strings.Trim(key, "'")
			assert.Equal(t, key, value)
			keys = append(keys, key)
		}
		out = append(out, keys)
	}
	return out
}

// scenarioTree is one plugin with a parser and a quickMatch, and one tag
// with a single attribute.
func scenarioTree() *configtree.Tree {
	tree := configtree.New()
	tree.Plugins.Set("HTMLComments", map[string]any{
		"parser":     &callbacks.Callback{JS: "matches.forEach(function(m){addIgnoreTag(m[0][1], m[0][0].length);});"},
		"quickMatch": "<!--",
	})
	tree.Tags.Set("X", map[string]any{
		"attributes": map[string]any{"id": map[string]any{}},
	})
	return tree
}

// duplicateTagsTree has two structurally identical tags.
func duplicateTagsTree() *configtree.Tree {
	tree := configtree.New()
	for _, name := range []string{"B", "I"} {
		tree.Tags.Set(name, map[string]any{
			"attributes": map[string]any{
				"title": map[string]any{"required": false},
			},
			"nestingLimit": 10,
			"tagLimit":     100,
		})
	}
	return tree
}

func newGenerator(t *testing.T, cfg Config) *Generator {
	t.Helper()
	g, err := New(cfg)
	require.NoError(t, err)
	return g
}

func build(t *testing.T, g *Generator, opts Options) *Result {
	t.Helper()
	res, err := g.Build(context.Background(), opts)
	require.NoError(t, err)
	return res
}

type countingLoader struct {
	inner jsruntime.Loader
	loads int64
}

func (c *countingLoader) Load(name string) (string, error) {
	atomic.AddInt64(&c.loads, 1)
	return c.inner.Load(name)
}

func TestScenarioParseOnly(t *testing.T) {
	g := newGenerator(t, Config{})
	opts := Options{Tree: scenarioTree(), Exports: []string{"parse"}}

	first := build(t, g, opts)
	second := build(t, g, opts)

	assert.NotEmpty(t, first.Source)
	assert.Equal(t, first.Source, second.Source)
	assert.Equal(t, [][]string{{"parse"}}, namespaceKeys(t, first.Source))
	assert.Contains(t, first.Source, `quickMatch:"\u003c!--"`)
	assert.True(t, strings.HasPrefix(first.Source, "(function(){"))
	assert.True(t, strings.HasSuffix(first.Source, "})()"))
}

func TestDeterminismAcrossGenerators(t *testing.T) {
	a := build(t, newGenerator(t, Config{}), Options{Tree: duplicateTagsTree()})
	b := build(t, newGenerator(t, Config{}), Options{Tree: duplicateTagsTree()})
	assert.Equal(t, a.Source, b.Source)
}

func TestExportSurface(t *testing.T) {
	tests := [][]string{
		{"parse"},
		{"parse", "preview"},
		{"getLogger", "parse"},
		{"setTagLimit", "disableTag", "parse"},
		DefaultExports,
	}

	g := newGenerator(t, Config{})
	for _, exports := range tests {
		t.Run(strings.Join(exports, ","), func(t *testing.T) {
			res := build(t, g, Options{Tree: scenarioTree(), Exports: exports})
			assert.Equal(t, [][]string{exports}, namespaceKeys(t, res.Source))
			assert.Equal(t, exports, res.Exports)
		})
	}
}

func TestEmptyExportSet(t *testing.T) {
	res := build(t, newGenerator(t, Config{}), Options{Tree: scenarioTree(), Exports: []string{}})
	assert.NotContains(t, res.Source, "window['s9e']")
}

func TestExportsAreValidatedAndDeduplicated(t *testing.T) {
	g := newGenerator(t, Config{})

	res := build(t, g, Options{Tree: scenarioTree(), Exports: []string{"preview", "parse", "preview"}})
	assert.Equal(t, []string{"preview", "parse"}, res.Exports)

	_, err := g.Build(context.Background(), Options{Tree: scenarioTree(), Exports: []string{"parse", "explode"}})
	require.Error(t, err)
	assert.True(t, errors.IsConfigResolutionError(err))
	assert.Equal(t, errors.ErrCodeUnknownExport, errors.GetErrorContext(err)["code"])

	_, err = New(Config{Exports: []string{"explode"}})
	assert.True(t, errors.IsConfigResolutionError(err))
}

func TestDefaultExportsWhenUnset(t *testing.T) {
	res := build(t, newGenerator(t, Config{}), Options{Tree: scenarioTree()})
	assert.Equal(t, [][]string{DefaultExports}, namespaceKeys(t, res.Source))
}

func TestResetIsolation(t *testing.T) {
	g := newGenerator(t, Config{})
	build(t, g, Options{Tree: duplicateTagsTree()})
	afterA := build(t, g, Options{Tree: scenarioTree()})

	alone := build(t, newGenerator(t, Config{}), Options{Tree: scenarioTree()})
	assert.Equal(t, alone.Source, afterA.Source)
	assert.Zero(t, afterA.Stats.Bindings)
}

var tagBindingPattern = regexp.MustCompile(`"(B|I)":(o[0-9A-F]{8}(?:_\d+)?)`)

func TestDeduplicationOfIdenticalTags(t *testing.T) {
	for _, exports := range [][]string{{"parse"}, DefaultExports} {
		t.Run(strings.Join(exports, ","), func(t *testing.T) {
			res := build(t, newGenerator(t, Config{}), Options{Tree: duplicateTagsTree(), Exports: exports})
			assert.Equal(t, 1, res.Stats.Bindings)
			assert.Equal(t, 1, strings.Count(res.Source, "/** @const */ var o"))
		})
	}

	// Without tag mutators the tag objects themselves are shared.
	res := build(t, newGenerator(t, Config{}), Options{Tree: duplicateTagsTree(), Exports: []string{"parse"}})
	refs := map[string]string{}
	for _, m := range tagBindingPattern.FindAllStringSubmatch(res.Source, -1) {
		refs[m[1]] = m[2]
	}
	require.Len(t, refs, 2)
	assert.Equal(t, refs["B"], refs["I"])
}

func TestTagsStayIndependentWithMutators(t *testing.T) {
	res := build(t, newGenerator(t, Config{}), Options{Tree: duplicateTagsTree(), Exports: []string{"parse", "setTagLimit"}})
	assert.Empty(t, tagBindingPattern.FindAllString(res.Source, -1))
	assert.Contains(t, res.Source, `"B":{attributes:o`)
	assert.Contains(t, res.Source, `"I":{attributes:o`)
}

func TestVariantFiltering(t *testing.T) {
	tree := scenarioTree()
	tree.Tags.Set("Y", map[string]any{
		"attributes": map[string]any{
			"id": map[string]any{
				"defaultValue": configtree.NewVariant(nil).Set("PHP", "php-only-marker"),
			},
			"class": map[string]any{
				"defaultValue": configtree.NewVariant("shared-default").Set(configtree.TargetJS, "js-marker"),
			},
		},
	})
	tree.RegisteredVars.Set("serverOnly", configtree.NewVariant(nil).Set("PHP", "another-php-marker"))

	res := build(t, newGenerator(t, Config{}), Options{Tree: tree})
	assert.NotContains(t, res.Source, "php-only-marker")
	assert.NotContains(t, res.Source, "another-php-marker")
	assert.NotContains(t, res.Source, "shared-default")
	assert.Contains(t, res.Source, `"js-marker"`)

	// the caller's tree keeps its variants
	v, _ := tree.RegisteredVars.Get("serverOnly")
	assert.IsType(t, &configtree.Variant{}, v)
}

func TestQuickMatchDegradation(t *testing.T) {
	tree := configtree.New()
	tree.Plugins.Set("Broken", map[string]any{
		"parser":     jsvalue.Code("return;"),
		"quickMatch": "\xff\xfe",
	})

	res := build(t, newGenerator(t, Config{}), Options{Tree: tree})
	assert.NotContains(t, res.Source, "quickMatch:")
	assert.Contains(t, res.Source, "Broken")
}

func TestQuickMatchTrimmedToValidRun(t *testing.T) {
	tree := configtree.New()
	tree.Plugins.Set("Emoticons", map[string]any{
		"parser":     jsvalue.Code("return;"),
		"quickMatch": "\xff:)",
	})

	res := build(t, newGenerator(t, Config{}), Options{Tree: tree})
	assert.Contains(t, res.Source, `quickMatch:":)"`)
}

func TestPluginConfigSplit(t *testing.T) {
	tree := configtree.New()
	tree.Plugins.Set("BBCodes", map[string]any{
		"className":   "s9e\\TextFormatter\\Plugins\\BBCodes\\Parser",
		"parser":      &callbacks.Callback{JS: "processMatches(matches);"},
		"regexp":      `\[b\]`,
		"regexpLimit": 1000,
		"tagName":     "B",
	})
	tree.Plugins.Set("NoParser", map[string]any{"regexp": "x"})

	res := build(t, newGenerator(t, Config{}), Options{Tree: tree})
	assert.Contains(t, res.Source, "var config={tagName:\"B\"};\n\tprocessMatches(matches);")
	assert.Contains(t, res.Source, `regexp:/\[b\]/g`)
	assert.Contains(t, res.Source, "regexpLimit:1000")
	assert.NotContains(t, res.Source, "className")
	assert.NotContains(t, res.Source, "NoParser")
}

func TestPluginRegexpError(t *testing.T) {
	tree := configtree.New()
	tree.Plugins.Set("Bad", map[string]any{
		"parser": jsvalue.Code("return;"),
		"regexp": "(",
	})

	_, err := newGenerator(t, Config{}).Build(context.Background(), Options{Tree: tree})
	require.Error(t, err)
	assert.True(t, errors.IsEncodingError(err))
	assert.Equal(t, "plugins.Bad.regexp", errors.GetErrorContext(err)["path"])
}

func TestParserMustBeFunctionBody(t *testing.T) {
	tests := []struct {
		name   string
		parser any
	}{
		{"number", 42},
		{"function expression", &callbacks.Callback{JS: "function(text, matches){}"}},
		{"indented function expression", jsvalue.Code("\n  function (text) {}")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := configtree.New()
			tree.Plugins.Set("P", map[string]any{"parser": tt.parser})

			_, err := newGenerator(t, Config{}).Build(context.Background(), Options{Tree: tree})
			require.Error(t, err)
			assert.True(t, errors.IsEncodingError(err))
			assert.Equal(t, "plugins.P.parser", errors.GetErrorContext(err)["path"])
		})
	}
}

func TestDictionaryConfigsAreTranslated(t *testing.T) {
	plugin := jsvalue.NewDictionary()
	plugin.Set("parser", &callbacks.Callback{JS: "doParse();"})
	plugin.Set("quickMatch", "[")

	attr := jsvalue.NewDictionary()
	attr.Set("filterChain", []any{&callbacks.Callback{JS: "BuiltInFilters.filterUrl", Params: []callbacks.Param{
		callbacks.Var("attrValue"), callbacks.Var("urlConfig"), callbacks.Var("logger"),
	}}})
	attrs := jsvalue.NewDictionary()
	attrs.Set("url", attr)
	tag := jsvalue.NewDictionary()
	tag.Set("attributes", attrs)

	tree := configtree.New()
	tree.Plugins.Set("Links", plugin)
	tree.Tags.Set("URL", tag)

	res := build(t, newGenerator(t, Config{}), Options{Tree: tree, Exports: []string{"parse"}})
	assert.Contains(t, res.Source, "\tdoParse();\n")
	assert.Contains(t, res.Source, `quickMatch:"["`)
	assert.NotContains(t, res.Source, "&{")
	assert.Equal(t, 1, res.Stats.Functions)
	assert.Contains(t, res.Source, `{return BuiltInFilters.filterUrl(attrValue,registeredVars["urlConfig"],logger);}`)
}

func TestYAMLTreeBuildsDeterministically(t *testing.T) {
	doc := `plugins:
  BBCodes:
    parser: !callback processMatches(matches);
    quickMatch: "["
    regexp: '\[(b|i)\]'
registeredVars: {}
rootContext: {allowed: [0, 0]}
tags:
  B:
    attributes:
      title: {required: false, filterChain: [!callback {js: BuiltInFilters.filterSimpletext, params: [attrValue]}]}
      x1: {defaultValue: one}
      x2: {defaultValue: two}
      x3: {defaultValue: three}
    rules: {closeParent: [I], flags: 8}
    nestingLimit: 10
  I:
    attributes:
      title: {required: false, filterChain: [!callback {js: BuiltInFilters.filterSimpletext, params: [attrValue]}]}
      x1: {defaultValue: one}
      x2: {defaultValue: two}
      x3: {defaultValue: three}
    rules: {closeParent: [I], flags: 8}
    nestingLimit: 10
`
	opts := func(t *testing.T) Options {
		tree, err := configtree.Load([]byte(doc))
		require.NoError(t, err)
		return Options{Tree: tree, Exports: []string{"parse", "disableTag"}}
	}

	first := build(t, newGenerator(t, Config{}), opts(t))
	for i := 0; i < 30; i++ {
		assert.Equal(t, first.Source, build(t, newGenerator(t, Config{}), opts(t)).Source)
	}
}

func TestRegisteredVarsDropCacheDir(t *testing.T) {
	tree := scenarioTree()
	tree.RegisteredVars.Set("cacheDir", "/var/cache/secret-path")
	tree.RegisteredVars.Set("urlConfig", map[string]any{"allowedSchemes": "/^https?$/"})

	res := build(t, newGenerator(t, Config{}), Options{Tree: tree})
	assert.NotContains(t, res.Source, "secret-path")
	assert.Contains(t, res.Source, `var registeredVars={"urlConfig":{allowedSchemes:"/^https?$/"}};`)
}

func TestCallbacksBecomeFunctions(t *testing.T) {
	tree := configtree.New()
	tree.Tags.Set("URL", map[string]any{
		"attributes": map[string]any{
			"url": map[string]any{
				"filterChain": []any{&callbacks.Callback{JS: "BuiltInFilters.filterUrl", Params: []callbacks.Param{
					callbacks.Var("attrValue"), callbacks.Var("urlConfig"), callbacks.Var("logger"),
				}}},
			},
		},
	})
	tree.Tags.Set("LINK", map[string]any{
		"attributes": map[string]any{
			"href": map[string]any{
				"filterChain": []any{&callbacks.Callback{JS: "BuiltInFilters.filterUrl", Params: []callbacks.Param{
					callbacks.Var("attrValue"), callbacks.Var("urlConfig"), callbacks.Var("logger"),
				}}},
			},
		},
	})

	res := build(t, newGenerator(t, Config{}), Options{Tree: tree, Exports: []string{"parse"}})
	assert.Equal(t, 1, res.Stats.Functions)
	assert.Contains(t, res.Source, `{return BuiltInFilters.filterUrl(attrValue,registeredVars["urlConfig"],logger);}`)
	assert.Regexp(t, `\nfunction c[0-9A-F]{8}\(attrValue,attrName\)`, res.Source)
}

func TestLoggerFragmentSelection(t *testing.T) {
	g := newGenerator(t, Config{})

	res := build(t, g, Options{Tree: scenarioTree(), Exports: []string{"parse", "getLogger"}})
	assert.Contains(t, res.Source, "function getLogger()")
	assert.Contains(t, res.Stats.Fragments, jsruntime.FragmentLogger)

	res = build(t, g, Options{Tree: scenarioTree(), Exports: []string{"parse"}})
	assert.NotContains(t, res.Source, "function getLogger()")
	assert.Contains(t, res.Stats.Fragments, jsruntime.FragmentNullLogger)
}

func TestPreviewEmbedsTemplate(t *testing.T) {
	template := `<xsl:stylesheet><xsl:template match="B"><b data-s9e-livepreview-postprocess="x"><xsl:apply-templates/></b></xsl:template></xsl:stylesheet>`
	g := newGenerator(t, Config{TemplateSource: configtree.StaticTemplate(template)})

	res := build(t, g, Options{Tree: scenarioTree(), Exports: []string{"parse", "preview"}})
	assert.Contains(t, res.Source, "/** @const */ var xsl=\"\\u003cxsl:stylesheet")
	assert.Contains(t, res.Source, "function preview(")
	assert.Contains(t, res.Source, "HINT.postProcessing=1;")
	assert.Contains(t, res.Source, "HINT.ignoreAttrs=0;")
	assert.Equal(t, jsruntime.FragmentRender, res.Stats.Fragments[len(res.Stats.Fragments)-1])

	res = build(t, g, Options{Tree: scenarioTree(), Exports: []string{"parse"}})
	assert.NotContains(t, res.Source, "var xsl=")
	assert.NotContains(t, res.Source, "function preview(")
}

func TestHintsComeFirst(t *testing.T) {
	res := build(t, newGenerator(t, Config{}), Options{Tree: scenarioTree()})
	assert.True(t, strings.HasPrefix(res.Source, "(function(){/** @const */ var HINT={};\n"))
}

func TestConfigSource(t *testing.T) {
	g := newGenerator(t, Config{ConfigSource: configtree.StaticConfig{Tree: scenarioTree()}})
	fromSource := build(t, g, Options{})
	explicit := build(t, g, Options{Tree: scenarioTree()})
	assert.Equal(t, explicit.Source, fromSource.Source)
}

func TestConfigResolutionErrors(t *testing.T) {
	_, err := newGenerator(t, Config{}).Build(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsConfigResolutionError(err))

	tree := scenarioTree()
	tree.Tags = nil
	_, err = newGenerator(t, Config{}).Build(context.Background(), Options{Tree: tree})
	require.Error(t, err)
	assert.True(t, errors.IsConfigResolutionError(err))
	assert.Equal(t, "tags", errors.GetErrorContext(err)["path"])

	failing := configtree.FileConfigSource{Path: t.TempDir() + "/missing.yml"}
	_, err = newGenerator(t, Config{ConfigSource: failing}).Build(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsConfigResolutionError(err))
}

func TestEncodingErrorAbortsBuild(t *testing.T) {
	tree := scenarioTree()
	tree.RegisteredVars.Set("handle", make(chan int))

	_, err := newGenerator(t, Config{}).Build(context.Background(), Options{Tree: tree})
	require.Error(t, err)
	assert.True(t, errors.IsEncodingError(err))
	assert.Equal(t, "registeredVars.handle", errors.GetErrorContext(err)["path"])
}

func TestUnknownMinifierFailsBeforeAnyFragmentIsRead(t *testing.T) {
	loader := &countingLoader{inner: jsruntime.Embedded()}
	g := newGenerator(t, Config{Loader: loader})

	_, err := g.SetMinifier("Bogus")
	require.Error(t, err)
	assert.True(t, errors.IsUnknownMinifierError(err))
	assert.Zero(t, atomic.LoadInt64(&loader.loads))
	assert.IsType(t, minifier.Noop{}, g.Minifier())
}

func TestMinifierIsApplied(t *testing.T) {
	g := newGenerator(t, Config{})
	plain := build(t, g, Options{Tree: scenarioTree()})

	_, err := g.SetMinifier("Whitespace")
	require.NoError(t, err)
	small := build(t, g, Options{Tree: scenarioTree()})

	assert.Less(t, small.Stats.Size, plain.Stats.Size)
	assert.True(t, strings.HasPrefix(small.Source, "(function(){"))
	assert.True(t, strings.HasSuffix(small.Source, "})()"))
	assert.NotContains(t, small.Source, "/** @const */")
}

type failingMinifier struct{}

func (failingMinifier) Minify(context.Context, string) (string, error) {
	return "", stderrors.New("service down")
}

func TestMinifierFailureAbortsBuild(t *testing.T) {
	g := newGenerator(t, Config{Minifier: failingMinifier{}})

	res, err := g.Build(context.Background(), Options{Tree: scenarioTree()})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsMinifyError(err))
}

func TestFragmentErrors(t *testing.T) {
	broken := jsruntime.LoaderFunc(func(name string) (string, error) {
		if name == jsruntime.FragmentCoreParser {
			return "var plugins;", nil
		}
		return jsruntime.Embedded().Load(name)
	})
	_, err := newGenerator(t, Config{Loader: broken}).Build(context.Background(), Options{Tree: scenarioTree()})
	require.Error(t, err)
	assert.True(t, errors.IsTemplateError(err))

	missing := jsruntime.LoaderFunc(func(name string) (string, error) {
		return "", stderrors.New("disk on fire")
	})
	_, err = newGenerator(t, Config{Loader: missing}).Build(context.Background(), Options{Tree: scenarioTree()})
	require.Error(t, err)
	assert.True(t, errors.IsFragmentError(err))
}

func TestStatsAndMetrics(t *testing.T) {
	cached := minifier.NewCached(minifier.Whitespace{}, minifier.DefaultCacheSize)
	g := newGenerator(t, Config{Minifier: cached})

	res := build(t, g, Options{Tree: duplicateTagsTree()})
	assert.Equal(t, len(res.Source), res.Stats.Size)
	assert.Positive(t, res.Stats.GzipSize)
	assert.Less(t, res.Stats.GzipSize, res.Stats.Size)
	assert.Positive(t, res.Stats.Duration)

	build(t, g, Options{Tree: duplicateTagsTree()})
	_, err := g.Build(context.Background(), Options{Tree: scenarioTree(), Exports: []string{"nope"}})
	require.Error(t, err)

	snap := g.Metrics().GetSnapshot()
	assert.EqualValues(t, 3, snap.TotalBuilds)
	assert.EqualValues(t, 2, snap.SuccessfulBuilds)
	assert.EqualValues(t, 1, snap.FailedBuilds)
	assert.EqualValues(t, 1, snap.CacheHits)
	assert.Equal(t, res.Stats.Size, snap.LastSize)
	assert.InDelta(t, 66.67, g.Metrics().GetSuccessRate(), 0.01)
}

func TestBuildLogsStages(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelDebug,
		Format: "json",
		Output: &buf,
	})

	build(t, newGenerator(t, Config{Logger: logger}), Options{Tree: scenarioTree()})

	out := buf.String()
	assert.Contains(t, out, "fragments concatenated")
	assert.Contains(t, out, "config injected")
	assert.Contains(t, out, `"component":"build"`)
}
