//go:build property

package build

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/markupc/internal/configtree"
)

// exportSubset picks the members of DefaultExports whose bit is set in mask.
func exportSubset(mask int) []string {
	var out []string
	for i, name := range DefaultExports {
		if mask&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	return out
}

func tagsTree(names []string, limit int) *configtree.Tree {
	tree := configtree.New()
	for _, name := range names {
		tree.Tags.Set(name, map[string]any{
			"attributes": map[string]any{"id": map[string]any{"required": true}},
			"tagLimit":   limit,
		})
	}
	return tree
}

func TestBuildProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("namespace keys equal the export set", prop.ForAll(
		func(mask int) bool {
			exports := exportSubset(mask)
			g, err := New(Config{})
			if err != nil {
				return false
			}
			res, err := g.Build(context.Background(), Options{Tree: scenarioTree(), Exports: exports})
			if err != nil {
				return false
			}
			keys := namespaceKeys(t, res.Source)
			return len(keys) == 1 && fmt.Sprint(keys[0]) == fmt.Sprint(exports)
		},
		gen.IntRange(1, 1<<len(DefaultExports)-1),
	))

	properties.Property("builds are deterministic", prop.ForAll(
		func(count, limit int) bool {
			names := make([]string, count)
			for i := range names {
				names[i] = fmt.Sprintf("T%d", i)
			}
			a, errA := mustGenerator().Build(context.Background(), Options{Tree: tagsTree(names, limit)})
			b, errB := mustGenerator().Build(context.Background(), Options{Tree: tagsTree(names, limit)})
			return errA == nil && errB == nil && a.Source == b.Source
		},
		gen.IntRange(0, 20),
		gen.IntRange(1, 1000),
	))

	properties.Property("a previous build never leaks into the next", prop.ForAll(
		func(count int) bool {
			names := make([]string, count)
			for i := range names {
				names[i] = fmt.Sprintf("T%d", i)
			}
			g := mustGenerator()
			if _, err := g.Build(context.Background(), Options{Tree: tagsTree(names, 5)}); err != nil {
				return false
			}
			after, err := g.Build(context.Background(), Options{Tree: scenarioTree()})
			if err != nil {
				return false
			}
			alone, err := mustGenerator().Build(context.Background(), Options{Tree: scenarioTree()})
			return err == nil && after.Source == alone.Source
		},
		gen.IntRange(0, 20),
	))

	properties.Property("identical tags share one binding", prop.ForAll(
		func(count int) bool {
			names := make([]string, count)
			for i := range names {
				names[i] = fmt.Sprintf("T%d", i)
			}
			res, err := mustGenerator().Build(context.Background(), Options{Tree: tagsTree(names, 7), Exports: []string{"parse"}})
			if err != nil {
				return false
			}
			return res.Stats.Bindings == 1
		},
		gen.IntRange(2, 20),
	))

	properties.TestingRun(t)
}

func mustGenerator() *Generator {
	g, err := New(Config{})
	if err != nil {
		panic(err)
	}
	return g
}
