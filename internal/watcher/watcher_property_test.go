//go:build property

package watcher

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("a flush yields each path once, sorted", prop.ForAll(
		func(indexes []int) bool {
			d := NewDebouncer(time.Hour)
			want := make(map[string]bool)
			for _, i := range indexes {
				path := fmt.Sprintf("file%d.yml", i)
				want[path] = true
				d.pending[path] = ChangeEvent{Path: path}
			}
			d.flush()

			if len(indexes) == 0 {
				return len(d.out) == 0
			}
			events := <-d.out
			if len(events) != len(want) || len(d.pending) != 0 {
				return false
			}
			return sort.SliceIsSorted(events, func(i, j int) bool {
				return events[i].Path < events[j].Path
			})
		},
		gen.SliceOf(gen.IntRange(0, 10)),
	))

	properties.TestingRun(t)
}
