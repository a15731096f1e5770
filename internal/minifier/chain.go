package minifier

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/conneroisu/markupc/internal/errors"
)

// FirstAvailable returns the output of the first minifier in the chain that
// succeeds.
type FirstAvailable struct {
	chain []Minifier
}

// NewFirstAvailable returns a chain trying each minifier in order.
func NewFirstAvailable(chain ...Minifier) *FirstAvailable {
	return &FirstAvailable{chain: chain}
}

// Add appends a minifier to the chain.
func (f *FirstAvailable) Add(m Minifier) {
	f.chain = append(f.chain, m)
}

// Name implements Named.
func (f *FirstAvailable) Name() string { return "FirstAvailable" }

// Minify implements Minifier.
func (f *FirstAvailable) Minify(ctx context.Context, src string) (string, error) {
	if len(f.chain) == 0 {
		return "", errors.NewMinifyError(f.Name(), stderrors.New("no minifier in chain"))
	}

	var errs []error
	for _, m := range f.chain {
		out, err := m.Minify(ctx, src)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", errors.NewMinifyError(f.Name(), ctx.Err())
		}
		errs = append(errs, fmt.Errorf("%s: %w", NameOf(m), err))
	}

	return "", errors.NewMinifyError(f.Name(), stderrors.Join(errs...))
}
