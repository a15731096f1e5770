package minifier

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/markupc/internal/errors"
)

type countingMinifier struct {
	calls int64
	err   error
}

func (c *countingMinifier) Minify(_ context.Context, src string) (string, error) {
	atomic.AddInt64(&c.calls, 1)
	if c.err != nil {
		return "", c.err
	}
	return strings.ToUpper(src), nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"Noop", nil, "Noop"},
		{"Whitespace", nil, "Whitespace"},
		{"ClosureCompilerService", []string{"http://localhost/compile"}, "ClosureCompilerService"},
		{"FirstAvailable", []string{"Whitespace", "Noop"}, "FirstAvailable"},
		{"Cached", []string{"Whitespace"}, "Cached(Whitespace)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.name, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, NameOf(m))
		})
	}
}

func TestNewUnknown(t *testing.T) {
	_, err := New("Bogus")
	require.Error(t, err)
	assert.True(t, errors.IsUnknownMinifierError(err))

	_, err = New("FirstAvailable", "Noop", "Bogus")
	require.Error(t, err)
	assert.True(t, errors.IsUnknownMinifierError(err))

	_, err = New("Cached")
	require.Error(t, err)
	assert.True(t, errors.IsUnknownMinifierError(err))
}

func TestNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"Cached", "ClosureCompilerService", "FirstAvailable", "Noop", "Whitespace"}, Names())
}

func TestNoop(t *testing.T) {
	out, err := Noop{}.Minify(context.Background(), "var a = 1;\n")
	require.NoError(t, err)
	assert.Equal(t, "var a = 1;\n", out)
}

func TestWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapse", "var a = 1;\n// note\nvar b = 2;", "var a=1;var b=2;"},
		{"block comments", "/** @const */ var x = {};\n/* a\n b */\nf(x);", "var x={};f(x);"},
		{"strings kept", "var s = 'a  // b';\nvar t = \"c /* d */\";", "var s='a  // b';var t=\"c /* d */\";"},
		{"escaped quote", `var s = 'it\'s  ok';`, `var s='it\'s  ok';`},
		{"regexp kept", "var r = /a  b\\/ [/]/g;", "var r=/a  b\\/ [/]/g;"},
		{"regexp after return", "return /x y/.test(s)", "return/x y/.test(s)"},
		{"division", "var q = a / b / c;", "var q=a/b/c;"},
		{"unary plus", "x = a + +b;", "x=a+ +b;"},
		{"line break kept for asi", "a = b\nc()", "a=b\nc()"},
		{"line break dropped after brace", "function f() {\n  return 1;\n}", "function f(){return 1;}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Whitespace{}.Minify(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestWhitespaceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Whitespace{}.Minify(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosureCompilerService(t *testing.T) {
	var form url.Values
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		userAgent = r.UserAgent()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"compiledCode":"alert(1);"}`))
	}))
	defer srv.Close()

	m := NewClosureCompilerService(srv.URL, "SIMPLE_OPTIMIZATIONS")
	out, err := m.Minify(context.Background(), "alert( 1 );")
	require.NoError(t, err)
	assert.Equal(t, "alert(1);", out)

	assert.Equal(t, "alert( 1 );", form.Get("js_code"))
	assert.Equal(t, "SIMPLE_OPTIMIZATIONS", form.Get("compilation_level"))
	assert.Equal(t, "json", form.Get("output_format"))
	assert.Equal(t, []string{"compiled_code", "errors"}, form["output_info"])
	assert.True(t, strings.HasPrefix(userAgent, "markupc/"))
}

func TestClosureCompilerServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"compile errors", http.StatusOK, `{"errors":[{"code":1,"error":"Parse error","lineno":3}]}`},
		{"server errors", http.StatusOK, `{"serverErrors":[{"code":22,"error":"Too many compiles"}]}`},
		{"bad status", http.StatusBadGateway, `{}`},
		{"bad json", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			_, err := NewClosureCompilerService(srv.URL).Minify(context.Background(), "x")
			require.Error(t, err)
			assert.True(t, errors.IsMinifyError(err))
		})
	}
}

func TestFirstAvailable(t *testing.T) {
	failing := &countingMinifier{err: stderrors.New("unavailable")}
	working := &countingMinifier{}
	unused := &countingMinifier{}

	out, err := NewFirstAvailable(failing, working, unused).Minify(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)
	assert.EqualValues(t, 1, failing.calls)
	assert.EqualValues(t, 1, working.calls)
	assert.EqualValues(t, 0, unused.calls)
}

func TestFirstAvailableAllFail(t *testing.T) {
	first := &countingMinifier{err: stderrors.New("first")}
	second := &countingMinifier{err: stderrors.New("second")}

	_, err := NewFirstAvailable(first, second).Minify(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, errors.IsMinifyError(err))
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")

	_, err = NewFirstAvailable().Minify(context.Background(), "abc")
	assert.True(t, errors.IsMinifyError(err))
}

func TestCachedHitsAndMisses(t *testing.T) {
	inner := &countingMinifier{}
	c := NewCached(inner, 1024)

	for i := 0; i < 3; i++ {
		out, err := c.Minify(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, "ABC", out)
	}

	assert.EqualValues(t, 1, inner.calls)
	assert.EqualValues(t, 2, c.GetHits())
	assert.EqualValues(t, 1, c.GetMisses())
	assert.InDelta(t, 2.0/3.0, c.GetHitRate(), 1e-9)
}

func TestCachedEvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingMinifier{}
	c := NewCached(inner, 6)
	ctx := context.Background()

	_, _ = c.Minify(ctx, "aaa")
	_, _ = c.Minify(ctx, "bbb")
	_, _ = c.Minify(ctx, "aaa") // aaa becomes most recent
	_, _ = c.Minify(ctx, "ccc") // evicts bbb

	count, size, maxSize := c.GetStats()
	assert.Equal(t, 2, count)
	assert.EqualValues(t, 6, size)
	assert.EqualValues(t, 6, maxSize)
	assert.EqualValues(t, 1, c.GetEvictions())

	calls := inner.calls
	_, _ = c.Minify(ctx, "aaa")
	assert.Equal(t, calls, inner.calls, "aaa should still be cached")
	_, _ = c.Minify(ctx, "bbb")
	assert.Equal(t, calls+1, inner.calls, "bbb should have been evicted")
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	inner := &countingMinifier{err: stderrors.New("boom")}
	c := NewCached(inner, 1024)

	_, err := c.Minify(context.Background(), "abc")
	require.Error(t, err)
	_, err = c.Minify(context.Background(), "abc")
	require.Error(t, err)

	assert.EqualValues(t, 2, inner.calls)
	count, _, _ := c.GetStats()
	assert.Zero(t, count)
}

func TestCachedClear(t *testing.T) {
	c := NewCached(&countingMinifier{}, 1024)
	_, _ = c.Minify(context.Background(), "abc")
	c.Clear()

	count, size, _ := c.GetStats()
	assert.Zero(t, count)
	assert.Zero(t, size)
	assert.Zero(t, c.GetMisses())
}
