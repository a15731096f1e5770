package jsvalue

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/conneroisu/markupc/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperConvertor struct{}

func (upperConvertor) ToJS(pattern string, global bool) (string, error) {
	if pattern == "(" {
		return "", fmt.Errorf("missing closing )")
	}
	if global {
		return "/" + pattern + "/g", nil
	}
	return "/" + pattern + "/", nil
}

type marshalerFunc func(e *Encoder) (string, error)

func (f marshalerFunc) MarshalJS(e *Encoder) (string, error) { return f(e) }

func TestEncodeScalars(t *testing.T) {
	enc := &Encoder{}

	testCases := []struct {
		name     string
		value    any
		expected string
	}{
		{"nil", nil, "null"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"int", 42, "42"},
		{"negative int64", int64(-7), "-7"},
		{"uint8", uint8(255), "255"},
		{"float", 0.5, "0.5"},
		{"integral float", 3.0, "3"},
		{"large float", 1e21, "1e+21"},
		{"NaN", math.NaN(), "NaN"},
		{"infinity", math.Inf(1), "Infinity"},
		{"negative infinity", math.Inf(-1), "-Infinity"},
		{"string", "foo", `"foo"`},
		{"escaped string", "a\"b\\c\n", `"a\"b\\c\n"`},
		{"html safe", "</script>", `"\u003c/script\u003e"`},
		{"line separator", "a\u2028b", `"a\u2028b"`},
		{"code", Code("function(){}"), "function(){}"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := enc.Encode(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestEncodeContainers(t *testing.T) {
	enc := &Encoder{}

	t.Run("empty map and empty slice differ", func(t *testing.T) {
		m, err := enc.Encode(map[string]any{})
		require.NoError(t, err)
		s, err := enc.Encode([]any{})
		require.NoError(t, err)
		assert.Equal(t, "{}", m)
		assert.Equal(t, "[]", s)
	})

	t.Run("generic map sorts keys and quotes only when needed", func(t *testing.T) {
		got, err := enc.Encode(map[string]any{
			"zeta":     1,
			"alpha":    2,
			"data-foo": 3,
			"default":  4,
			"0":        5,
		})
		require.NoError(t, err)
		assert.Equal(t, `{"0":5,alpha:2,"data-foo":3,"default":4,zeta:1}`, got)
	})

	t.Run("dictionary keeps insertion order and quotes keys", func(t *testing.T) {
		d := NewDictionary()
		d.Set("url", 1)
		d.Set("title", map[string]any{})
		d.Set("alt", []any{"x"})
		got, err := enc.Encode(d)
		require.NoError(t, err)
		assert.Equal(t, `{"url":1,"title":{},"alt":["x"]}`, got)
	})

	t.Run("typed containers", func(t *testing.T) {
		got, err := enc.Encode(map[string][]string{"b": {"x", "y"}, "a": nil})
		require.NoError(t, err)
		assert.Equal(t, `{a:[],b:["x","y"]}`, got)
	})

	t.Run("nested code is not quoted", func(t *testing.T) {
		got, err := enc.Encode([]any{Code("c1234ABCD"), "c1234ABCD"})
		require.NoError(t, err)
		assert.Equal(t, `[c1234ABCD,"c1234ABCD"]`, got)
	})
}

func TestEncodeRegexp(t *testing.T) {
	enc := NewEncoder(upperConvertor{})

	got, err := enc.Encode(map[string]any{"r": &Regexp{Pattern: "a+", Global: true}})
	require.NoError(t, err)
	assert.Equal(t, `{r:/a+/g}`, got)

	_, err = enc.Encode(map[string]any{"r": NewRegexp("(")})
	require.Error(t, err)
	assert.True(t, errors.IsEncodingError(err))

	_, err = (&Encoder{}).Encode(NewRegexp("a"))
	assert.True(t, errors.IsEncodingError(err))
}

func TestEncodeMarshaler(t *testing.T) {
	enc := &Encoder{}
	m := marshalerFunc(func(e *Encoder) (string, error) {
		inner, err := e.Encode([]any{1, 2})
		return "wrap(" + inner + ")", err
	})

	got, err := enc.Encode(map[string]any{"x": m})
	require.NoError(t, err)
	assert.Equal(t, "{x:wrap([1,2])}", got)
}

func TestEncodeErrorCarriesPath(t *testing.T) {
	enc := &Encoder{}
	d := NewDictionary()
	d.Set("B", map[string]any{
		"attributes": []any{"ok", make(chan int)},
	})

	_, err := enc.Encode(map[string]any{"tags": d})
	require.Error(t, err)
	require.True(t, errors.IsEncodingError(err))

	ctx := errors.GetErrorContext(err)
	assert.Equal(t, "tags.B.attributes.1", ctx["path"])
	assert.Contains(t, err.Error(), "chan int")
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	type label string
	keyed := NewDictionary()
	keyed.Set("bad\xffkey", 1)

	tests := []struct {
		name string
		v    any
		path string
	}{
		{"string value", map[string]any{"title": "a\xffb"}, "title"},
		{"named string type", []any{label("\xfe")}, "0"},
		{"map key", map[string]any{"\xc3": 1}, "\xc3"},
		{"dictionary key", map[string]any{"tags": keyed}, "tags.bad\xffkey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Encoder{}).Encode(tt.v)
			require.Error(t, err)
			assert.True(t, errors.IsEncodingError(err))
			assert.Equal(t, tt.path, errors.GetErrorContext(err)["path"])
		})
	}

	// Quote itself stays total.
	assert.Equal(t, `"a\ufffdb"`, Quote("a\xffb"))
}

func TestEncodeRejectsStructsAndFuncs(t *testing.T) {
	enc := &Encoder{}
	for _, v := range []any{struct{ A int }{1}, func() {}, map[int]string{1: "a"}} {
		_, err := enc.Encode(v)
		assert.Error(t, err, "%T", v)
	}
}

// JSON is a subset of the JavaScript literal grammar for quoted keys, so
// dictionaries, slices and scalars must decode back to the same structure.
func TestEncodeRoundTripThroughJSON(t *testing.T) {
	enc := &Encoder{}
	d := NewDictionary()
	d.Set("name", "b")
	d.Set("nested", []any{1.5, true, nil, "x<y"})
	inner := NewDictionary()
	inner.Set("k", "v")
	d.Set("inner", inner)

	js, err := enc.Encode(d)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	assert.Equal(t, map[string]any{
		"name":   "b",
		"nested": []any{1.5, true, nil, "x<y"},
		"inner":  map[string]any{"k": "v"},
	}, decoded)
}

func TestDictionary(t *testing.T) {
	d := NewDictionary()
	d.Set("a", 1)
	d.Set("b", 2)
	d.Set("a", 3)

	assert.Equal(t, []string{"a", "b"}, d.Keys())
	v, ok := d.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	c := d.Clone()
	d.Delete("a")
	assert.Equal(t, []string{"b"}, d.Keys())
	assert.Equal(t, 2, c.Len())
	assert.False(t, d.Has("a"))

	sorted := DictionaryFrom(map[string]any{"y": 1, "x": 2})
	assert.Equal(t, []string{"x", "y"}, sorted.Keys())
}

func TestPropertyName(t *testing.T) {
	assert.Equal(t, "foo", PropertyName("foo"))
	assert.Equal(t, "$a_1", PropertyName("$a_1"))
	assert.Equal(t, `"1a"`, PropertyName("1a"))
	assert.Equal(t, `"class"`, PropertyName("class"))
	assert.Equal(t, `""`, PropertyName(""))
}
