package jsvalue

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/markupc/internal/errors"
)

// RegexpConvertor turns a host-dialect pattern into a JavaScript regexp
// literal.
type RegexpConvertor interface {
	ToJS(pattern string, global bool) (string, error)
}

// Encoder produces JavaScript literals. The zero value encodes everything
// except *Regexp values, which need a RegexpConvertor.
type Encoder struct {
	Regexps RegexpConvertor
}

// NewEncoder returns an encoder that converts regexps with conv.
func NewEncoder(conv RegexpConvertor) *Encoder {
	return &Encoder{Regexps: conv}
}

// Encode returns the JavaScript literal for v. Values that cannot be
// represented yield an encoding error whose Path locates the value.
func (e *Encoder) Encode(v any) (string, error) {
	var sb strings.Builder
	if err := e.encode(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (e *Encoder) encode(sb *strings.Builder, v any) error {
	switch v := v.(type) {
	case nil:
		sb.WriteString("null")
	case Code:
		sb.WriteString(string(v))
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case string:
		return writeString(sb, v)
	case int:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int8:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int16:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int32:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(v, 10))
	case uint:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint8:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint16:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint32:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(v, 10))
	case float32:
		sb.WriteString(formatFloat(float64(v)))
	case float64:
		sb.WriteString(formatFloat(v))
	case *Dictionary:
		return e.encodeDictionary(sb, v)
	case *Regexp:
		return e.encodeRegexp(sb, v)
	case Marshaler:
		js, err := v.MarshalJS(e)
		if err != nil {
			return err
		}
		sb.WriteString(js)
	case map[string]any:
		return e.encodeMap(sb, v)
	case []any:
		return e.encodeSlice(sb, v)
	default:
		return e.encodeReflect(sb, reflect.ValueOf(v))
	}
	return nil
}

func (e *Encoder) encodeDictionary(sb *strings.Builder, d *Dictionary) error {
	if d == nil {
		sb.WriteString("null")
		return nil
	}
	sb.WriteByte('{')
	var err error
	i := 0
	d.Range(func(k string, v any) bool {
		if i > 0 {
			sb.WriteByte(',')
		}
		i++
		if err = writeString(sb, k); err == nil {
			sb.WriteByte(':')
			err = e.encode(sb, v)
		}
		if err != nil {
			err = errors.PrefixPath(err, k)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	sb.WriteByte('}')
	return nil
}

func (e *Encoder) encodeMap(sb *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		if !utf8.ValidString(k) {
			return errors.PrefixPath(invalidUTF8(), k)
		}
		sb.WriteString(PropertyName(k))
		sb.WriteByte(':')
		if err := e.encode(sb, m[k]); err != nil {
			return errors.PrefixPath(err, k)
		}
	}
	sb.WriteByte('}')
	return nil
}

func (e *Encoder) encodeSlice(sb *strings.Builder, s []any) error {
	sb.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := e.encode(sb, v); err != nil {
			return errors.PrefixPath(err, strconv.Itoa(i))
		}
	}
	sb.WriteByte(']')
	return nil
}

func (e *Encoder) encodeRegexp(sb *strings.Builder, r *Regexp) error {
	if r == nil {
		sb.WriteString("null")
		return nil
	}
	if e.Regexps == nil {
		return errors.NewEncodingError("", "no regexp convertor configured for "+Quote(r.Pattern))
	}
	js, err := e.Regexps.ToJS(r.Pattern, r.Global)
	if err != nil {
		encErr := errors.NewEncodingError("", "cannot convert regexp "+Quote(r.Pattern))
		encErr.Cause = err
		return encErr
	}
	sb.WriteString(js)
	return nil
}

// encodeReflect handles typed slices and maps such as []string or
// map[string]int that come from programmatic configuration.
func (e *Encoder) encodeReflect(sb *strings.Builder, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Invalid:
		sb.WriteString("null")
		return nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			sb.WriteString("null")
			return nil
		}
		return e.encode(sb, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			sb.WriteString("[]")
			return nil
		}
		sb.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := e.encode(sb, rv.Index(i).Interface()); err != nil {
				return errors.PrefixPath(err, strconv.Itoa(i))
			}
		}
		sb.WriteByte(']')
		return nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return e.encodeMap(sb, m)
	case reflect.String:
		return writeString(sb, rv.String())
	case reflect.Bool:
		sb.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sb.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sb.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		sb.WriteString(formatFloat(rv.Float()))
		return nil
	}
	return errors.NewEncodingError("", fmt.Sprintf("cannot encode value of type %s", rv.Type()))
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// writeString quotes s into sb. Strings that are not valid UTF-8 have no
// faithful JavaScript rendering and are rejected.
func writeString(sb *strings.Builder, s string) error {
	if !utf8.ValidString(s) {
		return invalidUTF8()
	}
	sb.WriteString(Quote(s))
	return nil
}

func invalidUTF8() error {
	return errors.NewEncodingError("", "string is not valid UTF-8")
}

// Quote returns s as a double-quoted JavaScript string literal. The output
// is safe inside an HTML script element: <, > and & are escaped, as are the
// U+2028 and U+2029 line terminators. Invalid UTF-8 is replaced with U+FFFD;
// Encoder rejects such strings instead.
func Quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// json.Marshal cannot fail on a string.
		panic(err)
	}
	return string(b)
}

// PropertyName returns k unquoted when it is a plain identifier and quoted
// otherwise.
func PropertyName(k string) string {
	if IsIdentifier(k) && !reservedWords[k] {
		return k
	}
	return Quote(k)
}

// IsIdentifier reports whether s is an ASCII JavaScript identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

var reservedWords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "enum": true, "export": true, "extends": true,
	"false": true, "finally": true, "for": true, "function": true, "if": true,
	"implements": true, "import": true, "in": true, "instanceof": true,
	"interface": true, "let": true, "new": true, "null": true, "package": true,
	"private": true, "protected": true, "public": true, "return": true,
	"static": true, "super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true,
}
