// Package regexpconv translates regular expressions written in the host
// dialect (Go RE2 syntax, as accepted by regexp/syntax with Perl flags) into
// JavaScript regular expression literals.
//
// The translation works on the parsed syntax tree rather than on the
// pattern text, so every construct the host accepts either has an exact
// JavaScript rendering or is rejected with ErrUnsupportedSyntax.
package regexpconv

import (
	"errors"
	"fmt"
	"regexp/syntax"
	"strings"
	"unicode"
)

// ErrUnsupportedSyntax is returned for host constructs that have no
// JavaScript equivalent.
var ErrUnsupportedSyntax = errors.New("unsupported regexp syntax")

// Result is a converted pattern.
type Result struct {
	// Source is the pattern body, already escaped for a /.../ literal.
	Source string
	// Flags holds the JavaScript flags in canonical order (g, i, m, u).
	Flags string
	// GroupNames maps capture group indexes to their host names; index 0
	// is the whole match and unnamed groups are "".
	GroupNames []string
}

// String returns the regexp literal.
func (r *Result) String() string {
	return "/" + r.Source + "/" + r.Flags
}

// Convertor converts host patterns. It is stateless and safe for concurrent
// use.
type Convertor struct{}

// New returns a Convertor.
func New() *Convertor {
	return &Convertor{}
}

// ToJS converts pattern and returns the JavaScript literal. global adds the
// g flag.
func (c *Convertor) ToJS(pattern string, global bool) (string, error) {
	res, err := c.Convert(pattern, global)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// Convert parses pattern in the host dialect and returns its JavaScript
// rendering.
func (c *Convertor) Convert(pattern string, global bool) (*Result, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", pattern, err)
	}

	t := newTranslator(re)
	if err := t.scan(re); err != nil {
		return nil, fmt.Errorf("%w: %v in %q", ErrUnsupportedSyntax, err, pattern)
	}
	if t.lineAnchors && t.textAnchors {
		return nil, fmt.Errorf("%w: text anchors mixed with multi-line anchors in %q", ErrUnsupportedSyntax, pattern)
	}
	t.emit(re)

	var flags strings.Builder
	if global {
		flags.WriteByte('g')
	}
	if t.foldAll {
		flags.WriteByte('i')
	}
	if t.lineAnchors {
		flags.WriteByte('m')
	}
	if t.unicode {
		flags.WriteByte('u')
	}

	names := make([]string, re.MaxCap()+1)
	copy(names, re.CapNames())

	return &Result{
		Source:     t.out.String(),
		Flags:      flags.String(),
		GroupNames: names,
	}, nil
}

type translator struct {
	out strings.Builder
	// foldAll is set when every literal is case-folded and every class is
	// closed under folding, in which case the i flag replaces per-literal
	// folding.
	foldAll     bool
	lineAnchors bool
	textAnchors bool
	unicode     bool
}

func newTranslator(re *syntax.Regexp) *translator {
	t := &translator{}
	var f foldStats
	f.count(re)
	t.foldAll = f.literals > 0 && f.literals == f.folded && !f.openClass
	return t
}

type foldStats struct {
	literals, folded int
	// openClass is set when some class would match more under the i flag.
	openClass bool
}

func (f *foldStats) count(re *syntax.Regexp) {
	switch re.Op {
	case syntax.OpLiteral:
		f.literals++
		if re.Flags&syntax.FoldCase != 0 {
			f.folded++
		}
	case syntax.OpCharClass:
		if !f.openClass && !foldClosed(re.Rune) {
			f.openClass = true
		}
	}
	for _, sub := range re.Sub {
		f.count(sub)
	}
}

// maxFoldRune is the highest rune with a case-folding equivalent.
const maxFoldRune = 0x1E943

// foldClosed reports whether every case-folding equivalent of a rune in
// ranges is also in ranges.
func foldClosed(ranges []rune) bool {
	for i := 0; i+1 < len(ranges); i += 2 {
		for r := ranges[i]; r <= ranges[i+1] && r <= maxFoldRune; r++ {
			for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
				if !inRanges(ranges, f) {
					return false
				}
			}
		}
	}
	return true
}

func inRanges(ranges []rune, r rune) bool {
	for i := 0; i+1 < len(ranges); i += 2 {
		if r < ranges[i] {
			return false
		}
		if r <= ranges[i+1] {
			return true
		}
	}
	return false
}

// scan rejects unsupported operators and records which anchors are used.
func (t *translator) scan(re *syntax.Regexp) error {
	switch re.Op {
	case syntax.OpBeginLine, syntax.OpEndLine:
		t.lineAnchors = true
	case syntax.OpBeginText, syntax.OpEndText:
		t.textAnchors = true
	case syntax.OpRepeat:
		if re.Max > 1000 || re.Min > 1000 {
			return fmt.Errorf("repeat count {%d,%d} too large", re.Min, re.Max)
		}
	case syntax.OpNoMatch, syntax.OpEmptyMatch, syntax.OpLiteral, syntax.OpCharClass,
		syntax.OpAnyCharNotNL, syntax.OpAnyChar, syntax.OpWordBoundary,
		syntax.OpNoWordBoundary, syntax.OpCapture, syntax.OpStar, syntax.OpPlus,
		syntax.OpQuest, syntax.OpConcat, syntax.OpAlternate:
	default:
		return fmt.Errorf("operator %v", re.Op)
	}
	for _, sub := range re.Sub {
		if err := t.scan(sub); err != nil {
			return err
		}
	}
	return nil
}

func (t *translator) emit(re *syntax.Regexp) {
	switch re.Op {
	case syntax.OpNoMatch:
		t.out.WriteString(`[^\s\S]`)
	case syntax.OpEmptyMatch:
		t.out.WriteString("(?:)")
	case syntax.OpLiteral:
		t.emitLiteral(re)
	case syntax.OpCharClass:
		t.emitClass(re.Rune)
	case syntax.OpAnyCharNotNL:
		t.out.WriteString(`[^\n]`)
	case syntax.OpAnyChar:
		t.out.WriteString(`[\s\S]`)
	case syntax.OpBeginLine, syntax.OpBeginText:
		t.out.WriteByte('^')
	case syntax.OpEndLine, syntax.OpEndText:
		t.out.WriteByte('$')
	case syntax.OpWordBoundary:
		t.out.WriteString(`\b`)
	case syntax.OpNoWordBoundary:
		t.out.WriteString(`\B`)
	case syntax.OpCapture:
		t.out.WriteByte('(')
		t.emit(re.Sub[0])
		t.out.WriteByte(')')
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest, syntax.OpRepeat:
		t.emitRepeat(re)
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if sub.Op == syntax.OpAlternate {
				t.out.WriteString("(?:")
				t.emit(sub)
				t.out.WriteByte(')')
				continue
			}
			t.emit(sub)
		}
	case syntax.OpAlternate:
		for i, sub := range re.Sub {
			if i > 0 {
				t.out.WriteByte('|')
			}
			t.emit(sub)
		}
	}
}

func (t *translator) emitRepeat(re *syntax.Regexp) {
	sub := re.Sub[0]
	if isAtom(sub) {
		t.emit(sub)
	} else {
		t.out.WriteString("(?:")
		t.emit(sub)
		t.out.WriteByte(')')
	}

	switch re.Op {
	case syntax.OpStar:
		t.out.WriteByte('*')
	case syntax.OpPlus:
		t.out.WriteByte('+')
	case syntax.OpQuest:
		t.out.WriteByte('?')
	case syntax.OpRepeat:
		switch {
		case re.Max == -1:
			fmt.Fprintf(&t.out, "{%d,}", re.Min)
		case re.Min == re.Max:
			fmt.Fprintf(&t.out, "{%d}", re.Min)
		default:
			fmt.Fprintf(&t.out, "{%d,%d}", re.Min, re.Max)
		}
	}
	if re.Flags&syntax.NonGreedy != 0 {
		t.out.WriteByte('?')
	}
}

// isAtom reports whether re renders as a single quantifiable unit.
func isAtom(re *syntax.Regexp) bool {
	switch re.Op {
	case syntax.OpLiteral:
		// Astral runes outside classes render as surrogate pairs.
		return len(re.Rune) == 1 && re.Rune[0] <= 0xFFFF
	case syntax.OpCharClass, syntax.OpAnyChar, syntax.OpAnyCharNotNL, syntax.OpCapture:
		return true
	}
	return false
}

func (t *translator) emitLiteral(re *syntax.Regexp) {
	fold := re.Flags&syntax.FoldCase != 0 && !t.foldAll
	for _, r := range re.Rune {
		if fold {
			if orbit := foldOrbit(r); len(orbit) > 1 {
				t.emitClass(orbit)
				continue
			}
		}
		t.out.WriteString(escapeRune(r, false))
	}
}

// foldOrbit returns the case-folding equivalents of r as a sorted class.
func foldOrbit(r rune) []rune {
	runes := []rune{r}
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		runes = append(runes, f)
	}
	if len(runes) == 1 {
		return runes
	}
	// insertion sort, orbits are tiny
	for i := 1; i < len(runes); i++ {
		for j := i; j > 0 && runes[j] < runes[j-1]; j-- {
			runes[j], runes[j-1] = runes[j-1], runes[j]
		}
	}
	class := make([]rune, 0, len(runes)*2)
	for _, r := range runes {
		class = append(class, r, r)
	}
	return class
}

func (t *translator) emitClass(ranges []rune) {
	if len(ranges) == 2 && ranges[0] == 0 && ranges[1] == unicode.MaxRune {
		t.out.WriteString(`[\s\S]`)
		return
	}
	if !t.foldAll {
		if shorthand, ok := classShorthand(ranges); ok {
			t.out.WriteString(shorthand)
			return
		}
	}

	negated := false
	if len(ranges) > 0 && ranges[len(ranges)-1] == unicode.MaxRune {
		ranges = complement(ranges)
		negated = true
	}

	t.out.WriteByte('[')
	if negated {
		t.out.WriteByte('^')
	}
	for i := 0; i+1 < len(ranges); i += 2 {
		lo, hi := ranges[i], ranges[i+1]
		if hi > 0xFFFF {
			t.unicode = true
		}
		t.out.WriteString(escapeRune(lo, true))
		switch {
		case hi == lo:
		case hi == lo+1:
			t.out.WriteString(escapeRune(hi, true))
		default:
			t.out.WriteByte('-')
			t.out.WriteString(escapeRune(hi, true))
		}
	}
	t.out.WriteByte(']')
}

func classShorthand(ranges []rune) (string, bool) {
	switch {
	case equalRunes(ranges, []rune{'0', '9'}):
		return `\d`, true
	case equalRunes(ranges, []rune{'0', '9', 'A', 'Z', '_', '_', 'a', 'z'}):
		return `\w`, true
	case equalRunes(ranges, []rune{0, '/', ':', unicode.MaxRune}):
		return `\D`, true
	}
	return "", false
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// complement returns the ranges not covered by a sorted range list.
func complement(ranges []rune) []rune {
	out := make([]rune, 0, len(ranges)+2)
	next := rune(0)
	for i := 0; i+1 < len(ranges); i += 2 {
		if ranges[i] > next {
			out = append(out, next, ranges[i]-1)
		}
		next = ranges[i+1] + 1
	}
	if next <= unicode.MaxRune {
		out = append(out, next, unicode.MaxRune)
	}
	return out
}

const (
	syntaxChars = `\^$.*+?()[]{}|/`
	classChars  = `\]^-[/`
)

// escapeRune renders r for use inside (inClass) or outside a character
// class. The output is valid both with and without the u flag, except for
// astral runes in classes, which require it.
func escapeRune(r rune, inClass bool) string {
	special := syntaxChars
	if inClass {
		special = classChars
	}
	switch r {
	case '\t':
		return `\t`
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\f':
		return `\f`
	case '\v':
		return `\v`
	}
	switch {
	case r >= 0x20 && r < 0x7F:
		if strings.ContainsRune(special, r) {
			return `\` + string(r)
		}
		return string(r)
	case r <= 0xFFFF:
		return fmt.Sprintf(`\u%04X`, r)
	case inClass:
		return fmt.Sprintf(`\u{%X}`, r)
	default:
		r -= 0x10000
		return fmt.Sprintf(`\u%04X\u%04X`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
	}
}
