package minifier

import (
	"context"
	"strings"
)

// Whitespace strips comments and collapses whitespace. It scans string,
// template and regular expression literals so their contents are kept
// intact, and keeps a line break wherever removing it could change how
// semicolons are inserted.
type Whitespace struct{}

// Name implements Named.
func (Whitespace) Name() string { return "Whitespace" }

// Minify implements Minifier.
func (Whitespace) Minify(ctx context.Context, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s := &scanner{src: src}
	s.run()
	return s.out.String(), nil
}

// Keywords after which a slash starts a regular expression.
var regexpKeywords = map[string]bool{
	"case": true, "delete": true, "do": true, "else": true, "in": true,
	"instanceof": true, "new": true, "return": true, "throw": true,
	"typeof": true, "void": true, "yield": true,
}

type scanner struct {
	src string
	pos int
	out strings.Builder

	// last is the last byte written, lastWord the last identifier or
	// keyword written.
	last     byte
	lastWord string
}

func (s *scanner) run() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case isSpace(c):
			s.whitespace()
		case c == '/' && s.peek(1) == '/':
			s.lineComment()
		case c == '/' && s.peek(1) == '*':
			s.blockComment()
		case c == '\'' || c == '"' || c == '`':
			s.quoted(c)
		case c == '/' && s.regexpAllowed():
			s.regexp()
		case isIdent(c):
			s.word()
		default:
			s.emit(s.src[s.pos : s.pos+1])
			s.pos++
		}
	}
}

func (s *scanner) peek(n int) byte {
	if s.pos+n < len(s.src) {
		return s.src[s.pos+n]
	}
	return 0
}

func (s *scanner) emit(str string) {
	s.out.WriteString(str)
	s.last = str[len(str)-1]
	s.lastWord = ""
}

// whitespace and comments are skipped as one run, then replaced by the
// smallest separator that keeps the tokens on both sides apart.
func (s *scanner) whitespace() {
	newline := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case isSpace(c):
			newline = newline || c == '\n' || c == '\r'
			s.pos++
		case c == '/' && s.peek(1) == '/':
			newline = true
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			newline = s.skipBlockComment() || newline
		default:
			s.separate(newline)
			return
		}
	}
}

func (s *scanner) lineComment() {
	s.skipLineComment()
	s.whitespaceAfterComment(true)
}

func (s *scanner) blockComment() {
	newline := s.skipBlockComment()
	s.whitespaceAfterComment(newline)
}

func (s *scanner) whitespaceAfterComment(newline bool) {
	if s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.whitespace()
		return
	}
	s.separate(newline)
}

func (s *scanner) skipLineComment() {
	end := strings.IndexByte(s.src[s.pos:], '\n')
	if end < 0 {
		s.pos = len(s.src)
		return
	}
	s.pos += end
}

// skipBlockComment reports whether the comment spanned a line break.
func (s *scanner) skipBlockComment() bool {
	end := strings.Index(s.src[s.pos+2:], "*/")
	var body string
	if end < 0 {
		body = s.src[s.pos:]
		s.pos = len(s.src)
	} else {
		body = s.src[s.pos : s.pos+2+end]
		s.pos += end + 4
	}
	return strings.ContainsAny(body, "\r\n")
}

func (s *scanner) separate(newline bool) {
	if s.out.Len() == 0 || s.pos >= len(s.src) {
		return
	}
	next := s.src[s.pos]
	switch {
	case newline && !strings.ContainsRune("{([;,=:?&|", rune(s.last)) && !strings.ContainsRune(")];,.:?", rune(next)):
		s.out.WriteByte('\n')
		s.last = '\n'
	case isIdent(s.last) && isIdent(next),
		s.last == '+' && next == '+',
		s.last == '-' && next == '-':
		s.out.WriteByte(' ')
		s.last = ' '
	}
}

func (s *scanner) quoted(quote byte) {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		if c == '\\' {
			s.pos++
			continue
		}
		if c == quote {
			break
		}
	}
	if s.pos > len(s.src) {
		s.pos = len(s.src)
	}
	s.emit(s.src[start:s.pos])
}

func (s *scanner) regexpAllowed() bool {
	if s.lastWord != "" {
		return regexpKeywords[s.lastWord]
	}
	switch s.last {
	case 0, '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';', '+', '-', '*', '%', '<', '>', '~', '^':
		return true
	}
	return false
}

func (s *scanner) regexp() {
	start := s.pos
	s.pos++
	inClass := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		switch {
		case c == '\\':
			s.pos++
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			for s.pos < len(s.src) && isIdent(s.src[s.pos]) {
				s.pos++
			}
			s.emit(s.src[start:s.pos])
			return
		case c == '\n':
			s.pos = len(s.src)
		}
	}

	// Unterminated, so the slash was an operator after all.
	s.pos = start + 1
	s.emit("/")
}

func (s *scanner) word() {
	start := s.pos
	for s.pos < len(s.src) && isIdent(s.src[s.pos]) {
		s.pos++
	}
	word := s.src[start:s.pos]
	s.emit(word)
	s.lastWord = word
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
