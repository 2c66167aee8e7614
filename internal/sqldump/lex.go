package sqldump

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
	tokInvalid
)

type token struct {
	kind tokenKind
	// val is the decoded value: identifiers are folded to lower case, quoted
	// identifiers and strings are unescaped, punctuation holds its symbol.
	val string
}

func (t token) is(kind tokenKind, val string) bool {
	return t.kind == kind && t.val == val
}

func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && t.val == kw
}

func (t token) punct(p string) bool {
	return t.is(tokPunct, p)
}

// lexer tokenizes a single statement body on demand.
type lexer struct {
	src    string
	pos    int
	peeked *token
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

func (l *lexer) peek() token {
	if l.peeked == nil {
		t := l.scan()
		l.peeked = &t
	}
	return *l.peeked
}

func (l *lexer) next() token {
	t := l.peek()
	l.peeked = nil
	return t
}

func (l *lexer) scan() token {
	l.pos += len(l.src[l.pos:]) - len(stripLeading(l.src[l.pos:]))
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}
	}
	c := l.src[l.pos]
	switch {
	case (c == 'E' || c == 'e') && l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'':
		l.pos++
		return l.scanString(true)
	case c == '\'':
		return l.scanString(false)
	case c == '"':
		return l.scanQuotedIdent()
	case c == '$':
		if tag, ok := dollarTag(l.src, l.pos); ok {
			start := l.pos + len(tag)
			end := strings.Index(l.src[start:], tag)
			if end < 0 {
				l.pos = len(l.src)
				return token{kind: tokInvalid}
			}
			l.pos = start + end + len(tag)
			return token{kind: tokString, val: l.src[start : start+end]}
		}
		l.pos++
		return token{kind: tokInvalid, val: "$"}
	case isIdentStart(c):
		start := l.pos
		for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, val: strings.ToLower(l.src[start:l.pos])}
	case c >= '0' && c <= '9', c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
		return l.scanNumber()
	case c == ':' && l.pos+1 < len(l.src) && l.src[l.pos+1] == ':':
		l.pos += 2
		return token{kind: tokPunct, val: "::"}
	default:
		l.pos++
		return token{kind: tokPunct, val: string(c)}
	}
}

func (l *lexer) scanString(backslashEscapes bool) token {
	end := skipString(l.src, l.pos, backslashEscapes)
	raw := l.src[l.pos:end]
	l.pos = end
	if len(raw) < 2 || raw[len(raw)-1] != '\'' {
		return token{kind: tokInvalid}
	}
	body := raw[1 : len(raw)-1]
	if backslashEscapes {
		return token{kind: tokString, val: unescapeE(body)}
	}
	return token{kind: tokString, val: strings.ReplaceAll(body, "''", "'")}
}

func (l *lexer) scanQuotedIdent() token {
	end := skipQuotedIdent(l.src, l.pos)
	raw := l.src[l.pos:end]
	l.pos = end
	if len(raw) < 2 || raw[len(raw)-1] != '"' {
		return token{kind: tokInvalid}
	}
	return token{kind: tokQuotedIdent, val: strings.ReplaceAll(raw[1:len(raw)-1], `""`, `"`)}
}

func (l *lexer) scanNumber() token {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		j := l.pos + 1
		if j < len(l.src) && (l.src[j] == '+' || l.src[j] == '-') {
			j++
		}
		if j < len(l.src) && isDigit(l.src[j]) {
			l.pos = j
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
	}
	return token{kind: tokNumber, val: l.src[start:l.pos]}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// unescapeE decodes the body of an E'...' literal.
func unescapeE(s string) string {
	if !strings.ContainsAny(s, `\'`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' && i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'x':
			j := i + 1
			for j < len(s) && j < i+3 && isHex(s[j]) {
				j++
			}
			if j == i+1 {
				b.WriteByte('x')
				continue
			}
			v, _ := strconv.ParseUint(s[i+1:j], 16, 8)
			b.WriteByte(byte(v))
			i = j - 1
		case 'u', 'U':
			width := 4
			if e == 'U' {
				width = 8
			}
			if i+1+width > len(s) {
				b.WriteByte(e)
				continue
			}
			v, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(v)) {
				b.WriteByte(e)
				continue
			}
			b.WriteRune(rune(v))
			i += width
		default:
			if e >= '0' && e <= '7' {
				j := i
				for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
					j++
				}
				v, _ := strconv.ParseUint(s[i:j], 8, 16)
				b.WriteByte(byte(v))
				i = j - 1
				continue
			}
			b.WriteByte(e)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
