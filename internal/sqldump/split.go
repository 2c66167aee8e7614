// Package sqldump splits, classifies, and decodes the statements of a textual
// PostgreSQL logical dump (pg_dump --inserts / --column-inserts output).
package sqldump

import (
	"iter"
	"strings"
)

// Statement is one complete statement sliced out of the dump text.
type Statement struct {
	Text   string // exact source slice, including the terminating ';' when present
	Offset int    // byte offset of Text within the dump
	Index  int    // 0-based position in the statement sequence
}

// Body returns the statement text with leading whitespace and comments removed.
func (s Statement) Body() string {
	return stripLeading(s.Text)
}

// Statements returns a lazy sequence over the statements in src.
//
// The sequence is a pure function of src: ranging over it twice yields the same
// statements. Concatenating every Text in order, followed by whatever
// whitespace or comments trail the last statement, reproduces src exactly.
// Segments holding nothing but whitespace, comments, or a bare ';' are not
// yielded. An unterminated literal runs to the end of the text.
func Statements(src string) iter.Seq[Statement] {
	return func(yield func(Statement) bool) {
		pos, idx := 0, 0
		for pos < len(src) {
			end := scanStatement(src, pos)
			text := src[pos:end]
			if isEmptyStatement(text) {
				pos = end
				continue
			}
			if !yield(Statement{Text: text, Offset: pos, Index: idx}) {
				return
			}
			idx++
			pos = end
		}
	}
}

// Split materializes Statements(src).
func Split(src string) []Statement {
	var out []Statement
	for stmt := range Statements(src) {
		out = append(out, stmt)
	}
	return out
}

// Count returns the number of statements Statements(src) yields.
func Count(src string) int {
	n := 0
	for range Statements(src) {
		n++
	}
	return n
}

func isEmptyStatement(text string) bool {
	body := strings.TrimSpace(stripLeading(text))
	return body == "" || body == ";"
}

// scanStatement returns the end offset (exclusive) of the statement starting at start.
func scanStatement(src string, start int) int {
	n := len(src)
	i := start
	for i < n {
		c := src[i]
		switch {
		case c == '-' && i+1 < n && src[i+1] == '-':
			nl := strings.IndexByte(src[i:], '\n')
			if nl < 0 {
				return n
			}
			i += nl + 1
		case c == '/' && i+1 < n && src[i+1] == '*':
			i = skipBlockComment(src, i)
		case c == '\'':
			i = skipString(src, i, hasEscapePrefix(src, i))
		case c == '"':
			i = skipQuotedIdent(src, i)
		case c == '$':
			if tag, ok := dollarTag(src, i); ok {
				i = skipDollarQuoted(src, i, tag)
			} else {
				i++
			}
		case c == ';':
			end := i + 1
			if isCopyFromStdin(src[start:end]) {
				return skipCopyData(src, end)
			}
			return end
		default:
			i++
		}
	}
	return n
}

// hasEscapePrefix reports whether the quote at i opens an E'...' literal.
func hasEscapePrefix(src string, i int) bool {
	if i == 0 || (src[i-1] != 'E' && src[i-1] != 'e') {
		return false
	}
	return i < 2 || !isIdentByte(src[i-2])
}

func skipString(src string, i int, backslashEscapes bool) int {
	n := len(src)
	j := i + 1
	for j < n {
		switch src[j] {
		case '\\':
			if backslashEscapes {
				j += 2
				continue
			}
		case '\'':
			if j+1 < n && src[j+1] == '\'' {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return n
}

func skipQuotedIdent(src string, i int) int {
	n := len(src)
	j := i + 1
	for j < n {
		if src[j] == '"' {
			if j+1 < n && src[j+1] == '"' {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return n
}

// skipBlockComment skips a /* */ comment; PostgreSQL block comments nest.
func skipBlockComment(src string, i int) int {
	n := len(src)
	depth := 0
	for i < n {
		switch {
		case src[i] == '/' && i+1 < n && src[i+1] == '*':
			depth++
			i += 2
		case src[i] == '*' && i+1 < n && src[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return n
}

// dollarTag returns the full opening delimiter ($$ or $tag$) at i, if any.
func dollarTag(src string, i int) (string, bool) {
	if i > 0 && isIdentByte(src[i-1]) {
		return "", false
	}
	j := i + 1
	for j < len(src) {
		c := src[j]
		if c == '$' {
			return src[i : j+1], true
		}
		if !(isIdentStart(c) || (j > i+1 && c >= '0' && c <= '9')) {
			return "", false
		}
		j++
	}
	return "", false
}

func skipDollarQuoted(src string, i int, tag string) int {
	body := i + len(tag)
	k := strings.Index(src[body:], tag)
	if k < 0 {
		return len(src)
	}
	return body + k + len(tag)
}

// isCopyFromStdin reports whether text is a "COPY ... FROM stdin;" statement,
// whose data rows follow it in the dump up to a "\." line.
func isCopyFromStdin(text string) bool {
	body := stripLeading(text)
	if len(body) < 4 || !strings.EqualFold(body[:4], "copy") {
		return false
	}
	return strings.Contains(strings.ToLower(body), "from stdin")
}

func skipCopyData(src string, pos int) int {
	n := len(src)
	for pos < n {
		nl := strings.IndexByte(src[pos:], '\n')
		if nl < 0 {
			return n
		}
		line := pos + nl + 1
		if strings.HasPrefix(src[line:], `\.`) {
			after := line + 2
			if after >= n || src[after] == '\n' || src[after] == '\r' {
				return after
			}
		}
		pos = line
	}
	return n
}

// stripLeading drops leading whitespace, line comments, and block comments.
func stripLeading(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n\f")
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			s = s[skipBlockComment(s, 0):]
		default:
			return s
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '$'
}
