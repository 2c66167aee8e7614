package sqldump

import (
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tidwall/gjson"
)

// ParseInsertToRecord decodes a single-row INSERT with an explicit column list.
// Multi-row VALUES lists, column-less inserts, INSERT ... SELECT, function
// calls in values, and any other grammar it does not recognize report false.
func ParseInsertToRecord(stmt Statement) (Record, bool) {
	return parseInsert(stmt.Body())
}

// ParseDeleteAll returns the table cleared by an unconditional DELETE.
// A DELETE carrying a WHERE (or any other) clause never matches.
func ParseDeleteAll(stmt Statement) (string, bool) {
	body := stmt.Body()
	if classifyBody(body) != ClassDeleteAll {
		return "", false
	}
	_, ref, _ := statementTarget(body)
	return ref.String(), true
}

func parseInsert(body string) (Record, bool) {
	verb, ref, lx := statementTarget(body)
	if verb != "insert" || ref.name == "" {
		return Record{}, false
	}
	if !lx.next().punct("(") {
		return Record{}, false
	}
	var names []string
	for {
		t := lx.next()
		if !isName(t) {
			return Record{}, false
		}
		names = append(names, t.val)
		sep := lx.next()
		if sep.punct(")") {
			break
		}
		if !sep.punct(",") {
			return Record{}, false
		}
	}

	if lx.peek().keyword("overriding") {
		for _, kw := range []string{"overriding", "system", "value"} {
			if t := lx.next(); !t.keyword(kw) && !(kw == "system" && t.keyword("user")) {
				return Record{}, false
			}
		}
	}
	if !lx.next().keyword("values") || !lx.next().punct("(") {
		return Record{}, false
	}

	values := make([]Value, 0, len(names))
	for {
		v, ok := parseValue(lx)
		if !ok {
			return Record{}, false
		}
		values = append(values, v)
		sep := lx.next()
		if sep.punct(")") {
			break
		}
		if !sep.punct(",") {
			return Record{}, false
		}
	}
	if len(values) != len(names) {
		return Record{}, false
	}
	if !parseInsertTail(lx) {
		return Record{}, false
	}

	rec := Record{Table: ref.String(), Columns: make([]Column, len(names))}
	for i, name := range names {
		rec.Columns[i] = Column{Name: name, Value: values[i]}
	}
	return rec, true
}

// parseInsertTail accepts an optional ON CONFLICT DO NOTHING and the terminator.
func parseInsertTail(lx *lexer) bool {
	if lx.peek().keyword("on") {
		for _, kw := range []string{"on", "conflict", "do", "nothing"} {
			if !lx.next().keyword(kw) {
				return false
			}
		}
	}
	return atEnd(lx)
}

// parseValue reads one literal, including an ARRAY[...] constructor and any
// trailing ::casts.
func parseValue(lx *lexer) (Value, bool) {
	t := lx.next()
	var v Value
	switch {
	case t.kind == tokString:
		v = String(t.val)
	case t.kind == tokNumber:
		v = Number(t.val)
	case t.punct("-") || t.punct("+"):
		n := lx.next()
		if n.kind != tokNumber {
			return Value{}, false
		}
		lit := n.val
		if t.val == "-" {
			lit = "-" + lit
		}
		v = Number(lit)
	case t.keyword("null"):
		v = Null()
	case t.keyword("true"):
		v = Bool(true)
	case t.keyword("false"):
		v = Bool(false)
	case t.keyword("array"):
		if !lx.next().punct("[") {
			return Value{}, false
		}
		elems, ok := parseArrayElems(lx)
		if !ok {
			return Value{}, false
		}
		v = Array(elems...)
	default:
		return Value{}, false
	}

	for lx.peek().punct("::") {
		lx.next()
		cast, ok := parseCastType(lx)
		if !ok {
			return Value{}, false
		}
		v = applyCast(v, cast)
	}
	return v, true
}

// parseArrayElems reads the elements of ARRAY[...] after the opening bracket.
func parseArrayElems(lx *lexer) ([]Value, bool) {
	elems := []Value{}
	if lx.peek().punct("]") {
		lx.next()
		return elems, true
	}
	for {
		var (
			e  Value
			ok bool
		)
		if lx.peek().punct("[") {
			lx.next()
			var inner []Value
			inner, ok = parseArrayElems(lx)
			e = Array(inner...)
		} else {
			e, ok = parseValue(lx)
		}
		if !ok {
			return nil, false
		}
		elems = append(elems, e)
		sep := lx.next()
		if sep.punct("]") {
			return elems, true
		}
		if !sep.punct(",") {
			return nil, false
		}
	}
}

// parseCastType reads a type name after '::', such as "character varying(255)",
// "timestamp with time zone", or "public.status[]".
func parseCastType(lx *lexer) (string, bool) {
	var sb strings.Builder
	for {
		p := lx.peek()
		switch {
		case p.kind == tokIdent || p.kind == tokQuotedIdent:
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), ".") {
				sb.WriteByte(' ')
			}
			sb.WriteString(lx.next().val)
		case p.punct("."):
			lx.next()
			sb.WriteByte('.')
		case p.punct("("):
			lx.next()
			sb.WriteByte('(')
			for {
				t := lx.next()
				if t.kind == tokNumber {
					sb.WriteString(t.val)
				} else if t.punct(",") {
					sb.WriteByte(',')
				} else if t.punct(")") {
					sb.WriteByte(')')
					break
				} else {
					return "", false
				}
			}
		case p.punct("["):
			lx.next()
			if !lx.next().punct("]") {
				return "", false
			}
			sb.WriteString("[]")
		default:
			cast := sb.String()
			return cast, cast != ""
		}
	}
}

var numericTypes = map[string]bool{
	"smallint": true, "integer": true, "int": true, "bigint": true,
	"int2": true, "int4": true, "int8": true, "numeric": true, "decimal": true,
	"real": true, "float4": true, "float8": true, "double precision": true,
}

func baseType(cast string) string {
	if i := strings.IndexByte(cast, '('); i >= 0 {
		cast = cast[:i]
	}
	if i := strings.LastIndexByte(cast, '.'); i >= 0 && strings.HasPrefix(cast, "pg_catalog.") {
		cast = cast[i+1:]
	}
	return strings.TrimSpace(cast)
}

func applyCast(v Value, cast string) Value {
	elemType, isArray := strings.CutSuffix(cast, "[]")
	switch {
	case isArray && v.Kind == KindString:
		elems, ok := decodeArrayLiteral(v.Str, baseType(elemType))
		if !ok {
			return v.WithCast(cast)
		}
		return Array(elems...).WithCast(cast)
	case (baseType(cast) == "json" || baseType(cast) == "jsonb") && v.Kind == KindString:
		if gjson.Valid(v.Str) {
			return JSON(v.Str).WithCast(cast)
		}
	case baseType(cast) == "boolean" || baseType(cast) == "bool":
		if v.Kind == KindString {
			if b, ok := parseBoolText(v.Str); ok {
				return Bool(b).WithCast(cast)
			}
		}
	case numericTypes[baseType(cast)] && v.Kind == KindString:
		if isNumericText(v.Str) {
			return Number(v.Str).WithCast(cast)
		}
	}
	return v.WithCast(cast)
}

func parseBoolText(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "y", "yes", "on", "1":
		return true, true
	case "f", "false", "n", "no", "off", "0":
		return false, true
	}
	return false, false
}

func isNumericText(s string) bool {
	lx := newLexer(strings.TrimPrefix(s, "-"))
	t := lx.next()
	return t.kind == tokNumber && lx.next().kind == tokEOF
}

var (
	arrayMu   sync.Mutex
	arrayMap  *pgtype.Map
	arrayOnce sync.Once
)

// scanTextArray decodes a one-dimensional PostgreSQL text-format array
// ("{a,b,NULL}"). Multi-dimensional arrays and malformed literals report false.
func scanTextArray(lit string) ([]pgtype.Text, bool) {
	trimmed := strings.TrimSpace(lit)
	if !strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "{{") {
		return nil, false
	}
	arrayOnce.Do(func() { arrayMap = pgtype.NewMap() })

	var raw []pgtype.Text
	arrayMu.Lock()
	err := arrayMap.Scan(pgtype.TextArrayOID, pgtype.TextFormatCode, []byte(lit), &raw)
	arrayMu.Unlock()
	return raw, err == nil
}

// MapArrayLiteral applies f to each non-NULL element of a one-dimensional
// text-format array literal and re-encodes the result. It reports false when
// lit is not such a literal or f replaced nothing.
func MapArrayLiteral(lit string, f func(string) (string, bool)) (string, bool) {
	raw, ok := scanTextArray(lit)
	if !ok {
		return lit, false
	}
	changed := false
	for i, e := range raw {
		if !e.Valid {
			continue
		}
		if next, ok := f(e.String); ok {
			raw[i].String = next
			changed = true
		}
	}
	if !changed {
		return lit, false
	}

	arrayMu.Lock()
	buf, err := arrayMap.Encode(pgtype.TextArrayOID, pgtype.TextFormatCode, raw, nil)
	arrayMu.Unlock()
	if err != nil || buf == nil {
		return lit, false
	}
	return string(buf), true
}

// decodeArrayLiteral decodes a text-format array into typed elements.
func decodeArrayLiteral(lit, elemType string) ([]Value, bool) {
	raw, ok := scanTextArray(lit)
	if !ok {
		return nil, false
	}

	elems := make([]Value, len(raw))
	for i, e := range raw {
		if !e.Valid {
			elems[i] = Null()
			continue
		}
		elems[i] = typedElement(e.String, elemType)
	}
	return elems, true
}

func typedElement(s, elemType string) Value {
	switch {
	case numericTypes[elemType] && isNumericText(s):
		return Number(s)
	case elemType == "boolean" || elemType == "bool":
		if b, ok := parseBoolText(s); ok {
			return Bool(b)
		}
	case elemType == "json" || elemType == "jsonb":
		if gjson.Valid(s) {
			return JSON(s)
		}
	}
	return String(s)
}
