package sqldump

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindJSON:
		return "json"
	default:
		return "null"
	}
}

// Value is a literal decoded from the dump.
type Value struct {
	Kind  Kind
	Str   string  // String: decoded text; Number: literal digits; JSON: raw document
	Bool  bool    // Bool only
	Elems []Value // Array only
	Cast  string  // explicit cast from the dump ("text[]", "jsonb"), "" when none
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Number(lit string) Value    { return Value{Kind: KindNumber, Str: lit} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Array(elems ...Value) Value { return Value{Kind: KindArray, Elems: elems} }
func JSON(raw string) Value      { return Value{Kind: KindJSON, Str: raw} }

// WithCast returns a copy of v carrying an explicit cast.
func (v Value) WithCast(cast string) Value {
	v.Cast = cast
	return v
}

// Equal reports whether two values are semantically identical.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Cast != o.Cast {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindArray:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	case KindJSON:
		return jsonEqual(v.Str, o.Str)
	default:
		return v.Str == o.Str
	}
}

// SQL renders the value as a PostgreSQL literal.
func (v Value) SQL() string {
	var lit string
	switch v.Kind {
	case KindNull:
		lit = "NULL"
	case KindBool:
		lit = "false"
		if v.Bool {
			lit = "true"
		}
	case KindNumber:
		lit = v.Str
	case KindString, KindJSON:
		lit = QuoteLiteral(v.Str)
	case KindArray:
		if len(v.Elems) == 0 {
			lit = "'{}'"
			break
		}
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.SQL()
		}
		lit = "ARRAY[" + strings.Join(parts, ", ") + "]"
	}
	if v.Cast != "" {
		return lit + "::" + v.Cast
	}
	return lit
}

// MarshalJSON encodes the value the way the apply endpoint expects it.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		if n := normalizeNumber(v.Str); json.Valid([]byte(n)) {
			return []byte(n), nil
		}
		return json.Marshal(v.Str)
	case KindJSON:
		if json.Valid([]byte(v.Str)) {
			return []byte(v.Str), nil
		}
		return json.Marshal(v.Str)
	case KindArray:
		elems := v.Elems
		if elems == nil {
			elems = []Value{}
		}
		return json.Marshal(elems)
	default:
		return json.Marshal(v.Str)
	}
}

// QuoteLiteral escapes s as a standard single-quoted SQL literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent quotes a SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// normalizeNumber turns SQL numeric spellings like ".5" into JSON numbers.
func normalizeNumber(s string) string {
	neg := strings.HasPrefix(s, "-")
	body := strings.TrimPrefix(s, "-")
	if strings.HasPrefix(body, ".") {
		body = "0" + body
	}
	if strings.HasSuffix(body, ".") {
		body += "0"
	}
	if neg {
		return "-" + body
	}
	return body
}

func jsonEqual(a, b string) bool {
	if a == b {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, []byte(a)) != nil || json.Compact(&cb, []byte(b)) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// Column is one column of a parsed INSERT.
type Column struct {
	Name  string
	Value Value
}

// Record is a single-row INSERT decoded into its table and ordered columns.
type Record struct {
	Table   string
	Columns []Column
}

// Get returns the value of the named column.
func (r Record) Get(name string) (Value, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return Value{}, false
}

// Equal reports whether two records have the same table and the same columns in order.
func (r Record) Equal(o Record) bool {
	if r.Table != o.Table || len(r.Columns) != len(o.Columns) {
		return false
	}
	for i := range r.Columns {
		if r.Columns[i].Name != o.Columns[i].Name || !r.Columns[i].Value.Equal(o.Columns[i].Value) {
			return false
		}
	}
	return true
}

// SQL re-encodes the record as an INSERT statement.
func (r Record) SQL() string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteTable(r.Table))
	sb.WriteString(" (")
	for i, c := range r.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdent(c.Name))
	}
	sb.WriteString(") VALUES (")
	for i, c := range r.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Value.SQL())
	}
	sb.WriteString(");")
	return sb.String()
}

// MarshalJSON encodes the record as a JSON object, keeping column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := c.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DeleteAllSQL renders the unconditional DELETE that clears table.
func DeleteAllSQL(table string) string {
	return "DELETE FROM " + quoteTable(table) + ";"
}

func quoteTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return QuoteIdent(schema) + "." + QuoteIdent(name)
	}
	return QuoteIdent(defaultSchema) + "." + QuoteIdent(table)
}
