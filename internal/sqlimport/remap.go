package sqlimport

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/allyourbase/ayb-import/internal/sqldump"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// remapper rewrites source user ids to destination ids inside records. The
// mapping is a private copy taken when the users phase completes.
type remapper struct {
	mapping map[string]string
	dest    map[string]bool
	warned  map[string]bool // "table.column" already reported
}

func newRemapper(mapping map[string]string) *remapper {
	m := &remapper{mapping: maps.Clone(mapping), dest: map[string]bool{}, warned: map[string]bool{}}
	for _, id := range m.mapping {
		m.dest[id] = true
	}
	return m
}

// record returns rec with every mapped id replaced, plus any warning detail
// for user-reference columns holding an id the mapping does not know.
func (m *remapper) record(rec sqldump.Record) (sqldump.Record, []string) {
	var warnings []string
	out := sqldump.Record{Table: rec.Table, Columns: make([]sqldump.Column, len(rec.Columns))}
	for i, col := range rec.Columns {
		v := col.Value
		if len(m.mapping) > 0 {
			v = m.value(v)
		}
		out.Columns[i] = sqldump.Column{Name: col.Name, Value: v}
		if w, ok := m.unmappedRef(rec.Table, col.Name, v); ok {
			warnings = append(warnings, w)
		}
	}
	return out, warnings
}

func (m *remapper) value(v sqldump.Value) sqldump.Value {
	switch v.Kind {
	case sqldump.KindString:
		if id, ok := m.mapping[v.Str]; ok {
			return sqldump.String(id).WithCast(v.Cast)
		}
		if text, ok := m.text(v.Str); ok {
			return sqldump.String(text).WithCast(v.Cast)
		}
	case sqldump.KindArray:
		elems := make([]sqldump.Value, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = m.value(e)
		}
		return sqldump.Array(elems...).WithCast(v.Cast)
	case sqldump.KindJSON:
		if raw, ok := remapJSON(v.Str, m.mapping); ok {
			return sqldump.JSON(raw).WithCast(v.Cast)
		}
	}
	return v
}

// text remaps ids inside uncast text holding a JSON document or an array
// literal such as '{id1,id2}'. The result is still text.
func (m *remapper) text(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return s, false
	}
	if gjson.Valid(trimmed) {
		return remapJSON(s, m.mapping)
	}
	return sqldump.MapArrayLiteral(s, func(elem string) (string, bool) {
		id, ok := m.mapping[elem]
		return id, ok
	})
}

// unmappedRef reports a UUID-shaped value left in a user-reference column.
// Such ids may name destination users outside this dump, so they pass
// through; the warning is emitted once per table column.
func (m *remapper) unmappedRef(table, column string, v sqldump.Value) (string, bool) {
	if v.Kind != sqldump.KindString || !isUserRefColumn(column) {
		return "", false
	}
	if _, err := uuid.Parse(v.Str); err != nil {
		return "", false
	}
	if m.dest[v.Str] {
		return "", false
	}
	key := table + "." + column
	if m.warned[key] {
		return "", false
	}
	m.warned[key] = true
	return fmt.Sprintf("warning: %s holds user id %s with no migrated user; passed through unchanged", key, v.Str), true
}

func isUserRefColumn(name string) bool {
	switch name {
	case "user_id", "owner_id", "created_by", "updated_by", "author_id":
		return true
	}
	return strings.HasSuffix(name, "_user_id")
}

// remapJSON replaces every string value in doc that is a mapped source id.
// Object keys are left alone, and values under an empty key, which no path can
// address, are skipped. It reports false when nothing changed.
func remapJSON(doc string, mapping map[string]string) (string, bool) {
	if len(mapping) == 0 || !gjson.Valid(doc) {
		return doc, false
	}
	root := gjson.Parse(doc)
	if root.Type == gjson.String {
		if id, ok := mapping[root.String()]; ok {
			quoted, err := json.Marshal(id)
			if err != nil {
				return doc, false
			}
			return string(quoted), true
		}
		return doc, false
	}

	var edits []jsonEdit
	collectJSONEdits(root, nil, mapping, &edits)
	if len(edits) == 0 {
		return doc, false
	}
	out, applied := doc, 0
	for _, e := range edits {
		next, err := sjson.Set(out, e.path, e.value)
		if err != nil {
			continue
		}
		out = next
		applied++
	}
	return out, applied > 0
}

type jsonEdit struct {
	path  string
	value string
}

func collectJSONEdits(node gjson.Result, path []string, mapping map[string]string, edits *[]jsonEdit) {
	if !node.IsObject() && !node.IsArray() {
		return
	}
	isArray := node.IsArray()
	idx := 0
	node.ForEach(func(key, val gjson.Result) bool {
		if !isArray && key.String() == "" {
			return true
		}
		component := escapePathComponent(key.String())
		if isArray {
			component = strconv.Itoa(idx)
			idx++
		}
		child := append(path[:len(path):len(path)], component)
		switch {
		case val.Type == gjson.String:
			if id, ok := mapping[val.String()]; ok {
				*edits = append(*edits, jsonEdit{path: strings.Join(child, "."), value: id})
			}
		case val.IsObject() || val.IsArray():
			collectJSONEdits(val, child, mapping, edits)
		}
		return true
	})
}

// escapePathComponent escapes the characters gjson and sjson treat as path syntax.
func escapePathComponent(s string) string {
	const special = `\.*?|#@!=<>%:`
	if !strings.ContainsAny(s, special) {
		return s
	}
	var sb strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
