package sqlimport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/allyourbase/ayb-import/internal/sqldump"
	"github.com/tidwall/gjson"
)

// OpKind is the wire name of an operation.
type OpKind string

const (
	OpInsert    OpKind = "INSERT"
	OpDeleteAll OpKind = "DELETE_ALL"
)

// Operation is one data mutation sent to the apply endpoint: either an insert
// of a record or a clear of a whole table. It is immutable.
type Operation struct {
	kind   OpKind
	table  string
	record sqldump.Record
}

// InsertOp returns an operation inserting rec into rec.Table.
func InsertOp(rec sqldump.Record) Operation {
	return Operation{kind: OpInsert, table: rec.Table, record: rec}
}

// ClearTableOp returns an operation deleting every row of table.
func ClearTableOp(table string) Operation {
	return Operation{kind: OpDeleteAll, table: table}
}

func (o Operation) Kind() OpKind           { return o.kind }
func (o Operation) Table() string          { return o.table }
func (o Operation) Record() sqldump.Record { return o.record }

// SQL renders the operation as a statement equivalent to its dump source.
func (o Operation) SQL() string {
	if o.kind == OpDeleteAll {
		return sqldump.DeleteAllSQL(o.table)
	}
	return o.record.SQL()
}

func (o Operation) MarshalJSON() ([]byte, error) {
	if o.kind == OpDeleteAll {
		return json.Marshal(struct {
			Operation OpKind `json:"operation"`
			Table     string `json:"table"`
		}{o.kind, o.table})
	}
	return json.Marshal(struct {
		Operation OpKind         `json:"operation"`
		Table     string         `json:"table"`
		Record    sqldump.Record `json:"record"`
	}{o.kind, o.table, o.record})
}

// UnmarshalJSON decodes the wire form, keeping record column order.
func (o *Operation) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("operation: invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	*o = Operation{kind: OpKind(doc.Get("operation").String()), table: doc.Get("table").String()}
	switch o.kind {
	case OpDeleteAll:
	case OpInsert:
		o.record = sqldump.Record{Table: o.table}
		doc.Get("record").ForEach(func(key, val gjson.Result) bool {
			o.record.Columns = append(o.record.Columns, sqldump.Column{Name: key.String(), Value: valueFromJSON(val)})
			return true
		})
	default:
		return fmt.Errorf("operation: unknown kind %q", o.kind)
	}
	return nil
}

func valueFromJSON(v gjson.Result) sqldump.Value {
	switch v.Type {
	case gjson.Null:
		return sqldump.Null()
	case gjson.True:
		return sqldump.Bool(true)
	case gjson.False:
		return sqldump.Bool(false)
	case gjson.Number:
		return sqldump.Number(v.Raw)
	case gjson.String:
		return sqldump.String(v.String())
	}
	if v.IsArray() {
		elems := []sqldump.Value{}
		for _, e := range v.Array() {
			elems = append(elems, valueFromJSON(e))
		}
		return sqldump.Array(elems...)
	}
	return sqldump.JSON(v.Raw)
}
