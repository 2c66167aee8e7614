package sqldump

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/allyourbase/ayb-import/internal/testutil"
)

func mustRecord(t *testing.T, sql string) Record {
	t.Helper()
	rec, ok := ParseInsertToRecord(stmt(sql))
	testutil.True(t, ok, "expected %q to parse", sql)
	return rec
}

func column(t *testing.T, rec Record, name string) Value {
	t.Helper()
	v, ok := rec.Get(name)
	testutil.True(t, ok, "missing column %q", name)
	return v
}

func TestParseInsertToRecordFixture(t *testing.T) {
	t.Parallel()
	stmts := Split(readFixture(t))

	first, ok := ParseInsertToRecord(stmts[10])
	testutil.True(t, ok)
	testutil.Equal(t, "orders", first.Table)
	testutil.SliceLen(t, first.Columns, 6)
	testutil.True(t, column(t, first, "id").Equal(Number("1")))
	testutil.True(t, column(t, first, "user_id").Equal(String("6f1c2d3e-0000-4000-8000-000000000001")))
	testutil.True(t, column(t, first, "note").Equal(String("first; order")))
	// pg_dump writes array and jsonb columns without casts; they stay text.
	testutil.True(t, column(t, first, "tags").Equal(String("{a,b}")))
	testutil.True(t, column(t, first, "meta").Equal(String(`{"owner": "6f1c2d3e-0000-4000-8000-000000000001"}`)))
	testutil.True(t, column(t, first, "member_ids").Equal(String("{6f1c2d3e-0000-4000-8000-000000000001}")))

	second, ok := ParseInsertToRecord(stmts[11])
	testutil.True(t, ok)
	testutil.True(t, column(t, second, "user_id").Equal(Null()))
	testutil.True(t, column(t, second, "note").Equal(String("line\nbreak 'quoted'")))
	testutil.True(t, column(t, second, "tags").Equal(String("{}")))
	testutil.True(t, column(t, second, "meta").Equal(Null()))

	_, ok = ParseInsertToRecord(stmts[12])
	testutil.False(t, ok, "multi-row insert must not parse")
}

func TestParseInsertToRecordValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		lit  string
		want Value
	}{
		{"integer", `42`, Number("42")},
		{"negative", `-7`, Number("-7")},
		{"explicit positive", `+3`, Number("3")},
		{"decimal", `3.25`, Number("3.25")},
		{"leading dot", `.5`, Number(".5")},
		{"exponent", `1e10`, Number("1e10")},
		{"null", `NULL`, Null()},
		{"true", `true`, Bool(true)},
		{"false", `FALSE`, Bool(false)},
		{"plain string", `'hello'`, String("hello")},
		{"doubled quote", `'it''s'`, String("it's")},
		{"escape string", `E'tab\there'`, String("tab\there")},
		{"escape unicode", `E'café'`, String("café")},
		{"escape octal", `E'\101'`, String("A")},
		{"dollar quoted", `$$raw 'text'$$`, String("raw 'text'")},
		{"uncast json object stays text", `'{"a": 1}'`, String(`{"a": 1}`)},
		{"uncast json array stays text", `'[1, 2]'`, String("[1, 2]")},
		{"uncast empty braces stay text", `'{}'`, String("{}")},
		{"uncast array literal stays text", `'{x}'`, String("{x}")},
		{"jsonb cast", `'{"a": [true]}'::jsonb`, JSON(`{"a":[true]}`).WithCast("jsonb")},
		{"json array cast", `'[]'::json`, JSON(`[]`).WithCast("json")},
		{"text array", `'{a,"b c",NULL}'::text[]`, Array(String("a"), String("b c"), Null()).WithCast("text[]")},
		{"integer array", `'{1,2,3}'::integer[]`, Array(Number("1"), Number("2"), Number("3")).WithCast("integer[]")},
		{"boolean array", `'{t,f}'::boolean[]`, Array(Bool(true), Bool(false)).WithCast("boolean[]")},
		{"empty array", `'{}'::text[]`, Array().WithCast("text[]")},
		{"array constructor", `ARRAY['x', 'y']`, Array(String("x"), String("y"))},
		{"array constructor cast", `ARRAY[1, NULL]::bigint[]`, Array(Number("1"), Null()).WithCast("bigint[]")},
		{"nested array constructor", `ARRAY[[1, 2], [3, 4]]`, Array(Array(Number("1"), Number("2")), Array(Number("3"), Number("4")))},
		{"multi-dimensional literal stays text", `'{{1,2},{3,4}}'::integer[]`, String("{{1,2},{3,4}}").WithCast("integer[]")},
		{"timestamp cast", `'2024-01-01 00:00:00+00'::timestamp with time zone`, String("2024-01-01 00:00:00+00").WithCast("timestamp with time zone")},
		{"varchar cast", `'abc'::character varying(255)`, String("abc").WithCast("character varying(255)")},
		{"numeric text cast", `'12.50'::numeric(10,2)`, Number("12.50").WithCast("numeric(10,2)")},
		{"boolean text cast", `'t'::boolean`, Bool(true).WithCast("boolean")},
		{"qualified enum cast", `'active'::public.status`, String("active").WithCast("public.status")},
		{"chained casts", `'1'::text::integer`, Number("1").WithCast("integer")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := mustRecord(t, "INSERT INTO public.t (v) VALUES ("+tt.lit+");")
			got := column(t, rec, "v")
			testutil.True(t, got.Equal(tt.want), "got %#v want %#v", got, tt.want)
		})
	}
}

func TestUncastTextKeepsOneKind(t *testing.T) {
	t.Parallel()
	rec := mustRecord(t, `INSERT INTO public.t (a, b, c, d, e) VALUES ('{}', '{a,b}', '{"a": 1}', '[]', 'plain');`)
	for _, col := range rec.Columns {
		testutil.Equal(t, KindString, col.Value.Kind)
	}
}

func TestMapArrayLiteral(t *testing.T) {
	t.Parallel()
	upper := func(s string) (string, bool) {
		if s == "u1" || s == "u2" {
			return strings.ToUpper(s), true
		}
		return s, false
	}
	tests := []struct {
		name    string
		lit     string
		want    string
		changed bool
	}{
		{"single element", `{u1}`, `{U1}`, true},
		{"mixed elements", `{u1,keep,NULL,u2}`, `{U1,keep,NULL,U2}`, true},
		{"quoted elements", `{"u1","a,b"}`, `{U1,"a,b"}`, true},
		{"nothing mapped", `{keep}`, `{keep}`, false},
		{"empty", `{}`, `{}`, false},
		{"multi-dimensional", `{{u1}}`, `{{u1}}`, false},
		{"not an array", `u1`, `u1`, false},
		{"json object", `{"k": "u1"}`, `{"k": "u1"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, changed := MapArrayLiteral(tt.lit, upper)
			testutil.Equal(t, tt.changed, changed)
			testutil.Equal(t, tt.want, got)
		})
	}
}

func TestParseInsertToRecordRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sql  string
	}{
		{"multi-row", `INSERT INTO t (a) VALUES (1), (2);`},
		{"no column list", `INSERT INTO t VALUES (1);`},
		{"select source", `INSERT INTO t (a) SELECT 1;`},
		{"function call", `INSERT INTO t (a) VALUES (now());`},
		{"arithmetic", `INSERT INTO t (a) VALUES (1 + 2);`},
		{"column count mismatch", `INSERT INTO t (a, b) VALUES (1);`},
		{"returning", `INSERT INTO t (a) VALUES (1) RETURNING a;`},
		{"upsert", `INSERT INTO t (a) VALUES (1) ON CONFLICT (a) DO UPDATE SET a = 2;`},
		{"unterminated string", `INSERT INTO t (a) VALUES ('open`},
		{"not an insert", `DELETE FROM t;`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := ParseInsertToRecord(stmt(tt.sql))
			testutil.False(t, ok)
		})
	}
}

func TestParseInsertToRecordClauses(t *testing.T) {
	t.Parallel()
	rec := mustRecord(t, `INSERT INTO public.t (id) OVERRIDING SYSTEM VALUE VALUES (5) ON CONFLICT DO NOTHING;`)
	testutil.True(t, column(t, rec, "id").Equal(Number("5")))

	rec = mustRecord(t, `INSERT INTO public.t (id) OVERRIDING USER VALUE VALUES (6)`)
	testutil.True(t, column(t, rec, "id").Equal(Number("6")))

	rec = mustRecord(t, `INSERT INTO "Billing"."Invoices" (ID, "Weird Col") VALUES (1, 'x');`)
	testutil.Equal(t, "Billing.Invoices", rec.Table)
	testutil.Equal(t, "id", rec.Columns[0].Name)
	testutil.Equal(t, "Weird Col", rec.Columns[1].Name)
}

func TestParseDeleteAll(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sql   string
		table string
		ok    bool
	}{
		{`DELETE FROM public.orders;`, "orders", true},
		{`delete from ONLY orders`, "orders", true},
		{`DELETE FROM billing.invoices;`, "billing.invoices", true},
		{`DELETE FROM public.orders WHERE id = 1;`, "", false},
		{`DELETE FROM auth.users;`, "", false},
		{`INSERT INTO orders (id) VALUES (1);`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			t.Parallel()
			table, ok := ParseDeleteAll(stmt(tt.sql))
			testutil.Equal(t, tt.ok, ok)
			testutil.Equal(t, tt.table, table)
		})
	}
}

func TestRecordTableMatchesExtractTableName(t *testing.T) {
	t.Parallel()
	for s := range Statements(readFixture(t)) {
		rec, ok := ParseInsertToRecord(s)
		if !ok {
			continue
		}
		testutil.Equal(t, ExtractTableName(s), rec.Table)
	}
}

func TestRecordSQLRoundTrip(t *testing.T) {
	t.Parallel()
	inputs := []string{
		`INSERT INTO public.orders (id, user_id, note, tags, meta) VALUES (1, 'u1', 'it''s', '{a,b}'::text[], '{"k": [1, 2]}'::jsonb);`,
		`INSERT INTO orders (id, note, flag, score) VALUES (-2, E'multi\nline', true, .5);`,
		`INSERT INTO orders (id, tags, nums) VALUES (3, '{}'::text[], ARRAY[1, NULL]::integer[]);`,
		`INSERT INTO billing.invoices (id, at, meta) VALUES ('x', '2024-01-01'::date, '[{"a": "b"}]');`,
		`INSERT INTO "Odd Table" ("Odd ""Col""") VALUES ($q$dollar 'body'$q$);`,
	}
	for _, in := range inputs {
		rec := mustRecord(t, in)
		out := rec.SQL()
		again, ok := ParseInsertToRecord(stmt(out))
		testutil.True(t, ok, "re-encoded statement did not parse: %s", out)
		testutil.True(t, rec.Equal(again), "round trip changed record: %s", out)
	}
}

func TestRecordMarshalJSON(t *testing.T) {
	t.Parallel()
	rec := mustRecord(t, `INSERT INTO t (id, note, tags, meta, gone, ratio, ok) VALUES (7, 'x', '{a,b}'::text[], '{"k": 1}', NULL, .5, false);`)
	data, err := json.Marshal(rec)
	testutil.NoError(t, err)
	testutil.Equal(t, `{"id":7,"note":"x","tags":["a","b"],"meta":"{\"k\": 1}","gone":null,"ratio":0.5,"ok":false}`, string(data))
}

func TestDeleteAllSQL(t *testing.T) {
	t.Parallel()
	testutil.Equal(t, `DELETE FROM "public"."orders";`, DeleteAllSQL("orders"))
	testutil.Equal(t, `DELETE FROM "billing"."invoices";`, DeleteAllSQL("billing.invoices"))
}
