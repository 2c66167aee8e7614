package sqldump

// Class is the replay category assigned to a statement.
type Class uint8

const (
	// ClassSkip covers DDL, privileges, sequence and ownership statements,
	// conditional deletes, and anything not positively recognized.
	ClassSkip Class = iota
	// ClassAuthUser is an INSERT into the authentication-subject table (auth.users).
	ClassAuthUser
	// ClassAuthOther touches another auth.* table (sessions, identities, tokens, ...).
	ClassAuthOther
	// ClassInsert is an INSERT into an ordinary table.
	ClassInsert
	// ClassDeleteAll is a DELETE with no WHERE clause.
	ClassDeleteAll
)

func (c Class) String() string {
	switch c {
	case ClassAuthUser:
		return "auth-user"
	case ClassAuthOther:
		return "auth-other"
	case ClassInsert:
		return "insert"
	case ClassDeleteAll:
		return "delete-all"
	default:
		return "skip"
	}
}

const (
	authSchema       = "auth"
	authSubjectTable = "users"
	defaultSchema    = "public"
)

// AuthSubjectTable is the table name ExtractTableName reports for auth.users.
const AuthSubjectTable = authSchema + "." + authSubjectTable

// Classify decides how a statement is replayed. Leading comments are ignored.
func Classify(stmt Statement) Class {
	return classifyBody(stmt.Body())
}

// IsAuthSubjectInsert reports whether stmt inserts into auth.users.
func IsAuthSubjectInsert(stmt Statement) bool {
	return Classify(stmt) == ClassAuthUser
}

// IsOtherAuthStatement reports whether stmt touches an auth.* table other than auth.users.
func IsOtherAuthStatement(stmt Statement) bool {
	return Classify(stmt) == ClassAuthOther
}

// ShouldSkip reports whether stmt is never replayed.
func ShouldSkip(stmt Statement) bool {
	return Classify(stmt) == ClassSkip
}

// ExtractTableName returns the table a statement targets, or "" when none is
// recognized. Tables in the public schema are returned unqualified; other
// schemas keep their prefix ("auth.sessions").
func ExtractTableName(stmt Statement) string {
	_, ref, _ := statementTarget(stmt.Body())
	return ref.String()
}

func classifyBody(body string) Class {
	verb, ref, lx := statementTarget(body)
	if ref.schema == authSchema {
		if ref.name == authSubjectTable {
			if verb == "insert" {
				return ClassAuthUser
			}
			return ClassSkip
		}
		return ClassAuthOther
	}
	if ref.name == "" {
		return ClassSkip
	}
	switch verb {
	case "insert":
		return ClassInsert
	case "delete":
		if atEnd(lx) {
			return ClassDeleteAll
		}
	}
	return ClassSkip
}

// atEnd reports whether only an optional ';' remains.
func atEnd(lx *lexer) bool {
	t := lx.next()
	if t.punct(";") {
		t = lx.next()
	}
	return t.kind == tokEOF
}

type tableRef struct {
	schema string
	name   string
}

func (t tableRef) String() string {
	if t.name == "" {
		return ""
	}
	if t.schema == "" || t.schema == defaultSchema {
		return t.name
	}
	return t.schema + "." + t.name
}

// statementTarget reads the leading verb and target table of a statement body.
// The returned lexer is positioned just after the table name.
func statementTarget(body string) (string, tableRef, *lexer) {
	lx := newLexer(body)
	first := lx.next()
	if first.kind != tokIdent {
		return "", tableRef{}, lx
	}
	verb := first.val
	switch verb {
	case "insert":
		if !lx.next().keyword("into") {
			return verb, tableRef{}, lx
		}
	case "delete":
		if !lx.next().keyword("from") {
			return verb, tableRef{}, lx
		}
		skipKeywords(lx, "only")
	case "update":
		skipKeywords(lx, "only")
	case "truncate":
		skipKeywords(lx, "table", "only")
	case "copy":
	case "alter", "create", "drop":
		if !seekKeyword(lx, "table", 4) {
			return verb, tableRef{}, lx
		}
		skipKeywords(lx, "if", "not", "exists", "only")
	case "grant", "revoke":
		if !seekKeyword(lx, "on", 64) {
			return verb, tableRef{}, lx
		}
		if p := lx.peek(); p.keyword("schema") || p.keyword("sequence") || p.keyword("all") ||
			p.keyword("function") || p.keyword("database") || p.keyword("type") {
			return verb, tableRef{}, lx
		}
		skipKeywords(lx, "table")
	default:
		return verb, tableRef{}, lx
	}
	ref, ok := parseQualifiedName(lx)
	if !ok {
		return verb, tableRef{}, lx
	}
	return verb, ref, lx
}

func skipKeywords(lx *lexer, kws ...string) {
	for {
		p := lx.peek()
		matched := false
		for _, kw := range kws {
			if p.keyword(kw) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}
		lx.next()
	}
}

// seekKeyword consumes tokens until kw has been consumed, giving up after limit tokens.
func seekKeyword(lx *lexer, kw string, limit int) bool {
	for range limit {
		t := lx.next()
		if t.kind == tokEOF {
			return false
		}
		if t.keyword(kw) {
			return true
		}
	}
	return false
}

func parseQualifiedName(lx *lexer) (tableRef, bool) {
	first := lx.next()
	if !isName(first) {
		return tableRef{}, false
	}
	if !lx.peek().punct(".") {
		return tableRef{name: first.val}, true
	}
	lx.next()
	second := lx.next()
	if !isName(second) {
		return tableRef{}, false
	}
	return tableRef{schema: first.val, name: second.val}, true
}

func isName(t token) bool {
	return t.kind == tokIdent || t.kind == tokQuotedIdent
}
