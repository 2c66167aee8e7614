package sqldump

import (
	"encoding/json"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/crypto/bcrypt"
)

// UserRecord is an authentication subject read from an auth.users INSERT.
type UserRecord struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	RawMetadata    json.RawMessage `json:"rawMetadata,omitempty"`
	AppMetadata    json.RawMessage `json:"appMetadata,omitempty"`
	PasswordHash   string          `json:"passwordHash,omitempty"` // bcrypt only
	EmailConfirmed bool            `json:"emailConfirmed,omitempty"`
	Phone          string          `json:"phone,omitempty"` // E.164
	CreatedAt      string          `json:"createdAt,omitempty"`
	IsAnonymous    bool            `json:"-"`
}

// ParseAuthUserInsert extracts a UserRecord from an auth.users INSERT.
// It reports false when the statement is not such an insert or when the id
// or email column is missing or empty.
func ParseAuthUserInsert(stmt Statement) (UserRecord, bool) {
	rec, ok := parseInsert(stmt.Body())
	if !ok || rec.Table != AuthSubjectTable {
		return UserRecord{}, false
	}
	return userFromRecord(rec)
}

func userFromRecord(rec Record) (UserRecord, bool) {
	id := textColumn(rec, "id")
	email := textColumn(rec, "email")
	if id == "" || strings.TrimSpace(email) == "" {
		return UserRecord{}, false
	}

	u := UserRecord{
		ID:          id,
		Email:       email,
		RawMetadata: jsonColumn(rec, "raw_user_meta_data"),
		AppMetadata: jsonColumn(rec, "raw_app_meta_data"),
		CreatedAt:   textColumn(rec, "created_at"),
	}
	if hash := textColumn(rec, "encrypted_password"); isBcryptHash(hash) {
		u.PasswordHash = hash
	}
	for _, col := range []string{"email_confirmed_at", "confirmed_at"} {
		if v, ok := rec.Get(col); ok && v.Kind != KindNull {
			u.EmailConfirmed = true
			break
		}
	}
	if phone, ok := normalizePhone(textColumn(rec, "phone")); ok {
		u.Phone = phone
	}
	if v, ok := rec.Get("is_anonymous"); ok && v.Kind == KindBool {
		u.IsAnonymous = v.Bool
	}
	return u, true
}

func textColumn(rec Record, name string) string {
	v, ok := rec.Get(name)
	if !ok {
		return ""
	}
	switch v.Kind {
	case KindString, KindNumber:
		return v.Str
	default:
		return ""
	}
}

func jsonColumn(rec Record, name string) json.RawMessage {
	v, ok := rec.Get(name)
	if !ok {
		return nil
	}
	switch v.Kind {
	case KindJSON:
		return json.RawMessage(v.Str)
	case KindString:
		if json.Valid([]byte(v.Str)) {
			return json.RawMessage(v.Str)
		}
	}
	return nil
}

func isBcryptHash(hash string) bool {
	if hash == "" {
		return false
	}
	_, err := bcrypt.Cost([]byte(hash))
	return err == nil
}

// normalizePhone formats a stored phone number as E.164. Supabase stores
// numbers without the leading '+'.
func normalizePhone(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.HasPrefix(raw, "+") {
		raw = "+" + raw
	}
	num, err := phonenumbers.Parse(raw, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}
