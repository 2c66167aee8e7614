// Package sqlimport replays a logical SQL dump against a remote apply endpoint.
// Authentication users are created first so that data rows referencing them
// can be rewritten to the ids the destination assigned.
package sqlimport

import (
	"encoding/json"
	"fmt"
	"maps"
)

// MaxDetails bounds ImportResult.Details. Older entries are kept.
const MaxDetails = 200

// ImportResult is the aggregate report of an import, and also the shape of
// every partial result the apply endpoint returns.
type ImportResult struct {
	Success      bool              `json:"success"`
	Executed     int               `json:"executed"`
	Skipped      int               `json:"skipped"`
	Errors       []ErrorDetail     `json:"errors"`
	Details      []string          `json:"details"`
	UserMapping  map[string]string `json:"userMapping,omitempty"`
	UsersCreated int               `json:"usersCreated"`
	UsersSkipped int               `json:"usersSkipped"`
}

// NewResult returns the identity element for Merge.
func NewResult() ImportResult {
	return ImportResult{Success: true}
}

// ErrorDetail is a validation error reported for a row, user, or batch.
// Validation errors never stop an import.
type ErrorDetail struct {
	Phase   Phase  `json:"phase,omitempty"`
	Table   string `json:"table,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e ErrorDetail) String() string {
	switch {
	case e.Table != "" && e.Code != "":
		return fmt.Sprintf("%s [%s]: %s", e.Table, e.Code, e.Message)
	case e.Table != "":
		return e.Table + ": " + e.Message
	case e.Code != "":
		return "[" + e.Code + "] " + e.Message
	default:
		return e.Message
	}
}

// UnmarshalJSON accepts either a bare string or an object.
func (e *ErrorDetail) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		*e = ErrorDetail{Message: msg}
		return nil
	}
	type plain ErrorDetail
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = ErrorDetail(p)
	return nil
}

// Merge combines two partial results. Counts add, success is the logical AND,
// errors and details concatenate (details truncated to MaxDetails), and the
// user mapping is a shallow merge in which b wins. Neither input is modified.
func Merge(a, b ImportResult) ImportResult {
	out := ImportResult{
		Success:      a.Success && b.Success,
		Executed:     a.Executed + b.Executed,
		Skipped:      a.Skipped + b.Skipped,
		UsersCreated: a.UsersCreated + b.UsersCreated,
		UsersSkipped: a.UsersSkipped + b.UsersSkipped,
	}
	if n := len(a.Errors) + len(b.Errors); n > 0 {
		out.Errors = make([]ErrorDetail, 0, n)
		out.Errors = append(out.Errors, a.Errors...)
		out.Errors = append(out.Errors, b.Errors...)
	}
	if n := min(len(a.Details)+len(b.Details), MaxDetails); n > 0 {
		out.Details = make([]string, 0, n)
		out.Details = append(out.Details, a.Details[:min(len(a.Details), n)]...)
		out.Details = append(out.Details, b.Details[:n-len(out.Details)]...)
	}
	if len(a.UserMapping)+len(b.UserMapping) > 0 {
		out.UserMapping = make(map[string]string, len(a.UserMapping)+len(b.UserMapping))
		maps.Copy(out.UserMapping, a.UserMapping)
		maps.Copy(out.UserMapping, b.UserMapping)
	}
	return out
}

// Finalize marks a result unsuccessful when it carries any error.
func Finalize(r ImportResult) ImportResult {
	if len(r.Errors) > 0 {
		r.Success = false
	}
	if r.Errors == nil {
		r.Errors = []ErrorDetail{}
	}
	if r.Details == nil {
		r.Details = []string{}
	}
	return r
}

// skipped returns a partial result counting n skipped statements.
func skipped(n int, details ...string) ImportResult {
	r := NewResult()
	r.Skipped = n
	r.Details = details
	return r
}
