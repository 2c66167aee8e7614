package sqlimport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// fakeEndpoint is an in-memory apply endpoint. Live runs persist users and
// rows; dry runs only validate.
type fakeEndpoint struct {
	mu       sync.Mutex
	requests []Request
	emails   map[string]string // email -> destination id
	rows     map[string]int    // table -> row count
	nextID   int

	// fail, when set, is consulted before each call; n is the 1-based call
	// number within the request's phase.
	fail func(req Request, n int) error
	// reject marks individual records as validation failures.
	reject func(op Operation) string
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{emails: map[string]string{}, rows: map[string]int{}}
}

func (f *fakeEndpoint) Apply(_ context.Context, req Request) (ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.fail != nil {
		if err := f.fail(req, f.callsLocked(req.Phase)); err != nil {
			return ImportResult{}, err
		}
	}
	if req.Phase == PhaseUsers {
		return f.users(req), nil
	}
	return f.data(req), nil
}

func (f *fakeEndpoint) users(req Request) ImportResult {
	res := NewResult()
	res.UserMapping = map[string]string{}
	for _, u := range req.Users {
		if _, dup := f.emails[u.Email]; dup {
			res.UsersSkipped++
			res.Errors = append(res.Errors, ErrorDetail{Phase: PhaseUsers, Code: "duplicate_email", Message: u.Email + " already exists"})
			continue
		}
		res.UsersCreated++
		if req.DryRun {
			continue
		}
		f.nextID++
		id := fmt.Sprintf("00000000-0000-4000-a000-%012d", f.nextID)
		f.emails[u.Email] = id
		res.UserMapping[u.ID] = id
	}
	return res
}

func (f *fakeEndpoint) data(req Request) ImportResult {
	res := NewResult()
	for _, op := range req.Operations {
		if f.reject != nil {
			if msg := f.reject(op); msg != "" {
				res.Errors = append(res.Errors, ErrorDetail{Phase: PhaseData, Table: op.Table(), Message: msg})
				res.Details = append(res.Details, op.Table()+": "+msg)
				continue
			}
		}
		res.Executed++
		if req.DryRun {
			continue
		}
		switch op.Kind() {
		case OpDeleteAll:
			f.rows[op.Table()] = 0
		case OpInsert:
			f.rows[op.Table()]++
		}
	}
	return res
}

func (f *fakeEndpoint) callsLocked(phase Phase) int {
	n := 0
	for _, r := range f.requests {
		if r.Phase == phase {
			n++
		}
	}
	return n
}

func (f *fakeEndpoint) phaseRequests(phase Phase) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if r.Phase == phase {
			out = append(out, r)
		}
	}
	return out
}

// router serves the endpoint over HTTP the way a deployed apply function would.
func (f *fakeEndpoint) router(token string) http.Handler {
	r := chi.NewRouter()
	r.Post("/functions/v1/sql-import", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid token"})
			return
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
			return
		}
		res, err := f.Apply(r.Context(), req)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	})
	return r
}
