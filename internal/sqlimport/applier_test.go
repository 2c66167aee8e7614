package sqlimport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/allyourbase/ayb-import/internal/sqldump"
)

const (
	applyPath  = "/functions/v1/sql-import"
	testSecret = "0123456789abcdef0123456789abcdef"
)

func newTestApplier(t *testing.T, url string, cfg HTTPConfig) *HTTPApplier {
	t.Helper()
	cfg.URL = url
	a, err := NewHTTPApplier(cfg)
	require.NoError(t, err)
	return a
}

func dataRequest(ops ...Operation) Request {
	return Request{Phase: PhaseData, Operations: ops}
}

func TestHTTPApplierServiceKey(t *testing.T) {
	var gotKey, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer svc-key", r.Header.Get("Authorization"))
		gotKey = r.Header.Get("apikey")
		gotType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"success":true,"executed":2,"skipped":0,"errors":[],"details":["ok"]}`))
	}))
	defer srv.Close()

	a := newTestApplier(t, srv.URL+applyPath, HTTPConfig{ServiceKey: "svc-key"})
	res, err := a.Apply(t.Context(), dataRequest(ClearTableOp("public.orders")))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Executed)
	assert.Equal(t, []string{"ok"}, res.Details)
	assert.Equal(t, "svc-key", gotKey)
	assert.Equal(t, "application/json", gotType)
}

func TestHTTPApplierSignsServiceRoleToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("apikey"))
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		assert.True(t, ok)

		claims := &serviceClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.True(t, tok.Valid)
		assert.Equal(t, "service_role", claims.Role)
		assert.Equal(t, "ayb-import", claims.Issuer)
		assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt.Time, 5*time.Second)
		w.Write([]byte(`{"executed":1}`))
	}))
	defer srv.Close()

	a := newTestApplier(t, srv.URL, HTTPConfig{JWTSecret: testSecret, TokenTTL: time.Minute})
	res, err := a.Apply(t.Context(), dataRequest())
	require.NoError(t, err)
	// A body without "success" is treated as successful.
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Executed)
}

func TestHTTPApplierValidationErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"executed":1,"errors":["row 2 rejected",{"table":"orders","message":"fk violation"}]}`))
	}))
	defer srv.Close()

	a := newTestApplier(t, srv.URL, HTTPConfig{ServiceKey: "k"})
	res, err := a.Apply(t.Context(), dataRequest())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Executed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "row 2 rejected", res.Errors[0].Message)
	assert.Equal(t, "orders", res.Errors[1].Table)
}

func TestHTTPApplierTransportErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantMsg  string
	}{
		{"server error with message", http.StatusInternalServerError, `{"message":"database is down"}`, 500, "database is down"},
		{"server error with error field", http.StatusBadGateway, `{"error":"upstream timeout"}`, 502, "upstream timeout"},
		{"non-JSON error", http.StatusServiceUnavailable, `<html>maintenance</html>`, 503, "<html>maintenance</html>"},
		{"400 without errors", http.StatusBadRequest, `{"success":false}`, 400, `{"success":false}`},
		{"invalid JSON on success", http.StatusOK, `not json`, 200, "not json"},
		{"empty body on success", http.StatusOK, ``, 200, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := newTestApplier(t, srv.URL, HTTPConfig{ServiceKey: "k"})
			_, err := a.Apply(t.Context(), Request{Phase: PhaseUsers})
			require.Error(t, err)

			var te *TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, PhaseUsers, te.Phase)
			assert.Equal(t, tt.wantCode, te.StatusCode)
			assert.Equal(t, tt.wantMsg, te.Body)
		})
	}
}

func TestHTTPApplierTruncatesLongBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	a := newTestApplier(t, srv.URL, HTTPConfig{ServiceKey: "k"})
	_, err := a.Apply(t.Context(), dataRequest())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Len(t, te.Body, maxErrorBody+len("..."))
}

func TestHTTPApplierConnectionRefused(t *testing.T) {
	a := newTestApplier(t, "http://127.0.0.1:1"+applyPath, HTTPConfig{ServiceKey: "k"})
	_, err := a.Apply(t.Context(), dataRequest())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, te.StatusCode)
	assert.Contains(t, err.Error(), "apply data:")
}

func TestNewHTTPApplierValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HTTPConfig
		wantErr string
	}{
		{"missing url", HTTPConfig{ServiceKey: "k"}, "URL is required"},
		{"bad scheme", HTTPConfig{URL: "ftp://x", ServiceKey: "k"}, "http:// or https://"},
		{"no credentials", HTTPConfig{URL: "https://x"}, "service key or a JWT secret"},
		{"short secret", HTTPConfig{URL: "https://x", JWTSecret: "short"}, "at least 32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPApplier(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	a, err := NewHTTPApplier(HTTPConfig{URL: "https://x", ServiceKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, a.client.Timeout)
	assert.Equal(t, 10*time.Minute, a.tokenTTL)
}

func TestRequestJSON(t *testing.T) {
	t.Run("users phase", func(t *testing.T) {
		data, err := json.Marshal(Request{Phase: PhaseUsers, DryRun: true, Users: []sqldump.UserRecord{{ID: "u1", Email: "a@x.io"}}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"phase":"users","dryRun":true,"skipAuthTables":false,"users":[{"id":"u1","email":"a@x.io"}]}`, string(data))
	})

	t.Run("data phase always carries a mapping", func(t *testing.T) {
		data, err := json.Marshal(Request{Phase: PhaseData, SkipAuthTables: true})
		require.NoError(t, err)
		assert.JSONEq(t, `{"phase":"data","dryRun":false,"skipAuthTables":true,"userMapping":{},"operations":[]}`, string(data))
	})

	t.Run("operations keep column order", func(t *testing.T) {
		rec := sqldump.Record{Table: "public.orders", Columns: []sqldump.Column{
			{Name: "z", Value: sqldump.Number("1")},
			{Name: "a", Value: sqldump.String("x")},
		}}
		req := Request{Phase: PhaseData, UserMapping: map[string]string{"s": "d"}, Operations: []Operation{ClearTableOp("public.orders"), InsertOp(rec)}}
		data, err := json.Marshal(req)
		require.NoError(t, err)
		assert.Equal(t, `{"z":1,"a":"x"}`, gjson.GetBytes(data, "operations.1.record").Raw)
		assert.Equal(t, "DELETE_ALL", gjson.GetBytes(data, "operations.0.operation").String())

		var back Request
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, PhaseData, back.Phase)
		assert.Equal(t, "d", back.UserMapping["s"])
		require.Len(t, back.Operations, 2)
		assert.Equal(t, OpDeleteAll, back.Operations[0].Kind())
		assert.True(t, back.Operations[1].Record().Equal(rec))
	})
}

func TestRunOverHTTP(t *testing.T) {
	ep := newFakeEndpoint()
	srv := httptest.NewServer(ep.router("svc-key"))
	defer srv.Close()

	sql := userInsert + "\n" +
		"DELETE FROM public.orders;\n" +
		`INSERT INTO public.orders (id, user_id) VALUES (1, '` + srcUserID + `');`

	a := newTestApplier(t, srv.URL+applyPath, HTTPConfig{ServiceKey: "svc-key"})
	res, err := Run(t.Context(), a, Options{SQL: sql})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.UsersCreated)
	assert.Equal(t, 2, res.Executed)
	assert.Equal(t, 1, ep.rows["orders"])

	data := ep.phaseRequests(PhaseData)
	require.Len(t, data, 1)
	userID, ok := data[0].Operations[1].Record().Get("user_id")
	require.True(t, ok)
	assert.Equal(t, res.UserMapping[srcUserID], userID.Str)
}

func TestRunOverHTTPUnauthorized(t *testing.T) {
	srv := httptest.NewServer(newFakeEndpoint().router("right-key"))
	defer srv.Close()

	a := newTestApplier(t, srv.URL+applyPath, HTTPConfig{ServiceKey: "wrong-key"})
	_, err := Run(t.Context(), a, Options{SQL: userInsert})

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, PhaseUsers, abort.Phase)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Equal(t, "invalid token", te.Body)
}
