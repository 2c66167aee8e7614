package sqlimport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/allyourbase/ayb-import/internal/sqldump"
	"github.com/golang-jwt/jwt/v5"
)

// Request is one call to the apply endpoint. Users is set for PhaseUsers,
// UserMapping and Operations for PhaseData.
type Request struct {
	Phase          Phase
	DryRun         bool
	SkipAuthTables bool
	Users          []sqldump.UserRecord
	UserMapping    map[string]string
	Operations     []Operation
}

func (r Request) MarshalJSON() ([]byte, error) {
	if r.Phase == PhaseUsers {
		users := r.Users
		if users == nil {
			users = []sqldump.UserRecord{}
		}
		return json.Marshal(struct {
			Phase          Phase                `json:"phase"`
			DryRun         bool                 `json:"dryRun"`
			SkipAuthTables bool                 `json:"skipAuthTables"`
			Users          []sqldump.UserRecord `json:"users"`
		}{r.Phase, r.DryRun, r.SkipAuthTables, users})
	}
	mapping := r.UserMapping
	if mapping == nil {
		mapping = map[string]string{}
	}
	ops := r.Operations
	if ops == nil {
		ops = []Operation{}
	}
	return json.Marshal(struct {
		Phase          Phase             `json:"phase"`
		DryRun         bool              `json:"dryRun"`
		SkipAuthTables bool              `json:"skipAuthTables"`
		UserMapping    map[string]string `json:"userMapping"`
		Operations     []Operation       `json:"operations"`
	}{r.Phase, r.DryRun, r.SkipAuthTables, mapping, ops})
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var wire struct {
		Phase          Phase                `json:"phase"`
		DryRun         bool                 `json:"dryRun"`
		SkipAuthTables bool                 `json:"skipAuthTables"`
		Users          []sqldump.UserRecord `json:"users"`
		UserMapping    map[string]string    `json:"userMapping"`
		Operations     []Operation          `json:"operations"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Request(wire)
	return nil
}

// Applier sends one batch to the apply endpoint and returns its partial result.
// A returned error is fatal to the import; validation problems belong in
// ImportResult.Errors instead.
type Applier interface {
	Apply(ctx context.Context, req Request) (ImportResult, error)
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, req Request) (ImportResult, error)

func (f ApplierFunc) Apply(ctx context.Context, req Request) (ImportResult, error) {
	return f(ctx, req)
}

// HTTPConfig configures an HTTPApplier.
type HTTPConfig struct {
	URL string
	// ServiceKey is sent verbatim as the bearer token and apikey header.
	ServiceKey string
	// JWTSecret, when ServiceKey is empty, signs a short-lived service_role
	// token for every request.
	JWTSecret string
	TokenTTL  time.Duration
	Timeout   time.Duration
	Client    *http.Client
}

// HTTPApplier posts JSON requests to a remote apply endpoint.
type HTTPApplier struct {
	url        string
	serviceKey string
	jwtSecret  []byte
	tokenTTL   time.Duration
	client     *http.Client
}

// NewHTTPApplier validates cfg and returns an applier.
func NewHTTPApplier(cfg HTTPConfig) (*HTTPApplier, error) {
	if cfg.URL == "" {
		return nil, errors.New("apply endpoint URL is required")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("apply endpoint URL must start with http:// or https://, got %q", cfg.URL)
	}
	if cfg.ServiceKey == "" && cfg.JWTSecret == "" {
		return nil, errors.New("either a service key or a JWT secret is required")
	}
	if cfg.ServiceKey == "" && len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT secret must be at least 32 characters")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &HTTPApplier{
		url:        cfg.URL,
		serviceKey: cfg.ServiceKey,
		jwtSecret:  []byte(cfg.JWTSecret),
		tokenTTL:   ttl,
		client:     client,
	}, nil
}

// maxErrorBody bounds the response excerpt kept in a TransportError.
const maxErrorBody = 512

// Apply posts req and decodes the partial result. A non-2xx response whose
// body is a result carrying errors is returned as a validation result; any
// other failure is a *TransportError.
func (a *HTTPApplier) Apply(ctx context.Context, req Request) (ImportResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ImportResult{}, fmt.Errorf("encoding %s request: %w", req.Phase, err)
	}
	token, err := a.bearer()
	if err != nil {
		return ImportResult{}, fmt.Errorf("signing service token: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return ImportResult{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if a.serviceKey != "" {
		httpReq.Header.Set("apikey", a.serviceKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return ImportResult{}, &TransportError{Phase: req.Phase, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ImportResult{}, &TransportError{Phase: req.Phase, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	result, decodeErr := decodeResult(body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if decodeErr != nil {
			return ImportResult{}, &TransportError{Phase: req.Phase, StatusCode: resp.StatusCode, Body: excerpt(body), Err: decodeErr}
		}
		return result, nil
	}
	if decodeErr == nil && len(result.Errors) > 0 {
		result.Success = false
		return result, nil
	}
	return ImportResult{}, &TransportError{
		Phase:      req.Phase,
		StatusCode: resp.StatusCode,
		Body:       serverMessage(body),
		Err:        fmt.Errorf("unexpected status %s", resp.Status),
	}
}

func (a *HTTPApplier) bearer() (string, error) {
	if a.serviceKey != "" {
		return a.serviceKey, nil
	}
	now := time.Now()
	claims := &serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ayb-import",
			Subject:   "ayb-import",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
		Role: "service_role",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

type serviceClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// decodeResult parses a response body. A body without "success" counts as
// successful so that endpoints only reporting counts still merge cleanly.
func decodeResult(body []byte) (ImportResult, error) {
	result := NewResult()
	if len(bytes.TrimSpace(body)) == 0 {
		return ImportResult{}, errors.New("empty response body")
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return ImportResult{}, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}

// serverMessage prefers a JSON "message" or "error" field over the raw body.
func serverMessage(body []byte) string {
	var errResp map[string]any
	if json.Unmarshal(body, &errResp) == nil {
		for _, key := range []string{"message", "error"} {
			if msg, ok := errResp[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return excerpt(body)
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
