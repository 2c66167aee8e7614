package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "ayb-import.toml"

// Config is the top-level ayb-import configuration.
type Config struct {
	Apply   ApplyConfig   `toml:"apply"`
	Import  ImportConfig  `toml:"import"`
	Source  SourceConfig  `toml:"source"`
	Logging LoggingConfig `toml:"logging"`
}

// ApplyConfig locates and authenticates against the remote apply endpoint.
// One of ServiceKey or JWTSecret is needed for a live run.
type ApplyConfig struct {
	URL        string `toml:"url"`
	ServiceKey string `toml:"service_key"`
	JWTSecret  string `toml:"jwt_secret"`
	Timeout    int    `toml:"timeout"`   // seconds per request
	TokenTTL   int    `toml:"token_ttl"` // seconds, signed tokens only
}

type ImportConfig struct {
	UsersBatchSize  int      `toml:"users_batch_size"`
	OpsBatchSize    int      `toml:"ops_batch_size"`
	ProgressEvery   int      `toml:"progress_every"`
	SkipAuthTables  bool     `toml:"skip_auth_tables"`
	SensitiveTables []string `toml:"sensitive_tables"`
	ExcludeTables   []string `toml:"exclude_tables"`
}

// SourceConfig holds credentials for dumps read from s3:// URIs.
type SourceConfig struct {
	S3Endpoint  string `toml:"s3_endpoint"` // host[:port]
	S3Region    string `toml:"s3_region"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3UseSSL    bool   `toml:"s3_use_ssl"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Apply: ApplyConfig{
			Timeout:  300,
			TokenTTL: 600,
		},
		Import: ImportConfig{
			UsersBatchSize:  100,
			OpsBatchSize:    200,
			ProgressEvery:   1500,
			SensitiveTables: []string{"profiles", "user_roles"},
		},
		Source: SourceConfig{
			S3Endpoint: "s3.amazonaws.com",
			S3Region:   "us-east-1",
			S3UseSSL:   true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load reads configuration with priority: defaults → ayb-import.toml → env vars → CLI flags.
func Load(configPath string, flags map[string]string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = DefaultPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values. Endpoint credentials
// are only checked for consistency here; RequireEndpoint checks presence.
func (c *Config) Validate() error {
	if c.Apply.URL != "" && !strings.HasPrefix(c.Apply.URL, "http://") && !strings.HasPrefix(c.Apply.URL, "https://") {
		return fmt.Errorf("apply.url must start with http:// or https://, got %q", c.Apply.URL)
	}
	if c.Apply.JWTSecret != "" && len(c.Apply.JWTSecret) < 32 {
		return fmt.Errorf("apply.jwt_secret must be at least 32 characters, got %d", len(c.Apply.JWTSecret))
	}
	if c.Apply.Timeout < 1 {
		return fmt.Errorf("apply.timeout must be at least 1, got %d", c.Apply.Timeout)
	}
	if c.Apply.TokenTTL < 1 {
		return fmt.Errorf("apply.token_ttl must be at least 1, got %d", c.Apply.TokenTTL)
	}
	if c.Import.UsersBatchSize < 1 {
		return fmt.Errorf("import.users_batch_size must be at least 1, got %d", c.Import.UsersBatchSize)
	}
	if c.Import.OpsBatchSize < 1 {
		return fmt.Errorf("import.ops_batch_size must be at least 1, got %d", c.Import.OpsBatchSize)
	}
	if c.Import.ProgressEvery < 1 {
		return fmt.Errorf("import.progress_every must be at least 1, got %d", c.Import.ProgressEvery)
	}
	if strings.Contains(c.Source.S3Endpoint, "://") {
		return fmt.Errorf("source.s3_endpoint must be host[:port] without a scheme, got %q", c.Source.S3Endpoint)
	}
	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", c.Logging.Level)
		}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// ErrNoEndpoint is wrapped by RequireEndpoint failures.
var ErrNoEndpoint = errors.New("apply endpoint not configured")

// RequireEndpoint reports an error unless a live run can reach the endpoint.
func (c *ApplyConfig) RequireEndpoint() error {
	if c.URL == "" {
		return fmt.Errorf("%w: apply.url is required (set it in %s, AYB_IMPORT_URL, or --url)", ErrNoEndpoint, DefaultPath)
	}
	if c.ServiceKey == "" && c.JWTSecret == "" {
		return fmt.Errorf("%w: apply.service_key or apply.jwt_secret is required (AYB_IMPORT_SERVICE_KEY or AYB_IMPORT_JWT_SECRET)", ErrNoEndpoint)
	}
	return nil
}

func (c *ApplyConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *ApplyConfig) TokenLifetime() time.Duration {
	return time.Duration(c.TokenTTL) * time.Second
}

// GenerateDefault writes a commented default ayb-import.toml to the given path.
func GenerateDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o600)
}

// ToTOML returns the config serialized as TOML.
func (c *Config) ToTOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// envInt reads an integer from the named environment variable.
// Returns an error if the value is set but not a valid integer.
func envInt(name string, dest *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", name, v)
	}
	*dest = n
	return nil
}

// splitList parses a comma-separated table list. An empty string yields an
// empty, non-nil list so that it can clear a default.
func splitList(v string) []string {
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("AYB_IMPORT_URL"); v != "" {
		cfg.Apply.URL = v
	}
	if v := os.Getenv("AYB_IMPORT_SERVICE_KEY"); v != "" {
		cfg.Apply.ServiceKey = v
	}
	if v := os.Getenv("AYB_IMPORT_JWT_SECRET"); v != "" {
		cfg.Apply.JWTSecret = v
	}
	if err := envInt("AYB_IMPORT_TIMEOUT", &cfg.Apply.Timeout); err != nil {
		return err
	}
	if err := envInt("AYB_IMPORT_TOKEN_TTL", &cfg.Apply.TokenTTL); err != nil {
		return err
	}
	if err := envInt("AYB_IMPORT_USERS_BATCH_SIZE", &cfg.Import.UsersBatchSize); err != nil {
		return err
	}
	if err := envInt("AYB_IMPORT_OPS_BATCH_SIZE", &cfg.Import.OpsBatchSize); err != nil {
		return err
	}
	if err := envInt("AYB_IMPORT_PROGRESS_EVERY", &cfg.Import.ProgressEvery); err != nil {
		return err
	}
	if v := os.Getenv("AYB_IMPORT_SKIP_AUTH_TABLES"); v != "" {
		cfg.Import.SkipAuthTables = v == "true" || v == "1"
	}
	// Set-but-empty clears the list.
	if v, ok := os.LookupEnv("AYB_IMPORT_SENSITIVE_TABLES"); ok {
		cfg.Import.SensitiveTables = splitList(v)
	}
	if v, ok := os.LookupEnv("AYB_IMPORT_EXCLUDE_TABLES"); ok {
		cfg.Import.ExcludeTables = splitList(v)
	}
	if v := os.Getenv("AYB_IMPORT_S3_ENDPOINT"); v != "" {
		cfg.Source.S3Endpoint = v
	}
	if v := os.Getenv("AYB_IMPORT_S3_REGION"); v != "" {
		cfg.Source.S3Region = v
	}
	if v := os.Getenv("AYB_IMPORT_S3_ACCESS_KEY"); v != "" {
		cfg.Source.S3AccessKey = v
	}
	if v := os.Getenv("AYB_IMPORT_S3_SECRET_KEY"); v != "" {
		cfg.Source.S3SecretKey = v
	}
	if v := os.Getenv("AYB_IMPORT_S3_USE_SSL"); v != "" {
		cfg.Source.S3UseSSL = v == "true" || v == "1"
	}
	if v := os.Getenv("AYB_IMPORT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AYB_IMPORT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

// applyFlags applies CLI overrides keyed by flag name. Empty values are ignored.
func applyFlags(cfg *Config, flags map[string]string) error {
	if flags == nil {
		return nil
	}
	if v := flags["url"]; v != "" {
		cfg.Apply.URL = v
	}
	if v := flags["service-key"]; v != "" {
		cfg.Apply.ServiceKey = v
	}
	for name, dest := range map[string]*int{
		"users-batch-size": &cfg.Import.UsersBatchSize,
		"ops-batch-size":   &cfg.Import.OpsBatchSize,
		"timeout":          &cfg.Apply.Timeout,
	} {
		v := flags[name]
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for --%s: %q is not an integer", name, v)
		}
		*dest = n
	}
	if v := flags["skip-auth-tables"]; v != "" {
		cfg.Import.SkipAuthTables = v == "true" || v == "1"
	}
	if v, ok := flags["exclude-tables"]; ok && v != "" {
		cfg.Import.ExcludeTables = splitList(v)
	}
	if v := flags["log-level"]; v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// validKeys is the complete set of dot-separated config keys.
var validKeys = map[string]bool{
	"apply.url": true, "apply.service_key": true, "apply.jwt_secret": true,
	"apply.timeout": true, "apply.token_ttl": true,
	"import.users_batch_size": true, "import.ops_batch_size": true, "import.progress_every": true,
	"import.skip_auth_tables": true, "import.sensitive_tables": true, "import.exclude_tables": true,
	"source.s3_endpoint": true, "source.s3_region": true, "source.s3_access_key": true,
	"source.s3_secret_key": true, "source.s3_use_ssl": true,
	"logging.level": true, "logging.format": true,
}

// IsValidKey returns true if the dotted key is a recognized config key.
func IsValidKey(key string) bool {
	return validKeys[key]
}

// GetValue returns the value for a dotted config key (e.g. "import.ops_batch_size").
// Secrets are returned as stored; callers displaying them should use Redacted.
func GetValue(cfg *Config, key string) (any, error) {
	switch key {
	case "apply.url":
		return cfg.Apply.URL, nil
	case "apply.service_key":
		return cfg.Apply.ServiceKey, nil
	case "apply.jwt_secret":
		return cfg.Apply.JWTSecret, nil
	case "apply.timeout":
		return cfg.Apply.Timeout, nil
	case "apply.token_ttl":
		return cfg.Apply.TokenTTL, nil
	case "import.users_batch_size":
		return cfg.Import.UsersBatchSize, nil
	case "import.ops_batch_size":
		return cfg.Import.OpsBatchSize, nil
	case "import.progress_every":
		return cfg.Import.ProgressEvery, nil
	case "import.skip_auth_tables":
		return cfg.Import.SkipAuthTables, nil
	case "import.sensitive_tables":
		return strings.Join(cfg.Import.SensitiveTables, ","), nil
	case "import.exclude_tables":
		return strings.Join(cfg.Import.ExcludeTables, ","), nil
	case "source.s3_endpoint":
		return cfg.Source.S3Endpoint, nil
	case "source.s3_region":
		return cfg.Source.S3Region, nil
	case "source.s3_access_key":
		return cfg.Source.S3AccessKey, nil
	case "source.s3_secret_key":
		return cfg.Source.S3SecretKey, nil
	case "source.s3_use_ssl":
		return cfg.Source.S3UseSSL, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.format":
		return cfg.Logging.Format, nil
	default:
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	switch key {
	case "apply.service_key", "apply.jwt_secret", "source.s3_secret_key":
		return true
	}
	return false
}

// Redacted returns a copy of the config with credentials masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Apply.ServiceKey = mask(c.Apply.ServiceKey)
	out.Apply.JWTSecret = mask(c.Apply.JWTSecret)
	out.Source.S3SecretKey = mask(c.Source.S3SecretKey)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

// SetValue reads the existing TOML file, updates a single key, and writes it back.
// Creates the file with just the key if it doesn't exist.
func SetValue(configPath, key, value string) error {
	if !IsValidKey(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	var data map[string]any
	if raw, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}
	if data == nil {
		data = make(map[string]any)
	}

	section, field, _ := strings.Cut(key, ".")
	sectionMap, ok := data[section].(map[string]any)
	if !ok {
		sectionMap = make(map[string]any)
		data[section] = sectionMap
	}
	sectionMap[field] = coerceValue(key, value)

	out, err := toml.Marshal(data)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.WriteFile(configPath, out, 0o600)
}

// coerceValue converts a string value to the appropriate Go type for TOML serialization.
func coerceValue(key, value string) any {
	switch key {
	case "import.skip_auth_tables", "source.s3_use_ssl":
		return value == "true" || value == "1"
	case "import.sensitive_tables", "import.exclude_tables":
		return splitList(value)
	case "apply.timeout", "apply.token_ttl",
		"import.users_batch_size", "import.ops_batch_size", "import.progress_every":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return value
}

const defaultTOML = `# ayb-import configuration

[apply]
# URL of the apply endpoint that receives user and data batches.
# url = "https://<project>.example.com/functions/v1/sql-import"

# Credentials. A service key is sent as the bearer token and apikey header.
# Without one, each request carries a short-lived service_role JWT signed with
# jwt_secret (at least 32 characters).
# service_key = ""
# jwt_secret = ""

# Seconds to wait for a single batch request.
timeout = 300

# Lifetime in seconds of signed service tokens.
token_ttl = 600

[import]
# Users per identity-phase request.
users_batch_size = 100

# Operations per data-phase request.
ops_batch_size = 200

# Emit progress at least every N statements.
progress_every = 1500

# Ask the endpoint to ignore auth-schema tables in data batches.
skip_auth_tables = false

# Tables whose rows are recreated by the destination and never replayed.
sensitive_tables = ["profiles", "user_roles"]

# Additional tables to leave out of the data phase.
exclude_tables = []

[source]
# Object storage used for dumps given as s3://bucket/key.
s3_endpoint = "s3.amazonaws.com"
s3_region = "us-east-1"
s3_use_ssl = true
# s3_access_key = ""
# s3_secret_key = ""

[logging]
# Log level: debug, info, warn, error.
level = "warn"

# Log format: text or json.
format = "text"
`
