package config

import (
	"time"

	"salesql/internal/cache"
	"salesql/internal/dbexec"
	"salesql/internal/llm"
	"salesql/internal/salesmodel"
	"salesql/internal/schemafilter"
	"salesql/internal/summarize"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Sessions      SessionsConfig      `mapstructure:"sessions"`
	LLM           llm.Config          `mapstructure:"llm"`
	Planner       PlannerConfig       `mapstructure:"planner"`
	Entity        EntityConfig        `mapstructure:"entity"`
	Executor      dbexec.Config       `mapstructure:"executor"`
	Summary       summarize.Config    `mapstructure:"summary"`
	SchemaFilters schemafilter.Config `mapstructure:"schema_filters"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig holds Postgres connection parameters.
type DatabaseConfig struct {
	// ConnectionString is a lib/pq connection string, either a
	// postgres:// URL or key=value pairs. When set it overrides the
	// discrete fields below.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is read into ConnectionString. "@-" reads stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"sslmode"`

	// Schema is the Postgres schema holding the sales tables.
	Schema string `mapstructure:"schema"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// AuthConfig holds authentication parameters.
type AuthConfig struct {
	OIDCEnabled   bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience  string        `mapstructure:"oidc_audience"`
	OIDCClockSkew time.Duration `mapstructure:"oidc_clock_skew"`
	OIDCCAFile    string        `mapstructure:"oidc_ca_file"`
	// TablesClaim names the claim holding the caller's table allowlist.
	TablesClaim string `mapstructure:"tables_claim"`
	// RouteClaim names the claim pinning the caller to one route.
	RouteClaim string `mapstructure:"route_claim"`
}

// AdminConfig controls the admin endpoints.
type AdminConfig struct {
	CacheInvalidateEnabled bool   `mapstructure:"cache_invalidate_enabled"`
	AuthToken              string `mapstructure:"auth_token"`
	AuthTokenFile          string `mapstructure:"auth_token_file"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	MaxRequestBytes      int64         `mapstructure:"max_request_bytes"`
	AskTimeout           time.Duration `mapstructure:"ask_timeout"`
	Auth                 AuthConfig    `mapstructure:"auth"`
	Admin                AdminConfig   `mapstructure:"admin"`
	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int           `mapstructure:"rate_limit_burst"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout   time.Duration `mapstructure:"health_check_timeout"`

	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

// TLSEnabled reports whether the server listens with TLS.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" || s.TLSKeyFile != ""
}

// CacheConfig holds the distinct-value cache settings.
type CacheConfig struct {
	Backend       string            `mapstructure:"backend"`
	TTL           time.Duration     `mapstructure:"ttl"`
	MaxEntries    int               `mapstructure:"max_entries"`
	DistinctLimit int               `mapstructure:"distinct_limit"`
	Redis         cache.RedisConfig `mapstructure:"redis"`
}

// Options returns the store options for this cache.
func (c CacheConfig) Options() cache.Options {
	return cache.Options{Backend: c.Backend, MaxEntries: c.MaxEntries, Redis: c.Redis}
}

// SessionsConfig holds session route memory settings. The redis backend
// shares the cache redis connection settings.
type SessionsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// PlannerConfig holds query planning settings.
type PlannerConfig struct {
	Tables            salesmodel.Tables `mapstructure:"tables"`
	DefaultRoute      string            `mapstructure:"default_route"`
	DefaultTopN       int               `mapstructure:"default_top_n"`
	RelationshipsFile string            `mapstructure:"relationships_file"`
}

// EntityConfig holds entity matching settings.
type EntityConfig struct {
	ShortTokenRatio  float64 `mapstructure:"short_token_ratio"`
	LongTokenRatio   float64 `mapstructure:"long_token_ratio"`
	ProbeConcurrency int     `mapstructure:"probe_concurrency"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// OTLP holds defaults for every signal; Traces and Logs override them.
	OTLP   OTLPConfig  `mapstructure:"otlp"`
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// TracesConfig returns the effective OTLP config for traces.
func (c *ObservabilityConfig) TracesConfig() OTLPConfig {
	if c.Traces != nil {
		return c.OTLP.merge(*c.Traces)
	}
	return c.OTLP
}

// LogsConfig returns the effective OTLP config for logs.
func (c *ObservabilityConfig) LogsConfig() OTLPConfig {
	if c.Logs != nil {
		return c.OTLP.merge(*c.Logs)
	}
	return c.OTLP
}

// merge lays the non-empty fields of override over o. Insecure always comes
// from the override since a false value cannot be told apart from unset.
func (o OTLPConfig) merge(override OTLPConfig) OTLPConfig {
	out := o
	if override.Endpoint != "" {
		out.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		out.Protocol = override.Protocol
	}
	out.Insecure = override.Insecure
	if override.TLSCertFile != "" {
		out.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		out.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		out.TLSClientKeyFile = override.TLSClientKeyFile
	}
	if override.Headers != nil {
		out.Headers = make(map[string]string, len(o.Headers)+len(override.Headers))
		for k, v := range o.Headers {
			out.Headers[k] = v
		}
		for k, v := range override.Headers {
			out.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.Compression != "" {
		out.Compression = override.Compression
	}
	if override.RetryMaxAttempts != 0 {
		out.RetryEnabled = override.RetryEnabled
		out.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return out
}
