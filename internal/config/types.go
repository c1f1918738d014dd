// Package config loads configuration from files, env vars, and flags, and
// validates it.
package config

import (
	"time"

	"cypher-graphql/internal/naming"
	"cypher-graphql/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Neo4j         Neo4jConfig         `mapstructure:"neo4j"`
	Server        ServerConfig        `mapstructure:"server"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// Neo4jConfig holds graph database connection parameters.
type Neo4jConfig struct {
	URI            string `mapstructure:"uri"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	// Database selects a named database; empty uses the server default.
	Database string `mapstructure:"database"`

	MaxConnectionPoolSize int `mapstructure:"max_connection_pool_size"`
	// ConnectionTimeout bounds the startup connectivity check.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

// SchemaConfig points at the type definitions served by the API.
type SchemaConfig struct {
	TypeDefs []string `mapstructure:"typedefs"`
	// Watch reloads the schema when a type definitions file changes.
	Watch          bool          `mapstructure:"watch"`
	ReloadDebounce time.Duration `mapstructure:"reload_debounce"`
	// Filter hides node types or properties from the generated API.
	Filter schemafilter.Config `mapstructure:"filter"`
}

// AuthConfig holds request authentication parameters. Exactly one of the
// shared-secret JWT verifier or OIDC may be enabled.
type AuthConfig struct {
	Required bool `mapstructure:"required"`

	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTSecretFile string        `mapstructure:"jwt_secret_file"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTAudience   string        `mapstructure:"jwt_audience"`
	RolesClaim    string        `mapstructure:"roles_claim"`
	ClockSkew     time.Duration `mapstructure:"clock_skew"`

	OIDCEnabled       bool   `mapstructure:"oidc_enabled"`
	OIDCIssuerURL     string `mapstructure:"oidc_issuer_url"`
	OIDCAudience      string `mapstructure:"oidc_audience"`
	OIDCSkipTLSVerify bool   `mapstructure:"oidc_skip_tls_verify"`
}

// JWTEnabled reports whether a shared secret is configured.
func (a *AuthConfig) JWTEnabled() bool {
	return a.JWTSecret != ""
}

// AuditConfig controls the SQL audit log of executed statements.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn_file"`
	Table   string `mapstructure:"table"`
}

// AdminConfig controls administrative endpoint exposure and authentication.
type AdminConfig struct {
	SchemaReloadEnabled bool   `mapstructure:"schema_reload_enabled"`
	AuditEnabled        bool   `mapstructure:"audit_enabled"`
	AuthToken           string `mapstructure:"auth_token"`
	AuthTokenFile       string `mapstructure:"auth_token_file"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	GraphiQLEnabled      bool          `mapstructure:"graphiql_enabled"`
	Admin                AdminConfig   `mapstructure:"admin"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout   time.Duration `mapstructure:"health_check_timeout"`

	// TLSMode is off, file or selfsigned.
	TLSMode        string `mapstructure:"tls_mode"`
	TLSCertFile    string `mapstructure:"tls_cert_file"`
	TLSKeyFile     string `mapstructure:"tls_key_file"`
	TLSAutoCertDir string `mapstructure:"tls_auto_cert_dir"`
}

// TLSEnabled reports whether the listener serves HTTPS.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSMode != "" && s.TLSMode != "off"
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`  // debug, info, warn, error
	Format         string `mapstructure:"format"` // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
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

	// OTLP holds defaults shared by every signal.
	OTLP OTLPConfig `mapstructure:"otlp"`

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

// GetTracesConfig returns the effective OTLP config for traces.
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// GetLogsConfig returns the effective OTLP config for logs.
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs lays a signal override over the shared defaults. Insecure
// always comes from the override since false cannot be told apart from unset.
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&result.Endpoint, override.Endpoint)
	pick(&result.Protocol, override.Protocol)
	pick(&result.TLSCertFile, override.TLSCertFile)
	pick(&result.TLSClientCertFile, override.TLSClientCertFile)
	pick(&result.TLSClientKeyFile, override.TLSClientKeyFile)
	pick(&result.Compression, override.Compression)
	result.Insecure = override.Insecure

	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.RetryMaxAttempts != 0 {
		result.RetryEnabled = override.RetryEnabled
		result.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return result
}
