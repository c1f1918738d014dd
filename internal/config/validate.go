package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"cypher-graphql/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns the combined error message, or "" when valid.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration. Errors are fatal; warnings are logged
// by the caller.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Neo4j.validate(result)
	c.Server.validate(result)
	c.Schema.validate(result)
	c.Auth.validate(result)
	c.Audit.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)

	if c.Server.Admin.AuditEnabled && !c.Audit.Enabled {
		result.warn("server.admin.audit_enabled", "audit endpoint is enabled but audit.enabled is false",
			"enable audit.enabled or disable the endpoint")
	}
	return result
}

func (n *Neo4jConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(n.URI) == "" {
		result.fail("neo4j.uri", "uri is required", "")
	} else if parsed, err := url.Parse(n.URI); err != nil || parsed.Host == "" {
		result.fail("neo4j.uri", fmt.Sprintf("invalid uri %q", n.URI), "use scheme://host:port, e.g. neo4j://localhost:7687")
	} else {
		switch parsed.Scheme {
		case "neo4j", "neo4j+s", "neo4j+ssc", "bolt", "bolt+s", "bolt+ssc":
		default:
			result.fail("neo4j.uri", fmt.Sprintf("unsupported scheme %q", parsed.Scheme),
				"valid schemes are: neo4j, neo4j+s, neo4j+ssc, bolt, bolt+s, bolt+ssc")
		}
	}
	if n.MaxConnectionPoolSize < 0 {
		result.fail("neo4j.max_connection_pool_size", "max_connection_pool_size cannot be negative", "")
	}
	if n.ConnectionTimeout < 0 {
		result.fail("neo4j.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if n.Password != "" && n.PasswordFile != "" {
		result.warn("neo4j.password_file", "password is set; password_file is ignored", "")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if (s.Admin.SchemaReloadEnabled || s.Admin.AuditEnabled) && s.Admin.AuthToken == "" {
		result.warn("server.admin.auth_token", "admin endpoints are enabled without an auth token",
			"set server.admin.auth_token or server.admin.auth_token_file")
	}
	if s.CORSEnabled && len(s.CORSAllowedOrigins) == 0 {
		result.warn("server.cors_allowed_origins", "CORS is enabled but no origins are allowed", "")
	}
	if s.CORSAllowCredentials {
		for _, origin := range s.CORSAllowedOrigins {
			if origin == "*" {
				result.fail("server.cors_allow_credentials", "credentials cannot be combined with a wildcard origin",
					"list explicit origins")
				break
			}
		}
	}
	if s.CORSMaxAge < 0 {
		result.fail("server.cors_max_age", "cors_max_age cannot be negative", "")
	}
	if s.ShutdownTimeout <= 0 {
		result.fail("server.shutdown_timeout", "shutdown_timeout must be positive", "")
	}
	switch s.TLSMode {
	case "", "off":
	case "file":
		if s.TLSCertFile == "" || s.TLSKeyFile == "" {
			result.fail("server.tls_cert_file", "tls_mode=file requires tls_cert_file and tls_key_file", "")
		}
	case "selfsigned":
		result.warn("server.tls_mode", "self-signed certificates are for development only", "use tls_mode=file in production")
	default:
		result.fail("server.tls_mode", fmt.Sprintf("unknown tls_mode %q", s.TLSMode), "valid modes: off, file, selfsigned")
	}
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	if len(s.TypeDefs) == 0 {
		result.fail("schema.typedefs", "at least one type definitions file is required", "")
	}
	for i, path := range s.TypeDefs {
		if strings.TrimSpace(path) == "" {
			result.fail(fmt.Sprintf("schema.typedefs[%d]", i), "path cannot be empty", "")
		}
	}
	if s.ReloadDebounce < 0 {
		result.fail("schema.reload_debounce", "reload_debounce cannot be negative", "")
	}
	if err := s.Filter.Validate(); err != nil {
		result.fail("schema.filter", err.Error(), "patterns use path.Match syntax, e.g. Audit*")
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.JWTEnabled() && a.OIDCEnabled {
		result.fail("auth", "jwt_secret and oidc_enabled are mutually exclusive", "configure one verifier")
	}
	if a.OIDCEnabled {
		if a.OIDCIssuerURL == "" {
			result.fail("auth.oidc_issuer_url", "oidc_issuer_url is required when OIDC is enabled", "")
		} else if parsed, err := url.Parse(a.OIDCIssuerURL); err != nil || parsed.Scheme != "https" {
			result.fail("auth.oidc_issuer_url", "oidc_issuer_url must be an https URL", "")
		}
		if a.OIDCAudience == "" {
			result.fail("auth.oidc_audience", "oidc_audience is required when OIDC is enabled", "")
		}
		if a.OIDCSkipTLSVerify {
			result.warn("auth.oidc_skip_tls_verify", "TLS verification is disabled for the OIDC issuer", "use only in development")
		}
	}
	if a.JWTEnabled() && len(a.JWTSecret) < 32 {
		result.warn("auth.jwt_secret", "shared secret is shorter than 32 bytes", "")
	}
	if a.Required && !a.JWTEnabled() && !a.OIDCEnabled {
		result.fail("auth.required", "auth is required but no verifier is configured",
			"set auth.jwt_secret or enable OIDC")
	}
	if a.ClockSkew < 0 {
		result.fail("auth.clock_skew", "clock_skew cannot be negative", "")
	}
}

func (a *AuditConfig) validate(result *ValidationResult) {
	if !a.Enabled {
		return
	}
	if _, err := a.EffectiveDSN(); err != nil {
		result.fail("audit.dsn", err.Error(), "use user:pass@tcp(host:3306)/db")
	}
	if strings.TrimSpace(a.Table) == "" {
		result.fail("audit.table", "table cannot be empty", "")
	}
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for singular, plural := range cfg.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.fail("naming.plural_overrides", "override keys and values cannot be empty", "")
			continue
		}
		if strings.ContainsAny(plural, " -.") {
			result.fail("naming.plural_overrides."+singular, fmt.Sprintf("plural %q is not a valid identifier", plural), "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
