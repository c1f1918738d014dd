package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cypher-graphql/internal/naming"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadFlagSet(newFlagSet(t))
	require.NoError(t, err)
	return cfg
}

func errorFields(r *ValidationResult) []string {
	fields := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"empty uri", func(c *Config) { c.Neo4j.URI = "" }, "neo4j.uri"},
		{"http uri", func(c *Config) { c.Neo4j.URI = "http://localhost:7474" }, "neo4j.uri"},
		{"no typedefs", func(c *Config) { c.Schema.TypeDefs = nil }, "schema.typedefs"},
		{"both verifiers", func(c *Config) {
			c.Auth.JWTSecret = "x"
			c.Auth.OIDCEnabled = true
			c.Auth.OIDCIssuerURL = "https://issuer"
			c.Auth.OIDCAudience = "api"
		}, "auth"},
		{"oidc without issuer", func(c *Config) {
			c.Auth.OIDCEnabled = true
			c.Auth.OIDCAudience = "api"
		}, "auth.oidc_issuer_url"},
		{"required without verifier", func(c *Config) { c.Auth.Required = true }, "auth.required"},
		{"audit bad dsn", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.DSN = "not a dsn"
		}, "audit.dsn"},
		{"bad log level", func(c *Config) { c.Observability.Logging.Level = "loud" }, "observability.logging.level"},
		{"bad sample ratio", func(c *Config) { c.Observability.TraceSampleRatio = 2 }, "observability.trace_sample_ratio"},
		{"bad protocol", func(c *Config) { c.Observability.OTLP.Protocol = "udp" }, "observability.otlp.protocol"},
		{"credentials with wildcard", func(c *Config) {
			c.Server.CORSAllowCredentials = true
			c.Server.CORSAllowedOrigins = []string{"*"}
		}, "server.cors_allow_credentials"},
		{"tls file without key", func(c *Config) {
			c.Server.TLSMode = "file"
			c.Server.TLSCertFile = "server.crt"
		}, "server.tls_cert_file"},
		{"unknown tls mode", func(c *Config) { c.Server.TLSMode = "acme" }, "server.tls_mode"},
		{"bad plural", func(c *Config) {
			c.Naming = naming.Config{PluralOverrides: map[string]string{"Person": "the people"}}
		}, "naming.plural_overrides.Person"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			result := cfg.Validate()
			require.True(t, result.HasErrors())
			assert.Contains(t, errorFields(result), tt.field)
			assert.NotEmpty(t, result.Error())
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Admin.SchemaReloadEnabled = true
	cfg.Server.Admin.AuditEnabled = true
	cfg.Auth.JWTSecret = "short"

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())

	var fields []string
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.Contains(t, fields, "server.admin.auth_token")
	assert.Contains(t, fields, "server.admin.audit_enabled")
	assert.Contains(t, fields, "auth.jwt_secret")
}

func TestValidationError_Format(t *testing.T) {
	assert.Equal(t, "a: b", ValidationError{Field: "a", Message: "b"}.Error())
	assert.Equal(t, "a: b (hint: c)", ValidationError{Field: "a", Message: "b", Hint: "c"}.Error())
}
