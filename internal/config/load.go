package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment override, e.g. CYGQL_NEO4J_URI.
const EnvPrefix = "CYGQL"

var defineFlagsOnce sync.Once

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

// Load reads configuration with the following precedence:
// 1. Explicit overrides (secret files, interactive prompt)
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	defineFlagsOnce.Do(func() { DefineFlags(pflag.CommandLine) })
	if !pflag.Parsed() {
		pflag.Parse()
	}
	return LoadFlagSet(pflag.CommandLine)
}

// LoadFlagSet is Load for an already parsed flag set.
func LoadFlagSet(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("cypher-graphql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/cypher-graphql/")
		v.AddConfigPath("$HOME/.cypher-graphql")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlags(v, fs)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}
	if err := resolveSecrets(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// secretSource maps a value key to the file key that may supply it.
type secretSource struct {
	value, file, what string
	required         bool
}

var secretSources = []secretSource{
	{value: "neo4j.password", file: "neo4j.password_file", what: "neo4j password"},
	{value: "auth.jwt_secret", file: "auth.jwt_secret_file", what: "JWT secret", required: true},
	{value: "audit.dsn", file: "audit.dsn_file", what: "audit DSN", required: true},
	{value: "server.admin.auth_token", file: "server.admin.auth_token_file", what: "admin auth token", required: true},
}

func resolveSecrets(v *viper.Viper) error {
	for _, src := range secretSources {
		path := v.GetString(src.file)
		if v.GetString(src.value) != "" || path == "" {
			continue
		}
		secret, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s file: %w", src.what, err)
		}
		if secret == "" && src.required {
			return fmt.Errorf("%s file %q is empty", src.what, path)
		}
		v.Set(src.value, secret)
	}

	if v.GetString("neo4j.password") == "" && v.GetBool("neo4j.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("neo4j.password", pwd)
	}
	return nil
}

// bindChangedFlags copies only explicitly set flags into viper so that
// unset flags do not shadow env or file values.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}
		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// DefineFlags registers every flag on fs using canonical dotted keys.
func DefineFlags(fs *pflag.FlagSet) {
	fs.String("neo4j.uri", "", "Neo4j connection URI (neo4j://host:7687)")
	fs.String("neo4j.user", "", "Neo4j user")
	fs.String("neo4j.password", "", "Neo4j password")
	fs.String("neo4j.password_file", "", "Path to file containing the Neo4j password (use @- for stdin)")
	fs.Bool("neo4j.password_prompt", false, "Prompt for the Neo4j password securely")
	fs.String("neo4j.database", "", "Neo4j database name (empty for the server default)")
	fs.Int("neo4j.max_connection_pool_size", 0, "Maximum driver connection pool size")
	fs.Duration("neo4j.connection_timeout", 0, "Startup connectivity timeout")

	fs.Int("server.port", 0, "HTTP server port")
	fs.Bool("server.graphiql_enabled", false, "Serve GraphiQL at /graphql")
	fs.Bool("server.admin.schema_reload_enabled", false, "Enable POST /admin/reload-schema")
	fs.Bool("server.admin.audit_enabled", false, "Enable GET /admin/audit")
	fs.String("server.admin.auth_token", "", "Bearer token for admin endpoints")
	fs.String("server.admin.auth_token_file", "", "Path to file containing the admin token (use @- for stdin)")
	fs.Bool("server.cors_enabled", false, "Enable CORS")
	fs.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins")
	fs.Duration("server.shutdown_timeout", 0, "Graceful shutdown timeout")
	fs.String("server.tls_mode", "", "TLS mode: off, file or selfsigned")
	fs.String("server.tls_cert_file", "", "TLS certificate (tls_mode=file)")
	fs.String("server.tls_key_file", "", "TLS private key (tls_mode=file)")

	fs.StringSlice("schema.typedefs", nil, "Type definition files (YAML)")
	fs.Bool("schema.watch", false, "Reload type definitions when the files change")

	fs.Bool("auth.required", false, "Reject requests without a valid bearer token")
	fs.String("auth.jwt_secret", "", "HS256 shared secret for bearer tokens")
	fs.String("auth.jwt_secret_file", "", "Path to file containing the HS256 secret (use @- for stdin)")
	fs.String("auth.jwt_issuer", "", "Expected JWT issuer")
	fs.String("auth.jwt_audience", "", "Expected JWT audience")
	fs.String("auth.roles_claim", "", "Dotted claim path holding the caller roles")
	fs.Bool("auth.oidc_enabled", false, "Verify bearer tokens against an OIDC issuer")
	fs.String("auth.oidc_issuer_url", "", "OIDC issuer URL")
	fs.String("auth.oidc_audience", "", "OIDC audience")

	fs.Bool("audit.enabled", false, "Record executed statements in a MySQL audit table")
	fs.String("audit.dsn", "", "MySQL DSN for the audit store")
	fs.String("audit.dsn_file", "", "Path to file containing the audit DSN (use @- for stdin)")
	fs.String("audit.table", "", "Audit table name")

	fs.String("observability.service_name", "", "Service name reported to OpenTelemetry")
	fs.Bool("observability.metrics_enabled", false, "Expose Prometheus metrics at /metrics")
	fs.Bool("observability.tracing_enabled", false, "Export traces over OTLP")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio (0..1)")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Export logs over OTLP")
	fs.String("observability.otlp.endpoint", "", "OTLP collector endpoint")
	fs.String("observability.otlp.protocol", "", "OTLP protocol (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Disable TLS to the collector")

	fs.StringP("config", "c", "", "Config file path")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.password_file", "")
	v.SetDefault("neo4j.password_prompt", false)
	v.SetDefault("neo4j.database", "")
	v.SetDefault("neo4j.max_connection_pool_size", 50)
	v.SetDefault("neo4j.connection_timeout", 30*time.Second)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.graphiql_enabled", false)
	v.SetDefault("server.admin.schema_reload_enabled", false)
	v.SetDefault("server.admin.audit_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)
	v.SetDefault("server.tls_mode", "off")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.tls_auto_cert_dir", ".tls")

	v.SetDefault("schema.typedefs", []string{"typedefs.yaml"})
	v.SetDefault("schema.watch", false)
	v.SetDefault("schema.reload_debounce", 250*time.Millisecond)

	v.SetDefault("auth.required", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_secret_file", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.jwt_audience", "")
	v.SetDefault("auth.roles_claim", "roles")
	v.SetDefault("auth.clock_skew", time.Minute)
	v.SetDefault("auth.oidc_enabled", false)
	v.SetDefault("auth.oidc_issuer_url", "")
	v.SetDefault("auth.oidc_audience", "")
	v.SetDefault("auth.oidc_skip_tls_verify", false)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.dsn", "")
	v.SetDefault("audit.dsn_file", "")
	v.SetDefault("audit.table", "cypher_audit")

	v.SetDefault("observability.service_name", "cypher-graphql")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 5)

	v.SetDefault("naming.plural_overrides", map[string]string{})
}

// promptPassword prompts for a password without echoing to the terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter Neo4j password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// readSecretFile reads a trimmed secret from path, or from stdin for "@-".
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error
	if path == "@-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	var configured []string
	for _, src := range secretSources {
		if strings.TrimSpace(v.GetString(src.file)) == "@-" {
			configured = append(configured, src.file)
		}
	}
	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
