package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cypher-graphql/internal/audit"
	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/config"
	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/logging"
	"cypher-graphql/internal/middleware"
	"cypher-graphql/internal/observability"
	"cypher-graphql/internal/resolver"
	"cypher-graphql/internal/schemarefresh"
	"cypher-graphql/internal/tlscert"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	neo4jRetryInterval    = 500 * time.Millisecond
	neo4jMaxRetryInterval = 10 * time.Second
)

type connectivityChecker interface {
	VerifyConnectivity(ctx context.Context) error
}

func connectNeo4j(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dbexec.Neo4jExecutor, error) {
	executor, err := dbexec.NewNeo4jExecutor(dbexec.Neo4jConfig{
		URI:                   cfg.Neo4j.URI,
		Username:              cfg.Neo4j.User,
		Password:              cfg.Neo4j.Password,
		Database:              cfg.Neo4j.Database,
		MaxConnectionPoolSize: cfg.Neo4j.MaxConnectionPoolSize,
		ConnectionTimeout:     cfg.Neo4j.ConnectionTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := waitForNeo4j(ctx, cfg.Neo4j.ConnectionTimeout, logger, executor); err != nil {
		_ = executor.Close(context.Background())
		return nil, err
	}
	logger.Info("connected to Neo4j",
		slog.String("uri", cfg.Neo4j.URI),
		slog.Int("max_connection_pool_size", cfg.Neo4j.MaxConnectionPoolSize),
	)
	return executor, nil
}

// waitForNeo4j retries with exponential backoff until timeout elapses. A
// zero timeout tries exactly once.
func waitForNeo4j(ctx context.Context, timeout time.Duration, logger *logging.Logger, checker connectivityChecker) error {
	if timeout <= 0 {
		return checker.VerifyConnectivity(ctx)
	}

	deadline := time.Now().Add(timeout)
	interval := neo4jRetryInterval
	for attempt := 1; ; attempt++ {
		err := checker.VerifyConnectivity(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("neo4j connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("neo4j not available after %v: %w", timeout, err)
		}

		logger.Warn("neo4j not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, neo4jMaxRetryInterval)
	}
}

// openAuditStore returns nil when auditing is disabled.
func openAuditStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*audit.Store, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	dsn, err := cfg.Audit.EffectiveDSN()
	if err != nil {
		return nil, err
	}
	store, err := audit.Open(audit.Options{
		DSN:     dsn,
		Table:   cfg.Audit.Table,
		Tracing: cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureTable(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("mutation audit log enabled", slog.String("table", cfg.Audit.Table))
	return store, nil
}

func startSchemaManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, executor dbexec.Executor, auditRecorder resolver.AuditRecorder, metrics *observability.Metrics) (*schemarefresh.Manager, context.CancelFunc, error) {
	managerCfg := schemarefresh.Config{
		TypeDefs: cfg.Schema.TypeDefs,
		Naming:   cfg.Naming,
		Filter:   cfg.Schema.Filter,
		Executor: executor,
		Audit:    auditRecorder,
		Logger:   logger,
		GraphiQL: cfg.Server.GraphiQLEnabled,
		Watch:    cfg.Schema.Watch,
		Debounce: cfg.Schema.ReloadDebounce,
	}
	if metrics != nil {
		managerCfg.Metrics = metrics.Reload
		managerCfg.TranslateMetrics = metrics.Translate
	}

	manager, err := schemarefresh.NewManager(ctx, managerCfg)
	if err != nil {
		return nil, nil, err
	}

	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	if err := manager.Start(schemaCtx); err != nil {
		schemaCancel()
		return nil, nil, err
	}
	return manager, schemaCancel, nil
}

// buildTokenVerifier returns nil when neither JWT nor OIDC is configured.
func buildTokenVerifier(ctx context.Context, cfg *config.Config, logger *logging.Logger) (middleware.TokenVerifier, error) {
	switch {
	case cfg.Auth.OIDCEnabled:
		v, err := middleware.NewOIDCVerifier(ctx, middleware.OIDCConfig{
			IssuerURL:     cfg.Auth.OIDCIssuerURL,
			Audience:      cfg.Auth.OIDCAudience,
			RolesClaim:    cfg.Auth.RolesClaim,
			ClockSkew:     cfg.Auth.ClockSkew,
			SkipTLSVerify: cfg.Auth.OIDCSkipTLSVerify,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("OIDC authentication enabled", slog.String("issuer", cfg.Auth.OIDCIssuerURL))
		return v, nil
	case cfg.Auth.JWTEnabled():
		v, err := auth.NewJWTVerifier(auth.JWTConfig{
			Secret:     cfg.Auth.JWTSecret,
			Issuer:     cfg.Auth.JWTIssuer,
			Audience:   cfg.Auth.JWTAudience,
			RolesClaim: cfg.Auth.RolesClaim,
			ClockSkew:  cfg.Auth.ClockSkew,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("JWT authentication enabled", slog.String("roles_claim", cfg.Auth.RolesClaim))
		return middleware.SharedSecretVerifier{JWT: v}, nil
	default:
		logger.Warn("no token verification configured; all callers are anonymous")
		return nil, nil
	}
}

// buildGraphQLHandler assembles the /graphql chain:
//
//	logging -> auth -> request analysis -> metrics -> tracing -> schema snapshot
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, manager http.Handler, verifier middleware.TokenVerifier, metrics *observability.Metrics) http.Handler {
	handler := middleware.GraphQLTracingMiddleware()(manager)
	if metrics != nil && metrics.GraphQL != nil {
		handler = middleware.GraphQLMetricsMiddleware(metrics.GraphQL)(handler)
	}
	handler = middleware.GraphQLRequestMiddleware()(handler)
	handler = middleware.AuthMiddleware(middleware.AuthConfig{
		Verifier: verifier,
		Required: cfg.Auth.Required,
	})(handler)
	return middleware.LoggingMiddleware(logger)(handler)
}

// buildAdminHandler returns nil when no admin endpoint is enabled. Admin
// routes use the shared admin token when configured, otherwise any caller
// the token verifier authenticates.
func buildAdminHandler(cfg *config.Config, logger *logging.Logger, manager snapshotSource, store auditReader, verifier middleware.TokenVerifier) (http.Handler, error) {
	admin := cfg.Server.Admin
	mux := http.NewServeMux()
	routes := 0
	if admin.SchemaReloadEnabled && manager != nil {
		mux.HandleFunc("/admin/reload-schema", schemaReloadHandler(manager))
		routes++
	}
	if admin.AuditEnabled {
		if store == nil {
			logger.Warn("admin audit endpoint requested but audit log is disabled")
		} else {
			mux.HandleFunc("/admin/audit", auditListHandler(store))
			routes++
		}
	}
	if routes == 0 {
		return nil, nil
	}

	var handler http.Handler = mux
	switch {
	case strings.TrimSpace(admin.AuthToken) != "":
		tokenAuth, err := middleware.AdminTokenAuthMiddleware(admin.AuthToken)
		if err != nil {
			return nil, err
		}
		handler = tokenAuth(handler)
		logger.Info("admin endpoints require the admin token")
	case verifier != nil:
		handler = middleware.AuthMiddleware(middleware.AuthConfig{Verifier: verifier, Required: true})(handler)
		logger.Info("admin endpoints require an authenticated caller")
	default:
		logger.Warn("admin endpoints are not authenticated; set server.admin.auth_token")
	}
	return middleware.LoggingMiddleware(logger)(handler), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, checker connectivityChecker, manager fingerprintSource, graphqlHandler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/health", healthHandler(checker, manager, cfg.Server.HealthCheckTimeout))

	if adminHandler != nil {
		mux.Handle("/admin/", adminHandler)
	}
	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	return middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.Server.CORSEnabled,
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   cfg.Server.CORSAllowedMethods,
		AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
		AllowCredentials: cfg.Server.CORSAllowCredentials,
		MaxAge:           cfg.Server.CORSMaxAge,
	})(handler)
}

func httpRootSpanName(r *http.Request) string {
	if r == nil || r.URL == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/graphql", "/health", "/metrics", "/admin/reload-schema", "/admin/audit":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, serverAddr string) (*http.Server, error) {
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if !cfg.Server.TLSEnabled() {
		return srv, nil
	}

	source, err := tlscert.Load(tlscert.Config{
		Mode:     tlscert.Mode(cfg.Server.TLSMode),
		CertFile: cfg.Server.TLSCertFile,
		KeyFile:  cfg.Server.TLSKeyFile,
		CertDir:  cfg.Server.TLSAutoCertDir,
	}, logger.Logger)
	if err != nil {
		return nil, err
	}
	srv.TLSConfig = source.TLSConfig
	logger.Info("TLS enabled",
		slog.String("mode", cfg.Server.TLSMode),
		slog.String("cert_source", source.Description),
	)
	return srv, nil
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server) chan error {
	serverErrors := make(chan error, 1)
	tlsEnabled := cfg.Server.TLSEnabled()
	go func() {
		attrs := []any{
			slog.String("address", srv.Addr),
			slog.Bool("tls_enabled", tlsEnabled),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.Any("typedefs", cfg.Schema.TypeDefs),
			slog.Bool("schema_watch", cfg.Schema.Watch),
			slog.Bool("graphiql", cfg.Server.GraphiQLEnabled),
		}
		if cfg.Observability.MetricsEnabled {
			attrs = append(attrs, slog.String("metrics_endpoint", "/metrics"))
		}
		logger.Info("server starting", attrs...)

		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}
