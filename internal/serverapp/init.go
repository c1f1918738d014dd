package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"cypher-graphql/internal/audit"
	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/observability"
	"cypher-graphql/internal/resolver"
	"cypher-graphql/internal/schemarefresh"
)

// telemetry groups the providers created from observability config.
type telemetry struct {
	meters  *observability.MeterProvider
	tracers *observability.TracerProvider
	metrics *observability.Metrics
}

// backends groups the stateful dependencies the GraphQL handler needs.
type backends struct {
	executor *dbexec.Neo4jExecutor
	store    *audit.Store
	// recorder and lister stay nil interfaces when the store is disabled.
	recorder     resolver.AuditRecorder
	lister       auditReader
	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc
}

// Init acquires all runtime resources. On failure everything acquired so
// far is released again. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cleanup cleanupStack
	ok := false
	defer func() {
		if !ok {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(c context.Context) error {
			return a.loggerProvider.Shutdown(c, a.logger.Logger)
		})
	}

	tel, err := a.initTelemetry(&cleanup)
	if err != nil {
		return err
	}
	be, err := a.initBackends(ctx, &cleanup, tel.metrics)
	if err != nil {
		return err
	}

	verifier, err := buildTokenVerifier(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize authentication: %w", err)
	}
	adminHandler, err := buildAdminHandler(a.cfg, a.logger, be.manager, be.lister, verifier)
	if err != nil {
		return fmt.Errorf("failed to initialize admin handler: %w", err)
	}
	graphqlHandler := buildGraphQLHandler(a.cfg, a.logger, be.manager, verifier, tel.metrics)
	mux := buildRouter(a.cfg, a.logger, be.executor, be.manager, graphqlHandler, adminHandler, tel.meters)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv, err := buildServer(a.cfg, a.logger, handler, addr)
	if err != nil {
		return fmt.Errorf("failed to configure HTTP server: %w", err)
	}
	cleanup.push("HTTP server", srv.Shutdown)

	a.stateMu.Lock()
	a.meterProvider, a.tracerProvider, a.metrics = tel.meters, tel.tracers, tel.metrics
	a.executor, a.auditStore = be.executor, be.store
	a.manager, a.schemaCancel = be.manager, be.schemaCancel
	a.handler, a.serverAddr, a.srv = handler, addr, srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	ok = true
	return nil
}

func (a *App) initTelemetry(cleanup *cleanupStack) (telemetry, error) {
	var tel telemetry

	meters, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return tel, fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meters != nil {
		cleanup.push("meter provider", func(c context.Context) error {
			return meters.Shutdown(c, a.logger.Logger)
		})
	}

	tracers, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return tel, fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracers != nil {
		cleanup.push("tracer provider", func(c context.Context) error {
			return tracers.Shutdown(c, a.logger.Logger)
		})
	}

	tel.meters, tel.tracers, tel.metrics = meters, tracers, metrics
	return tel, nil
}

// initBackends connects to Neo4j, opens the audit store and installs the
// first schema snapshot, in that order.
func (a *App) initBackends(ctx context.Context, cleanup *cleanupStack, metrics *observability.Metrics) (backends, error) {
	var be backends

	a.logger.Info("connecting to Neo4j",
		slog.String("uri", a.cfg.Neo4j.URI),
		slog.String("database", a.cfg.Neo4j.Database),
	)
	executor, err := connectNeo4j(ctx, a.cfg, a.logger)
	if err != nil {
		return be, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	cleanup.push("neo4j driver", executor.Close)
	be.executor = executor

	store, err := openAuditStore(ctx, a.cfg, a.logger)
	if err != nil {
		return be, fmt.Errorf("failed to initialize audit store: %w", err)
	}
	if store != nil {
		be.store, be.recorder, be.lister = store, store, store
		cleanup.push("audit store", func(context.Context) error { return store.Close() })
	}

	manager, cancel, err := startSchemaManager(ctx, a.cfg, a.logger, executor, be.recorder, metrics)
	if err != nil {
		return be, fmt.Errorf("failed to initialize schema manager: %w", err)
	}
	cleanup.push("schema manager", func(c context.Context) error {
		cancel()
		return manager.Wait(c)
	})
	be.manager, be.schemaCancel = manager, cancel
	return be, nil
}
