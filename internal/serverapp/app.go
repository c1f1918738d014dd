// Package serverapp wires configuration, the graph database, schema
// snapshots and HTTP handlers into a runnable server.
package serverapp

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"cypher-graphql/internal/audit"
	"cypher-graphql/internal/config"
	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/logging"
	"cypher-graphql/internal/observability"
	"cypher-graphql/internal/schemarefresh"
)

// App owns runtime resources for the server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	metrics        *observability.Metrics

	executor   *dbexec.Neo4jExecutor
	auditStore *audit.Store

	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc

	handler    http.Handler
	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper. Resources are acquired by Init.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers the OTLP logger provider so it is flushed
// last on shutdown.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler once Init has completed.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
