package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"cypher-graphql/internal/config"
	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/schemarefresh"
	"cypher-graphql/internal/serverapp"

	"github.com/spf13/pflag"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")
	pflag.Bool("check", false, "Compile the type definitions and exit without connecting to Neo4j")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("cypher-graphql %s (%s)\n", Version, Commit)
		return nil
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}
	if err := reportValidation(slog.Default(), cfg.Validate()); err != nil {
		return err
	}

	if check, _ := pflag.CommandLine.GetBool("check"); check {
		return checkTypeDefs(context.Background(), cfg, os.Stdout)
	}
	return serve(cfg)
}

// reportValidation logs every warning and error and fails when any error
// is present.
func reportValidation(logger *slog.Logger, result *config.ValidationResult) error {
	for _, warn := range result.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if !result.HasErrors() {
		return nil
	}
	for _, e := range result.Errors {
		logger.Error("configuration error",
			slog.String("field", e.Field),
			slog.String("message", e.Message),
			slog.String("hint", e.Hint),
		)
	}
	return fmt.Errorf("configuration validation failed: %d error(s)", len(result.Errors))
}

func serve(cfg *config.Config) error {
	logger, loggerProvider, err := serverapp.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	if err := app.Init(context.Background()); err != nil {
		_ = app.Shutdown(context.Background())
		return err
	}
	serverErrors, err := app.Start()
	if err != nil {
		return errors.Join(err, app.Shutdown(context.Background()))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	reason, waitErr := app.WaitForStop(stop, serverErrors)
	logger.Info("shutting down server", slog.String("reason", reason))

	// Shutdown bounds itself with server.shutdown_timeout.
	if err := errors.Join(waitErr, app.Shutdown(context.Background())); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

// checkTypeDefs builds the GraphQL schema against a recording executor so
// type definition errors surface before a deploy.
func checkTypeDefs(ctx context.Context, cfg *config.Config, out io.Writer) error {
	built, err := schemarefresh.BuildSchema(ctx, schemarefresh.BuildSchemaConfig{
		TypeDefs: cfg.Schema.TypeDefs,
		Naming:   cfg.Naming,
		Filter:   cfg.Schema.Filter,
		Executor: dbexec.NewRecordingExecutor(),
		Logger:   slog.Default(),
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tMUTATION\tRESPONSE")
	for _, node := range built.Schema.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s.%s\n", node.Name, node.Names.Mutation, node.Names.ResponseType, node.Names.ResponseField)
	}
	return tw.Flush()
}
