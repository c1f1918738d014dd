// Package schemarefresh builds GraphQL schema snapshots from type definition
// files and swaps them atomically when the files change.
package schemarefresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/logging"
	"cypher-graphql/internal/naming"
	"cypher-graphql/internal/observability"
	"cypher-graphql/internal/resolver"
	"cypher-graphql/internal/schema"
	"cypher-graphql/internal/schemafilter"

	"github.com/fsnotify/fsnotify"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
)

const defaultDebounce = 250 * time.Millisecond

// Reload triggers, used as metric attributes.
const (
	TriggerStartup = "startup"
	TriggerWatch   = "watch"
	TriggerManual  = "manual"
)

// Snapshot is an immutable view of one schema build.
type Snapshot struct {
	Schema        *schema.Schema
	GraphQLSchema *graphql.Schema
	Handler       http.Handler
	BuiltAt       time.Time
	Fingerprint   string
}

// Config controls schema loading and reload behavior.
type Config struct {
	TypeDefs []string
	Naming   naming.Config
	Filter   schemafilter.Config
	Executor dbexec.Executor
	Audit    resolver.AuditRecorder

	Logger           *logging.Logger
	Metrics          *observability.SchemaReloadMetrics
	TranslateMetrics *observability.TranslateMetrics

	GraphiQL bool
	// Watch enables reloads on file changes; Debounce coalesces bursts of
	// events from editors that write in several steps.
	Watch    bool
	Debounce time.Duration
}

// Manager maintains the active schema snapshot.
type Manager struct {
	cfg      Config
	logger   *logging.Logger
	debounce time.Duration

	active atomic.Pointer[Snapshot]
	// rebuild serializes builds so a watch event and a manual reload never
	// race to store an older snapshot.
	rebuild sync.Mutex
	wg      sync.WaitGroup
}

// NewManager builds the initial snapshot. Startup fails when the type
// definitions do not compile.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Executor == nil {
		return nil, errors.New("schema manager requires an executor")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	m := &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.WithFields(slog.String("component", "schema_refresh")),
		debounce: debounce,
	}
	if _, err := m.reload(ctx, TriggerStartup, true); err != nil {
		return nil, err
	}
	return m, nil
}

// Start watches the type definition files when enabled. The watcher stops
// when ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Watch {
		m.logger.Info("schema watch disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Directories are watched rather than files: editors often replace a
	// file by rename, which drops a watch on the file itself.
	files := make(map[string]struct{}, len(m.cfg.TypeDefs))
	dirs := make(map[string]struct{})
	for _, path := range m.cfg.TypeDefs {
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	m.logger.Info("watching type definitions", slog.Any("files", m.cfg.TypeDefs))
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer watcher.Close()
		m.watchLoop(ctx, watcher, files)
	}()
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, files map[string]struct{}) {
	timer := time.NewTimer(m.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema watch stopped")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if _, tracked := files[filepath.Clean(event.Name)]; !tracked {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			m.logger.Debug("type definitions changed",
				slog.String("file", event.Name),
				slog.String("op", event.Op.String()),
			)
			timer.Reset(m.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("file watcher error", slog.String("error", err.Error()))
		case <-timer.C:
			if _, err := m.reload(ctx, TriggerWatch, false); err != nil {
				m.logger.Error("schema reload failed; keeping previous schema", slog.String("error", err.Error()))
			}
		}
	}
}

// ServeHTTP dispatches to the GraphQL handler of the active snapshot.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.Handler().ServeHTTP(w, r)
}

// Handler returns the HTTP handler for the current snapshot.
func (m *Manager) Handler() http.Handler {
	snapshot := m.CurrentSnapshot()
	if snapshot == nil || snapshot.Handler == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
		})
	}
	return snapshot.Handler
}

// CurrentSnapshot returns the active snapshot.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// Fingerprint returns the fingerprint of the active snapshot, or "" before
// the first successful build.
func (m *Manager) Fingerprint() string {
	if snapshot := m.CurrentSnapshot(); snapshot != nil {
		return snapshot.Fingerprint
	}
	return ""
}

// RefreshNow rebuilds the schema even when the files are unchanged.
func (m *Manager) RefreshNow(ctx context.Context) error {
	_, err := m.reload(ctx, TriggerManual, true)
	return err
}

// Wait blocks until the watcher exits or ctx is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reload builds and installs a snapshot. Unless force is set, an unchanged
// fingerprint skips the build. A failed build leaves the active snapshot
// in place.
func (m *Manager) reload(ctx context.Context, trigger string, force bool) (bool, error) {
	m.rebuild.Lock()
	defer m.rebuild.Unlock()

	start := time.Now()
	fingerprint, err := Fingerprint(m.cfg.TypeDefs)
	if err != nil {
		m.recordReload(ctx, time.Since(start), false, trigger, 0)
		return false, err
	}
	current := m.active.Load()
	if !force && current != nil && current.Fingerprint == fingerprint {
		m.logger.Debug("type definitions unchanged", slog.String("fingerprint", fingerprint))
		return false, nil
	}

	snapshot, err := m.build(ctx, fingerprint)
	if err != nil {
		m.recordReload(ctx, time.Since(start), false, trigger, 0)
		return false, err
	}
	m.active.Store(snapshot)

	nodeTypes := len(snapshot.Schema.Nodes)
	m.recordReload(ctx, time.Since(start), true, trigger, nodeTypes)
	m.logger.Info("schema snapshot installed",
		slog.String("trigger", trigger),
		slog.Int("node_types", nodeTypes),
		slog.String("fingerprint", fingerprint),
		slog.Duration("duration", time.Since(start)),
	)
	return true, nil
}

func (m *Manager) build(ctx context.Context, fingerprint string) (*Snapshot, error) {
	result, err := BuildSchema(ctx, BuildSchemaConfig{
		TypeDefs: m.cfg.TypeDefs,
		Naming:   m.cfg.Naming,
		Filter:   m.cfg.Filter,
		Executor: m.cfg.Executor,
		Resolver: resolver.Options{
			Audit:   m.cfg.Audit,
			Metrics: m.cfg.TranslateMetrics,
			Logger:  m.cfg.Logger.Logger,
		},
		Logger: m.logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	for _, node := range result.Schema.Nodes {
		m.logger.Debug("node type compiled",
			slog.String("node", node.Name),
			slog.Int("properties", len(node.Properties)),
			slog.Int("relationships", len(node.Relationships)),
		)
	}

	graphqlSchema := result.GraphQLSchema
	return &Snapshot{
		Schema:        result.Schema,
		GraphQLSchema: &graphqlSchema,
		Handler: handler.New(&handler.Config{
			Schema:   &graphqlSchema,
			Pretty:   true,
			GraphiQL: m.cfg.GraphiQL,
		}),
		BuiltAt:     time.Now(),
		Fingerprint: fingerprint,
	}, nil
}

func (m *Manager) recordReload(ctx context.Context, duration time.Duration, success bool, trigger string, nodeTypes int) {
	if m.cfg.Metrics == nil {
		return
	}
	m.cfg.Metrics.RecordReload(context.WithoutCancel(ctx), duration, success, trigger, nodeTypes)
}
