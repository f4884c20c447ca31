// Package internal provides the App struct that wires all components of the
// todo application together and initializes the CLI layer.
package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valter-silva-au/todo/internal/cli"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/internal/integration"
	"github.com/valter-silva-au/todo/internal/observability"
	"github.com/valter-silva-au/todo/internal/storage"
	"github.com/valter-silva-au/todo/internal/web"
	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/zap"
)

// localUser is the API user when no tokens and no user id are configured.
const localUser = "local"

// App holds all service dependencies for the todo application.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.GlobalConfig
	Logger    *zap.Logger

	// Storage layer
	Persister storage.TaskPersister
	Previews  core.PreviewRegistry

	// Core services
	Store     core.TaskStore
	Reminders core.ReminderScheduler

	// Integration services
	Voice integration.VoiceCapture

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier

	stores      *storeRegistry
	unsubscribe func()
}

// NewApp creates and wires all components of the todo application. basePath
// is the data directory holding .todoconfig, tasks.yaml and the event log.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	app.Logger, err = observability.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	// --- Observability ---
	eventLogPath := filepath.Join(basePath, ".todo_events.jsonl")
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: run without the event log and its metrics.
		app.Logger.Warn("event log disabled", zap.String("path", eventLogPath), zap.Error(err))
		app.EventLog = nil
	}
	var evtAdapter core.EventLogger
	if app.EventLog != nil {
		evtAdapter = &eventLogAdapter{log: app.EventLog}
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	thresholds := observability.DefaultAlertThresholds()
	thresholds.DueSoonDays = cfg.Alerts.DueSoonDays
	app.AlertEngine = observability.NewAlertEngine(app.EventLog, thresholds)

	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	} else {
		app.Notifier = observability.NewWriterNotifier(os.Stdout)
	}

	// --- Storage layer ---
	app.Previews = core.NewPreviewRegistry()
	opts := core.StoreOptions{
		Codec:           core.NewAttachmentCodec(app.Previews),
		Events:          evtAdapter,
		Logger:          app.Logger,
		DefaultPriority: cfg.DefaultPriority,
	}

	switch cfg.Storage.Backend {
	case models.BackendSQLite:
		dbPath := sqlitePath(basePath, cfg.Storage.SQLitePath)
		opts.Auth = core.NewStaticAuth(cfg.UserID)
		app.Persister, err = storage.NewDocumentStore(dbPath, opts.Auth, cfg.Storage.PollInterval, app.Logger)
		if err != nil {
			app.closeObservability()
			return nil, err
		}
		app.stores = &storeRegistry{
			dbPath: dbPath,
			poll:   cfg.Storage.PollInterval,
			opts:   opts,
			stores: make(map[string]*userStore),
		}
	default:
		app.Persister = storage.NewLocalStore(basePath, app.Logger)
	}

	// --- Core services ---
	opts.Persister = app.Persister
	app.Store = core.NewTaskStore(opts)
	if err := app.Store.Load(context.Background()); err != nil {
		if !errors.Is(err, core.ErrUnauthenticated) {
			_ = app.Close()
			return nil, err
		}
		// The API server can still serve token users; local commands will
		// report that nobody is signed in.
		app.Logger.Debug("no user configured for the sqlite backend")
	} else {
		app.unsubscribe, err = app.Store.Sync(context.Background(), app.Persister)
		if err != nil {
			app.Logger.Warn("live sync disabled", zap.Error(err))
		}
	}

	app.Reminders = core.NewReminderScheduler(&reminderNotifier{n: app.Notifier}, evtAdapter, app.Logger)
	app.Voice = integration.NewVoiceCapture(integration.VoiceConfig{
		Command: cfg.Voice.Command,
		Args:    cfg.Voice.Args,
	})

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Store = app.Store
	cli.Reminders = app.Reminders
	cli.Voice = app.Voice

	cli.Stores = app.StoreFor
	cli.ServerAddr = cfg.Server.Addr
	cli.ServerOptions = web.Options{
		Tokens: cfg.Server.Tokens,
		Logger: app.Logger,
	}
	if len(cfg.Server.Tokens) == 0 {
		cli.ServerOptions.DefaultUser = cfg.UserID
		if cli.ServerOptions.DefaultUser == "" {
			cli.ServerOptions.DefaultUser = localUser
		}
	}

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// StoreFor returns the task store serving userID. The local backend has one
// list shared by every user; the sqlite backend keeps one collection per user.
func (a *App) StoreFor(ctx context.Context, userID string) (core.TaskStore, error) {
	if a.stores == nil {
		return a.Store, nil
	}
	if user, ok := core.NewStaticAuth(a.Config.UserID).CurrentUser(); ok && user == userID {
		return a.Store, nil
	}
	return a.stores.get(ctx, userID)
}

// Close stops reminders, flushes pending saves and releases storage and the
// event log. It is safe to call Close on a partially initialized App.
func (a *App) Close() error {
	var errs []error
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.Reminders != nil {
		a.Reminders.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing task store: %w", err))
		}
	}
	if a.stores != nil {
		if err := a.stores.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Persister != nil {
		if err := a.Persister.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	if err := a.closeObservability(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeObservability() error {
	var err error
	if a.EventLog != nil {
		err = a.EventLog.Close()
		a.EventLog = nil
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return err
}

// ResolveBasePath determines the data directory. It checks the TODO_HOME env
// var, then walks up from the current directory looking for .todoconfig, then
// falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("TODO_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".todoconfig")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// sqlitePath resolves a configured database path against the data directory.
// Absolute and home-relative paths are kept as written.
func sqlitePath(basePath, configured string) string {
	if configured == "" {
		configured = "todo.db"
	}
	if filepath.IsAbs(configured) || configured[0] == '~' {
		return configured
	}
	return filepath.Join(basePath, configured)
}

// --- Per-user stores ---

type userStore struct {
	persister   storage.TaskPersister
	store       core.TaskStore
	unsubscribe func()
}

// storeRegistry opens one sqlite-backed TaskStore per API user on first use
// and keeps it live-synced until Close.
type storeRegistry struct {
	dbPath string
	poll   time.Duration
	opts   core.StoreOptions

	mu     sync.Mutex
	stores map[string]*userStore
}

func (r *storeRegistry) get(ctx context.Context, userID string) (core.TaskStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if us, ok := r.stores[userID]; ok {
		return us.store, nil
	}

	auth := core.NewStaticAuth(userID)
	persister, err := storage.NewDocumentStore(r.dbPath, auth, r.poll, r.opts.Logger)
	if err != nil {
		return nil, err
	}
	opts := r.opts
	opts.Auth = auth
	opts.Persister = persister
	store := core.NewTaskStore(opts)
	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		_ = persister.Close()
		return nil, err
	}
	// The subscription outlives the request that opened the store.
	unsubscribe, err := store.Sync(context.Background(), persister)
	if err != nil {
		r.opts.Logger.Warn("live sync disabled", zap.String("user_id", userID), zap.Error(err))
	}
	r.stores[userID] = &userStore{persister: persister, store: store, unsubscribe: unsubscribe}
	return store, nil
}

func (r *storeRegistry) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for user, us := range r.stores {
		if us.unsubscribe != nil {
			us.unsubscribe()
		}
		if err := us.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing task store for %s: %w", user, err))
		}
		if err := us.persister.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage for %s: %w", user, err))
		}
		delete(r.stores, user)
	}
	return errors.Join(errs...)
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   observability.LevelFor(eventType),
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

// reminderNotifier adapts observability.Notifier to core.Notifier.
type reminderNotifier struct {
	n observability.Notifier
}

func (a *reminderNotifier) Notify(title, body string) error {
	return a.n.Message(title, body)
}
