package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/text/language"

	"github.com/sahtee/admin/internal/admin/service"
	"github.com/sahtee/admin/internal/admin/store"
	"github.com/sahtee/admin/internal/admin/store/drivers/sqlite"
	"github.com/sahtee/admin/pkg/adminsdk"
	"github.com/sahtee/admin/pkg/audit"
	"github.com/sahtee/admin/pkg/cryptox"
	"github.com/sahtee/admin/pkg/dataset"
	"github.com/sahtee/admin/pkg/httpx"
	"github.com/sahtee/admin/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the admin gateway client, the dataset cache and local
// persistence together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	vault    *service.TokenVault
	recorder *service.AuditRecorder

	client   *adminsdk.Client
	cache    *dataset.Cache
	searcher *dataset.Searcher

	housekeepingService *service.HousekeepingService
	started             bool
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sahtee-admin",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initVault(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initGateway()

	return app, nil
}

// initDatabase opens the local database and applies migrations.
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Debug("database migrations applied successfully", "file", app.cfg.DatabaseFile)
	return nil
}

func (app *Application) initVault() error {
	material, ephemeral, err := cryptox.LoadKeyMaterial(app.cfg.TokenKeyPath, app.cfg.TokenKey)
	if err != nil {
		return fmt.Errorf("failed to load token key: %w", err)
	}
	if ephemeral {
		app.logger.Warn("no TOKEN_KEY or TOKEN_KEY_PATH set, stored sessions will not survive this process")
	}

	sealer, err := cryptox.NewSealer(material)
	if err != nil {
		return fmt.Errorf("failed to create token sealer: %w", err)
	}

	app.vault = service.NewTokenVault(app.db, sealer, app.cfg.Profile, app.logger)
	return nil
}

func (app *Application) initServices() {
	app.recorder = service.NewAuditRecorder(app.db, app.logger)
	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)
}

// initGateway builds the API client and the dataset layer on top of it.
func (app *Application) initGateway() {
	client := adminsdk.NewClient(app.cfg.APIBaseURL)
	client.HTTPClient = &http.Client{
		Transport: slogx.NewTransport(http.DefaultTransport, app.logger),
	}
	client.Tokens = app.vault
	client.Audit = audit.Multi{audit.SlogSink{Logger: app.logger}, app.recorder}
	client.Logger = app.logger
	client.Timeout = app.cfg.RequestTimeout
	client.MaxAttempts = app.cfg.MaxAttempts
	client.RetryDelay = app.cfg.RetryDelay
	client.Paths = adminsdk.Paths{
		Login:   app.cfg.LoginPath,
		Logout:  app.cfg.LogoutPath,
		Refresh: app.cfg.RefreshPath,
	}
	client.OnLoginRequired = func() {
		app.logger.Warn("session ended, run `admin login` to sign in again")
	}

	app.cache = dataset.New(adminsdk.BulkLister{Client: client}, dataset.Config{
		PageSize:    app.cfg.PageSize,
		Concurrency: app.cfg.PageConcurrency,
		Limiter:     httpx.NewLimiter(httpx.DatasetLimit),
		Logger:      app.logger,
	})
	client.OnMutation = app.cache.Invalidate

	tag, err := language.Parse(app.cfg.SearchLocale)
	if err != nil {
		app.logger.Warn("invalid SEARCH_LOCALE, using root locale", "locale", app.cfg.SearchLocale, "error", err)
		tag = language.Und
	}
	app.searcher = dataset.NewSearcher(app.cache, tag)

	app.client = client
}

// Start launches background work for long-running sessions.
func (app *Application) Start() {
	if app.started {
		return
	}
	app.started = true
	app.housekeepingService.Start()
}

// Close stops background work and closes the database.
func (app *Application) Close() error {
	if app.started {
		app.housekeepingService.Stop()
		app.started = false
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

func (app *Application) Config() Config { return app.cfg }
func (app *Application) Logger() *slog.Logger { return app.logger }
func (app *Application) Client() *adminsdk.Client { return app.client }
func (app *Application) Cache() *dataset.Cache { return app.cache }
func (app *Application) Searcher() *dataset.Searcher { return app.searcher }
func (app *Application) Audit() *service.AuditRecorder { return app.recorder }
func (app *Application) Housekeeping() *service.HousekeepingService { return app.housekeepingService }

// NewQuery starts a debounced search session over entity.
func (app *Application) NewQuery(ctx context.Context, entity adminsdk.EntityType, deliver func(dataset.Result)) *dataset.Query {
	return dataset.NewQuery(ctx, app.searcher, entity, dataset.QueryConfig{
		Debounce:    app.cfg.SearchDebounce,
		WarmUpDelay: app.cfg.WarmUpDelay,
	}, deliver)
}
