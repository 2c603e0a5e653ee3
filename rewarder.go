// Package rewarder is the public API for embedding the reward evaluation server.
//
// Bot and platform consumers import this package to construct and extend the
// server without forking it:
//
//	app, err := rewarder.New(
//	    rewarder.WithVersion(version),
//	    rewarder.WithLogger(logger),
//	    rewarder.WithIssuer(myIssuer),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: rewarder (root) imports
// internal/*, but internal/* never imports rewarder (root).
package rewarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/open-format/rewarder/internal/config"
	"github.com/open-format/rewarder/internal/discord"
	"github.com/open-format/rewarder/internal/model"
	"github.com/open-format/rewarder/internal/reward"
	"github.com/open-format/rewarder/internal/rules"
	"github.com/open-format/rewarder/internal/scoring"
	"github.com/open-format/rewarder/internal/server"
	"github.com/open-format/rewarder/internal/store"
	"github.com/open-format/rewarder/internal/telemetry"
)

// MessageRef locates one message on the platform.
type MessageRef = model.MessageRef

// EvaluationOutcome is the result of evaluating one message.
type EvaluationOutcome = model.EvaluationOutcome

// App is the rewarder server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        store.Store
	coordinator  *reward.Coordinator
	srv          *server.Server
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the rewarder server. It loads configuration and scoring
// rules, connects the reward store, and wires all subsystems into a
// ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("rewarder starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Scoring rules: option override, else files under RulesDir, else the
	// embedded defaults.
	ruleSet := o.ruleSet
	if ruleSet == nil {
		rs, err := rules.Load(cfg.RulesDir, cfg.RulesEnv, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("rules: %w", err)
		}
		ruleSet = &rs
	}

	st := o.store
	if st == nil {
		st, err = newStore(context.Background(), cfg, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("store: %w", err)
		}
	}

	source := o.source
	if source == nil {
		source = discord.NewRESTSource(cfg.DiscordAPIBase, cfg.DiscordToken, logger)
	}

	issuer := o.issuer
	if issuer == nil {
		issuer = newIssuer(cfg, logger)
	}

	coordinator := reward.NewCoordinator(reward.CoordinatorConfig{
		Engine:       scoring.New(*ruleSet),
		Guard:        reward.NewGuard(st),
		Source:       source,
		Issuer:       issuer,
		AgentID:      cfg.AgentID,
		SelfUserID:   cfg.SelfUserID,
		IssueTimeout: cfg.IssueTimeout,
		Logger:       logger,
	})

	srv := server.New(server.ServerConfig{
		Coordinator:         coordinator,
		BaseRules:           *ruleSet,
		Store:               st,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		store:        st,
		coordinator:  coordinator,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Evaluate runs the full pipeline for one message URL. It is the
// programmatic equivalent of POST /v1/evaluate.
func (a *App) Evaluate(ctx context.Context, url string) (EvaluationOutcome, error) {
	ref, err := discord.ParseMessageURL(url)
	if err != nil {
		return EvaluationOutcome{}, err
	}
	return a.coordinator.Process(ctx, ref)
}

// Run starts background services and serves HTTP until ctx is cancelled or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	if pg, ok := a.store.(*store.Postgres); ok {
		go a.reservationReapLoop(ctx, pg)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the store and the
// OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("rewarder shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	_ = a.otelShutdown(context.Background())
	if err := a.store.Close(context.Background()); err != nil {
		a.logger.Error("store close error", "error", err)
	}

	a.logger.Info("rewarder stopped")
	return nil
}

// Handler returns the root HTTP handler for use in tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// reservationReapLoop periodically deletes reservations that were taken but
// never finalized or released, e.g. after a crash mid-issuance.
func (a *App) reservationReapLoop(ctx context.Context, pg *store.Postgres) {
	ticker := time.NewTicker(a.cfg.PendingTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.CleanupAbandoned(ctx, a.cfg.PendingTTL)
			if err != nil {
				a.logger.Warn("reservation cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("abandoned reservations reaped", "count", n)
			}
		}
	}
}

// newStore selects the reward store backend from configuration. Postgres
// wins over Redis, Redis over SQLite; with nothing configured the process
// falls back to the in-memory store, which does not survive restarts.
func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		logger.Info("reward store: postgres")
		return store.NewPostgres(ctx, cfg.DatabaseURL, logger)
	case cfg.RedisURL != "":
		logger.Info("reward store: redis")
		return store.NewRedisFromURL(cfg.RedisURL, cfg.PendingTTL)
	case cfg.SQLitePath != "":
		logger.Info("reward store: sqlite", "path", cfg.SQLitePath)
		return store.NewSQLite(cfg.SQLitePath)
	default:
		logger.Warn("reward store: memory (processed records are lost on restart)")
		return store.NewMemory(), nil
	}
}

// newIssuer selects the reward issuer from configuration. Without a reward
// API URL the stub issuer is used, which records outcomes without calling
// any external service.
func newIssuer(cfg config.Config, logger *slog.Logger) reward.Issuer {
	if cfg.RewardAPIURL == "" {
		logger.Warn("reward issuer: stub (no REWARDER_REWARD_API_URL)")
		return reward.StubIssuer{}
	}
	logger.Info("reward issuer: api", "url", cfg.RewardAPIURL)
	return reward.NewAPIClient(cfg.RewardAPIURL, cfg.AgentID, []byte(cfg.RewardAPISecret), logger)
}
