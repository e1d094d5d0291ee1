package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/aussiebroadwan/careportal/internal/portal/http"
	"github.com/aussiebroadwan/careportal/internal/portal/metrics"
	"github.com/aussiebroadwan/careportal/internal/portal/service"
	"github.com/aussiebroadwan/careportal/internal/portal/store"
	"github.com/aussiebroadwan/careportal/internal/portal/store/drivers/sqlite"
	"github.com/aussiebroadwan/careportal/pkg/csrf"
	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/aussiebroadwan/careportal/pkg/jwtx"
	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
	"github.com/aussiebroadwan/careportal/pkg/securecore"
	"github.com/aussiebroadwan/careportal/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"

	redisKeyPrefix = "careportal:ratelimit"
)

// Application encapsulates the portal security service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	redis   *redis.Client // nil when the limiter is in-memory
	limiter ratelimit.Limiter
	jwt     *jwtx.Manager
	keys    *fieldcrypt.Manager
	core    *securecore.Core
	metrics *metrics.Metrics

	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "careportal",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(nil),
	}

	ctx := context.Background()

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initLimiter(ctx); err != nil {
		app.closeResources()
		return nil, err
	}
	if err := app.initCore(ctx); err != nil {
		app.closeResources()
		return nil, err
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.core,
		app.jwt.Blacklist(),
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Metrics = app.metrics

	if err := app.initHTTP(); err != nil {
		app.closeResources()
		return nil, err
	}
	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("careportal starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down careportal...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Cancels an in-progress sweep rather than waiting it out.
	app.housekeepingService.Stop()

	if err := app.closeResources(); err != nil {
		return err
	}

	app.logger.Info("careportal stopped")
	return nil
}

func (app *Application) closeResources() error {
	if app.jwt != nil {
		app.jwt.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			return err
		}
	}
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initLimiter uses Redis when REDIS_ADDR is set so every replica shares one
// budget, and an in-memory limiter otherwise.
func (app *Application) initLimiter(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		app.limiter = ratelimit.NewMemory(nil)
		app.logger.Info("rate limiter enabled (memory)")
		return nil
	}

	app.redis = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	rl := ratelimit.NewRedis(app.redis, redisKeyPrefix, nil, app.logger)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rl.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.limiter = rl
	app.logger.Info("rate limiter enabled (redis)", "addr", app.cfg.RedisAddr)
	return nil
}

// initCore builds the JWT, CSRF and key managers and the facade over them.
func (app *Application) initCore(ctx context.Context) error {
	jm, err := jwtx.NewManager(jwtx.Config{
		Secret:      []byte(app.cfg.JWTSecret),
		Production:  app.cfg.IsProduction(),
		Issuer:      app.cfg.JWTIssuer,
		Audience:    app.cfg.Audience(),
		AccessTTL:   app.cfg.AccessTokenTTL,
		RefreshTTL:  app.cfg.RefreshTokenTTL,
		IssueLimit:  app.cfg.RateLimits.Get(ratelimit.CategoryToken),
		Limiter:     app.limiter,
		Revocations: store.NewRevocationAdapter(app.db),
		Logger:      app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}
	app.jwt = jm

	n, err := jm.Blacklist().Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore revoked tokens: %w", err)
	}
	app.logger.Info("revoked tokens restored", "count", n)

	keys, err := fieldcrypt.NewManager(ctx, fieldcrypt.Config{
		Algorithm:        app.cfg.KeyAlgorithm,
		RotationInterval: app.cfg.KeyRotationInterval,
		Recorder:         store.NewRotationAdapter(app.db),
		Logger:           app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize encryption keys: %w", err)
	}
	app.keys = keys
	st := keys.Status()
	app.metrics.ObserveRotation(fieldcrypt.ReasonInitial, st.Version)

	core, err := securecore.New(securecore.Deps{
		Limiter: app.limiter,
		CSRF:    csrf.NewStore(csrf.Config{TTL: app.cfg.CSRFTokenTTL}, nil),
		JWT:     jm,
		Keys:    keys,
	}, securecore.Config{
		Limits:     app.cfg.RateLimits,
		SessionTTL: app.cfg.RefreshTokenTTL,
		Logger:     app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize security core: %w", err)
	}
	app.core = core
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	proxies, err := app.cfg.Proxies()
	if err != nil {
		return fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	router := httpapi.NewRouter(app.core, app.db, BuildVersion, app.logger)
	router.Metrics = app.metrics
	router.SecureCookies = app.cfg.SecureCookies
	router.ClientIP = httpx.ClientIPExtractor(proxies)
	router.IssuerToken = app.cfg.SessionIssuerToken
	router.Production = app.cfg.IsProduction()
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
