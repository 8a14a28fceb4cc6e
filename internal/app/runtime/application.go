// Package runtime turns a Config into a running ConeDex server: it picks the
// storage backend, builds the optional hosted-API providers and owns the HTTP
// server lifecycle.
package runtime

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/conedex/conedex/internal/ai"
	app "github.com/conedex/conedex/internal/app"
	"github.com/conedex/conedex/internal/app/httpapi"
	"github.com/conedex/conedex/internal/app/services/importer"
	"github.com/conedex/conedex/internal/app/storage/postgres"
	"github.com/conedex/conedex/internal/cache"
	"github.com/conedex/conedex/internal/config"
	"github.com/conedex/conedex/internal/database"
	"github.com/conedex/conedex/internal/mailer"
	"github.com/conedex/conedex/internal/middleware"
	"github.com/conedex/conedex/internal/places"
	"github.com/conedex/conedex/internal/platform/migrations"
	"github.com/conedex/conedex/pkg/logger"
)

const rateLimitCleanupInterval = 5 * time.Minute

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	handler    http.Handler
	httpServer *http.Server
	limiter    *middleware.RateLimiter
	db         *sql.DB
	redis      *cache.Redis
}

// NewApplication loads configuration from the environment and builds the
// server.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.LoggingConfig{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "conedex",
	})
	return New(ctx, cfg, log)
}

// New builds the server from cfg. Resources acquired before a failure are
// released before the error is returned.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Application, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = logger.NewDefault("conedex")
	}
	a := &Application{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	stores, err := a.buildStores()
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}
	providers, err := a.buildProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("configure providers: %w", err)
	}

	a.app, err = app.New(stores, providers, log)
	if err != nil {
		return nil, err
	}

	secret := cfg.SupabaseJWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return nil, err
		}
		log.Warn("SUPABASE_JWT_SECRET not set; using a random secret, no external token will validate")
	}
	auth := middleware.NewAuthMiddleware(secret, a.app.Profiles, log.Named("auth"))
	if cfg.RateLimitRPS > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log.Named("ratelimit"))
	}

	a.handler, err = httpapi.NewHandler(a.app, httpapi.Options{
		Auth:        auth,
		RateLimiter: a.limiter,
		CORSOrigins: cfg.CORSOriginList(),
		AuditFile:   cfg.AdminAuditFile,
	}, log.Named("http"))
	if err != nil {
		return nil, fmt.Errorf("build http handler: %w", err)
	}

	a.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return a, nil
}

// Handler exposes the assembled HTTP handler.
func (a *Application) Handler() http.Handler { return a.handler }

// App exposes the composed services.
func (a *Application) App() *app.Application { return a.app }

// Run starts background services and the HTTP server, and blocks until ctx is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	if a.limiter != nil {
		a.limiter.StartCleanup(ctx, rateLimitCleanupInterval)
	}

	listener, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", listener.Addr().String()).Info("HTTP server listening")
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains the HTTP server, stops background services and closes the
// database and cache connections.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop services: %w", err))
	}
	a.release()
	return errors.Join(errs...)
}

// Close releases the database and cache connections of an application that
// was never run.
func (a *Application) Close() {
	a.release()
}

func (a *Application) release() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
		a.redis = nil
	}
}

func (a *Application) buildStores() (app.Stores, error) {
	if !a.cfg.UsePostgres() {
		a.log.Warn("DATABASE_URL not set; using in-memory storage")
		return app.Stores{}, nil
	}

	db, err := postgres.Open(a.cfg.DatabaseURL, a.cfg.DBMaxOpenConns, a.cfg.DBMaxIdleConns, a.cfg.DBConnMaxLife)
	if err != nil {
		return app.Stores{}, err
	}
	a.db = db
	if a.cfg.AutoMigrate {
		if err := migrations.Up(db); err != nil {
			return app.Stores{}, fmt.Errorf("apply migrations: %w", err)
		}
	}

	store := postgres.New(db)
	return app.Stores{
		Profiles:      store,
		Shops:         store,
		Claims:        store,
		Flavors:       store,
		Logs:          store,
		Quests:        store,
		Badges:        store,
		Notifications: store,
		Newsletters:   store,
		Moderation:    store,
		Analytics:     store,
	}, nil
}

// buildProviders only assigns interface fields for configured clients so the
// services see a true nil for everything else.
func (a *Application) buildProviders(ctx context.Context) (app.Providers, error) {
	cfg := a.cfg
	providers := app.Providers{PublicBaseURL: cfg.PublicBaseURL}

	var shared cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		redis, err := cache.NewRedis(ctx, cfg.RedisURL, "conedex:")
		if err != nil {
			return providers, err
		}
		a.redis = redis
		shared = redis
	}
	providers.Cache = shared

	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		client, err := database.NewClient(database.Config{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
			Bucket:     cfg.StorageBucket,
		})
		if err != nil {
			return providers, err
		}
		providers.Auth = client
		providers.Objects = client
	} else {
		a.log.Warn("Supabase not configured; photo uploads and auth account changes are disabled")
	}

	if cfg.PlacesAPIKey != "" {
		client, err := places.New(places.Config{
			APIKey:         cfg.PlacesAPIKey,
			RequestsPerSec: cfg.PlacesRPS,
			Cache:          shared,
		}, a.log.Named("places"))
		if err != nil {
			return providers, err
		}
		providers.Places = client
		providers.Describer = importer.NewSiteScraper(&http.Client{Timeout: 10 * time.Second})
	}

	if cfg.SendGridAPIKey != "" {
		sender, err := mailer.NewSendGrid(mailer.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.MailFrom,
			FromName:  cfg.MailFromName,
		}, a.log.Named("mailer"))
		if err != nil {
			return providers, err
		}
		providers.Mailer = sender
	}

	if cfg.OpenAIAPIKey != "" {
		client, err := ai.NewOpenAI(ai.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
		if err != nil {
			return providers, err
		}
		providers.AI.Moderator = client
		providers.AI.Categorizer = client
	}
	if cfg.GeminiAPIKey != "" {
		embedder, err := ai.NewGenAIEmbedder(ctx, ai.GenAIConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.EmbeddingModel})
		if err != nil {
			return providers, err
		}
		providers.AI.Embedder = embedder
	}

	return providers, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
