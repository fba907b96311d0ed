package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"pechincha/internal/backend"
	"pechincha/internal/cache"
	"pechincha/internal/config"
	"pechincha/internal/favorites"
	"pechincha/internal/guard"
	"pechincha/internal/httpserver"
	"pechincha/internal/leads"
	"pechincha/internal/logging"
	"pechincha/internal/metrics"
	"pechincha/internal/partners"
	"pechincha/internal/promo"
	"pechincha/internal/session"
	"pechincha/internal/tracing"
	"pechincha/internal/wa"
	"pechincha/internal/webhook"
	"pechincha/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// notifier is the admin alert channel used by leads and the webhook.
type notifier interface {
	leads.Notifier
	webhook.PendingNotifier
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting pechincha", "env", cfg.AppEnv, "backend_mode", cfg.BackendMode, "favorites", cfg.FavoritesBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init("pechincha", cfg.OTelJaegerEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	client := backend.New(backend.Options{
		BaseURL: cfg.BackendURL,
		AnonKey: cfg.BackendAnonKey,
		Timeout: cfg.BackendTimeout,
		Bucket:  cfg.StorageBucket,
	}, logger, metricRegistry)

	if cfg.BackendMode == config.BackendModePostgres {
		pg, err := backend.NewPostgres(ctx, cfg.DatabaseURL, cfg.SupabaseSchema, logger)
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		defer pg.Close()
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx, migrations.Files); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrated")
		}
		client = client.WithTables(pg)
	}

	var redisClient *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
			Prefix:   "pechincha",
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
	}

	favoriteStore, closeFavorites, err := openFavorites(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeFavorites()

	resolverOpts := session.ResolverOptions{
		Verifier:    session.NewTokenVerifier(cfg.BackendJWTSecret),
		Revocations: session.NewMemoryRevocations(),
		RetryDelay:  cfg.ProfileRetryDelay,
		Metrics:     metricRegistry,
	}
	if redisClient != nil {
		resolverOpts.Revocations = session.NewRedisRevocations(redisClient)
		if cfg.ProfileCacheTTL > 0 {
			resolverOpts.Cache = session.NewRedisProfileCache(redisClient, cfg.ProfileCacheTTL, logger)
		}
	}
	profiles := session.NewProfiles(client.Tables)
	resolver := session.NewResolver(client.Auth, profiles, resolverOpts, logger)
	sessions := session.NewService(client.Auth, resolver, resolverOpts.Revocations, logger)

	policy, err := loadPolicy(cfg.GuardPolicyFile)
	if err != nil {
		return err
	}
	if cfg.PublicBasePath != "" {
		policy.WithBasePath(cfg.PublicBasePath)
	}
	accessGuard := guard.New(policy, resolver, cfg.GuardResolveTimeout, logger, metricRegistry)

	alerts, closeAlerts, err := openNotifier(ctx, cfg, logger, metricRegistry, stop)
	if err != nil {
		return err
	}
	defer closeAlerts()

	leadRepo := leads.NewRepository(client.Tables, alerts, cfg.DefaultLeadCity, logger, metricRegistry)
	partnerService := partners.NewService(profiles, client.Functions, partners.Functions{
		Create: cfg.FnCreatePartner,
		Delete: cfg.FnDeletePartner,
	}, leadRepo, client.Events, resolver, logger)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Promotions: promo.NewRepository(client.Tables, favoriteStore, logger, metricRegistry),
		Favorites:  favoriteStore,
		Leads:      leadRepo,
		Partners:   partnerService,
		Sessions:   sessions,
		Guard:      accessGuard,
		Watcher:    guard.NewWatcher(accessGuard, client.Events, logger),
		Storage:    client.Storage,
		Webhook:    webhook.NewHandler(logger, metricRegistry, cfg.WebhookSecret, webhook.NewPromotionAlerts(alerts)),
	}, httpserver.Settings{
		AppName:       cfg.AppDisplayName,
		SupportNumber: cfg.SupportWhatsApp,
		CookieSecure:  cfg.CookieSecure,
		BasePath:      cfg.PublicBasePath,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return resolver.Run(groupCtx, client.Events)
	})
	group.Go(func() error {
		return httpSrv.Start()
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func openFavorites(ctx context.Context, cfg *config.Config, redisClient *cache.Redis, logger *slog.Logger) (*favorites.Store, func(), error) {
	if cfg.FavoritesBackend == config.FavoritesRedis {
		return favorites.NewStore(favorites.NewRedisKV(redisClient), logger), func() {}, nil
	}
	kv, err := favorites.OpenSQLite(ctx, cfg.FavoritesSQLitePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open favorites store: %w", err)
	}
	if err := kv.Migrate(ctx, migrations.SQLite); err != nil {
		_ = kv.Close()
		return nil, nil, fmt.Errorf("migrate favorites store: %w", err)
	}
	return favorites.NewStore(kv, logger), func() {
		if err := kv.Close(); err != nil {
			logger.Warn("failed closing favorites store", "error", err)
		}
	}, nil
}

func loadPolicy(path string) (*guard.Policy, error) {
	if path == "" {
		policy, err := guard.DefaultPolicy()
		if err != nil {
			return nil, fmt.Errorf("load default guard policy: %w", err)
		}
		return policy, nil
	}
	policy, err := guard.LoadPolicy(path)
	if err != nil {
		return nil, fmt.Errorf("load guard policy: %w", err)
	}
	return policy, nil
}

// openNotifier links the WhatsApp device when enabled; otherwise alerts are
// only logged.
func openNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, stop context.CancelFunc) (notifier, func(), error) {
	if !cfg.WhatsAppEnabled {
		return wa.NewLogNotifier(logger), func() {}, nil
	}
	waClient, err := wa.New(ctx, wa.Config{
		StorePath: cfg.WhatsAppStorePath,
		LogLevel:  cfg.WhatsAppLogLevel,
		Metrics:   m,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init whatsapp client: %w", err)
	}
	waCtx, waCancel := context.WithCancel(ctx)
	go func() {
		if err := waClient.Start(waCtx); err != nil {
			logger.Error("whatsapp client stopped", "error", err)
			stop()
		}
	}()
	return wa.NewAdminNotifier(waClient, cfg.SupportWhatsApp, cfg.AppDisplayName, logger, m), func() {
		waCancel()
		waClient.Close()
	}, nil
}
