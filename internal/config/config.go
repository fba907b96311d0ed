package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend modes for the tabular boundary.
const (
	BackendModeREST     = "rest"
	BackendModePostgres = "postgres"
)

// Favorites storage backends.
const (
	FavoritesSQLite = "sqlite"
	FavoritesRedis  = "redis"
)

// Config holds runtime settings read from the environment.
type Config struct {
	AppEnv           string
	AppDisplayName   string
	LogLevel         string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string
	CookieSecure     bool

	BackendURL        string
	BackendAnonKey    string
	BackendJWTSecret  string
	BackendTimeout    time.Duration
	BackendMode       string
	DatabaseURL       string
	SupabaseSchema    string
	RunMigrations     bool
	StorageBucket     string
	FnCreatePartner   string
	FnDeletePartner   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	FavoritesBackend    string
	FavoritesSQLitePath string

	ProfileRetryDelay   time.Duration
	ProfileCacheTTL     time.Duration
	GuardResolveTimeout time.Duration
	GuardPolicyFile     string

	SupportWhatsApp string
	DefaultLeadCity string

	WhatsAppEnabled   bool
	WhatsAppStorePath string
	WhatsAppLogLevel  string

	WebhookSecret      string
	OTelJaegerEndpoint string
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           envString("APP_ENV", "development"),
		AppDisplayName:   envString("APP_DISPLAY_NAME", "Pechincha Santarém"),
		LogLevel:         envString("LOG_LEVEL", "info"),
		HTTPListenAddr:   envString("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   envString("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: envString("METRICS_NAMESPACE", "pechincha"),

		BackendURL:        strings.TrimRight(envString("BACKEND_URL", ""), "/"),
		BackendAnonKey:    envString("BACKEND_ANON_KEY", ""),
		BackendJWTSecret:  envString("BACKEND_JWT_SECRET", ""),
		BackendMode:       strings.ToLower(envString("BACKEND_MODE", BackendModeREST)),
		DatabaseURL:       envString("DATABASE_URL", ""),
		SupabaseSchema:    envString("SUPABASE_SCHEMA", "public"),
		StorageBucket:     envString("STORAGE_BUCKET", "promotions"),
		FnCreatePartner:   envString("FN_CREATE_PARTNER", "create-partner"),
		FnDeletePartner:   envString("FN_DELETE_PARTNER", "delete-partner"),

		RedisAddr:     envString("REDIS_ADDR", ""),
		RedisPassword: envString("REDIS_PASSWORD", ""),

		FavoritesBackend:    strings.ToLower(envString("FAVORITES_BACKEND", FavoritesSQLite)),
		FavoritesSQLitePath: envString("FAVORITES_SQLITE_PATH", "data/favorites.db"),

		GuardPolicyFile: envString("GUARD_POLICY_FILE", ""),
		SupportWhatsApp: envString("SUPPORT_WHATSAPP", "5593981340104"),
		DefaultLeadCity: envString("DEFAULT_LEAD_CITY", "Santarém"),

		WhatsAppStorePath: envString("WHATSAPP_STORE_PATH", "data/whatsapp.db"),
		WhatsAppLogLevel:  envString("WHATSAPP_LOG_LEVEL", "WARN"),

		WebhookSecret:      envString("WEBHOOK_SECRET", ""),
		OTelJaegerEndpoint: envString("OTEL_JAEGER_ENDPOINT", ""),
	}

	var err error
	if cfg.CookieSecure, err = envBool("COOKIE_SECURE", cfg.AppEnv == "production"); err != nil {
		return nil, err
	}
	if cfg.RunMigrations, err = envBool("RUN_MIGRATIONS", false); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = envBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.WhatsAppEnabled, err = envBool("WHATSAPP_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.BackendTimeout, err = envDuration("BACKEND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProfileRetryDelay, err = envDuration("PROFILE_RETRY_DELAY", 400*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ProfileCacheTTL, err = envDuration("PROFILE_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.GuardResolveTimeout, err = envDuration("GUARD_RESOLVE_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.BackendAnonKey == "" {
		return fmt.Errorf("BACKEND_ANON_KEY is required")
	}
	switch c.BackendMode {
	case BackendModeREST:
	case BackendModePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when BACKEND_MODE=%s", BackendModePostgres)
		}
	default:
		return fmt.Errorf("BACKEND_MODE: unsupported value %q", c.BackendMode)
	}
	switch c.FavoritesBackend {
	case FavoritesSQLite:
		if strings.TrimSpace(c.FavoritesSQLitePath) == "" {
			return fmt.Errorf("FAVORITES_SQLITE_PATH is required when FAVORITES_BACKEND=%s", FavoritesSQLite)
		}
	case FavoritesRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when FAVORITES_BACKEND=%s", FavoritesRedis)
		}
	default:
		return fmt.Errorf("FAVORITES_BACKEND: unsupported value %q", c.FavoritesBackend)
	}
	if c.ProfileRetryDelay < 0 {
		return fmt.Errorf("PROFILE_RETRY_DELAY must not be negative")
	}
	if c.GuardResolveTimeout <= 0 {
		return fmt.Errorf("GUARD_RESOLVE_TIMEOUT must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	raw := envString(key, "")
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return val, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := envString(key, "")
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return val, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := envString(key, "")
	if raw == "" {
		return fallback, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return val, nil
}
