package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/roadmap-tracker/internal/data/db"
	"github.com/yungbote/roadmap-tracker/internal/observability"
	"github.com/yungbote/roadmap-tracker/internal/platform/envutil"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/services"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	DB db.Config

	Auth services.AuthConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitEnabled bool
	RateLimit        int
	RateLimitWindow  time.Duration

	CatalogPath string
	TimeZone    *time.Location
	CORSOrigins []string

	MirrorTimeout  time.Duration
	ReconcileEvery time.Duration

	Otel    observability.OtelConfig
	Metrics observability.MetricsConfig
}

func LoadConfig(log *logger.Logger) (Config, error) {
	tzName := envutil.String("TIME_ZONE", "Asia/Jakarta")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("TIME_ZONE %q: %w", tzName, err)
	}

	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
		DB: db.Config{
			Driver:           envutil.String("DB_DRIVER", db.DriverPostgres),
			PostgresHost:     envutil.String("POSTGRES_HOST", "localhost"),
			PostgresPort:     envutil.String("POSTGRES_PORT", "5432"),
			PostgresUser:     envutil.String("POSTGRES_USER", "postgres"),
			PostgresPassword: envutil.String("POSTGRES_PASSWORD", ""),
			PostgresName:     envutil.String("POSTGRES_NAME", "roadmap"),
			PostgresSSLMode:  envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath:       envutil.String("SQLITE_PATH", "roadmap-tracker.db"),
		},
		Auth: services.AuthConfig{
			Secret:    envutil.String("AUTH_JWT_SECRET", ""),
			Issuer:    envutil.String("AUTH_JWT_ISSUER", ""),
			Audience:  envutil.String("AUTH_JWT_AUDIENCE", ""),
			AccessTTL: envutil.Duration("AUTH_ACCESS_TTL", 24*time.Hour),
		},
		RedisAddr:        envutil.String("REDIS_ADDR", ""),
		RedisPassword:    envutil.String("REDIS_PASSWORD", ""),
		RedisDB:          envutil.Int("REDIS_DB", 0),
		RateLimitEnabled: envutil.Bool("RATE_LIMIT_ENABLED", true),
		RateLimit:        envutil.Int("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:  envutil.Duration("RATE_LIMIT_WINDOW", time.Minute),
		CatalogPath:      envutil.String("CATALOG_PATH", ""),
		TimeZone:         loc,
		CORSOrigins:      envutil.List("CORS_ORIGINS", nil),
		MirrorTimeout:    envutil.Duration("MIRROR_TIMEOUT", 15*time.Second),
		ReconcileEvery:   envutil.Duration("MIRROR_RECONCILE_INTERVAL", 30*time.Second),
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", observability.DefaultServiceName),
			Exporter:    envutil.String("OTEL_TRACES_EXPORTER", ""),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1),
		},
		Metrics: observability.MetricsConfig{
			Enabled:        envutil.Bool("METRICS_ENABLED", false),
			Addr:           envutil.String("METRICS_ADDR", ":9090"),
			ScrapeInterval: envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second),
		},
	}
	cfg.Otel.Environment = cfg.Environment
	cfg.Otel.Version = cfg.Version

	if strings.TrimSpace(cfg.Auth.Secret) == "" {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if cfg.RateLimit <= 0 || cfg.RateLimitWindow <= 0 {
		log.Warn("rate limit config invalid, disabling", "limit", cfg.RateLimit, "window", cfg.RateLimitWindow)
		cfg.RateLimitEnabled = false
	}
	log.Info("Config loaded",
		"env", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"time_zone", loc.String(),
		"redis", cfg.RedisAddr != "",
		"rate_limit", cfg.RateLimitEnabled,
	)
	return cfg, nil
}
