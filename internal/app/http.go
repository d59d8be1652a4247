package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-tracker/internal/http"
	httpH "github.com/yungbote/roadmap-tracker/internal/http/handlers"
	httpMW "github.com/yungbote/roadmap-tracker/internal/http/middleware"
	"github.com/yungbote/roadmap-tracker/internal/observability"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/platform/ratelimit"
)

type Middleware struct {
	Auth      *httpMW.AuthMiddleware
	RateLimit gin.HandlerFunc
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Catalog  *httpH.CatalogHandler
	Progress *httpH.ProgressHandler
	Study    *httpH.StudyHandler
}

func wireHandlers(log *logger.Logger, services Services, metrics *observability.Metrics, db *gorm.DB, rdb *redis.Client) Handlers {
	log.Info("Wiring handlers...")
	deps := map[string]httpH.Pinger{
		"db": httpH.PingFunc(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if rdb != nil {
		deps["redis"] = httpH.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(deps),
		Catalog:  httpH.NewCatalogHandler(services.Catalog),
		Progress: httpH.NewProgressHandler(log, services.Ledger, services.Catalog, metrics),
		Study:    httpH.NewStudyHandler(services.Study, metrics),
	}
}

// wireMiddleware shares one limiter across instances through redis when it
// is configured, otherwise each process limits on its own.
func wireMiddleware(log *logger.Logger, cfg Config, services Services, metrics *observability.Metrics, rdb *redis.Client) Middleware {
	log.Info("Wiring middleware...")
	mw := Middleware{Auth: httpMW.NewAuthMiddleware(log, services.Auth)}
	if !cfg.RateLimitEnabled {
		return mw
	}
	rlCfg := ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateLimitWindow, Prefix: "roadmap:rl"}
	var lim ratelimit.Limiter
	if rdb != nil {
		lim = ratelimit.NewRedisLimiter(rdb, rlCfg, log)
	} else {
		lim = ratelimit.NewMemoryLimiter(rlCfg, log)
	}
	mw.RateLimit = httpMW.RateLimit(log, lim, metrics)
	return mw
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		ServiceName:     cfg.Otel.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		Metrics:         metrics,
		AuthMiddleware:  middleware.Auth,
		RateLimit:       middleware.RateLimit,
		HealthHandler:   handlers.Health,
		CatalogHandler:  handlers.Catalog,
		ProgressHandler: handlers.Progress,
		StudyHandler:    handlers.Study,
	})
}
