package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-tracker/internal/data/db"
	"github.com/yungbote/roadmap-tracker/internal/http"
	"github.com/yungbote/roadmap-tracker/internal/observability"
	"github.com/yungbote/roadmap-tracker/internal/pkg/dbctx"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/platform/ratelimit"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.NewMetrics(log, cfg.Metrics)

	dbService, err := db.Open(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := db.AutoMigrateAll(dbService.DB()); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}
	theDB := dbService.DB()

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(log, cfg, reposet)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	// Startup I/O is independent; run it side by side.
	var rdb *redis.Client
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cat, err := loadCatalog(cfg)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		serviceset.Catalog = cat
		return nil
	})
	g.Go(func() error {
		return serviceset.Ledger.Hydrate(dbctx.New(gctx))
	})
	if cfg.RedisAddr != "" {
		g.Go(func() error {
			c, err := ratelimit.NewRedisClient(gctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				return fmt.Errorf("init redis: %w", err)
			}
			rdb = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset, metrics, theDB, rdb)
	middleware := wireMiddleware(log, cfg, serviceset, metrics, rdb)
	router := wireRouter(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Redis:        rdb,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Metrics:      metrics,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)
	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Metrics.StartLedgerCollector(ctx, a.Services.Ledger)
	go a.Services.Ledger.RunReconciler(ctx, a.Cfg.ReconcileEvery)
	if a.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Redis)
	}

	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr)
	srv := &http.Server{Engine: a.Router}
	return srv.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
