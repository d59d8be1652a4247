package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/roadmap-tracker/internal/http/handlers"
	httpMW "github.com/yungbote/roadmap-tracker/internal/http/middleware"
	"github.com/yungbote/roadmap-tracker/internal/observability"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware
	RateLimit      gin.HandlerFunc

	HealthHandler   *httpH.HealthHandler
	CatalogHandler  *httpH.CatalogHandler
	ProgressHandler *httpH.ProgressHandler
	StudyHandler    *httpH.StudyHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	httpH.RegisterValidation()

	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = observability.DefaultServiceName
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")

	public := api.Group("/")
	{
		// Keyed by client IP here.
		if cfg.RateLimit != nil {
			public.Use(cfg.RateLimit)
		}

		// Catalog
		if cfg.CatalogHandler != nil {
			public.GET("/catalog/topics", cfg.CatalogHandler.ListTopics)
			public.GET("/catalog/topics/:topicId", cfg.CatalogHandler.GetTopic)
		}
	}

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}
		// Keyed by user once the caller is known.
		if cfg.RateLimit != nil {
			protected.Use(cfg.RateLimit)
		}

		// Progress
		if h := cfg.ProgressHandler; h != nil {
			protected.GET("/progress/stats", h.GetOverallStats)
			protected.GET("/progress/topics-stats", h.GetAllTopicsStats)
			protected.GET("/progress/achievements", h.GetAchievements)
			protected.GET("/progress/export", h.Export)
			protected.POST("/progress/validate", h.Validate)
			protected.POST("/progress/import", h.Import)
			protected.DELETE("/progress", h.Clear)

			protected.GET("/progress/topics/:topicId", h.GetTopicProgress)
			protected.GET("/progress/topics/:topicId/stats", h.GetTopicStats)
			protected.GET("/progress/topics/:topicId/goal", h.GetGoal)
			protected.PUT("/progress/topics/:topicId/goal", h.SetGoal)
			protected.GET("/progress/topics/:topicId/resources/:resourceId", h.GetResource)
			protected.PUT("/progress/topics/:topicId/resources/:resourceId", h.MarkResource)
		}

		// Study sessions
		if h := cfg.StudyHandler; h != nil {
			protected.POST("/study/sessions", h.StartSession)
			protected.POST("/study/sessions/:id/end", h.EndSession)
			protected.GET("/study/time", h.StudyTime)
			protected.GET("/study/streak", h.Streak)
			protected.GET("/study/analytics", h.Analytics)
		}
	}

	return r
}
