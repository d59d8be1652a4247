package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/progress"
)

type MetricsConfig struct {
	Enabled        bool
	Addr           string
	ScrapeInterval time.Duration
}

// Metrics is nil when disabled; every method is nil-safe.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	rateLimited *CounterVec

	progressMarks  *CounterVec
	goalWrites     *CounterVec
	mirrorFailures *CounterVec
	imports        *CounterVec
	importedRows   *CounterVec
	exports        *CounterVec
	clears         *CounterVec
	studySessions  *CounterVec

	ledgerSize *GaugeVec
	dbStats    *GaugeVec
	redisUp    *Gauge
	redisPing  *Gauge

	scrapeInterval time.Duration
}

func NewMetrics(log *logger.Logger, cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	interval := cfg.ScrapeInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &Metrics{
		apiRequests: NewCounterVec("rt_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"rt_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		),
		apiInflight:    NewGauge("rt_api_inflight_requests", "In-flight API requests."),
		rateLimited:    NewCounterVec("rt_api_rate_limited_total", "Requests refused by the rate limiter.", []string{"route"}),
		progressMarks:  NewCounterVec("rt_progress_marks_total", "Resource progress writes by status.", []string{"status"}),
		goalWrites:     NewCounterVec("rt_topic_goal_writes_total", "Topic goal writes.", []string{"topic"}),
		mirrorFailures: NewCounterVec("rt_mirror_failures_total", "Durable mirror writes that failed after the ledger applied.", []string{"op"}),
		imports:        NewCounterVec("rt_imports_total", "Import attempts by outcome.", []string{"outcome"}),
		importedRows:   NewCounterVec("rt_imported_records_total", "Records written by imports.", []string{"mode"}),
		exports:        NewCounterVec("rt_exports_total", "Exports by type/format.", []string{"type", "format"}),
		clears:         NewCounterVec("rt_clears_total", "Progress clears by scope.", []string{"scope"}),
		studySessions:  NewCounterVec("rt_study_sessions_total", "Study session transitions.", []string{"event"}),
		ledgerSize:     NewGaugeVec("rt_ledger_entries", "Entries held by the in-memory progress ledger.", []string{"kind"}),
		dbStats:        NewGaugeVec("rt_db_stats", "Database connection pool stats.", []string{"metric"}),
		redisUp:        NewGauge("rt_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing:      NewGauge("rt_redis_ping_seconds", "Redis ping latency in seconds."),
		scrapeInterval: interval,
	}
	log.Info("metrics enabled", "addr", cfg.Addr, "scrape_interval", interval)
	return m
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.WriteHTTP)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		log.Info("metrics server listening", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight, m.rateLimited,
		m.progressMarks, m.goalWrites, m.mirrorFailures,
		m.imports, m.importedRows, m.exports, m.clears, m.studySessions,
		m.ledgerSize, m.dbStats, m.redisUp, m.redisPing,
	}
	for _, pw := range all {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.Inc(route)
}

func (m *Metrics) IncProgressMark(status string) {
	if m == nil {
		return
	}
	m.progressMarks.Inc(status)
}

func (m *Metrics) IncGoalWrite(topicID string) {
	if m == nil {
		return
	}
	m.goalWrites.Inc(topicID)
}

func (m *Metrics) IncMirrorFailure(op string) {
	if m == nil {
		return
	}
	m.mirrorFailures.Inc(op)
}

// ObserveImport records one import attempt. outcome is "ok", "invalid" or
// "error"; mode is "merge" or "skip".
func (m *Metrics) ObserveImport(outcome, mode string, imported int) {
	if m == nil {
		return
	}
	m.imports.Inc(outcome)
	if imported > 0 {
		m.importedRows.Add(float64(imported), mode)
	}
}

func (m *Metrics) IncExport(exportType, format string) {
	if m == nil {
		return
	}
	m.exports.Inc(exportType, format)
}

func (m *Metrics) IncClear(scope string) {
	if m == nil {
		return
	}
	m.clears.Inc(scope)
}

func (m *Metrics) IncStudySession(event string) {
	if m == nil {
		return
	}
	m.studySessions.Inc(event)
}

// collectEvery runs fn on every scrape tick until ctx ends.
func (m *Metrics) collectEvery(ctx context.Context, fn func(context.Context)) {
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.collectEvery(ctx, func(context.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
			return
		}
		stats := sqlDB.Stats()
		for name, v := range map[string]float64{
			"open_connections":      float64(stats.OpenConnections),
			"in_use":                float64(stats.InUse),
			"idle":                  float64(stats.Idle),
			"wait_count":            float64(stats.WaitCount),
			"wait_duration_seconds": stats.WaitDuration.Seconds(),
			"max_open_connections":  float64(stats.MaxOpenConnections),
		} {
			m.dbStats.Set(v, name)
		}
	})
}

// StartRedisCollector pings the shared client; it does not own or close it.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	m.collectEvery(ctx, func(ctx context.Context) {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			log.Warn("metrics: redis ping failed", "error", err)
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

// StartLedgerCollector publishes how many users, rows and goals the
// in-memory ledger holds.
func (m *Metrics) StartLedgerCollector(ctx context.Context, ledger *progress.Ledger) {
	if m == nil || ledger == nil {
		return
	}
	m.collectEvery(ctx, func(context.Context) { m.observeLedger(ledger.Size()) })
}

func (m *Metrics) observeLedger(sz progress.LedgerSize) {
	m.ledgerSize.Set(float64(sz.Users), "users")
	m.ledgerSize.Set(float64(sz.Resources), "resources")
	m.ledgerSize.Set(float64(sz.Goals), "goals")
	m.ledgerSize.Set(float64(sz.Unsynced), "unsynced_users")
}
