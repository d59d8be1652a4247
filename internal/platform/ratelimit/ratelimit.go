package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

// Limiter admits at most Limit calls per key per Window. When a call is
// refused, the duration is how long the caller should wait before retrying.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

func (c Config) normalized() Config {
	if c.Limit <= 0 {
		c.Limit = 60
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = "ratelimit"
	}
	return c
}

// ---------------- in-memory ----------------

type memoryEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type MemoryLimiter struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]*memoryEntry
	lastSweep time.Time
}

func NewMemoryLimiter(cfg Config, baseLog *logger.Logger) *MemoryLimiter {
	cfg = cfg.normalized()
	return &MemoryLimiter{
		cfg:     cfg,
		log:     baseLog.With("component", "MemoryLimiter"),
		now:     time.Now,
		entries: map[string]*memoryEntry{},
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(now)

	e := m.entries[key]
	if e == nil {
		every := m.cfg.Window / time.Duration(m.cfg.Limit)
		e = &memoryEntry{lim: rate.NewLimiter(rate.Every(every), m.cfg.Limit)}
		m.entries[key] = e
	}
	e.lastSeen = now

	r := e.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, m.cfg.Window, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

// sweepLocked drops keys idle for longer than two windows. A fully refilled
// bucket behaves the same as a fresh one.
func (m *MemoryLimiter) sweepLocked(now time.Time) {
	if now.Sub(m.lastSweep) < m.cfg.Window {
		return
	}
	m.lastSweep = now
	for k, e := range m.entries {
		if now.Sub(e.lastSeen) > 2*m.cfg.Window {
			delete(m.entries, k)
		}
	}
}

// ---------------- redis ----------------

// fixedWindow increments the counter and starts its expiry on first hit.
// Returns {count, pttl}.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

type RedisLimiter struct {
	cfg Config
	log *logger.Logger
	rdb redis.UniversalClient
}

func NewRedisLimiter(rdb redis.UniversalClient, cfg Config, baseLog *logger.Logger) *RedisLimiter {
	return &RedisLimiter{
		cfg: cfg.normalized(),
		log: baseLog.With("component", "RedisLimiter"),
		rdb: rdb,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := r.cfg.Prefix + ":" + key
	res, err := fixedWindow.Run(ctx, r.rdb, []string{k}, r.cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	if res[0] > int64(r.cfg.Limit) {
		return false, time.Duration(res[1]) * time.Millisecond, nil
	}
	return true, 0, nil
}

// NewRedisClient dials addr and pings it once.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
