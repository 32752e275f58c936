package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

// Limiter is a fixed one-minute window limiter keyed by client IP.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*clientWindow

	rejected atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	start    time.Time
	lastSeen time.Time
	count    int
}

type Config struct {
	RequestsPerMinute int
	// CleanupInterval is how often idle clients are evicted.
	CleanupInterval time.Duration
	// IdleTimeout is how long a client may stay silent before eviction.
	IdleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup goroutine. Call Stop
// when done.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}

	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*clientWindow),
		stop:    make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Allow reports whether a request from clientIP fits in its current window.
func (l *Limiter) Allow(clientIP string) bool {
	_, ok := l.take(clientIP)
	return ok
}

// take counts one request and returns how many are left in the window.
func (l *Limiter) take(clientIP string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[clientIP]
	if !ok || now.Sub(w.start) >= window {
		w = &clientWindow{start: now}
		l.windows[clientIP] = w
	}
	w.lastSeen = now
	w.count++

	left := l.cfg.RequestsPerMinute - w.count
	if left < 0 {
		l.rejected.Add(1)
		return 0, false
	}
	return left, true
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.IdleTimeout)
	n := 0
	for ip, w := range l.windows {
		if w.lastSeen.Before(cutoff) {
			delete(l.windows, ip)
			n++
		}
	}
	return n
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop shuts down the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

type Metrics struct {
	Rejected    int64 `json:"rejected"`
	ClientCount int   `json:"client_count"`
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{Rejected: l.rejected.Load(), ClientCount: l.ActiveClients()}
}

// Middleware limits requests for which applies returns true. A nil applies
// limits every request. onLimit writes the rejection; nil writes a plain 429.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, applies func(*http.Request) bool, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	limit := strconv.Itoa(l.cfg.RequestsPerMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies != nil && !applies(r) {
				next.ServeHTTP(w, r)
				return
			}
			left, ok := l.take(extractIP(r))
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
