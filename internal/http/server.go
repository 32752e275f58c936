package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"ordini/internal/cache"
	"ordini/internal/catalog"
	"ordini/internal/core"
	"ordini/internal/events"
	applog "ordini/internal/log"
	"ordini/internal/middleware/ratelimit"
	"ordini/internal/middleware/security"
)

// Engine is the order lifecycle as the API sees it.
type Engine interface {
	CreatePendingOrder(ctx context.Context, n core.NewPendingOrder) (core.PendingOrder, error)
	GetPendingOrder(ctx context.Context, id string) (core.PendingOrder, error)
	ListPendingOrders(ctx context.Context) (map[string][]core.PendingOrder, error)
	UpdatePendingOrder(ctx context.Context, id string, patch core.PendingOrderPatch) (core.PendingOrder, error)
	DeletePendingOrder(ctx context.Context, id string) error
	CompleteOrder(ctx context.Context, id string) (core.CompletionResult, error)
	ListHistory(ctx context.Context, start, end core.Date) ([]core.LineItemView, error)
	EditHistoryLineItem(ctx context.Context, bucketID int64, code string, qty decimal.Decimal) error
	EditHistoryLineItemByID(ctx context.Context, lineItemID int64, qty decimal.Decimal) error
	DeleteHistoryLineItem(ctx context.Context, bucketID int64, code string) (core.HistoryDeletion, error)
	DeleteHistoryLineItemByID(ctx context.Context, lineItemID int64) (core.HistoryDeletion, error)
	GenerateStats(ctx context.Context, year, month int) (core.StatSummary, error)
}

// ProductCatalog serves the product table and the health of its snapshots.
type ProductCatalog interface {
	Products(ctx context.Context) ([]core.Product, error)
	Status() []catalog.Status
}

// Options configure NewServer. Zero values select defaults.
type Options struct {
	// AdminToken guards mutating and history routes. Empty disables the gate.
	AdminToken string

	StatsCacheSize int
	StatsCacheTTL  time.Duration

	// Events, when set, purges the stats cache on every completion.
	Events *events.Broadcaster

	RateLimit ratelimit.Config
	Logger    *applog.Logger
}

type Server struct {
	http.Server
	engine   Engine
	catalog  ProductCatalog
	logger   *applog.Logger
	admin    string
	started  time.Time
	limiter  *ratelimit.Limiter
	detector *security.Detector

	statsCache   *cache.LRUCache[core.StatSummary]
	statsMu      sync.Mutex // orders generation checks against purges
	statsGen     atomic.Uint64
	unsubscribe  func()
	watchDone    chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, engine Engine, products ProductCatalog, opts Options) *Server {
	if opts.StatsCacheSize <= 0 {
		opts.StatsCacheSize = 64
	}
	if opts.StatsCacheTTL <= 0 {
		opts.StatsCacheTTL = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		engine:     engine,
		catalog:    products,
		logger:     logger.WithComponent(applog.ComponentHTTP),
		admin:      opts.AdminToken,
		started:    time.Now(),
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		detector:   security.NewDetector(),
		statsCache: cache.NewLRUCache[core.StatSummary](opts.StatsCacheSize, opts.StatsCacheTTL),
	}
	s.routes(mux)
	s.Handler = s.middleware(mux)

	if opts.Events != nil {
		ch, cancel := opts.Events.Subscribe(16)
		s.unsubscribe = cancel
		s.watchDone = make(chan struct{})
		go s.watchCompletions(ch)
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/products", s.handleListProducts)

	mux.HandleFunc("GET /api/orders/pending", s.handleListPending)
	mux.Handle("POST /api/orders/pending", s.requireAdmin(s.handleCreatePending))
	mux.Handle("PATCH /api/orders/pending/{id}", s.requireAdmin(s.handleUpdatePending))
	mux.Handle("DELETE /api/orders/pending/{id}", s.requireAdmin(s.handleDeletePending))
	mux.Handle("POST /api/orders/pending/{id}/complete", s.requireAdmin(s.handleCompleteOrder))

	mux.Handle("GET /api/history", s.requireAdmin(s.handleListHistory))
	mux.Handle("PATCH /api/history/{bucketID}/items/{code}", s.requireAdmin(s.handleEditLineItem))
	mux.Handle("DELETE /api/history/{bucketID}/items/{code}", s.requireAdmin(s.handleDeleteLineItem))
	mux.Handle("PATCH /api/history/items/{lineItemID}", s.requireAdmin(s.handleEditLineItemByID))
	mux.Handle("DELETE /api/history/items/{lineItemID}", s.requireAdmin(s.handleDeleteLineItemByID))

	mux.HandleFunc("GET /api/stats", s.handleStats)
}

// middleware wraps the mux: request logging outermost, then security
// headers, probe detection and rate limiting of writes.
func (s *Server) middleware(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, isWrite, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		NewJSONResponse().
			Status(http.StatusTooManyRequests).
			Error("rate_limited", "rate limit exceeded, retry later").
			Write(w, r)
	})(next)

	detect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				applog.FieldClientIP, s.detector.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				"user_agent", r.Header.Get("User-Agent"))
		}
		limited.ServeHTTP(w, r)
	})

	headers := security.NewHeadersMiddleware(security.APIHeadersConfig()).Middleware(detect)
	return applog.Middleware(s.logger)(headers)
}

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (s *Server) watchCompletions(ch <-chan events.OrderCompleted) {
	defer close(s.watchDone)
	for ev := range ch {
		s.invalidateStats()
		s.logger.DebugContext(context.Background(), "Stats cache purged after completion",
			applog.FieldOrderID, ev.PendingOrderID,
			applog.FieldDeliveryDate, ev.DeliveryDate.String())
	}
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
			<-s.watchDone
		}
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
