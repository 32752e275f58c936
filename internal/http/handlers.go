package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"ordini/internal/cache"
	"ordini/internal/core"
	applog "ordini/internal/log"
	"ordini/internal/middleware/ratelimit"
	"ordini/internal/middleware/security"
)

// requireAdmin checks the bearer token against the configured admin token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.admin == "" {
			next(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.admin)) != 1 {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Admin authorization failed",
				applog.FieldClientIP, s.detector.ExtractClientIP(r),
				applog.FieldPath, r.URL.Path)
			NewJSONResponse().
				Status(http.StatusUnauthorized).
				Header("WWW-Authenticate", `Bearer realm="ordini"`).
				Error("unauthorized", "admin token required").
				Write(w, r)
			return
		}
		next(w, r)
	})
}

type snapshotDTO struct {
	Name       string     `json:"name"`
	Rows       int        `json:"rows"`
	LastGoodAt *time.Time `json:"last_good_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

type healthResponse struct {
	Status     string                    `json:"status"`
	Uptime     string                    `json:"uptime"`
	Catalog    []snapshotDTO             `json:"catalog,omitempty"`
	StatsCache cache.Stats               `json:"stats_cache"`
	RateLimit  ratelimit.Metrics         `json:"rate_limit"`
	Security   security.DetectionMetrics `json:"security"`
}

// handleHealth always answers 200; a degraded catalog is reported, not fatal.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		StatsCache: s.statsCache.Stats(),
		RateLimit:  s.limiter.GetMetrics(),
		Security:   s.detector.GetMetrics(),
	}
	if s.catalog != nil {
		for _, st := range s.catalog.Status() {
			dto := snapshotDTO{Name: st.Name, Rows: st.Rows, LastError: st.LastError}
			if !st.LastGoodAt.IsZero() {
				at := st.LastGoodAt
				dto.LastGoodAt = &at
			}
			if st.LastError != "" {
				resp.Status = "degraded"
			}
			resp.Catalog = append(resp.Catalog, dto)
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	resp := productsResponse{Products: []productDTO{}}
	if s.catalog == nil {
		writeJSON(w, r, http.StatusOK, resp)
		return
	}
	products, err := s.catalog.Products(r.Context())
	if err != nil {
		if !core.IsExternalSource(err) || len(products) == 0 {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Product catalog unavailable",
				applog.FieldErrorType, applog.ErrorTypeExternalSource,
				applog.FieldError, err)
			NewJSONResponse().
				Status(http.StatusBadGateway).
				Error(applog.ErrorTypeExternalSource, "product catalog unavailable").
				Write(w, r)
			return
		}
		resp.Stale = true
	}
	for _, p := range products {
		resp.Products = append(resp.Products, productDTO{Code: p.Code, Name: p.Name, Color: p.Color, Extra: p.Extra})
	}
	writeJSON(w, r, http.StatusOK, resp)
}
