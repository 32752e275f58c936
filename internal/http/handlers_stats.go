package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ordini/internal/core"
	applog "ordini/internal/log"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p, err := ParseStatsParams(r.URL.Query(), time.Now())
	if err != nil {
		writeError(w, r, applog.OpStats, err)
		return
	}
	summary, err := s.getStats(r.Context(), p.Year, p.Month)
	if err != nil {
		writeError(w, r, applog.OpStats, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toStatsResponse(summary))
}

// getStats serves a summary from the cache or generates and caches it.
func (s *Server) getStats(ctx context.Context, year, month int) (core.StatSummary, error) {
	key := statsKey(year, month)
	if summary, ok := s.statsCache.Get(key); ok {
		applog.FromContext(ctx).DebugContext(ctx, "Stats cache hit",
			applog.FieldYear, year,
			applog.FieldMonth, month)
		return summary, nil
	}

	gen := s.statsGen.Load()
	summary, err := s.engine.GenerateStats(ctx, year, month)
	if err != nil {
		return core.StatSummary{}, fmt.Errorf("generate stats (year=%d, month=%d): %w", year, month, err)
	}
	s.cacheStats(ctx, key, gen, summary)
	return summary, nil
}

// cacheStats stores summary unless its prices are stale or the history
// changed while it was being generated.
func (s *Server) cacheStats(ctx context.Context, key string, gen uint64, summary core.StatSummary) {
	if summary.PricesStale {
		applog.FromContext(ctx).DebugContext(ctx, "Stats not cached, prices stale", "key", key)
		return
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsGen.Load() != gen {
		applog.FromContext(ctx).DebugContext(ctx, "Stats not cached, history changed", "key", key)
		return
	}
	s.statsCache.Set(key, summary)
}

// invalidateStats drops every cached summary. A single completion can land
// in both a month and its year, so entries are not tracked individually.
func (s *Server) invalidateStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.statsGen.Add(1)
	s.statsCache.Purge()
}
