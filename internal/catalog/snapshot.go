// Package catalog keeps time-boxed snapshots of the external product and
// price tables. A snapshot is owned by whoever constructs it; there is no
// process-wide state.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ordini/internal/cache"
	"ordini/internal/core"
	applog "ordini/internal/log"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultFetchTimeout = 10 * time.Second
	// failureBackoff caps how long a failed fetch is remembered before retrying.
	failureBackoff = 30 * time.Second
)

// FetchFunc loads the full table from the external source.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Options tune a Snapshot. Zero values select the defaults.
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
}

// Snapshot serves a cached copy of an external table. Reads refresh it when
// the TTL has passed; a failed refresh falls back to the last good copy.
type Snapshot[T any] struct {
	name    string
	fetch   FetchFunc[T]
	timeout time.Duration
	fresh   *cache.LRUCache[[]T]
	group   singleflight.Group
	now     func() time.Time

	mu          sync.Mutex
	lastGood    []T
	lastGoodAt  time.Time
	lastErr     error
	failedUntil time.Time
}

// NewSnapshot wraps fetch with caching. name labels logs and errors.
func NewSnapshot[T any](name string, fetch FetchFunc[T], opts Options) *Snapshot[T] {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Snapshot[T]{
		name:    name,
		fetch:   fetch,
		timeout: timeout,
		fresh:   cache.NewLRUCache[[]T](1, ttl),
		now:     time.Now,
	}
}

// Get returns the current table. The slice is always usable: when the source
// is unavailable it is the last good copy (or empty) and err is an
// *core.ExternalSourceError describing the failure.
func (s *Snapshot[T]) Get(ctx context.Context) ([]T, error) {
	if items, ok := s.fresh.Get(s.name); ok {
		return items, nil
	}

	s.mu.Lock()
	if s.now().Before(s.failedUntil) {
		items, err := s.lastGood, s.lastErr
		s.mu.Unlock()
		return items, err
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(s.name, func() (interface{}, error) {
		// Another caller may have refreshed between our miss and now.
		if items, ok := s.fresh.Get(s.name); ok {
			return items, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lastGood, err
	}
	return v.([]T), nil
}

func (s *Snapshot[T]) refresh(ctx context.Context) ([]T, error) {
	// Detach from the caller so one cancelled request does not fail the
	// others sharing this fetch.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := s.now()
	items, err := s.fetch(fetchCtx)
	if err != nil {
		xerr := &core.ExternalSourceError{Source: s.name, Err: err}
		s.mu.Lock()
		s.lastErr = xerr
		s.failedUntil = s.now().Add(failureBackoff)
		hasFallback := s.lastGood != nil
		age := s.now().Sub(s.lastGoodAt)
		s.mu.Unlock()

		slog.WarnContext(ctx, "External source unavailable, serving last good snapshot",
			applog.FieldComponent, applog.ComponentCatalog,
			applog.FieldSource, s.name,
			applog.FieldErrorType, applog.ErrorTypeExternalSource,
			applog.FieldError, err,
			"has_fallback", hasFallback,
			"fallback_age", age.Round(time.Second).String())
		return nil, xerr
	}
	if items == nil {
		items = []T{}
	}

	s.fresh.Set(s.name, items)
	s.mu.Lock()
	s.lastGood = items
	s.lastGoodAt = s.now()
	s.lastErr = nil
	s.failedUntil = time.Time{}
	s.mu.Unlock()

	slog.DebugContext(ctx, "External snapshot refreshed",
		applog.FieldComponent, applog.ComponentCatalog,
		applog.FieldSource, s.name,
		"rows", len(items),
		"duration_ms", s.now().Sub(start).Milliseconds())
	return items, nil
}

// Invalidate forces the next Get to fetch. The last good copy stays as fallback.
func (s *Snapshot[T]) Invalidate() {
	s.fresh.Purge()
	s.mu.Lock()
	s.failedUntil = time.Time{}
	s.mu.Unlock()
}

// CleanExpired lets a cache.Manager drop the stale fresh copy.
func (s *Snapshot[T]) CleanExpired() int {
	return s.fresh.CleanExpired()
}

// Status describes the snapshot for health output.
type Status struct {
	Name       string
	Rows       int
	LastGoodAt time.Time
	LastError  string
}

func (s *Snapshot[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Name: s.name, Rows: len(s.lastGood), LastGoodAt: s.lastGoodAt}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
