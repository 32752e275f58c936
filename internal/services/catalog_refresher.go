package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "ordini/internal/log"
)

// Refresher reloads an external table. catalog.Catalog implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// CatalogRefresherConfig holds configuration for the catalog refresher
type CatalogRefresherConfig struct {
	// Interval between refreshes (default: 4m, under the default catalog TTL)
	Interval time.Duration
}

// DefaultCatalogRefresherConfig returns sensible defaults
func DefaultCatalogRefresherConfig() CatalogRefresherConfig {
	return CatalogRefresherConfig{Interval: 4 * time.Minute}
}

// CatalogRefresher keeps catalog snapshots warm in the background so that
// requests rarely wait on the external source.
type CatalogRefresher struct {
	target Refresher
	config CatalogRefresherConfig
	logger *applog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastErr  error
	lastRun  time.Time
	failures int
}

func NewCatalogRefresher(target Refresher, config CatalogRefresherConfig, logger *applog.Logger) *CatalogRefresher {
	if config.Interval <= 0 {
		config.Interval = DefaultCatalogRefresherConfig().Interval
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentCatalog)
	}
	return &CatalogRefresher{
		target: target,
		config: config,
		logger: logger.WithComponent(applog.ComponentCatalog),
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (p *CatalogRefresher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("catalog refresher is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Catalog refresher started", "interval", p.config.Interval)
	return nil
}

// Stop gracefully stops the refresher and waits for the loop to exit.
func (p *CatalogRefresher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Catalog refresher stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Catalog refresher stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *CatalogRefresher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastResult reports the time and error of the latest refresh.
func (p *CatalogRefresher) LastResult() (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun, p.lastErr
}

func (p *CatalogRefresher) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Refresh immediately on startup
	p.refresh(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *CatalogRefresher) refresh(ctx context.Context) {
	err := p.target.Refresh(ctx)

	p.mu.Lock()
	p.lastRun = time.Now()
	p.lastErr = err
	if err != nil {
		p.failures++
	} else {
		p.failures = 0
	}
	failures := p.failures
	p.mu.Unlock()

	if err != nil {
		p.logger.WarnContext(ctx, "Catalog refresh failed",
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldErrorType, applog.ErrorTypeExternalSource,
			applog.FieldError, err,
			"consecutive_failures", failures)
		return
	}
	p.logger.DebugContext(ctx, "Catalog refreshed", applog.FieldOperation, applog.OpRefresh)
}
