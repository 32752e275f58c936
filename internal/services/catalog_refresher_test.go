package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestDefaultCatalogRefresherConfig(t *testing.T) {
	p := NewCatalogRefresher(&countingRefresher{}, CatalogRefresherConfig{}, nil)
	if p.config.Interval != 4*time.Minute {
		t.Errorf("expected default interval 4m, got %v", p.config.Interval)
	}
	if p.IsRunning() {
		t.Error("refresher should not be running initially")
	}
}

func TestCatalogRefresher_StartStop(t *testing.T) {
	target := &countingRefresher{}
	p := NewCatalogRefresher(target, CatalogRefresherConfig{Interval: 10 * time.Millisecond}, nil)
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for target.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if target.calls.Load() < 2 {
		t.Fatalf("expected repeated refreshes, got %d", target.calls.Load())
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("refresher should not be running after Stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

func TestCatalogRefresher_RecordsFailure(t *testing.T) {
	target := &countingRefresher{err: errors.New("sheet unreachable")}
	p := NewCatalogRefresher(target, CatalogRefresherConfig{Interval: time.Hour}, nil)

	p.refresh(context.Background())
	at, err := p.LastResult()
	if err == nil || at.IsZero() {
		t.Fatalf("failure not recorded: %v %v", at, err)
	}
	if p.failures != 1 {
		t.Fatalf("expected 1 consecutive failure, got %d", p.failures)
	}

	target.err = nil
	p.refresh(context.Background())
	if _, err := p.LastResult(); err != nil || p.failures != 0 {
		t.Fatalf("success should reset failures: %v %d", err, p.failures)
	}
}
