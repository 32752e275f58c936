package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ordini/internal/cache"
	"ordini/internal/core"
)

type stubSource struct {
	products []core.Product
	prices   []core.PriceEntry
	err      error
}

func (s *stubSource) ListProducts(ctx context.Context) ([]core.Product, error) {
	return s.products, s.err
}

func (s *stubSource) ListPrices(ctx context.Context) ([]core.PriceEntry, error) {
	return s.prices, s.err
}

func TestCatalogLookups(t *testing.T) {
	src := &stubSource{
		products: []core.Product{{Code: "X9", Name: "Flakes"}},
		prices:   []core.PriceEntry{{Code: "X9", UnitPrice: decimal.NewFromInt(4)}},
	}
	c := New(src, Options{TTL: time.Minute})
	ctx := context.Background()

	p, ok, err := c.Product(ctx, "X9")
	if err != nil || !ok || p.Name != "Flakes" {
		t.Fatalf("unexpected lookup: %+v %v %v", p, ok, err)
	}
	if _, ok, _ := c.Product(ctx, "nope"); ok {
		t.Fatal("unknown code must not match")
	}
	prices, err := c.Prices(ctx)
	if err != nil || len(prices) != 1 {
		t.Fatalf("prices: %v %v", prices, err)
	}

	m := cache.NewManager()
	c.Register(m)
	if n := m.CleanNow(); n != 0 {
		t.Fatalf("nothing should be expired yet, cleaned %d", n)
	}
}

func TestCatalogRefreshReportsSourceFailure(t *testing.T) {
	src := &stubSource{products: []core.Product{{Code: "A"}}}
	c := New(src, Options{TTL: time.Minute})
	ctx := context.Background()
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	src.err = errors.New("sheet gone")
	err := c.Refresh(ctx)
	if !core.IsExternalSource(err) {
		t.Fatalf("expected ExternalSourceError, got %v", err)
	}
	products, _ := c.Products(ctx)
	if len(products) != 1 {
		t.Fatalf("last good products should still be served, got %v", products)
	}
	for _, st := range c.Status() {
		if st.LastError == "" {
			t.Fatalf("status should carry the failure: %+v", st)
		}
	}
}
