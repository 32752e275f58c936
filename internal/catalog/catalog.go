package catalog

import (
	"context"

	"ordini/internal/cache"
	"ordini/internal/core"
	"ordini/internal/sheets"
)

// Catalog pairs the product and price snapshots of one source.
type Catalog struct {
	products *Snapshot[core.Product]
	prices   *Snapshot[core.PriceEntry]
}

func New(src sheets.CatalogSource, opts Options) *Catalog {
	return &Catalog{
		products: NewSnapshot("products", src.ListProducts, opts),
		prices:   NewSnapshot("prices", src.ListPrices, opts),
	}
}

// Products returns the product table; see Snapshot.Get for the error contract.
func (c *Catalog) Products(ctx context.Context) ([]core.Product, error) {
	return c.products.Get(ctx)
}

// Prices returns the price table in source order; see Snapshot.Get.
func (c *Catalog) Prices(ctx context.Context) ([]core.PriceEntry, error) {
	return c.prices.Get(ctx)
}

// Product looks up one product by exact code.
func (c *Catalog) Product(ctx context.Context, code string) (core.Product, bool, error) {
	products, err := c.products.Get(ctx)
	for _, p := range products {
		if p.Code == code {
			return p, true, err
		}
	}
	return core.Product{}, false, err
}

// Refresh drops both fresh copies and fetches them again.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.products.Invalidate()
	c.prices.Invalidate()
	_, perr := c.products.Get(ctx)
	_, qerr := c.prices.Get(ctx)
	if perr != nil {
		return perr
	}
	return qerr
}

// Register hands both snapshots to a cache manager for expiry cleanup.
func (c *Catalog) Register(m *cache.Manager) {
	m.Register(c.products)
	m.Register(c.prices)
}

func (c *Catalog) Status() []Status {
	return []Status{c.products.Status(), c.prices.Status()}
}
