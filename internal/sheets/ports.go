package sheets

import (
	"context"

	"ordini/internal/core"
)

// Ports for the externally maintained spreadsheets. Implementations fetch
// rows; caching and fallback live in internal/catalog.
type (
	// ProductSource returns the product catalog.
	ProductSource interface {
		ListProducts(ctx context.Context) ([]core.Product, error)
	}

	// PriceSource returns the price table in sheet order.
	PriceSource interface {
		ListPrices(ctx context.Context) ([]core.PriceEntry, error)
	}

	// CatalogSource provides both tables.
	CatalogSource interface {
		ProductSource
		PriceSource
	}
)
