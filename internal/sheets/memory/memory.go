package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
	ports "ordini/internal/sheets"
)

// Store serves the product and price tables from memory.
type Store struct {
	mu       sync.Mutex
	products []core.Product
	prices   []core.PriceEntry
}

var _ ports.CatalogSource = (*Store)(nil)

func New(products []core.Product, prices []core.PriceEntry) *Store {
	return &Store{
		products: dedupeProducts(products),
		prices:   append([]core.PriceEntry(nil), prices...),
	}
}

// NewFromFiles seeds the store from products.csv (code,name[,color]) and
// prices.csv (code,unit_price) under base. Missing files yield empty tables.
func NewFromFiles(base string) (*Store, error) {
	productRows, err := readCSV(filepath.Join(base, "products.csv"))
	if err != nil {
		return nil, err
	}
	priceRows, err := readCSV(filepath.Join(base, "prices.csv"))
	if err != nil {
		return nil, err
	}

	var products []core.Product
	for _, row := range productRows {
		p := core.Product{Code: cell(row, 0), Name: cell(row, 1), Color: cell(row, 2)}
		if p.Code != "" {
			products = append(products, p)
		}
	}
	var prices []core.PriceEntry
	for i, row := range priceRows {
		code := cell(row, 0)
		if code == "" {
			continue
		}
		price, err := decimal.NewFromString(strings.ReplaceAll(cell(row, 1), ",", "."))
		if err != nil {
			return nil, fmt.Errorf("prices.csv line %d: invalid price %q", i+1, cell(row, 1))
		}
		prices = append(prices, core.PriceEntry{Code: code, UnitPrice: price})
	}
	return New(products, prices), nil
}

// ListProducts implements sheets.ProductSource
func (s *Store) ListProducts(_ context.Context) ([]core.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Product(nil), s.products...), nil
}

// ListPrices implements sheets.PriceSource
func (s *Store) ListPrices(_ context.Context) ([]core.PriceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PriceEntry(nil), s.prices...), nil
}

// SetPrices replaces the price table.
func (s *Store) SetPrices(prices []core.PriceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append([]core.PriceEntry(nil), prices...)
}

// readCSV returns the data rows of a CSV file, skipping a header row,
// blank lines and lines starting with '#'.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out [][]string
	for first := true; ; first = false {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if first && strings.EqualFold(cell(row, 0), "code") {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func dedupeProducts(in []core.Product) []core.Product {
	seen := map[string]struct{}{}
	out := make([]core.Product, 0, len(in))
	for _, p := range in {
		p.Code = strings.TrimSpace(p.Code)
		if p.Code == "" {
			continue
		}
		if _, ok := seen[p.Code]; ok {
			continue
		}
		seen[p.Code] = struct{}{}
		out = append(out, p)
	}
	return out
}
