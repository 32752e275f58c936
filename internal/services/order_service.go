package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
	"ordini/internal/events"
	applog "ordini/internal/log"
	"ordini/internal/pricing"
)

// Store is the durable side of the engine: pending orders, the completion
// transaction and history.
type Store interface {
	CreatePendingOrder(ctx context.Context, n core.NewPendingOrder) (core.PendingOrder, error)
	GetPendingOrder(ctx context.Context, id string) (core.PendingOrder, error)
	ListPendingOrders(ctx context.Context) (map[string][]core.PendingOrder, error)
	UpdatePendingOrder(ctx context.Context, id string, patch core.PendingOrderPatch) (core.PendingOrder, error)
	DeletePendingOrder(ctx context.Context, id string) error
	CompleteOrder(ctx context.Context, id string) (core.CompletionResult, error)
	ListHistory(ctx context.Context, start, end core.Date) ([]core.LineItemView, error)
	EditLineItem(ctx context.Context, bucketID int64, code string, qty decimal.Decimal) error
	EditLineItemByID(ctx context.Context, lineItemID int64, qty decimal.Decimal) error
	DeleteLineItem(ctx context.Context, bucketID int64, code string) (core.HistoryDeletion, error)
	DeleteLineItemByID(ctx context.Context, lineItemID int64) (core.HistoryDeletion, error)
}

// Catalog serves the external product and price tables. Both methods may
// return a usable slice together with an *core.ExternalSourceError.
type Catalog interface {
	Products(ctx context.Context) ([]core.Product, error)
	Prices(ctx context.Context) ([]core.PriceEntry, error)
}

// OrderService orchestrates pending orders, completion, history and
// statistics across storage, the catalog and event publishers.
type OrderService struct {
	store     Store
	catalog   Catalog
	publisher events.Publisher
	logger    *applog.Logger
}

// NewOrderService wires the engine. publisher may be nil.
func NewOrderService(store Store, catalog Catalog, publisher events.Publisher, logger *applog.Logger) *OrderService {
	if logger == nil {
		logger = applog.Default(applog.ComponentOrders)
	}
	return &OrderService{
		store:     store,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentOrders),
	}
}

// CreatePendingOrder stores a new pending order. A missing product name is
// taken from the catalog when the code is known there.
func (s *OrderService) CreatePendingOrder(ctx context.Context, n core.NewPendingOrder) (core.PendingOrder, error) {
	if strings.TrimSpace(n.ProductName) == "" && s.catalog != nil {
		n.ProductName = s.productName(ctx, strings.TrimSpace(n.ProductCode))
	}
	o, err := s.store.CreatePendingOrder(ctx, n)
	if err != nil {
		return core.PendingOrder{}, fmt.Errorf("create pending order: %w", err)
	}
	return o, nil
}

func (s *OrderService) productName(ctx context.Context, code string) string {
	products, err := s.catalog.Products(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Product catalog unavailable, keeping name empty",
			applog.FieldProductCode, code,
			applog.FieldErrorType, applog.ErrorTypeExternalSource,
			applog.FieldError, err)
	}
	for _, p := range products {
		if p.Code == code {
			return p.Name
		}
	}
	return ""
}

func (s *OrderService) GetPendingOrder(ctx context.Context, id string) (core.PendingOrder, error) {
	return s.store.GetPendingOrder(ctx, id)
}

// ListPendingOrders returns pending orders keyed by delivery date.
func (s *OrderService) ListPendingOrders(ctx context.Context) (map[string][]core.PendingOrder, error) {
	grouped, err := s.store.ListPendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return grouped, nil
}

func (s *OrderService) UpdatePendingOrder(ctx context.Context, id string, patch core.PendingOrderPatch) (core.PendingOrder, error) {
	o, err := s.store.UpdatePendingOrder(ctx, id, patch)
	if err != nil {
		return core.PendingOrder{}, fmt.Errorf("update pending order %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Pending order updated",
		applog.NewFields().
			WithOperation(applog.OpUpdate).
			WithOrder(o.ID, o.DeliveryDate.String(), o.ProductCode, o.Quantity.String()).
			ToSlice()...)
	return o, nil
}

func (s *OrderService) DeletePendingOrder(ctx context.Context, id string) error {
	if err := s.store.DeletePendingOrder(ctx, id); err != nil {
		return fmt.Errorf("delete pending order %s: %w", id, err)
	}
	return nil
}

// CompleteOrder moves the pending order into history and then publishes
// OrderCompleted. Publishing never changes the outcome.
func (s *OrderService) CompleteOrder(ctx context.Context, id string) (core.CompletionResult, error) {
	s.logger.DebugContext(ctx, "Completion requested",
		applog.FieldOrderID, id,
		applog.FieldState, core.StatePending)

	res, err := s.store.CompleteOrder(ctx, id)
	if err != nil {
		return core.CompletionResult{}, fmt.Errorf("complete order %s: %w", id, err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderCompleted(ctx, events.FromCompletion(res)); err != nil {
			// Don't fail the request - the completion is committed.
			s.logger.WarnContext(ctx, "Failed to publish order completed event",
				applog.FieldOrderID, id,
				applog.FieldOperation, applog.OpPublish,
				applog.FieldError, err)
		}
	}
	return res, nil
}

// ListHistory returns completed line items with bucket dates in [start, end].
func (s *OrderService) ListHistory(ctx context.Context, start, end core.Date) ([]core.LineItemView, error) {
	views, err := s.store.ListHistory(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return views, nil
}

func (s *OrderService) EditHistoryLineItem(ctx context.Context, bucketID int64, code string, qty decimal.Decimal) error {
	if err := s.store.EditLineItem(ctx, bucketID, code, qty); err != nil {
		return fmt.Errorf("edit line item %d/%s: %w", bucketID, code, err)
	}
	return nil
}

func (s *OrderService) EditHistoryLineItemByID(ctx context.Context, lineItemID int64, qty decimal.Decimal) error {
	if err := s.store.EditLineItemByID(ctx, lineItemID, qty); err != nil {
		return fmt.Errorf("edit line item %d: %w", lineItemID, err)
	}
	return nil
}

func (s *OrderService) DeleteHistoryLineItem(ctx context.Context, bucketID int64, code string) (core.HistoryDeletion, error) {
	res, err := s.store.DeleteLineItem(ctx, bucketID, code)
	if err != nil {
		return core.HistoryDeletion{}, fmt.Errorf("delete line item %d/%s: %w", bucketID, code, err)
	}
	return res, nil
}

func (s *OrderService) DeleteHistoryLineItemByID(ctx context.Context, lineItemID int64) (core.HistoryDeletion, error) {
	res, err := s.store.DeleteLineItemByID(ctx, lineItemID)
	if err != nil {
		return core.HistoryDeletion{}, fmt.Errorf("delete line item %d: %w", lineItemID, err)
	}
	return res, nil
}

// GenerateStats aggregates completed line items of the fiscal period per
// product and prices them. An unavailable price source yields zero prices,
// never an error.
func (s *OrderService) GenerateStats(ctx context.Context, year, month int) (core.StatSummary, error) {
	period, err := core.ComputePeriod(year, month)
	if err != nil {
		return core.StatSummary{}, err
	}
	logger := s.logger.WithComponent(applog.ComponentStats).With(applog.FieldPeriod, period.Label)

	items, err := s.store.ListHistory(ctx, period.Start, period.End)
	if err != nil {
		return core.StatSummary{}, fmt.Errorf("load history for %s: %w", period.Label, err)
	}

	summary := core.StatSummary{
		Period:         period,
		PeriodText:     period.Text(),
		TotalKilograms: decimal.Zero,
		TotalAmount:    decimal.Zero,
		PerProduct:     []core.ProductStat{},
	}
	if len(items) == 0 {
		logger.DebugContext(ctx, "No completed orders in period")
		return summary, nil
	}

	byCode := make(map[string]*core.ProductStat)
	var codes []string
	for _, it := range items {
		st, ok := byCode[it.ProductCode]
		if !ok {
			st = &core.ProductStat{Code: it.ProductCode, TotalQuantity: decimal.Zero}
			byCode[it.ProductCode] = st
			codes = append(codes, it.ProductCode)
		}
		if st.Name == "" {
			st.Name = it.ProductName
		}
		st.OrderCount++
		st.TotalQuantity = st.TotalQuantity.Add(it.Quantity)
	}

	unit, stale := s.resolvePrices(ctx, logger, codes)
	summary.PricesStale = stale
	s.fillNames(ctx, byCode)

	total := decimal.Zero
	amount := decimal.Zero
	for _, code := range codes {
		st := byCode[code]
		st.UnitPrice = unit[code]
		st.TotalPrice = st.UnitPrice.Mul(st.TotalQuantity)
		total = total.Add(st.TotalQuantity)
		amount = amount.Add(st.TotalPrice)
		summary.TotalOrders += st.OrderCount
		summary.PerProduct = append(summary.PerProduct, *st)
	}
	sort.SliceStable(summary.PerProduct, func(i, j int) bool {
		a, b := summary.PerProduct[i], summary.PerProduct[j]
		if c := a.TotalQuantity.Cmp(b.TotalQuantity); c != 0 {
			return c > 0
		}
		return a.Code < b.Code
	})
	summary.TotalKilograms = total.Round(2)
	summary.TotalAmount = amount

	logger.InfoContext(ctx, "Statistics generated",
		applog.FieldOperation, applog.OpStats,
		"products", len(summary.PerProduct),
		"total_orders", summary.TotalOrders,
		"total_kg", summary.TotalKilograms.String())
	return summary, nil
}

func (s *OrderService) resolvePrices(ctx context.Context, logger *applog.Logger, codes []string) (map[string]decimal.Decimal, bool) {
	var entries []core.PriceEntry
	stale := false
	if s.catalog != nil {
		var err error
		entries, err = s.catalog.Prices(ctx)
		if err != nil {
			stale = true
			logger.WarnContext(ctx, "Price source unavailable, using last known prices",
				applog.FieldErrorType, applog.ErrorTypeExternalSource,
				applog.FieldError, err,
				"entries", len(entries))
		}
	}
	resolver := pricing.NewResolver(entries)
	unit := resolver.Resolve(ctx, codes)
	if fuzzy := resolver.FuzzyMatches(); len(fuzzy) > 0 {
		logger.InfoContext(ctx, "Prices resolved with fuzzy fallback", "count", len(fuzzy))
	}
	return unit, stale
}

// fillNames completes missing product names from the catalog.
func (s *OrderService) fillNames(ctx context.Context, byCode map[string]*core.ProductStat) {
	if s.catalog == nil {
		return
	}
	missing := false
	for _, st := range byCode {
		if st.Name == "" {
			missing = true
			break
		}
	}
	if !missing {
		return
	}
	products, _ := s.catalog.Products(ctx)
	for _, p := range products {
		if st, ok := byCode[p.Code]; ok && st.Name == "" {
			st.Name = p.Name
		}
	}
}
