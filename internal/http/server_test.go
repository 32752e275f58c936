package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ordini/internal/catalog"
	"ordini/internal/core"
	"ordini/internal/events"
	applog "ordini/internal/log"
)

// fakeEngine records calls and returns canned results.
type fakeEngine struct {
	mu sync.Mutex

	pending    map[string][]core.PendingOrder
	created    []core.NewPendingOrder
	patches    map[string]core.PendingOrderPatch
	completion core.CompletionResult
	history    []core.LineItemView
	edits      []string
	stats      core.StatSummary
	statsCalls int
	// duringStats runs inside GenerateStats, outside the lock.
	duringStats func()

	err error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{pending: map[string][]core.PendingOrder{}, patches: map[string]core.PendingOrderPatch{}}
}

func (f *fakeEngine) CreatePendingOrder(ctx context.Context, n core.NewPendingOrder) (core.PendingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return core.PendingOrder{}, f.err
	}
	if err := n.Validate(); err != nil {
		return core.PendingOrder{}, err
	}
	f.created = append(f.created, n)
	return core.PendingOrder{ID: "po-1", DeliveryDate: n.DeliveryDate, ProductCode: n.ProductCode, ProductName: n.ProductName, Quantity: n.Quantity}, nil
}

func (f *fakeEngine) GetPendingOrder(ctx context.Context, id string) (core.PendingOrder, error) {
	return core.PendingOrder{}, core.ErrNotFound
}

func (f *fakeEngine) ListPendingOrders(ctx context.Context) (map[string][]core.PendingOrder, error) {
	return f.pending, f.err
}

func (f *fakeEngine) UpdatePendingOrder(ctx context.Context, id string, patch core.PendingOrderPatch) (core.PendingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return core.PendingOrder{}, f.err
	}
	f.patches[id] = patch
	o := core.PendingOrder{ID: id, Quantity: decimal.NewFromInt(1)}
	return patch.Apply(o), nil
}

func (f *fakeEngine) DeletePendingOrder(ctx context.Context, id string) error {
	return f.err
}

func (f *fakeEngine) CompleteOrder(ctx context.Context, id string) (core.CompletionResult, error) {
	if f.err != nil {
		return core.CompletionResult{}, f.err
	}
	return f.completion, nil
}

func (f *fakeEngine) ListHistory(ctx context.Context, start, end core.Date) ([]core.LineItemView, error) {
	return f.history, f.err
}

func (f *fakeEngine) EditHistoryLineItem(ctx context.Context, bucketID int64, code string, qty decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, code+"="+qty.String())
	return f.err
}

func (f *fakeEngine) EditHistoryLineItemByID(ctx context.Context, lineItemID int64, qty decimal.Decimal) error {
	return f.err
}

func (f *fakeEngine) DeleteHistoryLineItem(ctx context.Context, bucketID int64, code string) (core.HistoryDeletion, error) {
	return core.HistoryDeletion{BucketID: bucketID, LineItems: 2, BucketDeleted: true}, f.err
}

func (f *fakeEngine) DeleteHistoryLineItemByID(ctx context.Context, lineItemID int64) (core.HistoryDeletion, error) {
	return core.HistoryDeletion{BucketID: 7, LineItems: 1}, f.err
}

func (f *fakeEngine) GenerateStats(ctx context.Context, year, month int) (core.StatSummary, error) {
	f.mu.Lock()
	hook := f.duringStats
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	if f.err != nil {
		return core.StatSummary{}, f.err
	}
	p, err := core.ComputePeriod(year, month)
	if err != nil {
		return core.StatSummary{}, err
	}
	s := f.stats
	s.Period = p
	s.PeriodText = p.Text()
	return s, nil
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls
}

type fakeCatalog struct {
	products []core.Product
	err      error
	status   []catalog.Status
}

func (f fakeCatalog) Products(ctx context.Context) ([]core.Product, error) { return f.products, f.err }
func (f fakeCatalog) Status() []catalog.Status                             { return f.status }

const testToken = "s3cret"

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func newTestServer(t *testing.T, eng Engine, cat ProductCatalog, opts Options) *Server {
	t.Helper()
	if opts.AdminToken == "" {
		opts.AdminToken = testToken
	}
	opts.Logger = quietLogger()
	srv := NewServer(":0", eng, cat, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	cat := fakeCatalog{status: []catalog.Status{
		{Name: "products", Rows: 3, LastGoodAt: time.Now()},
		{Name: "prices", LastError: "sheet unreachable"},
	}}
	srv := newTestServer(t, newFakeEngine(), cat, Options{})

	rr := do(t, srv, http.MethodGet, "/healthz", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var body healthResponse
	decodeBody(t, rr, &body)
	if body.Status != "degraded" || len(body.Catalog) != 2 {
		t.Fatalf("unexpected health %+v", body)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id missing")
	}
}

func TestAdminGate(t *testing.T) {
	srv := newTestServer(t, newFakeEngine(), nil, Options{})
	body := `{"delivery_date":"2025-01-02","product_code":"X1","quantity":"1"}`

	rr := do(t, srv, http.MethodPost, "/api/orders/pending", body, false)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders/pending", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status=%d", rr.Code)
	}

	if rr := do(t, srv, http.MethodGet, "/api/history?start=2025-01-01&end=2025-01-31", "", false); rr.Code != http.StatusUnauthorized {
		t.Fatalf("history without token: status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/orders/pending", "", false); rr.Code != http.StatusOK {
		t.Fatalf("pending list is public: status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/orders/pending", body, true); rr.Code != http.StatusCreated {
		t.Fatalf("with token: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreatePendingOrder(t *testing.T) {
	eng := newFakeEngine()
	srv := newTestServer(t, eng, nil, Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"created", `{"delivery_date":"2025-01-02","product_code":" P-100(a) ","quantity":"12.5"}`, http.StatusCreated},
		{"zero quantity", `{"delivery_date":"2025-01-02","product_code":"X1","quantity":"0"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"delivery_date":"02/01/2025","product_code":"X1","quantity":"1"}`, http.StatusUnprocessableEntity},
		{"empty code", `{"delivery_date":"2025-01-02","product_code":"  ","quantity":"1"}`, http.StatusUnprocessableEntity},
		{"malformed", `{"delivery_date":`, http.StatusBadRequest},
		{"unknown field", `{"delivery_date":"2025-01-02","product_code":"X1","quantity":"1","x":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/orders/pending", tt.body, true)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	if len(eng.created) != 1 || eng.created[0].ProductCode != "P-100(a)" {
		t.Fatalf("unexpected creates %+v", eng.created)
	}
	if !eng.created[0].Quantity.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("quantity=%s", eng.created[0].Quantity)
	}
}

func TestListPendingGroupsByDate(t *testing.T) {
	eng := newFakeEngine()
	eng.pending = map[string][]core.PendingOrder{
		"2025-01-03": {{ID: "b", ProductCode: "X", Quantity: decimal.NewFromInt(1)}},
		"2025-01-01": {{ID: "a1", ProductCode: "X", Quantity: decimal.NewFromInt(1)}, {ID: "a2", ProductCode: "Y", Quantity: decimal.NewFromInt(2)}},
	}
	srv := newTestServer(t, eng, nil, Options{})

	rr := do(t, srv, http.MethodGet, "/api/orders/pending", "", false)
	var body pendingListResponse
	decodeBody(t, rr, &body)
	if body.Total != 3 || len(body.Groups) != 2 {
		t.Fatalf("unexpected list %+v", body)
	}
	if body.Groups[0].DeliveryDate != "2025-01-01" || body.Groups[0].Orders[1].ID != "a2" {
		t.Fatalf("groups out of order: %+v", body.Groups)
	}
}

func TestUpdatePendingOrder(t *testing.T) {
	eng := newFakeEngine()
	srv := newTestServer(t, eng, nil, Options{})

	rr := do(t, srv, http.MethodPatch, "/api/orders/pending/po-9", `{"quantity":"3.25","delivery_date":"2025-02-01"}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var body pendingOrderDTO
	decodeBody(t, rr, &body)
	if body.ID != "po-9" || body.DeliveryDate != "2025-02-01" || !body.Quantity.Equal(decimal.RequireFromString("3.25")) {
		t.Fatalf("unexpected order %+v", body)
	}
	if _, ok := eng.patches["po-9"]; !ok {
		t.Fatalf("patch not forwarded")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		target string
		body   string
		want   int
		code   string
	}{
		{"not found", core.ErrNotFound, http.MethodDelete, "/api/orders/pending/x", "", http.StatusNotFound, applog.ErrorTypeNotFound},
		{"wrapped not found", errors.Join(errors.New("ctx"), core.ErrNotFound), http.MethodPost, "/api/orders/pending/x/complete", "", http.StatusNotFound, applog.ErrorTypeNotFound},
		{"ambiguous", core.ErrAmbiguousLineItem, http.MethodPatch, "/api/history/3/items/X1", `{"quantity":"2"}`, http.StatusConflict, applog.ErrorTypeConflict},
		{"validation", core.NewValidationError("quantity", core.ErrInvalidQuantity), http.MethodPatch, "/api/history/items/4", `{"quantity":"-1"}`, http.StatusUnprocessableEntity, applog.ErrorTypeValidation},
		{"transaction", &core.TransactionError{Op: "complete order", Err: errors.New("disk I/O error")}, http.MethodPost, "/api/orders/pending/x/complete", "", http.StatusInternalServerError, applog.ErrorTypeTransaction},
		{"internal", errors.New("boom"), http.MethodGet, "/api/stats?year=2025", "", http.StatusInternalServerError, applog.ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			eng.err = tt.err
			srv := newTestServer(t, eng, nil, Options{})

			rr := do(t, srv, tt.method, tt.target, tt.body, true)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			var body errorBody
			decodeBody(t, rr, &body)
			if body.Error.Code != tt.code {
				t.Fatalf("code=%q want %q", body.Error.Code, tt.code)
			}
			if body.Error.RequestID == "" {
				t.Fatalf("request id missing from error body")
			}
			if tt.want == http.StatusInternalServerError && body.Error.Message != "internal error" {
				t.Fatalf("server error leaked cause: %q", body.Error.Message)
			}
		})
	}
}

func TestCompleteOrder(t *testing.T) {
	eng := newFakeEngine()
	eng.completion = core.CompletionResult{
		Order:         core.PendingOrder{ID: "po-1", DeliveryDate: core.NewDate(2025, 1, 2), ProductCode: "X1", Quantity: decimal.NewFromInt(5)},
		Bucket:        core.DateBucket{ID: 3, DeliveryDate: core.NewDate(2025, 1, 2)},
		LineItem:      core.LineItem{ID: 11, BucketID: 3, ProductCode: "X1", Quantity: decimal.NewFromInt(5), SourceOrderID: "po-1"},
		BucketCreated: true,
		CompletedAt:   time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC),
	}
	srv := newTestServer(t, eng, nil, Options{})

	rr := do(t, srv, http.MethodPost, "/api/orders/pending/po-1/complete", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var body completionResponse
	decodeBody(t, rr, &body)
	if !body.BucketCreated || body.Bucket.ID != 3 || body.LineItem.ID != 11 || body.LineItem.SourceOrderID != "po-1" {
		t.Fatalf("unexpected completion %+v", body)
	}
	if !body.CompletedAt.Equal(eng.completion.CompletedAt) {
		t.Fatalf("completed_at=%v", body.CompletedAt)
	}
	if !strings.Contains(rr.Body.String(), `"quantity":"5"`) {
		t.Fatalf("quantity should be a decimal string: %s", rr.Body.String())
	}
}

func TestHistoryRoutes(t *testing.T) {
	eng := newFakeEngine()
	completed := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	eng.history = []core.LineItemView{{
		LineItem:     core.LineItem{ID: 1, BucketID: 3, ProductCode: "X1", Quantity: decimal.RequireFromString("1.5")},
		DeliveryDate: core.NewDate(2025, 1, 2),
		CompletedAt:  completed,
	}}
	srv := newTestServer(t, eng, nil, Options{})

	rr := do(t, srv, http.MethodGet, "/api/history?start=2025-01-01&end=2025-01-31", "", true)
	var hist historyResponse
	decodeBody(t, rr, &hist)
	if len(hist.Items) != 1 || hist.Items[0].DeliveryDate != "2025-01-02" || !hist.Items[0].CompletedAt.Equal(completed) {
		t.Fatalf("unexpected history %+v", hist)
	}

	if rr := do(t, srv, http.MethodGet, "/api/history?start=2025-01-01", "", true); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing end: status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPatch, "/api/history/3/items/P-100%28a%29", `{"quantity":"2"}`, true)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("edit status=%d body=%s", rr.Code, rr.Body.String())
	}
	if len(eng.edits) != 1 || eng.edits[0] != "P-100(a)=2" {
		t.Fatalf("edits=%v", eng.edits)
	}

	if rr := do(t, srv, http.MethodPatch, "/api/history/3/items/X1", `{}`, true); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing quantity: status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPatch, "/api/history/zero/items/X1", `{"quantity":"2"}`, true); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad bucket id: status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodDelete, "/api/history/3/items/X1", "", true)
	var del historyDeletionResponse
	decodeBody(t, rr, &del)
	if del.BucketID != 3 || del.LineItems != 2 || !del.BucketDeleted {
		t.Fatalf("unexpected deletion %+v", del)
	}

	rr = do(t, srv, http.MethodDelete, "/api/history/items/9", "", true)
	decodeBody(t, rr, &del)
	if del.LineItems != 1 || del.BucketDeleted {
		t.Fatalf("unexpected deletion %+v", del)
	}
}

func TestStatsCache(t *testing.T) {
	eng := newFakeEngine()
	eng.stats = core.StatSummary{
		TotalOrders:    2,
		TotalKilograms: decimal.RequireFromString("3.50"),
		TotalAmount:    decimal.RequireFromString("7"),
		PerProduct: []core.ProductStat{{
			Code: "X1", OrderCount: 2,
			TotalQuantity: decimal.RequireFromString("3.5"),
			UnitPrice:     decimal.RequireFromString("2"),
			TotalPrice:    decimal.RequireFromString("7"),
		}},
	}
	b := events.NewBroadcaster()
	defer b.Close()
	srv := newTestServer(t, eng, nil, Options{Events: b})

	rr := do(t, srv, http.MethodGet, "/api/stats?year=2025&month=1", "", false)
	var body statsResponse
	decodeBody(t, rr, &body)
	if body.PeriodText != "2025-01 (2024-12-25 ~ 2025-01-24)" || len(body.PerProduct) != 1 {
		t.Fatalf("unexpected stats %+v", body)
	}
	do(t, srv, http.MethodGet, "/api/stats?year=2025&month=1", "", false)
	if got := eng.calls(); got != 1 {
		t.Fatalf("second read should hit the cache, calls=%d", got)
	}

	// A history edit purges the cache.
	do(t, srv, http.MethodPatch, "/api/history/items/1", `{"quantity":"1"}`, true)
	do(t, srv, http.MethodGet, "/api/stats?year=2025&month=1", "", false)
	if got := eng.calls(); got != 2 {
		t.Fatalf("edit should purge the cache, calls=%d", got)
	}

	// So does a completion event from elsewhere in the process.
	_ = b.PublishOrderCompleted(context.Background(), events.OrderCompleted{PendingOrderID: "po-x"})
	deadline := time.Now().Add(2 * time.Second)
	for srv.statsCache.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("completion event did not purge the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rr := do(t, srv, http.MethodGet, "/api/stats?year=2025&month=13", "", false); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad month: status=%d", rr.Code)
	}
}

func TestStatsCacheSkipsStaleSummaries(t *testing.T) {
	tests := []struct {
		name  string
		stale bool
		purge bool
	}{
		{"prices from a failed source", true, false},
		{"history changed during generation", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			eng.stats = core.StatSummary{TotalOrders: 1, PricesStale: tt.stale}
			srv := newTestServer(t, eng, nil, Options{})
			if tt.purge {
				eng.duringStats = srv.invalidateStats
			}

			rr := do(t, srv, http.MethodGet, "/api/stats?year=2025&month=1", "", false)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			var body statsResponse
			decodeBody(t, rr, &body)
			if body.PricesStale != tt.stale {
				t.Fatalf("prices_stale=%v want %v", body.PricesStale, tt.stale)
			}
			if n := srv.statsCache.Size(); n != 0 {
				t.Fatalf("summary should not be cached, size=%d", n)
			}

			eng.mu.Lock()
			eng.duringStats = nil
			eng.stats.PricesStale = false
			eng.mu.Unlock()
			do(t, srv, http.MethodGet, "/api/stats?year=2025&month=1", "", false)
			do(t, srv, http.MethodGet, "/api/stats?year=2025&month=1", "", false)
			if got := eng.calls(); got != 2 {
				t.Fatalf("fresh summary should be cached once regenerated, calls=%d", got)
			}
		})
	}
}

func TestProducts(t *testing.T) {
	products := []core.Product{{Code: "X1", Name: "Basil"}}
	tests := []struct {
		name      string
		cat       fakeCatalog
		want      int
		wantStale bool
	}{
		{"fresh", fakeCatalog{products: products}, http.StatusOK, false},
		{"stale copy", fakeCatalog{products: products, err: &core.ExternalSourceError{Source: "products", Err: errors.New("timeout")}}, http.StatusOK, true},
		{"never loaded", fakeCatalog{err: &core.ExternalSourceError{Source: "products", Err: errors.New("timeout")}}, http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, newFakeEngine(), tt.cat, Options{})
			rr := do(t, srv, http.MethodGet, "/api/products", "", false)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			var body productsResponse
			decodeBody(t, rr, &body)
			if body.Stale != tt.wantStale || len(body.Products) != 1 {
				t.Fatalf("unexpected products %+v", body)
			}
		})
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	srv := newTestServer(t, newFakeEngine(), nil, Options{})
	// Reads are never limited.
	for i := 0; i < 70; i++ {
		if rr := do(t, srv, http.MethodGet, "/healthz", "", false); rr.Code != http.StatusOK {
			t.Fatalf("read %d limited", i)
		}
	}
	var last int
	for i := 0; i < 61; i++ {
		last = do(t, srv, http.MethodDelete, "/api/orders/pending/x", "", true).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("61st write status=%d", last)
	}
}
