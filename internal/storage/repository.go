package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ordini/internal/core"
	applog "ordini/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries

	now   func() time.Time
	newID func() string
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool exists so the two never contend.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers; with _txlock=immediate every
	// transaction holds the write lock from BEGIN.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn inside one transaction. fn must only use the Queries it is given.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// txError keeps domain outcomes as they are and reports everything else as a
// rolled back transaction.
func txError(op string, err error) error {
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrAmbiguousLineItem) || core.IsValidation(err) {
		return err
	}
	return &core.TransactionError{Op: op, Err: err}
}

// CreatePendingOrder validates n, assigns an id and creation time, and stores it.
func (r *SQLiteRepository) CreatePendingOrder(ctx context.Context, n core.NewPendingOrder) (core.PendingOrder, error) {
	n.ProductCode = strings.TrimSpace(n.ProductCode)
	n.ProductName = strings.TrimSpace(n.ProductName)
	if err := n.Validate(); err != nil {
		return core.PendingOrder{}, err
	}

	o := core.PendingOrder{
		ID:           r.newID(),
		DeliveryDate: n.DeliveryDate,
		ProductCode:  n.ProductCode,
		ProductName:  n.ProductName,
		Quantity:     n.Quantity,
		CreatedAt:    r.now().UTC(),
	}
	err := r.queries.InsertPendingOrder(ctx, InsertPendingOrderParams{
		ID:           o.ID,
		DeliveryDate: o.DeliveryDate.String(),
		ProductCode:  o.ProductCode,
		ProductName:  o.ProductName,
		Quantity:     o.Quantity,
		CreatedAt:    formatTime(o.CreatedAt),
	})
	if err != nil {
		return core.PendingOrder{}, fmt.Errorf("create pending order: %w", err)
	}

	slog.InfoContext(ctx, "Pending order saved to SQLite",
		applog.NewFields().
			WithComponent(applog.ComponentStorage).
			WithOrder(o.ID, o.DeliveryDate.String(), o.ProductCode, o.Quantity.String()).
			ToSlice()...)
	return o, nil
}

func (r *SQLiteRepository) GetPendingOrder(ctx context.Context, id string) (core.PendingOrder, error) {
	row, err := r.queries.GetPendingOrder(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.PendingOrder{}, core.ErrNotFound
		}
		return core.PendingOrder{}, fmt.Errorf("get pending order %s: %w", id, err)
	}
	return toPendingOrder(row)
}

// ListPendingOrders groups pending orders by delivery date (YYYY-MM-DD). Each
// group is ordered by product code, then creation time.
func (r *SQLiteRepository) ListPendingOrders(ctx context.Context) (map[string][]core.PendingOrder, error) {
	rows, err := r.queries.ListPendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	grouped := make(map[string][]core.PendingOrder)
	for _, row := range rows {
		o, err := toPendingOrder(row)
		if err != nil {
			return nil, err
		}
		key := o.DeliveryDate.String()
		grouped[key] = append(grouped[key], o)
	}
	return grouped, nil
}

// UpdatePendingOrder applies a partial update. Validation happens before the
// transaction opens.
func (r *SQLiteRepository) UpdatePendingOrder(ctx context.Context, id string, patch core.PendingOrderPatch) (core.PendingOrder, error) {
	if err := patch.Validate(); err != nil {
		return core.PendingOrder{}, err
	}

	var updated core.PendingOrder
	err := r.withTx(ctx, func(q *Queries) error {
		row, err := q.GetPendingOrder(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrNotFound
			}
			return fmt.Errorf("load pending order: %w", err)
		}
		current, err := toPendingOrder(row)
		if err != nil {
			return err
		}
		updated = patch.Apply(current)

		n, err := q.UpdatePendingOrder(ctx, UpdatePendingOrderParams{
			ID:           id,
			DeliveryDate: updated.DeliveryDate.String(),
			Quantity:     updated.Quantity,
		})
		if err != nil {
			return fmt.Errorf("update pending order: %w", err)
		}
		if n != 1 {
			return core.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return core.PendingOrder{}, txError("update pending order", err)
	}
	return updated, nil
}

func (r *SQLiteRepository) DeletePendingOrder(ctx context.Context, id string) error {
	n, err := r.queries.DeletePendingOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("delete pending order %s: %w", id, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	slog.InfoContext(ctx, "Pending order deleted",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOrderID, id)
	return nil
}

// CompleteOrder moves a pending order into the history bucket for its
// delivery date. Loading, get-or-create of the bucket, the line item insert
// and the pending delete commit together or not at all.
func (r *SQLiteRepository) CompleteOrder(ctx context.Context, id string) (core.CompletionResult, error) {
	logger := slog.With(applog.FieldComponent, applog.ComponentStorage, applog.FieldOrderID, id)
	logger.DebugContext(ctx, "Completing pending order", applog.FieldState, core.StateCompleting)

	var res core.CompletionResult
	err := r.withTx(ctx, func(q *Queries) error {
		row, err := q.GetPendingOrder(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrNotFound
			}
			return fmt.Errorf("load pending order: %w", err)
		}
		order, err := toPendingOrder(row)
		if err != nil {
			return err
		}
		res.Order = order
		res.CompletedAt = r.now().UTC()

		date := order.DeliveryDate.String()
		created, err := q.EnsureDateBucket(ctx, date, formatTime(res.CompletedAt))
		if err != nil {
			return fmt.Errorf("ensure bucket %s: %w", date, err)
		}
		bucketRow, err := q.GetDateBucketByDate(ctx, date)
		if err != nil {
			return fmt.Errorf("load bucket %s: %w", date, err)
		}
		bucket, err := toDateBucket(bucketRow)
		if err != nil {
			return err
		}
		res.Bucket = bucket
		res.BucketCreated = created == 1

		item := core.LineItem{
			BucketID:      bucket.ID,
			ProductCode:   order.ProductCode,
			ProductName:   order.ProductName,
			Quantity:      order.Quantity,
			SourceOrderID: order.ID,
		}
		item.ID, err = q.InsertLineItem(ctx, InsertLineItemParams{
			BucketID:      item.BucketID,
			ProductCode:   item.ProductCode,
			ProductName:   item.ProductName,
			Quantity:      item.Quantity,
			SourceOrderID: sql.NullString{String: item.SourceOrderID, Valid: true},
		})
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
		res.LineItem = item

		n, err := q.DeletePendingOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("delete pending order: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("delete pending order: expected 1 row, got %d", n)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.CompletionResult{}, err
		}
		logger.WarnContext(ctx, "Order completion rolled back",
			applog.FieldState, core.StateFailed,
			applog.FieldErrorType, applog.ErrorTypeTransaction,
			applog.FieldError, err)
		return core.CompletionResult{}, &core.TransactionError{Op: "complete order", Err: err}
	}

	logger.InfoContext(ctx, "Order completed",
		applog.FieldState, core.StateCompleted,
		applog.FieldDeliveryDate, res.Bucket.DeliveryDate.String(),
		applog.FieldBucketID, res.Bucket.ID,
		applog.FieldLineItemID, res.LineItem.ID,
		"bucket_created", res.BucketCreated)
	return res, nil
}

// ListHistory returns line items whose bucket date lies in [start, end],
// ordered by date then line item id.
func (r *SQLiteRepository) ListHistory(ctx context.Context, start, end core.Date) ([]core.LineItemView, error) {
	if err := start.Validate(); err != nil {
		return nil, core.NewValidationError("start", err)
	}
	if err := end.Validate(); err != nil {
		return nil, core.NewValidationError("end", err)
	}
	if end.Before(start) {
		return nil, core.NewValidationError("range", core.ErrInvalidRange)
	}

	rows, err := r.queries.ListHistoryInRange(ctx, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	views := make([]core.LineItemView, 0, len(rows))
	for _, row := range rows {
		v, err := toLineItemView(row)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// EditLineItem sets the quantity of the single line item for (bucketID, code).
// Several items for the pair yield core.ErrAmbiguousLineItem and nothing changes.
func (r *SQLiteRepository) EditLineItem(ctx context.Context, bucketID int64, code string, qty decimal.Decimal) error {
	if err := core.ValidateQuantity(qty); err != nil {
		return core.NewValidationError("quantity", err)
	}
	key := LineItemKey{BucketID: bucketID, ProductCode: code}

	err := r.withTx(ctx, func(q *Queries) error {
		ids, err := q.ListLineItemIDsByKey(ctx, key)
		if err != nil {
			return fmt.Errorf("find line items: %w", err)
		}
		switch len(ids) {
		case 0:
			return core.ErrNotFound
		case 1:
		default:
			return core.ErrAmbiguousLineItem
		}
		if _, err := q.UpdateLineItemQuantity(ctx, ids[0], qty.String()); err != nil {
			return fmt.Errorf("update line item: %w", err)
		}
		return nil
	})
	if err != nil {
		return txError("edit line item", err)
	}

	slog.InfoContext(ctx, "History line item updated",
		applog.NewFields().
			WithComponent(applog.ComponentStorage).
			WithLineItem(bucketID, 0, code).
			ToSlice()...)
	return nil
}

// EditLineItemByID sets the quantity of one line item.
func (r *SQLiteRepository) EditLineItemByID(ctx context.Context, lineItemID int64, qty decimal.Decimal) error {
	if err := core.ValidateQuantity(qty); err != nil {
		return core.NewValidationError("quantity", err)
	}
	n, err := r.queries.UpdateLineItemQuantity(ctx, lineItemID, qty.String())
	if err != nil {
		return fmt.Errorf("update line item %d: %w", lineItemID, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteLineItem removes every line item for (bucketID, code) and the bucket
// when it is left empty.
func (r *SQLiteRepository) DeleteLineItem(ctx context.Context, bucketID int64, code string) (core.HistoryDeletion, error) {
	res := core.HistoryDeletion{BucketID: bucketID}
	err := r.withTx(ctx, func(q *Queries) error {
		n, err := q.DeleteLineItemsByKey(ctx, LineItemKey{BucketID: bucketID, ProductCode: code})
		if err != nil {
			return fmt.Errorf("delete line items: %w", err)
		}
		if n == 0 {
			return core.ErrNotFound
		}
		res.LineItems = n
		return r.dropEmptyBucket(ctx, q, bucketID, &res)
	})
	if err != nil {
		return core.HistoryDeletion{}, txError("delete line item", err)
	}
	r.logDeletion(ctx, res, code)
	return res, nil
}

// DeleteLineItemByID removes one line item and its bucket when left empty.
func (r *SQLiteRepository) DeleteLineItemByID(ctx context.Context, lineItemID int64) (core.HistoryDeletion, error) {
	var res core.HistoryDeletion
	err := r.withTx(ctx, func(q *Queries) error {
		item, err := q.GetLineItem(ctx, lineItemID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrNotFound
			}
			return fmt.Errorf("load line item: %w", err)
		}
		res.BucketID = item.BucketID
		n, err := q.DeleteLineItem(ctx, lineItemID)
		if err != nil {
			return fmt.Errorf("delete line item: %w", err)
		}
		res.LineItems = n
		return r.dropEmptyBucket(ctx, q, item.BucketID, &res)
	})
	if err != nil {
		return core.HistoryDeletion{}, txError("delete line item", err)
	}
	r.logDeletion(ctx, res, "")
	return res, nil
}

func (r *SQLiteRepository) dropEmptyBucket(ctx context.Context, q *Queries, bucketID int64, res *core.HistoryDeletion) error {
	n, err := q.DeleteDateBucketIfEmpty(ctx, bucketID)
	if err != nil {
		return fmt.Errorf("delete empty bucket: %w", err)
	}
	res.BucketDeleted = n == 1
	return nil
}

func (r *SQLiteRepository) logDeletion(ctx context.Context, res core.HistoryDeletion, code string) {
	slog.InfoContext(ctx, "History line items deleted",
		append(applog.NewFields().
			WithComponent(applog.ComponentStorage).
			WithLineItem(res.BucketID, 0, code).
			ToSlice(),
			"removed", res.LineItems,
			"bucket_deleted", res.BucketDeleted)...)
}

func toPendingOrder(row PendingOrderRow) (core.PendingOrder, error) {
	date, err := core.ParseDate(row.DeliveryDate)
	if err != nil {
		return core.PendingOrder{}, fmt.Errorf("pending order %s: stored date %q: %w", row.ID, row.DeliveryDate, err)
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.PendingOrder{}, fmt.Errorf("pending order %s: %w", row.ID, err)
	}
	return core.PendingOrder{
		ID:           row.ID,
		DeliveryDate: date,
		ProductCode:  row.ProductCode,
		ProductName:  row.ProductName,
		Quantity:     row.Quantity,
		CreatedAt:    createdAt,
	}, nil
}

func toDateBucket(row DateBucketRow) (core.DateBucket, error) {
	date, err := core.ParseDate(row.DeliveryDate)
	if err != nil {
		return core.DateBucket{}, fmt.Errorf("bucket %d: stored date %q: %w", row.ID, row.DeliveryDate, err)
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.DateBucket{}, fmt.Errorf("bucket %d: %w", row.ID, err)
	}
	return core.DateBucket{ID: row.ID, DeliveryDate: date, CreatedAt: createdAt}, nil
}

func toLineItemView(row HistoryRow) (core.LineItemView, error) {
	bucket, err := toDateBucket(DateBucketRow{
		ID:           row.BucketID,
		DeliveryDate: row.DeliveryDate,
		CreatedAt:    row.BucketCreatedAt,
	})
	if err != nil {
		return core.LineItemView{}, err
	}
	return core.LineItemView{
		LineItem: core.LineItem{
			ID:            row.ID,
			BucketID:      row.BucketID,
			ProductCode:   row.ProductCode,
			ProductName:   row.ProductName,
			Quantity:      row.Quantity,
			SourceOrderID: row.SourceOrderID.String,
		},
		DeliveryDate: bucket.DeliveryDate,
		CompletedAt:  bucket.CreatedAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
