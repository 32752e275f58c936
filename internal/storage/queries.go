package storage

import (
	"context"
)

const insertPendingOrder = `
INSERT INTO pending_orders (id, delivery_date, product_code, product_name, quantity, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertPendingOrder(ctx context.Context, arg InsertPendingOrderParams) error {
	_, err := q.db.ExecContext(ctx, insertPendingOrder,
		arg.ID,
		arg.DeliveryDate,
		arg.ProductCode,
		arg.ProductName,
		arg.Quantity.String(),
		arg.CreatedAt,
	)
	return err
}

const getPendingOrder = `
SELECT id, delivery_date, product_code, product_name, quantity, created_at
FROM pending_orders
WHERE id = ?
`

func (q *Queries) GetPendingOrder(ctx context.Context, id string) (PendingOrderRow, error) {
	row := q.db.QueryRowContext(ctx, getPendingOrder, id)
	var i PendingOrderRow
	err := row.Scan(
		&i.ID,
		&i.DeliveryDate,
		&i.ProductCode,
		&i.ProductName,
		&i.Quantity,
		&i.CreatedAt,
	)
	return i, err
}

const listPendingOrders = `
SELECT id, delivery_date, product_code, product_name, quantity, created_at
FROM pending_orders
ORDER BY delivery_date, product_code, created_at, id
`

func (q *Queries) ListPendingOrders(ctx context.Context) ([]PendingOrderRow, error) {
	rows, err := q.db.QueryContext(ctx, listPendingOrders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PendingOrderRow
	for rows.Next() {
		var i PendingOrderRow
		if err := rows.Scan(
			&i.ID,
			&i.DeliveryDate,
			&i.ProductCode,
			&i.ProductName,
			&i.Quantity,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updatePendingOrder = `
UPDATE pending_orders
SET delivery_date = ?, quantity = ?
WHERE id = ?
`

func (q *Queries) UpdatePendingOrder(ctx context.Context, arg UpdatePendingOrderParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updatePendingOrder, arg.DeliveryDate, arg.Quantity.String(), arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deletePendingOrder = `
DELETE FROM pending_orders WHERE id = ?
`

func (q *Queries) DeletePendingOrder(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deletePendingOrder, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const ensureDateBucket = `
INSERT INTO date_buckets (delivery_date, created_at)
VALUES (?, ?)
ON CONFLICT (delivery_date) DO NOTHING
`

// EnsureDateBucket creates the bucket for a delivery date unless one exists.
// It reports 1 when a bucket was created.
func (q *Queries) EnsureDateBucket(ctx context.Context, deliveryDate, createdAt string) (int64, error) {
	result, err := q.db.ExecContext(ctx, ensureDateBucket, deliveryDate, createdAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getDateBucketByDate = `
SELECT id, delivery_date, created_at
FROM date_buckets
WHERE delivery_date = ?
`

func (q *Queries) GetDateBucketByDate(ctx context.Context, deliveryDate string) (DateBucketRow, error) {
	row := q.db.QueryRowContext(ctx, getDateBucketByDate, deliveryDate)
	var i DateBucketRow
	err := row.Scan(&i.ID, &i.DeliveryDate, &i.CreatedAt)
	return i, err
}

const deleteDateBucketIfEmpty = `
DELETE FROM date_buckets
WHERE id = ?
  AND NOT EXISTS (SELECT 1 FROM line_items WHERE bucket_id = ?)
`

func (q *Queries) DeleteDateBucketIfEmpty(ctx context.Context, bucketID int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteDateBucketIfEmpty, bucketID, bucketID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertLineItem = `
INSERT INTO line_items (bucket_id, product_code, product_name, quantity, source_order_id)
VALUES (?, ?, ?, ?, ?)
RETURNING id
`

func (q *Queries) InsertLineItem(ctx context.Context, arg InsertLineItemParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertLineItem,
		arg.BucketID,
		arg.ProductCode,
		arg.ProductName,
		arg.Quantity.String(),
		arg.SourceOrderID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getLineItem = `
SELECT id, bucket_id, product_code, product_name, quantity, source_order_id
FROM line_items
WHERE id = ?
`

func (q *Queries) GetLineItem(ctx context.Context, id int64) (LineItemRow, error) {
	row := q.db.QueryRowContext(ctx, getLineItem, id)
	var i LineItemRow
	err := row.Scan(
		&i.ID,
		&i.BucketID,
		&i.ProductCode,
		&i.ProductName,
		&i.Quantity,
		&i.SourceOrderID,
	)
	return i, err
}

const listLineItemIDsByKey = `
SELECT id FROM line_items
WHERE bucket_id = ? AND product_code = ?
ORDER BY id
`

func (q *Queries) ListLineItemIDsByKey(ctx context.Context, arg LineItemKey) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listLineItemIDsByKey, arg.BucketID, arg.ProductCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

const updateLineItemQuantity = `
UPDATE line_items SET quantity = ? WHERE id = ?
`

func (q *Queries) UpdateLineItemQuantity(ctx context.Context, id int64, quantity string) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateLineItemQuantity, quantity, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteLineItemsByKey = `
DELETE FROM line_items WHERE bucket_id = ? AND product_code = ?
`

func (q *Queries) DeleteLineItemsByKey(ctx context.Context, arg LineItemKey) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteLineItemsByKey, arg.BucketID, arg.ProductCode)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteLineItem = `
DELETE FROM line_items WHERE id = ?
`

func (q *Queries) DeleteLineItem(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteLineItem, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listHistoryInRange = `
SELECT li.id, li.bucket_id, li.product_code, li.product_name, li.quantity,
       li.source_order_id, db.delivery_date, db.created_at
FROM line_items li
JOIN date_buckets db ON db.id = li.bucket_id
WHERE db.delivery_date BETWEEN ? AND ?
ORDER BY db.delivery_date, li.id
`

// ListHistoryInRange returns line items whose bucket date lies in [start, end].
func (q *Queries) ListHistoryInRange(ctx context.Context, start, end string) ([]HistoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listHistoryInRange, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []HistoryRow
	for rows.Next() {
		var i HistoryRow
		if err := rows.Scan(
			&i.ID,
			&i.BucketID,
			&i.ProductCode,
			&i.ProductName,
			&i.Quantity,
			&i.SourceOrderID,
			&i.DeliveryDate,
			&i.BucketCreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countEmptyDateBuckets = `
SELECT COUNT(*) FROM date_buckets db
WHERE NOT EXISTS (SELECT 1 FROM line_items li WHERE li.bucket_id = db.id)
`

func (q *Queries) CountEmptyDateBuckets(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countEmptyDateBuckets)
	var count int64
	err := row.Scan(&count)
	return count, err
}
