package storage

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

type PendingOrderRow struct {
	ID           string
	DeliveryDate string
	ProductCode  string
	ProductName  string
	Quantity     decimal.Decimal
	CreatedAt    string
}

type DateBucketRow struct {
	ID           int64
	DeliveryDate string
	CreatedAt    string
}

type LineItemRow struct {
	ID            int64
	BucketID      int64
	ProductCode   string
	ProductName   string
	Quantity      decimal.Decimal
	SourceOrderID sql.NullString
}

// HistoryRow is a line item joined with its bucket.
type HistoryRow struct {
	LineItemRow
	DeliveryDate    string
	BucketCreatedAt string
}

type InsertPendingOrderParams struct {
	ID           string
	DeliveryDate string
	ProductCode  string
	ProductName  string
	Quantity     decimal.Decimal
	CreatedAt    string
}

type UpdatePendingOrderParams struct {
	ID           string
	DeliveryDate string
	Quantity     decimal.Decimal
}

type InsertLineItemParams struct {
	BucketID      int64
	ProductCode   string
	ProductName   string
	Quantity      decimal.Decimal
	SourceOrderID sql.NullString
}

type LineItemKey struct {
	BucketID    int64
	ProductCode string
}
