package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of delivery dates.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar day in UTC. Time of day is always midnight.
	Date struct {
		time.Time
	}

	// Product is a catalog row from the external product sheet.
	// Extra keeps any additional spreadsheet columns keyed by header.
	Product struct {
		Code  string
		Name  string
		Color string
		Extra map[string]string
	}

	// PriceEntry is a row of the external price table. Codes may carry
	// inconsistent hyphens, parentheses and case.
	PriceEntry struct {
		Code      string
		UnitPrice decimal.Decimal
		Extra     map[string]string
	}

	PendingOrder struct {
		ID           string
		DeliveryDate Date
		ProductCode  string
		ProductName  string
		Quantity     decimal.Decimal // kilograms
		CreatedAt    time.Time
	}

	// NewPendingOrder carries the caller-supplied fields of a pending order.
	NewPendingOrder struct {
		DeliveryDate Date
		ProductCode  string
		ProductName  string
		Quantity     decimal.Decimal
	}

	// PendingOrderPatch is a partial update; nil fields are left unchanged.
	PendingOrderPatch struct {
		Quantity     *decimal.Decimal
		DeliveryDate *Date
	}

	// DateBucket groups all completed line items sharing a delivery date.
	DateBucket struct {
		ID           int64
		DeliveryDate Date
		CreatedAt    time.Time
	}

	LineItem struct {
		ID          int64
		BucketID    int64
		ProductCode string
		ProductName string
		Quantity    decimal.Decimal

		// SourceOrderID is the pending order this item was completed from.
		SourceOrderID string
	}

	// LineItemView is a line item joined with its bucket.
	LineItemView struct {
		LineItem
		DeliveryDate Date
		CompletedAt  time.Time
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string. The result is a ValidationError on failure.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, NewValidationError("delivery_date", ErrInvalidDate)
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, NewValidationError("delivery_date", ErrInvalidDate)
	}
	return Date{Time: t}, nil
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	if y := d.Time.Year(); y < 1900 || y > 9999 {
		return ErrInvalidDate
	}
	return nil
}

// String returns the date in YYYY-MM-DD form.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// Before reports whether d is an earlier day than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// ValidateQuantity rejects zero and negative quantities.
func ValidateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return ErrInvalidQuantity
	}
	return nil
}

// MaxProductNameLength is counted in characters, not bytes.
const MaxProductNameLength = 200

func (n NewPendingOrder) Validate() error {
	if err := n.DeliveryDate.Validate(); err != nil {
		return NewValidationError("delivery_date", err)
	}
	if strings.TrimSpace(n.ProductCode) == "" {
		return NewValidationError("product_code", ErrEmptyProductCode)
	}
	if utf8.RuneCountInString(n.ProductName) > MaxProductNameLength {
		return NewValidationError("product_name", ErrNameTooLong)
	}
	if err := ValidateQuantity(n.Quantity); err != nil {
		return NewValidationError("quantity", err)
	}
	return nil
}

func (p PendingOrderPatch) Validate() error {
	if p.Quantity == nil && p.DeliveryDate == nil {
		return NewValidationError("patch", ErrEmptyPatch)
	}
	if p.Quantity != nil {
		if err := ValidateQuantity(*p.Quantity); err != nil {
			return NewValidationError("quantity", err)
		}
	}
	if p.DeliveryDate != nil {
		if err := p.DeliveryDate.Validate(); err != nil {
			return NewValidationError("delivery_date", err)
		}
	}
	return nil
}

// Apply returns o with the patch fields applied.
func (p PendingOrderPatch) Apply(o PendingOrder) PendingOrder {
	if p.Quantity != nil {
		o.Quantity = *p.Quantity
	}
	if p.DeliveryDate != nil {
		o.DeliveryDate = *p.DeliveryDate
	}
	return o
}

// HistoryDeletion reports what a history delete removed.
type HistoryDeletion struct {
	BucketID      int64
	LineItems     int64
	BucketDeleted bool
}
