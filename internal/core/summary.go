package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Period is an inclusive fiscal window running from the 25th of the
// previous month to the 24th of the stated month.
type Period struct {
	Year  int
	Month int // 1-12, or 0 for the whole year
	Start Date
	End   Date
	Label string
}

// ComputePeriod returns the fiscal period for year and month. A month of
// zero selects the whole year (Dec 25 of year-1 through Dec 24 of year).
func ComputePeriod(year, month int) (Period, error) {
	if year < 1900 || year > 9999 {
		return Period{}, NewValidationError("year", ErrInvalidPeriod)
	}
	if month < 0 || month > 12 {
		return Period{}, NewValidationError("month", ErrInvalidPeriod)
	}

	p := Period{Year: year, Month: month}
	if month == 0 {
		p.Start = NewDate(year-1, 12, 25)
		p.End = NewDate(year, 12, 24)
		p.Label = fmt.Sprintf("%04d", year)
		return p, nil
	}
	// time.Date normalizes month 0 to December of the previous year.
	start := time.Date(year, time.Month(month-1), 25, 0, 0, 0, 0, time.UTC)
	p.Start = Date{Time: start}
	p.End = NewDate(year, month, 24)
	p.Label = fmt.Sprintf("%04d-%02d", year, month)
	return p, nil
}

// Text renders the label together with its date range.
func (p Period) Text() string {
	return fmt.Sprintf("%s (%s ~ %s)", p.Label, p.Start, p.End)
}

// ProductStat is the per-product row of a StatSummary.
type ProductStat struct {
	Code          string
	Name          string
	OrderCount    int
	TotalQuantity decimal.Decimal
	UnitPrice     decimal.Decimal
	TotalPrice    decimal.Decimal
}

// StatSummary is derived on demand and never persisted.
type StatSummary struct {
	Period         Period
	PeriodText     string
	TotalOrders    int
	TotalKilograms decimal.Decimal
	TotalAmount    decimal.Decimal
	PerProduct     []ProductStat
	// PricesStale is set when the price source failed and prices came from
	// the last good copy, or are zero when there was none.
	PricesStale bool
}
