package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
		{NewDate(1800, 1, 1), false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-07 ")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d != NewDate(2025, 3, 7) {
		t.Fatalf("unexpected date %v", d)
	}
	for _, in := range []string{"", "2025-13-01", "07/03/2025", "2025-02-30"} {
		if _, err := ParseDate(in); !IsValidation(err) {
			t.Fatalf("%q expected validation error, got %v", in, err)
		}
	}
}

func TestValidateQuantity(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"1", true},
		{"0.01", true},
		{"0", false},
		{"-3", false},
	}
	for _, tc := range cases {
		err := ValidateQuantity(decimal.RequireFromString(tc.in))
		if tc.ok != (err == nil) {
			t.Fatalf("%s: ok=%v err=%v", tc.in, tc.ok, err)
		}
	}
}

func TestNewPendingOrderValidate(t *testing.T) {
	good := NewPendingOrder{
		DeliveryDate: NewDate(2025, 1, 10),
		ProductCode:  "X9",
		ProductName:  "Widget",
		Quantity:     decimal.NewFromInt(10),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		order NewPendingOrder
		want  error
	}{
		{NewPendingOrder{DeliveryDate: Date{}, ProductCode: "X9", Quantity: decimal.NewFromInt(1)}, ErrInvalidDate},
		{NewPendingOrder{DeliveryDate: NewDate(2025, 1, 1), ProductCode: " ", Quantity: decimal.NewFromInt(1)}, ErrEmptyProductCode},
		{NewPendingOrder{DeliveryDate: NewDate(2025, 1, 1), ProductCode: "X9", Quantity: decimal.Zero}, ErrInvalidQuantity},
		{NewPendingOrder{DeliveryDate: NewDate(2025, 1, 1), ProductCode: "X9", Quantity: decimal.NewFromInt(-5)}, ErrInvalidQuantity},
	}
	for i, tc := range bads {
		err := tc.order.Validate()
		if !IsValidation(err) || !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestProductNameLengthCountsCharacters(t *testing.T) {
	order := NewPendingOrder{DeliveryDate: NewDate(2025, 1, 10), ProductCode: "X9", Quantity: decimal.NewFromInt(1)}
	tests := []struct {
		name    string
		product string
		wantErr bool
	}{
		{"ascii at limit", strings.Repeat("a", MaxProductNameLength), false},
		{"multibyte at limit", strings.Repeat("è", MaxProductNameLength), false},
		{"multibyte over limit", strings.Repeat("è", MaxProductNameLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order.ProductName = tt.product
			err := order.Validate()
			if tt.wantErr != errors.Is(err, ErrNameTooLong) {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPendingOrderPatch(t *testing.T) {
	if err := (PendingOrderPatch{}).Validate(); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected empty patch error, got %v", err)
	}
	zero := decimal.Zero
	if err := (PendingOrderPatch{Quantity: &zero}).Validate(); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected quantity error, got %v", err)
	}

	q := decimal.NewFromInt(7)
	d := NewDate(2025, 2, 2)
	o := PendingOrder{ID: "a", Quantity: decimal.NewFromInt(1), DeliveryDate: NewDate(2025, 1, 1)}
	got := PendingOrderPatch{Quantity: &q}.Apply(o)
	if !got.Quantity.Equal(q) || got.DeliveryDate != o.DeliveryDate {
		t.Fatalf("quantity-only patch applied wrongly: %+v", got)
	}
	got = PendingOrderPatch{DeliveryDate: &d}.Apply(o)
	if got.DeliveryDate != d || !got.Quantity.Equal(o.Quantity) {
		t.Fatalf("date-only patch applied wrongly: %+v", got)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	base := errors.New("disk full")
	te := &TransactionError{Op: "complete order", Err: base}
	if !IsTransaction(te) || !errors.Is(te, base) {
		t.Fatalf("transaction error does not unwrap")
	}
	xe := &ExternalSourceError{Source: "prices", Err: base}
	if !IsExternalSource(xe) || IsTransaction(xe) {
		t.Fatalf("external source error misclassified")
	}
}
