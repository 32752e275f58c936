package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
)

func TestParseStatsParams(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth int
		wantErr   bool
	}{
		{"both values provided", url.Values{"year": {"2024"}, "month": {"12"}}, 2024, 12, false},
		{"only year selects whole year", url.Values{"year": {"2023"}}, 2023, 0, false},
		{"empty query uses current year", url.Values{}, 2025, 0, false},
		{"invalid year", url.Values{"year": {"abc"}}, 0, 0, true},
		{"invalid month", url.Values{"year": {"2024"}, "month": {"x"}}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatsParams(tt.query, now)
			if tt.wantErr {
				if !core.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Year != tt.wantYear || got.Month != tt.wantMonth {
				t.Errorf("got %d-%d, want %d-%d", got.Year, got.Month, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestParseDateRange(t *testing.T) {
	start, end, err := ParseDateRange(url.Values{"start": {"2025-01-01"}, "end": {"2025-01-31"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.String() != "2025-01-01" || end.String() != "2025-01-31" {
		t.Fatalf("got %s..%s", start, end)
	}

	for _, q := range []url.Values{
		{"end": {"2025-01-31"}},
		{"start": {"2025-01-01"}},
		{"start": {"01/01/2025"}, "end": {"2025-01-31"}},
	} {
		_, _, err := ParseDateRange(q)
		var ve *core.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%v: expected validation error, got %v", q, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantErr     bool
	}{
		{"valid", `{"quantity": "1.5"}`, "application/json", false},
		{"numeric quantity", `{"quantity": 2}`, "application/json; charset=utf-8", false},
		{"no content type", `{"quantity": "1"}`, "", false},
		{"empty body", ``, "application/json", true},
		{"unknown field", `{"qty": 1}`, "application/json", true},
		{"trailing object", `{"quantity": 1}{"quantity": 2}`, "application/json", true},
		{"form content type", `quantity=1`, "application/x-www-form-urlencoded", true},
		{"too large", `{"quantity": "` + strings.Repeat("1", maxBodyBytes) + `"}`, "application/json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			var v editLineItemRequest
			err := decodeJSON(httptest.NewRecorder(), req, &v)
			if tt.wantErr {
				var br *badRequest
				if !errors.As(err, &br) {
					t.Fatalf("expected bad request, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Quantity == nil || !v.Quantity.IsPositive() {
				t.Fatalf("quantity not decoded: %v", v.Quantity)
			}
		})
	}
}

func TestUpdateRequestToPatch(t *testing.T) {
	date := "2025-02-03"
	qty := decimal.RequireFromString("4")
	patch, err := updatePendingRequest{DeliveryDate: &date, Quantity: &qty}.toPatch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.DeliveryDate == nil || patch.DeliveryDate.String() != date {
		t.Fatalf("date not set: %v", patch.DeliveryDate)
	}

	bad := "tomorrow"
	if _, err := (updatePendingRequest{DeliveryDate: &bad}).toPatch(); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	patch, err = updatePendingRequest{}.toPatch()
	if err != nil || patch.DeliveryDate != nil || patch.Quantity != nil {
		t.Fatalf("empty request should give empty patch, got %+v, %v", patch, err)
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  P-100\x00(a)\x07 "); got != "P-100(a)" {
		t.Fatalf("got %q", got)
	}
}
