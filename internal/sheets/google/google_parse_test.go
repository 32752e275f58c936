package google

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseProducts(t *testing.T) {
	values := [][]interface{}{
		{"Codice", "Nome", "Colore", "Note"},
		{"P-100(A)", "Pellet A", "red", "bulk only"},
		{"", "orphan row"},
		{"X9", "Flakes"},
	}
	products, err := parseProducts(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d: %+v", len(products), products)
	}
	if products[0].Code != "P-100(A)" || products[0].Name != "Pellet A" || products[0].Color != "red" {
		t.Fatalf("unexpected first product: %+v", products[0])
	}
	if products[0].Extra["Note"] != "bulk only" {
		t.Fatalf("extra column not kept: %+v", products[0].Extra)
	}
	if products[1].Color != "" || products[1].Extra != nil {
		t.Fatalf("short row should leave optional fields empty: %+v", products[1])
	}
}

func TestParseProductsRequiresCodeHeader(t *testing.T) {
	_, err := parseProducts([][]interface{}{{"Name", "Color"}, {"a", "b"}})
	if err == nil || !strings.Contains(err.Error(), "unexpected products header") {
		t.Fatalf("expected header error, got %v", err)
	}
}

func TestParsePrices(t *testing.T) {
	values := [][]interface{}{
		{"Code", "Unit Price", "Supplier"},
		{"P-100(A)", 50.0, "acme"},
		{"X9", "1.234,50 €"},
		{"Y1", "n/a"},
		{"Z2", "$1,234.50"},
		{"", 3.0},
		{"W3", "12,5"},
		{"A1", "1,234"},
		{"A2", "1.234"},
		{"A3", 1.234},
	}
	prices, skipped, err := parsePrices(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if skipped != 3 {
		t.Fatalf("expected 3 skipped rows, got %d", skipped)
	}
	want := []struct {
		code  string
		price string
	}{
		{"P-100(A)", "50"},
		{"X9", "1234.5"},
		{"Z2", "1234.5"},
		{"W3", "12.5"},
		{"A3", "1.234"},
	}
	if len(prices) != len(want) {
		t.Fatalf("expected %d prices, got %+v", len(want), prices)
	}
	for i, w := range want {
		if prices[i].Code != w.code || !prices[i].UnitPrice.Equal(decimal.RequireFromString(w.price)) {
			t.Errorf("row %d: got %s=%s, want %s=%s", i, prices[i].Code, prices[i].UnitPrice, w.code, w.price)
		}
	}
	if prices[0].Extra["Supplier"] != "acme" {
		t.Fatalf("extra column not kept: %+v", prices[0].Extra)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12,5", "12.5", true},
		{"0,125", "0.125", true},
		{"0.125", "0.125", true},
		{"1234,567", "1234.567", true},
		{"1.234.567", "1234567", true},
		{"1,234,567", "1234567", true},
		{"1.234,50 €", "1234.5", true},
		{"$1,234.50", "1234.5", true},
		{"1,234", "", false},
		{"1.234", "", false},
		{"12.34.5", "", false},
		{"-3", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parsePrice(tt.in)
		if ok != tt.ok {
			t.Errorf("parsePrice(%q) ok=%v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("parsePrice(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParsePricesRequiresHeaders(t *testing.T) {
	if _, _, err := parsePrices([][]interface{}{{"Code", "Name"}}); err == nil {
		t.Fatalf("expected header error")
	}
	if out, _, err := parsePrices(nil); err != nil || out != nil {
		t.Fatalf("empty matrix should yield nothing, got %v %v", out, err)
	}
}

func TestSheetRange(t *testing.T) {
	cases := map[[2]string]string{
		{"", "Products"}:        "Products!A:Z",
		{"Listino 2025", "x"}:   "'Listino 2025'!A:Z",
		{"Prezzi", "Prices"}:    "Prezzi!A:Z",
		{"O'Brien list", "x"}:   "'O''Brien list'!A:Z",
	}
	for in, want := range cases {
		if got := sheetRange(in[0], in[1], "A:Z"); got != want {
			t.Errorf("sheetRange(%q) = %q, want %q", in[0], got, want)
		}
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestClientWithoutServiceFails(t *testing.T) {
	c := &Client{spreadsheetID: "test", pricesRange: "Prices!A:Z"}
	if _, err := c.ListPrices(context.Background()); err == nil {
		t.Fatal("expected error when service is not initialized")
	}
}
