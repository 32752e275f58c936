package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
)

func entry(code string, price int64) core.PriceEntry {
	return core.PriceEntry{Code: code, UnitPrice: decimal.NewFromInt(price)}
}

func TestResolveVariants(t *testing.T) {
	r := NewResolver([]core.PriceEntry{entry("P-100(A)", 50)})
	ctx := context.Background()

	got := r.Resolve(ctx, []string{"p100a", "P100A", "P-100(A)", "p-100(a)", "P-100A", "P100(A)", "P-999"})
	for _, code := range []string{"p100a", "P100A", "P-100(A)", "p-100(a)", "P-100A", "P100(A)"} {
		if !got[code].Equal(decimal.NewFromInt(50)) {
			t.Errorf("%s: got %s, want 50", code, got[code])
		}
	}
	if !got["P-999"].IsZero() {
		t.Errorf("P-999: got %s, want 0", got["P-999"])
	}
	if len(r.FuzzyMatches()) != 0 {
		t.Errorf("expected no fuzzy matches, got %v", r.FuzzyMatches())
	}
}

func TestResolvePrecedence(t *testing.T) {
	// Each exact code keeps its own price even though "ab-1" also
	// normalizes to "ab1"; "Ab-1" falls through to the lower-case variant.
	r := NewResolver([]core.PriceEntry{
		entry("ab-1", 10),
		entry("AB1", 20),
		entry("ab1", 30),
	})
	got := r.Resolve(context.Background(), []string{"ab-1", "AB1", "ab1", "Ab-1"})
	want := map[string]int64{"ab-1": 10, "AB1": 20, "ab1": 30, "Ab-1": 10}
	for code, price := range want {
		if !got[code].Equal(decimal.NewFromInt(price)) {
			t.Errorf("%s: got %s, want %d", code, got[code], price)
		}
	}
}

func TestResolveFirstEntryKeepsSharedVariant(t *testing.T) {
	r := NewResolver([]core.PriceEntry{entry("X-9", 1), entry("X(9)", 2)})
	got := r.Resolve(context.Background(), []string{"x9"})
	if !got["x9"].Equal(decimal.NewFromInt(1)) {
		t.Fatalf("x9: got %s, want 1", got["x9"])
	}
}

func TestResolveFuzzy(t *testing.T) {
	r := NewResolver([]core.PriceEntry{
		entry("ZZ-1", 5),
		entry("KX-ABCD-2", 7),
		entry("ABCD-77", 9),
	})
	got := r.Resolve(context.Background(), []string{"abcdef", "ab"})
	if !got["abcdef"].Equal(decimal.NewFromInt(7)) {
		t.Fatalf("abcdef: got %s, want 7 (first containing match in table order)", got["abcdef"])
	}
	// Short codes use the whole code as prefix.
	if !got["ab"].Equal(decimal.NewFromInt(7)) {
		t.Fatalf("ab: got %s, want 7", got["ab"])
	}
	matches := r.FuzzyMatches()
	if len(matches) != 2 || matches[0].MatchedCode != "KX-ABCD-2" || matches[0].QueryCode != "abcdef" {
		t.Fatalf("unexpected fuzzy trace: %+v", matches)
	}
}

func TestResolveEveryCodePresent(t *testing.T) {
	r := NewResolver(nil)
	got := r.Resolve(context.Background(), []string{"A", "B", "A", ""})
	if len(got) != 3 {
		t.Fatalf("expected 3 keys, got %v", got)
	}
	for code, price := range got {
		if !price.IsZero() {
			t.Errorf("%q: expected zero with empty table, got %s", code, price)
		}
	}
}

func TestNewResolverSkipsBlankCodes(t *testing.T) {
	r := NewResolver([]core.PriceEntry{entry("  ", 3), entry(" Q-1 ", 4)})
	if r.Len() != 1 {
		t.Fatalf("expected 1 usable entry, got %d", r.Len())
	}
	got := r.Resolve(context.Background(), []string{"q1"})
	if !got["q1"].Equal(decimal.NewFromInt(4)) {
		t.Fatalf("q1: got %s, want 4", got["q1"])
	}
}
