// Package pricing resolves product codes to unit prices against a price
// table whose codes are formatted inconsistently.
package pricing

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
	applog "ordini/internal/log"
)

const (
	// fuzzyPrefixLen is how many leading runes of a code the similar-code search uses.
	fuzzyPrefixLen = 4
	// variantKinds is the number of spellings produced by variants.
	variantKinds = 8
)

// FuzzyMatch records a price taken from a similar code instead of an exact variant.
type FuzzyMatch struct {
	QueryCode   string
	MatchedCode string
	UnitPrice   decimal.Decimal
}

// Resolver maps product codes to unit prices for one price table snapshot.
type Resolver struct {
	lookup  map[string]decimal.Decimal
	entries []core.PriceEntry

	mu    sync.Mutex
	fuzzy []FuzzyMatch
}

// NewResolver builds the variant lookup table ahead of time. Variants are
// registered one kind at a time in precedence order, so an exact code is
// never shadowed by another entry's normalized spelling. Within a kind the
// first entry in table order wins.
func NewResolver(entries []core.PriceEntry) *Resolver {
	r := &Resolver{
		lookup:  make(map[string]decimal.Decimal, len(entries)*8),
		entries: make([]core.PriceEntry, 0, len(entries)),
	}
	spellings := make([][]string, 0, len(entries))
	for _, e := range entries {
		code := strings.TrimSpace(e.Code)
		if code == "" {
			continue
		}
		r.entries = append(r.entries, core.PriceEntry{Code: code, UnitPrice: e.UnitPrice})
		spellings = append(spellings, variants(code))
	}
	for kind := 0; kind < variantKinds; kind++ {
		for i, vs := range spellings {
			if _, taken := r.lookup[vs[kind]]; !taken {
				r.lookup[vs[kind]] = r.entries[i].UnitPrice
			}
		}
	}
	return r
}

// Resolve returns a price for every input code. Codes with no match map to zero.
func (r *Resolver) Resolve(ctx context.Context, codes []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		if _, done := out[code]; done {
			continue
		}
		out[code] = r.resolveOne(ctx, code)
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, code string) decimal.Decimal {
	if strings.TrimSpace(code) == "" {
		return decimal.Zero
	}
	for _, v := range variants(code) {
		if price, ok := r.lookup[v]; ok {
			return price
		}
	}
	if m, ok := r.similar(code); ok {
		r.mu.Lock()
		r.fuzzy = append(r.fuzzy, m)
		r.mu.Unlock()
		slog.WarnContext(ctx, "Price resolved by similar code",
			applog.FieldComponent, applog.ComponentPricing,
			"query_code", m.QueryCode,
			"matched_code", m.MatchedCode,
			"unit_price", m.UnitPrice.String())
		return m.UnitPrice
	}
	slog.DebugContext(ctx, "No price found for product code",
		applog.FieldComponent, applog.ComponentPricing,
		applog.FieldProductCode, code)
	return decimal.Zero
}

// similar finds the first entry, in table order, whose lower-cased code
// contains the leading runes of the lower-cased query.
func (r *Resolver) similar(code string) (FuzzyMatch, bool) {
	lower := []rune(strings.ToLower(code))
	if len(lower) > fuzzyPrefixLen {
		lower = lower[:fuzzyPrefixLen]
	}
	prefix := string(lower)
	for _, e := range r.entries {
		if strings.Contains(strings.ToLower(e.Code), prefix) {
			return FuzzyMatch{QueryCode: code, MatchedCode: e.Code, UnitPrice: e.UnitPrice}, true
		}
	}
	return FuzzyMatch{}, false
}

// FuzzyMatches returns the similar-code matches made so far, for data-quality audits.
func (r *Resolver) FuzzyMatches() []FuzzyMatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FuzzyMatch(nil), r.fuzzy...)
}

// Len reports how many usable price entries the resolver holds.
func (r *Resolver) Len() int {
	return len(r.entries)
}

// variants lists the candidate spellings of code in lookup precedence order.
func variants(code string) []string {
	noHyphen := stripHyphens(code)
	noParens := stripParens(code)
	noBoth := stripParens(noHyphen)
	return []string{
		code,
		strings.ToLower(code),
		noHyphen,
		strings.ToLower(noHyphen),
		noParens,
		strings.ToLower(noParens),
		noBoth,
		strings.ToLower(noBoth),
	}
}

func stripHyphens(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

func stripParens(s string) string {
	return strings.NewReplacer("(", "", ")", "").Replace(s)
}
