package google

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
)

var (
	codeHeaders  = []string{"code", "product code", "codice", "sku"}
	nameHeaders  = []string{"name", "product name", "nome", "descrizione"}
	colorHeaders = []string{"color", "colour", "colore"}
	priceHeaders = []string{"unit price", "unit_price", "price", "prezzo", "prezzo unitario"}
)

// parseProducts converts a values matrix into products. A header row naming
// a code column is required; unknown columns are kept in Extra.
func parseProducts(values [][]interface{}) ([]core.Product, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	colCode := indexOfAny(headers, codeHeaders)
	if colCode == -1 {
		return nil, fmt.Errorf("unexpected products header: missing code column; got headers=%v", headers)
	}
	colName := indexOfAny(headers, nameHeaders)
	colColor := indexOfAny(headers, colorHeaders)

	out := make([]core.Product, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		code := safeGet(row, colCode)
		if code == "" {
			continue
		}
		out = append(out, core.Product{
			Code:  code,
			Name:  safeGet(row, colName),
			Color: safeGet(row, colColor),
			Extra: extras(headers, row, colCode, colName, colColor),
		})
	}
	return out, nil
}

// parsePrices converts a values matrix into price entries in sheet order.
// Rows with an empty code or an unreadable price are skipped and counted.
func parsePrices(values [][]interface{}) ([]core.PriceEntry, int, error) {
	if len(values) == 0 {
		return nil, 0, nil
	}
	headers := toStrings(values[0])
	colCode := indexOfAny(headers, codeHeaders)
	colPrice := indexOfAny(headers, priceHeaders)
	if colCode == -1 || colPrice == -1 {
		return nil, 0, fmt.Errorf("unexpected prices header: need code and price columns; got headers=%v", headers)
	}

	skipped := 0
	out := make([]core.PriceEntry, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		code := safeGet(row, colCode)
		if code == "" {
			continue
		}
		price, ok := priceCell(values[i], colPrice)
		if !ok {
			skipped++
			continue
		}
		out = append(out, core.PriceEntry{
			Code:      code,
			UnitPrice: price,
			Extra:     extras(headers, row, colCode, colPrice),
		})
	}
	return out, skipped, nil
}

// priceCell reads the price column of a raw row. Numeric cells arrive as
// float64 because values are fetched unformatted; text cells go through
// parsePrice.
func priceCell(row []interface{}, idx int) (decimal.Decimal, bool) {
	if idx < 0 || idx >= len(row) {
		return decimal.Decimal{}, false
	}
	switch v := row[idx].(type) {
	case float64:
		d := decimal.NewFromFloat(v)
		return d, !d.IsNegative()
	case string:
		return parsePrice(v)
	default:
		return parsePrice(fmt.Sprint(v))
	}
}

// parsePrice reads a price typed as text, such as "1.234,50 €", "$1,234.50",
// "12,5" or "1.234.567". With both separators present the last one is the
// decimal mark. A single separator followed by exactly three digits, as in
// "1,234" or "1.234", could be either and is rejected.
func parsePrice(s string) (decimal.Decimal, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '€', '$', '¥', '£', ' ', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return decimal.Decimal{}, false
	}
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case dot >= 0:
		var ok bool
		if s, ok = singleSeparator(s, "."); !ok {
			return decimal.Decimal{}, false
		}
	case comma >= 0:
		var ok bool
		if s, ok = singleSeparator(s, ","); !ok {
			return decimal.Decimal{}, false
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// singleSeparator normalizes a number that uses only sep. Repeated sep means
// thousands grouping; a lone sep is the decimal mark unless it is ambiguous.
func singleSeparator(s, sep string) (string, bool) {
	parts := strings.Split(s, sep)
	if len(parts) > 2 {
		if len(parts[0]) < 1 || len(parts[0]) > 3 {
			return "", false
		}
		for _, g := range parts[1:] {
			if len(g) != 3 {
				return "", false
			}
		}
		return strings.Join(parts, ""), true
	}
	intPart, frac := parts[0], parts[1]
	if len(frac) == 3 && len(intPart) <= 3 && strings.TrimLeft(intPart, "0") != "" {
		return "", false
	}
	return intPart + "." + frac, true
}

func extras(headers, row []string, known ...int) map[string]string {
	var out map[string]string
	for i, h := range headers {
		if h == "" || containsInt(known, i) {
			continue
		}
		v := safeGet(row, i)
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[h] = v
	}
	return out
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOfAny(headers []string, names []string) int {
	for _, name := range names {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return strings.TrimSpace(arr[idx])
}
