package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// RecordInput holds the raw form fields of a submission.
type RecordInput struct {
	DMCount    string `json:"dmCount"`
	AdSpend    string `json:"adSpend"`
	SalesCount string `json:"salesCount"`
	Revenue    string `json:"revenue"`
}

// ValidateInput parses and checks a submission. Blank, unparseable or
// out-of-range values count as zero. Ad spend and revenue have no lower bound here; revenue may
// be negative to record a loss.
func ValidateInput(in RecordInput) (RecordFields, error) {
	f := RecordFields{
		DMCount:    ParseCount(in.DMCount),
		AdSpend:    ParseAmount(in.AdSpend),
		SalesCount: ParseCount(in.SalesCount),
		Revenue:    ParseAmount(in.Revenue),
	}
	if f.DMCount == 0 && f.SalesCount == 0 && f.AdSpend.IsZero() && f.Revenue.IsZero() {
		return RecordFields{}, ErrAllZero
	}
	if f.DMCount < 0 || f.SalesCount < 0 {
		return RecordFields{}, ErrNegativeCount
	}
	return f, nil
}

// Input outside these bounds is treated as unparseable.
var (
	maxCount  = decimal.NewFromInt(math.MaxInt64)
	maxAmount = decimal.New(1, 15)
)

// maxScale bounds the decimal exponent accepted from a form field.
const maxScale = 18

// ParseCount reads a count, truncating fractional input toward zero ("3.7"
// is 3). Blank, unparseable or out-of-range input reads as 0.
func ParseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	d, ok := parseDecimal(s)
	if !ok || d.Abs().GreaterThanOrEqual(maxCount) {
		return 0
	}
	return d.IntPart()
}

// ParseAmount reads a money amount. Blank, unparseable or out-of-range
// input reads as 0.
func ParseAmount(s string) decimal.Decimal {
	d, ok := parseDecimal(strings.TrimSpace(s))
	if !ok || d.Abs().GreaterThan(maxAmount) {
		return decimal.Zero
	}
	return d
}

// parseDecimal rejects exponents outside [-maxScale, maxScale] before any
// arithmetic rescales the value.
func parseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if e := d.Exponent(); e < -maxScale || e > maxScale {
		return decimal.Zero, false
	}
	return d, true
}
