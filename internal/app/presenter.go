package app

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"salesboard/internal/domain"
)

// Bar colors by classification.
const (
	ColorGreen   = "#22c55e"
	ColorRed     = "#ef4444"
	ColorEmerald = "#10b981"
	ColorAmber   = "#f59e0b"
	ColorTeal    = "#14b8a6"
)

var printer = message.NewPrinter(language.English)

// TableRow is one formatted summary line.
type TableRow struct {
	Key   string            `json:"key"`
	Title string            `json:"title"`
	Value string            `json:"value"`
	Kind  domain.MetricKind `json:"kind"`
	Color string            `json:"color"`
}

// HistoryRow is one formatted record line of the history table.
type HistoryRow struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"createdAt"`
	Pending    bool   `json:"pending"`
	DMCount    string `json:"dmCount"`
	AdSpend    string `json:"adSpend"`
	SalesCount string `json:"salesCount"`
	Revenue    string `json:"revenue"`
	Loss       bool   `json:"loss"`
}

// Presentation is everything the view needs to draw the summary.
type Presentation struct {
	Chart domain.ChartSeries `json:"chart"`
	Table []TableRow         `json:"table"`
}

// Present maps metrics to a chart series and a formatted table. It keeps no
// state between calls.
func Present(metrics []domain.Metric) Presentation {
	p := Presentation{
		Chart: domain.ChartSeries{
			Labels: make([]string, 0, len(metrics)),
			Values: make([]float64, 0, len(metrics)),
			Colors: make([]string, 0, len(metrics)),
			Kinds:  make([]domain.MetricKind, 0, len(metrics)),
		},
		Table: make([]TableRow, 0, len(metrics)),
	}
	for _, m := range metrics {
		color := MetricColor(m)
		p.Chart.Labels = append(p.Chart.Labels, m.Title)
		p.Chart.Values = append(p.Chart.Values, m.Value.InexactFloat64())
		p.Chart.Colors = append(p.Chart.Colors, color)
		p.Chart.Kinds = append(p.Chart.Kinds, m.Kind)
		p.Table = append(p.Table, TableRow{
			Key:   m.Key,
			Title: m.Title,
			Value: FormatValue(m.Kind, m.Value),
			Kind:  m.Kind,
			Color: color,
		})
	}
	return p
}

// MetricColor picks the bar color from the metric kind and sign.
func MetricColor(m domain.Metric) string {
	switch m.Kind {
	case domain.KindNet:
		if m.Value.IsNegative() {
			return ColorRed
		}
		return ColorGreen
	case domain.KindSpend:
		return ColorRed
	case domain.KindRevenue:
		if m.Value.IsNegative() {
			return ColorAmber
		}
		return ColorEmerald
	default:
		return ColorTeal
	}
}

// FormatValue formats a value for its kind. It doubles as the chart tooltip
// formatter. Spend is always shown as an outflow.
func FormatValue(kind domain.MetricKind, v decimal.Decimal) string {
	switch kind {
	case domain.KindSpend:
		return FormatCurrency(v.Neg())
	case domain.KindRevenue, domain.KindNet:
		return FormatCurrency(v)
	default:
		return FormatCount(v)
	}
}

// FormatCount renders an integer with thousands grouping.
func FormatCount(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-" + groupDigits(v.Neg())
	}
	return groupDigits(v)
}

// FormatCurrency renders two decimals with grouping. Losses are wrapped in
// parentheses and keep their sign: -50 renders as "(-$50.00)".
func FormatCurrency(v decimal.Decimal) string {
	abs := v.Abs().Round(2)
	fixed := abs.StringFixed(2)
	s := "$" + groupDigits(abs) + fixed[len(fixed)-3:]
	if v.Round(2).IsNegative() {
		return "(-" + s + ")"
	}
	return s
}

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// groupDigits groups the integer part of a non-negative value.
func groupDigits(abs decimal.Decimal) string {
	if abs.LessThanOrEqual(maxInt64) {
		return printer.Sprintf("%d", abs.IntPart())
	}
	digits := abs.Truncate(0).String()
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// PresentHistory formats records for the history table, keeping their
// order.
func PresentHistory(records []domain.Record) []HistoryRow {
	rows := make([]HistoryRow, 0, len(records))
	for _, r := range records {
		row := HistoryRow{
			ID:         r.ID,
			CreatedAt:  "pending",
			Pending:    r.Pending(),
			DMCount:    FormatCount(decimal.NewFromInt(r.DMCount)),
			AdSpend:    FormatCurrency(r.AdSpend),
			SalesCount: FormatCount(decimal.NewFromInt(r.SalesCount)),
			Revenue:    FormatCurrency(r.Revenue),
			Loss:       r.Revenue.IsNegative(),
		}
		if r.CreatedAt != nil {
			row.CreatedAt = r.CreatedAt.In(time.Local).Format("2006-01-02 15:04")
		}
		rows = append(rows, row)
	}
	return rows
}
