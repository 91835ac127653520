package domain

import "github.com/shopspring/decimal"

// MetricKind classifies a summary metric for formatting and coloring.
type MetricKind string

const (
	KindCount   MetricKind = "count"
	KindSpend   MetricKind = "currency_spend"
	KindRevenue MetricKind = "currency_revenue"
	KindNet     MetricKind = "currency_net"
)

// IsCurrency reports whether values of this kind are money.
func (k MetricKind) IsCurrency() bool {
	return k == KindSpend || k == KindRevenue || k == KindNet
}

// Metric is one derived aggregate over the full record set.
type Metric struct {
	Key   string          `json:"key"`
	Title string          `json:"title"`
	Value decimal.Decimal `json:"value"`
	Kind  MetricKind      `json:"kind"`
}

// Aggregate computes the summary metrics for records in a fixed order: DM
// total, ad spend, sales, revenue, net profit. Metrics that sum to exactly
// zero are left out.
func Aggregate(records []Record) []Metric {
	dm, sales := decimal.Zero, decimal.Zero
	adSpend, revenue := decimal.Zero, decimal.Zero
	for _, r := range records {
		dm = dm.Add(decimal.NewFromInt(r.DMCount))
		sales = sales.Add(decimal.NewFromInt(r.SalesCount))
		adSpend = adSpend.Add(r.AdSpend)
		revenue = revenue.Add(r.Revenue)
	}

	all := []Metric{
		{Key: "dm_total", Title: "Total DMs", Value: dm, Kind: KindCount},
		{Key: "ad_spend_total", Title: "Ad Spend", Value: adSpend, Kind: KindSpend},
		{Key: "sales_total", Title: "Total Sales", Value: sales, Kind: KindCount},
		{Key: "revenue_total", Title: "Revenue", Value: revenue, Kind: KindRevenue},
		{Key: "net_profit", Title: "Net Profit", Value: revenue.Sub(adSpend), Kind: KindNet},
	}

	out := make([]Metric, 0, len(all))
	for _, m := range all {
		if m.Value.IsZero() {
			continue
		}
		out = append(out, m)
	}
	return out
}
