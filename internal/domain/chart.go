package domain

// ChartSeries is the chart-ready form of the summary: one bar per metric.
type ChartSeries struct {
	Labels []string     `json:"labels"`
	Values []float64    `json:"values"`
	Colors []string     `json:"colors"`
	Kinds  []MetricKind `json:"kinds"`
}

// Len returns the number of bars.
func (s ChartSeries) Len() int { return len(s.Labels) }

// Chart is a rendered chart holding rendering resources until released.
type Chart interface {
	Release()
}

// ChartRenderer draws a series. It consumes the series and emits nothing
// back to the core.
type ChartRenderer interface {
	Render(series ChartSeries) (Chart, error)
}
