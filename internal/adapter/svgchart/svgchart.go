// Package svgchart renders summary series as a standalone SVG bar chart.
package svgchart

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"math"
	"sync"

	"salesboard/internal/domain"
)

// ErrReleased is returned when reading a chart after Release.
var ErrReleased = errors.New("chart released")

// Formatter renders a bar value for its tooltip and label.
type Formatter func(kind domain.MetricKind, value float64) string

// Options controls the chart geometry.
type Options struct {
	Width  int
	Height int
	// Format labels bar values. Defaults to two decimals.
	Format Formatter
}

// DefaultOptions returns a 640x320 chart.
func DefaultOptions() Options {
	return Options{Width: 640, Height: 320}
}

// Renderer implements domain.ChartRenderer.
type Renderer struct {
	opts Options
}

var _ domain.ChartRenderer = (*Renderer)(nil)

// New creates a renderer. Zero dimensions fall back to the defaults.
func New(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Format == nil {
		opts.Format = func(_ domain.MetricKind, v float64) string { return fmt.Sprintf("%.2f", v) }
	}
	return &Renderer{opts: opts}
}

// Chart is one rendered document. Its buffer is dropped on Release.
type Chart struct {
	mu  sync.Mutex
	svg []byte
}

// SVG returns a copy of the document.
func (c *Chart) SVG() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svg == nil {
		return nil, ErrReleased
	}
	return bytes.Clone(c.svg), nil
}

// Release frees the document. It is safe to call more than once.
func (c *Chart) Release() {
	c.mu.Lock()
	c.svg = nil
	c.mu.Unlock()
}

const (
	marginTop    = 24
	marginBottom = 40
	marginSide   = 16
)

// Render draws one bar per series entry around a zero baseline so negative
// values hang below it.
func (r *Renderer) Render(series domain.ChartSeries) (domain.Chart, error) {
	n := series.Len()
	if n == 0 {
		return nil, errors.New("render chart: empty series")
	}
	if len(series.Values) != n || len(series.Colors) != n || len(series.Kinds) != n {
		return nil, fmt.Errorf("render chart: series lengths differ (%d labels, %d values, %d colors, %d kinds)",
			n, len(series.Values), len(series.Colors), len(series.Kinds))
	}

	maxV, minV := 0.0, 0.0
	for _, v := range series.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("render chart: invalid value %v", v)
		}
		maxV = math.Max(maxV, v)
		minV = math.Min(minV, v)
	}
	span := maxV - minV
	if span == 0 {
		span = 1
	}

	w, h := float64(r.opts.Width), float64(r.opts.Height)
	plotH := h - marginTop - marginBottom
	baseline := marginTop + plotH*maxV/span
	slot := (w - 2*marginSide) / float64(n)
	barW := slot * 0.6

	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" role="img">`,
		r.opts.Width, r.opts.Height, r.opts.Width, r.opts.Height)
	fmt.Fprintf(&b, `<line x1="%d" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#9ca3af"/>`,
		marginSide, baseline, w-marginSide, baseline)

	for i := 0; i < n; i++ {
		v := series.Values[i]
		barH := plotH * math.Abs(v) / span
		y := baseline - barH
		if v < 0 {
			y = baseline
		}
		x := marginSide + float64(i)*slot + (slot-barW)/2
		value := html.EscapeString(r.opts.Format(series.Kinds[i], v))
		label := html.EscapeString(series.Labels[i])

		fmt.Fprintf(&b, `<g><title>%s: %s</title>`, label, value)
		fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`,
			x, y, barW, barH, html.EscapeString(series.Colors[i]))
		fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" font-size="11" text-anchor="middle">%s</text>`,
			x+barW/2, h-marginBottom/2, label)
		b.WriteString(`</g>`)
	}
	b.WriteString(`</svg>`)

	return &Chart{svg: b.Bytes()}, nil
}
