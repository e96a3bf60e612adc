// Package chart provides sparkline rendering with color-coded thresholds,
// minute tick marks, timeline labels, and threshold scale bars.
package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/dhtmon/internal/history"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Thresholds mark where a series turns from fine to worrying.
type Thresholds struct {
	High    float64
	Crit    float64
	HasHigh bool
	HasCrit bool
}

var (
	// TempThresholds colors indoor temperatures.
	TempThresholds = Thresholds{High: 30, Crit: 35, HasHigh: true, HasCrit: true}
	// RetryThresholds colors retry counts out of a 20 retry budget.
	RetryThresholds = Thresholds{High: 5, Crit: 15, HasHigh: true, HasCrit: true}
)

// Color returns the color for v.
func (th Thresholds) Color(v float64) lipgloss.Color {
	switch {
	case th.HasCrit && v >= th.Crit:
		return lipgloss.Color("196") // red
	case th.HasHigh && v >= th.High:
		return lipgloss.Color("208") // orange
	case th.HasHigh && v >= th.High*0.85:
		return lipgloss.Color("220") // yellow
	default:
		return lipgloss.Color("78") // soft green
	}
}

func (th Thresholds) critical(v float64) bool {
	return th.HasCrit && v >= th.Crit
}

// PercentColor colors a success percentage, 0..100.
func PercentColor(p float64) lipgloss.Color {
	switch {
	case p >= 90:
		return lipgloss.Color("78")
	case p >= 70:
		return lipgloss.Color("220")
	case p >= 40:
		return lipgloss.Color("208")
	default:
		return lipgloss.Color("196")
	}
}

// RenderSparkline renders a sparkline chart with color-coded blocks and no
// timestamp ticks.
func RenderSparkline(values []float64, width int, rangeMin, rangeMax float64, th Thresholds) string {
	if width <= 0 {
		return ""
	}
	pts := make([]history.Point, len(values))
	for i, v := range values {
		pts[i] = history.Point{Value: v}
	}
	return RenderSparklinePoints(pts, width, rangeMin, rangeMax, th)
}

// RenderSparklinePoints renders a sparkline with minute tick marks on the
// timeline. A subtle pipe is drawn at each minute boundary.
func RenderSparklinePoints(points []history.Point, width int, rangeMin, rangeMax float64, th Thresholds) string {
	if width <= 0 {
		return ""
	}

	if len(points) == 0 {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
		return dim.Render(strings.Repeat("╌", width))
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)
	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	for i := 0; i < padLen; i++ {
		sb.WriteString(dim.Render("╌"))
	}

	tickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	for i, p := range points {
		norm := (p.Value - rangeMin) / span
		norm = math.Max(0, math.Min(1, norm))

		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}

		if minuteTick(points, i) {
			sb.WriteString(tickStyle.Render("│"))
			continue
		}

		style := lipgloss.NewStyle().Foreground(th.Color(p.Value))
		if th.critical(p.Value) {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}

	return sb.String()
}

func minuteTick(points []history.Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() {
		return false
	}
	if p.Time.Second() == 0 {
		return true
	}
	return i > 0 && !points[i-1].Time.IsZero() && p.Time.Minute() != points[i-1].Time.Minute()
}

// RenderTimeline renders the time labels under the sparkline, showing
// HH:MM at each minute tick position.
func RenderTimeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)

	line := make([]rune, width)
	for i := range line {
		line[i] = ' '
	}

	tickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	type tick struct {
		pos   int
		label string
	}
	var ticks []tick

	for i, p := range points {
		if minuteTick(points, i) {
			ticks = append(ticks, tick{pos: padLen + i, label: p.Time.Format("15:04")})
		}
	}

	lastEnd := -1
	for _, t := range ticks {
		start := t.pos - 2
		if start < 0 {
			start = 0
		}
		end := start + len(t.label)
		if end > width {
			continue
		}
		if start <= lastEnd+1 {
			continue
		}
		for j, ch := range t.label {
			line[start+j] = ch
		}
		lastEnd = end
	}

	return tickStyle.Render(string(line))
}

// RenderThresholdScale renders a scale bar showing current position vs thresholds.
func RenderThresholdScale(current, rangeMin, rangeMax float64, th Thresholds, width int) string {
	if width <= 0 {
		return ""
	}

	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		return int(float64(width-1) * (v - rangeMin) / span)
	}

	highPos, critPos := -1, -1
	if th.HasHigh && th.High > rangeMin {
		highPos = pos(th.High)
	}
	if th.HasCrit && th.Crit > rangeMin {
		critPos = pos(th.Crit)
	}

	curPos := pos(current)
	if curPos < 0 {
		curPos = 0
	}
	if curPos >= width {
		curPos = width - 1
	}

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch i {
		case curPos:
			style := lipgloss.NewStyle().Foreground(th.Color(current)).Bold(true)
			sb.WriteString(style.Render("◆"))
		case critPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("▪"))
		case highPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render("▪"))
		default:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("236")).Render("·"))
		}
	}

	return sb.String()
}

// RenderValue renders a formatted value with color coding.
func RenderValue(format string, v float64, th Thresholds) string {
	style := lipgloss.NewStyle().Foreground(th.Color(v))
	if th.critical(v) {
		style = style.Bold(true)
	}
	return style.Render(fmt.Sprintf(format, v))
}
