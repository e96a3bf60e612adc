// Package dashboard implements the live sensor reliability TUI using
// BubbleTea with per-sensor sparklines of temperature and retry counts.
package dashboard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/dhtmon/internal/chart"
	"github.com/luki/dhtmon/internal/history"
	"github.com/luki/dhtmon/internal/poller"
	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

const (
	refreshInterval = 1 * time.Second
	historySize     = 600 // 10 minutes at 1s interval
)

var humidityThresholds = chart.Thresholds{High: 70, Crit: 85, HasHigh: true, HasCrit: true}

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type updateMsg poller.Update

// ── Model ────────────────────────────────────────────────────────────

// Options configures the dashboard.
type Options struct {
	Interval   time.Duration
	Policy     stats.Policy
	JournalDir string                 // shown in the title bar when set
	Statuses   func() []poller.Status // polled once a second, may be nil
	Now        func() time.Time
}

// Model is the BubbleTea model for the live dashboard.
type Model struct {
	opts      Options
	status    map[string]poller.Status
	temps     *history.Store
	retries   *history.Store
	order     []string
	session   string
	width     int
	height    int
	scroll    int
	lastPoll  time.Time
	startTime time.Time
	paused    bool
}

// New creates the initial model.
func New(opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := Model{
		opts:      opts,
		status:    make(map[string]poller.Status),
		temps:     history.NewStore(historySize),
		retries:   history.NewStore(historySize),
		startTime: opts.Now(),
	}
	m.refresh()
	return m
}

// ── Commands ─────────────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh re-evaluates every sensor so relative times and rates move even
// when no reading arrives.
func (m *Model) refresh() {
	if m.opts.Statuses == nil {
		return
	}
	for _, st := range m.opts.Statuses() {
		m.track(st.Sensor)
		m.status[st.Sensor] = st
		if st.Session != "" {
			m.session = st.Session
		}
	}
}

func (m *Model) track(id string) {
	for _, k := range m.order {
		if k == id {
			return
		}
	}
	m.order = append(m.order, id)
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
			if !m.paused {
				m.refresh()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if !m.paused {
			m.refresh()
		}
		return m, tickCmd()

	case updateMsg:
		m.apply(poller.Update(msg))
	}

	return m, nil
}

func (m *Model) apply(u poller.Update) {
	at := u.Snapshot.At
	m.retries.Record(u.Sensor, float64(u.Reading.RetryCount), at)
	if u.Reading.Valid {
		m.temps.Record(u.Sensor, u.Reading.Temperature, at)
	}
	if m.paused {
		return
	}

	m.track(u.Sensor)
	prev := m.status[u.Sensor]
	m.status[u.Sensor] = poller.Status{
		Session:  u.Session,
		Sensor:   u.Sensor,
		Name:     u.Name,
		Model:    u.Model,
		Retries:  u.Retries,
		Skipped:  prev.Skipped,
		Snapshot: u.Snapshot,
	}
	m.session = u.Session
	m.lastPoll = at
}

// ── Presenter ────────────────────────────────────────────────────────

// Presenter forwards poller updates into a running program.
type Presenter struct {
	prog *tea.Program
}

// NewPresenter binds a presenter to p.
func NewPresenter(p *tea.Program) *Presenter {
	return &Presenter{prog: p}
}

// StatsChanged implements poller.Observer.
func (p *Presenter) StatsChanged(u poller.Update) {
	p.prog.Send(updateMsg(u))
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorChipName = lipgloss.Color("147")
	colorAdapter  = lipgloss.Color("243")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorOk       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorHigh     = lipgloss.Color("208")
	colorCrit     = lipgloss.Color("196")
	colorPaused   = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitleBar(contentWidth))

	if len(m.order) == 0 {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for sensor data...")
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderSensorPanels(contentWidth)...)
	}

	sections = append(sections, m.renderFooter(contentWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	lines := strings.Split(content, "\n")
	visibleLines := m.height
	if visibleLines < 5 {
		visibleLines = 5
	}
	maxScroll := len(lines) - visibleLines
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}

	start := m.scroll
	end := start + visibleLines
	if end > len(lines) {
		end = len(lines)
	}

	return strings.Join(lines[start:end], "\n")
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("DHT MONITOR")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	var statusParts []string

	statusParts = append(statusParts, dimS.Render(fmt.Sprintf("up %s", fmtDuration(m.opts.Now().Sub(m.startTime)))))
	if m.opts.Interval > 0 {
		statusParts = append(statusParts, dimS.Render("every "+m.opts.Interval.String()))
	}
	statusParts = append(statusParts, dimS.Render(m.opts.Policy.String()))
	if m.session != "" {
		statusParts = append(statusParts, dimS.Render("session "+truncate(m.session, 8)))
	}

	if !m.lastPoll.IsZero() {
		statusParts = append(statusParts, dimS.Render(m.lastPoll.Format("15:04:05")))
	}

	if m.paused {
		p := lipgloss.NewStyle().
			Foreground(colorPaused).
			Bold(true).
			Render("PAUSED")
		statusParts = append(statusParts, p)
	}

	if m.opts.JournalDir != "" {
		rec := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Render("REC") +
			dimS.Render(" "+m.opts.JournalDir)
		statusParts = append(statusParts, rec)
	}

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderSensorPanels(totalWidth int) []string {
	innerWidth := totalWidth - 4
	if innerWidth < 30 {
		innerWidth = 30
	}

	chartWidth := innerWidth - 60
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	labelW := 12
	valueW := 10

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")
	label := func(s string) string {
		return lipgloss.NewStyle().Foreground(colorLabel).Width(labelW).Render(truncate(s, labelW))
	}
	value := func(s string) string {
		return lipgloss.NewStyle().Width(valueW).Align(lipgloss.Right).Render(s)
	}

	var panels []string

	for _, id := range m.order {
		st, ok := m.status[id]
		if !ok {
			continue
		}
		snap := st.Snapshot

		var rows []string

		// Header: part, name, id, state of the last attempt.
		friendly := lipgloss.NewStyle().
			Bold(true).
			Foreground(colorChipName).
			Render(sensor.FriendlyName(string(st.Model)))
		name := lipgloss.NewStyle().Foreground(colorLabel).Render(st.Name)
		idText := lipgloss.NewStyle().Foreground(colorAdapter).Render(st.Sensor)
		state := dimS.Render("waiting")
		if snap.TotalAttempts > 0 {
			if snap.LastValid {
				state = lipgloss.NewStyle().Foreground(colorOk).Render("OK")
			} else {
				state = lipgloss.NewStyle().Foreground(colorCrit).Bold(true).Render("FAIL")
			}
		}
		rows = append(rows, friendly+"  "+name+"  "+idText+"  "+state)

		// Temperature with its sparkline.
		var lastPts []history.Point
		tempCell := lipgloss.NewStyle().Foreground(chart.TempThresholds.Color(snap.Temperature)).Render(snap.TemperatureDisplay)
		if snap.Temperature == stats.Sentinel && snap.Policy == stats.PolicySentinel {
			tempCell = lipgloss.NewStyle().Foreground(colorCrit).Render(snap.TemperatureDisplay)
		}
		tempRow := label("Temperature") + " " + value(tempCell) + " "
		if hist := m.temps.Get(id); hist != nil {
			rangeMin := math.Floor(hist.Min - 2)
			rangeMax := math.Ceil(hist.Peak + 2)
			lastPts = hist.LastNPoints(chartWidth)
			spark := chart.RenderSparklinePoints(lastPts, chartWidth, rangeMin, rangeMax, chart.TempThresholds)
			tempRow += frameL + spark + frameR +
				dimS.Render(" avg") + valS.Render(fmt.Sprintf("%5.1f", hist.Avg())) +
				dimS.Render(" lo") + valS.Render(fmt.Sprintf("%5.1f", hist.Min)) +
				dimS.Render(" pk") + valS.Render(fmt.Sprintf("%5.1f", hist.Peak))
		} else {
			tempRow += frameL + chart.RenderSparklinePoints(nil, chartWidth, 0, 1, chart.TempThresholds) + frameR
		}
		rows = append(rows, tempRow)

		if lastPts != nil {
			timeline := chart.RenderTimeline(lastPts, chartWidth)
			if strings.TrimSpace(timeline) != "" {
				pad := strings.Repeat(" ", labelW+valueW+2)
				rows = append(rows, pad+" "+timeline)
			}
		}

		// Humidity on a fixed 0..100 scale.
		humCell := lipgloss.NewStyle().Foreground(humidityThresholds.Color(snap.Humidity)).Render(snap.HumidityDisplay)
		rows = append(rows, label("Humidity")+" "+value(humCell)+" "+
			frameL+chart.RenderThresholdScale(snap.Humidity, 0, 100, humidityThresholds, chartWidth)+frameR)

		// Retries per attempt against the driver budget.
		retryRow := label("Retries") + " " +
			value(chart.RenderValue("%.0f", float64(snap.LastRetryCount), chart.RetryThresholds)) + " "
		if hist := m.retries.Get(id); hist != nil {
			spark := chart.RenderSparklinePoints(hist.LastNPoints(chartWidth), chartWidth, 0, retryScale(st.Retries), chart.RetryThresholds)
			retryRow += frameL + spark + frameR
		} else {
			retryRow += frameL + chart.RenderSparklinePoints(nil, chartWidth, 0, 1, chart.RetryThresholds) + frameR
		}
		retryRow += dimS.Render(" avg") + valS.Render(fmt.Sprintf("%3s", snap.AverageRetriesDisplay)) +
			dimS.Render(" recent") + valS.Render(fmt.Sprintf("%3d", snap.RecentAverageRetries))
		rows = append(rows, retryRow)

		// Reliability summary.
		pct := 0.0
		if snap.TotalAttempts > 0 {
			pct = 100 * float64(snap.TotalSuccess) / float64(snap.TotalAttempts)
		}
		summary := dimS.Render("attempts ") + valS.Render(strconv.FormatUint(snap.TotalAttempts, 10)) +
			dimS.Render("  success ") + lipgloss.NewStyle().Foreground(chart.PercentColor(pct)).Render(snap.PercentSuccess) +
			dimS.Render("  rate ") + valS.Render(snap.SuccessRate) +
			dimS.Render("  updated ") + valS.Render(snap.LastUpdatedDisplay)
		if st.Skipped > 0 {
			summary += dimS.Render("  skipped ") + lipgloss.NewStyle().Foreground(colorWarn).Render(strconv.FormatUint(st.Skipped, 10))
		}
		rows = append(rows, summary)

		panelContent := lipgloss.JoinVertical(lipgloss.Left, rows...)
		panel := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Width(totalWidth).
			Render(panelContent)

		panels = append(panels, panel)
	}

	return panels
}

func (m Model) renderFooter(width int) string {
	okS := lipgloss.NewStyle().Foreground(colorOk).Render("██")
	warnS := lipgloss.NewStyle().Foreground(colorWarn).Render("██")
	highS := lipgloss.NewStyle().Foreground(colorHigh).Render("██")
	critS := lipgloss.NewStyle().Foreground(colorCrit).Render("██")
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	legend := okS + dimS.Render(" ok ") +
		warnS + dimS.Render(" warm ") +
		highS + dimS.Render(" high ") +
		critS + dimS.Render(" crit ") +
		tickS + dimS.Render(" 1min")

	keyS := lipgloss.NewStyle().Foreground(colorLabel)
	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  j/k") + keyS.Render(":scroll") +
		dimS.Render("  p") + keyS.Render(":pause")

	gap := width - lipgloss.Width(legend) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + strings.Repeat(" ", gap) + keys)
}

// retryScale is the top of the retry chart: the sensor's retry budget.
func retryScale(budget int) float64 {
	if budget <= 0 {
		return sensor.DefaultRetries
	}
	return float64(budget)
}

func truncate(s string, w int) string {
	if len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-1] + "…"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
