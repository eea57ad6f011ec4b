package main

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/haidl/tvstream/candle"
)

var (
	bullStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	bearStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	tableHeadStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("#888888"))
)

type candleMsg struct{ c candle.Candle }

// viewMode switches the body between the one-line trend sparkline and the
// scrolling OHLCV ledger; 't' cycles between them.
type viewMode int

const (
	viewSparkline viewMode = iota
	viewLedger
)

// ring keeps the last cap candles, merging a live update into the tail entry
// when it shares the current bar's open time instead of growing and
// re-slicing the backing array on every tick.
type ring struct {
	buf []candle.Candle
	cap int
}

func newRing(cap int) *ring {
	if cap < 1 {
		cap = 1
	}
	return &ring{cap: cap}
}

func (r *ring) push(c candle.Candle) {
	if n := len(r.buf); n > 0 && r.buf[n-1].OpenTime.Equal(c.OpenTime) {
		r.buf[n-1] = c
		return
	}
	r.buf = append(r.buf, c)
	if over := len(r.buf) - r.cap; over > 0 {
		r.buf = r.buf[over:]
	}
}

func (r *ring) all() []candle.Candle { return r.buf }

func (r *ring) last() (candle.Candle, bool) {
	if len(r.buf) == 0 {
		return candle.Candle{}, false
	}
	return r.buf[len(r.buf)-1], true
}

type model struct {
	symbol   string
	interval string
	ch       <-chan candle.Candle

	candles *ring
	mode    viewMode
	paused  bool

	width, height int
}

func newModel(symbol, interval string, nKline int, ch <-chan candle.Candle) model {
	return model{symbol: symbol, interval: interval, ch: ch, candles: newRing(nKline)}
}

func (m model) Init() tea.Cmd {
	return waitForCandle(m.ch)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "t":
			m.mode = (m.mode + 1) % 2
			return m, nil
		case "p":
			m.paused = !m.paused
			return m, nil
		}

	case candleMsg:
		if !m.paused {
			m.candles.push(msg.c)
		}
		return m, waitForCandle(m.ch)
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "connecting…"
	}
	var body string
	switch m.mode {
	case viewLedger:
		body = m.renderLedger()
	default:
		body = m.renderSparkline()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatusLine(),
		body,
		footerStyle.Render("[t] toggle view  [p] pause  [q] quit"),
	)
}

func waitForCandle(ch <-chan candle.Candle) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return tea.Quit()
		}
		return candleMsg{c}
	}
}

func (m model) renderStatusLine() string {
	last, ok := m.candles.last()
	if !ok {
		return headerStyle.Render(fmt.Sprintf("%s  %s  waiting for data…", m.symbol, m.interval))
	}
	status := "open"
	if last.IsClosed {
		status = "closed"
	}
	line := headerStyle.Render(fmt.Sprintf(
		"%s  %s  [%s]  last %s  bars=%d",
		m.symbol, m.interval, status, last.Close.String(), len(m.candles.all()),
	))
	if m.paused {
		line += dimStyle.Render("  [paused]")
	}
	return line
}

// sparkLevels buckets a value into one of eight block heights; index 0 is
// the shortest bar, len-1 the tallest.
var sparkLevels = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

func (m model) renderSparkline() string {
	width := m.width
	if width < 10 {
		width = 10
	}
	candles := lastN(m.candles.all(), width)
	if len(candles) == 0 {
		return dimStyle.Render("no candles yet")
	}

	lo, hi := candleRange(candles)
	if hi == lo {
		hi = lo + 1
	}
	maxVol := maxVolume(candles)

	var priceLine, volLine strings.Builder
	for _, c := range candles {
		style := bullStyle
		if closeFloat(c) < openFloat(c) {
			style = bearStyle
		}
		priceLine.WriteString(style.Render(string(sparkLevels[bucket(closeFloat(c), lo, hi, len(sparkLevels))])))
		volLine.WriteString(dimStyle.Render(string(sparkLevels[bucket(volumeFloat(c), 0, maxVol, len(sparkLevels))])))
	}

	legend := fmt.Sprintf("hi %9.2f   lo %9.2f", hi, lo)
	return lipgloss.JoinVertical(lipgloss.Left,
		dimStyle.Render("price  "+legend),
		priceLine.String(),
		dimStyle.Render("volume"),
		volLine.String(),
	)
}

func (m model) renderLedger() string {
	maxRows := m.height - 6
	if maxRows < 1 {
		maxRows = 1
	}
	candles := lastN(m.candles.all(), maxRows)

	rows := make([]string, 0, len(candles)+1)
	rows = append(rows, tableHeadStyle.Render(fmt.Sprintf(
		"%-8s %10s %10s %10s %10s %12s", "TIME", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME",
	)))
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		style := bullStyle
		if closeFloat(c) < openFloat(c) {
			style = bearStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf(
			"%-8s %10s %10s %10s %10s %12s",
			c.OpenTime.UTC().Format("15:04:05"),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String(),
		)))
	}
	return strings.Join(rows, "\n")
}

func lastN(candles []candle.Candle, n int) []candle.Candle {
	if len(candles) > n {
		return candles[len(candles)-n:]
	}
	return candles
}

func bucket(v, lo, hi float64, levels int) int {
	if hi <= lo {
		return 0
	}
	idx := int((v - lo) / (hi - lo) * float64(levels-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= levels {
		idx = levels - 1
	}
	return idx
}

func openFloat(c candle.Candle) float64 {
	v, _ := c.Open.Float64()
	return v
}

func closeFloat(c candle.Candle) float64 {
	v, _ := c.Close.Float64()
	return v
}

func volumeFloat(c candle.Candle) float64 {
	v, _ := c.Volume.Float64()
	return v
}

func candleRange(candles []candle.Candle) (lo, hi float64) {
	lo, hi = math.MaxFloat64, -math.MaxFloat64
	for _, c := range candles {
		if h, _ := c.High.Float64(); h > hi {
			hi = h
		}
		if l, _ := c.Low.Float64(); l < lo {
			lo = l
		}
	}
	if hi == -math.MaxFloat64 {
		hi = 0
	}
	if lo == math.MaxFloat64 {
		lo = 0
	}
	return
}

func maxVolume(candles []candle.Candle) float64 {
	var max float64
	for _, c := range candles {
		if v := volumeFloat(c); v > max {
			max = v
		}
	}
	return max
}
