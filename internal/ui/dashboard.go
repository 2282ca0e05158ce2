// Package ui is a bubbletea ops dashboard for cmd/station: it polls the
// distribution ring (C7) and each active Forwarder's (C4) queue depths and
// drop counters, listens on the task bus for a Timer's (C9) rolling
// processing-time average, and
// renders them with the same progress-bar/sparkline idiom as the teacher
// CLI's visualiser progress screen (internal/ui/progress.go).
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kholors/station/internal/forwarder"
	"github.com/kholors/station/internal/ring"
	"github.com/kholors/station/internal/taskbus"
)

var (
	primaryColor = lipgloss.Color("#3E8EDE")
	accentColor  = lipgloss.Color("#FFA500")
	mutedColor   = lipgloss.Color("#888888")
	warnColor    = lipgloss.Color("#DC143C")
	textColor    = lipgloss.Color("#FFFFFF")
)

const sparklineHistory = 40

// pollInterval is how often the dashboard resamples the ring and every
// registered forwarder.
const pollInterval = 500 * time.Millisecond

// ForwarderStats is a point-in-time snapshot of one track's forwarder
// pipeline, for display only.
type ForwarderStats struct {
	TrackName     string
	CoalesceDepth int
	SendDepth     int
	Dropped       uint64
}

// Snapshot is everything the dashboard renders in one tick.
type Snapshot struct {
	Ring       ring.Stats
	Forwarders []ForwarderStats
}

// Sampler produces a fresh Snapshot when polled.
type Sampler interface {
	Sample() Snapshot
}

// RingAndForwarders is the Sampler cmd/station actually uses: a ring plus
// whichever forwarders are currently attached to tracks. The slice is
// read fresh on every Sample call so tracks can come and go between
// polls.
type RingAndForwarders struct {
	Ring       *ring.Ring
	Forwarders func() []*forwarder.Forwarder
}

// Sample implements Sampler.
func (s RingAndForwarders) Sample() Snapshot {
	snap := Snapshot{}
	if s.Ring != nil {
		snap.Ring = s.Ring.Stats()
	}
	if s.Forwarders == nil {
		return snap
	}
	for _, f := range s.Forwarders() {
		if f == nil {
			continue
		}
		snap.Forwarders = append(snap.Forwarders, ForwarderStats{
			TrackName:     f.Identity().Name,
			CoalesceDepth: f.CoalesceQueueDepth(),
			SendDepth:     f.SendQueueDepth(),
			Dropped:       f.DroppedBlocks(),
		})
	}
	return snap
}

type tickMsg time.Time

type processingUpdateMsg float64

// Model is the bubbletea model driving the dashboard.
type Model struct {
	sampler Sampler
	bus     *taskbus.Bus
	updates chan float64
	listener int64

	snapshot    Snapshot
	avgMs       float64
	avgHistory  []float64
	width       int
	quitting    bool
	progressBar progress.Model
}

// NewModel builds a dashboard model that polls sampler on a timer and
// subscribes to bus for KindProcessingTimeUpdate tasks.
func NewModel(sampler Sampler, bus *taskbus.Bus) *Model {
	m := &Model{
		sampler: sampler,
		bus:     bus,
		updates: make(chan float64, 8),
		progressBar: progress.New(
			progress.WithGradient(string(primaryColor), string(accentColor)),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
	}
	if bus != nil {
		m.listener = bus.Register(func(t *taskbus.Task) bool {
			if t.Kind != taskbus.Kind("timing.processing_time_update") {
				return false
			}
			if ms, ok := t.Payload.(float64); ok {
				select {
				case m.updates <- ms:
				default:
				}
			}
			return false
		})
	}
	return m
}

// Close unregisters the model's task bus listener.
func (m *Model) Close() {
	if m.bus != nil {
		m.bus.Unregister(m.listener)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.listenCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) listenCmd() tea.Cmd {
	return func() tea.Msg {
		ms := <-m.updates
		return processingUpdateMsg(ms)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = min(msg.Width-30, 50)
		return m, nil

	case tickMsg:
		m.snapshot = m.sampler.Sample()
		return m, tickCmd()

	case processingUpdateMsg:
		m.avgMs = float64(msg)
		m.avgHistory = append(m.avgHistory, m.avgMs)
		if len(m.avgHistory) > sparklineHistory {
			m.avgHistory = m.avgHistory[len(m.avgHistory)-sparklineHistory:]
		}
		return m, m.listenCmd()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render("Kholors Station — live")
	s.WriteString(title)
	s.WriteString("\n\n")

	m.renderRing(&s)
	s.WriteString("\n")
	m.renderProcessingTime(&s)
	s.WriteString("\n")
	m.renderForwarders(&s)

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Render(s.String())
}

func (m *Model) renderRing(s *strings.Builder) {
	header := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	label := lipgloss.NewStyle().Foreground(mutedColor)
	value := lipgloss.NewStyle().Foreground(textColor)

	s.WriteString(header.Render("Distribution ring"))
	s.WriteString("\n")

	r := m.snapshot.Ring
	var fill float64
	if r.Capacity > 0 {
		fill = float64(r.UsedSize) / float64(r.Capacity)
	}
	bar := m.progressBar.ViewAs(fill)
	s.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s\n",
		label.Render("generation:"), value.Render(fmt.Sprintf("%d", r.Generation)),
		label.Render("offset:"), value.Render(fmt.Sprintf("%d", r.LastOffset)),
		label.Render("fill:"), bar))
}

func (m *Model) renderProcessingTime(s *strings.Builder) {
	header := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	value := lipgloss.NewStyle().Foreground(textColor)

	s.WriteString(header.Render("Processing time (C6, rolling average)"))
	s.WriteString("\n")
	s.WriteString(value.Render(fmt.Sprintf("%.2f ms", m.avgMs)))
	s.WriteString("  ")
	s.WriteString(sparkline(m.avgHistory, sparklineHistory))
	s.WriteString("\n")
}

func (m *Model) renderForwarders(s *strings.Builder) {
	header := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	label := lipgloss.NewStyle().Foreground(mutedColor)
	value := lipgloss.NewStyle().Foreground(textColor)
	warn := lipgloss.NewStyle().Foreground(warnColor).Bold(true)

	s.WriteString(header.Render("Forwarders"))
	s.WriteString("\n")

	if len(m.snapshot.Forwarders) == 0 {
		s.WriteString(label.Render("  (none attached)\n"))
		return
	}

	for _, f := range m.snapshot.Forwarders {
		name := f.TrackName
		if name == "" {
			name = "(unnamed)"
		}
		droppedStr := fmt.Sprintf("%d", f.Dropped)
		droppedRendered := value.Render(droppedStr)
		if f.Dropped > 0 {
			droppedRendered = warn.Render(droppedStr)
		}
		s.WriteString(fmt.Sprintf("  %s  %s %s  %s %s  %s %s\n",
			value.Render(name),
			label.Render("coalesce:"), value.Render(fmt.Sprintf("%d", f.CoalesceDepth)),
			label.Render("send:"), value.Render(fmt.Sprintf("%d", f.SendDepth)),
			label.Render("dropped:"), droppedRendered))
	}
}

// sparkline renders a normalised bar-height history as a single row of
// block glyphs, the same idiom as the teacher CLI's spectrum visualiser
// but collapsed to one row since there is only one series to show.
func sparkline(history []float64, width int) string {
	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	if len(history) == 0 {
		return lipgloss.NewStyle().Foreground(mutedColor).Render(strings.Repeat("▁", width))
	}

	maxV := history[0]
	for _, v := range history {
		if v > maxV {
			maxV = v
		}
	}
	if maxV == 0 {
		maxV = 1
	}

	var out strings.Builder
	start := 0
	if len(history) > width {
		start = len(history) - width
	}
	for _, v := range history[start:] {
		idx := int((v / maxV) * float64(len(blocks)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		out.WriteRune(blocks[idx])
	}
	for out.Len() < width {
		out.WriteRune('▁')
	}
	return lipgloss.NewStyle().Foreground(accentColor).Render(out.String())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
