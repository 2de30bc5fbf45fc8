// Package console renders published snapshots to a terminal. It only reads
// snapshots; it never touches the engine's working state.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Guliveer/spectrometer/internal/engine"
	"github.com/Guliveer/spectrometer/internal/format"
	"github.com/Guliveer/spectrometer/internal/history"
	"github.com/Guliveer/spectrometer/internal/models"
	"github.com/Guliveer/spectrometer/internal/store"
)

const (
	clearScreen    = "\x1b[H\x1b[2J"
	sparklineWidth = 20
)

var (
	colorTitleFg  = lipgloss.Color("51")
	colorTitleBg  = lipgloss.Color("17")
	colorBorder   = lipgloss.Color("62")
	colorHardware = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorValue    = lipgloss.Color("250")
	colorWarn     = lipgloss.Color("220")
	colorSpark    = lipgloss.Color("78")
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// HistorySource returns the graph history of a sensor, or nil.
type HistorySource func(identifier string) *history.Buffer

// Options controls what the presenter shows.
type Options struct {
	// All renders every sensor instead of the pinned ones.
	All bool
	// Clear redraws in place instead of appending.
	Clear bool
	// History feeds sparklines for graph-enabled sensors. May be nil.
	History HistorySource
}

// Presenter writes one frame per snapshot.
type Presenter struct {
	w    io.Writer
	opts Options
}

// New creates a presenter writing to w.
func New(w io.Writer, opts Options) *Presenter {
	return &Presenter{w: w, opts: opts}
}

// Show writes the frame for s.
func (p *Presenter) Show(s *engine.Snapshot) error {
	frame := p.Render(s)
	if p.opts.Clear {
		frame = clearScreen + frame
	}
	_, err := io.WriteString(p.w, frame+"\n")
	return err
}

// Render builds the frame for s.
func (p *Presenter) Render(s *engine.Snapshot) string {
	sections := []string{p.renderTitle(s), p.renderSummary(s)}

	records := s.PinnedSensors
	if p.opts.All {
		records = s.AllSensors
	}
	if len(records) == 0 {
		hint := "No pinned sensors. Run with --all to list every sensor."
		if p.opts.All {
			hint = "No sensors reported."
		}
		sections = append(sections, lipgloss.NewStyle().Foreground(colorDim).Italic(true).Render(hint))
	} else {
		sections = append(sections, p.renderPanels(records)...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (p *Presenter) renderTitle(s *engine.Snapshot) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Background(colorTitleBg).
		Padding(0, 1).
		Render("spectrometer")
	meta := lipgloss.NewStyle().Foreground(colorDim).
		Render(fmt.Sprintf(" #%d  %s", s.Seq, s.Time.Format("15:04:05")))
	if s.Degraded {
		meta += lipgloss.NewStyle().Foreground(colorWarn).Bold(true).Render("  no hardware access")
	}
	return title + meta
}

func (p *Presenter) renderSummary(s *engine.Snapshot) string {
	sum := s.Summary
	dim := lipgloss.NewStyle().Foreground(colorDim)
	val := lipgloss.NewStyle().Foreground(colorValue)

	line := func(label string, parts ...string) string {
		return dim.Render(fmt.Sprintf("%-8s", label)) + val.Render(strings.Join(parts, "  "))
	}
	gpuMemory := format.Missing
	if sum.GPU.MemoryUsed != nil && sum.GPU.MemoryTotal != nil {
		gpuMemory = fmt.Sprintf("%.0f / %.0f MB", *sum.GPU.MemoryUsed, *sum.GPU.MemoryTotal)
	}
	rows := []string{
		line("CPU", sum.CPU.Name,
			format.Value(models.KindTemperature, sum.CPU.Temperature),
			format.Value(models.KindLoad, sum.CPU.Load),
			format.Value(models.KindClock, sum.CPU.HighestClock),
			format.Value(models.KindPower, sum.CPU.Power)),
		line("GPU", sum.GPU.Name,
			format.Value(models.KindTemperature, sum.GPU.Temperature),
			format.Value(models.KindLoad, sum.GPU.Load),
			gpuMemory,
			format.Value(models.KindPower, sum.GPU.Power)),
		line("Memory",
			format.Value(models.KindLoad, sum.Memory.Load),
			format.Value(models.KindData, sum.Memory.UsedGB)),
		line("Storage",
			fmt.Sprintf("%d devices", sum.Storage.Devices),
			"R "+format.Value(models.KindThroughput, sum.Storage.ReadRate),
			"W "+format.Value(models.KindThroughput, sum.Storage.WriteRate)),
	}
	if sum.Network.Interface != "" {
		rows = append(rows, line("Network", sum.Network.Interface,
			"↓ "+format.Value(models.KindThroughput, sum.Network.Download),
			"↑ "+format.Value(models.KindThroughput, sum.Network.Upload)))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderPanels draws one bordered panel per piece of hardware, in the order
// the hardware first appears.
func (p *Presenter) renderPanels(records models.Collection) []string {
	var order []string
	groups := make(map[string]models.Collection)
	for _, r := range records {
		key := r.GroupKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	nameWidth := 0
	for _, r := range records {
		if w := lipgloss.Width(r.Name); w > nameWidth {
			nameWidth = w
		}
	}

	labelS := lipgloss.NewStyle().Foreground(colorLabel).Width(nameWidth + 2)
	valueS := lipgloss.NewStyle().Foreground(colorValue).Width(12).Align(lipgloss.Right)
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	panels := make([]string, 0, len(order))
	for _, key := range order {
		group := groups[key]
		header := lipgloss.NewStyle().Bold(true).Foreground(colorHardware).Render(hardwareName(group[0])) +
			dimS.Render("  "+key)

		rows := []string{header}
		for _, r := range group {
			row := labelS.Render(r.Name) + valueS.Render(format.Record(r)) +
				dimS.Render(fmt.Sprintf("  %s … %s",
					format.Value(r.Kind, r.Min), format.Value(r.Kind, r.Max)))
			if r.IsGraphEnabled && p.opts.History != nil {
				if h := p.opts.History(r.Identifier); h != nil {
					row += "  " + Sparkline(h.LastN(sparklineWidth), sparklineWidth)
				}
			}
			rows = append(rows, row)
		}
		panels = append(panels, lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	}
	return panels
}

func hardwareName(r models.SensorRecord) string {
	if r.Hardware == "" {
		return r.Category.String()
	}
	return r.Hardware
}

// Sparkline renders values scaled to their own range, left-padded to width.
func Sparkline(values []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", width-len(values)))
	for _, v := range values {
		idx := int((v - lo) / span * float64(len(sparkBlocks)-1))
		sb.WriteRune(sparkBlocks[idx])
	}
	return lipgloss.NewStyle().Foreground(colorSpark).Render(sb.String())
}

// WriteJSON writes s as indented JSON.
func WriteJSON(w io.Writer, s *engine.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// WriteSamples writes recorded samples as indented JSON. An empty result is
// written as an empty array.
func WriteSamples(w io.Writer, samples []store.Sample) error {
	if samples == nil {
		samples = []store.Sample{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(samples); err != nil {
		return fmt.Errorf("encoding samples: %w", err)
	}
	return nil
}
