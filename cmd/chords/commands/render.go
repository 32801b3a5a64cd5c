package commands

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/profiling"
)

var (
	majorColor = lipgloss.Color("#00ff9f")
	minorColor = lipgloss.Color("#58a6ff")
	dimColor   = lipgloss.Color("#6e7681")

	timeStyle = lipgloss.NewStyle().Foreground(dimColor)
)

func chordStyle(label chords.Label) lipgloss.Style {
	color := majorColor
	if label.Minor() {
		color = minorColor
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Foreground(color).
		Bold(true).
		Width(4).
		Align(lipgloss.Center)
}

// renderTimeline draws one box per window, perRow boxes to a line, with the
// window start time under each box. Carried labels are marked with '*'.
func renderTimeline(result *profiling.ProfileResult, perRow int) string {
	if perRow <= 0 {
		perRow = 8
	}
	var rows []string
	for start := 0; start < len(result.Windows); start += perRow {
		end := min(start+perRow, len(result.Windows))
		var cells []string
		for _, w := range result.Windows[start:end] {
			text := w.Label.String()
			if w.Silent {
				text += "*"
			}
			box := chordStyle(w.Label).Render(text)
			stamp := timeStyle.Width(lipgloss.Width(box)).Align(lipgloss.Center).
				Render(formatOffset(w.StartTime.Seconds()))
			cells = append(cells, lipgloss.JoinVertical(lipgloss.Center, box, stamp))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(rows, "\n")
}

func formatOffset(seconds float64) string {
	m := int(seconds) / 60
	return fmt.Sprintf("%d:%04.1f", m, seconds-float64(m*60))
}

// progressBar is a 0-100 bar with a changing step name.
type progressBar struct {
	p    *mpb.Progress
	bar  *mpb.Bar
	step atomic.Value
}

func newProgressBar(w io.Writer, step string) *progressBar {
	pb := &progressBar{p: mpb.New(mpb.WithWidth(48), mpb.WithOutput(w))}
	pb.step.Store(step)
	pb.bar = pb.p.AddBar(100,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return pb.step.Load().(string)
			}, decor.WC{W: 28, C: decor.DindentRight}),
			decor.Percentage(decor.WC{W: 5}),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return pb
}

// update moves the bar to percent and, when step is not empty, renames it.
func (pb *progressBar) update(percent int, step string) {
	if step != "" {
		pb.step.Store(step)
	}
	pb.bar.SetCurrent(int64(percent))
}

// done waits for the bar to finish drawing. A bar that did not reach 100
// is aborted first.
func (pb *progressBar) done() {
	if !pb.bar.Completed() {
		pb.bar.Abort(false)
	}
	pb.p.Wait()
}
