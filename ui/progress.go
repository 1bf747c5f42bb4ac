// Package ui renders synthesis progress. On a TTY it runs a bubbletea
// program; otherwise progress goes through the structured log.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/orate/internal/synth"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"})
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"})
	retryStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D9A400", Dark: "#F2C94C"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D84A4A", Dark: "#FF6B6B"})
	summaryStyle = lipgloss.NewStyle().MarginTop(1)
)

// Messages delivered into the model. The observer sends the first
// two; the caller sends jobDoneMsg when the pipeline returns.
type (
	jobStartedMsg struct{ chunks int }
	chunkEventMsg synth.Event
	jobDoneMsg    struct {
		res *synth.Result
		err error
	}
	copiedMsg struct{ err error }
)

// Model is the synthesis progress TUI.
type Model struct {
	outPath string
	cancel  func()

	total    int
	states   []synth.Status
	attempts []int

	bar   progress.Model
	spin  spinner.Model
	width int

	started time.Time
	res     *synth.Result
	err     error
	done    bool
	copied  bool
}

// NewModel builds the progress model for a job writing to outPath.
// cancel is invoked when the user quits mid-run.
func NewModel(outPath string, cancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	return Model{
		outPath: outPath,
		cancel:  cancel,
		bar:     progress.New(progress.WithDefaultGradient()),
		spin:    sp,
		width:   80,
		started: time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(msg.Width-4, 60)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
				return m, nil
			}
			return m, tea.Quit
		case "c":
			if m.done && m.err == nil {
				path := m.outPath
				return m, func() tea.Msg {
					return copiedMsg{err: clipboard.WriteAll(path)}
				}
			}
		}
		return m, nil

	case jobStartedMsg:
		m.total = msg.chunks
		m.states = make([]synth.Status, msg.chunks)
		m.attempts = make([]int, msg.chunks)
		return m, nil

	case chunkEventMsg:
		if msg.ChunkIndex >= 0 && msg.ChunkIndex < len(m.states) {
			m.states[msg.ChunkIndex] = msg.To
			if msg.Attempt > m.attempts[msg.ChunkIndex] {
				m.attempts[msg.ChunkIndex] = msg.Attempt
			}
		}
		return m, nil

	case jobDoneMsg:
		m.done = true
		m.res = msg.res
		m.err = msg.err
		if m.err != nil {
			return m, tea.Quit
		}
		return m, nil

	case copiedMsg:
		m.copied = msg.err == nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	if m.done {
		b.WriteString(m.summary())
		return b.String()
	}

	b.WriteString(titleStyle.Render("Synthesizing"))
	b.WriteString(subtleStyle.Render(" → " + m.outPath))
	b.WriteString("\n\n")

	if m.total == 0 {
		b.WriteString(m.spin.View() + " preparing...\n")
		return b.String()
	}

	doneCount := m.count(synth.StatusDone)
	b.WriteString(m.bar.ViewAs(float64(doneCount) / float64(m.total)))
	b.WriteString(fmt.Sprintf("  %d/%d chunks\n", doneCount, m.total))
	b.WriteString(m.chunkLine())
	b.WriteString("\n\n")
	b.WriteString(subtleStyle.Render("press q to cancel"))
	b.WriteString("\n")
	return b.String()
}

// chunkLine renders one status glyph per chunk, truncated to the
// terminal width.
func (m Model) chunkLine() string {
	var b strings.Builder
	for _, st := range m.states {
		switch st {
		case synth.StatusDone:
			b.WriteString(doneStyle.Render("●"))
		case synth.StatusInFlight:
			b.WriteString(m.spin.View())
		case synth.StatusRetrying:
			b.WriteString(retryStyle.Render("↻"))
		case synth.StatusFailed:
			b.WriteString(errorStyle.Render("✗"))
		default:
			b.WriteString(subtleStyle.Render("·"))
		}
	}
	return truncate.StringWithTail(b.String(), uint(max(m.width-2, 10)), "…")
}

// summary renders the final success or failure report.
func (m Model) summary() string {
	if m.err != nil {
		return errorStyle.Render("✗ synthesis failed: ") + m.err.Error() + "\n"
	}

	var b strings.Builder
	b.WriteString(doneStyle.Render("✓ wrote ") + titleStyle.Render(m.outPath))
	if m.res != nil {
		b.WriteString(subtleStyle.Render(fmt.Sprintf(
			" (%s, %d chunks, %d attempts, %s)",
			humanize.Bytes(uint64(m.res.BytesWritten)),
			m.res.Chunks,
			m.res.Attempts,
			m.res.Duration.Round(time.Second/10),
		)))
		if m.res.Warning != nil {
			b.WriteString("\n" + retryStyle.Render("! "+m.res.Warning.Error()))
		}
	}
	b.WriteString("\n")
	if m.copied {
		b.WriteString(subtleStyle.Render("output path copied") + "\n")
	} else {
		b.WriteString(subtleStyle.Render("c to copy path • q to quit") + "\n")
	}
	return summaryStyle.Render(b.String())
}

// count tallies chunks currently in st.
func (m Model) count(st synth.Status) int {
	n := 0
	for _, s := range m.states {
		if s == st {
			n++
		}
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
