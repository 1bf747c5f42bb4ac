package ui

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/dgnsrekt/orate/internal/synth"
)

// IsInteractive reports whether the progress TUI can run: stdout must
// be a terminal that termenv recognizes as more than dumb.
func IsInteractive() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.NewOutput(os.Stdout).Profile != termenv.Ascii
}

// NewProgram wraps the progress model in a bubbletea program.
func NewProgram(outPath string, cancel func()) *tea.Program {
	return tea.NewProgram(NewModel(outPath, cancel))
}

// TeaObserver forwards pipeline events into a running bubbletea
// program. Safe for concurrent use; tea.Program.Send is.
type TeaObserver struct {
	program *tea.Program
}

// NewTeaObserver builds an observer feeding p.
func NewTeaObserver(p *tea.Program) *TeaObserver {
	return &TeaObserver{program: p}
}

// JobStarted implements synth.Observer.
func (o *TeaObserver) JobStarted(chunks int) {
	o.program.Send(jobStartedMsg{chunks: chunks})
}

// ChunkTransition implements synth.Observer.
func (o *TeaObserver) ChunkTransition(e synth.Event) {
	o.program.Send(chunkEventMsg(e))
}

// Done reports the pipeline outcome to the program.
func (o *TeaObserver) Done(res *synth.Result, err error) {
	o.program.Send(jobDoneMsg{res: res, err: err})
}

// LogObserver reports progress through the structured log for
// non-interactive runs (pipes, CI, --quiet).
type LogObserver struct {
	log   *log.Logger
	total int
}

// NewLogObserver builds an observer writing to logger.
func NewLogObserver(logger *log.Logger) *LogObserver {
	return &LogObserver{log: logger}
}

// JobStarted implements synth.Observer.
func (o *LogObserver) JobStarted(chunks int) {
	o.total = chunks
}

// ChunkTransition implements synth.Observer. Only settled states are
// worth a log line; in-flight flips would flood the output.
func (o *LogObserver) ChunkTransition(e synth.Event) {
	switch e.To {
	case synth.StatusDone:
		o.log.Info("chunk done", "chunk", e.ChunkIndex+1, "of", o.total)
	case synth.StatusFailed:
		o.log.Error("chunk failed", "chunk", e.ChunkIndex+1, "of", o.total, "err", e.Err)
	}
}
