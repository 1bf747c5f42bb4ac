package synth

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptSynth plays back scripted outcomes per call. The zero value
// echoes the chunk text as its audio payload.
type scriptSynth struct {
	mu    sync.Mutex
	calls []string
	// fn decides the outcome of call n (0-based). Nil means success
	// with the text itself as payload.
	fn func(n int, text string) (payload string, info RequestInfo, err error)
}

func (s *scriptSynth) Synthesize(ctx context.Context, text string, _ Params) (io.ReadCloser, RequestInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, RequestInfo{}, err
	}
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, text)
	s.mu.Unlock()

	if s.fn == nil {
		return io.NopCloser(strings.NewReader(text)), RequestInfo{ID: fmt.Sprintf("req-%d", n)}, nil
	}
	payload, info, err := s.fn(n, text)
	if err != nil {
		return nil, info, err
	}
	return io.NopCloser(strings.NewReader(payload)), info, nil
}

func (s *scriptSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeMerger records merge invocations and concatenates the input
// files' bytes into the output so content ordering is observable.
type fakeMerger struct {
	mu           sync.Mutex
	version      string
	preflightErr error
	mergeErr     error
	merges       [][]string
}

func (m *fakeMerger) Preflight(context.Context) (string, error) {
	if m.preflightErr != nil {
		return "", m.preflightErr
	}
	if m.version == "" {
		return "7.1", nil
	}
	return m.version, nil
}

func (m *fakeMerger) Merge(_ context.Context, inputs []string, out string) error {
	m.mu.Lock()
	m.merges = append(m.merges, append([]string(nil), inputs...))
	m.mu.Unlock()
	if m.mergeErr != nil {
		return m.mergeErr
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, in := range inputs {
		b, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		if _, err := f.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (m *fakeMerger) mergeCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.merges
}

// fakeRecorder captures the recorded result or fails on demand.
type fakeRecorder struct {
	mu       sync.Mutex
	err      error
	recorded *Result
}

func (r *fakeRecorder) Record(res *Result, _ Params, _ Config) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.recorded = res
	r.mu.Unlock()
	return nil
}

// recordObserver collects every event, safe for concurrent emitters.
type recordObserver struct {
	mu     sync.Mutex
	total  int
	events []Event
}

func (o *recordObserver) JobStarted(chunks int) {
	o.mu.Lock()
	o.total = chunks
	o.mu.Unlock()
}

func (o *recordObserver) ChunkTransition(e Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *recordObserver) eventsFor(idx int) []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Event
	for _, e := range o.events {
		if e.ChunkIndex == idx {
			out = append(out, e)
		}
	}
	return out
}

// newTestPipeline wires a pipeline with fast fakes and a recorded
// sleep so retry tests never block.
func newTestPipeline(t *testing.T, cfg Config, s Synthesizer, m Merger, opts ...Option) (*Pipeline, *[]time.Duration) {
	t.Helper()
	p, err := New(cfg, Params{Model: "tts-1", Voice: "alloy", Format: "mp3", Speed: 1.0}, s, m, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var slept []time.Duration
	var mu sync.Mutex
	p.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	return p, &slept
}
