package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/orate/internal/chunker"
)

func chunkFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "out_chunk_1.mp3")
}

func TestRunChunkSuccessFirstAttempt(t *testing.T) {
	s := &scriptSynth{}
	p, _ := newTestPipeline(t, testConfig(), s, &fakeMerger{})
	path := chunkFile(t)

	info, attempts, err := p.runChunk(context.Background(), chunker.Chunk{Index: 0, Text: "hello"}, path)
	if err != nil {
		t.Fatalf("runChunk: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if info.ID != "req-0" {
		t.Errorf("request id = %q", info.ID)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("chunk file: %v", err)
	}
	if string(b) != "hello" {
		t.Errorf("chunk content = %q", b)
	}
	if _, err := os.Stat(path + partSuffix); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestRunChunkRetriesThenSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 3
	s := &scriptSynth{fn: func(n int, text string) (string, RequestInfo, error) {
		if n < 2 {
			return "", RequestInfo{}, &APIError{Class: Retryable, StatusCode: 503, Err: errors.New("overloaded")}
		}
		return text, RequestInfo{ID: "req-final"}, nil
	}}
	obs := &recordObserver{}
	p, slept := newTestPipeline(t, cfg, s, &fakeMerger{}, WithObserver(obs))
	path := chunkFile(t)

	info, attempts, err := p.runChunk(context.Background(), chunker.Chunk{Index: 0, Text: "persist"}, path)
	if err != nil {
		t.Fatalf("runChunk: %v", err)
	}
	if attempts != cfg.MaxAttempts {
		t.Errorf("attempts = %d, want %d", attempts, cfg.MaxAttempts)
	}
	if info.ID != "req-final" {
		t.Errorf("request id = %q", info.ID)
	}
	if len(*slept) != 2 {
		t.Errorf("slept %d times, want 2", len(*slept))
	}

	events := obs.eventsFor(0)
	last := events[len(events)-1]
	if last.To != StatusDone {
		t.Errorf("final state = %v, want done", last.To)
	}
	var retries int
	for _, e := range events {
		if e.To == StatusRetrying {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("retrying transitions = %d, want 2", retries)
	}
}

func TestRunChunkTerminalFailsImmediately(t *testing.T) {
	s := &scriptSynth{fn: func(int, string) (string, RequestInfo, error) {
		return "", RequestInfo{}, &APIError{Class: Terminal, StatusCode: 400, Err: errors.New("bad voice")}
	}}
	obs := &recordObserver{}
	p, slept := newTestPipeline(t, testConfig(), s, &fakeMerger{}, WithObserver(obs))

	_, attempts, err := p.runChunk(context.Background(), chunker.Chunk{Index: 2, Text: "x"}, chunkFile(t))
	if err == nil {
		t.Fatal("expected error")
	}
	var cerr *ChunkError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type %T", err)
	}
	if cerr.Index != 2 || cerr.Attempts != 1 {
		t.Errorf("ChunkError = %+v", cerr)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if len(*slept) != 0 {
		t.Error("terminal failure must not back off")
	}
	events := obs.eventsFor(2)
	if events[len(events)-1].To != StatusFailed {
		t.Error("chunk should end failed")
	}
}

func TestRunChunkExhaustsAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	s := &scriptSynth{fn: func(int, string) (string, RequestInfo, error) {
		return "", RequestInfo{}, &APIError{Class: Retryable, StatusCode: 500, Err: errors.New("boom")}
	}}
	p, slept := newTestPipeline(t, cfg, s, &fakeMerger{})

	_, attempts, err := p.runChunk(context.Background(), chunker.Chunk{Index: 0, Text: "x"}, chunkFile(t))
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("err = %v, want ErrAttemptsExhausted", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(*slept) != 1 {
		t.Errorf("slept %d times, want 1", len(*slept))
	}
}

func TestRunChunkHonorsRetryAfterHint(t *testing.T) {
	hint := 2 * time.Second
	s := &scriptSynth{fn: func(n int, text string) (string, RequestInfo, error) {
		if n == 0 {
			return "", RequestInfo{}, &APIError{Class: RateLimited, StatusCode: 429, RetryAfter: hint, Err: errors.New("rate limited")}
		}
		return text, RequestInfo{}, nil
	}}
	p, slept := newTestPipeline(t, testConfig(), s, &fakeMerger{})

	if _, _, err := p.runChunk(context.Background(), chunker.Chunk{Index: 1, Text: "x"}, chunkFile(t)); err != nil {
		t.Fatalf("runChunk: %v", err)
	}
	if len(*slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(*slept))
	}
	if (*slept)[0] < hint {
		t.Errorf("waited %v, want at least the %v server hint", (*slept)[0], hint)
	}
}

func TestRunChunkRemovesStalePartial(t *testing.T) {
	s := &scriptSynth{}
	p, _ := newTestPipeline(t, testConfig(), s, &fakeMerger{})
	path := chunkFile(t)

	// Leave an orphaned partial from a pretend earlier crash.
	if err := os.WriteFile(path+partSuffix, []byte("stale garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := p.runChunk(context.Background(), chunker.Chunk{Index: 0, Text: "fresh"}, path); err != nil {
		t.Fatalf("runChunk: %v", err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "fresh" {
		t.Errorf("chunk content = %q, stale partial was reused", b)
	}
}

func TestRunChunkStreamInterruptionIsRetryable(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	calls := 0
	s := &brokenStreamSynth{failFirst: true, onCall: func() { calls++ }}
	p, slept := newTestPipeline(t, cfg, s, &fakeMerger{})
	path := chunkFile(t)

	if _, _, err := p.runChunk(context.Background(), chunker.Chunk{Index: 0, Text: "abc"}, path); err != nil {
		t.Fatalf("runChunk: %v", err)
	}
	if calls != 2 {
		t.Errorf("adapter calls = %d, want 2", calls)
	}
	if len(*slept) != 1 {
		t.Errorf("slept %d times, want 1", len(*slept))
	}
	b, _ := os.ReadFile(path)
	if string(b) != "abc" {
		t.Errorf("chunk content = %q", b)
	}
}

func TestRunChunkEmptyStreamIsRetryable(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	s := &scriptSynth{fn: func(n int, text string) (string, RequestInfo, error) {
		if n == 0 {
			return "", RequestInfo{}, nil
		}
		return text, RequestInfo{}, nil
	}}
	p, _ := newTestPipeline(t, cfg, s, &fakeMerger{})

	if _, attempts, err := p.runChunk(context.Background(), chunker.Chunk{Index: 0, Text: "x"}, chunkFile(t)); err != nil {
		t.Fatalf("runChunk: %v", err)
	} else if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRunChunkCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &scriptSynth{fn: func(int, string) (string, RequestInfo, error) {
		return "", RequestInfo{}, &APIError{Class: Retryable, StatusCode: 500, Err: errors.New("boom")}
	}}
	p, _ := newTestPipeline(t, testConfig(), s, &fakeMerger{})
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, _, err := p.runChunk(ctx, chunker.Chunk{Index: 0, Text: "x"}, chunkFile(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// brokenStreamSynth returns a stream that dies partway through on the
// first call and behaves on later calls.
type brokenStreamSynth struct {
	failFirst bool
	onCall    func()
}

func (b *brokenStreamSynth) Synthesize(_ context.Context, text string, _ Params) (io.ReadCloser, RequestInfo, error) {
	if b.onCall != nil {
		b.onCall()
	}
	if b.failFirst {
		b.failFirst = false
		return io.NopCloser(io.MultiReader(
			strings.NewReader(text[:1]),
			&failingReader{err: fmt.Errorf("connection reset")},
		)), RequestInfo{}, nil
	}
	return io.NopCloser(strings.NewReader(text)), RequestInfo{}, nil
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }
