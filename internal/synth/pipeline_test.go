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
)

func longText(chars int) string {
	sentence := "This sentence pads the input with ordinary prose for synthesis. "
	var sb strings.Builder
	for sb.Len() < chars {
		sb.WriteString(sentence)
	}
	return sb.String()[:chars]
}

func TestPipelineEndToEnd(t *testing.T) {
	s := &scriptSynth{}
	m := &fakeMerger{}
	rec := &fakeRecorder{}
	obs := &recordObserver{}

	cfg := testConfig()
	cfg.ChunkSize = 4000
	p, _ := newTestPipeline(t, cfg, s, m, WithRecorder(rec), WithObserver(obs))

	out := filepath.Join(t.TempDir(), "speech.mp3")
	text := longText(9000)

	res, err := p.Run(context.Background(), text, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Chunks != 3 {
		t.Fatalf("chunks = %d, want 3", res.Chunks)
	}
	if obs.total != 3 {
		t.Errorf("observer saw %d chunks", obs.total)
	}

	merges := m.mergeCalls()
	if len(merges) != 1 {
		t.Fatalf("merge invoked %d times, want once", len(merges))
	}
	if len(merges[0]) != 3 {
		t.Fatalf("merge received %d files, want 3", len(merges[0]))
	}
	for i, in := range merges[0] {
		if want := fmt.Sprintf("_chunk_%d.mp3", i+1); !strings.HasSuffix(in, want) {
			t.Errorf("merge input %d = %q, want suffix %q", i, in, want)
		}
	}

	// The fake merger concatenates chunk payloads, and the fake
	// synthesizer echoes chunk text, so a correct pipeline reproduces
	// the input byte for byte.
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if string(b) != text {
		t.Error("merged output does not reproduce the input in chunk order")
	}

	if rec.recorded == nil {
		t.Fatal("sidecar was not recorded")
	}
	if len(rec.recorded.RequestIDs) != 3 {
		t.Errorf("sidecar has %d request ids, want 3", len(rec.recorded.RequestIDs))
	}
	for i, id := range rec.recorded.RequestIDs {
		if id == "" {
			t.Errorf("request id %d is empty", i)
		}
	}
	if res.BytesWritten != int64(len(text)) {
		t.Errorf("bytes written = %d, want %d", res.BytesWritten, len(text))
	}

	// Intermediate chunk files are removed when retention is off.
	for i := 1; i <= 3; i++ {
		leftover := filepath.Join(filepath.Dir(out), fmt.Sprintf("speech_chunk_%d.mp3", i))
		if _, err := os.Stat(leftover); !os.IsNotExist(err) {
			t.Errorf("chunk file %d was not cleaned up", i)
		}
	}
}

func TestPipelinePreflightFailureMakesNoAPICalls(t *testing.T) {
	s := &scriptSynth{}
	m := &fakeMerger{preflightErr: errors.New("ffmpeg not found in PATH")}
	p, _ := newTestPipeline(t, testConfig(), s, m)

	_, err := p.Run(context.Background(), longText(9000), filepath.Join(t.TempDir(), "out.mp3"))
	if err == nil {
		t.Fatal("expected preflight error")
	}
	if !strings.Contains(err.Error(), "ffmpeg") {
		t.Errorf("err = %v", err)
	}
	if s.callCount() != 0 {
		t.Errorf("adapter calls = %d, want 0 after failed preflight", s.callCount())
	}
	if len(m.mergeCalls()) != 0 {
		t.Error("merge must not run after failed preflight")
	}
}

func TestPipelineEmptyInputIsNoOp(t *testing.T) {
	s := &scriptSynth{}
	m := &fakeMerger{}
	p, _ := newTestPipeline(t, testConfig(), s, m)

	res, err := p.Run(context.Background(), "   \n\t  ", filepath.Join(t.TempDir(), "out.mp3"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Chunks != 0 {
		t.Errorf("chunks = %d, want 0", res.Chunks)
	}
	if s.callCount() != 0 {
		t.Error("no-op input must not reach the adapter")
	}
	if len(m.mergeCalls()) != 0 {
		t.Error("no-op input must not merge")
	}
}

func TestPipelineMergeFailureIsFatal(t *testing.T) {
	s := &scriptSynth{}
	m := &fakeMerger{mergeErr: errors.New("concat demuxer failed")}
	rec := &fakeRecorder{}
	cfg := testConfig()
	cfg.ChunkSize = 4000
	p, _ := newTestPipeline(t, cfg, s, m, WithRecorder(rec))

	out := filepath.Join(t.TempDir(), "out.mp3")
	_, err := p.Run(context.Background(), longText(9000), out)
	if err == nil {
		t.Fatal("expected merge error")
	}
	if len(m.mergeCalls()) != 1 {
		t.Errorf("merge tried %d times, want 1 with no retry", len(m.mergeCalls()))
	}
	if rec.recorded != nil {
		t.Error("sidecar must not be written after a failed merge")
	}
	if _, serr := os.Stat(out); !os.IsNotExist(serr) {
		t.Error("no output file may exist after a failed merge")
	}
}

func TestPipelineSidecarFailureIsDegradedSuccess(t *testing.T) {
	s := &scriptSynth{}
	m := &fakeMerger{}
	rec := &fakeRecorder{err: errors.New("disk full")}
	p, _ := newTestPipeline(t, testConfig(), s, m, WithRecorder(rec))

	out := filepath.Join(t.TempDir(), "out.mp3")
	res, err := p.Run(context.Background(), "A short line of text.", out)
	if err != nil {
		t.Fatalf("sidecar failure must not fail the run: %v", err)
	}
	if res.Warning == nil {
		t.Fatal("expected a degraded-success warning")
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("audio output missing: %v", err)
	}
}

func TestPipelineKeepChunksRetainsFiles(t *testing.T) {
	s := &scriptSynth{}
	m := &fakeMerger{}
	cfg := testConfig()
	cfg.ChunkSize = 4000
	cfg.KeepChunks = true
	p, _ := newTestPipeline(t, cfg, s, m)

	dir := t.TempDir()
	out := filepath.Join(dir, "speech.mp3")
	if _, err := p.Run(context.Background(), longText(9000), out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("speech_chunk_%d.mp3", i))); err != nil {
			t.Errorf("retained chunk %d missing: %v", i, err)
		}
	}
}

func TestPipelineKeepChunksOnFailure(t *testing.T) {
	// The second chunk fails terminally; completed chunk files stay on
	// disk for manual inspection when retention is on.
	cfg := testConfig()
	cfg.ChunkSize = 4000
	cfg.KeepChunks = true
	cfg.Concurrency = 1

	var served int
	s := &scriptSynth{fn: func(n int, text string) (string, RequestInfo, error) {
		served++
		if served == 2 {
			return "", RequestInfo{}, &APIError{Class: Terminal, StatusCode: 400, Err: errors.New("rejected")}
		}
		return text, RequestInfo{}, nil
	}}
	m := &fakeMerger{}
	p, _ := newTestPipeline(t, cfg, s, m)

	dir := t.TempDir()
	out := filepath.Join(dir, "speech.mp3")
	_, err := p.Run(context.Background(), longText(9000), out)
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(m.mergeCalls()) != 0 {
		t.Error("merge must not run after a failed chunk")
	}
	if _, serr := os.Stat(filepath.Join(dir, "speech_chunk_1.mp3")); serr != nil {
		t.Errorf("completed chunk should remain with retention on: %v", serr)
	}
}

func TestPipelineCacheHitSkipsAdapter(t *testing.T) {
	s := &scriptSynth{}
	m := &fakeMerger{}
	cache := newMapCache()
	p, _ := newTestPipeline(t, testConfig(), s, m, WithCache(cache))

	dir := t.TempDir()
	text := "Cached once, reused after."

	if _, err := p.Run(context.Background(), text, filepath.Join(dir, "a.mp3")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if s.callCount() != 1 {
		t.Fatalf("first run adapter calls = %d, want 1", s.callCount())
	}

	if _, err := p.Run(context.Background(), text, filepath.Join(dir, "b.mp3")); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if s.callCount() != 1 {
		t.Errorf("second run hit the adapter despite a cache entry")
	}
	b, err := os.ReadFile(filepath.Join(dir, "b.mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != text {
		t.Errorf("cached output = %q", b)
	}
}

// mapCache is an in-memory ChunkCache for pipeline tests.
type mapCache struct {
	entries map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string][]byte)} }

func (c *mapCache) Get(key string, dst io.Writer) (bool, error) {
	b, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	_, err := dst.Write(b)
	return true, err
}

func (c *mapCache) Put(key string, src io.Reader) error {
	b, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	c.entries[key] = b
	return nil
}
