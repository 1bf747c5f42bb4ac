package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/orate/internal/chunker"
)

// Recorder persists the reproducibility record after a successful
// merge. A Recorder failure degrades the run instead of failing it.
type Recorder interface {
	Record(res *Result, p Params, cfg Config) error
}

// Result summarizes a finished run.
type Result struct {
	JobID        string
	OutputPath   string
	Chunks       int
	Attempts     int
	BytesWritten int64
	Duration     time.Duration
	// RequestIDs holds one provider request identifier per chunk, in
	// chunk order; cache hits leave an empty slot.
	RequestIDs  []string
	ToolVersion string
	// Warning is set on degraded success, currently only a sidecar
	// write failure. The audio output is still valid.
	Warning error
}

// Pipeline runs one synthesis job end to end. Construct with New;
// a Pipeline is safe to reuse for sequential jobs but not for
// concurrent ones.
type Pipeline struct {
	cfg    Config
	params Params
	synth  Synthesizer
	merger Merger
	cache  ChunkCache
	rec    Recorder
	obs    Observer
	log    *log.Logger
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithCache attaches a chunk audio cache.
func WithCache(c ChunkCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithRecorder attaches the sidecar metadata recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.rec = r }
}

// WithObserver attaches a progress observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.obs = o }
}

// WithLogger routes pipeline logging through l.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New builds a Pipeline from its two required collaborators and the
// job configuration.
func New(cfg Config, params Params, s Synthesizer, m Merger, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	if s == nil || m == nil {
		return nil, fmt.Errorf("pipeline needs a synthesizer and a merger")
	}
	p := &Pipeline{
		cfg:    cfg,
		params: params,
		synth:  s,
		merger: m,
		obs:    NopObserver{},
		log:    log.Default(),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run synthesizes text into outPath. Preflight runs before any chunk
// work; zero speakable chunks is a no-op success. On failure no output
// file is produced, and chunk files are kept only when retention is
// configured.
func (p *Pipeline) Run(ctx context.Context, text, outPath string) (*Result, error) {
	start := p.now()
	res := &Result{JobID: uuid.NewString(), OutputPath: outPath}
	logger := p.log.With("job", shortID(res.JobID))

	version, err := p.merger.Preflight(ctx)
	if err != nil {
		return nil, err
	}
	res.ToolVersion = version

	chunks, err := chunker.Split(text, p.cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		logger.Warn("no speakable text, nothing to synthesize")
		res.Duration = p.now().Sub(start)
		return res, nil
	}
	res.Chunks = len(chunks)
	logger.Info("starting synthesis",
		"chunks", len(chunks),
		"chars", len(text),
		"concurrency", p.cfg.Concurrency)

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	paths := make([]string, len(chunks))
	for i := range chunks {
		paths[i] = chunkPath(outPath, i, p.params.Format)
	}

	p.obs.JobStarted(len(chunks))

	infos, attempts, err := p.dispatch(ctx, chunks, paths)
	res.Attempts = attempts
	if err != nil {
		p.cleanup(paths)
		return nil, err
	}

	res.RequestIDs = make([]string, len(infos))
	for i, info := range infos {
		res.RequestIDs[i] = info.ID
	}

	logger.Info("merging chunks", "files", len(paths))
	if err := p.merger.Merge(ctx, paths, outPath); err != nil {
		p.cleanup(paths)
		return nil, err
	}
	p.cleanup(paths)

	if fi, err := os.Stat(outPath); err == nil {
		res.BytesWritten = fi.Size()
	}

	if p.rec != nil {
		if err := p.rec.Record(res, p.params, p.cfg); err != nil {
			res.Warning = fmt.Errorf("sidecar not written: %w", err)
			logger.Warn("audio written, but sidecar failed", "err", err)
		}
	}

	res.Duration = p.now().Sub(start)
	logger.Info("synthesis complete",
		"output", outPath,
		"attempts", res.Attempts,
		"took", res.Duration.Round(time.Millisecond))
	return res, nil
}

// cleanup removes chunk files and stray partials after the run unless
// retention was requested. Chunk files consumed by a rename-based
// merge are already gone; missing files are fine.
func (p *Pipeline) cleanup(paths []string) {
	for _, path := range paths {
		_ = os.Remove(path + partSuffix)
		if p.cfg.KeepChunks {
			continue
		}
		_ = os.Remove(path)
	}
}

// emit forwards one chunk transition to the observer, flagging any
// move the lifecycle does not allow.
func (p *Pipeline) emit(e Event) {
	if !canTransition(e.From, e.To) {
		p.log.Error("illegal chunk transition", "chunk", e.ChunkIndex+1, "from", e.From, "to", e.To)
	}
	p.obs.ChunkTransition(e)
}

// chunkPath names the on-disk file for chunk i. Paths are partitioned
// by index so concurrent chunks never contend.
func chunkPath(outPath string, i int, format string) string {
	ext := filepath.Ext(outPath)
	base := strings.TrimSuffix(outPath, ext)
	return fmt.Sprintf("%s_chunk_%d.%s", base, i+1, format)
}

// shortID trims a job UUID down to a log-friendly prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
