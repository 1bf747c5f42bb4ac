package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dgnsrekt/orate/internal/chunker"
)

// partSuffix marks an in-progress chunk download. A chunk file without
// the suffix is always complete.
const partSuffix = ".part"

// runChunk drives one chunk through its attempt lifecycle and leaves
// the finished audio at path. It returns the provider request info and
// the number of API attempts spent (zero on a cache hit).
func (p *Pipeline) runChunk(ctx context.Context, c chunker.Chunk, path string) (RequestInfo, int, error) {
	p.emit(Event{ChunkIndex: c.Index, From: StatusPending, To: StatusInFlight, Attempt: 1})

	if p.cache != nil {
		if ok := p.cacheGet(c.Text, path); ok {
			p.log.Debug("chunk served from cache", "chunk", c.Index+1)
			p.emit(Event{ChunkIndex: c.Index, From: StatusInFlight, To: StatusDone})
			return RequestInfo{}, 0, nil
		}
	}

	for attempt := 1; ; attempt++ {
		info, err := p.attempt(ctx, c.Text, path)
		if err == nil {
			p.cachePut(c.Text, path)
			p.emit(Event{ChunkIndex: c.Index, From: StatusInFlight, To: StatusDone, Attempt: attempt})
			return info, attempt, nil
		}

		if cerr := ctx.Err(); cerr != nil {
			p.emit(Event{ChunkIndex: c.Index, From: StatusInFlight, To: StatusFailed, Attempt: attempt, Err: cerr})
			return info, attempt, &ChunkError{Index: c.Index, Attempts: attempt, Err: cerr}
		}

		apiErr := classify(err)
		if apiErr == nil || !apiErr.Retryable() {
			p.emit(Event{ChunkIndex: c.Index, From: StatusInFlight, To: StatusFailed, Attempt: attempt, Err: err})
			return info, attempt, &ChunkError{Index: c.Index, Attempts: attempt, Err: err}
		}
		if attempt >= p.cfg.MaxAttempts {
			wrapped := fmt.Errorf("%w: %w", ErrAttemptsExhausted, err)
			p.emit(Event{ChunkIndex: c.Index, From: StatusInFlight, To: StatusFailed, Attempt: attempt, Err: wrapped})
			return info, attempt, &ChunkError{Index: c.Index, Attempts: attempt, Err: wrapped}
		}

		delay := p.cfg.backoffDelay(attempt, apiErr)
		p.log.Warn("chunk attempt failed, retrying",
			"chunk", c.Index+1,
			"attempt", attempt,
			"delay", delay,
			"err", err)
		p.emit(Event{ChunkIndex: c.Index, From: StatusInFlight, To: StatusRetrying, Attempt: attempt, Err: err})

		if serr := p.sleep(ctx, delay); serr != nil {
			p.emit(Event{ChunkIndex: c.Index, From: StatusRetrying, To: StatusFailed, Attempt: attempt, Err: serr})
			return info, attempt, &ChunkError{Index: c.Index, Attempts: attempt, Err: serr}
		}
		p.emit(Event{ChunkIndex: c.Index, From: StatusRetrying, To: StatusInFlight, Attempt: attempt + 1})
	}
}

// attempt performs one synthesis call, streaming the response into a
// partial file that is renamed into place only when the stream ends
// cleanly. A stale partial from an earlier aborted attempt is removed
// first; partials are never appended to or reused.
func (p *Pipeline) attempt(ctx context.Context, text, path string) (RequestInfo, error) {
	part := path + partSuffix
	_ = os.Remove(part)

	stream, info, err := p.synth.Synthesize(ctx, text, p.params)
	if err != nil {
		return info, err
	}
	defer stream.Close()

	f, err := os.Create(part)
	if err != nil {
		return info, fmt.Errorf("create chunk file: %w", err)
	}

	written, copyErr := copyStream(f, stream)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(part)
		return info, copyErr
	case closeErr != nil:
		_ = os.Remove(part)
		return info, fmt.Errorf("close chunk file: %w", closeErr)
	case written == 0:
		_ = os.Remove(part)
		return info, &APIError{Class: Retryable, RequestID: info.ID, Err: fmt.Errorf("provider returned an empty audio stream")}
	}

	if err := os.Rename(part, path); err != nil {
		_ = os.Remove(part)
		return info, fmt.Errorf("finalize chunk file: %w", err)
	}
	return info, nil
}

// copyStream copies src to dst with a bounded buffer, distinguishing
// read failures (the network stream broke; retryable) from write
// failures (local I/O; fatal).
func copyStream(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write chunk audio: %w", werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &APIError{Class: Retryable, Err: fmt.Errorf("audio stream interrupted: %w", rerr)}
		}
	}
}

// cacheKey derives the content address for a chunk: the text plus
// every parameter that changes the produced audio.
func (p *Pipeline) cacheKey(text string) string {
	h := sha256.New()
	for _, part := range []string{
		p.params.Model,
		p.params.Voice,
		p.params.Format,
		strconv.FormatFloat(p.params.Speed, 'f', -1, 64),
		p.params.Instructions,
		text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// cacheGet copies a cached chunk to path, reporting success. Cache
// trouble is logged and treated as a miss; a finished chunk file only
// ever appears via rename.
func (p *Pipeline) cacheGet(text, path string) bool {
	part := path + partSuffix
	_ = os.Remove(part)

	f, err := os.Create(part)
	if err != nil {
		return false
	}
	ok, err := p.cache.Get(p.cacheKey(text), f)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil || !ok {
		_ = os.Remove(part)
		if err != nil {
			p.log.Debug("chunk cache read failed", "err", err)
		}
		return false
	}
	if fi, serr := os.Stat(part); serr != nil || fi.Size() == 0 {
		_ = os.Remove(part)
		return false
	}
	if err := os.Rename(part, path); err != nil {
		_ = os.Remove(part)
		return false
	}
	return true
}

// cachePut stores a finished chunk, best effort.
func (p *Pipeline) cachePut(text, path string) {
	if p.cache == nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	if err := p.cache.Put(p.cacheKey(text), f); err != nil {
		p.log.Debug("chunk cache write failed", "err", err)
	}
}
