package synth

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgnsrekt/orate/internal/chunker"
)

// dispatch fans chunks out to at most cfg.Concurrency concurrent
// schedulers and collects results strictly by index. The first
// terminal error cancels the job context; queued chunks never start
// and in-flight chunks abandon their attempt at the next suspension
// point.
func (p *Pipeline) dispatch(ctx context.Context, chunks []chunker.Chunk, paths []string) ([]RequestInfo, int, error) {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	infos := make([]RequestInfo, len(chunks))
	sem := make(chan struct{}, p.cfg.Concurrency)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		attempts int
	)

	for _, c := range chunks {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(c chunker.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			info, spent, err := p.runChunk(ctx, c, paths[c.Index])

			mu.Lock()
			attempts += spent
			if err != nil && firstErr == nil {
				firstErr = err
				cancel()
			}
			mu.Unlock()

			if err == nil {
				infos[c.Index] = info
				p.log.Debug("chunk complete", "chunk", c.Index+1, "of", len(chunks), "attempts", spent)
			}
		}(c)
	}

	wg.Wait()

	if err := parent.Err(); err != nil {
		return infos, attempts, fmt.Errorf("synthesis canceled: %w", err)
	}
	if firstErr != nil {
		return infos, attempts, firstErr
	}
	return infos, attempts, nil
}
