package synth

import (
	"context"
	"io"
)

// Synthesizer converts one bounded chunk of text into an audio stream.
// Implementations classify failures by returning *APIError so the
// scheduler can decide between retrying and aborting; any other error
// is treated as terminal.
type Synthesizer interface {
	// Synthesize returns the audio stream for text. The caller drains
	// and closes the stream; implementations must not buffer the whole
	// response. RequestInfo carries provider correlation identifiers
	// and is valid even for some failed calls.
	Synthesize(ctx context.Context, text string, p Params) (io.ReadCloser, RequestInfo, error)
}

// Merger joins ordered chunk files into the final output and answers
// for the external tool's availability.
type Merger interface {
	// Preflight verifies the merge tool exists and is new enough,
	// returning its version string. It runs before any chunk work so
	// no API spend is wasted on a job that cannot finish.
	Preflight(ctx context.Context) (string, error)
	// Merge concatenates inputs in order into out, forcing the uniform
	// output encoding. Merge failures are fatal and never retried.
	Merge(ctx context.Context, inputs []string, out string) error
}

// ChunkCache stores synthesized chunk audio keyed by content and
// parameters, letting re-runs of an edited document pay only for
// changed chunks. Implementations stream; they never hold a whole
// chunk in memory.
type ChunkCache interface {
	// Get writes the cached audio for key to dst, reporting whether
	// the key was present.
	Get(key string, dst io.Writer) (bool, error)
	// Put stores the audio read from src under key.
	Put(key string, src io.Reader) error
}
