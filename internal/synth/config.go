package synth

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline bounds. The chunk ceiling matches the provider's input
// limit; parallelism stays conservative because the provider enforces
// rate limits the pipeline cannot see in advance.
const (
	MaxChunkSize   = 4096
	MaxConcurrency = 8

	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 5 * time.Second
	DefaultRateLimitDelay = 15 * time.Second
	DefaultMaxDelay       = 60 * time.Second
)

// Params are the synthesis parameters sent with every chunk request.
type Params struct {
	Model        string
	Voice        string
	Format       string
	Speed        float64
	Instructions string
}

// OutputSpec is the uniform encoding forced onto the merged output.
type OutputSpec struct {
	SampleRate int
	Channels   int
	Bitrate    string
}

// DefaultOutputSpec returns the encode targets used when the caller
// does not override them.
func DefaultOutputSpec() OutputSpec {
	return OutputSpec{SampleRate: 48000, Channels: 2, Bitrate: "192k"}
}

// Config carries every tunable the pipeline needs. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	// ChunkSize is the maximum characters per synthesis request.
	ChunkSize int
	// Concurrency is the number of chunks synthesized in parallel.
	Concurrency int
	// MaxAttempts bounds retries per chunk, counting the first try.
	MaxAttempts int
	// RetryBaseDelay seeds the backoff schedule for generic retryable
	// failures; RateLimitDelay seeds it for rate-limited failures
	// without a server hint. MaxDelay caps the computed delay.
	RetryBaseDelay time.Duration
	RateLimitDelay time.Duration
	MaxDelay       time.Duration
	// Output is the uniform encoding forced at merge time.
	Output OutputSpec
	// KeepChunks retains intermediate chunk files after the run.
	KeepChunks bool
}

// DefaultConfig returns the pipeline defaults: sequential dispatch,
// three attempts per chunk, provider-sized chunks.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      MaxChunkSize,
		Concurrency:    1,
		MaxAttempts:    DefaultMaxAttempts,
		RetryBaseDelay: DefaultRetryBaseDelay,
		RateLimitDelay: DefaultRateLimitDelay,
		MaxDelay:       DefaultMaxDelay,
		Output:         DefaultOutputSpec(),
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk size %d out of range 1..%d", c.ChunkSize, MaxChunkSize)
	}
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("concurrency %d out of range 1..%d", c.Concurrency, MaxConcurrency)
	}
	if c.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if c.RetryBaseDelay <= 0 || c.RateLimitDelay <= 0 {
		return errors.New("retry delays must be positive")
	}
	if c.MaxDelay < c.RetryBaseDelay {
		return errors.New("max delay must be at least the retry base delay")
	}
	if c.Output.SampleRate <= 0 || c.Output.Channels <= 0 || c.Output.Bitrate == "" {
		return errors.New("output spec is incomplete")
	}
	return nil
}
