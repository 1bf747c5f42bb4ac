// Package sidecar records reproducibility metadata next to a finished
// audio file.
package sidecar

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dgnsrekt/orate/internal/synth"
)

// Suffix is appended to the audio output path to name its sidecar.
const Suffix = ".json"

// Record is the sidecar document. Instructions are stored as a digest
// so prompt text never lands on disk.
type Record struct {
	App             string   `json:"app"`
	Version         string   `json:"version"`
	Timestamp       string   `json:"timestamp"`
	Model           string   `json:"model"`
	Voice           string   `json:"voice"`
	Format          string   `json:"format"`
	Speed           float64  `json:"speed"`
	InstructionsSHA string   `json:"instructions_sha256,omitempty"`
	ChunkSize       int      `json:"chunk_size"`
	Concurrency     int      `json:"concurrency"`
	KeepChunks      bool     `json:"keep_chunks"`
	Chunks          int      `json:"chunks"`
	Attempts        int      `json:"attempts"`
	RequestIDs      []string `json:"request_ids"`
	FFmpeg          string   `json:"ffmpeg"`
	OS              string   `json:"os"`
	Arch            string   `json:"arch"`
	Kernel          string   `json:"kernel,omitempty"`
	GoVersion       string   `json:"go_version"`
}

// Recorder implements synth.Recorder, writing the sidecar after a
// successful merge.
type Recorder struct {
	app     string
	version string
	now     func() time.Time
}

// New builds a Recorder that stamps records with the application's
// name and version.
func New(app, version string) *Recorder {
	return &Recorder{app: app, version: version, now: time.Now}
}

// Record writes the sidecar for res next to its output file. The
// caller treats a write failure as degraded success, not job failure.
func (r *Recorder) Record(res *synth.Result, p synth.Params, cfg synth.Config) error {
	rec := Record{
		App:         r.app,
		Version:     r.version,
		Timestamp:   r.now().UTC().Format(time.RFC3339),
		Model:       p.Model,
		Voice:       p.Voice,
		Format:      p.Format,
		Speed:       p.Speed,
		ChunkSize:   cfg.ChunkSize,
		Concurrency: cfg.Concurrency,
		KeepChunks:  cfg.KeepChunks,
		Chunks:      res.Chunks,
		Attempts:    res.Attempts,
		RequestIDs:  res.RequestIDs,
		FFmpeg:      res.ToolVersion,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		Kernel:      kernelVersion(),
		GoVersion:   runtime.Version(),
	}
	if p.Instructions != "" {
		sum := sha256.Sum256([]byte(p.Instructions))
		rec.InstructionsSHA = hex.EncodeToString(sum[:])
	}
	if rec.RequestIDs == nil {
		rec.RequestIDs = []string{}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	path := res.OutputPath + Suffix
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}
