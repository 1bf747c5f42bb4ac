// Package ffmpeg merges ordered chunk audio files into one uniformly
// encoded output by driving the external ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/orate/internal/synth"
)

// Minimum ffmpeg version known to handle the concat demuxer plus every
// codec the speech formats map to.
const (
	minMajor = 4
	minMinor = 3
)

// ErrNotFound is returned by Preflight when no ffmpeg binary is on
// PATH.
var ErrNotFound = errors.New("ffmpeg not found in PATH")

// codecs maps output formats to the ffmpeg audio codec forced at merge
// time. Unknown formats fall back to stream copy.
var codecs = map[string]string{
	"mp3":  "libmp3lame",
	"opus": "libopus",
	"aac":  "aac",
	"flac": "flac",
	"wav":  "pcm_s16le",
	"pcm":  "pcm_s16le",
}

// lossless formats take no bitrate argument.
var noBitrate = map[string]bool{"flac": true, "wav": true, "pcm": true}

// runner abstracts process execution so merges are testable without a
// real ffmpeg install.
type runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// execRunner runs commands via os/exec, capturing both streams.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Merger implements synth.Merger on top of the ffmpeg binary. The
// zero value is not usable; construct with New.
type Merger struct {
	binary   string
	spec     synth.OutputSpec
	runner   runner
	lookPath func(string) (string, error)
	log      *log.Logger
}

// New builds a Merger that encodes merged output to spec.
func New(spec synth.OutputSpec) *Merger {
	return &Merger{
		binary:   "ffmpeg",
		spec:     spec,
		runner:   execRunner{},
		lookPath: exec.LookPath,
		log:      log.Default(),
	}
}

// Preflight verifies ffmpeg is installed and new enough, returning
// the version line it reported. It runs before any chunk work so a
// job that cannot be finished never spends an API call.
func (m *Merger) Preflight(ctx context.Context) (string, error) {
	if _, err := m.lookPath(m.binary); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	stdout, _, err := m.runner.Run(ctx, m.binary, "-version")
	if err != nil {
		return "", fmt.Errorf("probe ffmpeg version: %w", err)
	}

	line := stdout
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	major, minor, ok := parseVersion(line)
	if !ok {
		// Date-based git builds and other nonstandard version strings
		// are current by construction; accept them as reported.
		m.log.Debug("ffmpeg version not comparable, accepting", "version", line)
		return line, nil
	}
	if major < minMajor || (major == minMajor && minor < minMinor) {
		return "", fmt.Errorf("ffmpeg too old: found %q, need at least %d.%d", line, minMajor, minMinor)
	}
	return line, nil
}

// versionRe matches release builds like "ffmpeg version 6.0" and
// distro builds like "ffmpeg version n4.4.2-...".
var versionRe = regexp.MustCompile(`version\s+n?(\d+)\.(\d+)(?:\.(\d+))?`)

// gitBuildRe matches date-based nightly builds, e.g.
// "ffmpeg version 2025-08-04-git-...".
var gitBuildRe = regexp.MustCompile(`version\s+\d{4}-\d{2}-\d{2}-git`)

// parseVersion extracts a comparable major.minor from the first line
// of `ffmpeg -version`. Git/date builds report ok=false and are
// accepted as-is by the caller.
func parseVersion(line string) (major, minor int, ok bool) {
	if gitBuildRe.MatchString(line) {
		return 0, 0, false
	}
	mt := versionRe.FindStringSubmatch(line)
	if mt == nil {
		return 0, 0, false
	}
	major, _ = strconv.Atoi(mt[1])
	minor, _ = strconv.Atoi(mt[2])
	return major, minor, true
}

// Merge joins inputs in order into out, re-encoding to the uniform
// output spec so chunks synthesized under varying conditions splice
// audibly seamlessly. A single input short-circuits to a rename. Merge
// failures are fatal and never retried.
func (m *Merger) Merge(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return errors.New("merge: no input files")
	}
	if len(inputs) == 1 {
		if err := os.Rename(inputs[0], out); err != nil {
			return fmt.Errorf("merge: move single chunk into place: %w", err)
		}
		return nil
	}

	listPath, err := writeConcatList(inputs, out)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:a", codecFor(format),
		"-ar", strconv.Itoa(m.spec.SampleRate),
		"-ac", strconv.Itoa(m.spec.Channels),
	}
	if !noBitrate[format] && codecFor(format) != "copy" {
		args = append(args, "-b:a", m.spec.Bitrate)
	}
	args = append(args, out)

	m.log.Debug("merging chunk audio", "inputs", len(inputs), "out", out, "codec", codecFor(format))
	if _, stderr, err := m.runner.Run(ctx, m.binary, args...); err != nil {
		return fmt.Errorf("merge: ffmpeg failed: %w: %s", err, tail(stderr))
	}
	return nil
}

// codecFor returns the forced codec for an output format.
func codecFor(format string) string {
	if c, ok := codecs[format]; ok {
		return c
	}
	return "copy"
}

// writeConcatList writes the concat-demuxer list file next to the
// output. Paths use forward slashes and single-quote escaping as the
// demuxer requires.
func writeConcatList(inputs []string, out string) (string, error) {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", fmt.Errorf("merge: resolve input path: %w", err)
		}
		abs = filepath.ToSlash(abs)
		abs = strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}

	listPath := out + ".files.txt"
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("merge: write concat list: %w", err)
	}
	return listPath, nil
}

// tail trims ffmpeg's chatty stderr down to its last line, which
// carries the actual failure.
func tail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
