// Package player plays a finished synthesis result through the
// system audio device. Only mp3 output is playable; other formats are
// skipped with a notice.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat marks a file the player cannot decode.
var ErrUnsupportedFormat = errors.New("playback supports mp3 output only")

// sink consumes decoded 16-bit little-endian stereo PCM. It exists so
// tests can run without an audio device.
type sink interface {
	play(ctx context.Context, pcm io.Reader, sampleRate int) error
}

// Player decodes and plays one file at a time.
type Player struct {
	out sink
	log *log.Logger
}

// New builds a Player backed by the system audio device.
func New() *Player {
	return &Player{out: otoSink{}, log: log.Default()}
}

// Play decodes path and blocks until playback finishes or ctx is
// canceled.
func (p *Player) Play(ctx context.Context, path string) error {
	if strings.ToLower(filepath.Ext(path)) != ".mp3" {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return fmt.Errorf("decode mp3: %w", err)
	}

	p.log.Debug("playing", "path", path, "sample_rate", dec.SampleRate())
	return p.out.play(ctx, dec, dec.SampleRate())
}

// otoSink drives the real audio device.
type otoSink struct{}

func (otoSink) play(ctx context.Context, pcm io.Reader, sampleRate int) error {
	octx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2, // go-mp3 always emits stereo
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	player := octx.NewPlayer(pcm)
	defer player.Close()
	player.Play()

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			_ = player.Close()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return player.Err()
}
