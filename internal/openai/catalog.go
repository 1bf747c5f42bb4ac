package openai

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/orate/internal/synth"
)

// Speech parameter bounds accepted by the provider.
const (
	SpeedMin = 0.25
	SpeedMax = 4.0
)

// Models lists the speech models this client knows how to drive.
var Models = []string{"tts-1", "tts-1-hd", "gpt-4o-mini-tts"}

// Voices lists the selectable voices.
var Voices = []string{
	"alloy", "ash", "ballad", "coral", "echo",
	"fable", "onyx", "nova", "sage", "shimmer", "verse",
}

// Formats lists the response formats the endpoint can emit.
var Formats = []string{"mp3", "opus", "aac", "flac", "wav", "pcm"}

// SupportsInstructions reports whether model accepts the instructions
// field. Only the steerable model does; sending it to the others is a
// request error.
func SupportsInstructions(model string) bool {
	return model == "gpt-4o-mini-tts"
}

// ValidateParams rejects parameter combinations the provider would
// bounce, so bad jobs fail before any chunk work.
func ValidateParams(p synth.Params) error {
	if !contains(Models, p.Model) {
		return fmt.Errorf("unknown model %q (available: %s)", p.Model, strings.Join(Models, ", "))
	}
	if !contains(Voices, p.Voice) {
		return fmt.Errorf("unknown voice %q (available: %s)", p.Voice, strings.Join(Voices, ", "))
	}
	if !contains(Formats, p.Format) {
		return fmt.Errorf("unknown format %q (available: %s)", p.Format, strings.Join(Formats, ", "))
	}
	if p.Speed < SpeedMin || p.Speed > SpeedMax {
		return fmt.Errorf("speed %.2f out of range %.2f..%.2f", p.Speed, SpeedMin, SpeedMax)
	}
	if p.Instructions != "" && !SupportsInstructions(p.Model) {
		return fmt.Errorf("model %q does not accept instructions", p.Model)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
