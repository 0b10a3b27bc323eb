// Package speech turns streaming assistant text into ordered audio
// playback. Text deltas feed an incremental sentence segmenter; each
// completed sentence is synthesized asynchronously, but playback follows
// strict sentence-detection order regardless of which synthesis call
// finishes first.
package speech

import (
	"context"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/tts"
)

// Player plays synthesized audio. Play blocks until the audio finished
// (or was faded out).
type Player interface {
	// Play plays the result to completion.
	Play(ctx context.Context, result *tts.Result) error

	// FadeOut ramps the volume of the current playback down to silence
	// over the given interval, after which Play returns. Safe to call
	// when nothing is playing.
	FadeOut(d time.Duration)
}

// Ducker coordinates with unrelated concurrently-playing audio, lowering
// its volume while the assistant speaks and restoring it afterwards.
type Ducker interface {
	Duck()
	Restore()
}

// NopDucker is a Ducker that does nothing.
type NopDucker struct{}

func (NopDucker) Duck()    {}
func (NopDucker) Restore() {}
