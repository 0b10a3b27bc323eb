// Package tts provides speech synthesis backends. The playback queue in
// pkg/speech calls Synthesize once per sentence; backends return the
// complete audio buffer for that sentence.
//
// Example usage:
//
//	synth, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice("nova"),
//	    tts.WithSpeed(1.1),
//	)
//	defer synth.Close()
//
//	result, _ := synth.Synthesize(ctx, "Hello world.")
package tts

import (
	"context"
	"time"
)

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize converts text to audio, returning the complete audio
	// buffer. Voice and speed come from the backend configuration.
	Synthesize(ctx context.Context, text string) (*Result, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Result is a complete synthesis result for one piece of text.
type Result struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the synthesis round-trip time in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the audio codec (e.g., pcm_24000, mp3_44100_128).
	Encoding Encoding

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth for PCM formats.
	BitDepth int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
	EncodingMP3   Encoding = "mp3_44100_128"
)

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44, EncodingMP3:
		return 44100
	default:
		return 24000
	}
}

// pcmDuration estimates PCM16 playback duration from byte count.
func pcmDuration(byteCount int, enc Encoding) time.Duration {
	samples := byteCount / 2
	seconds := float64(samples) / float64(SampleRateFromEncoding(enc))
	return time.Duration(seconds * float64(time.Second))
}

// VoiceSettings controls voice characteristics for backends that support
// it (ElevenLabs).
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64

	// SimilarityBoost controls how closely the voice matches the
	// original sample (0.0-1.0).
	SimilarityBoost float64

	// SpeakerBoost enhances speaker clarity.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}
