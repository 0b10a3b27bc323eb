package speech

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/tts"
)

// DefaultPlaybackCommand is the external command raw PCM is piped into.
const DefaultPlaybackCommand = "aplay"

// ExecPlayer pipes synthesized audio into an external playback command's
// stdin in small chunks. Volume is applied in software by scaling the
// PCM samples, which is what makes the bounded fade-out possible without
// cooperation from the player process.
type ExecPlayer struct {
	command string
	logger  *slog.Logger

	// gain holds math.Float32bits of the current volume multiplier.
	gain   atomic.Uint32
	fading atomic.Bool

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewExecPlayer creates a player piping audio into the given command.
// An empty command selects DefaultPlaybackCommand.
func NewExecPlayer(command string, logger *slog.Logger) *ExecPlayer {
	if command == "" {
		command = DefaultPlaybackCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &ExecPlayer{
		command: command,
		logger:  logger.With("component", "player"),
	}
	p.gain.Store(math.Float32bits(1.0))
	return p
}

// Play streams the result into a fresh player process and blocks until
// the audio was written completely or faded to silence.
func (p *ExecPlayer) Play(ctx context.Context, result *tts.Result) error {
	if result == nil || len(result.Audio) == 0 {
		return nil
	}
	if !p.fading.Load() {
		p.gain.Store(math.Float32bits(1.0))
	}

	cmd := exec.CommandContext(ctx, p.command, playbackArgs(p.command, result.Format)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("player: starting %q: %w", p.command, err)
	}
	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cmd = nil
		p.mu.Unlock()
	}()

	// 20ms of 16-bit mono audio per write.
	chunkSize := result.Format.SampleRate * 2 / 50
	if chunkSize <= 0 {
		chunkSize = 960
	}
	chunk := make([]byte, chunkSize)

	audio := result.Audio
	for off := 0; off < len(audio); off += chunkSize {
		select {
		case <-ctx.Done():
			stdin.Close()
			cmd.Wait()
			return ctx.Err()
		default:
		}
		gain := math.Float32frombits(p.gain.Load())
		if p.fading.Load() && gain <= 0 {
			break
		}
		end := off + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		buf := chunk[:end-off]
		copy(buf, audio[off:end])
		if gain < 1.0 {
			scaleSamples(buf, gain)
		}
		if _, err := stdin.Write(buf); err != nil {
			cmd.Wait()
			return fmt.Errorf("player: writing audio: %w", err)
		}
	}
	stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("player: %q exited: %w", p.command, err)
	}
	p.logger.Debug("playback finished",
		"bytes", len(audio),
		"duration", result.Duration)
	return nil
}

// FadeOut ramps the software gain to zero over the given interval. The
// currently running Play call ends once the gain reached silence.
func (p *ExecPlayer) FadeOut(d time.Duration) {
	p.fading.Store(true)
	if d <= 0 {
		p.gain.Store(math.Float32bits(0))
		p.fading.Store(false)
		return
	}
	const steps = 20
	start := math.Float32frombits(p.gain.Load())
	interval := d / steps
	go func() {
		for i := 1; i <= steps; i++ {
			time.Sleep(interval)
			gain := start * float32(steps-i) / steps
			p.gain.Store(math.Float32bits(gain))
		}
		p.gain.Store(math.Float32bits(0))
		p.fading.Store(false)
	}()
}

// scaleSamples applies a gain factor to little-endian 16-bit samples in
// place.
func scaleSamples(buf []byte, gain float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		sample := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
		scaled := float32(sample) * gain
		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		} else if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}
		out := int16(scaled)
		buf[i] = byte(uint16(out))
		buf[i+1] = byte(uint16(out) >> 8)
	}
}

// playbackArgs builds the argument list for known playback commands.
func playbackArgs(command string, format tts.AudioFormat) []string {
	rate := strconv.Itoa(format.SampleRate)
	switch command {
	case "aplay":
		return []string{"-q", "-f", "S16_LE", "-c", "1", "-r", rate}
	case "ffplay":
		return []string{"-autoexit", "-nodisp", "-loglevel", "quiet",
			"-f", "s16le", "-ar", rate, "-i", "-"}
	case "play": // sox
		return []string{"-q", "-t", "raw", "-e", "signed",
			"-b", "16", "-c", "1", "-r", rate, "-"}
	}
	return nil
}
