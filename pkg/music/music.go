// Package music tracks the state of background music playback. The
// assistant reports this state in every system message and lowers the
// volume while it speaks.
package music

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/stippi/go-voice-assistant/pkg/speech"
)

// Status is a snapshot of the music playback state.
type Status struct {
	Playing bool   `json:"playing"`
	Track   string `json:"track,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Volume  int    `json:"volume"`
}

const duckedFraction = 0.3

// Controller holds the music state and implements volume ducking around
// assistant speech.
type Controller struct {
	mu         sync.Mutex
	status     Status
	duckedFrom int
	logger     *slog.Logger
}

var _ speech.Ducker = (*Controller)(nil)

// NewController creates a stopped controller at full volume.
func NewController(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		status: Status{Volume: 100},
		logger: logger.With("component", "music"),
	}
}

// Play starts (or switches) playback of the given track.
func (c *Controller) Play(track, artist string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Playing = true
	c.status.Track = strings.TrimSpace(track)
	c.status.Artist = strings.TrimSpace(artist)
	c.logger.Info("music playing", "track", c.status.Track, "artist", c.status.Artist)
	return c.status
}

// Pause pauses playback, keeping the current track.
func (c *Controller) Pause() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Playing = false
	return c.status
}

// Resume continues playback of the current track, if any.
func (c *Controller) Resume() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Track == "" {
		return c.status, fmt.Errorf("music: nothing to resume")
	}
	c.status.Playing = true
	return c.status, nil
}

// Stop stops playback and forgets the current track.
func (c *Controller) Stop() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Playing = false
	c.status.Track = ""
	c.status.Artist = ""
	return c.status
}

// SetVolume sets the playback volume (0-100).
func (c *Controller) SetVolume(volume int) (Status, error) {
	if volume < 0 || volume > 100 {
		return Status{}, fmt.Errorf("music: volume must be 0-100, got %d", volume)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Volume = volume
	c.duckedFrom = 0
	return c.status, nil
}

// Status returns the current snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Render formats the state for a system message.
func (c *Controller) Render() string {
	s := c.Status()
	if !s.Playing {
		if s.Track != "" {
			return fmt.Sprintf("paused: %q by %s (volume %d%%)", s.Track, orUnknown(s.Artist), s.Volume)
		}
		return "not playing"
	}
	return fmt.Sprintf("playing: %q by %s (volume %d%%)", s.Track, orUnknown(s.Artist), s.Volume)
}

// Duck lowers the music volume while the assistant speaks. A no-op when
// nothing is playing or the volume is already ducked.
func (c *Controller) Duck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.Playing || c.duckedFrom != 0 {
		return
	}
	c.duckedFrom = c.status.Volume
	c.status.Volume = int(float64(c.status.Volume) * duckedFraction)
	c.logger.Debug("music ducked", "from", c.duckedFrom, "to", c.status.Volume)
}

// Restore brings the volume back to its pre-duck level.
func (c *Controller) Restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.duckedFrom == 0 {
		return
	}
	c.status.Volume = c.duckedFrom
	c.duckedFrom = 0
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown artist"
	}
	return s
}
