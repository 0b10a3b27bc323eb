package speech

import (
	"context"
	"sync"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/tts"
)

// MockPlayer is a Player for tests. It records played audio in order
// and can simulate playback time.
type MockPlayer struct {
	// PlayDelay simulates how long each Play call blocks.
	PlayDelay time.Duration

	// PlayFunc overrides the default behavior when set.
	PlayFunc func(ctx context.Context, result *tts.Result) error

	mu       sync.Mutex
	played   []*tts.Result
	fadeOuts int
}

var _ Player = (*MockPlayer)(nil)

func (m *MockPlayer) Play(ctx context.Context, result *tts.Result) error {
	if m.PlayFunc != nil {
		return m.PlayFunc(ctx, result)
	}
	if m.PlayDelay > 0 {
		select {
		case <-time.After(m.PlayDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	m.played = append(m.played, result)
	m.mu.Unlock()
	return nil
}

func (m *MockPlayer) FadeOut(d time.Duration) {
	m.mu.Lock()
	m.fadeOuts++
	m.mu.Unlock()
}

// Played returns the results played so far, in playback order.
func (m *MockPlayer) Played() []*tts.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*tts.Result, len(m.played))
	copy(out, m.played)
	return out
}

// FadeOutCount returns how often FadeOut was called.
func (m *MockPlayer) FadeOutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fadeOuts
}

// MockDucker records duck/restore transitions.
type MockDucker struct {
	mu       sync.Mutex
	ducks    int
	restores int
}

var _ Ducker = (*MockDucker)(nil)

func (m *MockDucker) Duck() {
	m.mu.Lock()
	m.ducks++
	m.mu.Unlock()
}

func (m *MockDucker) Restore() {
	m.mu.Lock()
	m.restores++
	m.mu.Unlock()
}

// Counts returns the number of Duck and Restore calls.
func (m *MockDucker) Counts() (ducks, restores int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ducks, m.restores
}
