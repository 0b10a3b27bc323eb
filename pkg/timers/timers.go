// Package timers manages the assistant's active countdown timers. The
// current set is rendered into every system message so the model can
// answer "how long is left on the pasta timer" without a tool round.
package timers

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timer is one active countdown.
type Timer struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	FiresAt   time.Time `json:"fires_at"`
}

// Remaining returns the time left until the timer fires.
func (t Timer) Remaining() time.Duration {
	d := time.Until(t.FiresAt)
	if d < 0 {
		return 0
	}
	return d
}

type activeTimer struct {
	Timer
	cancel *time.Timer
}

// Manager tracks active timers and fires a callback on expiry.
type Manager struct {
	mu     sync.Mutex
	timers map[string]*activeTimer
	logger *slog.Logger

	// OnExpired is invoked from the timer goroutine when a timer fires.
	OnExpired func(Timer)
}

// NewManager creates an empty timer manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		timers: make(map[string]*activeTimer),
		logger: logger.With("component", "timers"),
	}
}

// Set starts a new timer. The label may be empty.
func (m *Manager) Set(duration time.Duration, label string) (Timer, error) {
	if duration <= 0 {
		return Timer{}, fmt.Errorf("timers: duration must be positive, got %s", duration)
	}

	now := time.Now()
	t := Timer{
		ID:        uuid.NewString(),
		Label:     strings.TrimSpace(label),
		CreatedAt: now,
		FiresAt:   now.Add(duration),
	}

	m.mu.Lock()
	at := &activeTimer{Timer: t}
	at.cancel = time.AfterFunc(duration, func() {
		m.expire(t.ID)
	})
	m.timers[t.ID] = at
	m.mu.Unlock()

	m.logger.Info("timer set", "id", t.ID, "label", t.Label, "duration", duration)
	return t, nil
}

// Cancel stops the timer with the given ID. It reports whether a timer
// was removed.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	at, ok := m.timers[id]
	if ok {
		at.cancel.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info("timer canceled", "id", id, "label", at.Label)
	}
	return ok
}

// CancelByLabel stops the first timer matching the label
// (case-insensitive).
func (m *Manager) CancelByLabel(label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))

	m.mu.Lock()
	id := ""
	for _, at := range m.timers {
		if strings.ToLower(at.Label) == label {
			id = at.ID
			break
		}
	}
	m.mu.Unlock()

	if id == "" {
		return false
	}
	return m.Cancel(id)
}

// Active returns the active timers ordered by expiry.
func (m *Manager) Active() []Timer {
	m.mu.Lock()
	out := make([]Timer, 0, len(m.timers))
	for _, at := range m.timers {
		out = append(out, at.Timer)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].FiresAt.Before(out[j].FiresAt)
	})
	return out
}

// Render formats the active timers for a system message.
func (m *Manager) Render() string {
	active := m.Active()
	if len(active) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, t := range active {
		label := t.Label
		if label == "" {
			label = "unnamed timer"
		}
		fmt.Fprintf(&b, "- %s: %s remaining (fires at %s)\n",
			label,
			t.Remaining().Round(time.Second),
			t.FiresAt.Format("15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Close cancels all active timers.
func (m *Manager) Close() {
	m.mu.Lock()
	for id, at := range m.timers {
		at.cancel.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()
}

func (m *Manager) expire(id string) {
	m.mu.Lock()
	at, ok := m.timers[id]
	if ok {
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.logger.Info("timer expired", "id", id, "label", at.Label)
	if m.OnExpired != nil {
		m.OnExpired(at.Timer)
	}
}
