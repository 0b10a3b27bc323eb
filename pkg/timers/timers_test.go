package timers

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSetAndCancel(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	timer, err := m.Set(time.Minute, "pasta")
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if timer.Label != "pasta" {
		t.Errorf("label = %q", timer.Label)
	}
	if got := len(m.Active()); got != 1 {
		t.Fatalf("expected 1 active timer, got %d", got)
	}

	if !m.Cancel(timer.ID) {
		t.Error("expected cancel to succeed")
	}
	if m.Cancel(timer.ID) {
		t.Error("second cancel must report false")
	}
	if got := len(m.Active()); got != 0 {
		t.Errorf("expected no active timers, got %d", got)
	}
}

func TestSetRejectsNonPositiveDuration(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	if _, err := m.Set(0, "x"); err == nil {
		t.Error("expected error for zero duration")
	}
	if _, err := m.Set(-time.Second, "x"); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestCancelByLabel(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	m.Set(time.Minute, "Tea")
	if !m.CancelByLabel("tea") {
		t.Error("expected case-insensitive label match")
	}
	if m.CancelByLabel("tea") {
		t.Error("expected no remaining timer with that label")
	}
}

func TestActiveOrderedByExpiry(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	m.Set(3*time.Minute, "later")
	m.Set(time.Minute, "sooner")

	active := m.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(active))
	}
	if active[0].Label != "sooner" || active[1].Label != "later" {
		t.Errorf("unexpected order: %q, %q", active[0].Label, active[1].Label)
	}
}

func TestExpiryFiresCallbackAndRemovesTimer(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	var fired atomic.Int32
	expired := make(chan Timer, 1)
	m.OnExpired = func(timer Timer) {
		fired.Add(1)
		expired <- timer
	}

	m.Set(10*time.Millisecond, "quick")

	select {
	case timer := <-expired:
		if timer.Label != "quick" {
			t.Errorf("expired label = %q", timer.Label)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not expire")
	}
	if got := len(m.Active()); got != 0 {
		t.Errorf("expired timer still listed, %d active", got)
	}
	if got := fired.Load(); got != 1 {
		t.Errorf("callback fired %d times, want 1", got)
	}
}

func TestRender(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	if got := m.Render(); got != "(none)" {
		t.Errorf("empty render = %q", got)
	}

	m.Set(90*time.Second, "eggs")
	rendered := m.Render()
	if !strings.Contains(rendered, "eggs") {
		t.Errorf("render missing label:\n%s", rendered)
	}
	if !strings.Contains(rendered, "remaining") {
		t.Errorf("render missing remaining time:\n%s", rendered)
	}
}
