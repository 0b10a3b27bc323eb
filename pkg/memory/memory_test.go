package memory

import (
	"strings"
	"testing"

	"github.com/stippi/go-voice-assistant/pkg/store"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"user", CategoryUser, false},
		{" Preferences ", CategoryPreferences, false},
		{"NOTES", CategoryNotes, false},
		{"household", CategoryHousehold, false},
		{"trivia", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppendAndDelete(t *testing.T) {
	m := New()

	entry, err := m.Append(CategoryUser, "The user's name is Mara.")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected a generated entry ID")
	}

	// Verbatim duplicates collapse onto the existing entry.
	dup, err := m.Append(CategoryUser, "The user's name is Mara.")
	if err != nil {
		t.Fatalf("duplicate append failed: %v", err)
	}
	if dup.ID != entry.ID {
		t.Error("duplicate content should return the existing entry")
	}
	if got := len(m.Entries(CategoryUser)); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}

	removed, err := m.Delete(CategoryUser, entry.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !removed {
		t.Error("expected delete to remove the entry")
	}
	if got := m.Count(); got != 0 {
		t.Errorf("expected empty memory, got %d entries", got)
	}

	removed, err = m.Delete(CategoryUser, entry.ID)
	if err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if removed {
		t.Error("deleting a missing entry must report false")
	}
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	m := New()
	if _, err := m.Append(CategoryUser, "   "); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := m.Append(Category("gossip"), "something"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestDeleteByContent(t *testing.T) {
	m := New()
	m.Append(CategoryPreferences, "Likes green tea.")
	m.Append(CategoryPreferences, "Dislikes loud notifications.")

	removed, err := m.DeleteByContent(CategoryPreferences, "Likes green tea.")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !removed {
		t.Fatal("expected entry to be removed")
	}
	entries := m.Entries(CategoryPreferences)
	if len(entries) != 1 || entries[0].Content != "Dislikes loud notifications." {
		t.Errorf("unexpected remaining entries: %+v", entries)
	}
}

func TestRender(t *testing.T) {
	m := New()
	if got := m.Render(); got != "(no entries yet)" {
		t.Errorf("empty render = %q", got)
	}

	m.Append(CategoryUser, "Name is Mara.")
	m.Append(CategoryNotes, "Water the plants on Fridays.")

	rendered := m.Render()
	if !strings.Contains(rendered, "user:\n- Name is Mara.") {
		t.Errorf("missing user section:\n%s", rendered)
	}
	if !strings.Contains(rendered, "notes:\n- Water the plants on Fridays.") {
		t.Errorf("missing notes section:\n%s", rendered)
	}
	// Categories render in declaration order.
	if strings.Index(rendered, "user:") > strings.Index(rendered, "notes:") {
		t.Errorf("unexpected category order:\n%s", rendered)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	kv := store.NewMemoryStore()

	m, err := NewWithStore(kv)
	if err != nil {
		t.Fatalf("creating memory: %v", err)
	}
	if _, err := m.Append(CategoryHousehold, "The thermostat is in the hallway."); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// A second instance over the same store sees the entry.
	reloaded, err := NewWithStore(kv)
	if err != nil {
		t.Fatalf("reloading memory: %v", err)
	}
	entries := reloaded.Entries(CategoryHousehold)
	if len(entries) != 1 || entries[0].Content != "The thermostat is in the hallway." {
		t.Errorf("unexpected reloaded entries: %+v", entries)
	}

	if err := reloaded.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	third, err := NewWithStore(kv)
	if err != nil {
		t.Fatalf("reloading cleared memory: %v", err)
	}
	if got := third.Count(); got != 0 {
		t.Errorf("expected cleared store, got %d entries", got)
	}
}
