// Package memory provides the assistant's persistent long-term memory.
//
// Memory entries are grouped into a fixed set of categories. The model
// adds and removes entries through tool calls; the full memory is
// rendered into every system message so the model always sees what it
// previously chose to remember.
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stippi/go-voice-assistant/pkg/store"
)

// Category classifies a memory entry. The set is closed; tool calls
// naming an unknown category are rejected instead of silently creating
// new buckets.
type Category string

const (
	// CategoryUser holds facts about the user (name, birthday, family).
	CategoryUser Category = "user"

	// CategoryPreferences holds likes, dislikes and standing wishes.
	CategoryPreferences Category = "preferences"

	// CategoryHousehold holds facts about the home and its devices.
	CategoryHousehold Category = "household"

	// CategoryNotes holds everything the user explicitly asked to
	// remember that fits no other category.
	CategoryNotes Category = "notes"
)

// Categories returns all valid categories in render order.
func Categories() []Category {
	return []Category{CategoryUser, CategoryPreferences, CategoryHousehold, CategoryNotes}
}

// ParseCategory validates a category name coming from a tool call.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Categories() {
		if c == valid {
			return c, nil
		}
	}
	return "", fmt.Errorf("memory: unknown category %q", s)
}

// Entry is a single remembered fact.
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

const storeKey = "memory"

// Memory is the assistant's long-term memory, persisted as one JSON
// document in the configured store.
type Memory struct {
	mu      sync.RWMutex
	entries map[Category][]Entry
	store   store.Store
}

// New creates an in-memory instance without persistence.
func New() *Memory {
	return &Memory{entries: make(map[Category][]Entry)}
}

// NewWithStore creates a memory backed by the given store, loading any
// previously persisted entries.
func NewWithStore(s store.Store) (*Memory, error) {
	m := New()
	m.store = s
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Append remembers content in the given category and persists the
// change. Appending content that already exists verbatim in the
// category returns the existing entry.
func (m *Memory) Append(category Category, content string) (Entry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Entry{}, fmt.Errorf("memory: content cannot be empty")
	}
	if _, err := ParseCategory(string(category)); err != nil {
		return Entry{}, err
	}

	m.mu.Lock()
	for _, e := range m.entries[category] {
		if e.Content == content {
			m.mu.Unlock()
			return e, nil
		}
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.entries[category] = append(m.entries[category], entry)
	m.mu.Unlock()

	return entry, m.save()
}

// Delete forgets the entry with the given ID. It reports whether an
// entry was removed.
func (m *Memory) Delete(category Category, id string) (bool, error) {
	m.mu.Lock()
	entries := m.entries[category]
	removed := false
	for i, e := range entries {
		if e.ID == id {
			m.entries[category] = append(entries[:i:i], entries[i+1:]...)
			removed = true
			break
		}
	}
	m.mu.Unlock()

	if !removed {
		return false, nil
	}
	return true, m.save()
}

// DeleteByContent forgets the first entry in the category whose content
// matches exactly. Tool calls usually reference entries by their text.
func (m *Memory) DeleteByContent(category Category, content string) (bool, error) {
	content = strings.TrimSpace(content)

	m.mu.RLock()
	id := ""
	for _, e := range m.entries[category] {
		if e.Content == content {
			id = e.ID
			break
		}
	}
	m.mu.RUnlock()

	if id == "" {
		return false, nil
	}
	return m.Delete(category, id)
}

// Entries returns the entries of one category in insertion order.
func (m *Memory) Entries(category Category) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries[category]))
	copy(out, m.entries[category])
	return out
}

// Count returns the total number of entries across all categories.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, entries := range m.entries {
		n += len(entries)
	}
	return n
}

// Render formats the whole memory for inclusion in a system message.
// Empty categories are omitted; a completely empty memory renders as
// an explicit "no entries" line so the model knows the feature exists.
func (m *Memory) Render() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	for _, category := range Categories() {
		entries := m.entries[category]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", category)
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s\n", e.Content)
		}
	}
	if b.Len() == 0 {
		return "(no entries yet)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// Clear removes all entries and persists the empty state.
func (m *Memory) Clear() error {
	m.mu.Lock()
	m.entries = make(map[Category][]Entry)
	m.mu.Unlock()
	return m.save()
}

func (m *Memory) save() error {
	if m.store == nil {
		return nil
	}

	m.mu.RLock()
	data, err := json.MarshalIndent(m.entries, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	return m.store.Put(storeKey, data)
}

func (m *Memory) load() error {
	if m.store == nil {
		return nil
	}

	data, err := m.store.Get(storeKey)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	loaded := make(map[Category][]Entry)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("memory: corrupt persisted state: %w", err)
	}

	m.mu.Lock()
	m.entries = loaded
	m.mu.Unlock()
	return nil
}
