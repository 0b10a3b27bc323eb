package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stippi/go-voice-assistant/pkg/store"
)

const (
	keyIndex   = "chats"
	keyCurrent = "current-chat-id"
	keyPrefix  = "chat:"
)

// Info summarizes a stored chat for listing.
type Info struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chat is a stored conversation.
type Chat struct {
	Info
	Messages []Message `json:"messages"`
}

// Store persists chats in a key-value store. Each chat lives under its own
// key, a separate index key lists all chats, and one key tracks the
// currently open chat. The keys are written independently, so a crash
// between writes can leave the index out of sync with the chat records;
// LoadAll tolerates dangling index entries.
type Store struct {
	kv store.Store
}

// NewStore creates a chat store backed by kv.
func NewStore(kv store.Store) *Store {
	return &Store{kv: kv}
}

// Create makes a new empty chat, adds it to the index, and marks it current.
func (s *Store) Create(title string) (*Chat, error) {
	now := time.Now()
	chat := &Chat{
		Info: Info{
			ID:        uuid.NewString(),
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := s.Save(chat); err != nil {
		return nil, err
	}
	if err := s.SetCurrent(chat.ID); err != nil {
		return nil, err
	}
	return chat, nil
}

// Save writes the chat record and updates the index entry.
func (s *Store) Save(chat *Chat) error {
	chat.UpdatedAt = time.Now()
	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encoding chat: %w", err)
	}
	if err := s.kv.Put(keyPrefix+chat.ID, data); err != nil {
		return fmt.Errorf("storing chat: %w", err)
	}

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	found := false
	for i := range index {
		if index[i].ID == chat.ID {
			index[i] = chat.Info
			found = true
			break
		}
	}
	if !found {
		index = append(index, chat.Info)
	}
	return s.saveIndex(index)
}

// Load returns the chat with the given ID.
func (s *Store) Load(id string) (*Chat, error) {
	data, err := s.kv.Get(keyPrefix + id)
	if err != nil {
		return nil, err
	}
	var chat Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("decoding chat %s: %w", id, err)
	}
	return &chat, nil
}

// LoadAll returns the chat index sorted by most recently updated first.
// Index entries whose chat record is missing are skipped, and chat
// records missing from the index (a crash can hit between the two
// writes) are picked back up.
func (s *Store) LoadAll() ([]Info, error) {
	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(index))
	indexed := make(map[string]bool, len(index))
	for _, info := range index {
		indexed[info.ID] = true
		if _, err := s.kv.Get(keyPrefix + info.ID); errors.Is(err, store.ErrNotFound) {
			continue
		}
		infos = append(infos, info)
	}
	keys, err := s.kv.Keys(keyPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		id := strings.TrimPrefix(key, keyPrefix)
		if indexed[id] {
			continue
		}
		chat, err := s.Load(id)
		if err != nil {
			continue
		}
		infos = append(infos, chat.Info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Delete removes the chat and its index entry. If the deleted chat was
// current, the current marker is cleared.
func (s *Store) Delete(id string) error {
	if err := s.kv.Delete(keyPrefix + id); err != nil {
		return err
	}
	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	filtered := index[:0]
	for _, info := range index {
		if info.ID != id {
			filtered = append(filtered, info)
		}
	}
	if err := s.saveIndex(filtered); err != nil {
		return err
	}
	if current, err := s.CurrentID(); err == nil && current == id {
		return s.kv.Delete(keyCurrent)
	}
	return nil
}

// CurrentID returns the ID of the currently open chat, or store.ErrNotFound.
func (s *Store) CurrentID() (string, error) {
	data, err := s.kv.Get(keyCurrent)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetCurrent marks the chat with the given ID as current.
func (s *Store) SetCurrent(id string) error {
	return s.kv.Put(keyCurrent, []byte(id))
}

func (s *Store) loadIndex() ([]Info, error) {
	data, err := s.kv.Get(keyIndex)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var index []Info
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decoding chat index: %w", err)
	}
	return index, nil
}

func (s *Store) saveIndex(index []Info) error {
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encoding chat index: %w", err)
	}
	return s.kv.Put(keyIndex, data)
}
