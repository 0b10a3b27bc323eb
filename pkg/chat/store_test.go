package chat

import (
	"errors"
	"testing"

	"github.com/stippi/go-voice-assistant/pkg/store"
)

func TestStoreCreateAndLoad(t *testing.T) {
	s := NewStore(store.NewMemoryStore())

	chat, err := s.Create("New Chat")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if chat.ID == "" {
		t.Fatal("Create returned chat without ID")
	}

	current, err := s.CurrentID()
	if err != nil {
		t.Fatalf("CurrentID: %v", err)
	}
	if current != chat.ID {
		t.Errorf("CurrentID = %q, want %q", current, chat.ID)
	}

	chat.Messages = append(chat.Messages, NewUserMessage("hello"))
	if err := s.Save(chat); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(chat.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hello" {
		t.Errorf("loaded messages = %+v, want one user message %q", loaded.Messages, "hello")
	}
}

func TestStoreLoadAllOrdering(t *testing.T) {
	s := NewStore(store.NewMemoryStore())

	first, _ := s.Create("first")
	second, _ := s.Create("second")

	// Touching the first chat moves it to the top.
	if err := s.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	infos, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("LoadAll returned %d chats, want 2", len(infos))
	}
	if infos[0].ID != first.ID || infos[1].ID != second.ID {
		t.Errorf("LoadAll order = [%s %s], want [%s %s]",
			infos[0].Title, infos[1].Title, first.Title, second.Title)
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore(store.NewMemoryStore())

	chat, _ := s.Create("doomed")
	if err := s.Delete(chat.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.Load(chat.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.CurrentID(); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("CurrentID after deleting current chat error = %v, want ErrNotFound", err)
	}
	infos, _ := s.LoadAll()
	if len(infos) != 0 {
		t.Errorf("LoadAll after delete = %v, want empty", infos)
	}
}

func TestStoreLoadAllRecoversUnindexedChats(t *testing.T) {
	kv := store.NewMemoryStore()
	s := NewStore(kv)

	indexed, _ := s.Create("indexed")

	// A crash between the chat write and the index write leaves a chat
	// record without an index entry.
	orphan, err := s.Create("orphan")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := kv.Put("chats", []byte(`[{"id":"`+indexed.ID+`","title":"indexed"}]`)); err != nil {
		t.Fatalf("rewriting index: %v", err)
	}

	infos, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("LoadAll returned %d chats, want 2", len(infos))
	}
	found := false
	for _, info := range infos {
		if info.ID == orphan.ID {
			found = true
		}
	}
	if !found {
		t.Error("LoadAll dropped the unindexed chat")
	}
}

func TestReplaceLast(t *testing.T) {
	original := []Message{NewUserMessage("hi"), NewAssistantMessage("partial")}
	replacement := NewAssistantMessage("complete")

	updated := ReplaceLast(original, replacement)

	if original[1].Content != "partial" {
		t.Error("ReplaceLast modified the input slice")
	}
	if updated[1].Content != "complete" {
		t.Errorf("updated last = %q, want %q", updated[1].Content, "complete")
	}
	if len(updated) != 2 {
		t.Errorf("len(updated) = %d, want 2", len(updated))
	}
}
