package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/assistant"
	"github.com/stippi/go-voice-assistant/pkg/chat"
	"github.com/stippi/go-voice-assistant/pkg/completion"
	"github.com/stippi/go-voice-assistant/pkg/store"
)

func newTestServer(t *testing.T, mock *completion.Mock) (*Server, *chat.Store) {
	t.Helper()
	chats := chat.NewStore(store.NewMemoryStore())
	a, err := assistant.New(assistant.Config{
		Completion: mock,
		Chats:      chats,
	})
	if err != nil {
		t.Fatalf("creating assistant: %v", err)
	}
	return New(Config{
		Port:      "0",
		Assistant: a,
		Chats:     chats,
	}), chats
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, completion.NewMock())

	resp, body := doJSON(t, s, http.MethodGet, "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status map[string]any
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status["responding"] != false {
		t.Errorf("responding = %v", status["responding"])
	}
}

func TestSendMessageAccepted(t *testing.T) {
	s, chats := newTestServer(t, completion.WithResponses(
		completion.MockResponse{Content: "Hi!"},
	))

	resp, body := doJSON(t, s, http.MethodPost, "/api/messages",
		sendMessageRequest{Text: "hello"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	// The turn runs in the background; wait for persistence.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if infos, err := chats.LoadAll(); err == nil && len(infos) == 1 {
			loaded, err := chats.Load(infos[0].ID)
			if err == nil && len(loaded.Messages) == 2 {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("turn never persisted a chat")
}

func TestSendMessageRejectsBadBody(t *testing.T) {
	s, _ := newTestServer(t, completion.NewMock())

	req := httptest.NewRequest(http.MethodPost, "/api/messages",
		bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestChatEndpoints(t *testing.T) {
	s, chats := newTestServer(t, completion.NewMock())

	created, err := chats.Create("Groceries")
	if err != nil {
		t.Fatalf("creating chat: %v", err)
	}
	created.Messages = append(created.Messages, chat.NewUserMessage("hi"))
	if err := chats.Save(created); err != nil {
		t.Fatalf("saving chat: %v", err)
	}

	resp, body := doJSON(t, s, http.MethodGet, "/api/chats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var infos []chat.Info
	if err := json.Unmarshal(body, &infos); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(infos) != 1 || infos[0].Title != "Groceries" {
		t.Errorf("chat list = %+v", infos)
	}

	resp, body = doJSON(t, s, http.MethodGet, "/api/chats/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var loaded chat.Chat
	if err := json.Unmarshal(body, &loaded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(loaded.Messages) != 1 {
		t.Errorf("loaded messages = %+v", loaded.Messages)
	}

	resp, _ = doJSON(t, s, http.MethodGet, "/api/chats/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing chat status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, s, http.MethodDelete, "/api/chats/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if infos, _ := chats.LoadAll(); len(infos) != 0 {
		t.Errorf("chat not deleted: %+v", infos)
	}
}

func TestCancelEndpoint(t *testing.T) {
	s, _ := newTestServer(t, completion.NewMock())
	resp, _ := doJSON(t, s, http.MethodPost, "/api/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("cancel status = %d", resp.StatusCode)
	}
}
