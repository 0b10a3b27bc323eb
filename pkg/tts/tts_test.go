package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAISynthesize(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte("fake-pcm-audio"))
	}))
	defer server.Close()

	synth, err := NewOpenAI(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithVoice(VoiceNova),
		WithSpeed(1.25),
	)
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	defer synth.Close()

	result, err := synth.Synthesize(context.Background(), "Hello.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if string(result.Audio) != "fake-pcm-audio" {
		t.Errorf("Audio = %q", result.Audio)
	}
	if result.CharCount != 6 {
		t.Errorf("CharCount = %d, want 6", result.CharCount)
	}
	if gotPayload["voice"] != "nova" {
		t.Errorf("payload voice = %v", gotPayload["voice"])
	}
	if gotPayload["speed"] != 1.25 {
		t.Errorf("payload speed = %v, want 1.25", gotPayload["speed"])
	}
	if gotPayload["input"] != "Hello." {
		t.Errorf("payload input = %v", gotPayload["input"])
	}
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI()
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("NewOpenAI() error = %v, want ErrNoAPIKey", err)
	}
}

func TestOpenAIErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid key","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	synth, _ := NewOpenAI(WithAPIKey("bad"), WithBaseURL(server.URL))
	defer synth.Close()

	_, err := synth.Synthesize(context.Background(), "test")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.Code != "invalid_api_key" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		w.Write([]byte("fake-audio"))
	}))
	defer server.Close()

	synth, err := NewElevenLabs(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithVoice("voice-123"),
	)
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}
	defer synth.Close()

	result, err := synth.Synthesize(context.Background(), "Guten Tag.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != "fake-audio" {
		t.Errorf("Audio = %q", result.Audio)
	}
	if gotPayload["text"] != "Guten Tag." {
		t.Errorf("payload text = %v", gotPayload["text"])
	}
	if gotPayload["model_id"] != ModelFlashV2_5 {
		t.Errorf("payload model_id = %v", gotPayload["model_id"])
	}
}

func TestElevenLabsRequiresVoice(t *testing.T) {
	_, err := NewElevenLabs(WithAPIKey("key"))
	if !errors.Is(err, ErrNoVoiceID) {
		t.Errorf("NewElevenLabs error = %v, want ErrNoVoiceID", err)
	}
}

func TestMockRecordsCalls(t *testing.T) {
	mock := NewMock()

	result, err := mock.Synthesize(context.Background(), "Hello.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(result.Audio) != 6*960 {
		t.Errorf("Audio length = %d, want %d", len(result.Audio), 6*960)
	}
	if mock.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1", mock.CallCount())
	}
	if calls := mock.Calls(); calls[0].Text != "Hello." {
		t.Errorf("recorded text = %q", calls[0].Text)
	}

	mock.Reset()
	if mock.CallCount() != 0 {
		t.Errorf("CallCount after Reset = %d", mock.CallCount())
	}
}

func TestPCMDuration(t *testing.T) {
	// One second of 24kHz PCM16 is 48000 bytes.
	if d := pcmDuration(48000, EncodingPCM24); d.Seconds() != 1.0 {
		t.Errorf("pcmDuration = %v, want 1s", d)
	}
}
