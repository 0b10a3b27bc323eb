package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsWSBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"

// ElevenLabsWS implements Synthesizer over the ElevenLabs stream-input
// WebSocket. Each Synthesize call opens a connection, streams the text,
// and collects the audio chunks the server generates while it is still
// reading. For sentence-sized inputs this cuts time to first byte
// compared to the HTTP endpoint.
type ElevenLabsWS struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
	dialer  *websocket.Dialer
}

// NewElevenLabsWS creates a WebSocket-based ElevenLabs backend.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelFlashV2_5
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsWSBaseURL
	}

	return &ElevenLabsWS{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.elevenlabs_ws"),
		baseURL: baseURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// Synthesize streams text over the WebSocket and returns the collected
// audio.
func (e *ElevenLabsWS) Synthesize(ctx context.Context, text string) (*Result, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.baseURL, e.config.VoiceID, e.config.ModelID, e.config.OutputFormat)

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	conn, resp, err := e.dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, WrapError(providerElevenLabs,
				fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err))
		}
		return nil, WrapError(providerElevenLabs, fmt.Errorf("websocket dial failed: %w", err))
	}
	defer conn.Close()

	// Break off reading when the caller gives up.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	settings := map[string]interface{}{
		"stability":        e.config.VoiceSettings.Stability,
		"similarity_boost": e.config.VoiceSettings.SimilarityBoost,
	}
	if e.config.Speed > 0 && e.config.Speed != 1.0 {
		settings["speed"] = e.config.Speed
	}

	// Begin-of-stream, text, end-of-stream. The leading space primes
	// the generation pipeline.
	frames := []map[string]interface{}{
		{
			"text":           " ",
			"voice_settings": settings,
			"generation_config": map[string]interface{}{
				"chunk_length_schedule": []int{120, 160, 250, 290},
			},
		},
		{"text": text + " "},
		{"text": ""},
	}
	for _, frame := range frames {
		if err := conn.WriteJSON(frame); err != nil {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("send frame: %w", err))
		}
	}

	var audio bytes.Buffer
	deadline := time.Now().Add(e.config.StreamTimeout)
	conn.SetReadDeadline(deadline)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return nil, WrapError(providerElevenLabs, fmt.Errorf("read audio: %w", err))
		}

		var frame struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"isFinal"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(message, &frame); err != nil {
			e.logger.Warn("failed to parse frame", "error", err)
			continue
		}
		if frame.Error != "" {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("server error: %s", frame.Error))
		}
		if frame.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				e.logger.Warn("failed to decode audio", "error", err)
				continue
			}
			audio.Write(chunk)
		}
		if frame.IsFinal {
			break
		}
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", audio.Len(),
		"latency_ms", latency,
		"model", e.config.ModelID,
	)

	return &Result{
		Audio:     audio.Bytes(),
		Format:    e.outputFormat(),
		Duration:  pcmDuration(audio.Len(), e.config.OutputFormat),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Close releases resources. Connections are per-call, so there is
// nothing persistent to tear down.
func (e *ElevenLabsWS) Close() error {
	return nil
}

// VoiceID returns the configured voice ID.
func (e *ElevenLabsWS) VoiceID() string {
	return e.config.VoiceID
}

func (e *ElevenLabsWS) outputFormat() AudioFormat {
	return AudioFormat{
		Encoding:   e.config.OutputFormat,
		SampleRate: SampleRateFromEncoding(e.config.OutputFormat),
		Channels:   1,
		BitDepth:   16,
	}
}

// Verify ElevenLabsWS implements Synthesizer at compile time.
var _ Synthesizer = (*ElevenLabsWS)(nil)
