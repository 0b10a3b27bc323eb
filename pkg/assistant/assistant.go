// Package assistant orchestrates a full response turn: it streams the
// model's reply, fans chunks out to the transcript and the speech
// queue, runs tool rounds and persists the finished conversation.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/calendar"
	"github.com/stippi/go-voice-assistant/pkg/chat"
	"github.com/stippi/go-voice-assistant/pkg/completion"
	"github.com/stippi/go-voice-assistant/pkg/memory"
	"github.com/stippi/go-voice-assistant/pkg/music"
	"github.com/stippi/go-voice-assistant/pkg/speech"
	"github.com/stippi/go-voice-assistant/pkg/timers"
	"github.com/stippi/go-voice-assistant/pkg/tools"
)

// maxIterations bounds one turn's completion requests. Tool rounds and
// retries after empty replies share the same budget; exhausting it ends
// the turn quietly.
const maxIterations = 4

// placeholderText stands in for a user message whose transcription came
// back empty.
const placeholderText = "…"

// Speech is the playback surface the orchestrator drives for audible
// turns.
type Speech interface {
	AddText(text string)
	FinalizePlayback()
	Stop()
}

var _ Speech = (*speech.Queue)(nil)

// Config holds the orchestrator's dependencies. Completion and Chats
// are required; everything else degrades gracefully when absent.
type Config struct {
	Completion completion.Service
	Chats      *chat.Store
	Registry   *tools.Registry
	Memory     *memory.Memory
	Timers     *timers.Manager
	Music      *music.Controller
	Calendar   calendar.API

	// Persona is the leading part of every system message.
	Persona string

	// Location is reported to the model in every system message.
	Location string

	// Now supplies the current time; defaults to time.Now.
	Now func() time.Time

	// OnTranscript receives the full message list after every change,
	// including partial assistant messages during streaming.
	OnTranscript func(chatID string, messages []chat.Message)

	// OnResponding reports when a turn starts and ends.
	OnResponding func(active bool)

	Logger *slog.Logger
}

// Assistant runs response turns one at a time.
type Assistant struct {
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	speech        Speech
	responding    bool
	audible       bool
	turnCancel    context.CancelFunc
	announcements []string
}

// New creates an orchestrator. Attach the speech queue afterwards with
// AttachSpeech so its completion callback can point back at TTSDrained.
func New(cfg Config) (*Assistant, error) {
	if cfg.Completion == nil {
		return nil, fmt.Errorf("assistant: completion service is required")
	}
	if cfg.Chats == nil {
		return nil, fmt.Errorf("assistant: chat store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "assistant"),
	}, nil
}

// AttachSpeech wires the playback queue used for audible turns.
func (a *Assistant) AttachSpeech(s Speech) {
	a.mu.Lock()
	a.speech = s
	a.mu.Unlock()
}

// Responding reports whether a turn is currently in flight.
func (a *Assistant) Responding() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.responding
}

// SendMessage runs one response turn for the given chat. An empty chat
// ID continues the current chat, creating one if necessary. The turn is
// ignored while another is in flight. Empty user text records a
// placeholder message without asking the model anything. The returned
// ID names the chat the message landed in.
func (a *Assistant) SendMessage(ctx context.Context, chatID, text string, audible bool) (string, error) {
	a.mu.Lock()
	if a.responding {
		a.mu.Unlock()
		a.logger.Debug("ignoring message, turn already in flight")
		return chatID, nil
	}
	a.responding = true
	a.audible = audible
	spk := a.speech
	a.mu.Unlock()
	a.notifyResponding(true)

	if audible && spk == nil {
		audible = false
	}

	current, err := a.loadOrCreate(chatID)
	if err != nil {
		a.clearResponding()
		return "", err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		current.Messages = append(current.Messages, chat.NewUserMessage(placeholderText))
		a.publish(current)
		if err := a.cfg.Chats.Save(current); err != nil {
			a.logger.Error("saving chat failed", "error", err)
		}
		a.clearResponding()
		return current.ID, nil
	}

	current.Messages = append(current.Messages, chat.NewUserMessage(trimmed))
	a.publish(current)
	userIndex := len(current.Messages) - 1

	turnCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.turnCancel = cancel
	a.mu.Unlock()
	defer func() {
		cancel()
		a.mu.Lock()
		a.turnCancel = nil
		a.mu.Unlock()
	}()

	var (
		success   bool
		canceled  bool
		abandoned bool
	)

	for iteration := 0; iteration < maxIterations; iteration++ {
		request := &completion.Request{
			Messages: append([]chat.Message{a.systemMessage()}, current.Messages...),
		}
		if a.cfg.Registry != nil {
			request.Tools = a.cfg.Registry.Definitions()
		}

		var partial strings.Builder
		// The streaming snapshot is the history plus one growing
		// assistant message; ReplaceLast swaps the partial in without
		// mutating the slice concurrent readers hold.
		base := append(append([]chat.Message{}, current.Messages...), chat.Message{})
		msg, err := a.cfg.Completion.GetStreamedMessage(turnCtx, request, func(delta string) bool {
			if turnCtx.Err() != nil {
				return false
			}
			partial.WriteString(delta)
			a.publishMessages(current.ID,
				chat.ReplaceLast(base, chat.NewAssistantMessage(partial.String())))
			if audible {
				spk.AddText(delta)
			}
			return true
		})

		if err != nil {
			if errors.Is(err, context.Canceled) || turnCtx.Err() != nil {
				canceled = true
				if partial.Len() > 0 {
					current.Messages = append(current.Messages, chat.NewAssistantMessage(partial.String()))
					a.publish(current)
					success = true
				}
				break
			}
			// Transport or API failure: drop the turn and the user
			// message with it.
			a.logger.Error("completion failed, abandoning turn", "error", err)
			current.Messages = current.Messages[:userIndex]
			a.publish(current)
			abandoned = true
			break
		}

		if msg == nil || (strings.TrimSpace(msg.Content) == "" && len(msg.ToolCalls) == 0) {
			a.logger.Warn("model returned an empty message, retrying",
				"iteration", iteration+1)
			continue
		}

		current.Messages = append(current.Messages, *msg)
		a.publish(current)

		if len(msg.ToolCalls) == 0 {
			success = true
			break
		}

		for _, call := range msg.ToolCalls {
			result := a.callTool(turnCtx, call)
			current.Messages = append(current.Messages,
				chat.NewToolMessage(call.ID, call.Function.Name, result))
		}
		a.publish(current)
	}

	if !success && !canceled && !abandoned {
		a.logger.Warn("giving up on turn after repeated attempts",
			"iterations", maxIterations)
	}

	if success {
		if err := a.cfg.Chats.Save(current); err != nil {
			a.logger.Error("saving chat failed", "error", err)
		}
	}

	switch {
	case !audible:
		a.clearResponding()
	case canceled || abandoned:
		// Cancel already stopped playback for the canceled case; an
		// abandoned turn may still have queued audio to discard. Either
		// way the queue's completion callback clears the flag.
		if abandoned {
			spk.Stop()
		}
	default:
		spk.FinalizePlayback()
	}

	return current.ID, nil
}

// Cancel aborts the in-flight turn, if any. Playback fades out and the
// speech completion callback still fires.
func (a *Assistant) Cancel() {
	a.mu.Lock()
	responding := a.responding
	audible := a.audible
	cancel := a.turnCancel
	spk := a.speech
	a.mu.Unlock()

	if !responding {
		return
	}
	if cancel != nil {
		cancel()
	}
	if audible && spk != nil {
		spk.Stop()
	}
}

// TTSDrained is the speech queue's completion callback. It ends the
// audible part of a turn.
func (a *Assistant) TTSDrained() {
	a.clearResponding()
}

// Announce speaks a short out-of-band message, such as a timer going
// off. While a turn is in flight the announcement is held back and
// spoken after the turn's playback drains, so it never shares the
// turn's segmenter buffer or completion callback.
func (a *Assistant) Announce(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	a.mu.Lock()
	spk := a.speech
	if spk == nil {
		a.mu.Unlock()
		return
	}
	if a.responding {
		a.announcements = append(a.announcements, text)
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	spk.AddText(text)
	spk.FinalizePlayback()
}

func (a *Assistant) callTool(ctx context.Context, call chat.ToolCall) string {
	if a.cfg.Registry == nil {
		return fmt.Sprintf(`{"error": "unknown function '%s'"}`, call.Function.Name)
	}
	a.logger.Info("executing tool call",
		"tool", call.Function.Name,
		"arguments", call.Function.Arguments)
	return a.cfg.Registry.Call(ctx, call.Function.Name, call.Function.Arguments)
}

func (a *Assistant) loadOrCreate(chatID string) (*chat.Chat, error) {
	if chatID == "" {
		if id, err := a.cfg.Chats.CurrentID(); err == nil && id != "" {
			chatID = id
		}
	}
	if chatID != "" {
		current, err := a.cfg.Chats.Load(chatID)
		if err == nil {
			return current, nil
		}
		a.logger.Warn("chat not found, starting a new one", "id", chatID, "error", err)
	}
	return a.cfg.Chats.Create("")
}

func (a *Assistant) publish(c *chat.Chat) {
	a.publishMessages(c.ID, append([]chat.Message{}, c.Messages...))
}

func (a *Assistant) publishMessages(chatID string, messages []chat.Message) {
	if a.cfg.OnTranscript != nil {
		a.cfg.OnTranscript(chatID, messages)
	}
}

func (a *Assistant) clearResponding() {
	a.mu.Lock()
	wasResponding := a.responding
	a.responding = false
	pending := a.announcements
	a.announcements = nil
	spk := a.speech
	a.mu.Unlock()
	if wasResponding {
		a.notifyResponding(false)
	}
	if len(pending) > 0 && spk != nil {
		for _, text := range pending {
			spk.AddText(text + " ")
		}
		spk.FinalizePlayback()
	}
}

func (a *Assistant) notifyResponding(active bool) {
	if a.cfg.OnResponding != nil {
		a.cfg.OnResponding(active)
	}
}
