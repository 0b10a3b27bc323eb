package completion

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/chat"
)

// Mock implements Service for testing.
type Mock struct {
	// GetStreamedMessageFunc is called when GetStreamedMessage is
	// invoked. When nil, Responses (or a canned reply) is used instead.
	GetStreamedMessageFunc func(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error)

	// Responses are played back in order across calls; the last one
	// repeats once the list is exhausted.
	Responses []MockResponse

	// ChunkSize splits streamed text into chunks of roughly this many
	// bytes, at rune boundaries. Zero delivers the text as one chunk.
	ChunkSize int

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu       sync.Mutex
	calls    []MockCall
	response int
}

// MockResponse scripts one reply.
type MockResponse struct {
	Content   string
	ToolCalls []chat.ToolCall
	Err       error
}

// MockCall records one GetStreamedMessage invocation.
type MockCall struct {
	Request *Request
	Time    time.Time
}

var _ Service = (*Mock)(nil)

// NewMock creates a mock that replies with a canned message.
func NewMock() *Mock {
	return &Mock{
		Responses: []MockResponse{{Content: "Mock response."}},
	}
}

// WithResponses creates a mock that plays back the given replies in order.
func WithResponses(responses ...MockResponse) *Mock {
	return &Mock{Responses: responses}
}

// WithError creates a mock whose calls always fail with err.
func WithError(err error) *Mock {
	return &Mock{Responses: []MockResponse{{Err: err}}}
}

// GetStreamedMessage records the call and plays back the next scripted
// response, chunking its content through onChunk.
func (m *Mock) GetStreamedMessage(ctx context.Context, req *Request, onChunk ChunkFunc) (*chat.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Request: req, Time: time.Now()})
	fn := m.GetStreamedMessageFunc
	var resp MockResponse
	if fn == nil {
		if len(m.Responses) == 0 {
			resp = MockResponse{Content: "Mock response."}
		} else {
			idx := min(m.response, len(m.Responses)-1)
			resp = m.Responses[idx]
			m.response++
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req, onChunk)
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	for _, delta := range m.chunks(resp.Content) {
		if ctx.Err() != nil {
			break
		}
		if onChunk != nil && !onChunk(delta) {
			break
		}
	}

	msg := chat.NewAssistantMessage(resp.Content)
	msg.ToolCalls = resp.ToolCalls
	return &msg, nil
}

// Close calls CloseFunc if set.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns all recorded invocations.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of recorded invocations.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and rewinds response playback.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.response = 0
}

func (m *Mock) chunks(text string) []string {
	if text == "" {
		return nil
	}
	if m.ChunkSize <= 0 {
		return []string{text}
	}
	var out []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if b.Len() >= m.ChunkSize {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
