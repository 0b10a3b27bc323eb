package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stippi/go-voice-assistant/pkg/segment"
	"github.com/stippi/go-voice-assistant/pkg/tts"
)

// Config holds the playback queue configuration.
type Config struct {
	// Ducker is notified before and after a stretch of assistant speech.
	Ducker Ducker

	// FadeDuration bounds the volume fade when playback is stopped.
	FadeDuration time.Duration

	// OnComplete is invoked exactly once per turn, after the final
	// sentence finished playing (or playback was stopped).
	OnComplete func()

	Logger *slog.Logger
}

// Option configures the playback queue.
type Option func(*Config)

// WithDucker sets the audio ducking coordinator.
func WithDucker(d Ducker) Option {
	return func(c *Config) {
		c.Ducker = d
	}
}

// WithFadeDuration sets the stop fade-out interval.
func WithFadeDuration(d time.Duration) Option {
	return func(c *Config) {
		c.FadeDuration = d
	}
}

// WithOnComplete sets the per-turn completion callback.
func WithOnComplete(fn func()) Option {
	return func(c *Config) {
		c.OnComplete = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() *Config {
	return &Config{
		Ducker:       NopDucker{},
		FadeDuration: 300 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

type queueItem struct {
	text   string
	ready  chan struct{}
	result *tts.Result
	err    error
}

// Queue accepts streaming text, segments it into sentences, synthesizes
// each sentence concurrently and plays the audio back strictly in
// sentence order.
type Queue struct {
	synth  tts.Synthesizer
	player Player
	ducker Ducker
	fade   time.Duration
	logger *slog.Logger

	onComplete func()

	mu        sync.Mutex
	seg       *segment.Segmenter
	items     []*queueItem
	fetchCtx  context.Context
	fetchStop context.CancelFunc
	pumping   bool
	finalized bool
	stopped   bool
	fired     bool
}

// NewQueue creates a playback queue on top of the given synthesizer and
// player.
func NewQueue(synth tts.Synthesizer, player Player, opts ...Option) *Queue {
	cfg := DefaultQueueConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Ducker == nil {
		cfg.Ducker = NopDucker{}
	}
	return &Queue{
		synth:      synth,
		player:     player,
		ducker:     cfg.Ducker,
		fade:       cfg.FadeDuration,
		logger:     cfg.Logger.With("component", "speech"),
		onComplete: cfg.OnComplete,
		seg:        segment.New(),
	}
}

// AddText feeds a streamed text delta into the queue. Completed
// sentences are scheduled for synthesis immediately; the trailing
// portion stays buffered until more text arrives or FinalizePlayback is
// called. An empty delta is a no-op.
func (q *Queue) AddText(delta string) {
	if delta == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	// A new delta after a finished turn starts the next turn.
	q.fired = false
	q.stopped = false
	q.finalized = false
	for _, s := range q.seg.Feed(delta) {
		q.enqueueLocked(s.Content)
	}
}

// FinalizePlayback marks the end of the current turn's text. Any
// buffered remainder is flushed to synthesis regardless of terminating
// punctuation. The completion callback fires once all queued sentences
// finished playing, or immediately when nothing is pending.
func (q *Queue) FinalizePlayback() {
	q.mu.Lock()
	q.finalized = true
	for _, s := range q.seg.Flush() {
		q.enqueueLocked(s.Content)
	}
	idle := !q.pumping && len(q.items) == 0
	q.mu.Unlock()
	if idle {
		q.finish()
	}
}

// Stop aborts the current turn. In-flight synthesis calls are canceled,
// queued sentences are discarded and the currently playing audio fades
// out over the configured interval. The completion callback still fires.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	if tail := q.seg.Buffered(); tail != "" {
		q.logger.Debug("discarding unspoken text", "text", tail)
	}
	q.seg.Reset()
	if q.fetchStop != nil {
		q.fetchStop()
	}
	pumping := q.pumping
	q.mu.Unlock()

	q.player.FadeOut(q.fade)
	if !pumping {
		q.finish()
	}
}

// Pending reports how many sentences are queued but not yet played.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// enqueueLocked schedules one sentence for synthesis and makes sure the
// playback pump is running. Caller holds q.mu.
func (q *Queue) enqueueLocked(text string) {
	if q.fetchCtx == nil {
		q.fetchCtx, q.fetchStop = context.WithCancel(context.Background())
	}
	item := &queueItem{text: text, ready: make(chan struct{})}
	q.items = append(q.items, item)

	ctx := q.fetchCtx
	go func() {
		item.result, item.err = q.synth.Synthesize(ctx, text)
		close(item.ready)
	}()

	if !q.pumping {
		q.pumping = true
		go q.pump()
	}
}

// pump plays queued sentences one after another. Each item carries a
// ready channel closed by its synthesis goroutine; waiting on the head
// item's channel is what keeps playback in detection order even when a
// later synthesis call resolves first.
func (q *Queue) pump() {
	q.ducker.Duck()
	for {
		q.mu.Lock()
		if q.stopped {
			q.items = nil
		}
		if len(q.items) == 0 {
			q.pumping = false
			done := q.finalized || q.stopped
			q.mu.Unlock()
			q.ducker.Restore()
			if done {
				q.finish()
			}
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		ctx := q.fetchCtx
		q.mu.Unlock()

		<-item.ready

		q.mu.Lock()
		stopped := q.stopped
		q.mu.Unlock()
		if stopped {
			continue
		}
		if item.err != nil {
			q.logger.Warn("synthesis failed, skipping sentence",
				"error", item.err,
				"text", item.text)
			continue
		}
		if err := q.player.Play(ctx, item.result); err != nil {
			q.logger.Warn("playback failed", "error", err)
		}
	}
}

// finish fires the completion callback at most once per turn and resets
// the queue for the next one.
func (q *Queue) finish() {
	q.mu.Lock()
	if q.fired {
		q.mu.Unlock()
		return
	}
	q.fired = true
	q.seg.Reset()
	q.items = nil
	q.finalized = false
	q.stopped = false
	if q.fetchStop != nil {
		q.fetchStop()
	}
	q.fetchCtx = nil
	q.fetchStop = nil
	cb := q.onComplete
	q.mu.Unlock()
	if cb != nil {
		cb()
	}
}
