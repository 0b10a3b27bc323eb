// Voice assistant backend: streaming chat completion, sentence-level
// TTS playback and function calling behind a small HTTP/websocket API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/stippi/go-voice-assistant/internal/log"
	"github.com/stippi/go-voice-assistant/pkg/assistant"
	"github.com/stippi/go-voice-assistant/pkg/calendar"
	"github.com/stippi/go-voice-assistant/pkg/chat"
	"github.com/stippi/go-voice-assistant/pkg/completion"
	"github.com/stippi/go-voice-assistant/pkg/memory"
	"github.com/stippi/go-voice-assistant/pkg/music"
	"github.com/stippi/go-voice-assistant/pkg/server"
	"github.com/stippi/go-voice-assistant/pkg/speech"
	"github.com/stippi/go-voice-assistant/pkg/store"
	"github.com/stippi/go-voice-assistant/pkg/timers"
	"github.com/stippi/go-voice-assistant/pkg/tools"
	"github.com/stippi/go-voice-assistant/pkg/tts"
)

type options struct {
	port      string
	dbPath    string
	staticDir string
	location  string

	provider string
	model    string

	ttsBackend string
	ttsVoice   string
	playback   string

	debug bool
}

func main() {
	opts := parseFlags()
	log.Init(opts.debug)
	logger := log.L()

	kv, err := store.OpenSQLite(opts.dbPath)
	if err != nil {
		logger.Error("cannot open database", "path", opts.dbPath, "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	chats := chat.NewStore(kv)

	mem, err := memory.NewWithStore(kv)
	if err != nil {
		logger.Error("cannot load memory", "error", err)
		os.Exit(1)
	}

	timerMgr := timers.NewManager(logger)
	defer timerMgr.Close()

	musicCtrl := music.NewController(logger)

	completionSvc, err := newCompletion(opts, logger)
	if err != nil {
		logger.Error("cannot create completion service", "error", err)
		os.Exit(1)
	}
	defer completionSvc.Close()

	synth, err := newSynthesizer(opts, logger)
	if err != nil {
		logger.Error("cannot create TTS service", "error", err)
		os.Exit(1)
	}
	defer synth.Close()

	registry := tools.NewRegistry(logger)
	mustRegister(logger, registry, tools.TimerTools(timerMgr))
	mustRegister(logger, registry, tools.MemoryTools(mem))
	mustRegister(logger, registry, tools.MusicTools(musicCtrl))

	var gcal *calendar.Client
	if clientID := os.Getenv("GOOGLE_CLIENT_ID"); clientID != "" {
		gcal, err = calendar.NewClient(calendar.Config{
			ClientID:     clientID,
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  "http://localhost:" + opts.port + "/api/calendar/callback",
			Store:        kv,
			Logger:       logger,
		})
		if err != nil {
			logger.Error("cannot create calendar client", "error", err)
			os.Exit(1)
		}
		mustRegister(logger, registry, calendar.Tools(gcal))
	}

	// The server is created after the assistant but publishes its
	// transcript events, hence the indirection.
	var srv *server.Server

	assistantCfg := assistant.Config{
		Completion: completionSvc,
		Chats:      chats,
		Registry:   registry,
		Memory:     mem,
		Timers:     timerMgr,
		Music:      musicCtrl,
		Location:   opts.location,
		Logger:     logger,
		OnTranscript: func(chatID string, messages []chat.Message) {
			if srv != nil {
				srv.PublishTranscript(chatID, messages)
			}
		},
		OnResponding: func(active bool) {
			if srv != nil {
				srv.PublishResponding(active)
			}
		},
	}
	if gcal != nil {
		assistantCfg.Calendar = gcal
	}
	orchestrator, err := assistant.New(assistantCfg)
	if err != nil {
		logger.Error("cannot create assistant", "error", err)
		os.Exit(1)
	}

	player := speech.NewExecPlayer(opts.playback, logger)
	queue := speech.NewQueue(synth, player,
		speech.WithDucker(musicCtrl),
		speech.WithLogger(logger),
		speech.WithOnComplete(orchestrator.TTSDrained))
	orchestrator.AttachSpeech(queue)

	timerMgr.OnExpired = func(t timers.Timer) {
		label := t.Label
		if label == "" {
			label = "Your timer"
		}
		orchestrator.Announce(label + " is done.")
	}

	srv = server.New(server.Config{
		Port:      opts.port,
		Assistant: orchestrator,
		Chats:     chats,
		Calendar:  gcal,
		StaticDir: opts.staticDir,
		Logger:    logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		orchestrator.Cancel()
		if err := srv.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}

func parseFlags() options {
	var opts options

	home, _ := os.UserHomeDir()
	defaultDB := filepath.Join(home, ".voice-assistant", "assistant.db")

	flag.StringVar(&opts.port, "port", "8080", "HTTP port")
	flag.StringVar(&opts.dbPath, "db", defaultDB, "SQLite database path")
	flag.StringVar(&opts.staticDir, "static", "", "Directory with the browser client (optional)")
	flag.StringVar(&opts.location, "location", "", "Location reported to the model, e.g. 'Berlin'")
	flag.StringVar(&opts.provider, "provider", "openai", "Completion provider: openai, anthropic, vertex, ollama")
	flag.StringVar(&opts.model, "model", "", "Model ID (provider default when empty)")
	flag.StringVar(&opts.ttsBackend, "tts", "openai", "TTS backend: openai, elevenlabs, elevenlabs-ws")
	flag.StringVar(&opts.ttsVoice, "tts-voice", "", "Voice ID for ElevenLabs")
	flag.StringVar(&opts.playback, "playback", "", "Audio playback command (default aplay)")
	flag.BoolVar(&opts.debug, "debug", false, "Enable verbose debug logging")
	flag.Parse()

	if opts.ttsVoice == "" {
		opts.ttsVoice = os.Getenv("ELEVENLABS_VOICE_ID")
	}
	return opts
}

func newCompletion(opts options, logger *slog.Logger) (completion.Service, error) {
	common := []completion.Option{completion.WithLogger(logger)}
	if opts.model != "" {
		common = append(common, completion.WithModelID(opts.model))
	}

	switch opts.provider {
	case "anthropic":
		common = append(common,
			completion.WithCompatibility(completion.CompatibilityAnthropic),
			completion.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
		if opts.model == "" {
			common = append(common, completion.WithModelID("claude-sonnet-4-20250514"))
		}
	case "vertex":
		common = append(common,
			completion.WithCompatibility(completion.CompatibilityVertexAI),
			completion.WithVertexProject(os.Getenv("GOOGLE_CLOUD_PROJECT"), os.Getenv("GOOGLE_CLOUD_REGION")),
			completion.WithAPIKey(os.Getenv("GOOGLE_CLOUD_ACCESS_TOKEN")))
		if opts.model == "" {
			common = append(common, completion.WithModelID("gemini-2.0-flash"))
		}
	case "ollama":
		common = append(common,
			completion.WithCompatibility(completion.CompatibilityOllama))
		if opts.model == "" {
			common = append(common, completion.WithModelID("llama3.1"))
		}
	default:
		common = append(common,
			completion.WithCompatibility(completion.CompatibilityOpenAI),
			completion.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
	}

	return completion.NewService(common...)
}

func newSynthesizer(opts options, logger *slog.Logger) (tts.Synthesizer, error) {
	switch opts.ttsBackend {
	case "elevenlabs":
		ttsOpts := []tts.Option{
			tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
			tts.WithLogger(logger),
		}
		if opts.ttsVoice != "" {
			ttsOpts = append(ttsOpts, tts.WithVoice(opts.ttsVoice))
		}
		return tts.NewElevenLabs(ttsOpts...)
	case "elevenlabs-ws":
		ttsOpts := []tts.Option{
			tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
			tts.WithLogger(logger),
		}
		if opts.ttsVoice != "" {
			ttsOpts = append(ttsOpts, tts.WithVoice(opts.ttsVoice))
		}
		return tts.NewElevenLabsWS(ttsOpts...)
	default:
		return tts.NewOpenAI(
			tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
			tts.WithLogger(logger))
	}
}

func mustRegister(logger *slog.Logger, registry *tools.Registry, defs []tools.Definition) {
	if err := registry.RegisterAll(defs); err != nil {
		logger.Error("tool registration failed", "error", err)
		os.Exit(1)
	}
}
