// Package server exposes the assistant over HTTP: a small REST API for
// chats and control, plus a websocket event stream carrying transcript
// updates and state changes to the browser client.
package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/stippi/go-voice-assistant/pkg/assistant"
	"github.com/stippi/go-voice-assistant/pkg/calendar"
	"github.com/stippi/go-voice-assistant/pkg/chat"
	"github.com/stippi/go-voice-assistant/pkg/hub"
)

// Config holds the server dependencies.
type Config struct {
	Port      string
	Assistant *assistant.Assistant
	Chats     *chat.Store

	// Calendar enables the OAuth consent endpoints when set.
	Calendar *calendar.Client

	// StaticDir serves the browser client when non-empty.
	StaticDir string

	Logger *slog.Logger
}

// Server is the HTTP front of the assistant.
type Server struct {
	cfg    Config
	app    *fiber.App
	events *hub.Hub
	logger *slog.Logger
}

// New creates the server and registers all routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		events: hub.New("events", cfg.Logger),
		logger: cfg.Logger.With("component", "server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voice-assistant",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/messages", s.handleSendMessage)
	api.Post("/cancel", s.handleCancel)
	api.Get("/chats", s.handleListChats)
	api.Get("/chats/:id", s.handleGetChat)
	api.Delete("/chats/:id", s.handleDeleteChat)

	if cfg.Calendar != nil {
		api.Get("/calendar/auth", s.handleCalendarAuth)
		api.Get("/calendar/callback", s.handleCalendarCallback)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Listen starts the hub and serves until the listener fails.
func (s *Server) Listen() error {
	go s.events.Run()
	s.logger.Info("listening", "port", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown stops accepting connections and drains handlers.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// PublishTranscript pushes a transcript snapshot to all clients. Wire
// it into the assistant's OnTranscript callback.
func (s *Server) PublishTranscript(chatID string, messages []chat.Message) {
	s.events.Publish(hub.Event{
		Type: "transcript",
		Payload: fiber.Map{
			"chat_id":  chatID,
			"messages": messages,
		},
	})
}

// PublishResponding pushes turn state changes to all clients. Wire it
// into the assistant's OnResponding callback.
func (s *Server) PublishResponding(active bool) {
	s.events.Publish(hub.Event{
		Type:    "responding",
		Payload: fiber.Map{"active": active},
	})
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	client.Run()
}
