package server

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/stippi/go-voice-assistant/pkg/store"
)

type sendMessageRequest struct {
	ChatID  string `json:"chat_id"`
	Text    string `json:"text"`
	Audible bool   `json:"audible"`
}

// handleSendMessage kicks off a response turn. The turn runs in the
// background; transcript updates arrive over the event stream. A turn
// already in flight makes this a no-op.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if s.cfg.Assistant.Responding() {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "busy"})
	}

	go func() {
		if _, err := s.cfg.Assistant.SendMessage(context.Background(), req.ChatID, req.Text, req.Audible); err != nil {
			s.logger.Error("turn failed", "error", err)
		}
	}()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	s.cfg.Assistant.Cancel()
	return c.JSON(fiber.Map{"status": "canceled"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"responding": s.cfg.Assistant.Responding(),
		"clients":    s.events.ClientCount(),
	})
}

func (s *Server) handleListChats(c *fiber.Ctx) error {
	infos, err := s.cfg.Chats.LoadAll()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(infos)
}

func (s *Server) handleGetChat(c *fiber.Ctx) error {
	loaded, err := s.cfg.Chats.Load(c.Params("id"))
	if err != nil {
		if err == store.ErrNotFound {
			return fiber.NewError(fiber.StatusNotFound, "chat not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(loaded)
}

func (s *Server) handleDeleteChat(c *fiber.Ctx) error {
	if err := s.cfg.Chats.Delete(c.Params("id")); err != nil {
		if err == store.ErrNotFound {
			return fiber.NewError(fiber.StatusNotFound, "chat not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

func (s *Server) handleCalendarAuth(c *fiber.Ctx) error {
	return c.Redirect(s.cfg.Calendar.AuthURL("assistant"), fiber.StatusTemporaryRedirect)
}

func (s *Server) handleCalendarCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing authorization code")
	}
	if err := s.cfg.Calendar.HandleCallback(c.UserContext(), code); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.SendString("Calendar connected. You can close this tab.")
}
