package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "username and password required")
	}

	token, user, err := s.services.Auth.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	return c.JSON(fiber.Map{"token": token, "user": user})
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"user_id": currentUserID(c),
		"role":    c.Locals(localsRole),
	})
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	filter := domain.ConversationFilter{
		Status:     c.Query("status"),
		UnreadOnly: c.QueryBool("unread"),
		Search:     c.Query("search"),
		Limit:      c.QueryInt("limit", 50),
		Offset:     c.QueryInt("offset", 0),
	}
	if raw := c.Query("assigned_to"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid assigned_to")
		}
		filter.AssignedTo = &id
	}

	conversations, total, err := s.services.Conversation.List(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"conversations": conversations, "total": total})
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	conv, err := s.services.Conversation.Get(c.Context(), id)
	if err != nil {
		return err
	}
	if conv == nil {
		return fiber.NewError(fiber.StatusNotFound, "conversation not found")
	}
	return c.JSON(conv)
}

func (s *Server) handleGetMessages(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	messages, err := s.services.Conversation.Messages(c.Context(), id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": messages})
}

func (s *Server) handleReply(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msg, err := s.services.Conversation.Reply(c.Context(), id, currentUserID(c), req.Body)
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	if err := s.services.Conversation.MarkRead(c.Context(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAssign(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		UserID *uuid.UUID `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.services.Conversation.Assign(c.Context(), id, req.UserID); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleConversationStatus(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.services.Conversation.SetStatus(c.Context(), id, req.Status); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSetAI(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.services.Conversation.SetAIEnabled(c.Context(), id, req.Enabled); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListCalls(c *fiber.Ctx) error {
	filter := domain.CallFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Phone:    c.Query("phone"),
		Limit:    c.QueryInt("limit", 50),
		Offset:   c.QueryInt("offset", 0),
	}
	calls, total, err := s.services.Call.List(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"calls": calls, "total": total})
}

func (s *Server) handleGetCall(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	call, err := s.services.Call.Get(c.Context(), id)
	if err != nil {
		return err
	}
	if call == nil {
		return fiber.NewError(fiber.StatusNotFound, "call not found")
	}
	return c.JSON(call)
}

func (s *Server) handleListIncidents(c *fiber.Ctx) error {
	filter := domain.IncidentFilter{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Phone:  c.Query("phone"),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	incidents, total, err := s.services.Incident.List(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"incidents": incidents, "total": total})
}

func (s *Server) handleGetIncident(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	inc, err := s.services.Incident.Get(c.Context(), id)
	if err != nil {
		return err
	}
	if inc == nil {
		return fiber.NewError(fiber.StatusNotFound, "incident not found")
	}
	return c.JSON(inc)
}

func (s *Server) handleIncidentStatus(c *fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	inc, err := s.services.Incident.UpdateStatus(c.Context(), id, req.Status)
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(inc)
}

func (s *Server) handleListSettings(c *fiber.Ctx) error {
	// settings read bypasses the cache on purpose; admins want current values
	all, err := s.services.Settings.All(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"settings": all})
}

func (s *Server) handleSetSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.services.Settings.Set(c.Context(), key, req.Value); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleMediaURL exchanges a stored media key for a short-lived download URL.
func (s *Server) handleMediaURL(c *fiber.Ctx) error {
	if s.services.Media == nil {
		return fiber.NewError(fiber.StatusNotFound, "media storage not configured")
	}
	key := c.Query("key")
	if key == "" {
		return fiber.NewError(fiber.StatusBadRequest, "key required")
	}
	url, err := s.services.Media.PresignedURL(c.Context(), key, 15*time.Minute)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"url": url})
}

func parseIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}
