package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

const (
	localsUserID = "user_id"
	localsRole   = "role"
)

// requireAuth validates the bearer token and stashes the caller identity.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	userID, role, err := s.services.Auth.ValidateToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	c.Locals(localsUserID, userID)
	c.Locals(localsRole, role)
	return c.Next()
}

func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if role, _ := c.Locals(localsRole).(string); role != domain.RoleAdmin {
		return fiber.NewError(fiber.StatusForbidden, "admin only")
	}
	return c.Next()
}

func currentUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(localsUserID).(uuid.UUID)
	return id
}
