package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/crmhawkins/comurban-sub001/internal/service"
	"github.com/crmhawkins/comurban-sub001/internal/ws"
	"github.com/crmhawkins/comurban-sub001/pkg/config"
)

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	services *service.Services
	hub      *ws.Hub
}

func NewServer(cfg *config.Config, services *service.Services, hub *ws.Hub) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "comurban",
		DisableStartupMessage: cfg.IsProduction(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	s := &Server{app: app, cfg: cfg, services: services, hub: hub}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Provider callbacks authenticate with their own mechanisms, not staff JWTs
	s.app.Get("/webhooks/whatsapp", s.handleWhatsAppVerify)
	s.app.Post("/webhooks/whatsapp", s.handleWhatsAppWebhook)
	s.app.Post("/webhooks/elevenlabs", s.handleElevenLabsWebhook)

	api := s.app.Group("/api")
	api.Post("/auth/login", s.handleLogin)

	protected := api.Group("", s.requireAuth)
	protected.Get("/me", s.handleMe)

	protected.Get("/conversations", s.handleListConversations)
	protected.Get("/conversations/:id", s.handleGetConversation)
	protected.Get("/conversations/:id/messages", s.handleGetMessages)
	protected.Post("/conversations/:id/messages", s.handleReply)
	protected.Post("/conversations/:id/read", s.handleMarkRead)
	protected.Put("/conversations/:id/assign", s.handleAssign)
	protected.Put("/conversations/:id/status", s.handleConversationStatus)
	protected.Put("/conversations/:id/ai", s.handleSetAI)

	protected.Get("/media", s.handleMediaURL)

	protected.Get("/calls", s.handleListCalls)
	protected.Get("/calls/:id", s.handleGetCall)

	protected.Get("/incidents", s.handleListIncidents)
	protected.Get("/incidents/:id", s.handleGetIncident)
	protected.Put("/incidents/:id/status", s.handleIncidentStatus)

	protected.Get("/settings", s.requireAdmin, s.handleListSettings)
	protected.Put("/settings/:key", s.requireAdmin, s.handleSetSetting)

	// Websocket upgrade; the token travels as a query param because browsers
	// cannot set headers on websocket connects
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if _, _, err := s.services.Auth.ValidateToken(token); err != nil {
			return fiber.ErrUnauthorized
		}
		return c.Next()
	})
	s.app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		s.hub.ServeClient(conn)
	}))
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
