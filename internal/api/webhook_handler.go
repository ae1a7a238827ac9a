package api

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/crmhawkins/comurban-sub001/internal/elevenlabs"
	"github.com/crmhawkins/comurban-sub001/internal/settings"
)

// handleWhatsAppVerify answers the Cloud API subscription handshake: echo the
// challenge when the verify token matches.
func (s *Server) handleWhatsAppVerify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	expected := s.services.Settings.Get(c.Context(), settings.KeyWhatsAppVerifyToken, s.cfg.WhatsAppVerifyToken)
	if mode == "subscribe" && token != "" && token == expected {
		log.Printf("[Webhook] whatsapp subscription verified")
		return c.SendString(challenge)
	}
	return fiber.NewError(fiber.StatusForbidden, "verification failed")
}

// handleWhatsAppWebhook acknowledges fast and always with 200 once the event
// is durably recorded; the provider retries on anything else and a processing
// bug must not cause an unbounded redelivery storm.
func (s *Server) handleWhatsAppWebhook(c *fiber.Ctx) error {
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	if err := s.services.Webhook.ProcessWhatsApp(c.Context(), body); err != nil {
		log.Printf("[Webhook] whatsapp processing error: %v", err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// handleElevenLabsWebhook verifies the HMAC signature before anything touches
// state. An unverifiable request gets 401 and leaves no trace.
func (s *Server) handleElevenLabsWebhook(c *fiber.Ctx) error {
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	signature := c.Get("ElevenLabs-Signature")
	if err := elevenlabs.VerifySignature(s.cfg.ElevenLabsWebhookSecret, signature, body); err != nil {
		log.Printf("[Webhook] elevenlabs signature rejected: %v", err)
		return fiber.NewError(fiber.StatusUnauthorized, "invalid signature")
	}

	if err := s.services.Webhook.ProcessCallEvent(c.Context(), body); err != nil {
		log.Printf("[Webhook] call event processing error: %v", err)
	}
	return c.SendStatus(fiber.StatusOK)
}
