package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
	"github.com/crmhawkins/comurban-sub001/internal/elevenlabs"
	"github.com/crmhawkins/comurban-sub001/internal/queue"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
	"github.com/crmhawkins/comurban-sub001/internal/storage"
	"github.com/crmhawkins/comurban-sub001/internal/wacloud"
	"github.com/crmhawkins/comurban-sub001/internal/ws"
)

// Idempotency key kinds.
const (
	keyKindWaMessage = "wa_message"
	keyKindWaStatus  = "wa_status"
	keyKindCallEvent = "call_event"
)

// WebhookService is the ingestion core: it turns provider callbacks into
// contact, conversation, message and call state. Every mutation is guarded so
// replayed or concurrently delivered webhooks converge on the same state.
type WebhookService struct {
	repos    *repository.Repositories
	hub      *ws.Hub
	wa       *wacloud.Client
	media    *storage.MediaStore
	enqueuer queue.Enqueuer
}

func NewWebhookService(repos *repository.Repositories, hub *ws.Hub, wa *wacloud.Client, media *storage.MediaStore) *WebhookService {
	return &WebhookService{repos: repos, hub: hub, wa: wa, media: media}
}

// ProcessWhatsApp ingests one Cloud API webhook body. The raw payload is
// recorded before any interpretation; processing errors are noted on the
// event record but individual failures do not abort the rest of the batch.
func (s *WebhookService) ProcessWhatsApp(ctx context.Context, body []byte) error {
	messages, statuses, parseErr := wacloud.ParseEnvelope(body)

	eventType := domain.EventTypeWhatsAppMessage
	if len(messages) == 0 && len(statuses) > 0 {
		eventType = domain.EventTypeWhatsAppStatus
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		payload = map[string]interface{}{"raw": string(body)}
	}
	eventID, err := s.repos.WebhookEvent.Record(ctx, eventType, payload)
	if err != nil {
		return fmt.Errorf("recording webhook event: %w", err)
	}

	if parseErr != nil {
		s.repos.WebhookEvent.MarkFailed(ctx, eventID, parseErr.Error())
		return parseErr
	}

	var firstErr error
	for _, m := range messages {
		if err := s.ingestMessage(ctx, m); err != nil {
			log.Printf("[Webhook] message %s failed: %v", m.WaMessageID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, st := range statuses {
		if err := s.ingestStatus(ctx, st); err != nil {
			log.Printf("[Webhook] status for %s failed: %v", st.WaMessageID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		s.repos.WebhookEvent.MarkFailed(ctx, eventID, firstErr.Error())
		return firstErr
	}
	return s.repos.WebhookEvent.MarkProcessed(ctx, eventID)
}

func (s *WebhookService) ingestMessage(ctx context.Context, m wacloud.ParsedMessage) error {
	claimed, err := s.repos.Idempotency.Claim(ctx, keyKindWaMessage, m.WaMessageID)
	if err != nil {
		return fmt.Errorf("claiming message key: %w", err)
	}
	if !claimed {
		log.Printf("[Webhook] duplicate message %s ignored", m.WaMessageID)
		return nil
	}

	// A failure after the claim must give the key back, otherwise replaying
	// the recorded event would be a silent no-op.
	if err := s.storeInboundMessage(ctx, m); err != nil {
		s.releaseClaim(ctx, keyKindWaMessage, m.WaMessageID)
		return err
	}
	return nil
}

func (s *WebhookService) storeInboundMessage(ctx context.Context, m wacloud.ParsedMessage) error {
	var name *string
	if m.SenderName != "" {
		name = &m.SenderName
	}
	contact, err := s.repos.Contact.Upsert(ctx, m.From, NormalizePhone(m.From), name, nil)
	if err != nil {
		return fmt.Errorf("resolving contact: %w", err)
	}

	conv, err := s.ensureConversation(ctx, contact.ID)
	if err != nil {
		return err
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		WaMessageID:    m.WaMessageID,
		Direction:      domain.DirectionInbound,
		Type:           m.Type,
		Status:         domain.MessageStatusDelivered,
		WaTimestamp:    m.Timestamp,
	}
	if m.Body != "" {
		msg.Body = &m.Body
	}
	s.attachMedia(ctx, conv.ID, msg, m)

	inserted, err := s.repos.Message.Create(ctx, msg)
	if err != nil {
		return fmt.Errorf("storing message: %w", err)
	}
	if !inserted {
		return nil
	}

	if err := s.repos.Conversation.ApplyInbound(ctx, conv.ID, m.Timestamp); err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	s.publishConversation(ctx, conv.ID)

	if s.enqueuer != nil && !contact.IsBlocked {
		s.enqueue(ctx, queue.Job{Kind: queue.KindDetectIncident, SourceType: domain.SourceTypeWhatsApp, SourceID: conv.ID})
		if m.Type == domain.MessageTypeText {
			s.enqueue(ctx, queue.Job{Kind: queue.KindAutoReply, ConversationID: conv.ID})
		}
	}
	return nil
}

// ensureConversation finds or creates the contact's active conversation. On a
// create race the loser re-reads and adopts the winner's row.
func (s *WebhookService) ensureConversation(ctx context.Context, contactID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.repos.Conversation.GetActiveByContact(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv, err = s.repos.Conversation.Create(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv, err = s.repos.Conversation.GetActiveByContact(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("re-reading conversation after race: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation for contact %s vanished", contactID)
	}
	return conv, nil
}

// attachMedia pulls inbound media from the Cloud API into object storage.
// Best effort: a storage failure keeps the message, just without the copy.
func (s *WebhookService) attachMedia(ctx context.Context, conversationID uuid.UUID, msg *domain.Message, m wacloud.ParsedMessage) {
	if m.MediaMime != "" {
		msg.MediaMimetype = &m.MediaMime
	}
	if m.MediaID == "" || s.media == nil || s.wa == nil || !s.wa.Configured() {
		return
	}

	data, mime, err := s.wa.DownloadMedia(ctx, m.MediaID)
	if err != nil {
		log.Printf("[Webhook] media download for %s failed: %v", m.WaMessageID, err)
		return
	}
	key, err := s.media.SaveMessageMedia(ctx, conversationID, uuid.New(), data, mime)
	if err != nil {
		log.Printf("[Webhook] media store for %s failed: %v", m.WaMessageID, err)
		return
	}
	msg.MediaURL = &key
	msg.MediaMimetype = &mime
}

func (s *WebhookService) ingestStatus(ctx context.Context, st wacloud.ParsedStatus) error {
	key := fmt.Sprintf("%s:%s", st.WaMessageID, st.Status)
	claimed, err := s.repos.Idempotency.Claim(ctx, keyKindWaStatus, key)
	if err != nil {
		return fmt.Errorf("claiming status key: %w", err)
	}
	if !claimed {
		return nil
	}

	if err := s.applyStatus(ctx, st); err != nil {
		s.releaseClaim(ctx, keyKindWaStatus, key)
		return err
	}
	return nil
}

func (s *WebhookService) applyStatus(ctx context.Context, st wacloud.ParsedStatus) error {
	msg, err := s.repos.Message.GetByWaMessageID(ctx, st.WaMessageID)
	if err != nil {
		return fmt.Errorf("loading message: %w", err)
	}
	if msg == nil {
		// Status callbacks for messages we never stored carry nothing to
		// reconcile against, so they are dropped rather than queued.
		log.Printf("[Webhook] status %s for unknown message %s dropped", st.Status, st.WaMessageID)
		return nil
	}

	advanced, err := s.repos.Message.AdvanceStatus(ctx, st.WaMessageID, st.Status)
	if err != nil {
		return fmt.Errorf("advancing status: %w", err)
	}
	if !advanced {
		log.Printf("[Webhook] stale status %s for %s ignored (currently %s)", st.Status, st.WaMessageID, msg.Status)
		return nil
	}
	if st.Status == domain.MessageStatusFailed && st.ErrorText != "" {
		log.Printf("[Webhook] message %s failed at provider: %s", st.WaMessageID, st.ErrorText)
	}

	s.hub.Publish(ws.EventMessageStatus, map[string]interface{}{
		"wa_message_id":   st.WaMessageID,
		"conversation_id": msg.ConversationID,
		"status":          st.Status,
	})
	return nil
}

// ProcessCallEvent ingests one signature-verified voice provider event. The
// raw body is recorded before parsing so that even a malformed payload leaves
// an inspectable, replayable trace.
func (s *WebhookService) ProcessCallEvent(ctx context.Context, body []byte) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		payload = map[string]interface{}{"raw": string(body)}
	}
	eventID, err := s.repos.WebhookEvent.Record(ctx, domain.EventTypeCallLifecycle, payload)
	if err != nil {
		return fmt.Errorf("recording webhook event: %w", err)
	}

	event, err := elevenlabs.ParseEvent(body)
	if err != nil {
		s.repos.WebhookEvent.MarkFailed(ctx, eventID, err.Error())
		return err
	}

	key := fmt.Sprintf("%s:%s:%d", event.Data.ConversationID, event.Type, event.EventTimestamp)
	claimed, err := s.repos.Idempotency.Claim(ctx, keyKindCallEvent, key)
	if err != nil {
		s.repos.WebhookEvent.MarkFailed(ctx, eventID, err.Error())
		return fmt.Errorf("claiming call event key: %w", err)
	}
	if !claimed {
		log.Printf("[Webhook] duplicate call event %s ignored", key)
		return s.repos.WebhookEvent.MarkProcessed(ctx, eventID)
	}

	if err := s.applyCallEvent(ctx, event); err != nil {
		s.releaseClaim(ctx, keyKindCallEvent, key)
		s.repos.WebhookEvent.MarkFailed(ctx, eventID, err.Error())
		return err
	}
	return s.repos.WebhookEvent.MarkProcessed(ctx, eventID)
}

func (s *WebhookService) applyCallEvent(ctx context.Context, event elevenlabs.WebhookEvent) error {
	providerID := event.Data.ConversationID
	status := callStatusForEvent(event)

	call, err := s.repos.Call.GetByProviderID(ctx, providerID)
	if err != nil {
		return fmt.Errorf("loading call: %w", err)
	}
	if call == nil {
		if !establishesCall(event) {
			// Pure status callbacks for ids we never saw carry nothing worth
			// persisting; minting an empty row for them would leave phantom
			// calls with no phone and no transcript.
			log.Printf("[Webhook] %s event for unknown call %s dropped", event.Type, providerID)
			return nil
		}
		started := time.Unix(event.EventTimestamp, 0).UTC()
		call = &domain.Call{
			ElevenLabsCallID: providerID,
			Phone:            NormalizePhone(event.Data.CallerPhone()),
			Status:           domain.CallStatusPending,
			Category:         domain.CallCategoryDesconocido,
			Metadata:         event.Data.Metadata,
			StartedAt:        &started,
		}
		created, err := s.repos.Call.Create(ctx, call)
		if err != nil {
			return fmt.Errorf("creating call: %w", err)
		}
		if !created {
			// a concurrent create won; adopt the canonical row
			if call, err = s.repos.Call.GetByProviderID(ctx, providerID); err != nil || call == nil {
				return fmt.Errorf("re-reading call after race: %w", err)
			}
		}
	}

	if status != domain.CallStatusPending {
		var endedAt *time.Time
		if status == domain.CallStatusCompleted || status == domain.CallStatusFailed {
			t := time.Unix(event.EventTimestamp, 0).UTC()
			endedAt = &t
		}
		if _, err := s.repos.Call.AdvanceStatus(ctx, providerID, status, endedAt); err != nil {
			return fmt.Errorf("advancing call status: %w", err)
		}
	}

	analysis := event.Analysis
	if analysis == nil {
		analysis = event.Data.Analysis
	}
	var transcript, summary *string
	if t := event.Data.FlatTranscript(); t != "" {
		transcript = &t
	}
	if analysis != nil && analysis.TranscriptSummary != "" {
		summary = &analysis.TranscriptSummary
	}
	if transcript != nil || summary != nil {
		if err := s.repos.Call.SetTranscript(ctx, providerID, transcript, summary); err != nil {
			return fmt.Errorf("storing transcript: %w", err)
		}
	}

	if category := categorizeCall(transcript, summary); category != "" {
		if _, err := s.repos.Call.SetCategory(ctx, providerID, category); err != nil {
			return fmt.Errorf("setting category: %w", err)
		}
	}

	if to, kind := transferDetails(event.Data.Metadata); to != "" {
		if _, err := s.repos.Call.MarkTransferred(ctx, providerID, to, kind); err != nil {
			return fmt.Errorf("marking transfer: %w", err)
		}
	}

	updated, err := s.repos.Call.GetByProviderID(ctx, providerID)
	if err != nil || updated == nil {
		return fmt.Errorf("reloading call: %w", err)
	}
	s.hub.Publish(ws.EventCallUpdated, updated)

	if s.enqueuer != nil && updated.Status == domain.CallStatusCompleted {
		s.enqueue(ctx, queue.Job{Kind: queue.KindDetectIncident, SourceType: domain.SourceTypeCall, SourceID: updated.ID})
	}
	return nil
}

func (s *WebhookService) publishConversation(ctx context.Context, id uuid.UUID) {
	conv, err := s.repos.Conversation.GetWithRelations(ctx, id)
	if err != nil || conv == nil {
		log.Printf("[Webhook] loading conversation %s for broadcast failed: %v", id, err)
		return
	}
	s.hub.Publish(ws.EventConversationUpdated, conv)
}

func (s *WebhookService) releaseClaim(ctx context.Context, kind, key string) {
	if err := s.repos.Idempotency.Release(ctx, kind, key); err != nil {
		log.Printf("[Webhook] releasing %s key %s failed: %v", kind, key, err)
	}
}

// establishesCall reports whether an event may create a call record on its
// own. Lifecycle events and anything carrying caller identity or transcript
// content qualify; bare status updates do not.
func establishesCall(event elevenlabs.WebhookEvent) bool {
	switch event.Type {
	case "call_initiated", "call_started", "call_in_progress", "post_call_transcription":
		return true
	}
	return event.Data.CallerPhone() != "" || len(event.Data.Transcript) > 0
}

func (s *WebhookService) enqueue(ctx context.Context, job queue.Job) {
	if err := s.enqueuer.Enqueue(ctx, job); err != nil {
		log.Printf("[Webhook] enqueue %s failed: %v", job.Kind, err)
	}
}

// callStatusForEvent maps provider event types onto the call lifecycle.
func callStatusForEvent(event elevenlabs.WebhookEvent) string {
	switch event.Type {
	case "call_initiated":
		return domain.CallStatusPending
	case "call_started", "call_in_progress":
		return domain.CallStatusInProgress
	case "post_call_transcription", "call_ended":
		if event.Data.Status == "failed" || event.Data.Status == "error" {
			return domain.CallStatusFailed
		}
		return domain.CallStatusCompleted
	case "call_failed":
		return domain.CallStatusFailed
	}
	switch event.Data.Status {
	case "in-progress", "in_progress":
		return domain.CallStatusInProgress
	case "done", "completed":
		return domain.CallStatusCompleted
	case "failed", "error":
		return domain.CallStatusFailed
	}
	return domain.CallStatusPending
}

func categorizeCall(transcript, summary *string) string {
	text := ""
	if summary != nil {
		text = *summary
	} else if transcript != nil {
		text = *transcript
	}
	lower := strings.ToLower(text)
	switch {
	case lower == "":
		return ""
	case containsAny(lower, "gotera", "fuga", "avería", "averia", "ascensor", "no funciona", "roto", "humedad", "incidencia"):
		return domain.CallCategoryIncidencia
	case containsAny(lower, "factura", "recibo", "pago", "cuota", "derrama"):
		return domain.CallCategoryPago
	default:
		return domain.CallCategoryConsulta
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func transferDetails(metadata map[string]interface{}) (string, string) {
	if metadata == nil {
		return "", ""
	}
	to, _ := metadata["transferred_to"].(string)
	kind, _ := metadata["transfer_type"].(string)
	if to != "" && kind == "" {
		kind = "agent"
	}
	return to, kind
}
