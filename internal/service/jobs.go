package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
	"github.com/crmhawkins/comurban-sub001/internal/incident"
	"github.com/crmhawkins/comurban-sub001/internal/queue"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
	"github.com/crmhawkins/comurban-sub001/internal/settings"
	"github.com/crmhawkins/comurban-sub001/internal/wacloud"
	"github.com/crmhawkins/comurban-sub001/internal/ws"
)

const defaultGreeting = "Gracias por su mensaje. Un miembro del equipo le atenderá en breve."

// JobService executes background work: incident detection and the optional
// auto-reply. Both the queue consumer and the inline fallback run through it.
type JobService struct {
	repos    *repository.Repositories
	hub      *ws.Hub
	wa       *wacloud.Client
	settings *settings.Service
	detector *incident.Detector
}

func NewJobService(repos *repository.Repositories, hub *ws.Hub, wa *wacloud.Client, settingsSvc *settings.Service, detector *incident.Detector) *JobService {
	return &JobService{repos: repos, hub: hub, wa: wa, settings: settingsSvc, detector: detector}
}

// Handle dispatches one dequeued job.
func (s *JobService) Handle(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindDetectIncident:
		return s.detectIncident(ctx, job)
	case queue.KindAutoReply:
		return s.autoReply(ctx, job.ConversationID)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (s *JobService) detectIncident(ctx context.Context, job queue.Job) error {
	switch job.SourceType {
	case domain.SourceTypeWhatsApp:
		return s.detectFromConversation(ctx, job.SourceID)
	case domain.SourceTypeCall:
		return s.detectFromCall(ctx, job.SourceID)
	default:
		return fmt.Errorf("unknown incident source %q", job.SourceType)
	}
}

func (s *JobService) detectFromConversation(ctx context.Context, conversationID uuid.UUID) error {
	conv, err := s.repos.Conversation.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return nil
	}
	contact, err := s.repos.Contact.GetByID(ctx, conv.ContactID)
	if err != nil || contact == nil {
		return fmt.Errorf("loading contact: %w", err)
	}

	inc, created, err := s.detector.DetectFromConversation(ctx, conv, contact)
	if err != nil {
		return err
	}
	if created {
		s.hub.Publish(ws.EventIncidentOpened, inc)
	}
	return nil
}

func (s *JobService) detectFromCall(ctx context.Context, callID uuid.UUID) error {
	call, err := s.repos.Call.GetByID(ctx, callID)
	if err != nil {
		return fmt.Errorf("loading call: %w", err)
	}
	if call == nil || call.Phone == "" {
		return nil
	}

	inc, created, err := s.detector.DetectFromCall(ctx, call)
	if err != nil {
		return err
	}
	if created {
		s.hub.Publish(ws.EventIncidentOpened, inc)
	}
	return nil
}

// autoReply sends the greeting once per conversation when both the global
// setting and the per-conversation flag allow it.
func (s *JobService) autoReply(ctx context.Context, conversationID uuid.UUID) error {
	if s.wa == nil || !s.wa.Configured() {
		return nil
	}
	if !s.settings.GetBool(ctx, settings.KeyAutoReplyEnabled, false) {
		return nil
	}

	conv, err := s.repos.Conversation.GetWithRelations(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil || conv.Status != domain.ConversationStatusOpen || !conv.AIEnabled() {
		return nil
	}
	if replied, _ := conv.State["auto_replied"].(bool); replied {
		return nil
	}

	greeting := s.settings.Get(ctx, settings.KeyAutoReplyGreeting, defaultGreeting)
	waMessageID, err := s.wa.SendText(ctx, conv.Contact.WaID, greeting)
	if err != nil {
		return fmt.Errorf("sending auto-reply: %w", err)
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ConversationID: conversationID,
		WaMessageID:    waMessageID,
		Direction:      domain.DirectionOutbound,
		Type:           domain.MessageTypeText,
		Body:           &greeting,
		Status:         domain.MessageStatusSent,
		WaTimestamp:    now,
	}
	if _, err := s.repos.Message.Create(ctx, msg); err != nil {
		return fmt.Errorf("storing auto-reply: %w", err)
	}
	if err := s.repos.Conversation.ApplyOutbound(ctx, conversationID, now); err != nil {
		log.Printf("[Jobs] updating after auto-reply failed: %v", err)
	}
	if err := s.repos.Conversation.SetStateKey(ctx, conversationID, "auto_replied", true); err != nil {
		log.Printf("[Jobs] marking auto-reply state failed: %v", err)
	}

	if updated, err := s.repos.Conversation.GetWithRelations(ctx, conversationID); err == nil && updated != nil {
		s.hub.Publish(ws.EventConversationUpdated, updated)
	}
	return nil
}

// SweepRecentConversations re-runs detection over conversations with recent
// traffic. Catches incidents that slipped through when the per-message job
// failed or the worker was down.
func (s *JobService) SweepRecentConversations(ctx context.Context, window time.Duration) {
	conversations, err := s.repos.Conversation.ListRecentlyActive(ctx, time.Now().Add(-window), 50)
	if err != nil {
		log.Printf("[Jobs] sweep listing failed: %v", err)
		return
	}
	for _, conv := range conversations {
		if err := s.detectFromConversation(ctx, conv.ID); err != nil {
			log.Printf("[Jobs] sweep detection for %s failed: %v", conv.ID, err)
		}
	}
	if len(conversations) > 0 {
		log.Printf("[Jobs] swept %d recently active conversations", len(conversations))
	}
}
