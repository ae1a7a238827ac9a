package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
	"github.com/crmhawkins/comurban-sub001/internal/wacloud"
	"github.com/crmhawkins/comurban-sub001/internal/ws"
)

// ConversationService covers the staff-facing conversation operations.
type ConversationService struct {
	repos *repository.Repositories
	hub   *ws.Hub
	wa    *wacloud.Client
}

func NewConversationService(repos *repository.Repositories, hub *ws.Hub, wa *wacloud.Client) *ConversationService {
	return &ConversationService{repos: repos, hub: hub, wa: wa}
}

func (s *ConversationService) List(ctx context.Context, filter domain.ConversationFilter) ([]*domain.Conversation, int, error) {
	return s.repos.Conversation.List(ctx, filter)
}

func (s *ConversationService) Get(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return s.repos.Conversation.GetWithRelations(ctx, id)
}

func (s *ConversationService) Messages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	return s.repos.Message.GetByConversationID(ctx, conversationID, limit, offset)
}

// MarkRead zeroes the unread counter when staff opens the thread.
func (s *ConversationService) MarkRead(ctx context.Context, id uuid.UUID) error {
	if err := s.repos.Conversation.MarkRead(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, id)
	return nil
}

func (s *ConversationService) Assign(ctx context.Context, id uuid.UUID, userID *uuid.UUID) error {
	if userID != nil {
		user, err := s.repos.User.GetByID(ctx, *userID)
		if err != nil {
			return err
		}
		if user == nil || !user.IsActive {
			return fmt.Errorf("user %s not found or inactive", userID)
		}
	}
	if err := s.repos.Conversation.Assign(ctx, id, userID); err != nil {
		return err
	}
	s.publish(ctx, id)
	return nil
}

// SetStatus applies a staff status change. Archived is terminal: an archived
// conversation can never be reopened, new inbound traffic starts a fresh one.
func (s *ConversationService) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	switch status {
	case domain.ConversationStatusOpen, domain.ConversationStatusClosed, domain.ConversationStatusArchived:
	default:
		return fmt.Errorf("invalid conversation status %q", status)
	}

	conv, err := s.repos.Conversation.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("conversation %s not found", id)
	}
	if conv.Status == domain.ConversationStatusArchived {
		return fmt.Errorf("conversation %s is archived", id)
	}

	if err := s.repos.Conversation.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.publish(ctx, id)
	return nil
}

// SetAIEnabled toggles the auto-responder flag in the conversation state.
func (s *ConversationService) SetAIEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	if err := s.repos.Conversation.SetStateKey(ctx, id, "ai_enabled", enabled); err != nil {
		return err
	}
	s.publish(ctx, id)
	return nil
}

// Reply sends a staff message through the Cloud API and records it as an
// outbound message in the thread. The provider id keys the row, so later
// status callbacks for it reconcile normally.
func (s *ConversationService) Reply(ctx context.Context, conversationID uuid.UUID, staffID uuid.UUID, body string) (*domain.Message, error) {
	if body == "" {
		return nil, fmt.Errorf("empty message body")
	}
	if s.wa == nil || !s.wa.Configured() {
		return nil, fmt.Errorf("outbound messaging not configured")
	}

	conv, err := s.repos.Conversation.GetWithRelations(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}
	if conv.Status == domain.ConversationStatusArchived {
		return nil, fmt.Errorf("conversation %s is archived", conversationID)
	}
	if conv.Contact.IsBlocked {
		return nil, fmt.Errorf("contact is blocked")
	}

	waMessageID, err := s.wa.SendText(ctx, conv.Contact.WaID, body)
	if err != nil {
		return nil, fmt.Errorf("sending reply: %w", err)
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ConversationID: conversationID,
		WaMessageID:    waMessageID,
		Direction:      domain.DirectionOutbound,
		Type:           domain.MessageTypeText,
		Body:           &body,
		Status:         domain.MessageStatusSent,
		WaTimestamp:    now,
		SentBy:         &staffID,
	}
	if _, err := s.repos.Message.Create(ctx, msg); err != nil {
		// the provider accepted the send; surface the storage failure loudly
		return nil, fmt.Errorf("send succeeded but storing message failed: %w", err)
	}
	if err := s.repos.Conversation.ApplyOutbound(ctx, conversationID, now); err != nil {
		log.Printf("[Conversation] updating after outbound failed: %v", err)
	}

	s.publish(ctx, conversationID)
	return msg, nil
}

func (s *ConversationService) publish(ctx context.Context, id uuid.UUID) {
	conv, err := s.repos.Conversation.GetWithRelations(ctx, id)
	if err != nil || conv == nil {
		log.Printf("[Conversation] loading %s for broadcast failed: %v", id, err)
		return
	}
	s.hub.Publish(ws.EventConversationUpdated, conv)
}
