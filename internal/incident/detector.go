package incident

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
)

// minConfidence gates incident creation; weak classifications are logged and
// discarded rather than cluttering the incident queue.
const minConfidence = 0.5

// recentMessageWindow bounds how much conversation history feeds a detection.
const recentMessageWindow = 10

// Detector runs classification over conversation and call content and folds
// the result into the incident list, deduplicating against open incidents
// from the same phone.
type Detector struct {
	incidents  *repository.IncidentRepository
	messages   *repository.MessageRepository
	classifier Classifier
}

func NewDetector(incidents *repository.IncidentRepository, messages *repository.MessageRepository, classifier Classifier) *Detector {
	return &Detector{
		incidents:  incidents,
		messages:   messages,
		classifier: classifier,
	}
}

// DetectFromConversation classifies the recent inbound messages of a
// conversation. Returns the matched or created incident, and whether it was
// newly created.
func (d *Detector) DetectFromConversation(ctx context.Context, conv *domain.Conversation, contact *domain.Contact) (*domain.Incident, bool, error) {
	bodies, err := d.messages.RecentInboundBodies(ctx, conv.ID, recentMessageWindow)
	if err != nil {
		return nil, false, fmt.Errorf("loading conversation text: %w", err)
	}
	text := strings.TrimSpace(strings.Join(bodies, "\n"))
	if text == "" {
		return nil, false, nil
	}

	phone := contact.Phone
	if phone == "" {
		phone = contact.WaID
	}
	return d.detect(ctx, text, phone, domain.ConversationSource(conv.ID), map[string]interface{}{
		"channel":       "whatsapp",
		"message_count": len(bodies),
	})
}

// DetectFromCall classifies a completed call using its summary when present,
// otherwise the raw transcript.
func (d *Detector) DetectFromCall(ctx context.Context, call *domain.Call) (*domain.Incident, bool, error) {
	text := ""
	if call.Summary != nil {
		text = *call.Summary
	}
	if text == "" && call.Transcript != nil {
		text = *call.Transcript
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false, nil
	}

	return d.detect(ctx, text, call.Phone, domain.CallSource(call.ID), map[string]interface{}{
		"channel":       "voice",
		"call_category": call.Category,
	})
}

func (d *Detector) detect(ctx context.Context, text, phone string, source domain.SourceRef, detCtx map[string]interface{}) (*domain.Incident, bool, error) {
	cls, err := d.classifier.Classify(ctx, text)
	if err != nil {
		return nil, false, fmt.Errorf("classify: %w", err)
	}
	if !cls.IsIncident || cls.Confidence < minConfidence {
		log.Printf("[Incident] no incident for %s (confidence %.2f)", phone, cls.Confidence)
		return nil, false, nil
	}
	if cls.Summary == "" {
		cls.Summary = text
	}

	open, err := d.incidents.ListOpenByPhone(ctx, phone)
	if err != nil {
		return nil, false, fmt.Errorf("listing open incidents: %w", err)
	}
	for _, existing := range open {
		if SameIncident(existing.Summary, existing.Type, cls.Summary, cls.Type) {
			detCtx["merged_at"] = time.Now().UTC().Format(time.RFC3339)
			detCtx["merged_summary"] = cls.Summary
			detCtx["merged_source_type"] = source.Type
			detCtx["merged_source_id"] = source.ID.String()
			if err := d.incidents.MergeContext(ctx, existing.ID, detCtx); err != nil {
				return nil, false, fmt.Errorf("merging incident %s: %w", existing.ID, err)
			}
			log.Printf("[Incident] merged detection for %s into incident %s", phone, existing.ID)
			return existing, false, nil
		}
	}

	inc := &domain.Incident{
		Source:           source,
		Phone:            phone,
		Summary:          cls.Summary,
		Confidence:       cls.Confidence,
		DetectionContext: detCtx,
	}
	if cls.Type != "" {
		inc.Type = &cls.Type
	}
	if err := d.incidents.Create(ctx, inc); err != nil {
		return nil, false, fmt.Errorf("creating incident: %w", err)
	}
	log.Printf("[Incident] opened incident %s for %s (type %s, confidence %.2f)", inc.ID, phone, cls.Type, cls.Confidence)
	return inc, true, nil
}
