package wacloud

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

// ParsedMessage is a normalized inbound message extracted from the envelope
type ParsedMessage struct {
	WaMessageID string
	From        string // sender wa_id
	SenderName  string
	Type        string
	Body        string
	MediaID     string
	MediaMime   string
	Timestamp   time.Time
}

// ParsedStatus is a normalized message status callback
type ParsedStatus struct {
	WaMessageID string
	Status      string
	Timestamp   time.Time
	ErrorText   string
}

// ParseEnvelope decodes the Cloud API webhook body and flattens the nested
// entry/changes structure into message and status lists. A body that decodes
// but carries neither is not an error: verification pings and field updates
// we do not subscribe to look exactly like that. Individual messages or
// statuses that cannot be handled are logged and skipped so one bad element
// never drops its siblings from the same batch.
func ParseEnvelope(body []byte) ([]ParsedMessage, []ParsedStatus, error) {
	var env WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("invalid webhook body: %w", err)
	}
	if env.Object != "whatsapp_business_account" {
		return nil, nil, fmt.Errorf("unexpected webhook object %q", env.Object)
	}

	var messages []ParsedMessage
	var statuses []ParsedStatus

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := map[string]string{}
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				pm, err := parseMessage(m)
				if err != nil {
					log.Printf("[Webhook] skipping message: %v", err)
					continue
				}
				pm.SenderName = names[m.From]
				messages = append(messages, pm)
			}
			for _, s := range change.Value.Statuses {
				ps, err := parseStatus(s)
				if err != nil {
					log.Printf("[Webhook] skipping status update: %v", err)
					continue
				}
				statuses = append(statuses, ps)
			}
		}
	}
	return messages, statuses, nil
}

func parseMessage(m InboundMessage) (ParsedMessage, error) {
	if m.ID == "" || m.From == "" {
		return ParsedMessage{}, fmt.Errorf("message missing id or sender")
	}
	ts, err := parseTimestamp(m.Timestamp)
	if err != nil {
		return ParsedMessage{}, fmt.Errorf("message %s: %w", m.ID, err)
	}

	pm := ParsedMessage{
		WaMessageID: m.ID,
		From:        m.From,
		Timestamp:   ts,
	}

	switch m.Type {
	case "text":
		pm.Type = domain.MessageTypeText
		if m.Text != nil {
			pm.Body = m.Text.Body
		}
	case "image":
		pm.Type = domain.MessageTypeImage
		pm.applyMedia(m.Image)
	case "video":
		pm.Type = domain.MessageTypeVideo
		pm.applyMedia(m.Video)
	case "audio":
		pm.Type = domain.MessageTypeAudio
		pm.applyMedia(m.Audio)
	case "document":
		pm.Type = domain.MessageTypeDocument
		pm.applyMedia(m.Document)
	case "sticker":
		pm.Type = domain.MessageTypeSticker
		pm.applyMedia(m.Sticker)
	case "location":
		pm.Type = domain.MessageTypeLocation
		if m.Location != nil {
			pm.Body = fmt.Sprintf("%f,%f %s", m.Location.Latitude, m.Location.Longitude, m.Location.Name)
		}
	case "contacts":
		pm.Type = domain.MessageTypeContact
		if len(m.Contacts) > 0 {
			pm.Body = m.Contacts[0].Name.FormattedName
		}
	case "template":
		pm.Type = domain.MessageTypeTemplate
		if m.Text != nil {
			pm.Body = m.Text.Body
		}
	default:
		return ParsedMessage{}, fmt.Errorf("message %s: unsupported type %q", m.ID, m.Type)
	}
	return pm, nil
}

func (pm *ParsedMessage) applyMedia(mc *MediaContent) {
	if mc == nil {
		return
	}
	pm.MediaID = mc.ID
	pm.MediaMime = mc.MimeType
	if mc.Caption != "" {
		pm.Body = mc.Caption
	} else if mc.Filename != "" {
		pm.Body = mc.Filename
	}
}

func parseStatus(s StatusUpdate) (ParsedStatus, error) {
	if s.ID == "" {
		return ParsedStatus{}, fmt.Errorf("status update missing message id")
	}
	if !domain.ValidMessageStatus(s.Status) {
		return ParsedStatus{}, fmt.Errorf("status update for %s: unknown status %q", s.ID, s.Status)
	}
	ts, err := parseTimestamp(s.Timestamp)
	if err != nil {
		return ParsedStatus{}, fmt.Errorf("status update for %s: %w", s.ID, err)
	}
	ps := ParsedStatus{WaMessageID: s.ID, Status: s.Status, Timestamp: ts}
	if len(s.Errors) > 0 {
		ps.ErrorText = s.Errors[0].Title
	}
	return ps, nil
}

// parseTimestamp reads the provider-asserted epoch seconds string
func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", raw)
	}
	return time.Unix(secs, 0).UTC(), nil
}
