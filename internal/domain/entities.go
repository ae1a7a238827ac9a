package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a staff member
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"` // admin, agent
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User role constants
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// Contact represents a WhatsApp contact, created lazily on first inbound reference
type Contact struct {
	ID          uuid.UUID              `json:"id"`
	WaID        string                 `json:"wa_id"`
	Phone       string                 `json:"phone"`
	Name        *string                `json:"name,omitempty"`
	ProfileData map[string]interface{} `json:"profile_data,omitempty"`
	IsBlocked   bool                   `json:"is_blocked"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// DisplayName returns the best available name for the contact
func (c *Contact) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	if c.Phone != "" {
		return c.Phone
	}
	return c.WaID
}

// Conversation represents the message thread with one contact
type Conversation struct {
	ID            uuid.UUID              `json:"id"`
	ContactID     uuid.UUID              `json:"contact_id"`
	Status        string                 `json:"status"` // open, closed, archived
	AssignedTo    *uuid.UUID             `json:"assigned_to,omitempty"`
	LastMessageAt *time.Time             `json:"last_message_at,omitempty"`
	UnreadCount   int                    `json:"unread_count"`
	State         map[string]interface{} `json:"conversation_state,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`

	// Populated on demand
	Contact      *Contact `json:"contact,omitempty"`
	AssignedUser *User    `json:"assigned_user,omitempty"`
}

// Conversation status constants
const (
	ConversationStatusOpen     = "open"
	ConversationStatusClosed   = "closed"
	ConversationStatusArchived = "archived"
)

// AIEnabled reports whether the auto-responder may handle this conversation
func (c *Conversation) AIEnabled() bool {
	if c.State == nil {
		return false
	}
	v, ok := c.State["ai_enabled"].(bool)
	return ok && v
}

// ConversationFilter defines filter options for listing conversations
type ConversationFilter struct {
	Status     string
	AssignedTo *uuid.UUID
	UnreadOnly bool
	Search     string
	Limit      int
	Offset     int
}

// Message represents a single WhatsApp message within a conversation
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	WaMessageID    string     `json:"wa_message_id"`
	Direction      string     `json:"direction"` // inbound, outbound
	Type           string     `json:"type"`
	Body           *string    `json:"body,omitempty"`
	MediaURL       *string    `json:"media_url,omitempty"`
	MediaMimetype  *string    `json:"media_mimetype,omitempty"`
	Status         string     `json:"status"`
	WaTimestamp    time.Time  `json:"wa_timestamp"`
	SentBy         *uuid.UUID `json:"sent_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Message direction constants
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message type constants
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeDocument = "document"
	MessageTypeLocation = "location"
	MessageTypeContact  = "contact"
	MessageTypeTemplate = "template"
	MessageTypeSticker  = "sticker"
)

// Message status constants
const (
	MessageStatusSending   = "sending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Call represents a voice call tracked from provider lifecycle events
type Call struct {
	ID                 uuid.UUID              `json:"id"`
	ContactID          *uuid.UUID             `json:"contact_id,omitempty"`
	ElevenLabsCallID   string                 `json:"elevenlabs_call_id"`
	Phone              string                 `json:"phone"`
	Status             string                 `json:"status"`   // pending, in_progress, completed, failed
	Category           string                 `json:"category"` // incidencia, consulta, pago, desconocido
	Transcript         *string                `json:"transcript,omitempty"`
	Summary            *string                `json:"summary,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	IsTransferred      bool                   `json:"is_transferred"`
	TransferredTo      *string                `json:"transferred_to,omitempty"`
	TransferType       *string                `json:"transfer_type,omitempty"`
	TransferDetectedAt *time.Time             `json:"transfer_detected_at,omitempty"`
	StartedAt          *time.Time             `json:"started_at,omitempty"`
	EndedAt            *time.Time             `json:"ended_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// Call status constants
const (
	CallStatusPending    = "pending"
	CallStatusInProgress = "in_progress"
	CallStatusCompleted  = "completed"
	CallStatusFailed     = "failed"
)

// Call category constants
const (
	CallCategoryIncidencia  = "incidencia"
	CallCategoryConsulta    = "consulta"
	CallCategoryPago        = "pago"
	CallCategoryDesconocido = "desconocido"
)

// CallFilter defines filter options for listing calls
type CallFilter struct {
	Status   string
	Category string
	Phone    string
	Limit    int
	Offset   int
}

// Incident source type constants
const (
	SourceTypeWhatsApp = "whatsapp"
	SourceTypeCall     = "call"
)

// SourceRef points an incident at exactly one conversation or call
type SourceRef struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// ConversationSource builds a SourceRef for a conversation
func ConversationSource(id uuid.UUID) SourceRef {
	return SourceRef{Type: SourceTypeWhatsApp, ID: id}
}

// CallSource builds a SourceRef for a call
func CallSource(id uuid.UUID) SourceRef {
	return SourceRef{Type: SourceTypeCall, ID: id}
}

// Incident represents a detected issue opened from conversation or call content
type Incident struct {
	ID               uuid.UUID              `json:"id"`
	Source           SourceRef              `json:"source"`
	Phone            string                 `json:"phone"`
	Summary          string                 `json:"incident_summary"`
	Type             *string                `json:"incident_type,omitempty"`
	Confidence       float64                `json:"confidence"`
	Status           string                 `json:"status"` // open, in_progress, resolved, closed
	DetectionContext map[string]interface{} `json:"detection_context,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Incident status constants
const (
	IncidentStatusOpen       = "open"
	IncidentStatusInProgress = "in_progress"
	IncidentStatusResolved   = "resolved"
	IncidentStatusClosed     = "closed"
)

// IncidentFilter defines filter options for listing incidents
type IncidentFilter struct {
	Status string
	Type   string
	Phone  string
	Limit  int
	Offset int
}

// WebhookEvent is the append-only record of every received provider callback
type WebhookEvent struct {
	ID           uuid.UUID              `json:"id"`
	EventType    string                 `json:"event_type"`
	Payload      map[string]interface{} `json:"payload"`
	Processed    bool                   `json:"processed"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Webhook event type constants
const (
	EventTypeWhatsAppMessage = "whatsapp.message"
	EventTypeWhatsAppStatus  = "whatsapp.status"
	EventTypeCallLifecycle   = "call.lifecycle"
)

// Setting is a DB-backed configuration value overriding env defaults
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
