package elevenlabs

import (
	"encoding/json"
	"fmt"
)

// ParseEvent decodes a signature-verified webhook body. An event without the
// provider conversation id cannot be reconciled against anything, so it is
// rejected here rather than half-applied downstream.
func ParseEvent(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("invalid call event body: %w", err)
	}
	if event.Data.ConversationID == "" {
		return WebhookEvent{}, fmt.Errorf("call event missing conversation id")
	}
	return event, nil
}
