package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
	"github.com/crmhawkins/comurban-sub001/internal/elevenlabs"
)

func TestCallStatusForEvent(t *testing.T) {
	cases := []struct {
		eventType  string
		dataStatus string
		want       string
	}{
		{"call_initiated", "", domain.CallStatusPending},
		{"call_started", "", domain.CallStatusInProgress},
		{"call_ended", "", domain.CallStatusCompleted},
		{"call_ended", "failed", domain.CallStatusFailed},
		{"post_call_transcription", "done", domain.CallStatusCompleted},
		{"call_failed", "", domain.CallStatusFailed},
		// unknown event types fall back to the embedded status
		{"conversation_update", "in-progress", domain.CallStatusInProgress},
		{"conversation_update", "failed", domain.CallStatusFailed},
		{"conversation_update", "", domain.CallStatusPending},
	}
	for _, tc := range cases {
		event := elevenlabs.WebhookEvent{
			Type: tc.eventType,
			Data: elevenlabs.CallData{Status: tc.dataStatus},
		}
		assert.Equal(t, tc.want, callStatusForEvent(event), "event %s/%s", tc.eventType, tc.dataStatus)
	}
}

func TestEstablishesCall(t *testing.T) {
	// lifecycle events open a call record on their own
	for _, typ := range []string{"call_initiated", "call_started", "call_in_progress", "post_call_transcription"} {
		assert.True(t, establishesCall(elevenlabs.WebhookEvent{Type: typ}), typ)
	}

	// a bare status callback for an id we never saw must not mint a row
	assert.False(t, establishesCall(elevenlabs.WebhookEvent{
		Type: "conversation_update",
		Data: elevenlabs.CallData{ConversationID: "conv_ghost", Status: "done"},
	}))
	assert.False(t, establishesCall(elevenlabs.WebhookEvent{Type: "call_ended"}))

	// caller identity or transcript content is enough to establish
	assert.True(t, establishesCall(elevenlabs.WebhookEvent{
		Type: "call_ended",
		Data: elevenlabs.CallData{Metadata: map[string]interface{}{"caller_number": "+34600111222"}},
	}))
	assert.True(t, establishesCall(elevenlabs.WebhookEvent{
		Type: "conversation_update",
		Data: elevenlabs.CallData{Transcript: []elevenlabs.TranscriptTurn{{Role: "user", Message: "hola"}}},
	}))
}

func TestCategorizeCall(t *testing.T) {
	str := func(s string) *string { return &s }

	assert.Equal(t, domain.CallCategoryIncidencia, categorizeCall(nil, str("El vecino reporta una gotera en el techo")))
	assert.Equal(t, domain.CallCategoryPago, categorizeCall(nil, str("Pregunta por el recibo de la comunidad")))
	assert.Equal(t, domain.CallCategoryConsulta, categorizeCall(nil, str("Consulta el horario de la oficina")))

	// summary wins over transcript
	assert.Equal(t, domain.CallCategoryIncidencia,
		categorizeCall(str("hola buenos días"), str("ascensor parado")))

	assert.Equal(t, "", categorizeCall(nil, nil))
}

func TestTransferDetails(t *testing.T) {
	to, kind := transferDetails(map[string]interface{}{
		"transferred_to": "+34911222333",
		"transfer_type":  "warm",
	})
	assert.Equal(t, "+34911222333", to)
	assert.Equal(t, "warm", kind)

	to, kind = transferDetails(map[string]interface{}{"transferred_to": "+34911222333"})
	assert.Equal(t, "+34911222333", to)
	assert.Equal(t, "agent", kind)

	to, _ = transferDetails(nil)
	assert.Equal(t, "", to)
}
