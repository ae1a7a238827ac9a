package elevenlabs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"type": "post_call_transcription",
		"event_timestamp": 1714567890,
		"data": {
			"conversation_id": "conv_abc123",
			"agent_id": "agent_1",
			"status": "done",
			"transcript": [{"role": "user", "message": "hay una gotera", "time_in_call_secs": 3.2}]
		}
	}`)
	event, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "post_call_transcription", event.Type)
	assert.Equal(t, "conv_abc123", event.Data.ConversationID)
	assert.Len(t, event.Data.Transcript, 1)
}

func TestParseEvent_Rejected(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	assert.Error(t, err)

	// an event with no conversation id cannot be reconciled
	_, err = ParseEvent([]byte(`{"type": "call_started", "data": {"status": "in-progress"}}`))
	assert.Error(t, err)
}
