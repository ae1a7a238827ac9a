package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanAdvanceMessage_ForwardOnly(t *testing.T) {
	assert.True(t, CanAdvanceMessage(MessageStatusSending, MessageStatusSent))
	assert.True(t, CanAdvanceMessage(MessageStatusSent, MessageStatusDelivered))
	assert.True(t, CanAdvanceMessage(MessageStatusDelivered, MessageStatusRead))
	assert.True(t, CanAdvanceMessage(MessageStatusSending, MessageStatusRead))

	// Backward moves and replays are no-ops
	assert.False(t, CanAdvanceMessage(MessageStatusRead, MessageStatusDelivered))
	assert.False(t, CanAdvanceMessage(MessageStatusDelivered, MessageStatusSent))
	assert.False(t, CanAdvanceMessage(MessageStatusDelivered, MessageStatusDelivered))
	assert.False(t, CanAdvanceMessage(MessageStatusRead, MessageStatusRead))
}

func TestCanAdvanceMessage_FailedOverrides(t *testing.T) {
	assert.True(t, CanAdvanceMessage(MessageStatusSending, MessageStatusFailed))
	assert.True(t, CanAdvanceMessage(MessageStatusDelivered, MessageStatusFailed))
	assert.True(t, CanAdvanceMessage(MessageStatusRead, MessageStatusFailed))
	assert.False(t, CanAdvanceMessage(MessageStatusFailed, MessageStatusFailed))

	// Nothing leaves failed
	assert.False(t, CanAdvanceMessage(MessageStatusFailed, MessageStatusRead))
	assert.False(t, CanAdvanceMessage(MessageStatusFailed, MessageStatusDelivered))
}

func TestCanAdvanceMessage_ReverseReplaySequence(t *testing.T) {
	// Statuses arriving as [read, delivered, sent] must settle on read.
	status := MessageStatusSending
	for _, next := range []string{MessageStatusRead, MessageStatusDelivered, MessageStatusSent} {
		if CanAdvanceMessage(status, next) {
			status = next
		}
	}
	assert.Equal(t, MessageStatusRead, status)
}

func TestCanAdvanceMessage_UnknownStatus(t *testing.T) {
	assert.False(t, CanAdvanceMessage(MessageStatusSent, "queued"))
	assert.False(t, CanAdvanceMessage("bogus", MessageStatusSent))
	assert.False(t, ValidMessageStatus("queued"))
	assert.True(t, ValidMessageStatus(MessageStatusFailed))
}

func TestCanAdvanceCall(t *testing.T) {
	assert.True(t, CanAdvanceCall(CallStatusPending, CallStatusInProgress))
	assert.True(t, CanAdvanceCall(CallStatusPending, CallStatusCompleted))
	assert.True(t, CanAdvanceCall(CallStatusInProgress, CallStatusFailed))

	// Terminal states never replace each other
	assert.False(t, CanAdvanceCall(CallStatusCompleted, CallStatusFailed))
	assert.False(t, CanAdvanceCall(CallStatusFailed, CallStatusCompleted))
	assert.False(t, CanAdvanceCall(CallStatusCompleted, CallStatusInProgress))
	assert.False(t, CanAdvanceCall(CallStatusInProgress, CallStatusInProgress))
	assert.False(t, CanAdvanceCall(CallStatusPending, "ringing"))
}

func TestSourceRef(t *testing.T) {
	conv := ConversationSource(uuid.MustParse("7b9f2a70-0b3f-4a5e-9f18-2f6a1c0de111"))
	call := CallSource(uuid.MustParse("7b9f2a70-0b3f-4a5e-9f18-2f6a1c0de222"))
	assert.Equal(t, SourceTypeWhatsApp, conv.Type)
	assert.Equal(t, SourceTypeCall, call.Type)
}

func TestConversationAIEnabled(t *testing.T) {
	c := &Conversation{}
	assert.False(t, c.AIEnabled())
	c.State = map[string]interface{}{"ai_enabled": true}
	assert.True(t, c.AIEnabled())
	c.State = map[string]interface{}{"ai_enabled": "yes"}
	assert.False(t, c.AIEnabled())
}
