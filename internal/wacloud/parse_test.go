package wacloud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

const inboundTextEnvelope = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "123456",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "34910000000", "phone_number_id": "1090000000"},
				"contacts": [{"profile": {"name": "María García"}, "wa_id": "34600111222"}],
				"messages": [{
					"from": "34600111222",
					"id": "wamid.HBgLMzQ2MDAxMTEyMjIVAgARGBJGOTYw",
					"timestamp": "1714567890",
					"type": "text",
					"text": {"body": "Hay una gotera en el baño"}
				}]
			}
		}]
	}]
}`

const statusEnvelope = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "123456",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "34910000000", "phone_number_id": "1090000000"},
				"statuses": [
					{"id": "wamid.OUT1", "status": "delivered", "timestamp": "1714567900", "recipient_id": "34600111222"},
					{"id": "wamid.OUT2", "status": "failed", "timestamp": "1714567901", "recipient_id": "34600111222",
					 "errors": [{"code": 131026, "title": "Message undeliverable"}]}
				]
			}
		}]
	}]
}`

func TestParseEnvelope_InboundText(t *testing.T) {
	messages, statuses, err := ParseEnvelope([]byte(inboundTextEnvelope))
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Empty(t, statuses)

	m := messages[0]
	assert.Equal(t, "wamid.HBgLMzQ2MDAxMTEyMjIVAgARGBJGOTYw", m.WaMessageID)
	assert.Equal(t, "34600111222", m.From)
	assert.Equal(t, "María García", m.SenderName)
	assert.Equal(t, domain.MessageTypeText, m.Type)
	assert.Equal(t, "Hay una gotera en el baño", m.Body)
	assert.Equal(t, time.Unix(1714567890, 0).UTC(), m.Timestamp)
}

func TestParseEnvelope_Statuses(t *testing.T) {
	messages, statuses, err := ParseEnvelope([]byte(statusEnvelope))
	require.NoError(t, err)
	assert.Empty(t, messages)
	require.Len(t, statuses, 2)

	assert.Equal(t, "wamid.OUT1", statuses[0].WaMessageID)
	assert.Equal(t, domain.MessageStatusDelivered, statuses[0].Status)
	assert.Equal(t, domain.MessageStatusFailed, statuses[1].Status)
	assert.Equal(t, "Message undeliverable", statuses[1].ErrorText)
}

func TestParseEnvelope_MediaMessage(t *testing.T) {
	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"field": "messages", "value": {
			"messages": [{
				"from": "34600111222",
				"id": "wamid.IMG1",
				"timestamp": "1714567890",
				"type": "image",
				"image": {"id": "media-1", "mime_type": "image/jpeg", "caption": "La mancha del techo"}
			}]
		}}]}]
	}`
	messages, _, err := ParseEnvelope([]byte(body))
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.MessageTypeImage, messages[0].Type)
	assert.Equal(t, "media-1", messages[0].MediaID)
	assert.Equal(t, "image/jpeg", messages[0].MediaMime)
	assert.Equal(t, "La mancha del techo", messages[0].Body)
}

func TestParseEnvelope_Malformed(t *testing.T) {
	_, _, err := ParseEnvelope([]byte(`{not json`))
	assert.Error(t, err)

	_, _, err = ParseEnvelope([]byte(`{"object": "page"}`))
	assert.Error(t, err)
}

// One bad element must not take down its siblings from the same batch.
func TestParseEnvelope_SkipsBadSiblings(t *testing.T) {
	// a reaction (unsupported type) next to a regular text message
	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"field": "messages", "value": {
			"messages": [
				{"from": "34600111222", "id": "wamid.REACT1", "timestamp": "1714567890", "type": "reaction"},
				{"from": "34600111222", "id": "wamid.TEXT1", "timestamp": "1714567891", "type": "text", "text": {"body": "sigue la gotera"}}
			]
		}}]}]
	}`
	messages, _, err := ParseEnvelope([]byte(body))
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "wamid.TEXT1", messages[0].WaMessageID)

	// a message without an id cannot be deduplicated, so it is dropped;
	// the status update beside it still comes through
	body = `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"field": "messages", "value": {
			"messages": [{"from": "34600111222", "timestamp": "1714567890", "type": "text", "text": {"body": "x"}}],
			"statuses": [
				{"id": "wamid.BAD", "status": "teleported", "timestamp": "1714567890"},
				{"id": "wamid.OK", "status": "read", "timestamp": "1714567890"}
			]
		}}]}]
	}`
	messages, statuses, err := ParseEnvelope([]byte(body))
	require.NoError(t, err)
	assert.Empty(t, messages)
	require.Len(t, statuses, 1)
	assert.Equal(t, "wamid.OK", statuses[0].WaMessageID)
}

func TestParseEnvelope_TemplateMessage(t *testing.T) {
	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"field": "messages", "value": {
			"messages": [{"from": "34600111222", "id": "wamid.TPL1", "timestamp": "1714567890", "type": "template", "text": {"body": "Recordatorio de cita"}}]
		}}]}]
	}`
	messages, _, err := ParseEnvelope([]byte(body))
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.MessageTypeTemplate, messages[0].Type)
	assert.Equal(t, "Recordatorio de cita", messages[0].Body)
}

func TestParseEnvelope_IgnoresOtherFields(t *testing.T) {
	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"field": "account_update", "value": {}}]}]
	}`
	messages, statuses, err := ParseEnvelope([]byte(body))
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Empty(t, statuses)
}
