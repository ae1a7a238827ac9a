package elevenlabs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v0=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	secret := "wsec_test"
	body := []byte(`{"type":"post_call_transcription","data":{"conversation_id":"conv_1"}}`)
	now := time.Unix(1714567890, 0)

	t.Run("valid", func(t *testing.T) {
		header := signBody(secret, now.Unix(), body)
		assert.NoError(t, verifySignatureAt(secret, header, body, now))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := signBody("other-secret", now.Unix(), body)
		assert.Error(t, verifySignatureAt(secret, header, body, now))
	})

	t.Run("tampered body", func(t *testing.T) {
		header := signBody(secret, now.Unix(), body)
		assert.Error(t, verifySignatureAt(secret, header, []byte(`{}`), now))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := now.Add(-time.Hour)
		header := signBody(secret, old.Unix(), body)
		assert.Error(t, verifySignatureAt(secret, header, body, now))
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Error(t, verifySignatureAt(secret, "", body, now))
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.Error(t, verifySignatureAt(secret, "v0=abc", body, now))
		assert.Error(t, verifySignatureAt(secret, "t=notanumber,v0=abc", body, now))
	})

	t.Run("unconfigured secret", func(t *testing.T) {
		header := signBody(secret, now.Unix(), body)
		assert.Error(t, verifySignatureAt("", header, body, now))
	})
}

func TestCallDataHelpers(t *testing.T) {
	d := CallData{
		Metadata: map[string]interface{}{
			"phone_call": map[string]interface{}{"external_number": "+34600111222"},
		},
		Transcript: []TranscriptTurn{
			{Role: "agent", Message: "Hola, ¿en qué puedo ayudarle?"},
			{Role: "user", Message: "Tengo una gotera en el baño"},
			{Role: "agent", Message: ""},
		},
	}
	require.Equal(t, "+34600111222", d.CallerPhone())
	assert.Equal(t, "agent: Hola, ¿en qué puedo ayudarle?\nuser: Tengo una gotera en el baño", d.FlatTranscript())

	assert.Equal(t, "", CallData{}.CallerPhone())
}
