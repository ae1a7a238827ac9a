package elevenlabs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signatures older than this are rejected to stop replay of captured bodies.
const signatureTolerance = 30 * time.Minute

// VerifySignature checks the ElevenLabs-Signature header, which has the form
// "t=<unix_seconds>,v0=<hex hmac>". The HMAC-SHA256 is computed over
// "<timestamp>.<body>" with the shared webhook secret.
func VerifySignature(secret string, header string, body []byte) error {
	return verifySignatureAt(secret, header, body, time.Now())
}

func verifySignatureAt(secret, header string, body []byte, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("webhook secret not configured")
	}
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var tsPart, sigPart string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			tsPart = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v0="):
			sigPart = strings.TrimPrefix(part, "v0=")
		}
	}
	if tsPart == "" || sigPart == "" {
		return fmt.Errorf("malformed signature header")
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed signature timestamp")
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsPart))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sigPart)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
