package service

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// defaultRegion is used when a number arrives without a country prefix.
// WhatsApp wa_ids always carry the country code, so this mostly applies to
// caller numbers from the voice provider.
const defaultRegion = "ES"

// NormalizePhone renders a raw number in E.164. Unparseable input is returned
// trimmed rather than rejected: a webhook must never bounce because a
// provider formatted a number strangely.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	candidate := raw
	if !strings.HasPrefix(candidate, "+") {
		candidate = "+" + candidate
	}
	if num, err := phonenumbers.Parse(candidate, defaultRegion); err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	if num, err := phonenumbers.Parse(raw, defaultRegion); err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	return raw
}
