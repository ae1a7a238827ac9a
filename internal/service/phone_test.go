package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	// wa_ids arrive without the plus
	assert.Equal(t, "+34600111222", NormalizePhone("34600111222"))
	assert.Equal(t, "+34600111222", NormalizePhone("+34600111222"))

	// national format resolves through the default region
	assert.Equal(t, "+34912345678", NormalizePhone("912345678"))

	// junk passes through untouched rather than bouncing the webhook
	assert.Equal(t, "not-a-number", NormalizePhone("not-a-number"))
	assert.Equal(t, "", NormalizePhone("  "))
}
