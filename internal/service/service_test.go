package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")
	userID := uuid.New()

	t.Run("valid", func(t *testing.T) {
		token := signTestToken(t, "test-secret", jwt.MapClaims{
			"sub":  userID.String(),
			"role": domain.RoleAgent,
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		gotID, role, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, gotID)
		assert.Equal(t, domain.RoleAgent, role)
	})

	t.Run("expired", func(t *testing.T) {
		token := signTestToken(t, "test-secret", jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, _, err := svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signTestToken(t, "other-secret", jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, _, err := svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := svc.ValidateToken("not.a.token")
		assert.Error(t, err)
	})
}
