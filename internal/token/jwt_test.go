package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "traincheck/pkg/domain-errors"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc := NewJWTService("unit-test-key", "traincheck", "traincheck-api")
	userID := uuid.New()

	signed, err := svc.GenerateAccessToken(userID, "compliance_admin", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "compliance_admin", claims.Role)
}

func TestJWTServiceRejectsExpired(t *testing.T) {
	svc := NewJWTService("unit-test-key", "traincheck", "traincheck-api")

	signed, err := svc.GenerateAccessToken(uuid.New(), "", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestJWTServiceRejectsWrongKey(t *testing.T) {
	issuer := NewJWTService("key-a", "traincheck", "traincheck-api")
	verifier := NewJWTService("key-b", "traincheck", "traincheck-api")

	signed, err := issuer.GenerateAccessToken(uuid.New(), "", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestJWTServiceRejectsWrongAudience(t *testing.T) {
	issuer := NewJWTService("key", "traincheck", "other-api")
	verifier := NewJWTService("key", "traincheck", "traincheck-api")

	signed, err := issuer.GenerateAccessToken(uuid.New(), "", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
