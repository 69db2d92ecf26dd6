package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_GenerateAndVerify(t *testing.T) {
	svc := NewTokenService(setupTestDB(t))

	assert.False(t, svc.Configured())

	token, err := svc.Generate()
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.True(t, svc.Configured())

	ok, err := svc.Verify(token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify("wrong-token")
	assert.ErrorIs(t, err, ErrOperatorTokenInvalid)
	assert.False(t, ok)
}

func TestTokenService_RegenerateInvalidatesOld(t *testing.T) {
	svc := NewTokenService(setupTestDB(t))

	first, err := svc.Generate()
	require.NoError(t, err)
	second, err := svc.Generate()
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = svc.Verify(first)
	assert.ErrorIs(t, err, ErrOperatorTokenInvalid)

	ok, err := svc.Verify(second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTokenService_VerifyWithoutToken(t *testing.T) {
	svc := NewTokenService(setupTestDB(t))
	_, err := svc.Verify("anything")
	assert.ErrorIs(t, err, ErrOperatorTokenInvalid)
}
