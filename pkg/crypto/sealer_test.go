package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSealer_GeneratesIdentity(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)
	assert.NotEmpty(t, s.PublicKey())
	assert.Len(t, s.recipients, 1)
}

func TestNewSealer_WithProvidedKey(t *testing.T) {
	key, pub, err := GenerateKey()
	require.NoError(t, err)

	s, err := NewSealer(key)
	require.NoError(t, err)
	assert.Equal(t, pub, s.PublicKey())
}

func TestNewSealer_InvalidInput(t *testing.T) {
	_, err := NewSealer("invalid-key-format")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing identity")

	_, err = NewSealer("", "not-a-recipient")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing recipient")
}

func TestSeal_Open(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)

	payload := []byte(`{"job_id":"1","status":"completed","video_url":"https://cdn.example.com/v.mp4?sig=abc"}`)

	sealed, err := s.Seal(payload)
	require.NoError(t, err)
	assert.NotEqual(t, payload, sealed)

	again, err := s.Seal(payload)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestSeal_ExtraRecipientCanOpen(t *testing.T) {
	operatorKey, operatorPub, err := GenerateKey()
	require.NoError(t, err)

	service, err := NewSealer("", operatorPub)
	require.NoError(t, err)

	sealed, err := service.Seal([]byte("archived delivery"))
	require.NoError(t, err)

	operator, err := NewSealer(operatorKey)
	require.NoError(t, err)

	opened, err := operator.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "archived delivery", string(opened))
}

func TestOpen_WrongIdentity(t *testing.T) {
	a, err := NewSealer("")
	require.NoError(t, err)
	b, err := NewSealer("")
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)
}
