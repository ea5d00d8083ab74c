package videos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignatureVerifier(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	v := NewSignatureVerifier("whsec_test", 5*time.Minute)
	v.now = func() time.Time { return now }
	body := []byte(`{"job_id":"x","status":"completed"}`)

	tests := []struct {
		name   string
		header string
		body   []byte
		valid  bool
	}{
		{"valid", v.Sign(now, body), body, true},
		{"within tolerance", v.Sign(now.Add(-4*time.Minute), body), body, true},
		{"stale", v.Sign(now.Add(-6*time.Minute), body), body, false},
		{"future", v.Sign(now.Add(6*time.Minute), body), body, false},
		{"tampered body", v.Sign(now, body), []byte(`{"job_id":"x","status":"failed"}`), false},
		{"missing", "", body, false},
		{"no hash", "ts=1760529600", body, false},
		{"bad ts", "ts=abc;h1=00", body, false},
		{"other secret", NewSignatureVerifier("other", time.Minute).Sign(now, body), body, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.header, tt.body)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSignature)
			}
		})
	}
}

func TestSignatureVerifier_EmptySecretRejects(t *testing.T) {
	v := NewSignatureVerifier("", time.Minute)
	body := []byte(`{}`)
	assert.ErrorIs(t, v.Verify(v.Sign(time.Now(), body), body), ErrInvalidSignature)
}
