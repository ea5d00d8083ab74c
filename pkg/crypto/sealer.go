package crypto

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// Sealer encrypts payloads kept at rest (stored webhook deliveries). Data is
// sealed to the service identity plus any extra recipients, so an operator
// holding an offline key can still read archives after a key rotation.
type Sealer struct {
	identity   *age.X25519Identity
	recipients []age.Recipient
}

// NewSealer builds a sealer from an age identity string. An empty identity
// generates an ephemeral one, which is only suitable for development.
func NewSealer(identityKey string, extraRecipients ...string) (*Sealer, error) {
	var identity *age.X25519Identity
	var err error

	if identityKey == "" {
		identity, err = age.GenerateX25519Identity()
		if err != nil {
			return nil, fmt.Errorf("generating identity: %w", err)
		}
	} else {
		identity, err = age.ParseX25519Identity(identityKey)
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
	}

	recipients := []age.Recipient{identity.Recipient()}
	for _, r := range extraRecipients {
		recipient, err := age.ParseX25519Recipient(r)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", r, err)
		}
		recipients = append(recipients, recipient)
	}

	return &Sealer{identity: identity, recipients: recipients}, nil
}

// GenerateKey returns a new age identity and its public recipient.
func GenerateKey() (identityKey string, publicKey string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", err
	}
	return identity.String(), identity.Recipient().String(), nil
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := age.Encrypt(&buf, s.recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing sealed data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing encryptor: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, fmt.Errorf("creating decryptor: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading sealed data: %w", err)
	}
	return plaintext, nil
}

// PublicKey returns the recipient string of the service identity.
func (s *Sealer) PublicKey() string {
	return s.identity.Recipient().String()
}
