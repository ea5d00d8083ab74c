package videos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/hugh/ia-marketing/internal/apperr"
)

// SignatureHeader carries "ts=<unix seconds>;h1=<hex hmac>".
const SignatureHeader = "X-Signature"

var ErrInvalidSignature = apperr.Unauthenticated("invalid webhook signature")

// SignatureVerifier checks provider callbacks signed with HMAC-SHA256 over
// "<ts>:<body>".
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &SignatureVerifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Sign builds the header value for body at ts.
func (v *SignatureVerifier) Sign(ts time.Time, body []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "ts=" + unix + ";h1=" + v.mac(unix, body)
}

func (v *SignatureVerifier) mac(ts string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(ts + ":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify rejects missing, malformed, stale and mismatched signatures alike.
func (v *SignatureVerifier) Verify(header string, body []byte) error {
	if len(v.secret) == 0 || header == "" {
		return ErrInvalidSignature
	}

	var ts, h1 string
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "ts="):
			ts = strings.TrimPrefix(part, "ts=")
		case strings.HasPrefix(part, "h1="):
			h1 = strings.TrimPrefix(part, "h1=")
		}
	}
	if ts == "" || h1 == "" {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := v.now().Sub(time.Unix(unix, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrInvalidSignature
	}

	if !hmac.Equal([]byte(h1), []byte(v.mac(ts, body))) {
		return ErrInvalidSignature
	}
	return nil
}
