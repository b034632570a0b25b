package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Errors returned by PrincipalAuth.Verify.
var (
	ErrPrincipalSignature = errors.New("crypto: principal signature mismatch")
	ErrPrincipalExpired   = errors.New("crypto: principal timestamp outside window")
)

// PrincipalAuth checks principal assertions made by the upstream gateway.
// The signature is base64(HMAC-SHA256(secret, timestamp+method+path+principal+
// hex(SHA-256(body)))). An empty body hashes like any other.
type PrincipalAuth struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

// NewPrincipalAuth returns a verifier accepting timestamps within window of
// the current time.
func NewPrincipalAuth(secret string, window time.Duration) *PrincipalAuth {
	return &PrincipalAuth{secret: []byte(secret), window: window, now: time.Now}
}

// Sign returns the signature for an assertion made at unixTS over body.
func (p *PrincipalAuth) Sign(method, path, principal string, body []byte, unixTS int64) string {
	ts := strconv.FormatInt(unixTS, 10)
	return hmacSHA256Base64(p.secret, principalMessage(ts, method, path, principal, body))
}

// Verify checks sig for the assertion. ts is the decimal Unix timestamp the
// gateway sent alongside it.
func (p *PrincipalAuth) Verify(method, path, principal string, body []byte, ts, sig string) error {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: principal timestamp: %w", err)
	}
	at := time.Unix(unix, 0)
	if d := p.now().Sub(at); d > p.window || d < -p.window {
		return ErrPrincipalExpired
	}
	want := hmacSHA256Base64(p.secret, principalMessage(ts, method, path, principal, body))
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrPrincipalSignature
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (p *PrincipalAuth) String() string {
	return fmt.Sprintf("PrincipalAuth{secret=****, window=%s}", p.window)
}

func principalMessage(ts, method, path, principal string, body []byte) string {
	sum := sha256.Sum256(body)
	return ts + method + path + principal + hex.EncodeToString(sum[:])
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
