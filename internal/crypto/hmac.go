package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried on signed order-proxy requests.
const (
	HeaderKey       = "X-ARB-KEY"
	HeaderTimestamp = "X-ARB-TIMESTAMP"
	HeaderSignature = "X-ARB-SIGNATURE"
)

// RequestSigner authenticates requests to a venue order proxy. The proxy
// holds the venue credentials; this process only proves it is allowed to
// place orders through it.
type RequestSigner struct {
	Key    string
	Secret []byte
}

// Headers returns the auth headers for a request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body), base64 encoded.
func (s *RequestSigner) Headers(method, path string, body []byte) map[string]string {
	return s.HeadersAt(method, path, body, time.Now().UnixMilli())
}

// HeadersAt is Headers with a caller supplied unix millisecond timestamp.
func (s *RequestSigner) HeadersAt(method, path string, body []byte, unixMS int64) map[string]string {
	ts := strconv.FormatInt(unixMS, 10)
	return map[string]string{
		HeaderKey:       s.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign(s.Secret, ts+method+path+string(body)),
	}
}

// Verify checks a signature produced by HeadersAt.
func (s *RequestSigner) Verify(method, path string, body []byte, ts, signature string) bool {
	want := Sign(s.Secret, ts+method+path+string(body))
	return hmac.Equal([]byte(want), []byte(signature))
}

// String returns a redacted representation suitable for logging.
func (s *RequestSigner) String() string {
	key := "****"
	if len(s.Key) > 4 {
		key = s.Key[:4] + "****"
	}
	return fmt.Sprintf("RequestSigner{key=%s, secret=****}", key)
}

// Sign computes base64(HMAC-SHA256(key, message)).
func Sign(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
