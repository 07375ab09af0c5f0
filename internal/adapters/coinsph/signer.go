package coinsph

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer signs private REST requests. The signature is the hex encoded
// HMAC-SHA256 of the url-encoded query, keyed by the API secret.
type Signer struct {
	Key        string
	Secret     string
	RecvWindow time.Duration
}

// Sign returns the signed query string for params at the current time.
func (s *Signer) Sign(params url.Values) string {
	return s.SignAt(params, time.Now())
}

// SignAt is like Sign but lets the caller supply the request time
// (useful for deterministic testing).
func (s *Signer) SignAt(params url.Values, ts time.Time) string {
	signed := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				signed.Add(k, v)
			}
		}
	}
	if s.RecvWindow > 0 {
		signed.Set("recvWindow", strconv.FormatInt(s.RecvWindow.Milliseconds(), 10))
	}
	signed.Set("timestamp", strconv.FormatInt(ts.UnixMilli(), 10))

	query := signed.Encode()
	return query + "&signature=" + hmacSHA256Hex([]byte(s.Secret), query)
}

// String returns a redacted representation suitable for logging.
func (s *Signer) String() string {
	redact := func(v string) string {
		if len(v) <= 4 {
			return "****"
		}
		return v[:4] + "****"
	}
	return fmt.Sprintf("Signer{key=%s, secret=%s}", redact(s.Key), redact(s.Secret))
}

func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
