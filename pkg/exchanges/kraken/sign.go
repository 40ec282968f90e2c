package kraken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// DecodeSecret base64-decodes an API secret, trimming whitespace and repairing
// missing padding first.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, fmt.Errorf("kraken: empty api secret")
	}
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("kraken: invalid api secret: %w", err)
	}
	return out, nil
}

// Sign computes API-Sign for a private request:
// base64(HMAC-SHA512(secret, path ++ SHA256(nonce ++ urlencoded body))).
// values must already carry the nonce; the encoded body is returned so the
// caller sends exactly the bytes that were signed.
func Sign(path string, values url.Values, secret []byte) (signature, body string) {
	body = values.Encode()
	sum := sha256.Sum256([]byte(values.Get("nonce") + body))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sum[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), body
}
