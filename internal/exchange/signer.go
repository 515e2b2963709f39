package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Param is a single request parameter. Signed endpoints are sensitive to
// parameter order, so parameters travel as an ordered list rather than a map.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered request parameter list
type Params []Param

// With appends a parameter, preserving insertion order
func (p Params) With(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Encode serializes the parameters as a wire query string in insertion
// order. The encoding must match what is sent on the wire byte-for-byte:
// the exchange verifies the signature against the raw query string.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}

// Signer computes request signatures from the secret credential
type Signer struct {
	secret []byte
}

// NewSigner creates a signer keyed by the secret credential
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 signature over the encoded parameters.
// Deterministic: identical input always yields an identical signature.
func (s *Signer) Sign(params Params) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(params.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}
