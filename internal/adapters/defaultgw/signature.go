package defaultgw

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Fields that carry or travel with the signature and are never signed.
const (
	FieldSignature  = "signature"
	HeaderSignature = "x-signature"
	HeaderRequestID = "x-request-id"
)

// Signer signs callback fields with a shared secret.
type Signer struct {
	secret string
}

// NewSigner creates a Signer for secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex HMAC-SHA256 of the sorted "key=value" pairs joined by "&".
func (s *Signer) Sign(params domain.Params) string {
	h := hmac.New(sha256.New, []byte(s.secret))
	h.Write([]byte(manifest(params)))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the signature field, or the x-signature header when the
// field is absent.
func (s *Signer) Verify(params domain.Params) bool {
	if s.secret == "" {
		return false
	}
	got := params.Get(FieldSignature)
	if got == "" {
		got = params.Get(HeaderSignature)
	}
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(s.Sign(params)))
}

func manifest(params domain.Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		switch k {
		case FieldSignature, HeaderSignature, HeaderRequestID:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, "&")
}
