package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Header fields forwarded by the API into notification params.
const (
	HeaderSignature = "x-signature"
	HeaderRequestID = "x-request-id"
)

var (
	tsPattern = regexp.MustCompile(`ts=([^,]+)`)
	v1Pattern = regexp.MustCompile(`v1=([^,]+)`)
)

// WebhookValidator checks the x-signature header of Mercado Pago webhooks.
type WebhookValidator struct {
	secret string
}

// NewWebhookValidator creates a validator for secret.
func NewWebhookValidator(secret string) *WebhookValidator {
	return &WebhookValidator{secret: secret}
}

// ValidateSignature checks x-signature ("ts=<ts>,v1=<hmac>"), an HMAC-SHA256 of
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
// See https://www.mercadopago.com.ar/developers/es/docs/your-integrations/notifications/webhooks
func (v *WebhookValidator) ValidateSignature(xSignature, xRequestID, dataID string) bool {
	if xSignature == "" || v.secret == "" {
		return false
	}
	ts, hash := parseSignatureHeader(xSignature)
	if ts == "" || hash == "" {
		return false
	}
	expected := v.Sign(Manifest(dataID, xRequestID, ts))
	return hmac.Equal([]byte(strings.ToLower(hash)), []byte(expected))
}

// Sign returns the hex HMAC-SHA256 of manifest.
func (v *WebhookValidator) Sign(manifest string) string {
	h := hmac.New(sha256.New, []byte(v.secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}

func parseSignatureHeader(header string) (ts, hash string) {
	if m := tsPattern.FindStringSubmatch(header); len(m) > 1 {
		ts = strings.TrimSpace(m[1])
	}
	if m := v1Pattern.FindStringSubmatch(header); len(m) > 1 {
		hash = strings.TrimSpace(m[1])
	}
	return ts, hash
}

// Manifest builds the signed string. Missing parts are left out.
func Manifest(dataID, requestID, ts string) string {
	var parts []string
	if dataID != "" {
		// alphanumeric ids are signed lowercased
		parts = append(parts, "id:"+strings.ToLower(dataID))
	}
	if requestID != "" {
		parts = append(parts, "request-id:"+requestID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}
	return strings.Join(parts, ";") + ";"
}
