package gateway

import (
	"strconv"
	"strings"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Common setting keys.
const (
	SettingTitle        = "title"
	SettingTestMode     = "test_mode"
	SettingTxnPrefix    = "transaction_id_prefix"
	SettingResubmit     = "allow_resubmit"
	SettingPaymentTypes = "payment_types"
)

// Base carries identity and the default acknowledgement contract.
// Variants embed it and override what their provider needs.
type Base struct {
	id       string
	provider string
	defaults domain.GatewaySettings
}

// NewBase creates a Base. The common settings are added to defaults.
func NewBase(id, provider string, defaults domain.GatewaySettings) Base {
	d := domain.GatewaySettings{
		SettingTitle:     "",
		SettingTestMode:  false,
		SettingTxnPrefix: "",
		SettingResubmit:  false,
	}
	for k, v := range defaults {
		d[k] = v
	}
	return Base{id: id, provider: provider, defaults: d}
}

func (b Base) ID() string { return b.id }

func (b Base) Provider() string { return b.provider }

func (b Base) DefaultParameters() domain.GatewaySettings {
	return copySettings(b.defaults)
}

// WithDefaults overlays settings on the defaults so omitted keys keep their
// default value.
func (b Base) WithDefaults(settings domain.GatewaySettings) domain.GatewaySettings {
	out := copySettings(b.defaults)
	for k, v := range settings {
		out[k] = v
	}
	return out
}

func (Base) CallbackSuccessResponse() string { return "1|OK" }

func (Base) CallbackFailureResponse(message string) string { return "0|" + message }

// Classify treats every callback as a purchase result.
func (Base) Classify(domain.Params) domain.NotificationKind {
	return domain.KindPurchaseResult
}

// AmountEquals reports whether data[field] is a base-10 integer equal to total.
func AmountEquals(data domain.Params, field string, total int64) bool {
	raw, ok := data[field]
	if !ok {
		return false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return false
	}
	return n == total
}

var infoLabels = map[string]string{
	domain.InfoBankCode:       "Bank code",
	domain.InfoBankAccount:    "Bank account",
	domain.InfoVirtualAccount: "Virtual account",
	domain.InfoPaymentNo:      "Payment code",
	domain.InfoBarcode1:       "Barcode 1",
	domain.InfoBarcode2:       "Barcode 2",
	domain.InfoBarcode3:       "Barcode 3",
	domain.InfoExpireDate:     "Expires",
}

// PaymentInfoNote renders canonical info as an order note. Empty info has no note.
func PaymentInfoNote(info domain.PaymentInfo) (string, bool) {
	if info.IsEmpty() {
		return "", false
	}
	lines := []string{"Payment instructions issued"}
	for _, key := range domain.PaymentInfoKeys {
		if v, ok := info[key]; ok {
			lines = append(lines, infoLabels[key]+": "+v)
		}
	}
	return strings.Join(lines, "\n"), true
}

// RedirectPost is the result for an auto-submitted form to the provider.
func RedirectPost(url string, fields domain.Params, transactionID string) *domain.PurchaseResult {
	return &domain.PurchaseResult{
		Successful:     false,
		Redirect:       true,
		RedirectURL:    url,
		RedirectMethod: "POST",
		RedirectData:   map[string]string(fields),
		TransactionID:  transactionID,
	}
}

// CodeInvalidSignature marks a browser return whose MAC or signature failed.
const CodeInvalidSignature = "INVALID_SIGNATURE"

// Unverified is the completion result for a return that failed verification.
func Unverified(message string) *domain.CompletionResult {
	return &domain.CompletionResult{Code: CodeInvalidSignature, Message: message}
}

// Rejected is the result for a provider or validation refusal.
func Rejected(code, message string) *domain.PurchaseResult {
	return &domain.PurchaseResult{Code: code, Message: message}
}
