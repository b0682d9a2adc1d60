package domain

// Canonical payment-info keys.
const (
	InfoBankCode       = "BankCode"
	InfoBankAccount    = "BankAccount"
	InfoVirtualAccount = "vAccount"
	InfoPaymentNo      = "PaymentNo"
	InfoBarcode1       = "Barcode1"
	InfoBarcode2       = "Barcode2"
	InfoBarcode3       = "Barcode3"
	InfoExpireDate     = "ExpireDate"
)

// Order meta keys. These are stored on existing orders and must not be renamed.
const (
	MetaTransactionID   = "_omnipay_transaction_id"
	MetaBankCode        = "_omnipay_bank_code"
	MetaBankAccount     = "_omnipay_bank_account"
	MetaVirtualAccount  = "_omnipay_virtual_account"
	MetaPaymentNo       = "_omnipay_payment_no"
	MetaBarcode1        = "_omnipay_barcode_1"
	MetaBarcode2        = "_omnipay_barcode_2"
	MetaBarcode3        = "_omnipay_barcode_3"
	MetaExpireDate      = "_omnipay_expire_date"
	MetaRemittanceLast5 = "_omnipay_remittance_last5"
)

// PaymentInfoKeys lists the canonical keys in display order.
var PaymentInfoKeys = []string{
	InfoBankCode,
	InfoBankAccount,
	InfoVirtualAccount,
	InfoPaymentNo,
	InfoBarcode1,
	InfoBarcode2,
	InfoBarcode3,
	InfoExpireDate,
}

var paymentInfoMeta = map[string]string{
	InfoBankCode:       MetaBankCode,
	InfoBankAccount:    MetaBankAccount,
	InfoVirtualAccount: MetaVirtualAccount,
	InfoPaymentNo:      MetaPaymentNo,
	InfoBarcode1:       MetaBarcode1,
	InfoBarcode2:       MetaBarcode2,
	InfoBarcode3:       MetaBarcode3,
	InfoExpireDate:     MetaExpireDate,
}

// PaymentInfoMetaKey returns the order meta key for a canonical key.
func PaymentInfoMetaKey(key string) (string, bool) {
	meta, ok := paymentInfoMeta[key]
	return meta, ok
}

// PaymentInfo holds offline payment instructions under canonical keys only.
// A present key always has a non-empty value.
type PaymentInfo map[string]string

// NewPaymentInfo keeps the canonical, non-empty entries of fields.
func NewPaymentInfo(fields map[string]string) PaymentInfo {
	info := PaymentInfo{}
	for _, key := range PaymentInfoKeys {
		if v := fields[key]; v != "" {
			info[key] = v
		}
	}
	return info
}

// IsEmpty reports whether no instruction field is present.
func (p PaymentInfo) IsEmpty() bool {
	return len(p) == 0
}
