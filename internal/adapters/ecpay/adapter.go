// Package ecpay implements the ECPay gateway adapter.
package ecpay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fitstack/checkout-gateways/internal/adapters/gateway"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	ecpayapi "github.com/fitstack/checkout-gateways/internal/platform/ecpay"
)

// Provider is the provider family name.
const Provider = "ecpay"

// ChoosePayment values.
const (
	PaymentCredit  = "Credit"
	PaymentATM     = "ATM"
	PaymentCVS     = "CVS"
	PaymentBarcode = "BARCODE"
	PaymentAll     = "ALL"
)

// Result codes. ECPay reports an issued ATM account or CVS/barcode code with
// these values instead of the paid code; every other code is a purchase
// result. The two values come from ECPay's callback contract.
const (
	CodePaid               = "1"
	CodeATMInfoIssued      = "2"
	CodeCVSBarcodeIssued   = "10100073"
	simulatePaidTruthyFlag = "1"
)

// Setting keys.
const (
	SettingMerchantID      = "merchant_id"
	SettingHashKey         = "hash_key"
	SettingHashIV          = "hash_iv"
	SettingEndpoint        = "endpoint"
	SettingItemName        = "item_name"
	SettingTradeDesc       = "trade_desc"
	SettingExpireDate      = "expire_date"
	SettingStoreExpireDate = "store_expire_date"
	SettingIgnorePayment   = "ignore_payment"
)

var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// Adapter is one ECPay gateway instance.
type Adapter struct {
	gateway.Base
	session     *gateway.Session[*ecpayapi.Client]
	paymentType string
	now         func() time.Time
}

var _ ports.Gateway = (*Adapter)(nil)

// New creates an ECPay adapter for one ChoosePayment value.
func New(id, paymentType string, transport ports.Transport) *Adapter {
	return &Adapter{
		Base: gateway.NewBase(id, Provider, domain.GatewaySettings{
			SettingMerchantID:      "",
			SettingHashKey:         "",
			SettingHashIV:          "",
			SettingEndpoint:        "",
			SettingItemName:        "Online order",
			SettingTradeDesc:       "Online order",
			SettingExpireDate:      3,
			SettingStoreExpireDate: 10080,
			SettingIgnorePayment:   []string{},
		}),
		session: gateway.NewSession(func(s domain.GatewaySettings) (*ecpayapi.Client, error) {
			return ecpayapi.NewClient(ecpayapi.Config{
				MerchantID: s.String(SettingMerchantID, ""),
				HashKey:    s.String(SettingHashKey, ""),
				HashIV:     s.String(SettingHashIV, ""),
				TestMode:   s.Bool(gateway.SettingTestMode, false),
				Endpoint:   s.String(SettingEndpoint, ""),
			}, transport)
		}),
		paymentType: paymentType,
		now:         time.Now,
	}
}

func (a *Adapter) Configure(settings domain.GatewaySettings) {
	a.session.Configure(a.WithDefaults(settings))
}

func (a *Adapter) Settings() domain.GatewaySettings {
	return a.session.Settings()
}

// Client returns the configured ECPay client.
func (a *Adapter) Client() (*ecpayapi.Client, error) {
	return a.session.Client()
}

func (a *Adapter) Purchase(_ context.Context, req domain.PaymentRequest) (*domain.PurchaseResult, error) {
	client, err := a.Client()
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return gateway.Rejected("INVALID_AMOUNT", "amount must be positive"), nil
	}
	if req.TransactionID == "" || len(req.TransactionID) > 20 {
		return gateway.Rejected("INVALID_TRANSACTION_ID", "merchant trade no must be 1-20 characters"), nil
	}

	s := a.session.Settings()
	fields := domain.Params{
		"MerchantTradeNo":   req.TransactionID,
		"MerchantTradeDate": a.now().In(taipei).Format("2006/01/02 15:04:05"),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.FormatInt(req.Amount, 10),
		"TradeDesc":         describe(req.Description, s.String(SettingTradeDesc, "")),
		"ItemName":          describe(req.Description, s.String(SettingItemName, "")),
		"ReturnURL":         req.NotifyURL,
		"ChoosePayment":     a.choosePayment(req),
		"EncryptType":       "1",
		"NeedExtraPaidInfo": "N",
	}
	if req.ReturnURL != "" {
		fields["OrderResultURL"] = req.ReturnURL
	}
	switch fields["ChoosePayment"] {
	case PaymentATM:
		fields["ExpireDate"] = strconv.Itoa(s.Int(SettingExpireDate, 3))
		fields["PaymentInfoURL"] = paymentInfoURL(req)
	case PaymentCVS, PaymentBarcode:
		fields["StoreExpireDate"] = strconv.Itoa(s.Int(SettingStoreExpireDate, 10080))
		fields["PaymentInfoURL"] = paymentInfoURL(req)
	case PaymentAll:
		fields["PaymentInfoURL"] = paymentInfoURL(req)
		if ignore := s.Strings(SettingIgnorePayment, nil); len(ignore) > 0 {
			fields["IgnorePayment"] = strings.Join(ignore, "#")
		}
	}

	return gateway.RedirectPost(client.CheckoutURL(), client.SignedForm(fields), req.TransactionID), nil
}

// CompletePurchase handles OrderResultURL posts. A bare return carrying only
// MerchantTradeNo is resolved by querying the trade.
func (a *Adapter) CompletePurchase(ctx context.Context, params domain.Params) (*domain.CompletionResult, error) {
	client, err := a.Client()
	if err != nil {
		return nil, err
	}

	if params.Get(ecpayapi.MacField) == "" && params.Get("MerchantTradeNo") != "" {
		trade, err := client.QueryTradeInfo(ctx, params.Get("MerchantTradeNo"))
		if err != nil {
			return nil, err
		}
		return &domain.CompletionResult{
			Successful:    trade.Get("TradeStatus") == "1",
			Pending:       trade.Get("TradeStatus") == "0",
			TransactionID: trade.Get("MerchantTradeNo"),
			Reference:     trade.Get("TradeNo"),
			Code:          trade.Get("TradeStatus"),
			Data:          trade,
		}, nil
	}

	if !client.Verify(params) {
		res := gateway.Unverified("CheckMacValue verify fail")
		res.TransactionID = params.Get("MerchantTradeNo")
		return res, nil
	}
	code := params.Get("RtnCode")
	return &domain.CompletionResult{
		Successful:    code == CodePaid,
		Pending:       a.IsPaymentInfoNotification(params),
		TransactionID: params.Get("MerchantTradeNo"),
		Reference:     params.Get("TradeNo"),
		Code:          code,
		Message:       params.Get("RtnMsg"),
		Data:          params.Clone(),
	}, nil
}

func (a *Adapter) AcceptNotification(_ context.Context, params domain.Params) (*domain.Notification, error) {
	txn := params.Get("MerchantTradeNo")
	if txn == "" {
		return nil, fmt.Errorf("%w: MerchantTradeNo is missing", domain.ErrInvalidRequest)
	}
	code := params.Get("RtnCode")
	status := domain.NotificationFailed
	switch {
	case code == CodePaid:
		status = domain.NotificationCompleted
	case a.IsPaymentInfoNotification(params):
		status = domain.NotificationPending
	}
	return &domain.Notification{
		TransactionID: txn,
		Reference:     params.Get("TradeNo"),
		Status:        status,
		Code:          code,
		Message:       params.Get("RtnMsg"),
		SimulatePaid:  params.Get("SimulatePaid") == simulatePaidTruthyFlag,
		Data:          params.Clone(),
	}, nil
}

func (a *Adapter) VerifyNotification(_ context.Context, params domain.Params) bool {
	client, err := a.Client()
	if err != nil {
		return false
	}
	return client.Verify(params)
}

// IsPaymentInfoNotification reports whether data announces issued ATM or
// CVS/barcode instructions rather than a payment result.
func (a *Adapter) IsPaymentInfoNotification(data domain.Params) bool {
	code := data.Get("RtnCode")
	return code == CodeATMInfoIssued || code == CodeCVSBarcodeIssued
}

func (a *Adapter) Classify(data domain.Params) domain.NotificationKind {
	if a.IsPaymentInfoNotification(data) {
		return domain.KindPaymentInstructionIssued
	}
	return domain.KindPurchaseResult
}

func (a *Adapter) ValidateAmount(data domain.Params, total int64) bool {
	return gateway.AmountEquals(data, "TradeAmt", total)
}

// NormalizePaymentInfo keeps ECPay's fields, which already use the canonical names.
func (a *Adapter) NormalizePaymentInfo(data domain.Params) domain.PaymentInfo {
	return domain.NewPaymentInfo(data)
}

func (a *Adapter) PaymentInfoNote(data domain.Params) (string, bool) {
	return gateway.PaymentInfoNote(a.NormalizePaymentInfo(data))
}

func (a *Adapter) choosePayment(req domain.PaymentRequest) string {
	if req.PaymentType != "" {
		return req.PaymentType
	}
	if a.paymentType != "" {
		return a.paymentType
	}
	return PaymentAll
}

func paymentInfoURL(req domain.PaymentRequest) string {
	if req.PaymentInfoURL != "" {
		return req.PaymentInfoURL
	}
	return req.NotifyURL
}

func describe(desc, fallback string) string {
	if desc != "" {
		return desc
	}
	return fallback
}
