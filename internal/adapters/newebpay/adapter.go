// Package newebpay implements the NewebPay MPG gateway adapter.
package newebpay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"

	"github.com/fitstack/checkout-gateways/internal/adapters/gateway"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	newebpayapi "github.com/fitstack/checkout-gateways/internal/platform/newebpay"
)

// Provider is the provider family name.
const Provider = "newebpay"

// PaymentType values; each is sent as a "<TYPE>=1" flag.
const (
	PaymentCredit  = "CREDIT"
	PaymentVACC    = "VACC"
	PaymentCVS     = "CVS"
	PaymentBarcode = "BARCODE"
	PaymentWebATM  = "WEBATM"
)

const statusSuccess = "SUCCESS"

// Setting keys.
const (
	SettingMerchantID = "merchant_id"
	SettingHashKey    = "hash_key"
	SettingHashIV     = "hash_iv"
	SettingEndpoint   = "endpoint"
	SettingItemDesc   = "item_desc"
	SettingExpireDays = "expire_days"
	SettingLangType   = "lang_type"
)

var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// Adapter is one NewebPay gateway instance.
type Adapter struct {
	gateway.Base
	session     *gateway.Session[*newebpayapi.Client]
	paymentType string
	now         func() time.Time
}

var _ ports.Gateway = (*Adapter)(nil)

// New creates a NewebPay adapter. An empty paymentType lets the payer choose.
func New(id, paymentType string, transport ports.Transport) *Adapter {
	return &Adapter{
		Base: gateway.NewBase(id, Provider, domain.GatewaySettings{
			SettingMerchantID: "",
			SettingHashKey:    "",
			SettingHashIV:     "",
			SettingEndpoint:   "",
			SettingItemDesc:   "Online order",
			SettingExpireDays: 7,
			SettingLangType:   "zh-tw",
		}),
		session: gateway.NewSession(func(s domain.GatewaySettings) (*newebpayapi.Client, error) {
			return newebpayapi.NewClient(newebpayapi.Config{
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

// Client returns the configured NewebPay client.
func (a *Adapter) Client() (*newebpayapi.Client, error) {
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
	if req.TransactionID == "" || len(req.TransactionID) > 30 {
		return gateway.Rejected("INVALID_TRANSACTION_ID", "merchant order no must be 1-30 characters"), nil
	}

	s := a.session.Settings()
	trade := domain.Params{
		"MerchantOrderNo": req.TransactionID,
		"Amt":             strconv.FormatInt(req.Amount, 10),
		"ItemDesc":        s.String(SettingItemDesc, "Online order"),
		"LangType":        s.String(SettingLangType, "zh-tw"),
		"NotifyURL":       req.NotifyURL,
		"LoginType":       "0",
		"TimeStamp":       strconv.FormatInt(a.now().Unix(), 10),
	}
	if req.Description != "" {
		trade["ItemDesc"] = req.Description
	}
	if req.ReturnURL != "" {
		trade["ReturnURL"] = req.ReturnURL
	}

	pt := req.PaymentType
	if pt == "" {
		pt = a.paymentType
	}
	if pt != "" {
		trade[pt] = "1"
	}
	switch pt {
	case PaymentVACC, PaymentCVS, PaymentBarcode, "":
		trade["CustomerURL"] = req.PaymentInfoURL
		if trade["CustomerURL"] == "" {
			trade["CustomerURL"] = req.NotifyURL
		}
		days := s.Int(SettingExpireDays, 7)
		trade["ExpireDate"] = a.now().In(taipei).AddDate(0, 0, days).Format("20060102")
	}

	form, err := client.CheckoutForm(trade)
	if err != nil {
		return nil, err
	}
	return gateway.RedirectPost(client.CheckoutURL(), form, req.TransactionID), nil
}

// CompletePurchase handles the ReturnURL post. A return without TradeInfo is
// resolved by querying MerchantOrderNo and Amt.
func (a *Adapter) CompletePurchase(ctx context.Context, params domain.Params) (*domain.CompletionResult, error) {
	client, err := a.Client()
	if err != nil {
		return nil, err
	}

	if params.Get("TradeInfo") == "" && params.Get("MerchantOrderNo") != "" {
		trade, err := client.QueryTradeInfo(ctx, params.Get("MerchantOrderNo"), cast.ToInt64(params.Get("Amt")))
		if err != nil {
			return nil, err
		}
		return &domain.CompletionResult{
			Successful:    trade.Get("Status") == statusSuccess && trade.Get("TradeStatus") == "1",
			Pending:       trade.Get("TradeStatus") == "0",
			TransactionID: trade.Get("MerchantOrderNo"),
			Reference:     trade.Get("TradeNo"),
			Code:          trade.Get("TradeStatus"),
			Message:       trade.Get("Message"),
			Data:          trade,
		}, nil
	}

	data, err := client.ParseResult(params)
	if err != nil {
		return gateway.Unverified(err.Error()), nil
	}
	instruction := a.Classify(data) == domain.KindPaymentInstructionIssued
	return &domain.CompletionResult{
		Successful:    data.Get("Status") == statusSuccess && !instruction,
		Pending:       data.Get("Status") == statusSuccess && instruction,
		TransactionID: data.Get("MerchantOrderNo"),
		Reference:     data.Get("TradeNo"),
		Code:          data.Get("Status"),
		Message:       data.Get("Message"),
		Data:          data,
	}, nil
}

func (a *Adapter) AcceptNotification(_ context.Context, params domain.Params) (*domain.Notification, error) {
	client, err := a.Client()
	if err != nil {
		return nil, err
	}
	data, err := client.ParseResult(params)
	if err != nil {
		return nil, err
	}
	txn := data.Get("MerchantOrderNo")
	if txn == "" {
		return nil, fmt.Errorf("%w: MerchantOrderNo is missing", domain.ErrInvalidRequest)
	}

	status := domain.NotificationFailed
	if data.Get("Status") == statusSuccess {
		status = domain.NotificationCompleted
		if a.Classify(data) == domain.KindPaymentInstructionIssued {
			status = domain.NotificationPending
		}
	}
	return &domain.Notification{
		TransactionID: txn,
		Reference:     data.Get("TradeNo"),
		Status:        status,
		Code:          data.Get("Status"),
		Message:       data.Get("Message"),
		Data:          data,
	}, nil
}

func (a *Adapter) VerifyNotification(_ context.Context, params domain.Params) bool {
	client, err := a.Client()
	if err != nil {
		return false
	}
	return client.Verify(params)
}

// Classify treats an offline-payment callback without PayTime as the
// account/code issuance sent to CustomerURL.
func (a *Adapter) Classify(data domain.Params) domain.NotificationKind {
	switch data.Get("PaymentType") {
	case PaymentVACC, PaymentCVS, PaymentBarcode:
		if data.Get("PayTime") == "" {
			return domain.KindPaymentInstructionIssued
		}
	}
	return domain.KindPurchaseResult
}

func (a *Adapter) ValidateAmount(data domain.Params, total int64) bool {
	return gateway.AmountEquals(data, "Amt", total)
}

func (a *Adapter) NormalizePaymentInfo(data domain.Params) domain.PaymentInfo {
	fields := map[string]string{
		domain.InfoBankCode: data.Get("BankCode"),
	}
	switch data.Get("PaymentType") {
	case PaymentVACC:
		fields[domain.InfoVirtualAccount] = data.Get("CodeNo")
	case PaymentCVS:
		fields[domain.InfoPaymentNo] = data.Get("CodeNo")
	case PaymentBarcode:
		fields[domain.InfoBarcode1] = data.Get("Barcode_1")
		fields[domain.InfoBarcode2] = data.Get("Barcode_2")
		fields[domain.InfoBarcode3] = data.Get("Barcode_3")
	}
	if expire := data.Get("ExpireDate"); expire != "" {
		if t := data.Get("ExpireTime"); t != "" {
			expire += " " + t
		}
		fields[domain.InfoExpireDate] = expire
	}
	return domain.NewPaymentInfo(fields)
}

func (a *Adapter) PaymentInfoNote(data domain.Params) (string, bool) {
	return gateway.PaymentInfoNote(a.NormalizePaymentInfo(data))
}
