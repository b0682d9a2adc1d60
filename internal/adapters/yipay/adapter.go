// Package yipay implements the YiPay gateway adapter.
package yipay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fitstack/checkout-gateways/internal/adapters/gateway"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	yipayapi "github.com/fitstack/checkout-gateways/internal/platform/yipay"
)

// Provider is the provider family name.
const Provider = "yipay"

const statusSuccess = "00"

// Setting keys.
const (
	SettingMerchantID = "merchant_id"
	SettingKey        = "key"
	SettingIV         = "iv"
	SettingEndpoint   = "endpoint"
	SettingValidDays  = "valid_days"
)

// Adapter is one YiPay gateway instance. Each instance is bound to a
// single payment type.
type Adapter struct {
	gateway.Base
	session     *gateway.Session[*yipayapi.Client]
	paymentType string
}

var _ ports.Gateway = (*Adapter)(nil)

// New creates a YiPay adapter for paymentType (yipayapi.TypeCredit, TypeCVS or TypeATM).
func New(id, paymentType string) *Adapter {
	return &Adapter{
		Base: gateway.NewBase(id, Provider, domain.GatewaySettings{
			SettingMerchantID: "",
			SettingKey:        "",
			SettingIV:         "",
			SettingEndpoint:   "",
			SettingValidDays:  3,
		}),
		session: gateway.NewSession(func(s domain.GatewaySettings) (*yipayapi.Client, error) {
			return yipayapi.NewClient(yipayapi.Config{
				MerchantID: s.String(SettingMerchantID, ""),
				Key:        s.String(SettingKey, ""),
				IV:         s.String(SettingIV, ""),
				TestMode:   s.Bool(gateway.SettingTestMode, false),
				Endpoint:   s.String(SettingEndpoint, ""),
			})
		}),
		paymentType: paymentType,
	}
}

func (a *Adapter) Configure(settings domain.GatewaySettings) {
	a.session.Configure(a.WithDefaults(settings))
}

func (a *Adapter) Settings() domain.GatewaySettings {
	return a.session.Settings()
}

// Client returns the configured YiPay client.
func (a *Adapter) Client() (*yipayapi.Client, error) {
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
	if req.TransactionID == "" {
		return gateway.Rejected("INVALID_TRANSACTION_ID", "order no is required"), nil
	}

	fields := domain.Params{
		"type":          a.paymentType,
		"amount":        strconv.FormatInt(req.Amount, 10),
		"orderNo":       req.TransactionID,
		"returnURL":     req.ReturnURL,
		"cancelURL":     req.ReturnURL,
		"backgroundURL": req.NotifyURL,
	}
	if req.Description != "" {
		fields["orderDescription"] = req.Description
	}
	if a.paymentType != yipayapi.TypeCredit {
		fields["validDays"] = strconv.Itoa(a.session.Settings().Int(SettingValidDays, 3))
		if req.PaymentInfoURL != "" {
			fields["paymentInfoURL"] = req.PaymentInfoURL
		}
	}
	return gateway.RedirectPost(client.CheckoutURL(), client.SignedCheckout(fields), req.TransactionID), nil
}

func (a *Adapter) CompletePurchase(_ context.Context, params domain.Params) (*domain.CompletionResult, error) {
	client, err := a.Client()
	if err != nil {
		return nil, err
	}
	if !client.Verify(params) {
		return gateway.Unverified("checkCode verify fail"), nil
	}
	instruction := a.Classify(params) == domain.KindPaymentInstructionIssued
	ok := params.Get("statusCode") == statusSuccess
	return &domain.CompletionResult{
		Successful:    ok && !instruction,
		Pending:       ok && instruction,
		TransactionID: params.Get("orderNo"),
		Reference:     params.Get("transactionNo"),
		Code:          params.Get("statusCode"),
		Message:       params.Get("statusMessage"),
		Data:          params.Clone(),
	}, nil
}

func (a *Adapter) AcceptNotification(_ context.Context, params domain.Params) (*domain.Notification, error) {
	txn := params.Get("orderNo")
	if txn == "" {
		return nil, fmt.Errorf("%w: orderNo is missing", domain.ErrInvalidRequest)
	}
	status := domain.NotificationFailed
	if params.Get("statusCode") == statusSuccess {
		status = domain.NotificationCompleted
		if a.Classify(params) == domain.KindPaymentInstructionIssued {
			status = domain.NotificationPending
		}
	}
	return &domain.Notification{
		TransactionID: txn,
		Reference:     params.Get("transactionNo"),
		Status:        status,
		Code:          params.Get("statusCode"),
		Message:       params.Get("statusMessage"),
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

// Classify reports an issued CVS pin or ATM account that has not been paid yet.
func (a *Adapter) Classify(data domain.Params) domain.NotificationKind {
	if data.Get("paymentDate") != "" {
		return domain.KindPurchaseResult
	}
	switch data.Get("type") {
	case yipayapi.TypeCVS:
		if data.Get("pinCode") != "" {
			return domain.KindPaymentInstructionIssued
		}
	case yipayapi.TypeATM:
		if data.Get("account") != "" {
			return domain.KindPaymentInstructionIssued
		}
	}
	return domain.KindPurchaseResult
}

func (a *Adapter) ValidateAmount(data domain.Params, total int64) bool {
	return gateway.AmountEquals(data, "amount", total)
}

func (a *Adapter) NormalizePaymentInfo(data domain.Params) domain.PaymentInfo {
	fields := map[string]string{
		domain.InfoExpireDate: data.Get("expirationDate"),
	}
	switch data.Get("type") {
	case yipayapi.TypeATM:
		fields[domain.InfoBankCode] = data.Get("bankCode")
		fields[domain.InfoVirtualAccount] = data.Get("account")
	case yipayapi.TypeCVS:
		fields[domain.InfoPaymentNo] = data.Get("pinCode")
	}
	return domain.NewPaymentInfo(fields)
}

func (a *Adapter) PaymentInfoNote(data domain.Params) (string, bool) {
	return gateway.PaymentInfoNote(a.NormalizePaymentInfo(data))
}
