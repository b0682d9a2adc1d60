// Package mercadopago implements the Mercado Pago Checkout Pro gateway using the official SDK.
package mercadopago

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	"github.com/fitstack/checkout-gateways/internal/adapters/gateway"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// Provider is the provider family name.
const Provider = "mercadopago"

// Setting keys.
const (
	SettingAccessToken   = "access_token"
	SettingWebhookSecret = "webhook_secret"
	SettingCurrency      = "currency"
)

// Payment statuses reported by Mercado Pago.
const (
	StatusApproved   = "approved"
	StatusPending    = "pending"
	StatusInProcess  = "in_process"
	StatusAuthorized = "authorized"
)

type preferenceCreator interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

type paymentGetter interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
}

// Client bundles the SDK clients for one access token.
type Client struct {
	preferences preferenceCreator
	payments    paymentGetter
	validator   *WebhookValidator
	currency    string
	sandbox     bool
}

func newClient(s domain.GatewaySettings) (*Client, error) {
	token := s.String(SettingAccessToken, "")
	if token == "" {
		return nil, fmt.Errorf("%w: mercadopago access token is required", domain.ErrConfiguration)
	}
	cfg, err := config.New(token)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrConfiguration, "failed to create MP config", "MP_CONFIG_ERROR")
	}
	return &Client{
		preferences: preference.NewClient(cfg),
		payments:    payment.NewClient(cfg),
		validator:   NewWebhookValidator(s.String(SettingWebhookSecret, "")),
		currency:    s.String(SettingCurrency, "ARS"),
		sandbox:     s.Bool(gateway.SettingTestMode, false),
	}, nil
}

// Adapter is the Mercado Pago gateway.
type Adapter struct {
	gateway.Base
	session *gateway.Session[*Client]
}

var _ ports.Gateway = (*Adapter)(nil)

// New creates a Mercado Pago adapter.
func New(id string) *Adapter {
	return &Adapter{
		Base: gateway.NewBase(id, Provider, domain.GatewaySettings{
			SettingAccessToken:   "",
			SettingWebhookSecret: "",
			SettingCurrency:      "ARS",
		}),
		session: gateway.NewSession(newClient),
	}
}

func (a *Adapter) Configure(settings domain.GatewaySettings) {
	a.session.Configure(a.WithDefaults(settings))
}

func (a *Adapter) Settings() domain.GatewaySettings {
	return a.session.Settings()
}

// Purchase creates a Checkout Pro preference and redirects to its init point.
func (a *Adapter) Purchase(ctx context.Context, req domain.PaymentRequest) (*domain.PurchaseResult, error) {
	client, err := a.session.Client()
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return gateway.Rejected("INVALID_AMOUNT", "amount must be positive"), nil
	}

	currency := req.Currency
	if currency == "" {
		currency = client.currency
	}
	title := req.Description
	if title == "" {
		title = "Order " + req.OrderID
	}

	result, err := client.preferences.Create(ctx, preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:      title,
				Quantity:   1,
				UnitPrice:  float64(req.Amount) / 100,
				CurrencyID: currency,
			},
		},
		ExternalReference: req.TransactionID,
		AutoReturn:        "approved",
		BackURLs: &preference.BackURLsRequest{
			Success: req.ReturnURL,
			Failure: req.ReturnURL,
			Pending: req.ReturnURL,
		},
		NotificationURL: req.NotifyURL,
	})
	if err != nil {
		return gateway.Rejected("MP_PREFERENCE_ERROR", "failed to create preference: "+err.Error()), nil
	}

	target := result.InitPoint
	if client.sandbox && result.SandboxInitPoint != "" {
		target = result.SandboxInitPoint
	}
	return &domain.PurchaseResult{
		Redirect:       true,
		RedirectURL:    target,
		RedirectMethod: "GET",
		TransactionID:  req.TransactionID,
		Reference:      result.ID,
	}, nil
}

// CompletePurchase reads the back_url query and confirms the payment with the API.
func (a *Adapter) CompletePurchase(ctx context.Context, params domain.Params) (*domain.CompletionResult, error) {
	client, err := a.session.Client()
	if err != nil {
		return nil, err
	}
	id := params.Get("payment_id")
	if id == "" {
		id = params.Get("collection_id")
	}
	if id == "" || id == "null" {
		return &domain.CompletionResult{
			TransactionID: params.Get("external_reference"),
			Code:          params.Get("status"),
			Message:       "payment was not created",
		}, nil
	}

	data, err := a.fetch(ctx, client, id)
	if err != nil {
		return nil, err
	}
	status := data.Get("status")
	return &domain.CompletionResult{
		Successful:    status == StatusApproved,
		Pending:       isPending(status),
		TransactionID: data.Get("external_reference"),
		Reference:     id,
		Code:          status,
		Message:       data.Get("status_detail"),
		Data:          data,
	}, nil
}

// AcceptNotification loads the payment named by a "payment" webhook.
func (a *Adapter) AcceptNotification(ctx context.Context, params domain.Params) (*domain.Notification, error) {
	client, err := a.session.Client()
	if err != nil {
		return nil, err
	}
	if t := firstOf(params, "type", "topic"); t != "" && t != "payment" {
		return nil, fmt.Errorf("%w: unsupported notification type %q", domain.ErrInvalidRequest, t)
	}
	id := dataID(params)
	if id == "" {
		return nil, fmt.Errorf("%w: data.id is missing", domain.ErrInvalidRequest)
	}

	data, err := a.fetch(ctx, client, id)
	if err != nil {
		return nil, err
	}

	var status domain.NotificationStatus
	switch s := data.Get("status"); {
	case s == StatusApproved:
		status = domain.NotificationCompleted
	case isPending(s):
		status = domain.NotificationPending
	default:
		status = domain.NotificationFailed
	}
	return &domain.Notification{
		TransactionID: data.Get("external_reference"),
		Reference:     id,
		Status:        status,
		Code:          data.Get("status"),
		Message:       data.Get("status_detail"),
		Data:          data,
	}, nil
}

func (a *Adapter) VerifyNotification(_ context.Context, params domain.Params) bool {
	client, err := a.session.Client()
	if err != nil {
		return false
	}
	return client.validator.ValidateSignature(params.Get(HeaderSignature), params.Get(HeaderRequestID), dataID(params))
}

// ValidateAmount compares the transaction amount in cents.
func (a *Adapter) ValidateAmount(data domain.Params, total int64) bool {
	return gateway.AmountEquals(data, "amount", total)
}

// NormalizePaymentInfo returns no instructions; offline tickets are paid on
// Mercado Pago's own page.
func (a *Adapter) NormalizePaymentInfo(domain.Params) domain.PaymentInfo {
	return domain.PaymentInfo{}
}

func (a *Adapter) PaymentInfoNote(data domain.Params) (string, bool) {
	return gateway.PaymentInfoNote(a.NormalizePaymentInfo(data))
}

func (a *Adapter) CallbackSuccessResponse() string { return "OK" }

func (a *Adapter) CallbackFailureResponse(message string) string { return "FAIL|" + message }

func (a *Adapter) fetch(ctx context.Context, client *Client, id string) (domain.Params, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest, "invalid payment ID format", "INVALID_PAYMENT_ID")
	}
	result, err := client.payments.Get(ctx, n)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to get payment info: "+err.Error(), "MP_PAYMENT_ERROR")
	}
	return domain.Params{
		"id":                 id,
		"status":             result.Status,
		"status_detail":      result.StatusDetail,
		"external_reference": result.ExternalReference,
		"amount":             strconv.FormatInt(int64(math.Round(result.TransactionAmount*100)), 10),
		"currency_id":        result.CurrencyID,
		"payment_method_id":  result.PaymentMethodID,
		"payment_type_id":    result.PaymentTypeID,
	}, nil
}

func isPending(status string) bool {
	return status == StatusPending || status == StatusInProcess || status == StatusAuthorized
}

func dataID(params domain.Params) string {
	return firstOf(params, "data.id", "id")
}

func firstOf(params domain.Params, keys ...string) string {
	for _, k := range keys {
		if v := params.Get(k); v != "" {
			return v
		}
	}
	return ""
}
