// Package defaultgw implements a generic JSON gateway for providers that
// follow a simple redirect-and-callback contract.
package defaultgw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fitstack/checkout-gateways/internal/adapters/gateway"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// Provider is the provider family name.
const Provider = "default"

// Setting keys.
const (
	SettingEndpoint      = "endpoint"
	SettingAPIKey        = "api_key"
	SettingWebhookSecret = "webhook_secret"
)

// Statuses understood in purchase replies and callbacks.
const (
	StatusRedirect = "redirect"
	StatusApproved = "approved"
	StatusPaid     = "paid"
	StatusPending  = "pending"
)

type purchaseReply struct {
	Status         string            `json:"status"`
	RedirectURL    string            `json:"redirect_url"`
	RedirectMethod string            `json:"redirect_method"`
	Fields         map[string]string `json:"fields"`
	Reference      string            `json:"reference"`
	Code           string            `json:"code"`
	Message        string            `json:"message"`
}

// Client posts purchases and verifies callbacks.
type Client struct {
	endpoint  string
	apiKey    string
	signer    *Signer
	transport ports.Transport
}

// Adapter is one configured default gateway instance.
type Adapter struct {
	gateway.Base
	session *gateway.Session[*Client]
}

var _ ports.Gateway = (*Adapter)(nil)

// New creates a default gateway adapter.
func New(id string, transport ports.Transport) *Adapter {
	return &Adapter{
		Base: gateway.NewBase(id, Provider, domain.GatewaySettings{
			SettingEndpoint:      "",
			SettingAPIKey:        "",
			SettingWebhookSecret: "",
		}),
		session: gateway.NewSession(func(s domain.GatewaySettings) (*Client, error) {
			endpoint := s.String(SettingEndpoint, "")
			if endpoint == "" {
				return nil, fmt.Errorf("%w: endpoint is required", domain.ErrConfiguration)
			}
			return &Client{
				endpoint:  endpoint,
				apiKey:    s.String(SettingAPIKey, ""),
				signer:    NewSigner(s.String(SettingWebhookSecret, "")),
				transport: transport,
			}, nil
		}),
	}
}

func (a *Adapter) Configure(settings domain.GatewaySettings) {
	a.session.Configure(a.WithDefaults(settings))
}

func (a *Adapter) Settings() domain.GatewaySettings {
	return a.session.Settings()
}

// Purchase posts the payment request as JSON to the configured endpoint.
func (a *Adapter) Purchase(ctx context.Context, req domain.PaymentRequest) (*domain.PurchaseResult, error) {
	client, err := a.session.Client()
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return gateway.Rejected("INVALID_AMOUNT", "amount must be positive"), nil
	}

	body, err := json.Marshal(map[string]any{
		"order_id":         req.OrderID,
		"transaction_id":   req.TransactionID,
		"amount":           req.Amount,
		"currency":         req.Currency,
		"description":      req.Description,
		"return_url":       req.ReturnURL,
		"notify_url":       req.NotifyURL,
		"payment_info_url": req.PaymentInfoURL,
		"payment_type":     req.PaymentType,
	})
	if err != nil {
		return nil, fmt.Errorf("encode purchase: %w", err)
	}

	header := http.Header{"Content-Type": {"application/json"}, "Accept": {"application/json"}}
	if client.apiKey != "" {
		header.Set("Authorization", "Bearer "+client.apiKey)
	}
	resp, err := client.transport.Do(ctx, &domain.HTTPRequest{
		Method: http.MethodPost,
		URL:    client.endpoint,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	var reply purchaseReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return gateway.Rejected("HTTP_"+strconv.Itoa(resp.StatusCode), resp.ReasonPhrase), nil
		}
		return gateway.Rejected("INVALID_RESPONSE", "provider reply is not JSON"), nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		code := reply.Code
		if code == "" {
			code = "HTTP_" + strconv.Itoa(resp.StatusCode)
		}
		return gateway.Rejected(code, reply.Message), nil
	}

	switch reply.Status {
	case StatusRedirect:
		if reply.RedirectURL == "" {
			return gateway.Rejected("INVALID_RESPONSE", "redirect without url"), nil
		}
		method := strings.ToUpper(reply.RedirectMethod)
		if method == "" {
			method = http.MethodGet
		}
		return &domain.PurchaseResult{
			Redirect:       true,
			RedirectURL:    reply.RedirectURL,
			RedirectMethod: method,
			RedirectData:   reply.Fields,
			TransactionID:  req.TransactionID,
			Reference:      reply.Reference,
		}, nil
	case StatusApproved, StatusPaid:
		return &domain.PurchaseResult{
			Successful:    true,
			TransactionID: req.TransactionID,
			Reference:     reply.Reference,
			Message:       reply.Message,
		}, nil
	default:
		return &domain.PurchaseResult{
			TransactionID: req.TransactionID,
			Reference:     reply.Reference,
			Code:          reply.Code,
			Message:       reply.Message,
		}, nil
	}
}

// CompletePurchase verifies the signed return fields.
func (a *Adapter) CompletePurchase(_ context.Context, params domain.Params) (*domain.CompletionResult, error) {
	client, err := a.session.Client()
	if err != nil {
		return nil, err
	}
	if !client.signer.Verify(params) {
		return gateway.Unverified("signature verify fail"), nil
	}
	status := statusOf(params.Get("status"))
	return &domain.CompletionResult{
		Successful:    status == domain.NotificationCompleted,
		Pending:       status == domain.NotificationPending,
		TransactionID: params.Get("transaction_id"),
		Reference:     params.Get("reference"),
		Code:          params.Get("code"),
		Message:       params.Get("message"),
		Data:          params.Clone(),
	}, nil
}

func (a *Adapter) AcceptNotification(_ context.Context, params domain.Params) (*domain.Notification, error) {
	txn := params.Get("transaction_id")
	if txn == "" {
		return nil, fmt.Errorf("%w: transaction_id is missing", domain.ErrInvalidRequest)
	}
	return &domain.Notification{
		TransactionID: txn,
		Reference:     params.Get("reference"),
		Status:        statusOf(params.Get("status")),
		Code:          params.Get("code"),
		Message:       params.Get("message"),
		SimulatePaid:  params.Get("test") == "1" || params.Get("test") == "true",
		Data:          params.Clone(),
	}, nil
}

func (a *Adapter) VerifyNotification(_ context.Context, params domain.Params) bool {
	client, err := a.session.Client()
	if err != nil {
		return false
	}
	return client.signer.Verify(params)
}

// Classify reports a pending callback that carries canonical instruction fields.
func (a *Adapter) Classify(data domain.Params) domain.NotificationKind {
	if statusOf(data.Get("status")) == domain.NotificationPending && !a.NormalizePaymentInfo(data).IsEmpty() {
		return domain.KindPaymentInstructionIssued
	}
	return domain.KindPurchaseResult
}

func (a *Adapter) ValidateAmount(data domain.Params, total int64) bool {
	return gateway.AmountEquals(data, "amount", total)
}

// NormalizePaymentInfo keeps the canonical keys the provider sends as is.
func (a *Adapter) NormalizePaymentInfo(data domain.Params) domain.PaymentInfo {
	return domain.NewPaymentInfo(data)
}

func (a *Adapter) PaymentInfoNote(data domain.Params) (string, bool) {
	return gateway.PaymentInfoNote(a.NormalizePaymentInfo(data))
}

func statusOf(s string) domain.NotificationStatus {
	switch strings.ToLower(s) {
	case StatusPaid, StatusApproved, "completed", "success":
		return domain.NotificationCompleted
	case StatusPending:
		return domain.NotificationPending
	default:
		return domain.NotificationFailed
	}
}
