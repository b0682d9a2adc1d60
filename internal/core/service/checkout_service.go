// Package service implements the core business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/adapters/gateway"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	"github.com/fitstack/checkout-gateways/internal/ledger"
)

// CheckoutConfig holds the checkout defaults and the public base URLs used
// to build callback addresses.
type CheckoutConfig struct {
	TransactionPrefix string `mapstructure:"transaction_prefix"`
	AllowResubmit     bool   `mapstructure:"allow_resubmit"`
	NotifyBaseURL     string `mapstructure:"notify_base_url"`
	ReturnBaseURL     string `mapstructure:"return_base_url"`
}

// CompletionOutcome is what the payer's browser return resolves to.
type CompletionOutcome struct {
	OrderID     string             `json:"order_id"`
	Status      domain.OrderStatus `json:"status"`
	Successful  bool               `json:"successful"`
	Pending     bool               `json:"pending"`
	Message     string             `json:"message,omitempty"`
	PaymentInfo domain.PaymentInfo `json:"payment_info,omitempty"`
}

// CheckoutService starts checkouts and handles browser returns.
type CheckoutService struct {
	gateways ports.GatewayResolver
	ledger   *ledger.Ledger
	events   ports.EventPublisher
	cfg      CheckoutConfig
	logger   *zap.Logger
}

// NewCheckoutService creates a new checkout service. events may be nil.
func NewCheckoutService(
	gateways ports.GatewayResolver,
	ledger *ledger.Ledger,
	events ports.EventPublisher,
	cfg CheckoutConfig,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		gateways: gateways,
		ledger:   ledger,
		events:   events,
		cfg:      cfg,
		logger:   logger,
	}
}

// Purchase starts a checkout of orderID through gatewayID. Provider
// rejections come back as an unsuccessful result with the order untouched.
func (s *CheckoutService) Purchase(ctx context.Context, gatewayID, orderID string) (*domain.PurchaseResult, error) {
	gw, err := s.gateways.Gateway(gatewayID)
	if err != nil {
		return nil, err
	}
	order, err := s.ledger.FindByIDOrFail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsPaid() {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest, "order is already paid", "ORDER_PAID")
	}

	settings := gw.Settings()
	prefix := settings.String(gateway.SettingTxnPrefix, "")
	if prefix == "" {
		prefix = s.cfg.TransactionPrefix
	}
	resubmit := s.cfg.AllowResubmit || settings.Bool(gateway.SettingResubmit, false)

	txn, err := s.ledger.CreateTransactionID(ctx, order, prefix, resubmit)
	if err != nil {
		return nil, err
	}

	notifyURL := joinURL(s.cfg.NotifyBaseURL, "notify", gw.ID())
	req := domain.PaymentRequest{
		OrderID:       order.ID,
		TransactionID: txn,
		Amount:        order.Total,
		Currency:      order.Currency,
		Description:   "Order #" + order.ID,
		ReturnURL:     joinURL(s.cfg.ReturnBaseURL, "return", gw.ID()),
		NotifyURL:     notifyURL,
		// Instruction callbacks share the notify endpoint; the dispatcher
		// tells them apart by payload.
		PaymentInfoURL: notifyURL,
	}

	log := s.logger.With(
		zap.String("gateway", gw.ID()),
		zap.String("order_id", order.ID),
		zap.String("transaction_id", txn),
	)

	res, err := gw.Purchase(ctx, req)
	if err != nil {
		log.Error("purchase failed", zap.Error(err))
		return nil, checkoutErr(err)
	}

	switch {
	case res.Redirect:
		if err := s.ledger.MarkAsOnHold(ctx, order, "Awaiting payment via "+gw.ID()); err != nil {
			return nil, err
		}
		log.Info("purchase redirected", zap.String("method", res.RedirectMethod))
	case res.Successful:
		if err := s.ledger.MarkAsOnHold(ctx, order, "Awaiting payment via "+gw.ID()); err != nil {
			return nil, err
		}
		if err := s.saveInstructions(ctx, gw, order, nil); err != nil {
			return nil, err
		}
		log.Info("purchase accepted")
	default:
		log.Warn("purchase rejected", zap.String("code", res.Code), zap.String("message", res.Message))
	}
	return res, nil
}

// CompletePurchase handles the payer's browser return. The order only
// changes state when the provider reports a verified final result.
func (s *CheckoutService) CompletePurchase(ctx context.Context, gatewayID string, params domain.Params) (*CompletionOutcome, error) {
	gw, err := s.gateways.Gateway(gatewayID)
	if err != nil {
		return nil, err
	}

	res, err := gw.CompletePurchase(ctx, params)
	if err != nil {
		s.logger.Error("complete purchase failed", zap.String("gateway", gatewayID), zap.Error(err))
		return nil, checkoutErr(err)
	}
	if res.Code == gateway.CodeInvalidSignature {
		return nil, domain.NewServiceError(domain.ErrInvalidSignature, res.Message, gateway.CodeInvalidSignature)
	}

	order, err := s.ledger.FindByTransactionIDOrFail(ctx, res.TransactionID)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(
		zap.String("gateway", gatewayID),
		zap.String("order_id", order.ID),
		zap.String("transaction_id", res.TransactionID),
	)

	if res.Data != nil {
		if err := s.ledger.SavePaymentInfo(ctx, order, gw.NormalizePaymentInfo(res.Data)); err != nil {
			return nil, err
		}
	}

	switch {
	case res.Successful && !order.Status.IsPaid():
		if !gw.ValidateAmount(res.Data, order.Total) {
			log.Warn("return amount mismatch", zap.Int64("total", order.Total))
			break
		}
		applied, err := s.ledger.MarkAsComplete(ctx, order, res.Reference, "Payment completed via "+gatewayID)
		if err != nil {
			return nil, err
		}
		if applied {
			publish(ctx, s.events, log, newEvent(domain.EventPaymentApproved, gatewayID, res.TransactionID, res.Reference, order))
		}
	case res.Pending:
		if err := s.ledger.MarkAsOnHold(ctx, order, "Awaiting payment via "+gatewayID); err != nil {
			return nil, err
		}
	case !res.Successful && res.Data != nil:
		if err := s.ledger.MarkAsFailed(ctx, order, failureNote(res.Code, res.Message)); err != nil {
			return nil, err
		}
	}

	log.Info("purchase completed",
		zap.Bool("successful", res.Successful),
		zap.Bool("pending", res.Pending),
		zap.String("status", string(order.Status)),
	)
	return &CompletionOutcome{
		OrderID:     order.ID,
		Status:      order.Status,
		Successful:  res.Successful,
		Pending:     res.Pending,
		Message:     res.Message,
		PaymentInfo: s.ledger.GetPaymentInfo(order),
	}, nil
}

// SaveRemittanceLast5 records the payer's account suffix for a bank transfer.
func (s *CheckoutService) SaveRemittanceLast5(ctx context.Context, orderID, digits string) error {
	order, err := s.ledger.FindByIDOrFail(ctx, orderID)
	if err != nil {
		return err
	}
	return s.ledger.SaveRemittanceLast5(ctx, order, digits)
}

// PaymentInfo returns the stored offline payment instructions of an order.
func (s *CheckoutService) PaymentInfo(ctx context.Context, orderID string) (domain.PaymentInfo, error) {
	order, err := s.ledger.FindByIDOrFail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.ledger.GetPaymentInfo(order), nil
}

// CreateOrder inserts a pending order.
func (s *CheckoutService) CreateOrder(ctx context.Context, order *domain.Order) error {
	return s.ledger.CreateOrder(ctx, order)
}

func (s *CheckoutService) saveInstructions(ctx context.Context, gw ports.Gateway, order *domain.Order, data domain.Params) error {
	info := gw.NormalizePaymentInfo(data)
	if info.IsEmpty() {
		return nil
	}
	if err := s.ledger.SavePaymentInfo(ctx, order, info); err != nil {
		return err
	}
	if note, ok := gw.PaymentInfoNote(data); ok {
		return s.ledger.AddNote(ctx, order, note)
	}
	return nil
}

// checkoutErr hides transport and configuration detail from the payer.
func checkoutErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrNetwork):
		return domain.NewServiceError(domain.ErrNetwork,
			"the payment provider could not be reached, please try again", "NETWORK_ERROR")
	case errors.Is(err, domain.ErrConfiguration):
		return domain.NewServiceError(domain.ErrConfiguration,
			"this payment method is not available", "GATEWAY_NOT_CONFIGURED")
	default:
		return err
	}
}

func joinURL(base, kind, id string) string {
	return strings.TrimRight(base, "/") + "/" + kind + "/" + id
}

func failureNote(code, message string) string {
	note := "Payment failed"
	if code != "" {
		note += fmt.Sprintf(" (%s)", code)
	}
	if message != "" {
		note += ": " + message
	}
	return note
}

func newEvent(name, gatewayID, transactionID, reference string, order *domain.Order) domain.PaymentEvent {
	return domain.PaymentEvent{
		Event:         name,
		OrderID:       order.ID,
		Gateway:       gatewayID,
		TransactionID: transactionID,
		Reference:     reference,
		Status:        order.Status,
		Amount:        order.Total,
		Currency:      order.Currency,
		Timestamp:     time.Now().Format(time.RFC3339),
	}
}

// publish forwards the event. Delivery failures are logged only; the
// payment state is already stored.
func publish(ctx context.Context, events ports.EventPublisher, log *zap.Logger, event domain.PaymentEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		log.Error("failed to publish payment event", zap.String("event", event.Event), zap.Error(err))
	}
}
