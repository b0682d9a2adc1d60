package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	"github.com/fitstack/checkout-gateways/internal/ledger"
)

// Failure reasons placed after the adapter's failure prefix.
const (
	reasonInvalidSignature = "invalid signature"
	reasonOrderNotFound    = "order not found"
	reasonAmountMismatch   = "amount mismatch"
	reasonStoreFailure     = "store failure"
	reasonNetwork          = "network error"
)

// NotificationDispatcher turns provider callbacks into order transitions.
// Every handled callback is answered with the adapter's own ack string.
type NotificationDispatcher struct {
	gateways ports.GatewayResolver
	ledger   *ledger.Ledger
	events   ports.EventPublisher
	logger   *zap.Logger
}

// NewNotificationDispatcher creates a dispatcher. events may be nil.
func NewNotificationDispatcher(
	gateways ports.GatewayResolver,
	ledger *ledger.Ledger,
	events ports.EventPublisher,
	logger *zap.Logger,
) *NotificationDispatcher {
	return &NotificationDispatcher{
		gateways: gateways,
		ledger:   ledger,
		events:   events,
		logger:   logger,
	}
}

// Handle processes one callback for gatewayID and returns the ack body.
// The only error is domain.ErrUnknownGateway, for which no ack contract exists.
func (d *NotificationDispatcher) Handle(ctx context.Context, gatewayID string, params domain.Params) (string, error) {
	gw, err := d.gateways.Gateway(gatewayID)
	if err != nil {
		return "", err
	}

	event := domain.NotificationEvent{Gateway: gatewayID, Payload: params, Kind: domain.KindUnknown}
	log := d.logger.With(zap.String("gateway", gatewayID))
	fail := func(reason string, fields ...zap.Field) (string, error) {
		log.Warn("notification refused", append(fields,
			zap.String("kind", string(event.Kind)),
			zap.String("reason", reason),
		)...)
		return gw.CallbackFailureResponse(reason), nil
	}

	n, err := gw.AcceptNotification(ctx, params)
	if err != nil {
		if errors.Is(err, domain.ErrNetwork) {
			return fail(reasonNetwork, zap.Error(err))
		}
		return fail(err.Error())
	}
	log = log.With(zap.String("transaction_id", n.TransactionID))

	if !gw.VerifyNotification(ctx, params) {
		return fail(reasonInvalidSignature)
	}

	order, err := d.ledger.FindByTransactionID(ctx, n.TransactionID)
	if err != nil {
		return fail(reasonStoreFailure, zap.Error(err))
	}
	if order == nil {
		return fail(reasonOrderNotFound)
	}
	log = log.With(zap.String("order_id", order.ID))

	event.Kind = gw.Classify(n.Data)
	if order.Status.IsPaid() {
		log.Info("notification for paid order ignored", zap.String("kind", string(event.Kind)))
		return gw.CallbackSuccessResponse(), nil
	}

	if event.Kind == domain.KindPaymentInstructionIssued {
		// A failed order reopens only through a new purchase.
		if order.Status == domain.StatusFailed {
			log.Info("instructions for failed order ignored")
			return gw.CallbackSuccessResponse(), nil
		}
		if err := d.issueInstructions(ctx, gw, order, n); err != nil {
			return fail(reasonStoreFailure, zap.Error(err))
		}
		publish(ctx, d.events, log, d.event(domain.EventPaymentPending, gatewayID, n, order))
		log.Info("payment instructions stored", zap.String("kind", string(event.Kind)))
		return gw.CallbackSuccessResponse(), nil
	}

	if !gw.ValidateAmount(n.Data, order.Total) {
		return fail(reasonAmountMismatch, zap.Int64("total", order.Total))
	}

	outcome, err := d.applyResult(ctx, gatewayID, order, n)
	if err != nil {
		return fail(reasonStoreFailure, zap.Error(err))
	}
	log.Info("notification handled",
		zap.String("kind", string(event.Kind)),
		zap.String("status", string(n.Status)),
		zap.String("outcome", outcome),
	)
	return gw.CallbackSuccessResponse(), nil
}

func (d *NotificationDispatcher) issueInstructions(ctx context.Context, gw ports.Gateway, order *domain.Order, n *domain.Notification) error {
	if err := d.ledger.SavePaymentInfo(ctx, order, gw.NormalizePaymentInfo(n.Data)); err != nil {
		return err
	}
	if note, ok := gw.PaymentInfoNote(n.Data); ok {
		if err := d.ledger.AddNote(ctx, order, note); err != nil {
			return err
		}
	}
	return d.ledger.MarkAsOnHold(ctx, order, "Awaiting payment via "+gw.ID())
}

func (d *NotificationDispatcher) applyResult(ctx context.Context, gatewayID string, order *domain.Order, n *domain.Notification) (string, error) {
	switch n.Status {
	case domain.NotificationCompleted:
		note := "Payment completed via " + gatewayID
		if n.Reference != "" {
			note += ", reference " + n.Reference
		}
		if n.SimulatePaid {
			note += " (simulated payment)"
		}
		applied, err := d.ledger.MarkAsComplete(ctx, order, n.Reference, note)
		if err != nil {
			return "", err
		}
		if !applied {
			return "already paid", nil
		}
		publish(ctx, d.events, d.logger, d.event(domain.EventPaymentApproved, gatewayID, n, order))
		return "completed", nil
	case domain.NotificationPending:
		if err := d.ledger.MarkAsOnHold(ctx, order, "Payment pending via "+gatewayID); err != nil {
			return "", err
		}
		return "on-hold", nil
	default:
		if err := d.ledger.MarkAsFailed(ctx, order, failureNote(n.Code, n.Message)); err != nil {
			return "", err
		}
		publish(ctx, d.events, d.logger, d.event(domain.EventPaymentRejected, gatewayID, n, order))
		return "failed", nil
	}
}

func (d *NotificationDispatcher) event(name, gatewayID string, n *domain.Notification, order *domain.Order) domain.PaymentEvent {
	e := newEvent(name, gatewayID, n.TransactionID, n.Reference, order)
	e.PaymentInfo = d.ledger.GetPaymentInfo(order)
	return e
}
