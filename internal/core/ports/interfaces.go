// Package ports defines the interfaces (ports) for the checkout gateways.
// These are contracts that adapters must implement.
package ports

import (
	"context"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Transport sends one HTTP request to a provider API.
// Failures and timeouts are returned as *domain.NetworkError.
type Transport interface {
	Do(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error)
}

// Gateway is implemented once per payment provider.
type Gateway interface {
	// ID is the gateway instance id used in callback URLs (e.g. "ecpay_atm").
	ID() string

	// Provider names the provider family shared by several instances (e.g. "ecpay").
	Provider() string

	// DefaultParameters lists every setting the gateway understands with its
	// default value; the default's type drives conversion of stored options.
	DefaultParameters() domain.GatewaySettings

	// Configure replaces the settings. The provider client is rebuilt on the
	// next use only when the settings differ.
	Configure(settings domain.GatewaySettings)

	// Settings returns the settings last passed to Configure.
	Settings() domain.GatewaySettings

	// Purchase starts a checkout. Provider rejections are reported in the
	// result; an error means the request could not be made.
	Purchase(ctx context.Context, req domain.PaymentRequest) (*domain.PurchaseResult, error)

	// CompletePurchase handles the payer's browser return.
	CompletePurchase(ctx context.Context, params domain.Params) (*domain.CompletionResult, error)

	// AcceptNotification parses a server-to-server callback.
	AcceptNotification(ctx context.Context, params domain.Params) (*domain.Notification, error)

	// VerifyNotification runs the provider's MAC or signature check.
	VerifyNotification(ctx context.Context, params domain.Params) bool

	// Classify tells payment-instruction callbacks from purchase results.
	Classify(data domain.Params) domain.NotificationKind

	// ValidateAmount compares the provider amount field with the order total.
	ValidateAmount(data domain.Params, total int64) bool

	// NormalizePaymentInfo maps provider fields onto the canonical keys.
	NormalizePaymentInfo(data domain.Params) domain.PaymentInfo

	// PaymentInfoNote returns the order note for an instruction callback.
	PaymentInfoNote(data domain.Params) (string, bool)

	CallbackSuccessResponse() string
	CallbackFailureResponse(message string) string
}

// GatewayResolver finds the adapter registered for a gateway id.
type GatewayResolver interface {
	Gateway(id string) (Gateway, error)
}

// OrderStore is the external order system.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	// Get returns nil, nil when the order does not exist.
	Get(ctx context.Context, id string) (*domain.Order, error)
	QueryByMeta(ctx context.Context, key, value string) ([]*domain.Order, error)
	UpdateMeta(ctx context.Context, order *domain.Order, key, value string) error
	Save(ctx context.Context, order *domain.Order) error
	AddNote(ctx context.Context, order *domain.Order, text string) error
	// UpdateStatus never moves a paid order. The stored state is copied back
	// into order either way, so a stale caller sees the current status.
	UpdateStatus(ctx context.Context, order *domain.Order, status domain.OrderStatus, message string) error
	// CompletePayment moves an unpaid order to processing. It reports false
	// without side effects when the order was already paid.
	CompletePayment(ctx context.Context, order *domain.Order, transactionRef string) (bool, error)
}

// OptionsStore persists key-value settings.
type OptionsStore interface {
	Get(ctx context.Context, key string, def any) (any, error)
	Set(ctx context.Context, key string, value any) error
}

// EventPublisher forwards payment events to the commerce backend.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.PaymentEvent) error
}
