// Package domain contains the core business entities for the checkout gateways.
package domain

import "time"

// OrderStatus is the payment-relevant status of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusOnHold     OrderStatus = "on-hold"
	StatusProcessing OrderStatus = "processing"
	StatusFailed     OrderStatus = "failed"
	// StatusCompleted is set by the commerce system after fulfilment.
	StatusCompleted OrderStatus = "completed"
)

// IsPaid reports whether the order already received a confirmed payment.
// Paid orders are terminal for notification processing.
func (s OrderStatus) IsPaid() bool {
	return s == StatusProcessing || s == StatusCompleted
}

// OrderNote is an audit line appended to an order.
type OrderNote struct {
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Order is the commerce order as seen by the gateways. It is owned by the
// external order store; the core only mutates it through the ledger.
type Order struct {
	ID            string            `json:"id" bson:"_id"`
	Total         int64             `json:"total" bson:"total"` // smallest currency unit
	Currency      string            `json:"currency" bson:"currency"`
	Status        OrderStatus       `json:"status" bson:"status"`
	PaymentMethod string            `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	PaymentRef    string            `json:"payment_ref,omitempty" bson:"payment_ref,omitempty"` // provider trade number
	Meta          map[string]string `json:"meta,omitempty" bson:"meta,omitempty"`
	Notes         []OrderNote       `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" bson:"updated_at"`
}

// MetaValue returns a meta entry or "".
func (o *Order) MetaValue(key string) string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta[key]
}

// TransactionID returns the merchant transaction id stored on the order.
func (o *Order) TransactionID() string {
	return o.MetaValue(MetaTransactionID)
}

// Params is a flat set of provider fields, either sent or received.
type Params map[string]string

// Get returns the value for key or "".
func (p Params) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// PaymentRequest is built once per checkout attempt and not modified after it is sent.
type PaymentRequest struct {
	OrderID        string
	TransactionID  string
	Amount         int64 // smallest currency unit
	Currency       string
	Description    string
	ReturnURL      string
	NotifyURL      string
	PaymentInfoURL string
	PaymentType    string
}

// PurchaseResult is the outcome of a purchase call. A provider rejection is
// reported here with Successful=false; only transport failures are errors.
type PurchaseResult struct {
	Successful     bool              `json:"successful"`
	Redirect       bool              `json:"redirect"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	RedirectMethod string            `json:"redirect_method,omitempty"`
	RedirectData   map[string]string `json:"redirect_data,omitempty"`
	TransactionID  string            `json:"transaction_id,omitempty"`
	Reference      string            `json:"reference,omitempty"`
	Message        string            `json:"message,omitempty"`
	Code           string            `json:"code,omitempty"`
}

// CompletionResult is the outcome of the browser-return leg.
type CompletionResult struct {
	Successful    bool   `json:"successful"`
	Pending       bool   `json:"pending"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Message       string `json:"message,omitempty"`
	Code          string `json:"code,omitempty"`
	Data          Params `json:"-"`
}

// NotificationStatus is the payment status a notification reports.
type NotificationStatus string

const (
	NotificationCompleted NotificationStatus = "completed"
	NotificationPending   NotificationStatus = "pending"
	NotificationFailed    NotificationStatus = "failed"
)

// Notification is a parsed server-to-server callback.
type Notification struct {
	// TransactionID is the merchant transaction id used to find the order.
	TransactionID string
	// Reference is the provider's own trade number.
	Reference    string
	Status       NotificationStatus
	Code         string
	Message      string
	SimulatePaid bool
	Data         Params
}

// NotificationKind classifies an inbound callback.
type NotificationKind string

const (
	KindPurchaseResult           NotificationKind = "purchase-result"
	KindPaymentInstructionIssued NotificationKind = "payment-instruction-issued"
	KindUnknown                  NotificationKind = "unknown"
)

// NotificationEvent is constructed per inbound callback and discarded after processing.
type NotificationEvent struct {
	Gateway string
	Payload Params
	Kind    NotificationKind
}

// Payment event names forwarded to the commerce backend.
const (
	EventPaymentApproved = "payment.approved"
	EventPaymentPending  = "payment.pending"
	EventPaymentRejected = "payment.rejected"
)

// PaymentEvent is the payload sent to the commerce backend after an order
// changes payment state.
type PaymentEvent struct {
	Event         string      `json:"event"`
	OrderID       string      `json:"order_id"`
	Gateway       string      `json:"gateway"`
	TransactionID string      `json:"transaction_id"`
	Reference     string      `json:"reference,omitempty"`
	Status        OrderStatus `json:"status"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency,omitempty"`
	PaymentInfo   PaymentInfo `json:"payment_info,omitempty"`
	Timestamp     string      `json:"timestamp"`
}
