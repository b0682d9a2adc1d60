// Package ledger applies payment state to orders held by the external order store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// MaxTransactionIDLength is the longest merchant trade number every provider accepts.
const MaxTransactionIDLength = 20

var last5Pattern = regexp.MustCompile(`^[0-9]{5}$`)

// Ledger reads and transitions orders.
type Ledger struct {
	store  ports.OrderStore
	logger *zap.Logger
	suffix func() string
}

// New creates a Ledger over store.
func New(store ports.OrderStore, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger, suffix: randomSuffix}
}

// FindByID returns the order or nil when it does not exist.
func (l *Ledger) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr("get order", err)
	}
	return order, nil
}

// FindByIDOrFail is FindByID with ErrOrderNotFound for a missing order.
func (l *Ledger) FindByIDOrFail(ctx context.Context, id string) (*domain.Order, error) {
	order, err := l.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return order, nil
}

// FindByTransactionID returns the order carrying transactionID or nil.
func (l *Ledger) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error) {
	if transactionID == "" {
		return nil, nil
	}
	orders, err := l.store.QueryByMeta(ctx, domain.MetaTransactionID, transactionID)
	if err != nil {
		return nil, storeErr("query orders", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}
	if len(orders) > 1 {
		l.logger.Warn("transaction id shared by several orders",
			zap.String("transaction_id", transactionID),
			zap.Int("orders", len(orders)),
		)
	}
	return orders[0], nil
}

// FindByTransactionIDOrFail is FindByTransactionID with ErrOrderNotFound for no match.
func (l *Ledger) FindByTransactionIDOrFail(ctx context.Context, transactionID string) (*domain.Order, error) {
	order, err := l.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrOrderNotFound, transactionID)
	}
	return order, nil
}

// CreateTransactionID builds prefix+orderID, plus "T" and a random suffix when
// resubmission is allowed, caps it at MaxTransactionIDLength and stores it.
func (l *Ledger) CreateTransactionID(ctx context.Context, order *domain.Order, prefix string, allowResubmit bool) (string, error) {
	id := prefix + order.ID
	if allowResubmit {
		id += "T" + l.suffix()
	}
	if len(id) > MaxTransactionIDLength {
		id = id[:MaxTransactionIDLength]
	}
	if err := l.store.UpdateMeta(ctx, order, domain.MetaTransactionID, id); err != nil {
		return "", storeErr("save transaction id", err)
	}
	return id, nil
}

// SavePaymentInfo writes the present canonical fields. Fields absent from
// info keep their stored value.
func (l *Ledger) SavePaymentInfo(ctx context.Context, order *domain.Order, info domain.PaymentInfo) error {
	for _, key := range domain.PaymentInfoKeys {
		v, ok := info[key]
		if !ok || v == "" {
			continue
		}
		meta, _ := domain.PaymentInfoMetaKey(key)
		if err := l.store.UpdateMeta(ctx, order, meta, v); err != nil {
			return storeErr("save payment info", err)
		}
	}
	return nil
}

// GetPaymentInfo reads the stored canonical fields.
func (l *Ledger) GetPaymentInfo(order *domain.Order) domain.PaymentInfo {
	fields := make(map[string]string, len(domain.PaymentInfoKeys))
	for _, key := range domain.PaymentInfoKeys {
		meta, _ := domain.PaymentInfoMetaKey(key)
		fields[key] = order.MetaValue(meta)
	}
	return domain.NewPaymentInfo(fields)
}

// MarkAsOnHold waits for payment. Paid orders are left alone.
func (l *Ledger) MarkAsOnHold(ctx context.Context, order *domain.Order, note string) error {
	if order.Status.IsPaid() {
		return nil
	}
	if err := l.store.UpdateStatus(ctx, order, domain.StatusOnHold, note); err != nil {
		return storeErr("mark on-hold", err)
	}
	return nil
}

// MarkAsFailed records a failed payment. Paid orders are left alone.
func (l *Ledger) MarkAsFailed(ctx context.Context, order *domain.Order, note string) error {
	if order.Status.IsPaid() {
		return nil
	}
	if err := l.store.UpdateStatus(ctx, order, domain.StatusFailed, note); err != nil {
		return storeErr("mark failed", err)
	}
	return nil
}

// MarkAsComplete records a confirmed payment. It reports false when the order
// was already paid, in which case nothing is written.
func (l *Ledger) MarkAsComplete(ctx context.Context, order *domain.Order, transactionRef, note string) (bool, error) {
	applied, err := l.store.CompletePayment(ctx, order, transactionRef)
	if err != nil {
		return false, storeErr("complete payment", err)
	}
	if !applied {
		return false, nil
	}
	if note != "" {
		if err := l.store.AddNote(ctx, order, note); err != nil {
			return true, storeErr("add note", err)
		}
	}
	return true, nil
}

// SaveRemittanceLast5 stores the last five digits of the payer's account.
func (l *Ledger) SaveRemittanceLast5(ctx context.Context, order *domain.Order, digits string) error {
	digits = strings.TrimSpace(digits)
	if !last5Pattern.MatchString(digits) {
		return domain.NewServiceError(domain.ErrInvalidRequest, "remittance must be exactly 5 digits", "INVALID_REMITTANCE")
	}
	if err := l.store.UpdateMeta(ctx, order, domain.MetaRemittanceLast5, digits); err != nil {
		return storeErr("save remittance", err)
	}
	if err := l.store.AddNote(ctx, order, "Remittance account last 5 digits: "+digits); err != nil {
		return storeErr("add note", err)
	}
	return nil
}

// AddNote appends an audit note.
func (l *Ledger) AddNote(ctx context.Context, order *domain.Order, note string) error {
	if err := l.store.AddNote(ctx, order, note); err != nil {
		return storeErr("add note", err)
	}
	return nil
}

// CreateOrder inserts a new pending order.
func (l *Ledger) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == "" || order.Total <= 0 {
		return domain.NewServiceError(domain.ErrInvalidRequest, "order id and positive total are required", "INVALID_ORDER")
	}
	order.Status = domain.StatusPending
	if err := l.store.Create(ctx, order); err != nil {
		return storeErr("create order", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrOrderNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreFailure, err)
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
