// Package memstore provides in-process order and options stores.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// OrderStore keeps orders in memory. Reads return copies so callers observe
// the same read-modify-write semantics as a database-backed store.
type OrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	now    func() time.Time
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: map[string]*domain.Order{},
		now:    time.Now,
	}
}

// Create inserts an order, replacing any order with the same id.
func (s *OrderStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := clone(order)
	if stored.Status == "" {
		stored.Status = domain.StatusPending
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.orders[stored.ID] = stored
	*order = *clone(stored)
	return nil
}

func (s *OrderStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return clone(o), nil
}

func (s *OrderStore) QueryByMeta(_ context.Context, key, value string) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if o.MetaValue(key) == value {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *OrderStore) UpdateMeta(_ context.Context, order *domain.Order, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Meta == nil {
		o.Meta = map[string]string{}
	}
	o.Meta[key] = value
	o.UpdatedAt = s.now()
	syncInto(order, o)
	return nil
}

func (s *OrderStore) Save(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	order.UpdatedAt = s.now()
	s.orders[order.ID] = clone(order)
	return nil
}

func (s *OrderStore) AddNote(_ context.Context, order *domain.Order, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Notes = append(o.Notes, domain.OrderNote{Text: text, CreatedAt: s.now()})
	o.UpdatedAt = s.now()
	syncInto(order, o)
	return nil
}

func (s *OrderStore) UpdateStatus(_ context.Context, order *domain.Order, status domain.OrderStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != status && !o.Status.IsPaid() {
		o.Status = status
		if message != "" {
			o.Notes = append(o.Notes, domain.OrderNote{Text: message, CreatedAt: s.now()})
		}
		o.UpdatedAt = s.now()
	}
	syncInto(order, o)
	return nil
}

func (s *OrderStore) CompletePayment(_ context.Context, order *domain.Order, transactionRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[order.ID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if o.Status.IsPaid() {
		syncInto(order, o)
		return false, nil
	}
	o.Status = domain.StatusProcessing
	if transactionRef != "" {
		o.PaymentRef = transactionRef
	}
	o.UpdatedAt = s.now()
	syncInto(order, o)
	return true, nil
}

func syncInto(dst, src *domain.Order) {
	*dst = *clone(src)
}

func clone(o *domain.Order) *domain.Order {
	c := *o
	if o.Meta != nil {
		c.Meta = make(map[string]string, len(o.Meta))
		for k, v := range o.Meta {
			c.Meta[k] = v
		}
	}
	if o.Notes != nil {
		c.Notes = append([]domain.OrderNote(nil), o.Notes...)
	}
	return &c
}
