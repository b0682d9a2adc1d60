package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// OrderStore is a ports.OrderStore on the orders collection. Status changes
// are conditional updates so concurrent duplicate callbacks cannot both apply.
type OrderStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ ports.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates an OrderStore on db.
func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{collection: db.Collection(OrdersCollection), now: time.Now}
}

// EnsureIndexes creates the unique transaction id index.
func (s *OrderStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: metaField(domain.MetaTransactionID), Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("transaction_id"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status"),
		},
	})
	if err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}
	return nil
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	if order.Status == "" {
		order.Status = domain.StatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	if _, err := s.collection.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}
	return &order, nil
}

func (s *OrderStore) QueryByMeta(ctx context.Context, key, value string) ([]*domain.Order, error) {
	cursor, err := s.collection.Find(ctx, bson.M{metaField(key): value}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query orders by %s: %w", key, err)
	}
	var orders []*domain.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

func (s *OrderStore) UpdateMeta(ctx context.Context, order *domain.Order, key, value string) error {
	return s.modify(ctx, order, bson.M{"_id": order.ID}, bson.M{
		"$set": bson.M{metaField(key): value, "updated_at": s.now().UTC()},
	})
}

func (s *OrderStore) Save(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = s.now().UTC()
	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": order.ID}, order)
	if err != nil {
		return fmt.Errorf("replace order %s: %w", order.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, order.ID)
	}
	return nil
}

func (s *OrderStore) AddNote(ctx context.Context, order *domain.Order, text string) error {
	now := s.now().UTC()
	return s.modify(ctx, order, bson.M{"_id": order.ID}, bson.M{
		"$push": bson.M{"notes": domain.OrderNote{Text: text, CreatedAt: now}},
		"$set":  bson.M{"updated_at": now},
	})
}

// UpdateStatus only writes, and only adds the note, when the status changes
// and the stored order is not paid.
func (s *OrderStore) UpdateStatus(ctx context.Context, order *domain.Order, status domain.OrderStatus, message string) error {
	now := s.now().UTC()
	update := bson.M{"$set": bson.M{"status": status, "updated_at": now}}
	if message != "" {
		update["$push"] = bson.M{"notes": domain.OrderNote{Text: message, CreatedAt: now}}
	}

	paid := []domain.OrderStatus{domain.StatusProcessing, domain.StatusCompleted}
	filter := bson.M{
		"_id":    order.ID,
		"status": bson.M{"$ne": status, "$nin": paid},
	}

	changed, err := s.modifyIf(ctx, order, filter, update)
	if err != nil || changed {
		return err
	}
	return s.refresh(ctx, order)
}

// CompletePayment matches only unpaid orders, so exactly one of several
// concurrent callers sees true.
func (s *OrderStore) CompletePayment(ctx context.Context, order *domain.Order, transactionRef string) (bool, error) {
	set := bson.M{"status": domain.StatusProcessing, "updated_at": s.now().UTC()}
	if transactionRef != "" {
		set["payment_ref"] = transactionRef
	}
	filter := bson.M{
		"_id":    order.ID,
		"status": bson.M{"$nin": []domain.OrderStatus{domain.StatusProcessing, domain.StatusCompleted}},
	}

	changed, err := s.modifyIf(ctx, order, filter, bson.M{"$set": set})
	if err != nil || changed {
		return changed, err
	}
	return false, s.refresh(ctx, order)
}

func (s *OrderStore) modify(ctx context.Context, order *domain.Order, filter, update bson.M) error {
	changed, err := s.modifyIf(ctx, order, filter, update)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, order.ID)
	}
	return nil
}

// modifyIf applies update when filter matches and copies the new document into order.
func (s *OrderStore) modifyIf(ctx context.Context, order *domain.Order, filter, update bson.M) (bool, error) {
	var updated domain.Order
	err := s.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update order %s: %w", order.ID, err)
	}
	*order = updated
	return true, nil
}

func (s *OrderStore) refresh(ctx context.Context, order *domain.Order) error {
	current, err := s.Get(ctx, order.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, order.ID)
	}
	*order = *current
	return nil
}

func metaField(key string) string {
	return "meta." + key
}
