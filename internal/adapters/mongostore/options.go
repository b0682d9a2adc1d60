package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// OptionsStore keeps one document per option key.
type OptionsStore struct {
	collection *mongo.Collection
}

var _ ports.OptionsStore = (*OptionsStore)(nil)

// NewOptionsStore creates an OptionsStore on db.
func NewOptionsStore(db *mongo.Database) *OptionsStore {
	return &OptionsStore{collection: db.Collection(OptionsCollection)}
}

func (s *OptionsStore) Get(ctx context.Context, key string, def any) (any, error) {
	var raw bson.M
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find option %q: %w", key, err)
	}
	v, ok := raw["value"]
	if !ok || v == nil {
		return def, nil
	}
	return plain(v), nil
}

func (s *OptionsStore) Set(ctx context.Context, key string, value any) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set option %q: %w", key, err)
	}
	return nil
}
