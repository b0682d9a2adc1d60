package memstore

import (
	"context"
	"sync"

	"github.com/spf13/viper"
)

// OptionsStore keeps options in a viper instance. Keys are case-insensitive
// and "." addresses nested maps, so "provider.ecpay" reads the ecpay entry of
// the "provider" map.
type OptionsStore struct {
	mu sync.RWMutex
	v  *viper.Viper
}

// NewOptionsStore wraps v. A nil v starts empty.
func NewOptionsStore(v *viper.Viper) *OptionsStore {
	if v == nil {
		v = viper.New()
	}
	return &OptionsStore{v: v}
}

func (s *OptionsStore) Get(_ context.Context, key string, def any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.v.IsSet(key) {
		return def, nil
	}
	return s.v.Get(key), nil
}

func (s *OptionsStore) Set(_ context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(key, value)
	return nil
}
