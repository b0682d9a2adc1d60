package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitstack/checkout-gateways/internal/adapters/memstore"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewOptionsStore(nil)
	require.NoError(t, store.Set(ctx, GeneralKey, map[string]any{"test_mode": "yes", "merchant_id": "G"}))
	require.NoError(t, store.Set(ctx, ProviderKey("ecpay"), map[string]any{"merchant_id": "2000132"}))
	require.NoError(t, store.Set(ctx, GatewayKey("ecpay_atm"), map[string]any{"expire_date": "7", "merchant_id": ""}))

	loader := NewLoader(store, NewResolver(nil))
	got, err := loader.Load(ctx, "ecpay", "ecpay_atm", domain.GatewaySettings{
		"merchant_id": "",
		"test_mode":   false,
		"expire_date": 3,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.GatewaySettings{
		"merchant_id": "2000132",
		"test_mode":   true,
		"expire_date": 7,
	}, got)
}

func TestLoader_Load_JSONStringTier(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewOptionsStore(nil)
	require.NoError(t, store.Set(ctx, GatewayKey("yipay_atm"), `{"merchant_id":"Y1"}`))

	got, err := NewLoader(store, NewResolver(nil)).Load(ctx, "yipay", "yipay_atm", domain.GatewaySettings{"merchant_id": ""})

	require.NoError(t, err)
	assert.Equal(t, "Y1", got.String("merchant_id", ""))
}

type failingStore struct{}

func (failingStore) Get(context.Context, string, any) (any, error) { return nil, errors.New("down") }
func (failingStore) Set(context.Context, string, any) error        { return errors.New("down") }

func TestLoader_Load_StoreError(t *testing.T) {
	_, err := NewLoader(failingStore{}, NewResolver(nil)).Load(context.Background(), "ecpay", "ecpay_atm", domain.GatewaySettings{})
	assert.Error(t, err)
}
