package settings

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// Option keys of the three tiers.
const (
	GeneralKey  = "general"
	providerFmt = "provider.%s"
	gatewayFmt  = "gateway.%s"
)

// ProviderKey is the options key of a provider's shared tier.
func ProviderKey(provider string) string {
	return fmt.Sprintf(providerFmt, provider)
}

// GatewayKey is the options key of a gateway instance's tier.
func GatewayKey(id string) string {
	return fmt.Sprintf(gatewayFmt, id)
}

// Tiers are the raw option maps before merging.
type Tiers struct {
	General map[string]any
	Shared  map[string]any
	Gateway map[string]any
}

// Loader reads tiers from an options store and resolves them.
type Loader struct {
	store    ports.OptionsStore
	resolver *Resolver
}

// NewLoader creates a Loader.
func NewLoader(store ports.OptionsStore, resolver *Resolver) *Loader {
	return &Loader{store: store, resolver: resolver}
}

// Tiers loads the raw tiers for one gateway instance.
func (l *Loader) Tiers(ctx context.Context, provider, id string) (Tiers, error) {
	var t Tiers
	var err error
	if t.General, err = l.tier(ctx, GeneralKey); err != nil {
		return t, err
	}
	if t.Shared, err = l.tier(ctx, ProviderKey(provider)); err != nil {
		return t, err
	}
	if t.Gateway, err = l.tier(ctx, GatewayKey(id)); err != nil {
		return t, err
	}
	return t, nil
}

// Load resolves the settings of a gateway instance against its defaults.
func (l *Loader) Load(ctx context.Context, provider, id string, defaults domain.GatewaySettings) (domain.GatewaySettings, error) {
	t, err := l.Tiers(ctx, provider, id)
	if err != nil {
		return nil, err
	}
	return l.resolver.Resolve(t.General, t.Shared, t.Gateway, defaults), nil
}

func (l *Loader) tier(ctx context.Context, key string) (map[string]any, error) {
	v, err := l.store.Get(ctx, key, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("read option %q: %w", key, err)
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		// a tier that is not a map is a configuration error; treat it as empty
		return map[string]any{}, nil
	}
	return m, nil
}
