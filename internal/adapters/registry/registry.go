// Package registry builds the set of gateway instances a process serves.
// A Registry is an explicit value handed to the services that need it.
package registry

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/adapters/banktransfer"
	"github.com/fitstack/checkout-gateways/internal/adapters/defaultgw"
	"github.com/fitstack/checkout-gateways/internal/adapters/ecpay"
	"github.com/fitstack/checkout-gateways/internal/adapters/mercadopago"
	"github.com/fitstack/checkout-gateways/internal/adapters/newebpay"
	"github.com/fitstack/checkout-gateways/internal/adapters/yipay"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	yipayapi "github.com/fitstack/checkout-gateways/internal/platform/yipay"
	"github.com/fitstack/checkout-gateways/internal/settings"
)

// Instance describes one configured gateway.
type Instance struct {
	Provider    string         `mapstructure:"provider"`
	PaymentType string         `mapstructure:"payment_type"`
	Enabled     bool           `mapstructure:"enabled"`
	Settings    map[string]any `mapstructure:"settings"`
}

var catalogue = map[string]Instance{
	"ecpay_credit":     {Provider: ecpay.Provider, PaymentType: ecpay.PaymentCredit},
	"ecpay_atm":        {Provider: ecpay.Provider, PaymentType: ecpay.PaymentATM},
	"ecpay_cvs":        {Provider: ecpay.Provider, PaymentType: ecpay.PaymentCVS},
	"ecpay_barcode":    {Provider: ecpay.Provider, PaymentType: ecpay.PaymentBarcode},
	"ecpay_all":        {Provider: ecpay.Provider, PaymentType: ecpay.PaymentAll},
	"newebpay_credit":  {Provider: newebpay.Provider, PaymentType: newebpay.PaymentCredit},
	"newebpay_vacc":    {Provider: newebpay.Provider, PaymentType: newebpay.PaymentVACC},
	"newebpay_cvs":     {Provider: newebpay.Provider, PaymentType: newebpay.PaymentCVS},
	"newebpay_barcode": {Provider: newebpay.Provider, PaymentType: newebpay.PaymentBarcode},
	"yipay_credit":     {Provider: yipay.Provider, PaymentType: yipayapi.TypeCredit},
	"yipay_atm":        {Provider: yipay.Provider, PaymentType: yipayapi.TypeATM},
	"yipay_cvs":        {Provider: yipay.Provider, PaymentType: yipayapi.TypeCVS},
	"bank_transfer":    {Provider: banktransfer.Provider},
	"mercadopago":      {Provider: mercadopago.Provider},
}

// Catalogue returns the built-in instance ids in order.
func Catalogue() []string {
	return sortedKeys(catalogue)
}

// NewGateway creates the adapter for id. Built-in ids take their provider and
// payment type from the catalogue unless inst overrides them.
func NewGateway(id string, inst Instance, transport ports.Transport) (ports.Gateway, error) {
	if builtin, ok := catalogue[id]; ok {
		if inst.Provider == "" {
			inst.Provider = builtin.Provider
		}
		if inst.PaymentType == "" {
			inst.PaymentType = builtin.PaymentType
		}
	}

	switch inst.Provider {
	case ecpay.Provider:
		return ecpay.New(id, inst.PaymentType, transport), nil
	case newebpay.Provider:
		return newebpay.New(id, inst.PaymentType, transport), nil
	case yipay.Provider:
		return yipay.New(id, inst.PaymentType), nil
	case banktransfer.Provider:
		return banktransfer.New(id), nil
	case mercadopago.Provider:
		return mercadopago.New(id), nil
	case defaultgw.Provider:
		return defaultgw.New(id, transport), nil
	default:
		return nil, fmt.Errorf("%w: %s has unknown provider %q", domain.ErrConfiguration, id, inst.Provider)
	}
}

// Registry maps gateway ids to configured adapters.
type Registry struct {
	gateways map[string]ports.Gateway
	loader   *settings.Loader
	logger   *zap.Logger
}

var _ ports.GatewayResolver = (*Registry)(nil)

// New creates a Registry over gateways. Settings are loaded with loader on Reload.
func New(loader *settings.Loader, logger *zap.Logger, gateways ...ports.Gateway) (*Registry, error) {
	r := &Registry{
		gateways: make(map[string]ports.Gateway, len(gateways)),
		loader:   loader,
		logger:   logger,
	}
	for _, gw := range gateways {
		if _, dup := r.gateways[gw.ID()]; dup {
			return nil, fmt.Errorf("%w: gateway %s registered twice", domain.ErrConfiguration, gw.ID())
		}
		r.gateways[gw.ID()] = gw
	}
	return r, nil
}

// Build creates and configures every enabled instance.
func Build(ctx context.Context, instances map[string]Instance, transport ports.Transport, loader *settings.Loader, logger *zap.Logger) (*Registry, error) {
	var gateways []ports.Gateway
	for _, id := range sortedKeys(instances) {
		inst := instances[id]
		if !inst.Enabled {
			continue
		}
		gw, err := NewGateway(id, inst, transport)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	}

	r, err := New(loader, logger, gateways...)
	if err != nil {
		return nil, err
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Gateway(id string) (ports.Gateway, error) {
	gw, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownGateway, id)
	}
	return gw, nil
}

// IDs returns the registered gateway ids in order.
func (r *Registry) IDs() []string {
	return sortedKeys(r.gateways)
}

// Reload resolves the settings of every gateway and configures it.
func (r *Registry) Reload(ctx context.Context) error {
	for _, id := range r.IDs() {
		if err := r.ReloadGateway(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ReloadGateway resolves and applies the settings of one gateway.
func (r *Registry) ReloadGateway(ctx context.Context, id string) error {
	gw, err := r.Gateway(id)
	if err != nil {
		return err
	}
	s, err := r.loader.Load(ctx, gw.Provider(), gw.ID(), gw.DefaultParameters())
	if err != nil {
		return fmt.Errorf("load settings for %s: %w", id, err)
	}
	gw.Configure(s)
	r.logger.Info("gateway configured",
		zap.String("gateway", id),
		zap.String("provider", gw.Provider()),
		zap.Int("settings", len(s)),
	)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Seed writes the configured tiers into store. Options that already exist are
// kept, so settings changed at runtime survive a restart.
func Seed(ctx context.Context, store ports.OptionsStore, general map[string]any, providers map[string]map[string]any, instances map[string]Instance) error {
	tiers := map[string]map[string]any{}
	if len(general) > 0 {
		tiers[settings.GeneralKey] = general
	}
	for name, shared := range providers {
		if len(shared) > 0 {
			tiers[settings.ProviderKey(name)] = shared
		}
	}
	for id, inst := range instances {
		if len(inst.Settings) > 0 {
			tiers[settings.GatewayKey(id)] = inst.Settings
		}
	}

	for _, key := range sortedKeys(tiers) {
		current, err := store.Get(ctx, key, nil)
		if err != nil {
			return fmt.Errorf("read option %q: %w", key, err)
		}
		if current != nil {
			continue
		}
		if err := store.Set(ctx, key, tiers[key]); err != nil {
			return fmt.Errorf("seed option %q: %w", key, err)
		}
	}
	return nil
}
