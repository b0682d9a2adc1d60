// Package config handles loading and managing application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fitstack/checkout-gateways/internal/adapters/registry"
	"github.com/fitstack/checkout-gateways/internal/core/service"
	"github.com/fitstack/checkout-gateways/internal/transport"
)

// EnvPrefix prefixes every environment override, e.g. CHECKOUT_SERVER_PORT.
const EnvPrefix = "CHECKOUT"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Mongo     MongoConfig            `mapstructure:"mongo"`
	Store     StoreConfig            `mapstructure:"store"`
	Transport transport.Config       `mapstructure:"transport"`
	Tracing   TracingConfig          `mapstructure:"tracing"`
	Checkout  service.CheckoutConfig `mapstructure:"checkout"`
	Events    EventsConfig           `mapstructure:"events"`
	Gateways  GatewaysConfig         `mapstructure:"gateways"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	GinMode         string        `mapstructure:"gin_mode"` // "debug", "release", or "test"
	Env             string        `mapstructure:"env"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AdminAPIKey     string        `mapstructure:"admin_api_key"`
}

// MongoConfig holds the MongoDB connection.
type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the order and options store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// TracingConfig holds the OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	CollectorHost string `mapstructure:"collector_host"`
	ServiceName   string `mapstructure:"service_name"`
}

// EventsConfig points at the commerce backend that receives payment events.
// An empty URL disables forwarding.
type EventsConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// GatewaysConfig holds the three settings tiers and the served instances.
type GatewaysConfig struct {
	General   map[string]any                `mapstructure:"general"`
	Providers map[string]map[string]any     `mapstructure:"providers"`
	Instances map[string]registry.Instance `mapstructure:"instances"`
}

// EnabledInstances returns the instances with enabled set.
func (g GatewaysConfig) EnabledInstances() map[string]registry.Instance {
	out := make(map[string]registry.Instance, len(g.Instances))
	for id, inst := range g.Instances {
		if inst.Enabled {
			out[id] = inst
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.gin_mode", "debug")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_api_key", "")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "checkout")
	v.SetDefault("mongo.timeout", "10s")

	v.SetDefault("store.driver", DriverMemory)

	v.SetDefault("transport.kind", transport.KindPooled)
	v.SetDefault("transport.timeout", transport.DefaultTimeout.String())
	v.SetDefault("transport.breaker.max_requests", 1)
	v.SetDefault("transport.breaker.interval", "60s")
	v.SetDefault("transport.breaker.timeout", "30s")
	v.SetDefault("transport.breaker.min_requests", 5)
	v.SetDefault("transport.breaker.failure_ratio", 0.6)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_host", "localhost")
	v.SetDefault("tracing.service_name", "checkout-gateways")

	v.SetDefault("checkout.transaction_prefix", "")
	v.SetDefault("checkout.allow_resubmit", false)
	v.SetDefault("checkout.notify_base_url", "http://localhost:8080")
	v.SetDefault("checkout.return_base_url", "http://localhost:8080")

	v.SetDefault("events.url", "")
	v.SetDefault("events.secret", "")
}

// Load reads configuration from the optional file at path, then from
// CHECKOUT_* environment variables, on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	result := &Config{}
	if err := v.Unmarshal(result); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("mongo.uri and mongo.database are required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch strings.ToLower(c.Transport.Kind) {
	case transport.KindSocket, transport.KindPooled, transport.KindPlatform, "":
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}

	for id, inst := range c.Gateways.EnabledInstances() {
		if _, err := registry.NewGateway(id, inst, nil); err != nil {
			return fmt.Errorf("gateway %s: %w", id, err)
		}
	}
	return nil
}
