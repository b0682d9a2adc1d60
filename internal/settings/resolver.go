// Package settings merges the three option tiers into typed gateway settings.
package settings

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Resolver merges general, provider-shared and gateway settings.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Resolve merges the tiers (gateway > shared > general) and converts every key
// of defaults that has a non-empty merged value to the type of its default.
// Keys without a usable value are omitted so the gateway keeps its default.
func (r *Resolver) Resolve(general, shared, gateway map[string]any, defaults domain.GatewaySettings) domain.GatewaySettings {
	merged := map[string]any{}
	for _, tier := range []map[string]any{general, shared, gateway} {
		for k, v := range tier {
			if isEmpty(v) {
				continue
			}
			merged[k] = v
		}
	}

	out := domain.GatewaySettings{}
	for key, def := range defaults {
		raw, ok := merged[key]
		if !ok {
			continue
		}
		v, ok := r.convert(key, raw, def)
		if !ok {
			continue
		}
		out[key] = v
	}
	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func (r *Resolver) convert(key string, raw, def any) (any, bool) {
	switch def.(type) {
	case bool:
		if s, ok := raw.(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "yes", "on":
				return true, true
			case "no", "off":
				return false, true
			}
		}
		b, err := cast.ToBoolE(raw)
		return b, r.ok(key, raw, err)
	case int:
		n, err := cast.ToIntE(raw)
		return n, r.ok(key, raw, err)
	case int64:
		n, err := cast.ToInt64E(raw)
		return n, r.ok(key, raw, err)
	case float64:
		f, err := cast.ToFloat64E(raw)
		return f, r.ok(key, raw, err)
	case []string:
		return r.toStrings(key, raw), true
	case []any:
		return r.toSlice(key, raw), true
	case map[string]any:
		return r.toMap(key, raw), true
	default:
		s, err := cast.ToStringE(raw)
		return s, r.ok(key, raw, err)
	}
}

func (r *Resolver) ok(key string, raw any, err error) bool {
	if err != nil {
		r.logger.Warn("ignoring unconvertible gateway setting",
			zap.String("key", key), zap.Any("value", raw), zap.Error(err))
		return false
	}
	return true
}

// toStrings decodes a JSON array option; malformed input yields an empty array.
func (r *Resolver) toStrings(key string, raw any) []string {
	s, ok := raw.(string)
	if !ok {
		out, err := cast.ToStringSliceE(raw)
		if err != nil {
			r.malformed(key, err)
			return []string{}
		}
		return out
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		r.malformed(key, err)
		return []string{}
	}
	return out
}

func (r *Resolver) toSlice(key string, raw any) []any {
	s, ok := raw.(string)
	if !ok {
		out, err := cast.ToSliceE(raw)
		if err != nil {
			r.malformed(key, err)
			return []any{}
		}
		return out
	}
	var out []any
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		r.malformed(key, err)
		return []any{}
	}
	return out
}

func (r *Resolver) toMap(key string, raw any) map[string]any {
	s, ok := raw.(string)
	if !ok {
		out, err := cast.ToStringMapE(raw)
		if err != nil {
			r.malformed(key, err)
			return map[string]any{}
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		r.malformed(key, err)
		return map[string]any{}
	}
	return out
}

func (r *Resolver) malformed(key string, err error) {
	r.logger.Warn("malformed JSON gateway setting, using empty value",
		zap.String("key", key), zap.Error(err))
}
