package domain

import (
	"reflect"

	"github.com/spf13/cast"
)

// GatewaySettings is the merged, typed parameter set handed to an adapter.
type GatewaySettings map[string]any

// String returns the setting as a string, or def when absent.
func (s GatewaySettings) String(key, def string) string {
	if v, ok := s[key]; ok {
		return cast.ToString(v)
	}
	return def
}

// Bool returns the setting as a bool, or def when absent.
func (s GatewaySettings) Bool(key string, def bool) bool {
	if v, ok := s[key]; ok {
		return cast.ToBool(v)
	}
	return def
}

// Int returns the setting as an int, or def when absent.
func (s GatewaySettings) Int(key string, def int) int {
	if v, ok := s[key]; ok {
		return cast.ToInt(v)
	}
	return def
}

// Strings returns an array setting, or def when absent.
func (s GatewaySettings) Strings(key string, def []string) []string {
	if v, ok := s[key]; ok {
		return cast.ToStringSlice(v)
	}
	return def
}

// Equal reports whether both sets hold the same keys and values.
func (s GatewaySettings) Equal(other GatewaySettings) bool {
	return reflect.DeepEqual(map[string]any(s), map[string]any(other))
}
