// Package gateway holds the pieces shared by every provider adapter.
package gateway

import (
	"sync"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// BuildFunc creates a provider client from settings.
type BuildFunc[C any] func(settings domain.GatewaySettings) (C, error)

// Session owns the provider client of one adapter. Configure stores the
// settings; Client builds the client on first use and returns the cached
// instance until Configure is called with different settings.
type Session[C any] struct {
	mu       sync.Mutex
	build    BuildFunc[C]
	settings domain.GatewaySettings
	client   C
	built    bool
}

// NewSession creates a Session that builds clients with build.
func NewSession[C any](build BuildFunc[C]) *Session[C] {
	return &Session[C]{build: build, settings: domain.GatewaySettings{}}
}

// Configure replaces the settings and drops the cached client if they changed.
func (s *Session[C]) Configure(settings domain.GatewaySettings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.Equal(s.settings) {
		return
	}
	s.settings = copySettings(settings)
	var zero C
	s.client = zero
	s.built = false
}

// Settings returns a copy of the current settings.
func (s *Session[C]) Settings() domain.GatewaySettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySettings(s.settings)
}

// Client builds or returns the cached client.
func (s *Session[C]) Client() (C, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.built {
		return s.client, nil
	}
	c, err := s.build(copySettings(s.settings))
	if err != nil {
		var zero C
		return zero, err
	}
	s.client = c
	s.built = true
	return c, nil
}

func copySettings(in domain.GatewaySettings) domain.GatewaySettings {
	out := make(domain.GatewaySettings, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
