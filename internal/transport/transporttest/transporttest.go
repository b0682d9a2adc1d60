// Package transporttest provides transport doubles for adapter tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Func adapts a function to ports.Transport.
type Func func(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error)

func (f Func) Do(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	return f(ctx, req)
}

// Recorder replies with a fixed response and keeps every request.
type Recorder struct {
	mu       sync.Mutex
	Response *domain.HTTPResponse
	Err      error
	Requests []*domain.HTTPRequest
}

func (r *Recorder) Do(_ context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, req)
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Response, nil
}

// Last returns the most recent request or nil.
func (r *Recorder) Last() *domain.HTTPRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Requests) == 0 {
		return nil
	}
	return r.Requests[len(r.Requests)-1]
}
