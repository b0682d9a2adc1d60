// Package domain contains the core business entities for the checkout gateways.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - represent business rule violations.
var (
	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrOrderNotFound is returned when an order or transaction lookup has no match.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnknownGateway is returned when no adapter is registered under a gateway id.
	ErrUnknownGateway = errors.New("unknown gateway")

	// ErrNetwork is returned when the outbound transport fails or times out.
	ErrNetwork = errors.New("network error")

	// ErrPaymentGatewayError is returned when a provider rejects or cannot serve a request.
	ErrPaymentGatewayError = errors.New("payment gateway error")

	// ErrInvalidSignature is returned when a callback fails its MAC/signature check.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrConfiguration is returned when gateway settings cannot produce a client.
	ErrConfiguration = errors.New("gateway configuration error")

	// ErrStoreFailure is returned when the order or options store fails.
	ErrStoreFailure = errors.New("store failure")

	// ErrEventDelivery is returned when the commerce backend refuses a payment event.
	ErrEventDelivery = errors.New("event delivery failed")
)

// ServiceError wraps errors with additional context.
type ServiceError struct {
	Err     error
	Message string
	Code    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(err error, message, code string) *ServiceError {
	return &ServiceError{Err: err, Message: message, Code: code}
}

// NetworkError carries the underlying transport failure. It matches ErrNetwork with errors.Is.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports ErrNetwork so callers need not know the concrete type.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// NewNetworkError creates a NetworkError for the given request.
func NewNetworkError(op, url string, err error) *NetworkError {
	return &NetworkError{Op: op, URL: url, Err: err}
}
