package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Pooled reuses keep-alive connections through one http.Client and guards
// providers with a circuit breaker. Only transport failures count against
// the breaker; HTTP error statuses are valid responses.
type Pooled struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*domain.HTTPResponse]
}

// NewPooled creates a Pooled transport.
func NewPooled(cfg Config, logger *zap.Logger) *Pooled {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Pooled{
		client:  newHTTPClient(newBaseTransport(), cfg.Timeout),
		breaker: newBreaker("provider-http", cfg.Breaker, logger),
	}
}

func (p *Pooled) Do(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.HTTPResponse, error) {
		return httpDo(ctx, p.client, req)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNetwork) {
			return nil, err
		}
		// open or half-open breaker
		return nil, domain.NewNetworkError(methodOf(req), req.URL, err)
	}
	return resp, nil
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[*domain.HTTPResponse] {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	var st gobreaker.Settings
	st.Name = name
	st.MaxRequests = cfg.MaxRequests
	st.Interval = cfg.Interval
	st.Timeout = cfg.Timeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= minRequests && failureRatio >= ratio
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	return gobreaker.NewCircuitBreaker[*domain.HTTPResponse](st)
}
