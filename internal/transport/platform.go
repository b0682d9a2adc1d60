package transport

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Platform uses the runtime's standard HTTP stack, instrumented with
// OpenTelemetry so provider calls appear as client spans.
type Platform struct {
	client *http.Client
}

// NewPlatform creates a Platform transport.
func NewPlatform(timeout time.Duration) *Platform {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rt := otelhttp.NewTransport(newBaseTransport(),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "provider " + r.Method + " " + r.URL.Host
		}))
	return &Platform{client: newHTTPClient(rt, timeout)}
}

func (p *Platform) Do(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	return httpDo(ctx, p.client, req)
}
