// Package transport implements the outbound HTTP contract used by every
// gateway adapter. All implementations share the same error taxonomy: any
// failure to obtain a complete response, including timeouts, is returned as a
// *domain.NetworkError; HTTP error statuses are ordinary responses.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// Kinds of transport.
const (
	KindSocket   = "socket"
	KindPooled   = "pooled"
	KindPlatform = "platform"
)

// DefaultTimeout bounds a request when none is configured.
const DefaultTimeout = 30 * time.Second

// Config selects and tunes a transport.
type Config struct {
	Kind    string        `mapstructure:"kind"`
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the pooled transport circuit breaker.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// New builds the transport named by cfg.Kind. An empty kind selects pooled.
func New(cfg Config, logger *zap.Logger) (ports.Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch strings.ToLower(cfg.Kind) {
	case KindSocket:
		return NewSocket(cfg.Timeout), nil
	case KindPooled, "":
		return NewPooled(cfg, logger), nil
	case KindPlatform:
		return NewPlatform(cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport kind %q", domain.ErrConfiguration, cfg.Kind)
	}
}

// newHTTPClient is shared by the pooled and platform transports. Redirects are
// returned to the caller, never followed.
func newHTTPClient(rt http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func newBaseTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DisableCompression = true
	t.MaxIdleConnsPerHost = 16
	return t
}

func buildRequest(ctx context.Context, req *domain.HTTPRequest) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, methodOf(req), req.URL, body)
	if err != nil {
		return nil, domain.NewNetworkError(methodOf(req), req.URL, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	return hr, nil
}

func readResponse(req *domain.HTTPRequest, resp *http.Response) (*domain.HTTPResponse, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError(methodOf(req), req.URL, err)
	}
	return &domain.HTTPResponse{
		StatusCode:   resp.StatusCode,
		ReasonPhrase: reasonPhrase(resp),
		Header:       resp.Header,
		Body:         b,
	}, nil
}

func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

func methodOf(req *domain.HTTPRequest) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(req.Method)
}

// httpDo runs one request through client and converts the result.
func httpDo(ctx context.Context, client *http.Client, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	hr, err := buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(hr)
	if err != nil {
		return nil, domain.NewNetworkError(methodOf(req), req.URL, err)
	}
	return readResponse(req, resp)
}
