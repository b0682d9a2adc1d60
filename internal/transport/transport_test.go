package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Token", r.Header.Get("X-Token"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/echo", http.StatusFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func allKinds(t *testing.T, timeout time.Duration) map[string]ports.Transport {
	out := map[string]ports.Transport{}
	for _, kind := range []string{KindSocket, KindPooled, KindPlatform} {
		tr, err := New(Config{Kind: kind, Timeout: timeout}, zap.NewNop())
		require.NoError(t, err)
		out[kind] = tr
	}
	return out
}

func TestTransports_PostRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	for kind, tr := range allKinds(t, time.Second) {
		t.Run(kind, func(t *testing.T) {
			resp, err := tr.Do(context.Background(), &domain.HTTPRequest{
				Method: http.MethodPost,
				URL:    srv.URL + "/echo",
				Header: http.Header{"X-Token": {"abc"}, "Content-Type": {"application/json"}},
				Body:   []byte(`{"a":1}`),
			})

			require.NoError(t, err)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
			assert.Equal(t, "Created", resp.ReasonPhrase)
			assert.Equal(t, "POST", resp.Header.Get("X-Method"))
			assert.Equal(t, "abc", resp.Header.Get("X-Token"))
			assert.Equal(t, `{"a":1}`, string(resp.Body))
		})
	}
}

func TestTransports_ErrorStatusIsAResponse(t *testing.T) {
	srv := newTestServer(t)

	for kind, tr := range allKinds(t, time.Second) {
		t.Run(kind, func(t *testing.T) {
			resp, err := tr.Do(context.Background(), &domain.HTTPRequest{URL: srv.URL + "/fail"})

			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, "Internal Server Error", resp.ReasonPhrase)
			assert.Contains(t, string(resp.Body), "boom")
		})
	}
}

func TestTransports_RedirectNotFollowed(t *testing.T) {
	srv := newTestServer(t)

	for kind, tr := range allKinds(t, time.Second) {
		t.Run(kind, func(t *testing.T) {
			resp, err := tr.Do(context.Background(), &domain.HTTPRequest{Method: http.MethodGet, URL: srv.URL + "/redirect"})

			require.NoError(t, err)
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/echo", resp.Header.Get("Location"))
		})
	}
}

func TestTransports_TimeoutIsNetworkError(t *testing.T) {
	srv := newTestServer(t)

	for kind, tr := range allKinds(t, 100*time.Millisecond) {
		t.Run(kind, func(t *testing.T) {
			resp, err := tr.Do(context.Background(), &domain.HTTPRequest{URL: srv.URL + "/slow"})

			assert.Nil(t, resp)
			assert.ErrorIs(t, err, domain.ErrNetwork)
			var netErr *domain.NetworkError
			require.ErrorAs(t, err, &netErr)
			assert.Equal(t, srv.URL+"/slow", netErr.URL)
		})
	}
}

func TestTransports_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	for kind, tr := range allKinds(t, time.Second) {
		t.Run(kind, func(t *testing.T) {
			_, err := tr.Do(context.Background(), &domain.HTTPRequest{URL: addr})
			assert.ErrorIs(t, err, domain.ErrNetwork)
		})
	}
}

func TestSocket_HTTP10(t *testing.T) {
	var proto string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proto = r.Proto
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := NewSocket(time.Second).Do(context.Background(), &domain.HTTPRequest{
		URL:             srv.URL + "/q?x=1",
		ProtocolVersion: "1.0",
	})

	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0", proto)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestPooled_BreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	tr := NewPooled(Config{
		Timeout: time.Second,
		Breaker: BreakerConfig{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Minute},
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := tr.Do(context.Background(), &domain.HTTPRequest{URL: addr})
		require.ErrorIs(t, err, domain.ErrNetwork)
	}

	_, err := tr.Do(context.Background(), &domain.HTTPRequest{URL: addr})
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Config{Kind: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
