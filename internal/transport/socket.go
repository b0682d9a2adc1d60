package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Socket writes HTTP/1.x requests directly on a fresh TCP (or TLS)
// connection per request and reads the response with net/http's parser.
type Socket struct {
	timeout   time.Duration
	tlsConfig *tls.Config
}

// NewSocket creates a Socket transport.
func NewSocket(timeout time.Duration) *Socket {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Socket{timeout: timeout}
}

// WithTLSConfig overrides the TLS client configuration.
func (s *Socket) WithTLSConfig(cfg *tls.Config) *Socket {
	s.tlsConfig = cfg
	return s
}

func (s *Socket) Do(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	method := methodOf(req)
	fail := func(err error) (*domain.HTTPResponse, error) {
		return nil, domain.NewNetworkError(method, req.URL, err)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return fail(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fail(fmt.Errorf("unsupported scheme %q", u.Scheme))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dial(ctx, u)
	if err != nil {
		return fail(err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fail(err)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := conn.Write(encodeRequest(method, u, req)); err != nil {
		return fail(ctxErr(ctx, err))
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: method})
	if err != nil {
		return fail(ctxErr(ctx, err))
	}
	out, err := readResponse(req, resp)
	if err != nil {
		return fail(ctxErr(ctx, err))
	}
	return out, nil
}

func (s *Socket) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	addr := net.JoinHostPort(host, port)

	if u.Scheme == "https" {
		cfg := s.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		cfg = cfg.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		d := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
		return d.DialContext(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func encodeRequest(method string, u *url.URL, req *domain.HTTPRequest) []byte {
	version := req.ProtocolVersion
	if version != "1.0" {
		version = "1.1"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/%s\r\n", method, u.RequestURI(), version)
	b.WriteString("Host: " + u.Host + "\r\n")

	h := req.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Del("Host")
	h.Del("Content-Length")
	h.Set("Connection", "close")
	if h.Get("User-Agent") == "" {
		h.Set("User-Agent", "checkout-gateways")
	}
	if req.Body != nil || method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		h.Set("Content-Length", strconv.Itoa(len(req.Body)))
	}
	h.Write(&b)
	b.WriteString("\r\n")
	b.Write(req.Body)
	return b.Bytes()
}

// ctxErr prefers the context's error so timeouts read as deadline exceeded.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
