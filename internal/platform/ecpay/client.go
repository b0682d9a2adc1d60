// Package ecpay is a client for the ECPay all-in-one payment API: it signs
// outgoing fields, verifies callbacks and queries trade status.
package ecpay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

const (
	ProductionEndpoint = "https://payment.ecpay.com.tw"
	StageEndpoint      = "https://payment-stage.ecpay.com.tw"

	checkoutPath = "/Cashier/AioCheckOut/V5"
	queryPath    = "/Cashier/QueryTradeInfo/V5"

	// MacField carries the signature in both directions.
	MacField = "CheckMacValue"
)

// Config holds merchant credentials.
type Config struct {
	MerchantID string
	HashKey    string
	HashIV     string
	TestMode   bool
	// Endpoint overrides the production or stage host.
	Endpoint string
}

// Client talks to ECPay.
type Client struct {
	cfg       Config
	transport ports.Transport
	now       func() time.Time
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config, transport ports.Transport) (*Client, error) {
	if cfg.MerchantID == "" || cfg.HashKey == "" || cfg.HashIV == "" {
		return nil, fmt.Errorf("%w: ecpay merchant id, hash key and hash iv are required", domain.ErrConfiguration)
	}
	return &Client{cfg: cfg, transport: transport, now: time.Now}, nil
}

// MerchantID returns the configured merchant.
func (c *Client) MerchantID() string {
	return c.cfg.MerchantID
}

// Endpoint returns the API host in use.
func (c *Client) Endpoint() string {
	switch {
	case c.cfg.Endpoint != "":
		return strings.TrimRight(c.cfg.Endpoint, "/")
	case c.cfg.TestMode:
		return StageEndpoint
	default:
		return ProductionEndpoint
	}
}

// CheckoutURL is where the payer's browser posts the signed form.
func (c *Client) CheckoutURL() string {
	return c.Endpoint() + checkoutPath
}

// Sign computes CheckMacValue over every field except CheckMacValue itself.
func (c *Client) Sign(params domain.Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == MacField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var b strings.Builder
	b.WriteString("HashKey=" + c.cfg.HashKey)
	for _, k := range keys {
		b.WriteString("&" + k + "=" + params[k])
	}
	b.WriteString("&HashIV=" + c.cfg.HashIV)

	sum := sha256.Sum256([]byte(dotNetURLEncode(b.String())))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify checks the CheckMacValue of a callback.
func (c *Client) Verify(params domain.Params) bool {
	got := params.Get(MacField)
	if got == "" {
		return false
	}
	return strings.EqualFold(got, c.Sign(params))
}

// SignedForm returns params with MerchantID and CheckMacValue filled in.
func (c *Client) SignedForm(params domain.Params) domain.Params {
	out := params.Clone()
	out["MerchantID"] = c.cfg.MerchantID
	delete(out, MacField)
	out[MacField] = c.Sign(out)
	return out
}

// QueryTradeInfo fetches the current state of a trade.
func (c *Client) QueryTradeInfo(ctx context.Context, merchantTradeNo string) (domain.Params, error) {
	form := c.SignedForm(domain.Params{
		"MerchantTradeNo": merchantTradeNo,
		"TimeStamp":       strconv.FormatInt(c.now().Unix(), 10),
	})

	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	resp, err := c.transport.Do(ctx, &domain.HTTPRequest{
		Method: http.MethodPost,
		URL:    c.Endpoint() + queryPath,
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   []byte(values.Encode()),
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ecpay query returned %d", domain.ErrPaymentGatewayError, resp.StatusCode)
	}

	parsed, err := url.ParseQuery(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: ecpay query response: %v", domain.ErrPaymentGatewayError, err)
	}
	out := domain.Params{}
	for k := range parsed {
		out[k] = parsed.Get(k)
	}
	if !c.Verify(out) {
		return nil, fmt.Errorf("%w: ecpay query response", domain.ErrInvalidSignature)
	}
	return out, nil
}

var dotNetReplacer = strings.NewReplacer(
	"%2d", "-",
	"%5f", "_",
	"%2e", ".",
	"%21", "!",
	"%2a", "*",
	"%28", "(",
	"%29", ")",
	"~", "%7e",
)

// dotNetURLEncode reproduces the lower-cased HttpUtility.UrlEncode output
// that ECPay signs against.
func dotNetURLEncode(s string) string {
	return dotNetReplacer.Replace(strings.ToLower(url.QueryEscape(s)))
}
