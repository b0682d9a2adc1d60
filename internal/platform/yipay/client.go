// Package yipay is a client for the YiPay payment page API.
package yipay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

const (
	ProductionEndpoint = "https://gateway.yipay.com.tw/payment"
	TestEndpoint       = "https://gateway-test.yipay.com.tw/payment"

	// CheckField carries the signature in both directions.
	CheckField = "checkCode"
)

// Payment types.
const (
	TypeCredit = "1"
	TypeCVS    = "3"
	TypeATM    = "4"
)

// Field orders covered by checkCode.
var (
	CheckoutFields = []string{"merchantId", "type", "amount", "orderNo", "returnURL", "cancelURL", "backgroundURL"}
	NotifyFields   = []string{
		"merchantId", "type", "amount", "orderNo", "transactionNo", "statusCode", "statusMessage",
		"paymentDate", "pinCode", "bankCode", "account", "expirationDate",
	}
)

// Config holds merchant credentials.
type Config struct {
	MerchantID string
	Key        string
	IV         string
	TestMode   bool
	Endpoint   string
}

// Client signs and verifies YiPay fields.
type Client struct {
	cfg Config
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.MerchantID == "" || cfg.Key == "" || cfg.IV == "" {
		return nil, fmt.Errorf("%w: yipay merchant id, key and iv are required", domain.ErrConfiguration)
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) MerchantID() string {
	return c.cfg.MerchantID
}

// CheckoutURL is where the payer's browser posts the signed form.
func (c *Client) CheckoutURL() string {
	switch {
	case c.cfg.Endpoint != "":
		return c.cfg.Endpoint
	case c.cfg.TestMode:
		return TestEndpoint
	default:
		return ProductionEndpoint
	}
}

// CheckCode signs the given fields of params in order.
func (c *Client) CheckCode(params domain.Params, fields []string) string {
	parts := make([]string, 0, len(fields)+2)
	parts = append(parts, c.cfg.Key)
	for _, f := range fields {
		parts = append(parts, params.Get(f))
	}
	parts = append(parts, c.cfg.IV)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// SignedCheckout fills merchantId and checkCode.
func (c *Client) SignedCheckout(params domain.Params) domain.Params {
	out := params.Clone()
	out["merchantId"] = c.cfg.MerchantID
	out[CheckField] = c.CheckCode(out, CheckoutFields)
	return out
}

// Verify checks the checkCode of a callback.
func (c *Client) Verify(params domain.Params) bool {
	got := params.Get(CheckField)
	if got == "" {
		return false
	}
	return strings.EqualFold(got, c.CheckCode(params, NotifyFields))
}
