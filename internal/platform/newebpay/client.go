// Package newebpay is a client for the NewebPay MPG API. Trade data travels
// AES-256-CBC encrypted in TradeInfo and is authenticated by TradeSha.
package newebpay

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

const (
	ProductionEndpoint = "https://core.newebpay.com"
	TestEndpoint       = "https://ccore.newebpay.com"

	mpgPath   = "/MPG/mpg_gateway"
	queryPath = "/API/QueryTradeInfo"

	// MPGVersion is sent with every checkout.
	MPGVersion = "2.0"
)

var errPadding = errors.New("invalid padding")

// Config holds merchant credentials. HashKey must be 32 bytes and HashIV 16.
type Config struct {
	MerchantID string
	HashKey    string
	HashIV     string
	TestMode   bool
	Endpoint   string
}

// Client talks to NewebPay.
type Client struct {
	cfg       Config
	transport ports.Transport
	now       func() time.Time
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config, transport ports.Transport) (*Client, error) {
	if cfg.MerchantID == "" {
		return nil, fmt.Errorf("%w: newebpay merchant id is required", domain.ErrConfiguration)
	}
	if len(cfg.HashKey) != 32 || len(cfg.HashIV) != 16 {
		return nil, fmt.Errorf("%w: newebpay hash key must be 32 bytes and hash iv 16 bytes", domain.ErrConfiguration)
	}
	return &Client{cfg: cfg, transport: transport, now: time.Now}, nil
}

func (c *Client) MerchantID() string {
	return c.cfg.MerchantID
}

func (c *Client) Endpoint() string {
	switch {
	case c.cfg.Endpoint != "":
		return strings.TrimRight(c.cfg.Endpoint, "/")
	case c.cfg.TestMode:
		return TestEndpoint
	default:
		return ProductionEndpoint
	}
}

// CheckoutURL is where the payer's browser posts the MPG form.
func (c *Client) CheckoutURL() string {
	return c.Endpoint() + mpgPath
}

// CheckoutForm encrypts trade fields into the four MPG form fields.
func (c *Client) CheckoutForm(trade domain.Params) (domain.Params, error) {
	trade = trade.Clone()
	trade["MerchantID"] = c.cfg.MerchantID
	trade["RespondType"] = "JSON"
	trade["Version"] = MPGVersion
	if trade["TimeStamp"] == "" {
		trade["TimeStamp"] = strconv.FormatInt(c.now().Unix(), 10)
	}

	info, err := c.EncryptTradeInfo(trade)
	if err != nil {
		return nil, err
	}
	return domain.Params{
		"MerchantID": c.cfg.MerchantID,
		"TradeInfo":  info,
		"TradeSha":   c.TradeSha(info),
		"Version":    MPGVersion,
	}, nil
}

// EncryptTradeInfo returns hex(AES-256-CBC(PKCS7(urlencoded trade))).
func (c *Client) EncryptTradeInfo(trade domain.Params) (string, error) {
	values := url.Values{}
	for k, v := range trade {
		values.Set(k, v)
	}
	return c.encrypt([]byte(values.Encode()))
}

func (c *Client) encrypt(plain []byte) (string, error) {
	block, err := aes.NewCipher([]byte(c.cfg.HashKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	plain = pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, []byte(c.cfg.HashIV)).CryptBlocks(out, plain)
	return hex.EncodeToString(out), nil
}

// DecryptTradeInfo reverses EncryptTradeInfo.
func (c *Client) DecryptTradeInfo(tradeInfo string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(tradeInfo))
	if err != nil {
		return "", fmt.Errorf("%w: trade info is not hex", domain.ErrInvalidSignature)
	}
	block, err := aes.NewCipher([]byte(c.cfg.HashKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if len(raw) == 0 || len(raw)%block.BlockSize() != 0 {
		return "", fmt.Errorf("%w: trade info length", domain.ErrInvalidSignature)
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, []byte(c.cfg.HashIV)).CryptBlocks(out, raw)
	out, err = pkcs7Unpad(out, block.BlockSize())
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return string(out), nil
}

// TradeSha signs an encrypted TradeInfo.
func (c *Client) TradeSha(tradeInfo string) string {
	sum := sha256.Sum256([]byte("HashKey=" + c.cfg.HashKey + "&" + tradeInfo + "&HashIV=" + c.cfg.HashIV))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify checks TradeSha against TradeInfo.
func (c *Client) Verify(params domain.Params) bool {
	info, sha := params.Get("TradeInfo"), params.Get("TradeSha")
	if info == "" || sha == "" {
		return false
	}
	return strings.EqualFold(sha, c.TradeSha(info))
}

// ParseResult verifies and decrypts a callback into flat fields: Status,
// Message and every entry of Result.
func (c *Client) ParseResult(params domain.Params) (domain.Params, error) {
	if !c.Verify(params) {
		return nil, fmt.Errorf("%w: newebpay trade sha", domain.ErrInvalidSignature)
	}
	plain, err := c.DecryptTradeInfo(params.Get("TradeInfo"))
	if err != nil {
		return nil, err
	}
	return flatten(plain)
}

// QueryTradeInfo fetches a trade by merchant order number and amount.
func (c *Client) QueryTradeInfo(ctx context.Context, merchantOrderNo string, amount int64) (domain.Params, error) {
	amt := strconv.FormatInt(amount, 10)
	values := url.Values{}
	values.Set("MerchantID", c.cfg.MerchantID)
	values.Set("Version", "1.3")
	values.Set("RespondType", "JSON")
	values.Set("TimeStamp", strconv.FormatInt(c.now().Unix(), 10))
	values.Set("MerchantOrderNo", merchantOrderNo)
	values.Set("Amt", amt)
	values.Set("CheckValue", c.checkValue(amt, merchantOrderNo))

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
		return nil, fmt.Errorf("%w: newebpay query returned %d", domain.ErrPaymentGatewayError, resp.StatusCode)
	}
	return flatten(string(resp.Body))
}

func (c *Client) checkValue(amt, merchantOrderNo string) string {
	raw := "IV=" + c.cfg.HashIV + "&Amt=" + amt + "&MerchantID=" + c.cfg.MerchantID +
		"&MerchantOrderNo=" + merchantOrderNo + "&Key=" + c.cfg.HashKey
	sum := sha256.Sum256([]byte(raw))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// flatten accepts the JSON envelope or a urlencoded string.
func flatten(body string) (domain.Params, error) {
	body = strings.TrimSpace(body)
	out := domain.Params{}
	if strings.HasPrefix(body, "{") {
		var envelope map[string]any
		if err := json.Unmarshal([]byte(body), &envelope); err != nil {
			return nil, fmt.Errorf("%w: newebpay result: %v", domain.ErrPaymentGatewayError, err)
		}
		for k, v := range envelope {
			if k == "Result" {
				continue
			}
			out[k] = cast.ToString(v)
		}
		result := envelope["Result"]
		if s, ok := result.(string); ok && strings.HasPrefix(strings.TrimSpace(s), "{") {
			// some result types double-encode the Result object
			var inner map[string]any
			if err := json.Unmarshal([]byte(s), &inner); err == nil {
				result = inner
			}
		}
		if m, ok := result.(map[string]any); ok {
			for k, v := range m {
				out[k] = cast.ToString(v)
			}
		}
		return out, nil
	}

	values, err := url.ParseQuery(body)
	if err != nil {
		return nil, fmt.Errorf("%w: newebpay result: %v", domain.ErrPaymentGatewayError, err)
	}
	for k := range values {
		out[k] = values.Get(k)
	}
	return out, nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errPadding
		}
	}
	return b[:len(b)-n], nil
}
