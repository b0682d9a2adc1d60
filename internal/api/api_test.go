package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/adapters/ecpay"
	"github.com/fitstack/checkout-gateways/internal/adapters/memstore"
	"github.com/fitstack/checkout-gateways/internal/adapters/registry"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/service"
	"github.com/fitstack/checkout-gateways/internal/ledger"
	"github.com/fitstack/checkout-gateways/internal/settings"
	"github.com/fitstack/checkout-gateways/internal/transport/transporttest"
)

const adminKey = "admin-secret"

type testServer struct {
	router *gin.Engine
	card   *ecpay.Adapter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	options := memstore.NewOptionsStore(nil)
	require.NoError(t, options.Set(ctx, settings.GatewayKey("ecpay_credit"), map[string]any{
		ecpay.SettingMerchantID: "3002607",
		ecpay.SettingHashKey:    "pwFHCqoQZGmho4w6",
		ecpay.SettingHashIV:     "EkRm7iFT261dpevs",
		"test_mode":             true,
	}))

	card := ecpay.New("ecpay_credit", ecpay.PaymentCredit, &transporttest.Recorder{})
	loader := settings.NewLoader(options, settings.NewResolver(logger))
	reg, err := registry.New(loader, logger, card)
	require.NoError(t, err)
	require.NoError(t, reg.Reload(ctx))

	l := ledger.New(memstore.NewOrderStore(), logger)
	checkout := service.NewCheckoutService(reg, l, nil, service.CheckoutConfig{
		TransactionPrefix: "X",
		NotifyBaseURL:     "https://shop.test",
		ReturnBaseURL:     "https://shop.test",
	}, logger)
	dispatcher := service.NewNotificationDispatcher(reg, l, nil, logger)

	handler := NewHandler(checkout, dispatcher, reg, options, logger)
	return &testServer{
		router: SetupRouter(handler, RouterConfig{GinMode: gin.TestMode, AdminAPIKey: adminKey}, logger),
		card:   card,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (s *testServer) createOrder(t *testing.T, id string, total int64) {
	t.Helper()
	req := jsonRequest(t, http.MethodPost, "/api/v1/orders", gin.H{"id": id, "total": total, "currency": "TWD"})
	req.Header.Set(HeaderAPIKey, adminKey)
	w := s.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCheckoutAndNotify(t *testing.T) {
	s := newTestServer(t)
	s.createOrder(t, "42", 500)

	w := s.do(jsonRequest(t, http.MethodPost, "/api/v1/checkout/ecpay_credit", gin.H{"order_id": "42"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["redirect"])
	assert.Equal(t, "POST", body["redirect_method"])
	assert.Equal(t, "X42", body["transaction_id"])

	client, err := s.card.Client()
	require.NoError(t, err)
	form := client.SignedForm(domain.Params{
		"MerchantTradeNo": "X42",
		"RtnCode":         "1",
		"RtnMsg":          "Succeeded",
		"TradeNo":         "2403121530001",
		"TradeAmt":        "500",
		"SimulatePaid":    "0",
	})
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/notify/ecpay_credit", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w = s.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1|OK", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders/42/payment-info", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", decode(t, w)["order_id"])
}

func TestNotify_FailureAckIsStillOK(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/notify/ecpay_credit", strings.NewReader("MerchantTradeNo=X1&RtnCode=1&CheckMacValue=BAD"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := s.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0|invalid signature", w.Body.String())
}

func TestNotify_UnreadableBodyUsesGatewayAck(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/notify/ecpay_credit", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0|invalid body", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestNotify_UnknownGateway(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodPost, "/notify/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown gateway", w.Body.String())
}

func TestCheckout_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"missing order id", "/api/v1/checkout/ecpay_credit", gin.H{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown order", "/api/v1/checkout/ecpay_credit", gin.H{"order_id": "404"}, http.StatusNotFound, "ORDER_NOT_FOUND"},
		{"unknown gateway", "/api/v1/checkout/nope", gin.H{"order_id": "1"}, http.StatusNotFound, "UNKNOWN_GATEWAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(jsonRequest(t, http.MethodPost, tt.path, tt.body))
			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantErr, body["code"])
		})
	}
}

func TestReturn_BadSignature(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/return/ecpay_credit?MerchantTradeNo=X1&RtnCode=1&CheckMacValue=BAD", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", decode(t, w)["code"])
}

func TestRemittance(t *testing.T) {
	s := newTestServer(t)
	s.createOrder(t, "7", 900)

	w := s.do(jsonRequest(t, http.MethodPost, "/api/v1/orders/7/remittance", gin.H{"last5": "123"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REMITTANCE", decode(t, w)["code"])

	w = s.do(jsonRequest(t, http.MethodPost, "/api/v1/orders/7/remittance", gin.H{"last5": "54321"}))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	s := newTestServer(t)

	w := s.do(jsonRequest(t, http.MethodPost, "/api/v1/orders", gin.H{"id": "1", "total": 10}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := jsonRequest(t, http.MethodPut, "/api/v1/gateways/ecpay_credit/settings", gin.H{})
	req.Header.Set("Authorization", "Bearer wrong")
	w = s.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateGatewaySettings(t *testing.T) {
	s := newTestServer(t)

	req := jsonRequest(t, http.MethodPut, "/api/v1/gateways/ecpay_credit/settings", gin.H{
		"title":                 "Credit card",
		ecpay.SettingMerchantID: "2000132",
		ecpay.SettingHashKey:    "5294y06JbISpM5x9",
		ecpay.SettingHashIV:     "v77hoKGq4kWxNNIS",
	})
	req.Header.Set(HeaderAPIKey, adminKey)
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "2000132", s.card.Settings().String(ecpay.SettingMerchantID, ""))

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/gateways", nil))
	require.Equal(t, http.StatusOK, w.Code)
	gateways := decode(t, w)["gateways"].([]any)
	require.Len(t, gateways, 1)
	assert.Equal(t, map[string]any{"id": "ecpay_credit", "provider": "ecpay", "title": "Credit card"}, gateways[0])

	req = jsonRequest(t, http.MethodPut, "/api/v1/gateways/nope/settings", gin.H{})
	req.Header.Set(HeaderAPIKey, adminKey)
	assert.Equal(t, http.StatusNotFound, s.do(req).Code)
}

func TestRequestParams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		headers     map[string]string
		want        domain.Params
	}{
		{
			name:        "json webhook with nested data",
			target:      "/notify/mercadopago?data.id=123&type=payment",
			contentType: "application/json",
			body:        `{"action":"payment.updated","data":{"id":"123"},"live_mode":false,"user_id":44}`,
			headers:     map[string]string{"x-signature": "ts=1,v1=abc", "x-request-id": "req-1"},
			want: domain.Params{
				"data.id":      "123",
				"type":         "payment",
				"action":       "payment.updated",
				"live_mode":    "false",
				"user_id":      "44",
				"x-signature":  "ts=1,v1=abc",
				"x-request-id": "req-1",
			},
		},
		{
			name:        "form post overrides query",
			target:      "/notify/ecpay_atm?RtnCode=0",
			contentType: "application/x-www-form-urlencoded",
			body:        "RtnCode=2&vAccount=9103522175887271",
			want:        domain.Params{"RtnCode": "2", "vAccount": "9103522175887271"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", tt.contentType)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}

			got, err := requestParams(c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestParams_BadJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/notify/acme", strings.NewReader("{"))
	c.Request.Header.Set("Content-Type", "application/json")

	_, err := requestParams(c)
	assert.Error(t, err)
}
