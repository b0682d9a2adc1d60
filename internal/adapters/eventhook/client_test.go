package eventhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/transport/transporttest"
)

func TestClient_Publish(t *testing.T) {
	rec := &transporttest.Recorder{Response: &domain.HTTPResponse{StatusCode: http.StatusNoContent}}
	client := NewClient("https://shop.example/hooks/payments/", "s3cret", rec)

	err := client.Publish(context.Background(), domain.PaymentEvent{
		Event:   domain.EventPaymentApproved,
		OrderID: "42",
		Status:  domain.StatusProcessing,
		Amount:  500,
	})
	require.NoError(t, err)

	req := rec.Last()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://shop.example/hooks/payments", req.URL)
	assert.Equal(t, "s3cret", req.Header.Get(HeaderSecret))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var sent map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &sent))
	assert.Equal(t, "payment.approved", sent["event"])
	assert.Equal(t, "42", sent["order_id"])
	assert.Equal(t, "processing", sent["status"])
}

func TestClient_Publish_Errors(t *testing.T) {
	tests := []struct {
		name string
		rec  *transporttest.Recorder
		want error
	}{
		{
			name: "backend refuses",
			rec:  &transporttest.Recorder{Response: &domain.HTTPResponse{StatusCode: http.StatusUnauthorized, Body: []byte("bad secret")}},
			want: domain.ErrEventDelivery,
		},
		{
			name: "network failure",
			rec:  &transporttest.Recorder{Err: domain.NewNetworkError("POST", "https://shop.example", errors.New("refused"))},
			want: domain.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient("https://shop.example", "", tt.rec)
			err := client.Publish(context.Background(), domain.PaymentEvent{Event: domain.EventPaymentRejected})
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, tt.rec.Last().Header.Get(HeaderSecret))
		})
	}
}
