package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/adapters/banktransfer"
	"github.com/fitstack/checkout-gateways/internal/adapters/defaultgw"
	"github.com/fitstack/checkout-gateways/internal/adapters/ecpay"
	"github.com/fitstack/checkout-gateways/internal/adapters/memstore"
	"github.com/fitstack/checkout-gateways/internal/adapters/registry"
	"github.com/fitstack/checkout-gateways/internal/adapters/yipay"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	"github.com/fitstack/checkout-gateways/internal/ledger"
	yipayapi "github.com/fitstack/checkout-gateways/internal/platform/yipay"
	"github.com/fitstack/checkout-gateways/internal/transport/transporttest"
)

var ecpaySettings = domain.GatewaySettings{
	ecpay.SettingMerchantID: "3002607",
	ecpay.SettingHashKey:    "pwFHCqoQZGmho4w6",
	ecpay.SettingHashIV:     "EkRm7iFT261dpevs",
	"test_mode":             true,
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.PaymentEvent
}

func (r *recordingEvents) Publish(_ context.Context, e domain.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event)
	}
	return out
}

type fixture struct {
	store      *memstore.OrderStore
	checkout   *CheckoutService
	dispatcher *NotificationDispatcher
	events     *recordingEvents
	ecpayATM   *ecpay.Adapter
	ecpayCard  *ecpay.Adapter
	yipayCVS   *yipay.Adapter
	defaultTr  *transporttest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	card := ecpay.New("ecpay_credit", ecpay.PaymentCredit, &transporttest.Recorder{})
	card.Configure(ecpaySettings)
	atm := ecpay.New("ecpay_atm", ecpay.PaymentATM, &transporttest.Recorder{})
	atm.Configure(ecpaySettings)

	bank := banktransfer.New("bank_transfer")
	bank.Configure(domain.GatewaySettings{
		banktransfer.SettingBankCode:    "812",
		banktransfer.SettingBankAccount: "00012345678901",
	})

	defaultTr := &transporttest.Recorder{}
	generic := defaultgw.New("acme", defaultTr)
	generic.Configure(domain.GatewaySettings{defaultgw.SettingEndpoint: "https://pay.acme.test/checkout"})

	unconfigured := defaultgw.New("acme_off", defaultTr)
	unconfigured.Configure(domain.GatewaySettings{})

	cvs := yipay.New("yipay_cvs", yipayapi.TypeCVS)
	cvs.Configure(domain.GatewaySettings{
		yipay.SettingMerchantID: "1604000006",
		yipay.SettingKey:        "kx4t8jvn3UaDVcBnY1P3NRU2bKCQ6kKK",
		yipay.SettingIV:         "Ts2oHbNvVVXCn2nA",
		"test_mode":             true,
	})

	reg, err := registry.New(nil, zap.NewNop(), card, atm, bank, generic, unconfigured, cvs)
	require.NoError(t, err)

	store := memstore.NewOrderStore()
	l := ledger.New(store, zap.NewNop())
	events := &recordingEvents{}
	cfg := CheckoutConfig{
		TransactionPrefix: "X",
		NotifyBaseURL:     "https://shop.test/",
		ReturnBaseURL:     "https://shop.test",
	}

	return &fixture{
		store:      store,
		checkout:   NewCheckoutService(reg, l, events, cfg, zap.NewNop()),
		dispatcher: NewNotificationDispatcher(reg, l, events, zap.NewNop()),
		events:     events,
		ecpayATM:   atm,
		ecpayCard:  card,
		yipayCVS:   cvs,
		defaultTr:  defaultTr,
	}
}

func (f *fixture) order(t *testing.T, id string, total int64) {
	t.Helper()
	require.NoError(t, f.checkout.CreateOrder(context.Background(), &domain.Order{ID: id, Total: total, Currency: "TWD"}))
}

func (f *fixture) get(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func signed(t *testing.T, a *ecpay.Adapter, p domain.Params) domain.Params {
	t.Helper()
	c, err := a.Client()
	require.NoError(t, err)
	return c.SignedForm(p)
}

func paidNotice(txn, amount string) domain.Params {
	return domain.Params{
		"MerchantID":      "3002607",
		"MerchantTradeNo": txn,
		"RtnCode":         "1",
		"RtnMsg":          "Succeeded",
		"TradeNo":         "2403121530001",
		"TradeAmt":        amount,
		"PaymentType":     "Credit_CreditCard",
		"SimulatePaid":    "0",
	}
}

func TestCheckout_PurchaseRedirectPutsOrderOnHold(t *testing.T) {
	f := newFixture(t)
	f.order(t, "42", 500)

	res, err := f.checkout.Purchase(context.Background(), "ecpay_credit", "42")
	require.NoError(t, err)

	assert.True(t, res.Redirect)
	assert.Equal(t, "X42", res.TransactionID)
	assert.Equal(t, "X42", res.RedirectData["MerchantTradeNo"])
	assert.Equal(t, "https://shop.test/notify/ecpay_credit", res.RedirectData["ReturnURL"])

	order := f.get(t, "42")
	assert.Equal(t, domain.StatusOnHold, order.Status)
	assert.Equal(t, "X42", order.TransactionID())
}

func TestEndToEnd_MatchingAmountCompletesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, "42", 500)

	_, err := f.checkout.Purchase(ctx, "ecpay_credit", "42")
	require.NoError(t, err)
	require.Equal(t, domain.StatusOnHold, f.get(t, "42").Status)

	notice := signed(t, f.ecpayCard, paidNotice("X42", "500"))
	ack, err := f.dispatcher.Handle(ctx, "ecpay_credit", notice)
	require.NoError(t, err)
	assert.Equal(t, "1|OK", ack)

	order := f.get(t, "42")
	assert.Equal(t, domain.StatusProcessing, order.Status)
	assert.Equal(t, "X42", order.TransactionID())
	assert.Equal(t, "2403121530001", order.PaymentRef)
	assert.Empty(t, f.checkout.ledger.GetPaymentInfo(order))
	assert.Equal(t, []string{domain.EventPaymentApproved}, f.events.names())

	notes := len(order.Notes)
	ack, err = f.dispatcher.Handle(ctx, "ecpay_credit", notice)
	require.NoError(t, err)
	assert.Equal(t, "1|OK", ack)

	order = f.get(t, "42")
	assert.Equal(t, domain.StatusProcessing, order.Status)
	assert.Len(t, order.Notes, notes)
	assert.Len(t, f.events.names(), 1)
}

func TestEndToEnd_AmountMismatchKeepsOrderOnHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, "7", 100)

	_, err := f.checkout.Purchase(ctx, "ecpay_credit", "7")
	require.NoError(t, err)

	ack, err := f.dispatcher.Handle(ctx, "ecpay_credit", signed(t, f.ecpayCard, paidNotice("X7", "999")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ack, "0|"), ack)
	assert.Equal(t, "0|amount mismatch", ack)
	assert.Equal(t, domain.StatusOnHold, f.get(t, "7").Status)
	assert.Empty(t, f.events.names())
}

func TestDispatcher_InstructionStoresPaymentInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, "8", 1200)

	_, err := f.checkout.Purchase(ctx, "ecpay_atm", "8")
	require.NoError(t, err)

	ack, err := f.dispatcher.Handle(ctx, "ecpay_atm", signed(t, f.ecpayATM, domain.Params{
		"MerchantTradeNo": "X8",
		"RtnCode":         "2",
		"RtnMsg":          "Get VirtualAccount Succeeded",
		"TradeNo":         "2403121530002",
		"TradeAmt":        "1200",
		"BankCode":        "812",
		"vAccount":        "9103522175887271",
		"ExpireDate":      "2024/03/15",
	}))
	require.NoError(t, err)
	assert.Equal(t, "1|OK", ack)

	order := f.get(t, "8")
	assert.Equal(t, domain.StatusOnHold, order.Status)
	assert.Equal(t, "812", order.Meta[domain.MetaBankCode])
	assert.Equal(t, "9103522175887271", order.Meta[domain.MetaVirtualAccount])
	assert.Equal(t, "2024/03/15", order.Meta[domain.MetaExpireDate])
	assert.Contains(t, order.Notes[len(order.Notes)-1].Text, "Virtual account: 9103522175887271")
	assert.Equal(t, []string{domain.EventPaymentPending}, f.events.names())

	info, err := f.checkout.PaymentInfo(ctx, "8")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentInfo{
		domain.InfoBankCode:       "812",
		domain.InfoVirtualAccount: "9103522175887271",
		domain.InfoExpireDate:     "2024/03/15",
	}, info)
}

func TestDispatcher_InstructionCannotBeTurnedIntoPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, "30", 100)

	_, err := f.checkout.Purchase(ctx, "yipay_cvs", "30")
	require.NoError(t, err)

	c, err := f.yipayCVS.Client()
	require.NoError(t, err)
	notice := domain.Params{
		"merchantId":     c.MerchantID(),
		"type":           yipayapi.TypeCVS,
		"amount":         "100",
		"orderNo":        "X30",
		"transactionNo":  "YP0001",
		"statusCode":     "00",
		"statusMessage":  "pin issued",
		"pinCode":        "LLL123",
		"expirationDate": "2099-12-31",
	}
	notice[yipayapi.CheckField] = c.CheckCode(notice, yipayapi.NotifyFields)

	ack, err := f.dispatcher.Handle(ctx, "yipay_cvs", notice)
	require.NoError(t, err)
	assert.Equal(t, "1|OK", ack)
	assert.Equal(t, domain.StatusOnHold, f.get(t, "30").Status)

	tampered := notice.Clone()
	tampered["paymentDate"] = "2099-01-01 10:00:00"

	ack, err = f.dispatcher.Handle(ctx, "yipay_cvs", tampered)
	require.NoError(t, err)
	assert.Equal(t, "0|invalid signature", ack)

	order := f.get(t, "30")
	assert.Equal(t, domain.StatusOnHold, order.Status)
	assert.False(t, order.Status.IsPaid())
	assert.Equal(t, []string{domain.EventPaymentPending}, f.events.names())
}

func TestDispatcher_FailureAcks(t *testing.T) {
	tests := []struct {
		name   string
		params func(f *fixture) domain.Params
		want   string
	}{
		{
			name: "tampered mac",
			params: func(f *fixture) domain.Params {
				p := signed(t, f.ecpayCard, paidNotice("X9", "300"))
				p["TradeAmt"] = "1"
				return p
			},
			want: "0|invalid signature",
		},
		{
			name: "unknown transaction",
			params: func(f *fixture) domain.Params {
				return signed(t, f.ecpayCard, paidNotice("NOPE", "300"))
			},
			want: "0|order not found",
		},
		{
			name: "missing trade number",
			params: func(*fixture) domain.Params {
				return domain.Params{"RtnCode": "1"}
			},
			want: "0|invalid request: MerchantTradeNo is missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.order(t, "9", 300)
			_, err := f.checkout.Purchase(context.Background(), "ecpay_credit", "9")
			require.NoError(t, err)

			ack, err := f.dispatcher.Handle(context.Background(), "ecpay_credit", tt.params(f))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ack)
			assert.Equal(t, domain.StatusOnHold, f.get(t, "9").Status)
		})
	}
}

func TestDispatcher_FailedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, "10", 300)
	_, err := f.checkout.Purchase(ctx, "ecpay_credit", "10")
	require.NoError(t, err)

	notice := paidNotice("X10", "300")
	notice["RtnCode"] = "10100058"
	notice["RtnMsg"] = "Card declined"

	ack, err := f.dispatcher.Handle(ctx, "ecpay_credit", signed(t, f.ecpayCard, notice))
	require.NoError(t, err)
	assert.Equal(t, "1|OK", ack)

	order := f.get(t, "10")
	assert.Equal(t, domain.StatusFailed, order.Status)
	assert.Contains(t, order.Notes[len(order.Notes)-1].Text, "Card declined")
	assert.Equal(t, []string{domain.EventPaymentRejected}, f.events.names())
}

func TestDispatcher_InstructionDoesNotReopenFailedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, "31", 1200)
	_, err := f.checkout.Purchase(ctx, "ecpay_atm", "31")
	require.NoError(t, err)

	declined := paidNotice("X31", "1200")
	declined["RtnCode"] = "10100058"
	declined["RtnMsg"] = "Payment failed"
	ack, err := f.dispatcher.Handle(ctx, "ecpay_atm", signed(t, f.ecpayATM, declined))
	require.NoError(t, err)
	require.Equal(t, "1|OK", ack)
	require.Equal(t, domain.StatusFailed, f.get(t, "31").Status)

	ack, err = f.dispatcher.Handle(ctx, "ecpay_atm", signed(t, f.ecpayATM, domain.Params{
		"MerchantTradeNo": "X31",
		"RtnCode":         "2",
		"RtnMsg":          "Get VirtualAccount Succeeded",
		"TradeNo":         "2403121530031",
		"TradeAmt":        "1200",
		"BankCode":        "812",
		"vAccount":        "9103522175887999",
		"ExpireDate":      "2024/03/15",
	}))
	require.NoError(t, err)
	assert.Equal(t, "1|OK", ack)

	order := f.get(t, "31")
	assert.Equal(t, domain.StatusFailed, order.Status)
	assert.Empty(t, order.Meta[domain.MetaVirtualAccount])
	assert.Equal(t, []string{domain.EventPaymentRejected}, f.events.names())
}

func TestDispatcher_UnknownGateway(t *testing.T) {
	f := newFixture(t)

	ack, err := f.dispatcher.Handle(context.Background(), "nope", domain.Params{})
	assert.ErrorIs(t, err, domain.ErrUnknownGateway)
	assert.Empty(t, ack)
}

func TestCheckout_PurchaseErrors(t *testing.T) {
	tests := []struct {
		name     string
		gateway  string
		setup    func(f *fixture)
		wantErr  error
		wantCode string
	}{
		{
			name:    "network failure",
			gateway: "acme",
			setup: func(f *fixture) {
				f.defaultTr.Err = domain.NewNetworkError("POST", "https://pay.acme.test/checkout", errors.New("timeout"))
			},
			wantErr:  domain.ErrNetwork,
			wantCode: "NETWORK_ERROR",
		},
		{
			name:     "missing endpoint",
			gateway:  "acme_off",
			wantErr:  domain.ErrConfiguration,
			wantCode: "GATEWAY_NOT_CONFIGURED",
		},
		{
			name:    "paid order",
			gateway: "ecpay_credit",
			setup: func(f *fixture) {
				o := f.get(t, "11")
				_, err := f.store.CompletePayment(context.Background(), o, "T")
				require.NoError(t, err)
			},
			wantErr:  domain.ErrInvalidRequest,
			wantCode: "ORDER_PAID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.order(t, "11", 300)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.checkout.Purchase(context.Background(), tt.gateway, "11")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var serviceErr *domain.ServiceError
			require.True(t, errors.As(err, &serviceErr))
			assert.Equal(t, tt.wantCode, serviceErr.Code)
			assert.NotEqual(t, domain.StatusOnHold, f.get(t, "11").Status)
		})
	}
}

func TestCheckout_PurchaseUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.checkout.Purchase(context.Background(), "ecpay_credit", "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = f.checkout.Purchase(context.Background(), "nope", "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownGateway)
}

func TestCheckout_ProviderRejectionLeavesOrderPending(t *testing.T) {
	f := newFixture(t)
	f.order(t, "12", 300)
	f.defaultTr.Response = &domain.HTTPResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"status":"declined","code":"RISK","message":"blocked"}`),
	}

	res, err := f.checkout.Purchase(context.Background(), "acme", "12")
	require.NoError(t, err)
	assert.False(t, res.Successful)
	assert.False(t, res.Redirect)
	assert.Equal(t, "RISK", res.Code)
	assert.Equal(t, domain.StatusPending, f.get(t, "12").Status)

	sent := f.defaultTr.Last()
	require.NotNil(t, sent)
	assert.Contains(t, string(sent.Body), `"notify_url":"https://shop.test/notify/acme"`)
	assert.Contains(t, string(sent.Body), `"return_url":"https://shop.test/return/acme"`)
}

func TestCheckout_BankTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, "13", 2500)

	res, err := f.checkout.Purchase(ctx, "bank_transfer", "13")
	require.NoError(t, err)
	assert.True(t, res.Successful)
	assert.False(t, res.Redirect)

	order := f.get(t, "13")
	assert.Equal(t, domain.StatusOnHold, order.Status)

	info, err := f.checkout.PaymentInfo(ctx, "13")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentInfo{
		domain.InfoBankCode:    "812",
		domain.InfoBankAccount: "00012345678901",
	}, info)

	err = f.checkout.SaveRemittanceLast5(ctx, "13", "12a45")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	require.NoError(t, f.checkout.SaveRemittanceLast5(ctx, "13", "12345"))
	assert.Equal(t, "12345", f.get(t, "13").Meta[domain.MetaRemittanceLast5])

	ack, err := f.dispatcher.Handle(ctx, "bank_transfer", domain.Params{"transaction_id": "X13"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ack, "0|"))
}

func TestCheckout_CompletePurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, "14", 500)
	_, err := f.checkout.Purchase(ctx, "ecpay_credit", "14")
	require.NoError(t, err)

	out, err := f.checkout.CompletePurchase(ctx, "ecpay_credit", signed(t, f.ecpayCard, paidNotice("X14", "500")))
	require.NoError(t, err)
	assert.Equal(t, "14", out.OrderID)
	assert.True(t, out.Successful)
	assert.Equal(t, domain.StatusProcessing, out.Status)
	assert.Equal(t, []string{domain.EventPaymentApproved}, f.events.names())

	ack, err := f.dispatcher.Handle(ctx, "ecpay_credit", signed(t, f.ecpayCard, paidNotice("X14", "500")))
	require.NoError(t, err)
	assert.Equal(t, "1|OK", ack)
	assert.Len(t, f.events.names(), 1)
}

func TestCheckout_CompletePurchaseRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.order(t, "15", 500)
	_, err := f.checkout.Purchase(context.Background(), "ecpay_credit", "15")
	require.NoError(t, err)

	p := signed(t, f.ecpayCard, paidNotice("X15", "500"))
	p["RtnCode"] = "1"
	p["TradeAmt"] = "5"

	_, err = f.checkout.CompletePurchase(context.Background(), "ecpay_credit", p)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Equal(t, domain.StatusOnHold, f.get(t, "15").Status)
}

var _ ports.EventPublisher = (*recordingEvents)(nil)
