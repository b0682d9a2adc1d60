// Package banktransfer implements manual bank transfer. The payer wires the
// order total to a configured account and reports the last five digits of
// the paying account; reconciliation happens outside the gateway.
package banktransfer

import (
	"context"
	"fmt"

	"github.com/fitstack/checkout-gateways/internal/adapters/gateway"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// Provider is the provider family name.
const Provider = "bank_transfer"

// Setting keys.
const (
	SettingBankCode    = "bank_code"
	SettingBankAccount = "bank_account"
)

type account struct {
	bankCode string
	number   string
}

// Adapter is the bank transfer gateway.
type Adapter struct {
	gateway.Base
	session *gateway.Session[*account]
}

var _ ports.Gateway = (*Adapter)(nil)

// New creates a bank transfer adapter.
func New(id string) *Adapter {
	return &Adapter{
		Base: gateway.NewBase(id, Provider, domain.GatewaySettings{
			SettingBankCode:    "",
			SettingBankAccount: "",
		}),
		session: gateway.NewSession(func(s domain.GatewaySettings) (*account, error) {
			acc := &account{
				bankCode: s.String(SettingBankCode, ""),
				number:   s.String(SettingBankAccount, ""),
			}
			if acc.bankCode == "" || acc.number == "" {
				return nil, fmt.Errorf("%w: bank code and bank account are required", domain.ErrConfiguration)
			}
			return acc, nil
		}),
	}
}

func (a *Adapter) Configure(settings domain.GatewaySettings) {
	a.session.Configure(a.WithDefaults(settings))
}

func (a *Adapter) Settings() domain.GatewaySettings {
	return a.session.Settings()
}

// Purchase accepts the order without a redirect; the payer is shown the
// account from NormalizePaymentInfo.
func (a *Adapter) Purchase(_ context.Context, req domain.PaymentRequest) (*domain.PurchaseResult, error) {
	if _, err := a.session.Client(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return gateway.Rejected("INVALID_AMOUNT", "amount must be positive"), nil
	}
	return &domain.PurchaseResult{
		Successful:    true,
		TransactionID: req.TransactionID,
		Message:       "Awaiting bank transfer",
	}, nil
}

// CompletePurchase leaves the order waiting for the transfer.
func (a *Adapter) CompletePurchase(_ context.Context, params domain.Params) (*domain.CompletionResult, error) {
	return &domain.CompletionResult{
		Pending:       true,
		TransactionID: params.Get("transaction_id"),
		Message:       "Awaiting bank transfer",
	}, nil
}

// AcceptNotification always fails: bank transfers have no callback.
func (a *Adapter) AcceptNotification(context.Context, domain.Params) (*domain.Notification, error) {
	return nil, fmt.Errorf("%w: bank transfer has no notifications", domain.ErrInvalidRequest)
}

func (a *Adapter) VerifyNotification(context.Context, domain.Params) bool {
	return false
}

// ValidateAmount always passes; amounts are reconciled by hand.
func (a *Adapter) ValidateAmount(domain.Params, int64) bool {
	return true
}

// NormalizePaymentInfo returns the configured receiving account.
func (a *Adapter) NormalizePaymentInfo(domain.Params) domain.PaymentInfo {
	acc, err := a.session.Client()
	if err != nil {
		return domain.PaymentInfo{}
	}
	return domain.NewPaymentInfo(map[string]string{
		domain.InfoBankCode:    acc.bankCode,
		domain.InfoBankAccount: acc.number,
	})
}

func (a *Adapter) PaymentInfoNote(data domain.Params) (string, bool) {
	return gateway.PaymentInfoNote(a.NormalizePaymentInfo(data))
}
