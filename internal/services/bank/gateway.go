package bank

import (
	"context"
	"errors"
	"time"

	"circle-system/models"

	"github.com/shopspring/decimal"
)

// Provider names a checkout backend.
type Provider string

const (
	ProviderOnline   Provider = "online"
	ProviderTransfer Provider = "bank_transfer"
)

var ErrManualReconciliation = errors.New("bank: transaction is reconciled manually")

// CheckoutRequest opens a checkout for one payment.
type CheckoutRequest struct {
	PaymentHashID string          `json:"payment_hash_id"`
	TransferCode  string          `json:"transfer_code"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description,omitempty"`
}

// Checkout is what the payer is sent to.
type Checkout struct {
	Provider  Provider        `json:"provider"`
	SessionID string          `json:"session_id,omitempty"`
	URL       string          `json:"url"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

// Transaction is a provider's view of a checkout session.
type Transaction struct {
	SessionID       string               `json:"session_id"`
	PaymentIntentID string               `json:"payment_intent_id,omitempty"`
	Status          models.PaymentStatus `json:"status"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        string               `json:"currency"`
	CardBrand       string               `json:"card_brand,omitempty"`
	PaidAt          time.Time            `json:"paid_at,omitempty"`
}

// Gateway is implemented by every checkout backend.
type Gateway interface {
	GetProvider() Provider

	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*Checkout, error)

	// CheckTransaction returns ErrManualReconciliation for providers that
	// have no session to query.
	CheckTransaction(ctx context.Context, sessionID string) (*Transaction, error)

	Close(ctx context.Context) error
}

// AmountOf converts an integer amount in the smallest currency unit.
func AmountOf(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
