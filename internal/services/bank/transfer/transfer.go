// Package transfer is the manual bank-transfer gateway. It has no remote
// side: the checkout is a page with account details and the transfer code.
package transfer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"circle-system/internal/services/bank"
)

var _ bank.Gateway = (*Gateway)(nil)

type Config struct {
	BankName        string `json:"bank_name"`
	Branch          string `json:"branch"`
	AccountNumber   string `json:"account_number"`
	AccountHolder   string `json:"account_holder"`
	InstructionsURL string `json:"instructions_url"`

	// PaymentDeadline is how long the payer has to transfer.
	PaymentDeadline time.Duration `json:"payment_deadline"`
}

// Instructions is shown next to the transfer code.
type Instructions struct {
	BankName      string `json:"bank_name"`
	Branch        string `json:"branch"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

type Gateway struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) (*Gateway, error) {
	if cfg.InstructionsURL == "" {
		return nil, fmt.Errorf("transfer: instructions url is required")
	}
	if _, err := url.Parse(cfg.InstructionsURL); err != nil {
		return nil, fmt.Errorf("transfer: instructions url: %w", err)
	}
	if cfg.PaymentDeadline <= 0 {
		cfg.PaymentDeadline = 7 * 24 * time.Hour
	}
	return &Gateway{cfg: cfg, now: time.Now}, nil
}

func (g *Gateway) GetProvider() bank.Provider {
	return bank.ProviderTransfer
}

func (g *Gateway) Instructions() Instructions {
	return Instructions{
		BankName:      g.cfg.BankName,
		Branch:        g.cfg.Branch,
		AccountNumber: g.cfg.AccountNumber,
		AccountHolder: g.cfg.AccountHolder,
	}
}

// CreateCheckout points at the instructions page for the transfer code.
func (g *Gateway) CreateCheckout(ctx context.Context, req *bank.CheckoutRequest) (*bank.Checkout, error) {
	if req.TransferCode == "" {
		return nil, fmt.Errorf("CreateCheckout: transfer code is required")
	}

	u, err := url.Parse(g.cfg.InstructionsURL)
	if err != nil {
		return nil, fmt.Errorf("CreateCheckout: url.Parse: %w", err)
	}
	q := u.Query()
	q.Set("code", req.TransferCode)
	q.Set("payment", req.PaymentHashID)
	q.Set("amount", req.Amount.String())
	u.RawQuery = q.Encode()

	return &bank.Checkout{
		Provider:  bank.ProviderTransfer,
		URL:       u.String(),
		Amount:    req.Amount,
		ExpiresAt: g.now().Add(g.cfg.PaymentDeadline),
	}, nil
}

func (g *Gateway) CheckTransaction(ctx context.Context, sessionID string) (*bank.Transaction, error) {
	return nil, bank.ErrManualReconciliation
}

func (g *Gateway) Close(ctx context.Context) error {
	return nil
}
