package submission

import (
	"context"
	"fmt"
	"log/slog"

	"circle-system/internal/services/bank/transfer"
	"circle-system/internal/status"
	"circle-system/models"
)

type AccountProvider interface {
	CreateAccount(ctx context.Context, creds models.Credentials) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateProfile(ctx context.Context, id string, patch models.Profile) (*models.Account, error)
}

// CreationEndpoint owns duplicate detection, sale windows and voucher redemption.
type CreationEndpoint interface {
	CreateApplication(ctx context.Context, userID string, p models.ApplicationPayload) (*models.CreationResult, error)
	CreateTicket(ctx context.Context, userID string, p models.TicketPayload) (*models.CreationResult, error)
}

type VoucherLookup interface {
	ResolveVoucherCode(ctx context.Context, targetType models.VoucherTarget, scopeID, typeID, code string) (*models.Voucher, error)
}

type InstructionSource interface {
	Instructions() transfer.Instructions
}

type Next string

const (
	NextRedirect             Next = "redirect"
	NextTransferInstructions Next = "transfer_instructions"
	NextComplete             Next = "complete"
)

// Outcome tells the caller which screen follows a successful submission.
type Outcome struct {
	AccountID string                 `json:"account_id"`
	Result    *models.CreationResult `json:"result"`
	Next      Next                   `json:"next"`

	RedirectURL string `json:"redirect_url,omitempty"`

	// Set for bank transfers; the user must acknowledge them before moving on.
	TransferCode            string                 `json:"transfer_code,omitempty"`
	Amount                  int64                  `json:"amount,omitempty"`
	Instructions            *transfer.Instructions `json:"instructions,omitempty"`
	InstructionsURL         string                 `json:"instructions_url,omitempty"`
	RequiresAcknowledgement bool                   `json:"requires_acknowledgement"`
}

type Orchestrator struct {
	accounts     AccountProvider
	creation     CreationEndpoint
	vouchers     VoucherLookup
	instructions InstructionSource
}

// NewOrchestrator accepts a nil instruction source; transfer outcomes then
// carry only the code and the instructions URL.
func NewOrchestrator(accounts AccountProvider, creation CreationEndpoint, vouchers VoucherLookup, instructions InstructionSource) *Orchestrator {
	return &Orchestrator{
		accounts:     accounts,
		creation:     creation,
		vouchers:     vouchers,
		instructions: instructions,
	}
}

// ApplyVoucherCode resolves code for the draft's selection and applies it.
func (o *Orchestrator) ApplyVoucherCode(ctx context.Context, d Draft, code string) (Draft, error) {
	var (
		target         models.VoucherTarget
		scopeID, subID string
	)
	switch d.Kind {
	case KindApplication:
		target, scopeID, subID = models.TargetEvent, d.Application.EventID, d.Application.SpaceID
	case KindTicket:
		target, scopeID, subID = models.TargetTicketStore, d.Ticket.StoreID, d.Ticket.TypeID
	default:
		return WithVoucher(d, code, nil)
	}
	if code == "" {
		return WithVoucher(d, "", nil)
	}

	v, err := o.vouchers.ResolveVoucherCode(ctx, target, scopeID, subID, code)
	if err != nil {
		return d, err
	}
	return WithVoucher(d, code, v)
}

// Submit creates the account if needed, fills missing profile fields and
// calls the creation endpoint exactly once. It never retries: a failure is
// returned as is and the caller decides whether to submit again.
func (o *Orchestrator) Submit(ctx context.Context, userID string, d Draft) (*Outcome, error) {
	if err := d.Ready(); err != nil {
		return nil, err
	}

	acc, err := o.ensureAccount(ctx, userID, d)
	if err != nil {
		return nil, err
	}

	var res *models.CreationResult
	switch d.Kind {
	case KindApplication:
		res, err = o.creation.CreateApplication(ctx, acc.ID, d.ApplicationPayload())
	case KindTicket:
		res, err = o.creation.CreateTicket(ctx, acc.ID, d.TicketPayload())
	}
	if err != nil {
		return nil, err
	}

	slog.Info("submission created", "kind", d.Kind, "userID", acc.ID, "hashID", res.HashID, "paymentHashID", res.PaymentHashID)
	return o.branch(acc.ID, res)
}

// ensureAccount runs before creation so the new record always has an owner.
// The profile is checked up front so a rejected submission does not leave a
// half-configured account behind.
func (o *Orchestrator) ensureAccount(ctx context.Context, userID string, d Draft) (*models.Account, error) {
	if userID == "" {
		if d.Credentials == nil {
			return nil, status.Invalid("credentials", "required to create an account")
		}
		if err := requireProfile(models.Profile{}, d); err != nil {
			return nil, err
		}
		acc, err := o.accounts.CreateAccount(ctx, *d.Credentials)
		if err != nil {
			return nil, err
		}
		if d.Profile == (models.Profile{}) {
			return acc, nil
		}
		return o.accounts.UpdateProfile(ctx, acc.ID, d.Profile)
	}

	acc, err := o.accounts.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(acc.Profile.MissingForPayment()) == 0 || !d.PaidAction() {
		return acc, nil
	}
	if err := requireProfile(acc.Profile, d); err != nil {
		return nil, err
	}
	return o.accounts.UpdateProfile(ctx, acc.ID, d.Profile)
}

func requireProfile(base models.Profile, d Draft) error {
	if !d.PaidAction() {
		return nil
	}
	if missing := base.Merge(d.Profile).MissingForPayment(); len(missing) > 0 {
		return status.Invalid("profile."+missing[0], "required")
	}
	return nil
}

func (o *Orchestrator) branch(accountID string, res *models.CreationResult) (*Outcome, error) {
	out := &Outcome{AccountID: accountID, Result: res}

	co := res.CheckoutRequest
	if co == nil {
		out.Next = NextComplete
		return out, nil
	}

	switch co.PaymentMethod {
	case models.MethodOnline:
		out.Next = NextRedirect
		out.RedirectURL = co.CheckoutURL
	case models.MethodBankTransfer:
		out.Next = NextTransferInstructions
		out.TransferCode = res.BankTransferCode
		out.Amount = co.Amount
		out.InstructionsURL = co.CheckoutURL
		out.RequiresAcknowledgement = true
		if o.instructions != nil {
			in := o.instructions.Instructions()
			out.Instructions = &in
		}
	default:
		slog.Error("checkout request with unexpected method", "kind", "integrity", "method", co.PaymentMethod, "paymentHashID", res.PaymentHashID)
		return nil, fmt.Errorf("%w: checkout request for method %q", status.ErrIntegrity, co.PaymentMethod)
	}
	return out, nil
}
