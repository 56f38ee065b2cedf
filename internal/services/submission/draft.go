// Package submission drives the multi-step submit flow: a serializable Draft
// advanced by pure step functions, and an Orchestrator that turns a finished
// draft into an account, a creation call and the next screen to show.
package submission

import (
	"net/mail"
	"strings"

	"circle-system/internal/services/voucher"
	"circle-system/internal/status"
	"circle-system/models"
)

type Kind string

const (
	KindApplication Kind = "application"
	KindTicket      Kind = "ticket"
)

// Draft is the whole wizard state. Steps never mutate a draft in place; each
// returns the next draft or a validation error and leaves the input usable.
type Draft struct {
	Kind Kind `json:"kind"`

	// Credentials is set when the caller has no account yet.
	Credentials *models.Credentials `json:"credentials,omitempty"`
	Profile     models.Profile      `json:"profile"`

	Application *models.ApplicationPayload `json:"application,omitempty"`
	Ticket      *models.TicketPayload      `json:"ticket,omitempty"`
	Price       int64                      `json:"price"`

	VoucherCode string          `json:"voucher_code,omitempty"`
	Voucher     *models.Voucher `json:"voucher,omitempty"`

	Amount voucher.Amount       `json:"amount"`
	Method models.PaymentMethod `json:"payment_method,omitempty"`
}

// WithAccount records who is submitting. creds is nil for a signed-in caller.
func WithAccount(d Draft, creds *models.Credentials, profile models.Profile) (Draft, error) {
	if creds != nil {
		email := strings.TrimSpace(creds.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return d, status.Invalid("credentials.email", "not an email address")
		}
		if len(creds.Password) < 8 {
			return d, status.Invalid("credentials.password", "at least 8 characters")
		}
		d.Credentials = &models.Credentials{Email: email, Password: creds.Password}
	} else {
		d.Credentials = nil
	}
	d.Profile = d.Profile.Merge(profile)
	return d, nil
}

// WithApplication selects the event space and circle details. The payment
// method is chosen later, so it is not part of this step.
func WithApplication(d Draft, p models.ApplicationPayload, price int64) (Draft, error) {
	if price < 0 {
		return d, status.ErrNegativeValue
	}
	probe := p
	probe.PaymentMethod = models.MethodOnline
	if err := probe.Validate(); err != nil {
		return d, err
	}

	p.PaymentMethod = ""
	p.VoucherCode = ""
	d.Kind = KindApplication
	d.Application = &p
	d.Ticket = nil
	return reprice(clearVoucher(d), price)
}

// WithTicket selects the store and ticket type.
func WithTicket(d Draft, p models.TicketPayload, price int64) (Draft, error) {
	if price < 0 {
		return d, status.ErrNegativeValue
	}
	probe := p
	probe.PaymentMethod = models.MethodOnline
	if err := probe.Validate(); err != nil {
		return d, err
	}

	p.PaymentMethod = ""
	p.VoucherCode = ""
	d.Kind = KindTicket
	d.Ticket = &p
	d.Application = nil
	return reprice(clearVoucher(d), price)
}

// WithVoucher applies a voucher the lookup already resolved for code. A nil
// voucher means the code cannot be used for the current selection.
func WithVoucher(d Draft, code string, v *models.Voucher) (Draft, error) {
	if d.Kind == "" {
		return d, status.Invalid("voucher_code", "select a space or ticket first")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return reprice(clearVoucher(d), d.Price)
	}
	if v == nil {
		return d, status.ErrVoucherNotApplicable
	}
	d.VoucherCode = code
	d.Voucher = v
	return reprice(d, d.Price)
}

// WithPayment picks the payment method. Nothing left to pay forces the
// voucher method whatever was picked.
func WithPayment(d Draft, method models.PaymentMethod) (Draft, error) {
	if d.Kind == "" {
		return d, status.Invalid("payment_method", "select a space or ticket first")
	}
	if !method.Valid() {
		return d, status.Invalid("payment_method", "unknown method")
	}
	if method == models.MethodVoucher && !d.Amount.Covered() {
		return d, status.Invalid("payment_method", "voucher does not cover the price")
	}
	d.Method = d.Amount.EffectiveMethod(method)
	return d, nil
}

// Ready reports the first thing still missing before the draft can be submitted.
func (d Draft) Ready() error {
	switch {
	case d.Kind == KindApplication && d.Application == nil,
		d.Kind == KindTicket && d.Ticket == nil,
		d.Kind == "":
		return status.Invalid("kind", "nothing selected")
	case d.Method == "":
		return status.Invalid("payment_method", "required")
	}
	return nil
}

// PaidAction reports whether the submission charges the user.
func (d Draft) PaidAction() bool {
	return d.Amount.PaymentAmount > 0
}

// ApplicationPayload is the creation request for an application draft.
func (d Draft) ApplicationPayload() models.ApplicationPayload {
	p := *d.Application
	p.PaymentMethod = d.Method
	p.VoucherCode = d.VoucherCode
	return p
}

func (d Draft) TicketPayload() models.TicketPayload {
	p := *d.Ticket
	p.PaymentMethod = d.Method
	p.VoucherCode = d.VoucherCode
	return p
}

func clearVoucher(d Draft) Draft {
	d.VoucherCode = ""
	d.Voucher = nil
	return d
}

func reprice(d Draft, price int64) (Draft, error) {
	amount, err := voucher.ForVoucher(price, d.Voucher)
	if err != nil {
		return d, err
	}
	d.Price = price
	d.Amount = amount
	if d.Method != "" {
		d.Method = amount.EffectiveMethod(d.Method)
		if d.Method == models.MethodVoucher && !amount.Covered() {
			d.Method = ""
		}
	}
	return d, nil
}
