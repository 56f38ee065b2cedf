package status

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps exactly one of these
// so handlers can pick a response with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrOutOfWindow     = errors.New("out of window")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIntegrity       = errors.New("integrity violation")
)

var (
	ErrDuplicateApplication = fmt.Errorf("%w: application: already submitted for this event", ErrConflict)
	ErrSubmissionInFlight   = fmt.Errorf("%w: submission: another submission is in progress", ErrConflict)
	ErrTicketAlreadyClaimed = fmt.Errorf("%w: ticket: already claimed", ErrConflict)
	ErrVoucherExhausted     = fmt.Errorf("%w: voucher: usage limit reached", ErrConflict)
	ErrVoucherNotApplicable = fmt.Errorf("%w: voucher: not applicable to the selection", ErrConflict)
	ErrHashTaken            = fmt.Errorf("%w: hash id: already registered", ErrConflict)
	ErrCheckoutClosed       = fmt.Errorf("%w: checkout: already closed", ErrConflict)
	ErrIllegalTransition    = fmt.Errorf("%w: status: illegal transition", ErrConflict)
	ErrTransferCodeTaken    = fmt.Errorf("%w: payment: transfer code already issued", ErrConflict)

	ErrApplicationWindow = fmt.Errorf("%w: event: not accepting applications", ErrOutOfWindow)
	ErrTicketWindow      = fmt.Errorf("%w: ticket store: not on sale", ErrOutOfWindow)

	ErrInvalidUnion  = fmt.Errorf("%w: union: unknown application", ErrInvalidArgument)
	ErrNegativeValue = fmt.Errorf("%w: amount: negative value", ErrInvalidArgument)

	ErrPaymentWithoutTarget = fmt.Errorf("%w: payment: neither application nor ticket set: %w", ErrNotFound, ErrIntegrity)
	ErrPaymentBothTargets   = fmt.Errorf("%w: payment: both application and ticket set", ErrIntegrity)
	ErrAmountMismatch       = fmt.Errorf("%w: payment: amount does not match total minus voucher", ErrIntegrity)

	ErrFailedPayment = errors.New("payment: payment failed")
)

// Kind returns the taxonomy member err belongs to, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrIntegrity, ErrNotFound, ErrConflict, ErrOutOfWindow, ErrInvalidArgument} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// FieldError is a payload validation failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid argument: %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidArgument }

func Invalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
