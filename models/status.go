package models

// Status values are stored as integers and treated as closed sets.

type ApplicationStatus int

const (
	ApplicationPending ApplicationStatus = iota
	ApplicationCanceled
	ApplicationConfirmed
)

func (s ApplicationStatus) Valid() bool {
	return s >= ApplicationPending && s <= ApplicationConfirmed
}

func (s ApplicationStatus) String() string {
	switch s {
	case ApplicationPending:
		return "pending"
	case ApplicationCanceled:
		return "canceled"
	case ApplicationConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// TicketStatus shares the application values.
type TicketStatus = ApplicationStatus

type PaymentStatus int

const (
	PaymentPending PaymentStatus = iota
	PaymentPaid
	PaymentRefunded
	PaymentFailure
	PaymentCanceled
)

func (s PaymentStatus) Valid() bool {
	return s >= PaymentPending && s <= PaymentCanceled
}

// Terminal reports whether no further transition is expected.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentRefunded || s == PaymentFailure || s == PaymentCanceled
}

func (s PaymentStatus) String() string {
	switch s {
	case PaymentPending:
		return "pending"
	case PaymentPaid:
		return "paid"
	case PaymentRefunded:
		return "refunded"
	case PaymentFailure:
		return "payment_failure"
	case PaymentCanceled:
		return "canceled"
	}
	return "unknown"
}

type CheckoutStatus int

const (
	CheckoutStarted CheckoutStatus = iota
	CheckoutCompleted
	CheckoutClosed
)

func (s CheckoutStatus) Valid() bool {
	return s >= CheckoutStarted && s <= CheckoutClosed
}

func (s CheckoutStatus) String() string {
	switch s {
	case CheckoutStarted:
		return "started"
	case CheckoutCompleted:
		return "completed"
	case CheckoutClosed:
		return "closed"
	}
	return "unknown"
}

type PaymentMethod string

const (
	MethodOnline       PaymentMethod = "online"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodVoucher      PaymentMethod = "voucher"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodOnline, MethodBankTransfer, MethodVoucher:
		return true
	}
	return false
}

// VoucherTarget is what a voucher may be redeemed against.
type VoucherTarget string

const (
	TargetEvent       VoucherTarget = "event"
	TargetTicketStore VoucherTarget = "ticket_store"
)

func (t VoucherTarget) Valid() bool {
	return t == TargetEvent || t == TargetTicketStore
}
