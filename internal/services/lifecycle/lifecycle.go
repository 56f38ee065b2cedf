// Package lifecycle interprets server-owned statuses. Nothing here changes a
// status: the tables map what was read to what the caller may offer, and to
// which writes the backend is allowed to perform.
package lifecycle

import (
	"fmt"
	"slices"

	"circle-system/internal/status"
	"circle-system/models"
)

type Action string

const (
	ActionNone                     Action = "none"
	ActionContinueCheckout         Action = "continue_checkout"
	ActionShowTransferInstructions Action = "show_transfer_instructions"
	ActionContactSupport           Action = "contact_support"
)

type paymentKey struct {
	status models.PaymentStatus
	method models.PaymentMethod
}

// paymentActions has one row per legal (status, method) pair. A pending
// voucher payment does not exist: voucher payments are created paid.
var paymentActions = map[paymentKey]Action{
	{models.PaymentPending, models.MethodOnline}:       ActionContinueCheckout,
	{models.PaymentPending, models.MethodBankTransfer}: ActionShowTransferInstructions,

	{models.PaymentPaid, models.MethodOnline}:       ActionNone,
	{models.PaymentPaid, models.MethodBankTransfer}: ActionNone,
	{models.PaymentPaid, models.MethodVoucher}:      ActionNone,

	{models.PaymentRefunded, models.MethodOnline}:       ActionContactSupport,
	{models.PaymentRefunded, models.MethodBankTransfer}: ActionContactSupport,
	{models.PaymentRefunded, models.MethodVoucher}:      ActionContactSupport,

	{models.PaymentFailure, models.MethodOnline}:       ActionContactSupport,
	{models.PaymentFailure, models.MethodBankTransfer}: ActionContactSupport,

	{models.PaymentCanceled, models.MethodOnline}:       ActionContactSupport,
	{models.PaymentCanceled, models.MethodBankTransfer}: ActionContactSupport,
	{models.PaymentCanceled, models.MethodVoucher}:      ActionContactSupport,
}

// ownerIllegal lists owner statuses that can never be observed next to a
// payment status. Confirmation requires a completed or waived payment.
var ownerIllegal = map[models.PaymentStatus][]models.ApplicationStatus{
	models.PaymentPending:  {models.ApplicationConfirmed},
	models.PaymentFailure:  {models.ApplicationConfirmed},
	models.PaymentCanceled: {models.ApplicationConfirmed},
}

// PaymentView is what a payment detail screen may offer.
type PaymentView struct {
	Action Action `json:"action"`
	// ShowTransferCode is set whenever the bank-transfer reference must be displayed.
	ShowTransferCode bool `json:"show_transfer_code"`
	Success          bool `json:"success"`
	Terminal         bool `json:"terminal"`
	// AwaitingConfirmation marks the window where the payment is paid but the
	// owning record still reads pending. It is not an error.
	AwaitingConfirmation bool `json:"awaiting_confirmation"`
}

// InterpretPayment evaluates the payment table against a freshly read payment
// and the status of the record it backs.
func InterpretPayment(ps models.PaymentStatus, method models.PaymentMethod, owner models.ApplicationStatus) (PaymentView, error) {
	if !ps.Valid() || !method.Valid() || !owner.Valid() {
		return PaymentView{}, fmt.Errorf("%w: unknown status tuple (%d, %q, %d)", status.ErrIntegrity, ps, method, owner)
	}

	action, ok := paymentActions[paymentKey{ps, method}]
	if !ok {
		return PaymentView{}, fmt.Errorf("%w: payment %s with method %s", status.ErrIntegrity, ps, method)
	}
	if slices.Contains(ownerIllegal[ps], owner) {
		return PaymentView{}, fmt.Errorf("%w: owner %s with payment %s", status.ErrIntegrity, owner, ps)
	}

	return PaymentView{
		Action:               action,
		ShowTransferCode:     action == ActionShowTransferInstructions,
		Success:              ps == models.PaymentPaid,
		Terminal:             ps != models.PaymentPending,
		AwaitingConfirmation: ps == models.PaymentPaid && owner == models.ApplicationPending,
	}, nil
}

// Interpret is InterpretPayment for a loaded payment.
func Interpret(p *models.Payment, owner models.ApplicationStatus) (PaymentView, error) {
	return InterpretPayment(p.Status, p.Method, owner)
}

type CompletionState string

const (
	CompletionNotCompleted     CompletionState = "not_completed"
	CompletionThankYou         CompletionState = "thank_you"
	CompletionAlreadyCompleted CompletionState = "already_completed"
	CompletionContactSupport   CompletionState = "contact_support"
)

// CompletionView is what the checkout completion page shows. PostPaymentAction
// asks the caller to close the checkout and, if that close was the first one,
// run the one-time actions.
type CompletionView struct {
	State             CompletionState `json:"state"`
	PostPaymentAction bool            `json:"post_payment_action"`
}

type completionKey struct {
	payment  models.PaymentStatus
	checkout models.CheckoutStatus
}

var completionTable = map[completionKey]CompletionView{
	{models.PaymentPending, models.CheckoutStarted}:   {State: CompletionNotCompleted},
	{models.PaymentPending, models.CheckoutCompleted}: {State: CompletionThankYou, PostPaymentAction: true},
	{models.PaymentPending, models.CheckoutClosed}:    {State: CompletionAlreadyCompleted},

	{models.PaymentPaid, models.CheckoutStarted}:   {State: CompletionThankYou, PostPaymentAction: true},
	{models.PaymentPaid, models.CheckoutCompleted}: {State: CompletionThankYou, PostPaymentAction: true},
	{models.PaymentPaid, models.CheckoutClosed}:    {State: CompletionAlreadyCompleted},
}

// InterpretCompletion evaluates the completion table. Terminal failures route
// to support whatever the checkout status says.
func InterpretCompletion(ps models.PaymentStatus, cs models.CheckoutStatus) (CompletionView, error) {
	if !ps.Valid() || !cs.Valid() {
		return CompletionView{}, fmt.Errorf("%w: unknown completion tuple (%d, %d)", status.ErrIntegrity, ps, cs)
	}
	if ps.Terminal() {
		return CompletionView{State: CompletionContactSupport}, nil
	}
	return completionTable[completionKey{ps, cs}], nil
}

var (
	paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
		models.PaymentPending: {models.PaymentPaid, models.PaymentFailure, models.PaymentCanceled},
		models.PaymentPaid:    {models.PaymentRefunded},
	}
	ownerTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
		models.ApplicationPending:   {models.ApplicationConfirmed, models.ApplicationCanceled},
		models.ApplicationConfirmed: {models.ApplicationCanceled},
	}
	checkoutTransitions = map[models.CheckoutStatus][]models.CheckoutStatus{
		models.CheckoutStarted:   {models.CheckoutCompleted, models.CheckoutClosed},
		models.CheckoutCompleted: {models.CheckoutClosed},
	}
)

func CanTransitionPayment(from, to models.PaymentStatus) bool {
	return slices.Contains(paymentTransitions[from], to)
}

func CanTransitionOwner(from, to models.ApplicationStatus) bool {
	return slices.Contains(ownerTransitions[from], to)
}

func CanTransitionCheckout(from, to models.CheckoutStatus) bool {
	return slices.Contains(checkoutTransitions[from], to)
}

// OwnerAfterPayment is the owner status a payment status leads to, if any.
func OwnerAfterPayment(ps models.PaymentStatus) (models.ApplicationStatus, bool) {
	switch ps {
	case models.PaymentPaid:
		return models.ApplicationConfirmed, true
	case models.PaymentRefunded, models.PaymentFailure, models.PaymentCanceled:
		return models.ApplicationCanceled, true
	}
	return models.ApplicationPending, false
}

// OwnerView describes an application or ticket as read.
type OwnerView struct {
	Status               string `json:"status"`
	Confirmed            bool   `json:"confirmed"`
	AwaitingConfirmation bool   `json:"awaiting_confirmation"`
}

func InterpretOwner(owner models.ApplicationStatus, ps models.PaymentStatus) (OwnerView, error) {
	if !owner.Valid() || !ps.Valid() {
		return OwnerView{}, fmt.Errorf("%w: unknown owner tuple (%d, %d)", status.ErrIntegrity, owner, ps)
	}
	if slices.Contains(ownerIllegal[ps], owner) {
		return OwnerView{}, fmt.Errorf("%w: owner %s with payment %s", status.ErrIntegrity, owner, ps)
	}
	return OwnerView{
		Status:               owner.String(),
		Confirmed:            owner == models.ApplicationConfirmed,
		AwaitingConfirmation: owner == models.ApplicationPending && ps == models.PaymentPaid,
	}, nil
}
