package models

import (
	"time"

	"circle-system/internal/status"
)

// Payment backs exactly one Application or Ticket.
type Payment struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Method            PaymentMethod  `json:"payment_method"`
	PaymentAmount     int64          `json:"payment_amount"`
	TotalAmount       int64          `json:"total_amount"`
	VoucherAmount     *int64         `json:"voucher_amount"`
	VoucherID         string         `json:"voucher_id,omitempty"`
	ApplicationID     string         `json:"application_id,omitempty"`
	TicketID          string         `json:"ticket_id,omitempty"`
	HashID            string         `json:"hash_id,omitempty"`
	BankTransferCode  string         `json:"bank_transfer_code"`
	CheckoutSessionID string         `json:"checkout_session_id,omitempty"`
	PaymentIntentID   string         `json:"payment_intent_id,omitempty"`
	CardBrand         string         `json:"card_brand,omitempty"`
	Status            PaymentStatus  `json:"status"`
	CheckoutStatus    CheckoutStatus `json:"checkout_status"`
	Created           time.Time      `json:"created"`
	Updated           time.Time      `json:"updated"`
	PurchasedAt       *time.Time     `json:"purchased_at,omitempty"`
}

// Validate checks the record level invariants of a payment.
func (p *Payment) Validate() error {
	switch {
	case p.ApplicationID == "" && p.TicketID == "":
		return status.ErrPaymentWithoutTarget
	case p.ApplicationID != "" && p.TicketID != "":
		return status.ErrPaymentBothTargets
	}

	if !p.Method.Valid() {
		return status.Invalid("payment_method", "unknown method")
	}
	if !p.Status.Valid() || !p.CheckoutStatus.Valid() {
		return status.Invalid("status", "out of range")
	}

	var discount int64
	if p.VoucherAmount != nil {
		discount = *p.VoucherAmount
	}
	if p.TotalAmount < 0 || discount < 0 || p.PaymentAmount < 0 {
		return status.ErrNegativeValue
	}
	if p.PaymentAmount != p.TotalAmount-discount {
		return status.ErrAmountMismatch
	}
	if p.PaymentAmount == 0 && p.Method != MethodVoucher {
		return status.Invalid("payment_method", "zero amount must be paid by voucher")
	}
	if p.PaymentAmount > 0 && p.Method == MethodVoucher {
		return status.Invalid("payment_method", "voucher does not cover the amount")
	}
	return nil
}

// Kind tells which record the payment backs.
func (p *Payment) Kind() TargetKind {
	switch {
	case p.ApplicationID != "" && p.TicketID == "":
		return KindApplication
	case p.TicketID != "" && p.ApplicationID == "":
		return KindTicket
	}
	return ""
}

type TargetKind string

const (
	KindApplication TargetKind = "application"
	KindTicket      TargetKind = "ticket"
)

// PaymentNotification is what a provider webhook or a bank statement import reports.
type PaymentNotification struct {
	PaymentHashID    string        `json:"payment_hash_id,omitempty"`
	BankTransferCode string        `json:"bank_transfer_code,omitempty"`
	SessionID        string        `json:"session_id,omitempty"`
	PaymentIntentID  string        `json:"payment_intent_id,omitempty"`
	CardBrand        string        `json:"card_brand,omitempty"`
	Status           PaymentStatus `json:"status"`
	Timestamp        time.Time     `json:"timestamp"`
}
