package models

import (
	"strings"

	"circle-system/internal/status"
)

// ApplicationPayload is the body accepted by the application creation endpoint.
type ApplicationPayload struct {
	EventID        string        `json:"event_id"`
	SpaceID        string        `json:"space_id"`
	Circle         Circle        `json:"circle"`
	IsAdult        bool          `json:"is_adult"`
	GenreID        string        `json:"genre_id"`
	Overview       Overview      `json:"overview"`
	UnionHashID    string        `json:"union_hash_id,omitempty"`
	PetitCode      string        `json:"petit_code,omitempty"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	ProductID      string        `json:"product_id,omitempty"`
	Remarks        string        `json:"remarks,omitempty"`
	VoucherCode    string        `json:"voucher_code,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

func (p *ApplicationPayload) Validate() error {
	switch {
	case strings.TrimSpace(p.EventID) == "":
		return status.Invalid("event_id", "required")
	case strings.TrimSpace(p.SpaceID) == "":
		return status.Invalid("space_id", "required")
	case strings.TrimSpace(p.Circle.Name) == "":
		return status.Invalid("circle.name", "required")
	case strings.TrimSpace(p.Circle.NameReading) == "":
		return status.Invalid("circle.name_reading", "required")
	case strings.TrimSpace(p.GenreID) == "":
		return status.Invalid("genre_id", "required")
	case !p.PaymentMethod.Valid():
		return status.Invalid("payment_method", "unknown method")
	}
	return nil
}

// TicketPayload is the body accepted by the ticket creation endpoint.
type TicketPayload struct {
	StoreID        string        `json:"store_id"`
	TypeID         string        `json:"type_id"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	ProductID      string        `json:"product_id,omitempty"`
	IsStandalone   bool          `json:"is_standalone"`
	VoucherCode    string        `json:"voucher_code,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

func (p *TicketPayload) Validate() error {
	switch {
	case strings.TrimSpace(p.StoreID) == "":
		return status.Invalid("store_id", "required")
	case strings.TrimSpace(p.TypeID) == "":
		return status.Invalid("type_id", "required")
	case !p.PaymentMethod.Valid():
		return status.Invalid("payment_method", "unknown method")
	}
	return nil
}

// CheckoutRequest is present only when something is left to pay.
type CheckoutRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	CheckoutURL   string        `json:"checkout_url"`
	Amount        int64         `json:"amount"`
}

// CreationResult is returned by both creation endpoints.
type CreationResult struct {
	HashID           string           `json:"hash_id"`
	PaymentHashID    string           `json:"payment_hash_id"`
	BankTransferCode string           `json:"bank_transfer_code"`
	CheckoutRequest  *CheckoutRequest `json:"checkout_request"`
}
