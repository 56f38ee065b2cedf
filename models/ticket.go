package models

import (
	"time"
)

// Ticket is the purchased credential. Who may present it is tracked by TicketUser.
type Ticket struct {
	ID            string        `json:"id"`
	StoreID       string        `json:"store_id"`
	TypeID        string        `json:"type_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	ProductID     string        `json:"product_id,omitempty"`
	UserID        string        `json:"user_id,omitempty"`
	CreatedUserID string        `json:"created_user_id"`
	IsStandalone  bool          `json:"is_standalone"`
	HashID        string        `json:"hash_id,omitempty"`
	Status        TicketStatus  `json:"status"`
	Created       time.Time     `json:"created"`
	Updated       time.Time     `json:"updated"`
}

// TicketUser holds the usage right of a ticket.
type TicketUser struct {
	ID           string     `json:"id"`
	TicketID     string     `json:"ticket_id"`
	TicketHashID string     `json:"ticket_hash_id"`
	UsableUserID string     `json:"usable_user_id,omitempty"`
	IsUsed       bool       `json:"is_used"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	Created      time.Time  `json:"created"`
}

func (u *TicketUser) Claimed() bool {
	return u.UsableUserID != ""
}
