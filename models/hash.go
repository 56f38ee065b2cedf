package models

import (
	"time"
)

// Namespace is an independent space of public hash ids.
type Namespace string

const (
	NamespaceApplication Namespace = "application"
	NamespacePayment     Namespace = "payment"
	NamespaceTicket      Namespace = "ticket"
	NamespaceVoucherCode Namespace = "voucher_code"
)

var Namespaces = []Namespace{NamespaceApplication, NamespacePayment, NamespaceTicket, NamespaceVoucherCode}

func (n Namespace) Valid() bool {
	switch n {
	case NamespaceApplication, NamespacePayment, NamespaceTicket, NamespaceVoucherCode:
		return true
	}
	return false
}

// Routing holds the denormalized fields a lookup record carries so that
// filtered listings do not need to load the internal record.
type Routing struct {
	UserID         string        `json:"user_id,omitempty"`
	EventID        string        `json:"event_id,omitempty"`
	OrganizationID string        `json:"organization_id,omitempty"`
	SpaceID        string        `json:"space_id,omitempty"`
	StoreID        string        `json:"store_id,omitempty"`
	TypeID         string        `json:"type_id,omitempty"`
	TargetType     VoucherTarget `json:"target_type,omitempty"`
}

// HashRef is one lookup record: public hash id to internal id.
type HashRef struct {
	Namespace  Namespace `json:"namespace"`
	HashID     string    `json:"hash_id"`
	InternalID string    `json:"internal_id"`
	Routing    Routing   `json:"routing"`
	Created    time.Time `json:"created"`
}
