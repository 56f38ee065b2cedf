package models

import (
	"time"
)

// Event accepts circle applications for its spaces.
type Event struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	AcceptStart    time.Time `json:"accept_start"`
	AcceptEnd      time.Time `json:"accept_end"`
}

// Accepting reports whether now falls inside [AcceptStart, AcceptEnd).
// A zero bound is open.
func (e *Event) Accepting(now time.Time) bool {
	return inWindow(now, e.AcceptStart, e.AcceptEnd)
}

// Space is a sellable booth size of an event.
type Space struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Name    string `json:"name"`
	Price   int64  `json:"price"`
}

// TicketStore sells ticket types for attendance.
type TicketStore struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	EventID        string    `json:"event_id"`
	Name           string    `json:"name"`
	SaleStart      time.Time `json:"sale_start"`
	SaleEnd        time.Time `json:"sale_end"`
}

func (s *TicketStore) OnSale(now time.Time) bool {
	return inWindow(now, s.SaleStart, s.SaleEnd)
}

type TicketType struct {
	ID      string `json:"id"`
	StoreID string `json:"store_id"`
	Name    string `json:"name"`
	Price   int64  `json:"price"`
}

func inWindow(now, start, end time.Time) bool {
	if !start.IsZero() && now.Before(start) {
		return false
	}
	if !end.IsZero() && !now.Before(end) {
		return false
	}
	return true
}
