package models

import (
	"time"
)

type Circle struct {
	Name        string `json:"name"`
	NameReading string `json:"name_reading"`
	PenName     string `json:"pen_name"`
}

type Overview struct {
	Description string `json:"description"`
	TotalAmount string `json:"total_amount"`
}

// Application is a circle's request to take part in an event.
// HashID stays empty until the record is created together with its payment.
type Application struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	EventID       string            `json:"event_id"`
	SpaceID       string            `json:"space_id"`
	Circle        Circle            `json:"circle"`
	IsAdult       bool              `json:"is_adult"`
	GenreID       string            `json:"genre_id"`
	Overview      Overview          `json:"overview"`
	UnionHashID   string            `json:"union_hash_id,omitempty"`
	PetitCode     string            `json:"petit_code,omitempty"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	ProductID     string            `json:"product_id,omitempty"`
	Remarks       string            `json:"remarks,omitempty"`
	HashID        string            `json:"hash_id,omitempty"`
	Status        ApplicationStatus `json:"status"`
	Created       time.Time         `json:"created"`
	Updated       time.Time         `json:"updated"`
}

// Blocking reports whether the application prevents another one for the same event and user.
func (a *Application) Blocking() bool {
	return a.Status != ApplicationCanceled
}
