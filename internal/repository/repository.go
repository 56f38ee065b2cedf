// Package repository is the record store: one logical collection per entity
// plus one lookup collection per hash namespace.
package repository

import (
	"context"
	"time"

	"circle-system/models"
)

// Store is implemented by PBStore (PocketBase collections) and MemoryStore.
//
// Get* and Find* return an error wrapping status.ErrNotFound when nothing
// matches. Create* assign ID and timestamps on the passed value.
type Store interface {
	InsertHash(ctx context.Context, ref *models.HashRef) error
	FindHash(ctx context.Context, ns models.Namespace, hashID string) (*models.HashRef, error)
	ListHashes(ctx context.Context, ns models.Namespace, filter models.Routing) ([]*models.HashRef, error)

	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	CreateSpace(ctx context.Context, s *models.Space) error
	GetSpace(ctx context.Context, id string) (*models.Space, error)
	CreateTicketStore(ctx context.Context, s *models.TicketStore) error
	GetTicketStore(ctx context.Context, id string) (*models.TicketStore, error)
	CreateTicketType(ctx context.Context, t *models.TicketType) error
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)

	CreateApplication(ctx context.Context, a *models.Application) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	UpdateApplication(ctx context.Context, a *models.Application) error
	// FindBlockingApplication returns a non-canceled application of userID for eventID.
	FindBlockingApplication(ctx context.Context, eventID, userID string) (*models.Application, error)

	CreateTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, t *models.Ticket) error
	CreateTicketUser(ctx context.Context, u *models.TicketUser) error
	GetTicketUser(ctx context.Context, ticketID string) (*models.TicketUser, error)
	// ClaimTicketUser sets the holder only while none is set. A second claim by
	// the same user returns the record unchanged; by another user it fails
	// with status.ErrTicketAlreadyClaimed.
	ClaimTicketUser(ctx context.Context, ticketID, userID string, at time.Time) (*models.TicketUser, error)

	// CreatePayment fails with status.ErrTransferCodeTaken when the
	// bank-transfer code is already used by another payment.
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error
	FindPaymentByTransferCode(ctx context.Context, code string) (*models.Payment, error)
	FindPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error)
	// FindPaymentByOwner returns the payment backing an application or ticket.
	FindPaymentByOwner(ctx context.Context, kind models.TargetKind, ownerID string) (*models.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]*models.Payment, error)
	// CloseCheckout moves the checkout status to closed and reports whether
	// this call was the one that closed it.
	CloseCheckout(ctx context.Context, paymentID string) (bool, error)

	CreateVoucher(ctx context.Context, v *models.Voucher) error
	GetVoucher(ctx context.Context, id string) (*models.Voucher, error)
	// RedeemVoucher increments the usage counter unless the limit is reached,
	// in which case it fails with status.ErrVoucherExhausted.
	RedeemVoucher(ctx context.Context, id string) error
	// ReleaseVoucher undoes one redemption.
	ReleaseVoucher(ctx context.Context, id string) error

	CreateAccount(ctx context.Context, creds models.Credentials) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateProfile(ctx context.Context, id string, patch models.Profile) (*models.Account, error)

	// RunInTx runs fn atomically; any error rolls back every write made through tx.
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}
