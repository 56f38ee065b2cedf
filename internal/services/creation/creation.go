// Package creation is the application and ticket creation endpoint. It owns
// the duplicate check, the sale windows, voucher redemption and the atomic
// write of an owner record together with its payment and lookup records.
package creation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"circle-system/internal/repository"
	"circle-system/internal/services/bank"
	"circle-system/internal/services/hashid"
	"circle-system/internal/services/notify"
	"circle-system/internal/services/target"
	"circle-system/internal/services/voucher"
	"circle-system/internal/status"
	"circle-system/models"
	"circle-system/monitoring"
	"circle-system/utils"
)

// Checkouts opens a checkout for a payment method.
type Checkouts interface {
	CreateCheckout(ctx context.Context, method models.PaymentMethod, req *bank.CheckoutRequest) (*bank.Checkout, error)
}

// Transactions reads the provider's view of a checkout session.
type Transactions interface {
	CheckTransaction(ctx context.Context, method models.PaymentMethod, sessionID string) (*bank.Transaction, error)
}

type Config struct {
	TransferCodeLength int
	Currency           string
}

// Dependencies.Transactions is optional; without it SyncPayment only reads the store.
type Dependencies struct {
	Store        repository.Store
	Hashes       *hashid.Service
	Checkouts    Checkouts
	Transactions Transactions
	Guard        *Guard
	Idem         *IdempotencyCache
	Notifier     *notify.Notifier
	Monitor      *monitoring.Monitor
}

type Service struct {
	store     repository.Store
	hashes    *hashid.Service
	vouchers  *voucher.Resolver
	targets   *target.Resolver
	checkouts Checkouts
	txs       Transactions
	guard     *Guard
	idem      *IdempotencyCache
	notifier  *notify.Notifier
	monitor   *monitoring.Monitor

	transferCodeLength int
	transferCode       func(n int) (string, error)
	currency           string
	now                func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.TransferCodeLength <= 0 {
		cfg.TransferCodeLength = 8
	}
	if cfg.Currency == "" {
		cfg.Currency = "JPY"
	}
	return &Service{
		store:              deps.Store,
		hashes:             deps.Hashes,
		vouchers:           voucher.NewResolver(deps.Hashes, deps.Store),
		targets:            target.NewResolver(deps.Store, deps.Monitor),
		checkouts:          deps.Checkouts,
		txs:                deps.Transactions,
		guard:              deps.Guard,
		idem:               deps.Idem,
		notifier:           deps.Notifier,
		monitor:            deps.Monitor,
		transferCodeLength: cfg.TransferCodeLength,
		transferCode:       utils.GenerateTransferCode,
		currency:           cfg.Currency,
		now:                time.Now,
	}
}

const (
	kindApplication = "application"
	kindTicket      = "ticket"
)

func resultLabel(err error) string {
	switch status.Kind(err) {
	case nil:
		if err == nil {
			return "created"
		}
		return "error"
	case status.ErrNotFound:
		return "not_found"
	case status.ErrConflict:
		return "conflict"
	case status.ErrOutOfWindow:
		return "out_of_window"
	case status.ErrInvalidArgument:
		return "invalid_argument"
	case status.ErrIntegrity:
		return "integrity"
	}
	return "error"
}

func (s *Service) integrity(source string, err error, args ...any) {
	slog.Error("integrity violation", append([]any{"kind", "integrity", "source", source, "error", err}, args...)...)
	s.monitor.RecordIntegrity(source)
}

// CreateApplication submits an application for userID.
func (s *Service) CreateApplication(ctx context.Context, userID string, p models.ApplicationPayload) (res *models.CreationResult, err error) {
	defer func() { s.monitor.TrackSubmission(kindApplication, resultLabel(err)) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, status.Invalid("user_id", "required")
	}
	if cached, ok := s.idem.Get(ctx, kindApplication, userID, p.IdempotencyKey); ok {
		return cached, nil
	}

	release, err := s.guard.Acquire(ctx, kindApplication+":"+p.EventID, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	ev, err := s.store.GetEvent(ctx, p.EventID)
	if err != nil {
		return nil, err
	}
	if !ev.Accepting(now) {
		return nil, status.ErrApplicationWindow
	}
	sp, err := s.store.GetSpace(ctx, p.SpaceID)
	if err != nil {
		return nil, err
	}
	if sp.EventID != ev.ID {
		return nil, status.Invalid("space_id", "not part of the event")
	}

	switch _, err := s.store.FindBlockingApplication(ctx, ev.ID, userID); {
	case err == nil:
		return nil, status.ErrDuplicateApplication
	case !errors.Is(err, status.ErrNotFound):
		return nil, err
	}

	if p.UnionHashID != "" {
		if err := s.checkUnion(ctx, ev.ID, p.UnionHashID); err != nil {
			return nil, err
		}
	}

	v, err := s.lookupVoucher(ctx, models.TargetEvent, ev.ID, sp.ID, p.VoucherCode)
	if err != nil {
		return nil, err
	}
	amount, err := voucher.ForVoucher(sp.Price, v)
	if err != nil {
		return nil, err
	}
	method, err := effectiveMethod(amount, p.PaymentMethod)
	if err != nil {
		return nil, err
	}

	app := &models.Application{
		UserID:        userID,
		EventID:       ev.ID,
		SpaceID:       sp.ID,
		Circle:        p.Circle,
		IsAdult:       p.IsAdult,
		GenreID:       p.GenreID,
		Overview:      p.Overview,
		UnionHashID:   p.UnionHashID,
		PetitCode:     p.PetitCode,
		PaymentMethod: method,
		ProductID:     p.ProductID,
		Remarks:       p.Remarks,
		Status:        models.ApplicationPending,
	}
	routing := models.Routing{
		UserID:         userID,
		EventID:        ev.ID,
		OrganizationID: ev.OrganizationID,
		SpaceID:        sp.ID,
	}

	res, err = s.persist(ctx, persistRequest{
		kind:        kindApplication,
		userID:      userID,
		amount:      amount,
		method:      method,
		voucher:     v,
		routing:     routing,
		description: ev.Name + " " + sp.Name,
		createOwner: func(tx repository.Store, hashes *hashid.Service, confirmed bool) (string, string, error) {
			if confirmed {
				app.Status = models.ApplicationConfirmed
			}
			if err := tx.CreateApplication(ctx, app); err != nil {
				return "", "", err
			}
			hashID, err := hashes.Mint(ctx, models.NamespaceApplication, app.ID, routing)
			if err != nil {
				return "", "", err
			}
			app.HashID = hashID
			if err := tx.UpdateApplication(ctx, app); err != nil {
				return "", "", err
			}
			return app.ID, hashID, nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.idem.Put(ctx, kindApplication, userID, p.IdempotencyKey, res)
	return res, nil
}

// checkUnion requires the referenced application to exist in the same event.
func (s *Service) checkUnion(ctx context.Context, eventID, unionHashID string) error {
	ref, err := s.hashes.Resolve(ctx, models.NamespaceApplication, unionHashID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return fmt.Errorf("%w: %s", status.ErrInvalidUnion, unionHashID)
		}
		return err
	}
	if ref.Routing.EventID != eventID {
		return fmt.Errorf("%w: %s belongs to another event", status.ErrInvalidUnion, unionHashID)
	}
	return nil
}

func (s *Service) lookupVoucher(ctx context.Context, target models.VoucherTarget, scopeID, subID, code string) (*models.Voucher, error) {
	if code == "" {
		return nil, nil
	}
	v, err := s.vouchers.Lookup(ctx, target, scopeID, subID, code)
	if err != nil {
		if errors.Is(err, status.ErrIntegrity) {
			s.monitor.RecordIntegrity("voucher_code")
		}
		return nil, err
	}
	return v, nil
}

func effectiveMethod(amount voucher.Amount, selected models.PaymentMethod) (models.PaymentMethod, error) {
	method := amount.EffectiveMethod(selected)
	if method == models.MethodVoucher && !amount.Covered() {
		return "", status.Invalid("payment_method", "voucher method needs a voucher covering the price")
	}
	return method, nil
}

// CreateTicket buys a ticket of payload.TypeID for userID.
func (s *Service) CreateTicket(ctx context.Context, userID string, p models.TicketPayload) (res *models.CreationResult, err error) {
	defer func() { s.monitor.TrackSubmission(kindTicket, resultLabel(err)) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, status.Invalid("user_id", "required")
	}
	if cached, ok := s.idem.Get(ctx, kindTicket, userID, p.IdempotencyKey); ok {
		return cached, nil
	}

	release, err := s.guard.Acquire(ctx, kindTicket+":"+p.StoreID, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := s.store.GetTicketStore(ctx, p.StoreID)
	if err != nil {
		return nil, err
	}
	if !st.OnSale(s.now()) {
		return nil, status.ErrTicketWindow
	}
	tt, err := s.store.GetTicketType(ctx, p.TypeID)
	if err != nil {
		return nil, err
	}
	if tt.StoreID != st.ID {
		return nil, status.Invalid("type_id", "not sold by the store")
	}

	v, err := s.lookupVoucher(ctx, models.TargetTicketStore, st.ID, tt.ID, p.VoucherCode)
	if err != nil {
		return nil, err
	}
	amount, err := voucher.ForVoucher(tt.Price, v)
	if err != nil {
		return nil, err
	}
	method, err := effectiveMethod(amount, p.PaymentMethod)
	if err != nil {
		return nil, err
	}

	tk := &models.Ticket{
		StoreID:       st.ID,
		TypeID:        tt.ID,
		PaymentMethod: method,
		ProductID:     p.ProductID,
		UserID:        userID,
		CreatedUserID: userID,
		IsStandalone:  p.IsStandalone,
		Status:        models.ApplicationPending,
	}
	routing := models.Routing{
		UserID:         userID,
		EventID:        st.EventID,
		OrganizationID: st.OrganizationID,
		StoreID:        st.ID,
		TypeID:         tt.ID,
	}

	res, err = s.persist(ctx, persistRequest{
		kind:        kindTicket,
		userID:      userID,
		amount:      amount,
		method:      method,
		voucher:     v,
		routing:     routing,
		description: st.Name + " " + tt.Name,
		createOwner: func(tx repository.Store, hashes *hashid.Service, confirmed bool) (string, string, error) {
			if confirmed {
				tk.Status = models.ApplicationConfirmed
			}
			if err := tx.CreateTicket(ctx, tk); err != nil {
				return "", "", err
			}
			hashID, err := hashes.Mint(ctx, models.NamespaceTicket, tk.ID, routing)
			if err != nil {
				return "", "", err
			}
			tk.HashID = hashID
			if err := tx.UpdateTicket(ctx, tk); err != nil {
				return "", "", err
			}
			if err := tx.CreateTicketUser(ctx, &models.TicketUser{TicketID: tk.ID, TicketHashID: hashID}); err != nil {
				return "", "", err
			}
			return tk.ID, hashID, nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.idem.Put(ctx, kindTicket, userID, p.IdempotencyKey, res)
	return res, nil
}

type persistRequest struct {
	kind        string
	userID      string
	amount      voucher.Amount
	method      models.PaymentMethod
	voucher     *models.Voucher
	routing     models.Routing
	description string

	// createOwner writes the application or ticket and returns its internal and hash ids.
	createOwner func(tx repository.Store, hashes *hashid.Service, confirmed bool) (string, string, error)
}

const maxTransferCodeAttempts = 5

// persist writes the owner, its payment, the lookup records and the voucher
// redemption in one transaction, then opens the checkout. A checkout that
// cannot be opened cancels what was written.
func (s *Service) persist(ctx context.Context, req persistRequest) (*models.CreationResult, error) {
	covered := req.amount.Covered()
	now := s.now()

	var (
		res *models.CreationResult
		pay *models.Payment
	)
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		hashes := s.hashes.WithStore(tx)

		ownerID, ownerHash, err := req.createOwner(tx, hashes, covered)
		if err != nil {
			return err
		}

		pay = &models.Payment{
			UserID:         req.userID,
			Method:         req.method,
			PaymentAmount:  req.amount.PaymentAmount,
			TotalAmount:    req.amount.SpaceAmount,
			VoucherAmount:  req.amount.VoucherAmount,
			Status:         models.PaymentPending,
			CheckoutStatus: models.CheckoutStarted,
		}
		if req.kind == kindApplication {
			pay.ApplicationID = ownerID
		} else {
			pay.TicketID = ownerID
		}
		if req.voucher != nil {
			pay.VoucherID = req.voucher.ID
		}
		if covered {
			pay.Status = models.PaymentPaid
			pay.CheckoutStatus = models.CheckoutCompleted
			pay.PurchasedAt = &now
		}
		if err := pay.Validate(); err != nil {
			return err
		}
		if err := s.createPayment(ctx, tx, pay); err != nil {
			return err
		}

		payHash, err := hashes.Mint(ctx, models.NamespacePayment, pay.ID, req.routing)
		if err != nil {
			return err
		}
		pay.HashID = payHash
		if err := tx.UpdatePayment(ctx, pay); err != nil {
			return err
		}

		if req.voucher != nil {
			if err := tx.RedeemVoucher(ctx, req.voucher.ID); err != nil {
				return err
			}
		}

		res = &models.CreationResult{
			HashID:           ownerHash,
			PaymentHashID:    payHash,
			BankTransferCode: pay.BankTransferCode,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !covered {
		checkout, err := s.openCheckout(ctx, pay, req)
		if err != nil {
			s.abandon(ctx, pay, err)
			return nil, err
		}
		res.CheckoutRequest = checkout
	}

	if req.voucher != nil {
		s.monitor.TrackVoucherRedemption(string(req.voucher.TargetType))
	}
	return res, nil
}

// createPayment draws transfer codes until the store accepts one.
func (s *Service) createPayment(ctx context.Context, tx repository.Store, pay *models.Payment) error {
	for attempt := 0; attempt < maxTransferCodeAttempts; attempt++ {
		code, err := s.transferCode(s.transferCodeLength)
		if err != nil {
			return fmt.Errorf("persist: transfer code: %w", err)
		}
		pay.BankTransferCode = code

		err = tx.CreatePayment(ctx, pay)
		if !errors.Is(err, status.ErrTransferCodeTaken) {
			return err
		}
	}
	return fmt.Errorf("persist: %d attempts collided: %w", maxTransferCodeAttempts, status.ErrTransferCodeTaken)
}

// openCheckout runs outside any transaction; the gateway call must not hold
// the database writer.
func (s *Service) openCheckout(ctx context.Context, pay *models.Payment, req persistRequest) (*models.CheckoutRequest, error) {
	co, err := s.checkouts.CreateCheckout(ctx, req.method, &bank.CheckoutRequest{
		PaymentHashID: pay.HashID,
		TransferCode:  pay.BankTransferCode,
		Amount:        bank.AmountOf(req.amount.PaymentAmount),
		Currency:      s.currency,
		Description:   req.description,
	})
	if err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(tx repository.Store) error {
		current, err := tx.GetPayment(ctx, pay.ID)
		if err != nil {
			return err
		}
		current.CheckoutSessionID = co.SessionID
		return tx.UpdatePayment(ctx, current)
	})
	if err != nil {
		return nil, fmt.Errorf("persist: store checkout session: %w", err)
	}

	return &models.CheckoutRequest{
		PaymentMethod: req.method,
		CheckoutURL:   co.URL,
		Amount:        req.amount.PaymentAmount,
	}, nil
}

// abandon cancels a submission whose checkout never opened and gives the
// voucher redemption back, so the user can submit again.
func (s *Service) abandon(ctx context.Context, pay *models.Payment, cause error) {
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		p, err := tx.GetPayment(ctx, pay.ID)
		if err != nil {
			return err
		}
		if p.Status != models.PaymentPending {
			return nil
		}

		p.Status = models.PaymentCanceled
		p.CheckoutStatus = models.CheckoutClosed
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if p.VoucherID != "" {
			if err := tx.ReleaseVoucher(ctx, p.VoucherID); err != nil {
				return err
			}
		}
		_, err = s.moveOwner(ctx, tx, p, models.ApplicationCanceled)
		return err
	})
	if err != nil {
		s.integrity("abandon", err, "paymentID", pay.ID, "cause", cause)
		return
	}
	slog.Warn("submission canceled, checkout not opened", "paymentHashID", pay.HashID, "error", cause)
}
