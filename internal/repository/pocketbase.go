package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"circle-system/internal/status"
	"circle-system/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// PBStore keeps every entity in its own PocketBase collection.
type PBStore struct {
	app core.App
}

var _ Store = (*PBStore)(nil)

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func (s *PBStore) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&PBStore{app: txApp})
	})
}

func wrapFind(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	return fmt.Errorf("find %s %q: %w", kind, id, err)
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "validation_not_unique")
}

func (s *PBStore) newRecord(name string) (*core.Record, error) {
	coll, err := s.app.FindCachedCollectionByNameOrId(name)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	return core.NewRecord(coll), nil
}

func (s *PBStore) save(ctx context.Context, rec *core.Record) error {
	return s.app.SaveWithContext(ctx, rec)
}

func setTime(rec *core.Record, field string, t time.Time) {
	if t.IsZero() {
		rec.Set(field, "")
		return
	}
	rec.Set(field, t)
}

func getTime(rec *core.Record, field string) time.Time {
	return rec.GetDateTime(field).Time()
}

func getInt64(rec *core.Record, field string) int64 {
	return int64(rec.GetFloat(field))
}

// Hash namespaces

func (s *PBStore) InsertHash(ctx context.Context, ref *models.HashRef) error {
	name, err := hashCollection(ref.Namespace)
	if err != nil {
		return status.Invalid("namespace", err.Error())
	}
	if _, err := s.app.FindFirstRecordByData(name, "hash_id", ref.HashID); err == nil {
		return status.ErrHashTaken
	}

	rec, err := s.newRecord(name)
	if err != nil {
		return err
	}
	rec.Set("hash_id", ref.HashID)
	rec.Set("internal_id", ref.InternalID)
	rec.Set("user_id", ref.Routing.UserID)
	rec.Set("event_id", ref.Routing.EventID)
	rec.Set("organization_id", ref.Routing.OrganizationID)
	rec.Set("space_id", ref.Routing.SpaceID)
	rec.Set("store_id", ref.Routing.StoreID)
	rec.Set("type_id", ref.Routing.TypeID)
	rec.Set("target_type", string(ref.Routing.TargetType))

	if err := s.save(ctx, rec); err != nil {
		if isUniqueViolation(err) {
			return status.ErrHashTaken
		}
		return fmt.Errorf("InsertHash: %s: %w", name, err)
	}
	ref.Created = getTime(rec, "created")
	return nil
}

func recordToHash(ns models.Namespace, rec *core.Record) *models.HashRef {
	return &models.HashRef{
		Namespace:  ns,
		HashID:     rec.GetString("hash_id"),
		InternalID: rec.GetString("internal_id"),
		Routing: models.Routing{
			UserID:         rec.GetString("user_id"),
			EventID:        rec.GetString("event_id"),
			OrganizationID: rec.GetString("organization_id"),
			SpaceID:        rec.GetString("space_id"),
			StoreID:        rec.GetString("store_id"),
			TypeID:         rec.GetString("type_id"),
			TargetType:     models.VoucherTarget(rec.GetString("target_type")),
		},
		Created: getTime(rec, "created"),
	}
}

func (s *PBStore) FindHash(ctx context.Context, ns models.Namespace, hashID string) (*models.HashRef, error) {
	name, err := hashCollection(ns)
	if err != nil {
		return nil, status.Invalid("namespace", err.Error())
	}
	rec, err := s.app.FindFirstRecordByData(name, "hash_id", hashID)
	if err != nil {
		return nil, wrapFind(err, string(ns)+" hash", hashID)
	}
	return recordToHash(ns, rec), nil
}

func (s *PBStore) ListHashes(ctx context.Context, ns models.Namespace, filter models.Routing) ([]*models.HashRef, error) {
	name, err := hashCollection(ns)
	if err != nil {
		return nil, status.Invalid("namespace", err.Error())
	}

	exp := dbx.HashExp{}
	for col, v := range map[string]string{
		"user_id":         filter.UserID,
		"event_id":        filter.EventID,
		"organization_id": filter.OrganizationID,
		"space_id":        filter.SpaceID,
		"store_id":        filter.StoreID,
		"type_id":         filter.TypeID,
		"target_type":     string(filter.TargetType),
	} {
		if v != "" {
			exp[col] = v
		}
	}

	var recs []*core.Record
	if len(exp) > 0 {
		recs, err = s.app.FindAllRecords(name, exp)
	} else {
		recs, err = s.app.FindAllRecords(name)
	}
	if err != nil {
		return nil, fmt.Errorf("ListHashes: %s: %w", name, err)
	}

	out := make([]*models.HashRef, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToHash(ns, rec))
	}
	slices.SortFunc(out, func(a, b *models.HashRef) int {
		return b.Created.Compare(a.Created)
	})
	return out, nil
}

// Events, spaces, stores and types

func (s *PBStore) CreateEvent(ctx context.Context, e *models.Event) error {
	rec, err := s.newRecord(CollectionEvents)
	if err != nil {
		return err
	}
	if e.ID != "" {
		rec.Id = e.ID
	}
	rec.Set("name", e.Name)
	rec.Set("organization_id", e.OrganizationID)
	setTime(rec, "accept_start", e.AcceptStart)
	setTime(rec, "accept_end", e.AcceptEnd)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("CreateEvent: %w", err)
	}
	e.ID = rec.Id
	return nil
}

func (s *PBStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	rec, err := s.app.FindRecordById(CollectionEvents, id)
	if err != nil {
		return nil, wrapFind(err, "event", id)
	}
	return &models.Event{
		ID:             rec.Id,
		OrganizationID: rec.GetString("organization_id"),
		Name:           rec.GetString("name"),
		AcceptStart:    getTime(rec, "accept_start"),
		AcceptEnd:      getTime(rec, "accept_end"),
	}, nil
}

func (s *PBStore) CreateSpace(ctx context.Context, sp *models.Space) error {
	rec, err := s.newRecord(CollectionSpaces)
	if err != nil {
		return err
	}
	if sp.ID != "" {
		rec.Id = sp.ID
	}
	rec.Set("event_id", sp.EventID)
	rec.Set("name", sp.Name)
	rec.Set("price", sp.Price)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("CreateSpace: %w", err)
	}
	sp.ID = rec.Id
	return nil
}

func (s *PBStore) GetSpace(ctx context.Context, id string) (*models.Space, error) {
	rec, err := s.app.FindRecordById(CollectionSpaces, id)
	if err != nil {
		return nil, wrapFind(err, "space", id)
	}
	return &models.Space{
		ID:      rec.Id,
		EventID: rec.GetString("event_id"),
		Name:    rec.GetString("name"),
		Price:   getInt64(rec, "price"),
	}, nil
}

func (s *PBStore) CreateTicketStore(ctx context.Context, ts *models.TicketStore) error {
	rec, err := s.newRecord(CollectionTicketStores)
	if err != nil {
		return err
	}
	if ts.ID != "" {
		rec.Id = ts.ID
	}
	rec.Set("name", ts.Name)
	rec.Set("organization_id", ts.OrganizationID)
	rec.Set("event_id", ts.EventID)
	setTime(rec, "sale_start", ts.SaleStart)
	setTime(rec, "sale_end", ts.SaleEnd)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("CreateTicketStore: %w", err)
	}
	ts.ID = rec.Id
	return nil
}

func (s *PBStore) GetTicketStore(ctx context.Context, id string) (*models.TicketStore, error) {
	rec, err := s.app.FindRecordById(CollectionTicketStores, id)
	if err != nil {
		return nil, wrapFind(err, "ticket store", id)
	}
	return &models.TicketStore{
		ID:             rec.Id,
		OrganizationID: rec.GetString("organization_id"),
		EventID:        rec.GetString("event_id"),
		Name:           rec.GetString("name"),
		SaleStart:      getTime(rec, "sale_start"),
		SaleEnd:        getTime(rec, "sale_end"),
	}, nil
}

func (s *PBStore) CreateTicketType(ctx context.Context, t *models.TicketType) error {
	rec, err := s.newRecord(CollectionTicketTypes)
	if err != nil {
		return err
	}
	if t.ID != "" {
		rec.Id = t.ID
	}
	rec.Set("store_id", t.StoreID)
	rec.Set("name", t.Name)
	rec.Set("price", t.Price)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("CreateTicketType: %w", err)
	}
	t.ID = rec.Id
	return nil
}

func (s *PBStore) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	rec, err := s.app.FindRecordById(CollectionTicketTypes, id)
	if err != nil {
		return nil, wrapFind(err, "ticket type", id)
	}
	return &models.TicketType{
		ID:      rec.Id,
		StoreID: rec.GetString("store_id"),
		Name:    rec.GetString("name"),
		Price:   getInt64(rec, "price"),
	}, nil
}

// Applications

func applicationToRecord(a *models.Application, rec *core.Record) {
	rec.Set("user_id", a.UserID)
	rec.Set("event_id", a.EventID)
	rec.Set("space_id", a.SpaceID)
	rec.Set("circle_name", a.Circle.Name)
	rec.Set("circle_name_reading", a.Circle.NameReading)
	rec.Set("pen_name", a.Circle.PenName)
	rec.Set("is_adult", a.IsAdult)
	rec.Set("genre_id", a.GenreID)
	rec.Set("overview_description", a.Overview.Description)
	rec.Set("overview_total_amount", a.Overview.TotalAmount)
	rec.Set("union_hash_id", a.UnionHashID)
	rec.Set("petit_code", a.PetitCode)
	rec.Set("payment_method", string(a.PaymentMethod))
	rec.Set("product_id", a.ProductID)
	rec.Set("remarks", a.Remarks)
	rec.Set("hash_id", a.HashID)
	rec.Set("status", int(a.Status))
}

func recordToApplication(rec *core.Record) *models.Application {
	return &models.Application{
		ID:      rec.Id,
		UserID:  rec.GetString("user_id"),
		EventID: rec.GetString("event_id"),
		SpaceID: rec.GetString("space_id"),
		Circle: models.Circle{
			Name:        rec.GetString("circle_name"),
			NameReading: rec.GetString("circle_name_reading"),
			PenName:     rec.GetString("pen_name"),
		},
		IsAdult: rec.GetBool("is_adult"),
		GenreID: rec.GetString("genre_id"),
		Overview: models.Overview{
			Description: rec.GetString("overview_description"),
			TotalAmount: rec.GetString("overview_total_amount"),
		},
		UnionHashID:   rec.GetString("union_hash_id"),
		PetitCode:     rec.GetString("petit_code"),
		PaymentMethod: models.PaymentMethod(rec.GetString("payment_method")),
		ProductID:     rec.GetString("product_id"),
		Remarks:       rec.GetString("remarks"),
		HashID:        rec.GetString("hash_id"),
		Status:        models.ApplicationStatus(rec.GetInt("status")),
		Created:       getTime(rec, "created"),
		Updated:       getTime(rec, "updated"),
	}
}

func (s *PBStore) CreateApplication(ctx context.Context, a *models.Application) error {
	rec, err := s.newRecord(CollectionApplications)
	if err != nil {
		return err
	}
	applicationToRecord(a, rec)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("CreateApplication: %w", err)
	}
	a.ID = rec.Id
	a.Created = getTime(rec, "created")
	a.Updated = getTime(rec, "updated")
	return nil
}

func (s *PBStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	rec, err := s.app.FindRecordById(CollectionApplications, id)
	if err != nil {
		return nil, wrapFind(err, "application", id)
	}
	return recordToApplication(rec), nil
}

func (s *PBStore) UpdateApplication(ctx context.Context, a *models.Application) error {
	rec, err := s.app.FindRecordById(CollectionApplications, a.ID)
	if err != nil {
		return wrapFind(err, "application", a.ID)
	}
	applicationToRecord(a, rec)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("UpdateApplication: %w", err)
	}
	a.Updated = getTime(rec, "updated")
	return nil
}

func (s *PBStore) FindBlockingApplication(ctx context.Context, eventID, userID string) (*models.Application, error) {
	rec, err := s.app.FindFirstRecordByFilter(
		CollectionApplications,
		"event_id = {:event} && user_id = {:user} && status != {:canceled}",
		dbx.Params{"event": eventID, "user": userID, "canceled": int(models.ApplicationCanceled)},
	)
	if err != nil {
		return nil, wrapFind(err, "application for event", eventID)
	}
	return recordToApplication(rec), nil
}

// Tickets

func ticketToRecord(t *models.Ticket, rec *core.Record) {
	rec.Set("store_id", t.StoreID)
	rec.Set("type_id", t.TypeID)
	rec.Set("payment_method", string(t.PaymentMethod))
	rec.Set("product_id", t.ProductID)
	rec.Set("user_id", t.UserID)
	rec.Set("created_user_id", t.CreatedUserID)
	rec.Set("is_standalone", t.IsStandalone)
	rec.Set("hash_id", t.HashID)
	rec.Set("status", int(t.Status))
}

func recordToTicket(rec *core.Record) *models.Ticket {
	return &models.Ticket{
		ID:            rec.Id,
		StoreID:       rec.GetString("store_id"),
		TypeID:        rec.GetString("type_id"),
		PaymentMethod: models.PaymentMethod(rec.GetString("payment_method")),
		ProductID:     rec.GetString("product_id"),
		UserID:        rec.GetString("user_id"),
		CreatedUserID: rec.GetString("created_user_id"),
		IsStandalone:  rec.GetBool("is_standalone"),
		HashID:        rec.GetString("hash_id"),
		Status:        models.TicketStatus(rec.GetInt("status")),
		Created:       getTime(rec, "created"),
		Updated:       getTime(rec, "updated"),
	}
}

func (s *PBStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	rec, err := s.newRecord(CollectionTickets)
	if err != nil {
		return err
	}
	ticketToRecord(t, rec)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("CreateTicket: %w", err)
	}
	t.ID = rec.Id
	t.Created = getTime(rec, "created")
	t.Updated = getTime(rec, "updated")
	return nil
}

func (s *PBStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	rec, err := s.app.FindRecordById(CollectionTickets, id)
	if err != nil {
		return nil, wrapFind(err, "ticket", id)
	}
	return recordToTicket(rec), nil
}

func (s *PBStore) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	rec, err := s.app.FindRecordById(CollectionTickets, t.ID)
	if err != nil {
		return wrapFind(err, "ticket", t.ID)
	}
	ticketToRecord(t, rec)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("UpdateTicket: %w", err)
	}
	t.Updated = getTime(rec, "updated")
	return nil
}

func recordToTicketUser(rec *core.Record) *models.TicketUser {
	u := &models.TicketUser{
		ID:           rec.Id,
		TicketID:     rec.GetString("ticket_id"),
		TicketHashID: rec.GetString("ticket_hash_id"),
		UsableUserID: rec.GetString("usable_user_id"),
		IsUsed:       rec.GetBool("is_used"),
		Created:      getTime(rec, "created"),
	}
	if usedAt := getTime(rec, "used_at"); !usedAt.IsZero() {
		u.UsedAt = &usedAt
	}
	return u
}

func (s *PBStore) CreateTicketUser(ctx context.Context, u *models.TicketUser) error {
	rec, err := s.newRecord(CollectionTicketUsers)
	if err != nil {
		return err
	}
	rec.Set("ticket_id", u.TicketID)
	rec.Set("ticket_hash_id", u.TicketHashID)
	rec.Set("usable_user_id", u.UsableUserID)
	rec.Set("is_used", u.IsUsed)
	if err := s.save(ctx, rec); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ticket user for %s exists", status.ErrConflict, u.TicketID)
		}
		return fmt.Errorf("CreateTicketUser: %w", err)
	}
	u.ID = rec.Id
	u.Created = getTime(rec, "created")
	return nil
}

func (s *PBStore) GetTicketUser(ctx context.Context, ticketID string) (*models.TicketUser, error) {
	rec, err := s.app.FindFirstRecordByData(CollectionTicketUsers, "ticket_id", ticketID)
	if err != nil {
		return nil, wrapFind(err, "ticket user", ticketID)
	}
	return recordToTicketUser(rec), nil
}

// ClaimTicketUser relies on a single conditional UPDATE so two concurrent
// claims cannot both see an empty holder.
func (s *PBStore) ClaimTicketUser(ctx context.Context, ticketID, userID string, at time.Time) (*models.TicketUser, error) {
	res, err := s.app.DB().Update(
		CollectionTicketUsers,
		dbx.Params{"usable_user_id": userID, "updated": at.UTC().Format("2006-01-02 15:04:05.000Z")},
		dbx.HashExp{"ticket_id": ticketID, "usable_user_id": ""},
	).WithContext(ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("ClaimTicketUser: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ClaimTicketUser: rows affected: %w", err)
	}

	current, err := s.GetTicketUser(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if affected == 1 || current.UsableUserID == userID {
		return current, nil
	}
	return nil, status.ErrTicketAlreadyClaimed
}

// Payments

func paymentToRecord(p *models.Payment, rec *core.Record) {
	rec.Set("user_id", p.UserID)
	rec.Set("payment_method", string(p.Method))
	rec.Set("payment_amount", p.PaymentAmount)
	rec.Set("total_amount", p.TotalAmount)
	rec.Set("has_voucher_amount", p.VoucherAmount != nil)
	if p.VoucherAmount != nil {
		rec.Set("voucher_amount", *p.VoucherAmount)
	} else {
		rec.Set("voucher_amount", 0)
	}
	rec.Set("voucher_id", p.VoucherID)
	rec.Set("application_id", p.ApplicationID)
	rec.Set("ticket_id", p.TicketID)
	rec.Set("hash_id", p.HashID)
	rec.Set("bank_transfer_code", p.BankTransferCode)
	rec.Set("checkout_session_id", p.CheckoutSessionID)
	rec.Set("payment_intent_id", p.PaymentIntentID)
	rec.Set("card_brand", p.CardBrand)
	rec.Set("status", int(p.Status))
	rec.Set("checkout_status", int(p.CheckoutStatus))
	if p.PurchasedAt != nil {
		setTime(rec, "purchased_at", *p.PurchasedAt)
	} else {
		rec.Set("purchased_at", "")
	}
}

func recordToPayment(rec *core.Record) *models.Payment {
	p := &models.Payment{
		ID:                rec.Id,
		UserID:            rec.GetString("user_id"),
		Method:            models.PaymentMethod(rec.GetString("payment_method")),
		PaymentAmount:     getInt64(rec, "payment_amount"),
		TotalAmount:       getInt64(rec, "total_amount"),
		VoucherID:         rec.GetString("voucher_id"),
		ApplicationID:     rec.GetString("application_id"),
		TicketID:          rec.GetString("ticket_id"),
		HashID:            rec.GetString("hash_id"),
		BankTransferCode:  rec.GetString("bank_transfer_code"),
		CheckoutSessionID: rec.GetString("checkout_session_id"),
		PaymentIntentID:   rec.GetString("payment_intent_id"),
		CardBrand:         rec.GetString("card_brand"),
		Status:            models.PaymentStatus(rec.GetInt("status")),
		CheckoutStatus:    models.CheckoutStatus(rec.GetInt("checkout_status")),
		Created:           getTime(rec, "created"),
		Updated:           getTime(rec, "updated"),
	}
	if rec.GetBool("has_voucher_amount") {
		v := getInt64(rec, "voucher_amount")
		p.VoucherAmount = &v
	}
	if purchased := getTime(rec, "purchased_at"); !purchased.IsZero() {
		p.PurchasedAt = &purchased
	}
	return p
}

// CreatePayment fails with status.ErrTransferCodeTaken when another payment
// already carries the bank-transfer code.
func (s *PBStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.BankTransferCode != "" {
		if _, err := s.app.FindFirstRecordByData(CollectionPayments, "bank_transfer_code", p.BankTransferCode); err == nil {
			return status.ErrTransferCodeTaken
		}
	}

	rec, err := s.newRecord(CollectionPayments)
	if err != nil {
		return err
	}
	paymentToRecord(p, rec)
	if err := s.save(ctx, rec); err != nil {
		if isUniqueViolation(err) {
			return status.ErrTransferCodeTaken
		}
		return fmt.Errorf("CreatePayment: %w", err)
	}
	p.ID = rec.Id
	p.Created = getTime(rec, "created")
	p.Updated = getTime(rec, "updated")
	return nil
}

func (s *PBStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	rec, err := s.app.FindRecordById(CollectionPayments, id)
	if err != nil {
		return nil, wrapFind(err, "payment", id)
	}
	return recordToPayment(rec), nil
}

func (s *PBStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	rec, err := s.app.FindRecordById(CollectionPayments, p.ID)
	if err != nil {
		return wrapFind(err, "payment", p.ID)
	}
	paymentToRecord(p, rec)
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("UpdatePayment: %w", err)
	}
	p.Updated = getTime(rec, "updated")
	return nil
}

func (s *PBStore) FindPaymentByTransferCode(ctx context.Context, code string) (*models.Payment, error) {
	if code == "" {
		return nil, notFound("payment with transfer code", code)
	}
	rec, err := s.app.FindFirstRecordByData(CollectionPayments, "bank_transfer_code", code)
	if err != nil {
		return nil, wrapFind(err, "payment with transfer code", code)
	}
	return recordToPayment(rec), nil
}

func (s *PBStore) FindPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	if sessionID == "" {
		return nil, notFound("payment with session", sessionID)
	}
	rec, err := s.app.FindFirstRecordByData(CollectionPayments, "checkout_session_id", sessionID)
	if err != nil {
		return nil, wrapFind(err, "payment with session", sessionID)
	}
	return recordToPayment(rec), nil
}

func (s *PBStore) FindPaymentByOwner(ctx context.Context, kind models.TargetKind, ownerID string) (*models.Payment, error) {
	var field string
	switch kind {
	case models.KindApplication:
		field = "application_id"
	case models.KindTicket:
		field = "ticket_id"
	default:
		return nil, status.Invalid("kind", string(kind))
	}
	if ownerID == "" {
		return nil, notFound(string(kind)+" payment", ownerID)
	}
	rec, err := s.app.FindFirstRecordByData(CollectionPayments, field, ownerID)
	if err != nil {
		return nil, wrapFind(err, string(kind)+" payment", ownerID)
	}
	return recordToPayment(rec), nil
}

func (s *PBStore) ListPaymentsByUser(ctx context.Context, userID string) ([]*models.Payment, error) {
	recs, err := s.app.FindRecordsByFilter(
		CollectionPayments,
		"user_id = {:user}",
		"-created",
		0,
		0,
		dbx.Params{"user": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("ListPaymentsByUser: %w", err)
	}
	out := make([]*models.Payment, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToPayment(rec))
	}
	return out, nil
}

func (s *PBStore) CloseCheckout(ctx context.Context, paymentID string) (bool, error) {
	res, err := s.app.DB().Update(
		CollectionPayments,
		dbx.Params{"checkout_status": int(models.CheckoutClosed)},
		dbx.And(
			dbx.HashExp{"id": paymentID},
			dbx.Not(dbx.HashExp{"checkout_status": int(models.CheckoutClosed)}),
		),
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("CloseCheckout: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CloseCheckout: rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return false, err
		}
	}
	return affected == 1, nil
}

// Vouchers

func (s *PBStore) CreateVoucher(ctx context.Context, v *models.Voucher) error {
	rec, err := s.newRecord(CollectionVouchers)
	if err != nil {
		return err
	}
	if v.ID != "" {
		rec.Id = v.ID
	}
	rec.Set("full_coverage", v.Amount == nil)
	if v.Amount != nil {
		rec.Set("amount", *v.Amount)
	}
	rec.Set("target_type", string(v.TargetType))
	rec.Set("target_id", v.TargetID)
	rec.Set("target_sub_id", v.TargetSubID)
	rec.Set("used_count", v.UsedCount)
	rec.Set("limited", v.UsedCountLimit != nil)
	if v.UsedCountLimit != nil {
		rec.Set("used_count_limit", *v.UsedCountLimit)
	}
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("CreateVoucher: %w", err)
	}
	v.ID = rec.Id
	v.Created = getTime(rec, "created")
	return nil
}

func (s *PBStore) GetVoucher(ctx context.Context, id string) (*models.Voucher, error) {
	rec, err := s.app.FindRecordById(CollectionVouchers, id)
	if err != nil {
		return nil, wrapFind(err, "voucher", id)
	}
	v := &models.Voucher{
		ID:          rec.Id,
		TargetType:  models.VoucherTarget(rec.GetString("target_type")),
		TargetID:    rec.GetString("target_id"),
		TargetSubID: rec.GetString("target_sub_id"),
		UsedCount:   rec.GetInt("used_count"),
		Created:     getTime(rec, "created"),
	}
	if !rec.GetBool("full_coverage") {
		amount := getInt64(rec, "amount")
		v.Amount = &amount
	}
	if rec.GetBool("limited") {
		limit := rec.GetInt("used_count_limit")
		v.UsedCountLimit = &limit
	}
	return v, nil
}

// RedeemVoucher increments in place so concurrent redemptions cannot overshoot the limit.
func (s *PBStore) RedeemVoucher(ctx context.Context, id string) error {
	res, err := s.app.DB().Update(
		CollectionVouchers,
		dbx.Params{"used_count": dbx.NewExp("[[used_count]] + 1")},
		dbx.NewExp("[[id]] = {:id} AND ([[limited]] = 0 OR [[used_count]] < [[used_count_limit]])", dbx.Params{"id": id}),
	).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("RedeemVoucher: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RedeemVoucher: rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.GetVoucher(ctx, id); err != nil {
		return err
	}
	return status.ErrVoucherExhausted
}

// ReleaseVoucher gives back one redemption. The counter never goes below zero.
func (s *PBStore) ReleaseVoucher(ctx context.Context, id string) error {
	if _, err := s.GetVoucher(ctx, id); err != nil {
		return err
	}
	_, err := s.app.DB().Update(
		CollectionVouchers,
		dbx.Params{"used_count": dbx.NewExp("[[used_count]] - 1")},
		dbx.NewExp("[[id]] = {:id} AND [[used_count]] > 0", dbx.Params{"id": id}),
	).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("ReleaseVoucher: update: %w", err)
	}
	return nil
}

// Accounts

func recordToAccount(rec *core.Record) *models.Account {
	return &models.Account{
		ID:    rec.Id,
		Email: rec.Email(),
		Profile: models.Profile{
			DisplayName: rec.GetString("display_name"),
			Gender:      rec.GetString("gender"),
		},
	}
}

func (s *PBStore) CreateAccount(ctx context.Context, creds models.Credentials) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || len(creds.Password) < 8 {
		return nil, status.Invalid("credentials", "email and a password of at least 8 characters are required")
	}
	if _, err := s.app.FindAuthRecordByEmail(CollectionAccounts, email); err == nil {
		return nil, fmt.Errorf("%w: account %s exists", status.ErrConflict, email)
	}

	rec, err := s.newRecord(CollectionAccounts)
	if err != nil {
		return nil, err
	}
	rec.SetEmail(email)
	rec.SetPassword(creds.Password)
	if err := s.save(ctx, rec); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: account %s exists", status.ErrConflict, email)
		}
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}
	return recordToAccount(rec), nil
}

func (s *PBStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	rec, err := s.app.FindRecordById(CollectionAccounts, id)
	if err != nil {
		return nil, wrapFind(err, "account", id)
	}
	return recordToAccount(rec), nil
}

func (s *PBStore) UpdateProfile(ctx context.Context, id string, patch models.Profile) (*models.Account, error) {
	rec, err := s.app.FindRecordById(CollectionAccounts, id)
	if err != nil {
		return nil, wrapFind(err, "account", id)
	}
	merged := recordToAccount(rec).Profile.Merge(patch)
	rec.Set("display_name", merged.DisplayName)
	rec.Set("gender", merged.Gender)
	if err := s.save(ctx, rec); err != nil {
		return nil, fmt.Errorf("UpdateProfile: %w", err)
	}
	return recordToAccount(rec), nil
}
