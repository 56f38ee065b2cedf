package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"circle-system/internal/services/hashid"
	"circle-system/internal/status"
	"circle-system/models"

	"golang.org/x/crypto/bcrypt"
)

type memAccount struct {
	account      models.Account
	passwordHash []byte
}

type memData struct {
	hashes       map[string]models.HashRef
	events       map[string]models.Event
	spaces       map[string]models.Space
	stores       map[string]models.TicketStore
	types        map[string]models.TicketType
	applications map[string]models.Application
	tickets      map[string]models.Ticket
	ticketUsers  map[string]models.TicketUser
	payments     map[string]models.Payment
	vouchers     map[string]models.Voucher
	accounts     map[string]memAccount
}

func (d *memData) clone() *memData {
	return &memData{
		hashes:       maps.Clone(d.hashes),
		events:       maps.Clone(d.events),
		spaces:       maps.Clone(d.spaces),
		stores:       maps.Clone(d.stores),
		types:        maps.Clone(d.types),
		applications: maps.Clone(d.applications),
		tickets:      maps.Clone(d.tickets),
		ticketUsers:  maps.Clone(d.ticketUsers),
		payments:     maps.Clone(d.payments),
		vouchers:     maps.Clone(d.vouchers),
		accounts:     maps.Clone(d.accounts),
	}
}

// MemoryStore keeps every collection in process memory. Transactions are
// serialized and roll back by restoring a snapshot.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *memData
	seq  int
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			hashes:       make(map[string]models.HashRef),
			events:       make(map[string]models.Event),
			spaces:       make(map[string]models.Space),
			stores:       make(map[string]models.TicketStore),
			types:        make(map[string]models.TicketType),
			applications: make(map[string]models.Application),
			tickets:      make(map[string]models.Ticket),
			ticketUsers:  make(map[string]models.TicketUser),
			payments:     make(map[string]models.Payment),
			vouchers:     make(map[string]models.Voucher),
			accounts:     make(map[string]memAccount),
		},
		now: time.Now,
	}
}

func (m *MemoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%012d", prefix, m.seq)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", status.ErrNotFound, kind, id)
}

func hashKey(ns models.Namespace, hashID string) string {
	return string(ns) + "/" + hashID
}

// RunInTx holds the transaction lock for the duration of fn.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.data.clone()
	m.mu.Unlock()

	if err := fn(memTx{m}); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// memTx is the store as seen inside a transaction; nested transactions join it.
type memTx struct {
	*MemoryStore
}

func (t memTx) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (m *MemoryStore) InsertHash(ctx context.Context, ref *models.HashRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := hashKey(ref.Namespace, ref.HashID)
	if _, ok := m.data.hashes[key]; ok {
		return status.ErrHashTaken
	}
	if ref.Created.IsZero() {
		ref.Created = m.now()
	}
	m.data.hashes[key] = *ref
	return nil
}

func (m *MemoryStore) FindHash(ctx context.Context, ns models.Namespace, hashID string) (*models.HashRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.data.hashes[hashKey(ns, hashID)]
	if !ok {
		return nil, notFound(string(ns)+" hash", hashID)
	}
	return &ref, nil
}

func (m *MemoryStore) ListHashes(ctx context.Context, ns models.Namespace, filter models.Routing) ([]*models.HashRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.HashRef
	for _, ref := range m.data.hashes {
		if ref.Namespace == ns && hashid.MatchRouting(ref.Routing, filter) {
			ref := ref
			out = append(out, &ref)
		}
	}
	slices.SortFunc(out, func(a, b *models.HashRef) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return strings.Compare(a.HashID, b.HashID)
	})
	return out, nil
}

func (m *MemoryStore) CreateEvent(ctx context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = m.nextID("ev")
	}
	m.data.events[e.ID] = *e
	return nil
}

func (m *MemoryStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data.events[id]
	if !ok {
		return nil, notFound("event", id)
	}
	return &e, nil
}

func (m *MemoryStore) CreateSpace(ctx context.Context, s *models.Space) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = m.nextID("sp")
	}
	m.data.spaces[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSpace(ctx context.Context, id string) (*models.Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.spaces[id]
	if !ok {
		return nil, notFound("space", id)
	}
	return &s, nil
}

func (m *MemoryStore) CreateTicketStore(ctx context.Context, s *models.TicketStore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = m.nextID("ts")
	}
	m.data.stores[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetTicketStore(ctx context.Context, id string) (*models.TicketStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.stores[id]
	if !ok {
		return nil, notFound("ticket store", id)
	}
	return &s, nil
}

func (m *MemoryStore) CreateTicketType(ctx context.Context, t *models.TicketType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = m.nextID("tt")
	}
	m.data.types[t.ID] = *t
	return nil
}

func (m *MemoryStore) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data.types[id]
	if !ok {
		return nil, notFound("ticket type", id)
	}
	return &t, nil
}

func (m *MemoryStore) CreateApplication(ctx context.Context, a *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID("ap")
	a.Created = m.now()
	a.Updated = a.Created
	m.data.applications[a.ID] = *a
	return nil
}

func (m *MemoryStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data.applications[id]
	if !ok {
		return nil, notFound("application", id)
	}
	return &a, nil
}

func (m *MemoryStore) UpdateApplication(ctx context.Context, a *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.applications[a.ID]; !ok {
		return notFound("application", a.ID)
	}
	a.Updated = m.now()
	m.data.applications[a.ID] = *a
	return nil
}

func (m *MemoryStore) FindBlockingApplication(ctx context.Context, eventID, userID string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.data.applications {
		if a.EventID == eventID && a.UserID == userID && a.Blocking() {
			return &a, nil
		}
	}
	return nil, notFound("application for event", eventID)
}

func (m *MemoryStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID("tk")
	t.Created = m.now()
	t.Updated = t.Created
	m.data.tickets[t.ID] = *t
	return nil
}

func (m *MemoryStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data.tickets[id]
	if !ok {
		return nil, notFound("ticket", id)
	}
	return &t, nil
}

func (m *MemoryStore) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.tickets[t.ID]; !ok {
		return notFound("ticket", t.ID)
	}
	t.Updated = m.now()
	m.data.tickets[t.ID] = *t
	return nil
}

func (m *MemoryStore) CreateTicketUser(ctx context.Context, u *models.TicketUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.ticketUsers[u.TicketID]; ok {
		return fmt.Errorf("%w: ticket user for %s exists", status.ErrConflict, u.TicketID)
	}
	u.ID = m.nextID("tu")
	u.Created = m.now()
	m.data.ticketUsers[u.TicketID] = *u
	return nil
}

func (m *MemoryStore) GetTicketUser(ctx context.Context, ticketID string) (*models.TicketUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data.ticketUsers[ticketID]
	if !ok {
		return nil, notFound("ticket user", ticketID)
	}
	return &u, nil
}

func (m *MemoryStore) ClaimTicketUser(ctx context.Context, ticketID, userID string, at time.Time) (*models.TicketUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data.ticketUsers[ticketID]
	if !ok {
		return nil, notFound("ticket user", ticketID)
	}
	switch u.UsableUserID {
	case "":
		u.UsableUserID = userID
		m.data.ticketUsers[ticketID] = u
		return &u, nil
	case userID:
		return &u, nil
	default:
		return nil, status.ErrTicketAlreadyClaimed
	}
}

func (m *MemoryStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.BankTransferCode != "" {
		if m.findPayment(func(o *models.Payment) bool { return o.BankTransferCode == p.BankTransferCode }) != nil {
			return status.ErrTransferCodeTaken
		}
	}
	p.ID = m.nextID("pm")
	p.Created = m.now()
	p.Updated = p.Created
	m.data.payments[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	return &p, nil
}

func (m *MemoryStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.payments[p.ID]; !ok {
		return notFound("payment", p.ID)
	}
	p.Updated = m.now()
	m.data.payments[p.ID] = *p
	return nil
}

func (m *MemoryStore) findPayment(match func(p *models.Payment) bool) *models.Payment {
	for _, p := range m.data.payments {
		if match(&p) {
			return &p
		}
	}
	return nil
}

func (m *MemoryStore) FindPaymentByTransferCode(ctx context.Context, code string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.findPayment(func(p *models.Payment) bool { return code != "" && p.BankTransferCode == code }); p != nil {
		return p, nil
	}
	return nil, notFound("payment with transfer code", code)
}

func (m *MemoryStore) FindPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.findPayment(func(p *models.Payment) bool { return sessionID != "" && p.CheckoutSessionID == sessionID }); p != nil {
		return p, nil
	}
	return nil, notFound("payment with session", sessionID)
}

func (m *MemoryStore) FindPaymentByOwner(ctx context.Context, kind models.TargetKind, ownerID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := func(p *models.Payment) bool {
		switch kind {
		case models.KindApplication:
			return ownerID != "" && p.ApplicationID == ownerID
		case models.KindTicket:
			return ownerID != "" && p.TicketID == ownerID
		}
		return false
	}
	if p := m.findPayment(match); p != nil {
		return p, nil
	}
	return nil, notFound(string(kind)+" payment", ownerID)
}

func (m *MemoryStore) ListPaymentsByUser(ctx context.Context, userID string) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.data.payments {
		if p.UserID == userID {
			p := p
			out = append(out, &p)
		}
	}
	slices.SortFunc(out, func(a, b *models.Payment) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (m *MemoryStore) CloseCheckout(ctx context.Context, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.payments[paymentID]
	if !ok {
		return false, notFound("payment", paymentID)
	}
	if p.CheckoutStatus == models.CheckoutClosed {
		return false, nil
	}
	p.CheckoutStatus = models.CheckoutClosed
	p.Updated = m.now()
	m.data.payments[paymentID] = p
	return true, nil
}

func (m *MemoryStore) CreateVoucher(ctx context.Context, v *models.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = m.nextID("vc")
	}
	v.Created = m.now()
	m.data.vouchers[v.ID] = *v
	return nil
}

func (m *MemoryStore) GetVoucher(ctx context.Context, id string) (*models.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data.vouchers[id]
	if !ok {
		return nil, notFound("voucher", id)
	}
	return &v, nil
}

func (m *MemoryStore) RedeemVoucher(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data.vouchers[id]
	if !ok {
		return notFound("voucher", id)
	}
	if v.Exhausted() {
		return status.ErrVoucherExhausted
	}
	v.UsedCount++
	m.data.vouchers[id] = v
	return nil
}

func (m *MemoryStore) ReleaseVoucher(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data.vouchers[id]
	if !ok {
		return notFound("voucher", id)
	}
	if v.UsedCount > 0 {
		v.UsedCount--
		m.data.vouchers[id] = v
	}
	return nil
}

func (m *MemoryStore) CreateAccount(ctx context.Context, creds models.Credentials) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || len(creds.Password) < 8 {
		return nil, status.Invalid("credentials", "email and a password of at least 8 characters are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: bcrypt: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.data.accounts {
		if a.account.Email == email {
			return nil, fmt.Errorf("%w: account %s exists", status.ErrConflict, email)
		}
	}
	acc := models.Account{ID: m.nextID("us"), Email: email}
	m.data.accounts[acc.ID] = memAccount{account: acc, passwordHash: hash}
	return &acc, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	acc := a.account
	return &acc, nil
}

func (m *MemoryStore) UpdateProfile(ctx context.Context, id string, patch models.Profile) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	a.account.Profile = a.account.Profile.Merge(patch)
	m.data.accounts[id] = a
	acc := a.account
	return &acc, nil
}

// Authenticate checks a password against the stored bcrypt hash.
func (m *MemoryStore) Authenticate(ctx context.Context, creds models.Credentials) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))

	m.mu.Lock()
	var found *memAccount
	for _, a := range m.data.accounts {
		if a.account.Email == email {
			a := a
			found = &a
			break
		}
	}
	m.mu.Unlock()

	if found == nil {
		return nil, notFound("account", email)
	}
	if err := bcrypt.CompareHashAndPassword(found.passwordHash, []byte(creds.Password)); err != nil {
		return nil, fmt.Errorf("%w: wrong password", status.ErrInvalidArgument)
	}
	acc := found.account
	return &acc, nil
}
