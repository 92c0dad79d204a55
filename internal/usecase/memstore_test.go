package usecase

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/internal/data/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// memStore is an in-memory stand-in for Postgres. Transactions run one at a
// time, which is how FOR UPDATE behaves for the rows these tests share, and
// a failed transaction restores the snapshot taken when it began.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	services map[uuid.UUID]entity.Service
	bookings map[uuid.UUID]entity.Booking
	payments map[uuid.UUID]entity.Payment
	payouts  map[uuid.UUID]entity.Payout
	methods  map[uuid.UUID]entity.PayoutMethod
	events   map[string]entity.WebhookEvent
}

func newMemStore() *memStore {
	return &memStore{
		services: map[uuid.UUID]entity.Service{},
		bookings: map[uuid.UUID]entity.Booking{},
		payments: map[uuid.UUID]entity.Payment{},
		payouts:  map[uuid.UUID]entity.Payout{},
		methods:  map[uuid.UUID]entity.PayoutMethod{},
		events:   map[string]entity.WebhookEvent{},
	}
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func clonePayment(p entity.Payment) *entity.Payment {
	p.GatewayMetadata = maps.Clone(p.GatewayMetadata)
	return &p
}

type memSnapshot struct {
	bookings map[uuid.UUID]entity.Booking
	payments map[uuid.UUID]entity.Payment
	payouts  map[uuid.UUID]entity.Payout
	events   map[string]entity.WebhookEvent
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	payments := make(map[uuid.UUID]entity.Payment, len(s.payments))
	for id, p := range s.payments {
		payments[id] = *clonePayment(p)
	}
	return memSnapshot{
		bookings: maps.Clone(s.bookings),
		payments: payments,
		payouts:  maps.Clone(s.payouts),
		events:   maps.Clone(s.events),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = snap.bookings
	s.payments = snap.payments
	s.payouts = snap.payouts
	s.events = snap.events
}

func (s *memStore) repository() *repository.Repository {
	repo := &repository.Repository{
		Service:      memServices{s},
		Booking:      memBookings{s},
		Payment:      memPayments{s},
		Payout:       memPayouts{s},
		PayoutMethod: memMethods{s},
		WebhookEvent: memEvents{s},
	}
	repo.Tx = memTx{store: s}
	return repo
}

type memTx struct {
	store *memStore
}

func (t memTx) WithinTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()

	snap := t.store.snapshot()
	txRepo := t.store.repository()
	txRepo.Tx = joinedMemTx{repo: txRepo}

	if err := fn(txRepo); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type joinedMemTx struct {
	repo *repository.Repository
}

func (j joinedMemTx) WithinTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	return fn(j.repo)
}

// Seeding and inspection helpers.

func (s *memStore) addService(svc entity.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *memStore) addMethod(m entity.PayoutMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[m.ProviderID] = m
}

func (s *memStore) putBooking(b entity.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

func (s *memStore) putPayment(p entity.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = *clonePayment(p)
}

func (s *memStore) booking(id uuid.UUID) entity.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id]
}

func (s *memStore) payment(id uuid.UUID) entity.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *clonePayment(s.payments[id])
}

func (s *memStore) payout(id uuid.UUID) entity.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payouts[id]
}

func (s *memStore) paymentsFor(bookingID uuid.UUID) []entity.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Payment
	for _, p := range s.payments {
		if p.BookingID == bookingID {
			out = append(out, *clonePayment(p))
		}
	}
	return out
}

func (s *memStore) allPayouts() []entity.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Payout, 0, len(s.payouts))
	for _, p := range s.payouts {
		out = append(out, p)
	}
	return out
}

func (s *memStore) linkedTo(payoutID uuid.UUID) []entity.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Payment
	for _, p := range s.payments {
		if p.PayoutID != nil && *p.PayoutID == payoutID {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type memServices struct{ s *memStore }

func (r memServices) FindByID(ctx context.Context, id uuid.UUID) (*entity.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	svc, ok := r.s.services[id]
	if !ok {
		return nil, nil
	}
	return &svc, nil
}

type memBookings struct{ s *memStore }

func (r memBookings) Create(ctx context.Context, b *entity.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.bookings {
		if existing.BookingReference == b.BookingReference {
			return uniqueViolation("bookings_booking_reference_key")
		}
	}
	r.s.bookings[b.ID] = *b
	return nil
}

func (r memBookings) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok || b.DeletedAt != nil {
		return nil, nil
	}
	return &b, nil
}

func (r memBookings) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.FindByID(ctx, id)
}

func matches(b entity.Booking, f repository.BookingFilter) bool {
	if b.DeletedAt != nil {
		return false
	}
	if f.CustomerID != nil && b.CustomerID != *f.CustomerID {
		return false
	}
	if f.ProviderID != nil && b.ProviderID != *f.ProviderID {
		return false
	}
	if f.Status != nil && b.Status != *f.Status {
		return false
	}
	return true
}

func (r memBookings) List(ctx context.Context, f repository.BookingFilter, limit, offset int) ([]*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Booking
	for _, b := range r.s.bookings {
		if matches(b, f) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memBookings) Count(ctx context.Context, f repository.BookingFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, b := range r.s.bookings {
		if matches(b, f) {
			n++
		}
	}
	return n, nil
}

func (r memBookings) Update(ctx context.Context, b *entity.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.bookings[b.ID] = *b
	return nil
}

func (r memBookings) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b := r.s.bookings[id]
	b.DeletedAt = &at
	r.s.bookings[id] = b
	return nil
}

type memPayments struct{ s *memStore }

// checkUnique mirrors the partial unique index on active payments and the
// unique transaction reference. Callers hold s.mu.
func (r memPayments) checkUnique(p *entity.Payment) error {
	for id, other := range r.s.payments {
		if id == p.ID {
			continue
		}
		if p.Status.IsActive() && other.BookingID == p.BookingID && other.Status.IsActive() {
			return uniqueViolation("payments_one_active_per_booking")
		}
		if p.TransactionReference != nil && other.TransactionReference != nil &&
			*p.TransactionReference == *other.TransactionReference {
			return uniqueViolation("payments_transaction_reference_key")
		}
	}
	return nil
}

func (r memPayments) Create(ctx context.Context, p *entity.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkUnique(p); err != nil {
		return err
	}
	r.s.payments[p.ID] = *clonePayment(*p)
	return nil
}

func (r memPayments) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	return clonePayment(p), nil
}

func (r memPayments) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r memPayments) FindByReference(ctx context.Context, reference string) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.TransactionReference != nil && *p.TransactionReference == reference {
			return clonePayment(p), nil
		}
	}
	return nil, nil
}

func (r memPayments) FindActiveByBookingIDForUpdate(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.BookingID == bookingID && p.Status.IsActive() {
			return clonePayment(p), nil
		}
	}
	return nil, nil
}

func (r memPayments) Update(ctx context.Context, p *entity.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkUnique(p); err != nil {
		return err
	}
	r.s.payments[p.ID] = *clonePayment(*p)
	return nil
}

// eligible is called with s.mu held.
func (r memPayments) eligible(p entity.Payment, paidBefore time.Time) bool {
	return p.Status == entity.PaymentStatusCompleted && p.PayoutID == nil &&
		p.PaidAt != nil && !p.PaidAt.After(paidBefore)
}

func (r memPayments) ListEligibleProviderIDs(ctx context.Context, paidBefore time.Time) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, p := range r.s.payments {
		if !r.eligible(p, paidBefore) {
			continue
		}
		provider := r.s.bookings[p.BookingID].ProviderID
		if !seen[provider] {
			seen[provider] = true
			out = append(out, provider)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r memPayments) ListEligibleByProviderForUpdate(ctx context.Context, providerID uuid.UUID, paidBefore time.Time) ([]*entity.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Payment
	for _, p := range r.s.payments {
		if r.eligible(p, paidBefore) && r.s.bookings[p.BookingID].ProviderID == providerID {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (r memPayments) LinkPayout(ctx context.Context, payoutID uuid.UUID, ids []uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		p, ok := r.s.payments[id]
		if !ok || p.PayoutID != nil || p.Status != entity.PaymentStatusCompleted {
			continue
		}
		pid := payoutID
		p.PayoutID = &pid
		r.s.payments[id] = p
		n++
	}
	return n, nil
}

type memPayouts struct{ s *memStore }

func (r memPayouts) Create(ctx context.Context, p *entity.Payout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payouts[p.ID] = *p
	return nil
}

func (r memPayouts) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payouts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memPayouts) ListDueIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []uuid.UUID
	for id, p := range r.s.payouts {
		if p.Status == entity.PayoutStatusPending && !p.ScheduledDate.After(now) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r memPayouts) Update(ctx context.Context, p *entity.Payout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payouts[p.ID] = *p
	return nil
}

func (r memPayouts) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*entity.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Payout
	for _, p := range r.s.payouts {
		if p.ProviderID == providerID {
			p := p
			out = append(out, &p)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memPayouts) CountByProvider(ctx context.Context, providerID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.payouts {
		if p.ProviderID == providerID {
			n++
		}
	}
	return n, nil
}

type memMethods struct{ s *memStore }

func (r memMethods) FindActiveByProvider(ctx context.Context, providerID uuid.UUID) (*entity.PayoutMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.methods[providerID]
	if !ok || !m.IsActive {
		return nil, nil
	}
	return &m, nil
}

type memEvents struct{ s *memStore }

func (r memEvents) MarkProcessed(ctx context.Context, e *entity.WebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[e.EventID]; ok {
		return false, nil
	}
	r.s.events[e.EventID] = *e
	return true, nil
}
