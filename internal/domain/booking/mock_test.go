package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/islandmassage/booking/internal/domain/account"
	"github.com/islandmassage/booking/internal/domain/catalog"
	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/geo"
	"github.com/islandmassage/booking/internal/platform/interval"
	"github.com/islandmassage/booking/internal/platform/notification"
)

var ict = time.FixedZone("ICT", 7*3600)

// -- Mock Repository --

type mockRepo struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]*Booking
	addresses map[uuid.UUID]*Address
	intents   map[uuid.UUID]string
	createErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		bookings:  make(map[uuid.UUID]*Booking),
		addresses: make(map[uuid.UUID]*Address),
		intents:   make(map[uuid.UUID]string),
	}
}

func (m *mockRepo) put(b *Booking) *Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	cp := *b
	m.bookings[b.ID] = &cp
	return b
}

func (m *mockRepo) get(id uuid.UUID) *Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.bookings[id]
	return &cp
}

func (m *mockRepo) Create(_ context.Context, b *Booking) error {
	if m.createErr != nil {
		return m.createErr
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.put(b)
	return nil
}

func (m *mockRepo) CreateAddress(_ context.Context, a *Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[a.ID] = a
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	cp := *b
	return &cp, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status, payment *PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return apperr.NotFound("booking %s not found", id)
	}
	b.Status = status
	if payment != nil {
		b.PaymentStatus = *payment
	}
	return nil
}

func (m *mockRepo) SetPaymentStatus(_ context.Context, id uuid.UUID, payment PaymentStatus, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return apperr.NotFound("booking %s not found", id)
	}
	b.PaymentStatus = payment
	if intentID != "" {
		m.intents[id] = intentID
	}
	return nil
}

func (m *mockRepo) Assign(_ context.Context, id, therapistID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.TherapistID != nil || b.Status != StatusPending {
		return apperr.Validation("booking %s is not pending and unassigned", id)
	}
	b.TherapistID = &therapistID
	return nil
}

func (m *mockRepo) FindOverlapping(_ context.Context, therapistID uuid.UUID, r interval.Range, statuses []Status, exclude uuid.UUID) ([]*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Booking
	for _, b := range m.bookings {
		if b.ID == exclude || !b.AssignedTo(therapistID) || !b.Range().Overlaps(r) {
			continue
		}
		for _, s := range statuses {
			if b.Status == s {
				cp := *b
				out = append(out, &cp)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *mockRepo) list(match func(*Booking) bool, limit, offset int) ([]*Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []*Booking{}
	for _, b := range m.bookings {
		if match(b) {
			cp := *b
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) ListByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return m.list(func(b *Booking) bool { return b.CustomerID != nil && *b.CustomerID == customerID }, limit, offset)
}

func (m *mockRepo) ListByTherapist(_ context.Context, therapistID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return m.list(func(b *Booking) bool { return b.AssignedTo(therapistID) }, limit, offset)
}

// -- Collaborator Mocks --

type slotCall struct {
	TherapistID uuid.UUID
	Range       interval.Range
	Booked      bool
	Keep        []interval.Range
}

type mockSlots struct {
	mu    sync.Mutex
	calls []slotCall
}

func (m *mockSlots) SetBooked(_ context.Context, therapistID uuid.UUID, r interval.Range, booked bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, slotCall{TherapistID: therapistID, Range: r, Booked: booked})
	return 1, nil
}

func (m *mockSlots) Free(_ context.Context, therapistID uuid.UUID, r interval.Range, keep []interval.Range) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, slotCall{TherapistID: therapistID, Range: r, Keep: keep})
	return 1, nil
}

func (m *mockSlots) last() slotCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

type mockQuoter struct {
	quote catalog.Quote
	err   error
}

func (m mockQuoter) Quote(context.Context, int64) (catalog.Quote, error) { return m.quote, m.err }

type mockMatcher struct {
	id  *uuid.UUID
	err error
}

func (m mockMatcher) Match(context.Context, geo.Point, int64) (*uuid.UUID, error) { return m.id, m.err }

type mockContacts struct {
	contacts map[uuid.UUID]*account.Contact
}

func (m mockContacts) Contact(_ context.Context, id uuid.UUID) (*account.Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, apperr.NotFound("profile %s not found", id)
	}
	return c, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (m *mockNotifier) Notify(_ context.Context, msg notification.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *mockNotifier) templates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, msg := range m.sent {
		out[i] = msg.TemplateID
	}
	return out
}
