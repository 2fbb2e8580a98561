package booking

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/islandmassage/booking/internal/domain/account"
	"github.com/islandmassage/booking/internal/domain/catalog"
	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/lock"
)

type fixture struct {
	repo      *mockRepo
	slots     *mockSlots
	notifier  *mockNotifier
	svc       *Service
	therapist uuid.UUID
	customer  uuid.UUID
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMockRepo(),
		slots:     &mockSlots{},
		notifier:  &mockNotifier{},
		therapist: uuid.New(),
		customer:  uuid.New(),
		now:       time.Date(2026, 3, 12, 7, 0, 0, 0, ict),
	}
	tid := f.therapist
	f.svc = NewService(Deps{
		Repo:    f.repo,
		Slots:   f.slots,
		Quotes:  mockQuoter{quote: catalog.Quote{ServiceID: 1, Name: "Thai Massage", Duration: 90 * time.Minute, Price: 1200}},
		Matcher: mockMatcher{id: &tid},
		Contacts: mockContacts{contacts: map[uuid.UUID]*account.Contact{
			f.therapist: {Name: "Nok", Email: "nok@example.com", Phone: "+66800000001"},
			f.customer:  {Name: "Anna", Email: "anna@example.com"},
		}},
		Notifier: f.notifier,
		Tx:       db.NoTx{},
		Locker:   lock.NewLocal(),
	}, Config{OpsEmail: "ops@example.com", Location: ict, Now: func() time.Time { return f.now }}, zerolog.Nop())
	return f
}

// booking stores a booking for the fixture's therapist and customer starting at
// hour:minute on 2026-03-12 local time.
func (f *fixture) booking(hour, minute int, dur time.Duration, status Status) *Booking {
	start := time.Date(2026, 3, 12, hour, minute, 0, 0, ict)
	tid, cid := f.therapist, f.customer
	return f.repo.put(&Booking{
		TherapistID:   &tid,
		CustomerID:    &cid,
		ServiceID:     1,
		StartTime:     start,
		EndTime:       start.Add(dur),
		Price:         1200,
		Status:        status,
		PaymentStatus: PaymentUnpaid,
	})
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusConfirmed, false},
		{StatusAccepted, StatusConfirmed, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusConfirmed, StatusRefunded, true},
		{StatusConfirmed, StatusAccepted, false},
		{StatusRejected, StatusAccepted, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusRefunded, true},
		{StatusInProgress, StatusConfirmed, false},
		{StatusPending, StatusCancelled, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusRejected, StatusCancelled, StatusRefunded} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []Status{StatusPending, StatusAccepted, StatusConfirmed, StatusInProgress} {
		assert.False(t, s.IsTerminal(), s)
	}
	assert.False(t, Status("unknown").Valid())
}

func TestGuard_AcceptMarksSlots(t *testing.T) {
	f := newFixture(t)
	b := f.booking(10, 0, 90*time.Minute, StatusPending)

	got, err := f.svc.Guard().CheckAndTransition(context.Background(), b.ID, f.therapist, StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
	assert.Equal(t, StatusAccepted, f.repo.get(b.ID).Status)

	call := f.slots.last()
	assert.True(t, call.Booked)
	assert.Equal(t, f.therapist, call.TherapistID)
	assert.True(t, call.Range.Equal(b.Range()))
}

func TestGuard_RejectsOverlapWithConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.booking(10, 0, 60*time.Minute, StatusConfirmed)
	second := f.booking(10, 30, 60*time.Minute, StatusPending)

	_, err := f.svc.Guard().CheckAndTransition(ctx, second.ID, f.therapist, StatusAccepted)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "2026-03-12 10:00")
	assert.Equal(t, StatusPending, f.repo.get(second.ID).Status)
	assert.Equal(t, StatusConfirmed, f.repo.get(first.ID).Status)
}

func TestGuard_AdjacentBookingsDoNotConflict(t *testing.T) {
	f := newFixture(t)
	f.booking(10, 0, 60*time.Minute, StatusConfirmed)
	next := f.booking(11, 0, 60*time.Minute, StatusPending)

	_, err := f.svc.Guard().CheckAndTransition(context.Background(), next.ID, f.therapist, StatusAccepted)
	assert.NoError(t, err)
}

func TestGuard_AcceptedDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.booking(10, 0, 60*time.Minute, StatusAccepted)
	other := f.booking(10, 0, 60*time.Minute, StatusPending)

	_, err := f.svc.Guard().CheckAndTransition(context.Background(), other.ID, f.therapist, StatusAccepted)
	assert.NoError(t, err)
}

func TestGuard_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.booking(10, 0, 60*time.Minute, StatusPending)

	_, err := f.svc.Guard().CheckAndTransition(ctx, pending.ID, uuid.New(), StatusAccepted)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.svc.Guard().CheckAndTransition(ctx, pending.ID, f.therapist, StatusConfirmed)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Guard().CheckAndTransition(ctx, pending.ID, f.therapist, StatusCancelled)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Guard().CheckAndTransition(ctx, uuid.New(), f.therapist, StatusAccepted)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGuard_ReleaseSkipsUnassigned(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Guard().Release(context.Background(), &Booking{ID: uuid.New()}))
	assert.Empty(t, f.slots.calls)
}

func TestCancellationOutcome(t *testing.T) {
	now := time.Date(2026, 3, 12, 7, 0, 0, 0, ict)
	tests := []struct {
		name   string
		lead   time.Duration
		status Status
		late   bool
	}{
		{"two hours", 2 * time.Hour, StatusCancelled, true},
		{"exactly three hours", 3 * time.Hour, StatusCancelled, true},
		{"just over three hours", 3*time.Hour + time.Minute, StatusRefunded, false},
		{"five hours", 5 * time.Hour, StatusRefunded, false},
		{"already started", -time.Hour, StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, late := CancellationOutcome(now.Add(tt.lead), now)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.late, late)
		})
	}
}

// Random concurrent decisions on overlapping bookings must never leave two
// blocking bookings of one therapist overlapping.
func TestGuard_NoDoubleBookingUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2026, 3, 1, 8, 0, 0, 0, ict)

	var ids []uuid.UUID
	for i := 0; i < 12; i++ {
		b := f.booking(9+i%4, (i%3)*20, time.Duration(60+(i%2)*30)*time.Minute, StatusPending)
		ids = append(ids, b.ID)
	}

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			ctx := context.Background()
			for i := 0; i < 60; i++ {
				id := ids[rng.Intn(len(ids))]
				var err error
				switch rng.Intn(4) {
				case 0:
					_, err = f.svc.SetStatus(ctx, f.therapist, id, StatusAccepted)
				case 1:
					_, err = f.svc.SetStatus(ctx, f.therapist, id, StatusConfirmed)
				case 2:
					_, err = f.svc.SetStatus(ctx, f.therapist, id, StatusRejected)
				case 3:
					_, err = f.svc.Cancel(ctx, f.customer, id)
				}
				if err != nil {
					k := apperr.KindOf(err)
					if k != apperr.KindValidation && k != apperr.KindConflict {
						t.Errorf("unexpected error kind %s: %v", k, err)
					}
				}
			}
		}(int64(w + 1))
	}
	wg.Wait()

	var blocking []*Booking
	for _, id := range ids {
		b := f.repo.get(id)
		if b.Status == StatusConfirmed || b.Status == StatusInProgress {
			blocking = append(blocking, b)
		}
	}
	for i := range blocking {
		for j := i + 1; j < len(blocking); j++ {
			if blocking[i].Range().Overlaps(blocking[j].Range()) {
				t.Fatalf("bookings %s and %s overlap while both %s/%s",
					blocking[i].ID, blocking[j].ID, blocking[i].Status, blocking[j].Status)
			}
		}
	}
}
