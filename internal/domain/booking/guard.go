package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/interval"
)

// CancellationWindow is the lead time below which a cancellation is late.
const CancellationWindow = 3 * time.Hour

// TimeConflictStatuses are the states an accepted or confirmed booking may
// not overlap for the same therapist.
var TimeConflictStatuses = []Status{StatusConfirmed, StatusInProgress}

// HoldingStatuses are the states whose bookings keep their slots booked.
var HoldingStatuses = []Status{StatusAccepted, StatusConfirmed, StatusInProgress}

// SlotBooker marks availability slots as booked or free.
type SlotBooker interface {
	SetBooked(ctx context.Context, therapistID uuid.UUID, r interval.Range, booked bool) (int, error)
	// Free unmarks the slots overlapping r except those overlapping one of keep.
	Free(ctx context.Context, therapistID uuid.UUID, r interval.Range, keep []interval.Range) (int, error)
}

// Guard enforces the no-double-booking rule on state changes. Callers hold
// the therapist lock and run Guard methods inside one transaction.
type Guard struct {
	repo  Repository
	slots SlotBooker
	loc   *time.Location
}

func NewGuard(repo Repository, slots SlotBooker, loc *time.Location) *Guard {
	if loc == nil {
		loc = time.UTC
	}
	return &Guard{repo: repo, slots: slots, loc: loc}
}

// CheckAndTransition moves the booking into accepted or confirmed after
// verifying that therapistID owns it and has no confirmed or in-progress
// booking overlapping it. Overlapping slots are marked booked.
func (g *Guard) CheckAndTransition(ctx context.Context, bookingID, therapistID uuid.UUID, next Status) (*Booking, error) {
	if next != StatusAccepted && next != StatusConfirmed {
		return nil, apperr.Validation("conflict check applies to accepted and confirmed only, got %s", next)
	}
	b, err := g.repo.GetForUpdate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.AssignedTo(therapistID) {
		return nil, apperr.Forbidden("booking is not assigned to you")
	}
	if !CanTransition(b.Status, next) {
		return nil, apperr.Validation("cannot change booking from %s to %s", b.Status, next)
	}

	others, err := g.repo.FindOverlapping(ctx, therapistID, b.Range(), TimeConflictStatuses, b.ID)
	if err != nil {
		return nil, err
	}
	if len(others) > 0 {
		return nil, apperr.Conflict("conflict: already a confirmed booking at %s, reject one of the bookings first",
			others[0].StartTime.In(g.loc).Format("2006-01-02 15:04"))
	}

	if err := g.repo.UpdateStatus(ctx, b.ID, next, nil); err != nil {
		return nil, err
	}
	if _, err := g.slots.SetBooked(ctx, therapistID, b.Range(), true); err != nil {
		return nil, err
	}
	b.Status = next
	return b, nil
}

// Release frees the slots overlapping b. Slots that another accepted,
// confirmed or in-progress booking of the therapist overlaps stay booked.
func (g *Guard) Release(ctx context.Context, b *Booking) error {
	if b.TherapistID == nil {
		return nil
	}
	holding, err := g.repo.FindOverlapping(ctx, *b.TherapistID, b.Range(), HoldingStatuses, b.ID)
	if err != nil {
		return err
	}
	keep := make([]interval.Range, len(holding))
	for i, o := range holding {
		keep[i] = o.Range()
	}
	_, err = g.slots.Free(ctx, *b.TherapistID, b.Range(), keep)
	return err
}

// CancellationOutcome decides the status of a customer cancellation. Within
// CancellationWindow of the start, boundary included, it is late and
// cancelled; earlier cancellations are refunded.
func CancellationOutcome(start, now time.Time) (Status, bool) {
	if start.Sub(now) <= CancellationWindow {
		return StatusCancelled, true
	}
	return StatusRefunded, false
}
