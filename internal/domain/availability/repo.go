package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/islandmassage/booking/internal/platform/interval"
)

type SlotRepository interface {
	ListByTherapist(ctx context.Context, therapistID uuid.UUID) ([]*Slot, error)
	// ListOverlapping returns the therapist's slots overlapping r, ordered by start.
	ListOverlapping(ctx context.Context, therapistID uuid.UUID, r interval.Range) ([]*Slot, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// CreateBatch inserts slots, skipping rows whose (therapist, start, end)
	// already exists, and returns the inserted rows.
	CreateBatch(ctx context.Context, slots []*Slot) ([]*Slot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetBookedInRange(ctx context.Context, therapistID uuid.UUID, r interval.Range, booked bool) (int, error)
	SetBookedByID(ctx context.Context, ids []uuid.UUID, booked bool) (int, error)
}

type PatternRepository interface {
	ListActive(ctx context.Context, therapistID uuid.UUID) ([]*Pattern, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Pattern, error)
	Create(ctx context.Context, p *Pattern) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// BookingCalendar exposes the therapist's bookings to slot creation.
type BookingCalendar interface {
	// OverlappingStart returns the start of the earliest booking of
	// therapistID in one of statuses overlapping r, or nil when there is none.
	OverlappingStart(ctx context.Context, therapistID uuid.UUID, r interval.Range, statuses []string) (*time.Time, error)
}
