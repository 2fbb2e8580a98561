package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/islandmassage/booking/internal/platform/interval"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	CreateAddress(ctx context.Context, a *Address) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// GetForUpdate loads the booking and locks its row for the surrounding
	// transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, payment *PaymentStatus) error
	SetPaymentStatus(ctx context.Context, id uuid.UUID, payment PaymentStatus, intentID string) error
	Assign(ctx context.Context, id, therapistID uuid.UUID) error
	// FindOverlapping returns the therapist's bookings in statuses whose range
	// overlaps r, excluding exclude, ordered by start.
	FindOverlapping(ctx context.Context, therapistID uuid.UUID, r interval.Range, statuses []Status, exclude uuid.UUID) ([]*Booking, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Booking, int, error)
	ListByTherapist(ctx context.Context, therapistID uuid.UUID, limit, offset int) ([]*Booking, int, error)
}
