package therapist

import (
	"context"

	"github.com/google/uuid"

	"github.com/islandmassage/booking/internal/platform/geo"
)

type Repository interface {
	// ListPublic returns approved, active therapists.
	ListPublic(ctx context.Context, limit, offset int) ([]*Therapist, int, error)
	// GetByID returns the therapist regardless of onboarding state.
	GetByID(ctx context.Context, id uuid.UUID) (*Therapist, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Therapist, int, error)
	UpsertProfile(ctx context.Context, id uuid.UUID, in ProfileInput) error
	SetServices(ctx context.Context, id uuid.UUID, serviceIDs []int64) error
	SetLocation(ctx context.Context, id uuid.UUID, p geo.Point, radiusKm *float64) error
}

// Onboarding updates the onboarding state on the account profile.
type Onboarding interface {
	SetOnboardingStatus(ctx context.Context, id uuid.UUID, status string) error
}
