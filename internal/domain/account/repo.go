package account

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	// Create inserts p unless a profile with the same id exists, and returns
	// the stored row either way.
	Create(ctx context.Context, p *Profile) (*Profile, bool, error)
	SetOnboardingStatus(ctx context.Context, id uuid.UUID, status string) error
}
