package account

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/auth"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// EnsureProfile creates the profile of a first-time user. Self-service sign-up
// may only pick customer or therapist; an existing profile is returned as is.
func (s *Service) EnsureProfile(ctx context.Context, userID uuid.UUID, email string, req EnsureRequest) (*Profile, bool, error) {
	if userID == uuid.Nil {
		return nil, false, apperr.Unauthorized("authentication required")
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	switch role {
	case "":
		role = auth.RoleCustomer
	case auth.RoleCustomer, auth.RoleTherapist:
	default:
		return nil, false, apperr.Validation("role must be customer or therapist")
	}
	if len(req.FullName) > 200 {
		return nil, false, apperr.Validation("full_name must be at most 200 characters")
	}

	p, created, err := s.repo.Create(ctx, &Profile{
		ID:               userID,
		Role:             role,
		FullName:         strPtr(strings.TrimSpace(req.FullName)),
		Email:            strPtr(email),
		Phone:            strPtr(strings.TrimSpace(req.Phone)),
		OnboardingStatus: OnboardingNew,
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info().Str("user_id", userID.String()).Str("role", role).Msg("profile created")
	}
	return p, created, nil
}

// RoleOf returns the stored role of userID.
func (s *Service) RoleOf(ctx context.Context, userID uuid.UUID) (string, error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

// Contact returns the name, email and phone of userID.
func (s *Service) Contact(ctx context.Context, userID uuid.UUID) (*Contact, error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Contact{Name: deref(p.FullName), Email: deref(p.Email), Phone: deref(p.Phone)}, nil
}

// SetOnboardingStatus moves a profile through therapist onboarding.
func (s *Service) SetOnboardingStatus(ctx context.Context, id uuid.UUID, status string) error {
	switch status {
	case OnboardingNew, OnboardingPendingReview, OnboardingApproved, OnboardingRejected:
	default:
		return apperr.Validation("invalid onboarding status: %s", status)
	}
	return s.repo.SetOnboardingStatus(ctx, id, status)
}
