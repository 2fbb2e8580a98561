package therapist

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/geo"
)

const (
	maxBioLength     = 2000
	maxLanguages     = 10
	maxTravelRadius  = 100.0
	maxExperienceYrs = 80
)

// Onboarding states mirrored from the account profile.
const (
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusRejected      = "rejected"
)

type Service struct {
	repo       Repository
	onboarding Onboarding
	tx         db.TxRunner
	logger     zerolog.Logger
}

func NewService(repo Repository, onboarding Onboarding, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, onboarding: onboarding, tx: tx, logger: logger}
}

func (s *Service) ListPublic(ctx context.Context, limit, offset int) ([]*Therapist, int, error) {
	return s.repo.ListPublic(ctx, limit, offset)
}

// GetPublic returns an approved, active therapist. Others are reported as
// not found.
func (s *Service) GetPublic(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OnboardingStatus != StatusApproved || !t.IsActive {
		return nil, apperr.NotFound("therapist %s not found", id)
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	return s.repo.GetByID(ctx, id)
}

// UpsertProfile stores the therapist-editable profile. Profiles that are not
// yet approved are queued for review.
func (s *Service) UpsertProfile(ctx context.Context, id uuid.UUID, in ProfileInput) (*Therapist, error) {
	if in.Bio != nil && len(*in.Bio) > maxBioLength {
		return nil, apperr.Validation("bio must be at most %d characters", maxBioLength)
	}
	if len(in.Languages) > maxLanguages {
		return nil, apperr.Validation("at most %d languages", maxLanguages)
	}
	if in.ExperienceYears != nil && (*in.ExperienceYears < 0 || *in.ExperienceYears > maxExperienceYrs) {
		return nil, apperr.Validation("experience_years must be between 0 and %d", maxExperienceYrs)
	}

	var out *Therapist
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpsertProfile(ctx, id, in); err != nil {
			return err
		}
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.OnboardingStatus != StatusApproved {
			if err := s.onboarding.SetOnboardingStatus(ctx, id, StatusPendingReview); err != nil {
				return err
			}
			t.OnboardingStatus = StatusPendingReview
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetServices makes serviceIDs the therapist's active offerings; every other
// offering is deactivated.
func (s *Service) SetServices(ctx context.Context, id uuid.UUID, serviceIDs []int64) ([]int64, error) {
	seen := make(map[int64]bool, len(serviceIDs))
	ids := make([]int64, 0, len(serviceIDs))
	for _, sid := range serviceIDs {
		if sid <= 0 {
			return nil, apperr.Validation("service ids must be positive")
		}
		if !seen[sid] {
			seen[sid] = true
			ids = append(ids, sid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.SetServices(ctx, id, ids)
	}); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Service) SetLocation(ctx context.Context, id uuid.UUID, in LocationInput) error {
	p := geo.Point{Lat: in.Latitude, Lng: in.Longitude}
	if !p.Valid() {
		return apperr.Validation("invalid coordinates")
	}
	if in.TravelRadiusKm != nil && (*in.TravelRadiusKm <= 0 || *in.TravelRadiusKm > maxTravelRadius) {
		return apperr.Validation("travel_radius_km must be in (0, %.0f]", maxTravelRadius)
	}
	return s.repo.SetLocation(ctx, id, p, in.TravelRadiusKm)
}

func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Therapist, int, error) {
	if status == "" {
		status = StatusPendingReview
	}
	switch status {
	case "new", StatusPendingReview, StatusApproved, StatusRejected:
	default:
		return nil, 0, apperr.Validation("invalid status: %s", status)
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	return s.review(ctx, id, StatusApproved)
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) error {
	return s.review(ctx, id, StatusRejected)
}

func (s *Service) review(ctx context.Context, id uuid.UUID, status string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.onboarding.SetOnboardingStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info().Str("therapist_id", id.String()).Str("status", status).Msg("therapist reviewed")
	return nil
}
