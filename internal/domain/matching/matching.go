// Package matching picks the therapist for a booking request: the nearest
// qualified therapist whose travel radius covers the customer, best rating
// first on ties.
package matching

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/geo"
)

// DefaultRadiusKm applies to candidates without a positive travel radius.
const DefaultRadiusKm = 10.0

// Candidate is the read-only projection of a therapist considered for a
// booking.
type Candidate struct {
	TherapistID    uuid.UUID
	TravelRadiusKm float64
	AvgRating      float64
	Location       geo.Point
}

// Ranked is a candidate within range, with its distance to the customer.
type Ranked struct {
	Candidate
	DistanceKm float64
}

// CandidateRepository lists therapists with an active offering of serviceID,
// approved onboarding, an active profile and stored coordinates.
type CandidateRepository interface {
	ListCandidates(ctx context.Context, serviceID int64) ([]Candidate, error)
}

// Rank keeps the candidates whose radius covers p and orders them by distance
// ascending, then rating descending.
func Rank(p geo.Point, candidates []Candidate) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		radius := c.TravelRadiusKm
		if radius <= 0 {
			radius = DefaultRadiusKm
		}
		d := geo.DistanceKm(p, c.Location)
		if d > radius {
			continue
		}
		ranked = append(ranked, Ranked{Candidate: c, DistanceKm: d})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].DistanceKm != ranked[j].DistanceKm {
			return ranked[i].DistanceKm < ranked[j].DistanceKm
		}
		return ranked[i].AvgRating > ranked[j].AvgRating
	})
	return ranked
}

type Matcher struct {
	repo   CandidateRepository
	logger zerolog.Logger
}

func NewMatcher(repo CandidateRepository, logger zerolog.Logger) *Matcher {
	return &Matcher{repo: repo, logger: logger}
}

// Match returns the best therapist for a booking of serviceID at p, or nil
// when nobody qualifies.
func (m *Matcher) Match(ctx context.Context, p geo.Point, serviceID int64) (*uuid.UUID, error) {
	candidates, err := m.repo.ListCandidates(ctx, serviceID)
	if err != nil {
		return nil, apperr.Upstream(err, "list candidates for service %d", serviceID)
	}

	ranked := Rank(p, candidates)
	if len(ranked) == 0 {
		m.logger.Info().Int64("service_id", serviceID).Int("candidates", len(candidates)).Msg("no therapist in range")
		return nil, nil
	}

	best := ranked[0]
	m.logger.Info().
		Int64("service_id", serviceID).
		Str("therapist_id", best.TherapistID.String()).
		Float64("distance_km", best.DistanceKm).
		Float64("rating", best.AvgRating).
		Int("in_range", len(ranked)).
		Msg("therapist matched")
	id := best.TherapistID
	return &id, nil
}
