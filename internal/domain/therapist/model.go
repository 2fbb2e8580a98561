package therapist

import (
	"time"

	"github.com/google/uuid"

	"github.com/islandmassage/booking/internal/platform/geo"
)

// DefaultTravelRadiusKm applies when a therapist has not set a radius.
const DefaultTravelRadiusKm = 10.0

// ServiceRef is an offered service as listed on a therapist.
type ServiceRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Therapist is a therapist profile joined with the owning account.
type Therapist struct {
	ID               uuid.UUID    `db:"therapist_id" json:"id"`
	FullName         *string      `db:"full_name" json:"full_name,omitempty"`
	AvatarURL        *string      `db:"avatar_url" json:"avatar_url,omitempty"`
	OnboardingStatus string       `db:"onboarding_status" json:"onboarding_status"`
	Bio              *string      `db:"bio" json:"bio,omitempty"`
	Languages        []string     `db:"languages" json:"languages"`
	ExperienceYears  *int         `db:"experience_years" json:"experience_years,omitempty"`
	TravelRadiusKm   *float64     `db:"travel_radius_km" json:"travel_radius_km,omitempty"`
	AvgRating        float64      `db:"avg_rating" json:"avg_rating"`
	TotalBookings    int          `db:"total_bookings" json:"total_bookings"`
	PortfolioURL     *string      `db:"portfolio_url" json:"portfolio_url,omitempty"`
	Latitude         *float64     `db:"latitude" json:"latitude,omitempty"`
	Longitude        *float64     `db:"longitude" json:"longitude,omitempty"`
	IsActive         bool         `db:"is_active" json:"is_active"`
	Services         []ServiceRef `json:"services"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// Location returns the stored coordinates, or false when unset.
func (t *Therapist) Location() (geo.Point, bool) {
	if t.Latitude == nil || t.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *t.Latitude, Lng: *t.Longitude}, true
}

// ProfileInput is the therapist-editable part of the profile.
type ProfileInput struct {
	Bio             *string  `json:"bio"`
	Languages       []string `json:"languages"`
	ExperienceYears *int     `json:"experience_years"`
	PortfolioURL    *string  `json:"portfolio_url"`
	IsActive        *bool    `json:"is_active"`
}

// LocationInput is the body of PUT /therapist/location.
type LocationInput struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	TravelRadiusKm *float64 `json:"travel_radius_km"`
}

// ServicesInput is the body of PUT /therapist/services.
type ServicesInput struct {
	ServiceIDs []int64 `json:"service_ids"`
}
