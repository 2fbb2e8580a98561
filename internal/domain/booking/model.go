package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/islandmassage/booking/internal/platform/geo"
	"github.com/islandmassage/booking/internal/platform/interval"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusConfirmed  Status = "confirmed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusInProgress Status = "in_progress"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

const (
	SourceGeolocation = "geolocation"
	SourceManual      = "manual"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusRejected},
	StatusAccepted:   {StatusConfirmed, StatusCancelled, StatusRefunded},
	StatusConfirmed:  {StatusCancelled, StatusRefunded},
	StatusInProgress: {StatusCancelled, StatusRefunded},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusRefunded
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusConfirmed, StatusRejected,
		StatusCancelled, StatusRefunded, StatusInProgress:
		return true
	}
	return false
}

// Booking is a persisted booking request.
type Booking struct {
	ID                  uuid.UUID     `db:"id" json:"id"`
	CustomerID          *uuid.UUID    `db:"customer_id" json:"customer_id,omitempty"`
	ServiceID           int64         `db:"service_id" json:"service_id"`
	TherapistID         *uuid.UUID    `db:"therapist_id" json:"therapist_id"`
	AddressID           *uuid.UUID    `db:"address_id" json:"address_id,omitempty"`
	StartTime           time.Time     `db:"start_time" json:"start_time"`
	EndTime             time.Time     `db:"end_time" json:"end_time"`
	Price               int64         `db:"price" json:"price"`
	Notes               *string       `db:"notes" json:"notes,omitempty"`
	Status              Status        `db:"status" json:"status"`
	PaymentStatus       PaymentStatus `db:"payment_status" json:"payment_status"`
	Latitude            float64       `db:"latitude" json:"latitude"`
	Longitude           float64       `db:"longitude" json:"longitude"`
	LocationLabel       *string       `db:"location_label" json:"location_label,omitempty"`
	LocationSource      string        `db:"location_source" json:"location_source"`
	StripePaymentIntent *string       `db:"stripe_payment_intent" json:"-"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

func (b *Booking) Range() interval.Range { return interval.New(b.StartTime, b.EndTime) }

// AssignedTo reports whether therapistID is the booking's therapist.
func (b *Booking) AssignedTo(therapistID uuid.UUID) bool {
	return b.TherapistID != nil && *b.TherapistID == therapistID
}

// Address is the place a booking happens at.
type Address struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	UserID           *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Label            string     `db:"label" json:"label"`
	GooglePlaceID    string     `db:"google_place_id" json:"google_place_id"`
	FormattedAddress string     `db:"formatted_address" json:"formatted_address"`
	Latitude         float64    `db:"latitude" json:"latitude"`
	Longitude        float64    `db:"longitude" json:"longitude"`
}

// Location is the customer's position as captured by the booking form.
type Location struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Label            *string  `json:"label,omitempty"`
	Source           string   `json:"source"`
	GooglePlaceID    *string  `json:"googlePlaceId,omitempty"`
	FormattedAddress *string  `json:"formattedAddress,omitempty"`
}

func (l Location) Point() geo.Point { return geo.Point{Lat: l.Latitude, Lng: l.Longitude} }

// Payload is the booking intake body.
type Payload struct {
	Location    Location `json:"location"`
	ServiceID   int64    `json:"serviceId"`
	ScheduledAt string   `json:"scheduledAt"`
	Notes       *string  `json:"notes,omitempty"`
}

type CreateResult struct {
	BookingID   uuid.UUID  `json:"bookingId"`
	TherapistID *uuid.UUID `json:"therapistId"`
	Status      Status     `json:"status"`
}

type CancelResult struct {
	Status Status `json:"status"`
	Late   bool   `json:"late"`
}

// StatusInput is the body of PATCH /therapist/bookings/:id/status.
type StatusInput struct {
	Status Status `json:"status"`
}

// AssignInput is the body of POST /admin/bookings/:id/assign.
type AssignInput struct {
	TherapistID uuid.UUID `json:"therapist_id"`
}
