package catalog

import "time"

// Prices are whole Thai baht.
const (
	FallbackPrice           int64 = 1500
	FallbackDurationMinutes       = 60
)

// Offering is a bookable massage service.
type Offering struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     *string   `db:"description" json:"description,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	BasePrice       int64     `db:"base_price" json:"base_price"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Quote is the price and length a booking of a service is persisted with.
type Quote struct {
	ServiceID int64
	Name      string
	Duration  time.Duration
	Price     int64
	Fallback  bool
}
