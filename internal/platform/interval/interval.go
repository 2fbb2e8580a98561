// Package interval implements half-open time ranges.
package interval

import (
	"time"

	"github.com/islandmassage/booking/internal/platform/apperr"
)

// Range is the half-open interval [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a Range without validating it.
func New(start, end time.Time) Range { return Range{Start: start, End: end} }

// Validate requires both bounds and Start strictly before End.
func (r Range) Validate() error {
	if r.Start.IsZero() {
		return apperr.Validation("start is required")
	}
	if r.End.IsZero() {
		return apperr.Validation("end is required")
	}
	if !r.Start.Before(r.End) {
		return apperr.Validation("start must be before end")
	}
	return nil
}

// Overlaps reports whether r and o share any instant. Touching endpoints do
// not overlap.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Equal reports whether both bounds denote the same instants.
func (r Range) Equal(o Range) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

func (r Range) Duration() time.Duration { return r.End.Sub(r.Start) }

// Key identifies the exact pair of instants in r, independent of location.
type Key struct {
	Start int64
	End   int64
}

func (r Range) Key() Key {
	return Key{Start: r.Start.UnixNano(), End: r.End.UnixNano()}
}
