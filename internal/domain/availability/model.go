package availability

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/islandmassage/booking/internal/platform/interval"
)

// Slot is a dated range during which a therapist is available.
type Slot struct {
	ID          uuid.UUID `db:"id" json:"id"`
	TherapistID uuid.UUID `db:"therapist_id" json:"therapist_id"`
	StartTime   time.Time `db:"start_time" json:"start_time"`
	EndTime     time.Time `db:"end_time" json:"end_time"`
	IsBooked    bool      `db:"is_booked" json:"is_booked"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (s *Slot) Range() interval.Range { return interval.New(s.StartTime, s.EndTime) }

// ClockTime is a time of day with second precision.
type ClockTime int

const day = 24 * 60 * 60

// ParseClockTime accepts "HH:MM" and "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(c)/3600, int(c)%3600/60, int(c)%60)
}

// On returns the instant of c on the calendar day of date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/3600, int(c)%3600/60, int(c)%60, 0, loc)
}

func (c ClockTime) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ScanTime implements pgtype.TimeScanner for TIME columns.
func (c *ClockTime) ScanTime(v pgtype.Time) error {
	if !v.Valid {
		return fmt.Errorf("cannot scan NULL into ClockTime")
	}
	*c = ClockTime(v.Microseconds / int64(time.Second/time.Microsecond) % day)
	return nil
}

// TimeValue implements pgtype.TimeValuer.
func (c ClockTime) TimeValue() (pgtype.Time, error) {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Second/time.Microsecond), Valid: true}, nil
}

// Pattern is a weekly recurring availability rule. DayOfWeek follows
// time.Weekday (0 = Sunday).
type Pattern struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TherapistID uuid.UUID  `db:"therapist_id" json:"therapist_id"`
	DayOfWeek   int        `db:"day_of_week" json:"day_of_week"`
	StartTime   ClockTime  `db:"start_time" json:"start_time"`
	EndTime     ClockTime  `db:"end_time" json:"end_time"`
	ValidFrom   *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil  *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// AppliesOn reports whether the pattern produces a slot on the calendar day
// of date.
func (p *Pattern) AppliesOn(date time.Time) bool {
	if time.Weekday(p.DayOfWeek) != date.Weekday() {
		return false
	}
	d := dateKey(date)
	if p.ValidFrom != nil && d < dateKey(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && d > dateKey(*p.ValidUntil) {
		return false
	}
	return true
}

func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// PatternInput is the body of POST /therapist/availability/patterns.
type PatternInput struct {
	DayOfWeek  *int    `json:"day_of_week"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	ValidFrom  *string `json:"valid_from"`
	ValidUntil *string `json:"valid_until"`
}

// SlotsInput is the body of POST /therapist/availability/slots.
type SlotsInput struct {
	Slots []interval.Range `json:"slots"`
}

// GenerateInput is the body of POST .../patterns/generate-slots.
type GenerateInput struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// GenerateResult reports the slots created by pattern expansion.
type GenerateResult struct {
	CreatedCount int     `json:"created_count"`
	Slots        []*Slot `json:"slots"`
}

const DateLayout = "2006-01-02"
