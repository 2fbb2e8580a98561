package availability

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/interval"
	"github.com/islandmassage/booking/internal/platform/lock"
)

const (
	// MaxGenerateDays bounds the span of a single pattern expansion.
	MaxGenerateDays = 90
	maxSlotsPerCall = 100
)

// BlockingStatuses are the booking states a new slot may not overlap.
var BlockingStatuses = []string{"pending", "confirmed", "in_progress"}

type Service struct {
	slots    SlotRepository
	patterns PatternRepository
	bookings BookingCalendar
	tx       db.TxRunner
	locker   lock.Locker
	loc      *time.Location
	logger   zerolog.Logger
}

func NewService(slots SlotRepository, patterns PatternRepository, bookings BookingCalendar,
	tx db.TxRunner, locker lock.Locker, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		slots: slots, patterns: patterns, bookings: bookings,
		tx: tx, locker: locker, loc: loc, logger: logger,
	}
}

// Location is the time zone pattern times are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// withTherapist serializes fn with every other mutation of the therapist's
// calendar and runs it in one transaction.
func (s *Service) withTherapist(ctx context.Context, therapistID uuid.UUID, fn func(ctx context.Context) error) error {
	release, err := s.locker.Acquire(ctx, lock.TherapistKey(therapistID))
	if err != nil {
		return apperr.Upstream(err, "lock therapist %s", therapistID)
	}
	defer release()
	return s.tx.InTx(ctx, fn)
}

// -- Slots --

func (s *Service) ListSlots(ctx context.Context, therapistID uuid.UUID) ([]*Slot, error) {
	items, err := s.slots.ListByTherapist(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Slot{}
	}
	return items, nil
}

// CreateSlots adds ad-hoc slots. A range that overlaps a blocking booking, an
// existing slot, or another range of the same call is rejected with Conflict
// and nothing is inserted.
func (s *Service) CreateSlots(ctx context.Context, therapistID uuid.UUID, ranges []interval.Range) ([]*Slot, error) {
	if len(ranges) == 0 {
		return nil, apperr.Validation("at least one slot is required")
	}
	if len(ranges) > maxSlotsPerCall {
		return nil, apperr.Validation("at most %d slots per request", maxSlotsPerCall)
	}
	for i, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		for _, prev := range ranges[:i] {
			if r.Overlaps(prev) {
				return nil, apperr.Conflict("slots %s and %s overlap", fmtRange(prev), fmtRange(r))
			}
		}
	}

	var created []*Slot
	err := s.withTherapist(ctx, therapistID, func(ctx context.Context) error {
		for _, r := range ranges {
			start, err := s.bookings.OverlappingStart(ctx, therapistID, r, BlockingStatuses)
			if err != nil {
				return err
			}
			if start != nil {
				return apperr.Conflict("slot %s conflicts with a booking starting at %s",
					fmtRange(r), start.In(s.loc).Format(time.RFC3339))
			}
			existing, err := s.slots.ListOverlapping(ctx, therapistID, r)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return apperr.Conflict("slot %s overlaps existing slot %s",
					fmtRange(r), fmtRange(existing[0].Range()))
			}
		}

		batch := make([]*Slot, len(ranges))
		for i, r := range ranges {
			batch[i] = &Slot{TherapistID: therapistID, StartTime: r.Start, EndTime: r.End}
		}
		var err error
		created, err = s.slots.CreateBatch(ctx, batch)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("therapist_id", therapistID.String()).Int("count", len(created)).Msg("slots created")
	return created, nil
}

// DeleteSlot removes an unbooked slot owned by therapistID.
func (s *Service) DeleteSlot(ctx context.Context, therapistID, slotID uuid.UUID) error {
	return s.withTherapist(ctx, therapistID, func(ctx context.Context) error {
		slot, err := s.slots.GetByID(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.TherapistID != therapistID {
			return apperr.Forbidden("slot belongs to another therapist")
		}
		if slot.IsBooked {
			return apperr.Validation("cannot delete booked slot")
		}
		return s.slots.Delete(ctx, slotID)
	})
}

// SetBooked marks every slot of therapistID overlapping r. Callers hold the
// therapist lock and transaction.
func (s *Service) SetBooked(ctx context.Context, therapistID uuid.UUID, r interval.Range, booked bool) (int, error) {
	n, err := s.slots.SetBookedInRange(ctx, therapistID, r, booked)
	if err != nil {
		return 0, err
	}
	s.logger.Debug().Str("therapist_id", therapistID.String()).Bool("booked", booked).Int("slots", n).Msg("slots updated")
	return n, nil
}

// Free unmarks the booked slots of therapistID overlapping r, leaving slots
// that overlap one of keep booked. Callers hold the therapist lock and
// transaction.
func (s *Service) Free(ctx context.Context, therapistID uuid.UUID, r interval.Range, keep []interval.Range) (int, error) {
	if len(keep) == 0 {
		return s.SetBooked(ctx, therapistID, r, false)
	}
	slots, err := s.slots.ListOverlapping(ctx, therapistID, r)
	if err != nil {
		return 0, err
	}
	var ids []uuid.UUID
	for _, sl := range slots {
		if sl.IsBooked && !overlapsAny(sl.Range(), keep) {
			ids = append(ids, sl.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.slots.SetBookedByID(ctx, ids, false)
	if err != nil {
		return 0, err
	}
	s.logger.Debug().Str("therapist_id", therapistID.String()).Int("slots", n).Int("kept", len(slots)-n).Msg("slots freed")
	return n, nil
}

func overlapsAny(r interval.Range, others []interval.Range) bool {
	for _, o := range others {
		if r.Overlaps(o) {
			return true
		}
	}
	return false
}

// -- Patterns --

func (s *Service) ListPatterns(ctx context.Context, therapistID uuid.UUID) ([]*Pattern, error) {
	items, err := s.patterns.ListActive(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Pattern{}
	}
	return items, nil
}

func (s *Service) CreatePattern(ctx context.Context, therapistID uuid.UUID, in PatternInput) (*Pattern, error) {
	if in.DayOfWeek == nil {
		return nil, apperr.Validation("day_of_week is required")
	}
	if *in.DayOfWeek < 0 || *in.DayOfWeek > 6 {
		return nil, apperr.Validation("day_of_week must be between 0 and 6")
	}
	if in.StartTime == "" || in.EndTime == "" {
		return nil, apperr.Validation("start_time and end_time are required")
	}
	start, err := ParseClockTime(in.StartTime)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	end, err := ParseClockTime(in.EndTime)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if start >= end {
		return nil, apperr.Validation("start_time must be before end_time")
	}
	from, err := parseOptionalDate(in.ValidFrom, "valid_from")
	if err != nil {
		return nil, err
	}
	until, err := parseOptionalDate(in.ValidUntil, "valid_until")
	if err != nil {
		return nil, err
	}
	if from != nil && until != nil && until.Before(*from) {
		return nil, apperr.Validation("valid_until must not be before valid_from")
	}

	p := &Pattern{
		TherapistID: therapistID,
		DayOfWeek:   *in.DayOfWeek,
		StartTime:   start,
		EndTime:     end,
		ValidFrom:   from,
		ValidUntil:  until,
	}
	if err := s.patterns.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePattern(ctx context.Context, therapistID, patternID uuid.UUID) error {
	p, err := s.patterns.GetByID(ctx, patternID)
	if err != nil {
		return err
	}
	if p.TherapistID != therapistID {
		return apperr.Forbidden("pattern belongs to another therapist")
	}
	return s.patterns.Delete(ctx, patternID)
}

// GenerateSlots expands the therapist's active patterns into concrete slots
// for every day in [startDate, endDate]. Slots whose exact range already
// exists are skipped.
func (s *Service) GenerateSlots(ctx context.Context, therapistID uuid.UUID, startDate, endDate time.Time) (*GenerateResult, error) {
	first := midnight(startDate, s.loc)
	last := midnight(endDate, s.loc)
	if !first.Before(last) {
		return nil, apperr.Validation("start_date must be before end_date")
	}
	if days := spanDays(first, last); days > MaxGenerateDays {
		return nil, apperr.Validation("maximum range is %d days", MaxGenerateDays)
	}

	var result *GenerateResult
	err := s.withTherapist(ctx, therapistID, func(ctx context.Context) error {
		patterns, err := s.patterns.ListActive(ctx, therapistID)
		if err != nil {
			return err
		}
		if len(patterns) == 0 {
			return apperr.NotFound("no active patterns")
		}

		candidates := Expand(patterns, first, last, s.loc)
		if len(candidates) == 0 {
			result = &GenerateResult{Slots: []*Slot{}}
			return nil
		}

		envelope := interval.New(candidates[0].Start, candidates[0].End)
		for _, c := range candidates[1:] {
			if c.End.After(envelope.End) {
				envelope.End = c.End
			}
		}
		existing, err := s.slots.ListOverlapping(ctx, therapistID, envelope)
		if err != nil {
			return err
		}
		taken := make(map[interval.Key]bool, len(existing))
		for _, e := range existing {
			taken[e.Range().Key()] = true
		}

		var batch []*Slot
		for _, c := range candidates {
			if taken[c.Key()] {
				continue
			}
			batch = append(batch, &Slot{TherapistID: therapistID, StartTime: c.Start, EndTime: c.End})
		}
		created, err := s.slots.CreateBatch(ctx, batch)
		if err != nil {
			return err
		}
		result = &GenerateResult{CreatedCount: len(created), Slots: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("therapist_id", therapistID.String()).
		Str("from", first.Format(DateLayout)).
		Str("to", last.Format(DateLayout)).
		Int("created", result.CreatedCount).
		Msg("slots generated from patterns")
	return result, nil
}

// Expand returns the ranges produced by patterns for each calendar day in
// [first, last], ordered by start, with exact duplicates removed.
func Expand(patterns []*Pattern, first, last time.Time, loc *time.Location) []interval.Range {
	seen := make(map[interval.Key]bool)
	var out []interval.Range
	for d := first; !d.After(last); d = nextDay(d, loc) {
		for _, p := range patterns {
			if !p.IsActive || !p.AppliesOn(d) {
				continue
			}
			r := interval.New(p.StartTime.On(d, loc), p.EndTime.On(d, loc))
			if seen[r.Key()] {
				continue
			}
			seen[r.Key()] = true
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func nextDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// spanDays counts whole calendar days from first to last.
func spanDays(first, last time.Time) int {
	a := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// ParseDate reads a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func parseOptionalDate(s *string, field string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, *s)
	if err != nil {
		return nil, apperr.Validation("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func fmtRange(r interval.Range) string {
	return r.Start.Format(time.RFC3339) + "/" + r.End.Format(time.RFC3339)
}
