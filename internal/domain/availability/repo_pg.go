package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/interval"
)

// -- Slot --

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

const slotCols = `id, therapist_id, start_time, end_time, is_booked, created_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.TherapistID, &s.StartTime, &s.EndTime, &s.IsBooked, &s.CreatedAt)
	return &s, err
}

func (r *slotRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Slot, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, db.MapError(err, "list slots")
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, db.MapError(err, "scan slot")
		}
		items = append(items, s)
	}
	return items, db.MapError(rows.Err(), "list slots")
}

func (r *slotRepoPG) ListByTherapist(ctx context.Context, therapistID uuid.UUID) ([]*Slot, error) {
	return r.query(ctx, `SELECT `+slotCols+` FROM availability_slots
		WHERE therapist_id = $1 ORDER BY start_time`, therapistID)
}

func (r *slotRepoPG) ListOverlapping(ctx context.Context, therapistID uuid.UUID, rng interval.Range) ([]*Slot, error) {
	return r.query(ctx, `SELECT `+slotCols+` FROM availability_slots
		WHERE therapist_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time`, therapistID, rng.Start, rng.End)
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+slotCols+` FROM availability_slots WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "slot %s", id)
	}
	return s, nil
}

func (r *slotRepoPG) CreateBatch(ctx context.Context, slots []*Slot) ([]*Slot, error) {
	if len(slots) == 0 {
		return []*Slot{}, nil
	}
	b := &pgx.Batch{}
	for _, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		b.Queue(`INSERT INTO availability_slots (id, therapist_id, start_time, end_time, is_booked)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (therapist_id, start_time, end_time) DO NOTHING
			RETURNING `+slotCols,
			s.ID, s.TherapistID, s.StartTime, s.EndTime, s.IsBooked)
	}

	br := db.Conn(ctx, r.pool).SendBatch(ctx, b)
	defer br.Close()

	created := make([]*Slot, 0, len(slots))
	for range slots {
		s, err := scanSlot(br.QueryRow())
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, db.MapError(err, "create slots")
		}
		created = append(created, s)
	}
	return created, nil
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	return db.MapError(err, "delete slot %s", id)
}

func (r *slotRepoPG) SetBookedInRange(ctx context.Context, therapistID uuid.UUID, rng interval.Range, booked bool) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE availability_slots SET is_booked = $4
		WHERE therapist_id = $1 AND start_time < $3 AND end_time > $2`,
		therapistID, rng.Start, rng.End, booked)
	if err != nil {
		return 0, db.MapError(err, "update slots of %s", therapistID)
	}
	return int(tag.RowsAffected()), nil
}

func (r *slotRepoPG) SetBookedByID(ctx context.Context, ids []uuid.UUID, booked bool) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE availability_slots SET is_booked = $2 WHERE id = ANY($1)`, ids, booked)
	if err != nil {
		return 0, db.MapError(err, "update slots")
	}
	return int(tag.RowsAffected()), nil
}

// -- Pattern --

type patternRepoPG struct{ pool *pgxpool.Pool }

func NewPatternRepoPG(pool *pgxpool.Pool) PatternRepository { return &patternRepoPG{pool: pool} }

const patternCols = `id, therapist_id, day_of_week, start_time, end_time, valid_from, valid_until, is_active, created_at`

func scanPattern(row pgx.Row) (*Pattern, error) {
	var p Pattern
	err := row.Scan(&p.ID, &p.TherapistID, &p.DayOfWeek, &p.StartTime, &p.EndTime,
		&p.ValidFrom, &p.ValidUntil, &p.IsActive, &p.CreatedAt)
	return &p, err
}

func (r *patternRepoPG) ListActive(ctx context.Context, therapistID uuid.UUID) ([]*Pattern, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+patternCols+` FROM availability_patterns
		WHERE therapist_id = $1 AND is_active
		ORDER BY day_of_week, start_time`, therapistID)
	if err != nil {
		return nil, db.MapError(err, "list patterns")
	}
	defer rows.Close()
	var items []*Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, db.MapError(err, "scan pattern")
		}
		items = append(items, p)
	}
	return items, db.MapError(rows.Err(), "list patterns")
}

func (r *patternRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pattern, error) {
	p, err := scanPattern(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patternCols+` FROM availability_patterns WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "pattern %s", id)
	}
	return p, nil
}

func (r *patternRepoPG) Create(ctx context.Context, p *Pattern) error {
	p.ID = uuid.New()
	p.IsActive = true
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO availability_patterns (id, therapist_id, day_of_week, start_time, end_time, valid_from, valid_until, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		p.ID, p.TherapistID, p.DayOfWeek, p.StartTime, p.EndTime, dateArg(p.ValidFrom), dateArg(p.ValidUntil), p.IsActive,
	).Scan(&p.CreatedAt)
	return db.MapError(err, "create pattern")
}

func (r *patternRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM availability_patterns WHERE id = $1`, id)
	return db.MapError(err, "delete pattern %s", id)
}

func dateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(DateLayout)
}
