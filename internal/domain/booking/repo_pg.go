package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/interval"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `id, customer_id, service_id, therapist_id, address_id, start_time, end_time, price, notes,
	status, payment_status, latitude, longitude, location_label, location_source, stripe_payment_intent,
	created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.CustomerID, &b.ServiceID, &b.TherapistID, &b.AddressID,
		&b.StartTime, &b.EndTime, &b.Price, &b.Notes, &b.Status, &b.PaymentStatus,
		&b.Latitude, &b.Longitude, &b.LocationLabel, &b.LocationSource, &b.StripePaymentIntent,
		&b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

// mapError reports a violation of the double-booking exclusion constraint as
// a conflict naming the booking.
func mapError(err error, what string, args ...interface{}) error {
	if db.IsConstraint(err, db.ConstraintNoDoubleBooking) {
		return apperr.Conflict("therapist already has a confirmed booking in this time range")
	}
	return db.MapError(err, what, args...)
}

func (r *repoPG) Create(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO bookings (id, customer_id, service_id, therapist_id, address_id, start_time, end_time,
			price, notes, status, payment_status, latitude, longitude, location_label, location_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		b.ID, b.CustomerID, b.ServiceID, b.TherapistID, b.AddressID, b.StartTime, b.EndTime,
		b.Price, b.Notes, b.Status, b.PaymentStatus, b.Latitude, b.Longitude, b.LocationLabel, b.LocationSource,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return mapError(err, "create booking")
}

func (r *repoPG) CreateAddress(ctx context.Context, a *Address) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO addresses (id, user_id, label, google_place_id, formatted_address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.Label, a.GooglePlaceID, a.FormattedAddress, a.Latitude, a.Longitude)
	return db.MapError(err, "create address")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cols+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "booking %s", id)
	}
	return b, nil
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cols+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, db.MapError(err, "booking %s", id)
	}
	return b, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, payment *PaymentStatus) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bookings SET status = $2, payment_status = COALESCE($3, payment_status), updated_at = NOW()
		WHERE id = $1`, id, status, payment)
	if err != nil {
		return mapError(err, "update booking %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking %s not found", id)
	}
	return nil
}

func (r *repoPG) SetPaymentStatus(ctx context.Context, id uuid.UUID, payment PaymentStatus, intentID string) error {
	var intent *string
	if intentID != "" {
		intent = &intentID
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bookings SET payment_status = $2,
			stripe_payment_intent = COALESCE($3, stripe_payment_intent), updated_at = NOW()
		WHERE id = $1`, id, payment, intent)
	if err != nil {
		return db.MapError(err, "update payment of booking %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking %s not found", id)
	}
	return nil
}

func (r *repoPG) Assign(ctx context.Context, id, therapistID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE bookings SET therapist_id = $2, updated_at = NOW()
		WHERE id = $1 AND therapist_id IS NULL AND status = 'pending'`, id, therapistID)
	if err != nil {
		return mapError(err, "assign booking %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Validation("booking %s is not pending and unassigned", id)
	}
	return nil
}

func (r *repoPG) FindOverlapping(ctx context.Context, therapistID uuid.UUID, rng interval.Range, statuses []Status, exclude uuid.UUID) ([]*Booking, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+cols+` FROM bookings
		WHERE therapist_id = $1 AND status = ANY($2) AND id <> $3
		  AND start_time < $5 AND end_time > $4
		ORDER BY start_time`, therapistID, names, exclude, rng.Start, rng.End)
	if err != nil {
		return nil, db.MapError(err, "find overlapping bookings")
	}
	return collect(rows)
}

func (r *repoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "count bookings")
	}
	rows, err := conn.Query(ctx, `SELECT `+cols+` FROM bookings WHERE `+column+` = $1
		ORDER BY start_time DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, "list bookings")
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return r.list(ctx, "customer_id", customerID, limit, offset)
}

func (r *repoPG) ListByTherapist(ctx context.Context, therapistID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return r.list(ctx, "therapist_id", therapistID, limit, offset)
}

func collect(rows pgx.Rows) ([]*Booking, error) {
	defer rows.Close()
	items := []*Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, db.MapError(err, "scan booking")
		}
		items = append(items, b)
	}
	return items, db.MapError(rows.Err(), "list bookings")
}

// Calendar answers slot-creation overlap queries from the bookings table.
type Calendar struct {
	repo Repository
}

func NewCalendar(repo Repository) *Calendar { return &Calendar{repo: repo} }

func (c *Calendar) OverlappingStart(ctx context.Context, therapistID uuid.UUID, r interval.Range, statuses []string) (*time.Time, error) {
	st := make([]Status, len(statuses))
	for i, s := range statuses {
		st[i] = Status(s)
	}
	found, err := c.repo.FindOverlapping(ctx, therapistID, r, st, uuid.Nil)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	start := found[0].StartTime
	return &start, nil
}
