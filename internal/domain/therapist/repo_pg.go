package therapist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/geo"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `p.id, p.full_name, p.avatar_url, p.onboarding_status, tp.bio, tp.languages,
	tp.experience_years, tp.travel_radius_km, tp.avg_rating, tp.total_bookings, tp.portfolio_url,
	tp.latitude, tp.longitude, tp.is_active, tp.updated_at`

const from = ` FROM therapist_profiles tp JOIN profiles p ON p.id = tp.therapist_id`

func scanTherapist(row pgx.Row) (*Therapist, error) {
	var t Therapist
	err := row.Scan(&t.ID, &t.FullName, &t.AvatarURL, &t.OnboardingStatus, &t.Bio, &t.Languages,
		&t.ExperienceYears, &t.TravelRadiusKm, &t.AvgRating, &t.TotalBookings, &t.PortfolioURL,
		&t.Latitude, &t.Longitude, &t.IsActive, &t.UpdatedAt)
	return &t, err
}

func (r *repoPG) list(ctx context.Context, where string, limit, offset int, args ...interface{}) ([]*Therapist, int, error) {
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+from+` WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err, "count therapists")
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s%s WHERE %s ORDER BY tp.avg_rating DESC, p.id LIMIT $%d OFFSET $%d`,
		cols, from, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, db.MapError(err, "list therapists")
	}
	defer rows.Close()
	var items []*Therapist
	for rows.Next() {
		t, err := scanTherapist(rows)
		if err != nil {
			return nil, 0, db.MapError(err, "scan therapist")
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.MapError(err, "list therapists")
	}
	if err := r.attachServices(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) attachServices(ctx context.Context, items []*Therapist) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(items))
	byID := make(map[uuid.UUID]*Therapist, len(items))
	for i, t := range items {
		ids[i] = t.ID
		t.Services = []ServiceRef{}
		byID[t.ID] = t
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT ts.therapist_id, s.id, s.name
		FROM therapist_services ts JOIN services s ON s.id = ts.service_id
		WHERE ts.active AND s.active AND ts.therapist_id = ANY($1)
		ORDER BY s.id`, ids)
	if err != nil {
		return db.MapError(err, "list therapist services")
	}
	defer rows.Close()
	for rows.Next() {
		var tid uuid.UUID
		var ref ServiceRef
		if err := rows.Scan(&tid, &ref.ID, &ref.Name); err != nil {
			return db.MapError(err, "scan therapist service")
		}
		if t, ok := byID[tid]; ok {
			t.Services = append(t.Services, ref)
		}
	}
	return db.MapError(rows.Err(), "list therapist services")
}

func (r *repoPG) ListPublic(ctx context.Context, limit, offset int) ([]*Therapist, int, error) {
	return r.list(ctx, `p.onboarding_status = 'approved' AND tp.is_active`, limit, offset)
}

func (r *repoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Therapist, int, error) {
	return r.list(ctx, `p.onboarding_status = $1`, limit, offset, status)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	t, err := scanTherapist(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cols+from+` WHERE tp.therapist_id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "therapist %s", id)
	}
	if err := r.attachServices(ctx, []*Therapist{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repoPG) UpsertProfile(ctx context.Context, id uuid.UUID, in ProfileInput) error {
	languages := in.Languages
	if languages == nil {
		languages = []string{}
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO therapist_profiles (therapist_id, bio, languages, experience_years, portfolio_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (therapist_id) DO UPDATE SET
			bio = EXCLUDED.bio,
			languages = EXCLUDED.languages,
			experience_years = EXCLUDED.experience_years,
			portfolio_url = EXCLUDED.portfolio_url,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`,
		id, in.Bio, languages, in.ExperienceYears, in.PortfolioURL, active)
	return db.MapError(err, "upsert therapist %s", id)
}

func (r *repoPG) SetServices(ctx context.Context, id uuid.UUID, serviceIDs []int64) error {
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `
		UPDATE therapist_services SET active = (service_id = ANY($2))
		WHERE therapist_id = $1`, id, serviceIDs); err != nil {
		return db.MapError(err, "deactivate therapist services")
	}
	_, err := conn.Exec(ctx, `
		INSERT INTO therapist_services (therapist_id, service_id, active)
		SELECT $1, unnest($2::bigint[]), TRUE
		ON CONFLICT (therapist_id, service_id) DO UPDATE SET active = TRUE`, id, serviceIDs)
	return db.MapError(err, "set therapist services")
}

func (r *repoPG) SetLocation(ctx context.Context, id uuid.UUID, p geo.Point, radiusKm *float64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO therapist_profiles (therapist_id, latitude, longitude, travel_radius_km)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (therapist_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			travel_radius_km = COALESCE(EXCLUDED.travel_radius_km, therapist_profiles.travel_radius_km),
			updated_at = NOW()`,
		id, p.Lat, p.Lng, radiusKm)
	return db.MapError(err, "set therapist location %s", id)
}
