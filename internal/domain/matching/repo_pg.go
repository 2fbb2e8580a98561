package matching

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/islandmassage/booking/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) CandidateRepository { return &repoPG{pool: pool} }

func (r *repoPG) ListCandidates(ctx context.Context, serviceID int64) ([]Candidate, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT tp.therapist_id, COALESCE(tp.travel_radius_km, 0), tp.avg_rating, tp.latitude, tp.longitude
		FROM therapist_services ts
		JOIN therapist_profiles tp ON tp.therapist_id = ts.therapist_id
		JOIN profiles p ON p.id = ts.therapist_id
		WHERE ts.service_id = $1
		  AND ts.active
		  AND tp.is_active
		  AND p.onboarding_status = 'approved'
		  AND tp.latitude IS NOT NULL
		  AND tp.longitude IS NOT NULL`, serviceID)
	if err != nil {
		return nil, db.MapError(err, "list candidates")
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.TherapistID, &c.TravelRadiusKm, &c.AvgRating, &c.Location.Lat, &c.Location.Lng); err != nil {
			return nil, db.MapError(err, "scan candidate")
		}
		out = append(out, c)
	}
	return out, db.MapError(rows.Err(), "list candidates")
}
