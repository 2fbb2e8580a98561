package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/islandmassage/booking/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `id, name, description, duration_minutes, base_price, active, created_at`

func scanService(row pgx.Row) (*Offering, error) {
	var s Offering
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.BasePrice, &s.Active, &s.CreatedAt)
	return &s, err
}

func (r *repoPG) List(ctx context.Context, activeOnly bool) ([]*Offering, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+cols+` FROM services WHERE active OR NOT $1 ORDER BY id`, activeOnly)
	if err != nil {
		return nil, db.MapError(err, "list services")
	}
	defer rows.Close()
	var items []*Offering
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, db.MapError(err, "scan service")
		}
		items = append(items, s)
	}
	return items, db.MapError(rows.Err(), "list services")
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Offering, error) {
	s, err := scanService(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+cols+` FROM services WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "service %d", id)
	}
	return s, nil
}
