package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/islandmassage/booking/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `id, role, full_name, email, phone, avatar_url, onboarding_status, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Role, &p.FullName, &p.Email, &p.Phone, &p.AvatarURL,
		&p.OnboardingStatus, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cols+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, db.MapError(err, "profile %s", id)
	}
	return p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Profile) (*Profile, bool, error) {
	conn := db.Conn(ctx, r.pool)
	created, err := scanProfile(conn.QueryRow(ctx, `
		INSERT INTO profiles (id, role, full_name, email, phone, onboarding_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+cols,
		p.ID, p.Role, p.FullName, p.Email, p.Phone, p.OnboardingStatus))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, db.MapError(err, "create profile %s", p.ID)
	}
	existing, err := r.GetByID(ctx, p.ID)
	return existing, false, err
}

func (r *repoPG) SetOnboardingStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE profiles SET onboarding_status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return db.MapError(err, "update profile %s", id)
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "profile %s", id)
	}
	return nil
}
