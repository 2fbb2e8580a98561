package catalog

import "context"

type Repository interface {
	List(ctx context.Context, activeOnly bool) ([]*Offering, error)
	GetByID(ctx context.Context, id int64) (*Offering, error)
}
