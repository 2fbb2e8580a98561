package catalog

import (
	"context"
	"time"

	"github.com/islandmassage/booking/internal/platform/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]*Offering, error) {
	items, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Offering{}
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Offering, error) {
	if id <= 0 {
		return nil, apperr.Validation("service id must be positive")
	}
	return s.repo.GetByID(ctx, id)
}

// Quote prices a booking of service id. Unknown or inactive services are
// quoted at the fallback price and duration; store failures are returned.
func (s *Service) Quote(ctx context.Context, id int64) (Quote, error) {
	o, err := s.Get(ctx, id)
	switch {
	case err == nil && o.Active:
		return Quote{
			ServiceID: o.ID,
			Name:      o.Name,
			Duration:  time.Duration(o.DurationMinutes) * time.Minute,
			Price:     o.BasePrice,
		}, nil
	case err == nil, apperr.Is(err, apperr.KindNotFound):
		return Quote{
			ServiceID: id,
			Name:      "Service",
			Duration:  FallbackDurationMinutes * time.Minute,
			Price:     FallbackPrice,
			Fallback:  true,
		}, nil
	default:
		return Quote{}, err
	}
}
