package cache

import (
	"context"
	"time"

	"shelfplan/internal/domain"
)

// ProjectionCache holds short-lived chart projections. Entries expire by TTL
// and writers drop affected keys eagerly, so reads after a mutation recompute
// from current facts.
type ProjectionCache interface {
	GetSeries(ctx context.Context, key string) (*domain.StoreSeries, bool, error)
	SetSeries(ctx context.Context, key string, value *domain.StoreSeries, ttl time.Duration) error
	DeleteSeries(ctx context.Context, key string) error
}

type NoopProjectionCache struct{}

func (NoopProjectionCache) GetSeries(_ context.Context, _ string) (*domain.StoreSeries, bool, error) {
	return nil, false, nil
}

func (NoopProjectionCache) SetSeries(_ context.Context, _ string, _ *domain.StoreSeries, _ time.Duration) error {
	return nil
}

func (NoopProjectionCache) DeleteSeries(_ context.Context, _ string) error {
	return nil
}
