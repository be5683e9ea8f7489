package cache

import (
	"context"
	"time"

	"tiendapc/backend/internal/domain"
)

// CatalogCache caches rendered catalog pages keyed by their normalized
// filter. Entries expire by TTL only; writes to the catalog become
// visible once the entry ages out.
type CatalogCache interface {
	Get(ctx context.Context, key string) (*domain.CatalogPage, bool, error)
	Set(ctx context.Context, key string, page *domain.CatalogPage, ttl time.Duration) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) (*domain.CatalogPage, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ *domain.CatalogPage, _ time.Duration) error {
	return nil
}
