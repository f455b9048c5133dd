package cache

import (
	"context"
	"time"

	"tokonova/backend/internal/domain"
)

// SettingsCache is a read-through cache for the tax and loyalty settings
// snapshot. Totals computation hits this on every sale, so a short TTL keeps
// the store out of the hot path without letting stale rates linger.
type SettingsCache interface {
	Get(ctx context.Context, key string) (*domain.Settings, bool, error)
	Set(ctx context.Context, key string, value *domain.Settings, ttl time.Duration) error
}

type NoopSettingsCache struct{}

func (NoopSettingsCache) Get(_ context.Context, _ string) (*domain.Settings, bool, error) {
	return nil, false, nil
}

func (NoopSettingsCache) Set(_ context.Context, _ string, _ *domain.Settings, _ time.Duration) error {
	return nil
}
