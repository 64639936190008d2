package cache

import (
	"context"
	"time"

	"restopos/backend/internal/domain"
)

// SnapshotCache holds rendered order snapshots so the printing subsystem
// can re-fetch a receipt without touching the order tables.
type SnapshotCache interface {
	Get(ctx context.Context, orderID string) (*domain.OrderSnapshot, bool, error)
	Set(ctx context.Context, orderID string, snapshot *domain.OrderSnapshot, ttl time.Duration) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context, _ string) (*domain.OrderSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ *domain.OrderSnapshot, _ time.Duration) error {
	return nil
}
