package repository

import (
	"context"

	"racehub/internal/domain"
)

// SnapshotRepository defines the interface for game state persistence
type SnapshotRepository interface {
	// Save persists a full game snapshot
	Save(ctx context.Context, snapshot *domain.Snapshot) error

	// Latest retrieves the most recent snapshot, or nil when none exists
	Latest(ctx context.Context) (*domain.Snapshot, error)

	// Prune removes snapshots older than the retention window, keeping at
	// least the newest one
	Prune(ctx context.Context, keep int) (int64, error)
}
