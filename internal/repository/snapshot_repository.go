package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"racehub/internal/domain"
	"racehub/pkg/database"
)

// PostgresSnapshotRepository stores game snapshots as jsonb rows. The whole
// game state is one document, so restore is a single read and writes never
// need cross-table consistency.
type PostgresSnapshotRepository struct {
	db *database.PostgresDB
}

func NewPostgresSnapshotRepository(db *database.PostgresDB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

// Save persists a full game snapshot
func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO game_snapshots (state, saved_at)
		VALUES ($1, $2)
	`
	if _, err := r.db.Pool.Exec(ctx, query, payload, snapshot.SavedAt); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Latest retrieves the most recent snapshot, or nil when none exists
func (r *PostgresSnapshotRepository) Latest(ctx context.Context) (*domain.Snapshot, error) {
	query := `
		SELECT state
		FROM game_snapshots
		ORDER BY saved_at DESC, id DESC
		LIMIT 1
	`

	var payload []byte
	err := r.db.Pool.QueryRow(ctx, query).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// Prune removes old snapshots, keeping the newest `keep` rows
func (r *PostgresSnapshotRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	query := `
		DELETE FROM game_snapshots
		WHERE id NOT IN (
			SELECT id FROM game_snapshots
			ORDER BY saved_at DESC, id DESC
			LIMIT $1
		)
	`
	tag, err := r.db.Pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
