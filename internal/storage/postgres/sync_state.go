package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"lms_extractor/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

func (s *SyncStateStore) Get(ctx context.Context, sourceID, stream string) (*domain.SyncState, error) {
	var state domain.SyncState
	query := `
		SELECT id, source_id, stream, last_synced_at, bookmark, total_synced
		FROM sync_state
		WHERE source_id = $1 AND stream = $2`

	err := s.db.GetContext(ctx, &state, query, sourceID, stream)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for streams that never ran
		return &domain.SyncState{
			SourceID: sourceID,
			Stream:   stream,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SyncStateStore) Update(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_state (source_id, stream, last_synced_at, bookmark, total_synced)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id, stream) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			bookmark = EXCLUDED.bookmark,
			total_synced = EXCLUDED.total_synced`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.SourceID,
		state.Stream,
		state.LastSyncedAt,
		state.Bookmark,
		state.TotalSynced,
	)
	return err
}
