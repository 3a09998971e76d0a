package domain

import "time"

// StreamStats holds statistics about one stream within a sync run.
type StreamStats struct {
	Stream    string
	Fetched   int
	Persisted int
	Published int
	Errors    int
	Aborted   bool
	Duration  time.Duration
}

// SyncStats holds statistics about a sync operation.
type SyncStats struct {
	SourceID  string
	Streams   []StreamStats
	Fetched   int
	Persisted int
	Published int
	Errors    int
	Duration  time.Duration
}

func (s *SyncStats) Add(st StreamStats) {
	s.Streams = append(s.Streams, st)
	s.Fetched += st.Fetched
	s.Persisted += st.Persisted
	s.Published += st.Published
	s.Errors += st.Errors
}

type SyncState struct {
	ID           int64     `db:"id"`
	SourceID     string    `db:"source_id"`
	Stream       string    `db:"stream"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	Bookmark     int64     `db:"bookmark"`
	TotalSynced  int64     `db:"total_synced"`
}
