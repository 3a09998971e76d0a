package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"lms_extractor/internal/domain"
)

// upsertChunkSize keeps a single statement well below the 65535 bind
// parameter limit.
const upsertChunkSize = 1000

type RecordStore struct {
	db *sqlx.DB
}

func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

// UpsertBatch writes records keyed by (stream, key) and returns the number
// of distinct keys written. When a key repeats in the batch the last
// occurrence wins.
func (s *RecordStore) UpsertBatch(ctx context.Context, records []domain.Record) (int, error) {
	records = dedupe(records)
	exec := GetExecutor(ctx, s.db)

	for start := 0; start < len(records); start += upsertChunkSize {
		end := min(start+upsertChunkSize, len(records))
		query, args, err := buildUpsert(records[start:end])
		if err != nil {
			return 0, err
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("upsert records: %w", err)
		}
	}
	return len(records), nil
}

func buildUpsert(records []domain.Record) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO records (stream, key, data, extracted_at) VALUES ")
	args := make([]any, 0, len(records)*4)

	for i, r := range records {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return "", nil, fmt.Errorf("marshal record %s/%s: %w", r.Stream, r.Key, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		sb.WriteString("($")
		sb.WriteString(strconv.Itoa(n + 1))
		sb.WriteString(", $")
		sb.WriteString(strconv.Itoa(n + 2))
		sb.WriteString(", $")
		sb.WriteString(strconv.Itoa(n + 3))
		sb.WriteString(", $")
		sb.WriteString(strconv.Itoa(n + 4))
		sb.WriteString(")")
		args = append(args, r.Stream, r.Key, string(data), r.ExtractedAt)
	}
	sb.WriteString(` ON CONFLICT (stream, key) DO UPDATE SET
		data = EXCLUDED.data,
		extracted_at = EXCLUDED.extracted_at,
		updated_at = NOW()`)

	return sb.String(), args, nil
}

func dedupe(records []domain.Record) []domain.Record {
	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.Stream+"\x00"+r.Key] = i
	}
	if len(last) == len(records) {
		return records
	}

	out := make([]domain.Record, 0, len(last))
	for i, r := range records {
		if last[r.Stream+"\x00"+r.Key] == i {
			out = append(out, r)
		}
	}
	return out
}
