package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"iter"

	"lms_extractor/internal/domain"
)

type RecordStore interface {
	UpsertBatch(ctx context.Context, records []domain.Record) (int, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, sourceID, stream string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type Source interface {
	ID() string
	Name() string
	ListCatalogs(ctx context.Context, next string) (*domain.CatalogPage, error)
	Traverse(ctx context.Context, page domain.CatalogPage) iter.Seq2[domain.CatalogBatch, error]
	ScheduledOfferings(ctx context.Context, course domain.ComponentRecord) ([]domain.Record, error)
	LearningHistory(ctx context.Context, fromDate, toDate int64) ([]domain.Record, error)
	UserTodoLearningItems(ctx context.Context) ([]domain.Record, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, record *domain.Record) error
	Close() error
}
