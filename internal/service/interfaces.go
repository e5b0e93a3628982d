package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"batchtrack/internal/domain"
)

type BatchStore interface {
	GetAll(ctx context.Context) ([]domain.Batch, error)
	GetByBatchID(ctx context.Context, batchID string) (*domain.Batch, error)
	Upsert(ctx context.Context, in *domain.BatchInput) (*domain.Batch, error)
	MergeMetadata(ctx context.Context, batchID string, patch map[string]any) error
	ListBatchIDs(ctx context.Context) ([]string, error)
}

type ItemStore interface {
	GetByBatchID(ctx context.Context, batchID string) ([]domain.BatchItem, error)
	UpsertBatchItems(ctx context.Context, batchID string, items []domain.BatchItem) (domain.ReconcileStats, error)
}

type ApiResponseStore interface {
	Create(ctx context.Context, resp *domain.ApiResponse) error
	GetLatest(ctx context.Context, batchID, endpoint string) (*domain.ApiResponse, error)
}

type Source interface {
	Name() string
	Endpoint(batchID string) string
	Fetch(ctx context.Context, batchID string) (*domain.Fetch, error)
	Parse(batchID string, body []byte) (*domain.Content, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishSynced(ctx context.Context, result *domain.SyncResult) error
	Close() error
}

// ItemCache stores item lists per batch under a generation. Invalidate moves
// the batch to a new generation, so a fill tagged with an older one is never
// read back.
type ItemCache interface {
	Generation(ctx context.Context, batchID string) (int64, error)
	GetItems(ctx context.Context, batchID string, gen int64) ([]domain.BatchItem, bool, error)
	SetItems(ctx context.Context, batchID string, gen int64, items []domain.BatchItem, ttl time.Duration) error
	Invalidate(ctx context.Context, batchID string) error
}
