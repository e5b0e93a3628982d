package api

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"batchtrack/internal/domain"
)

type BatchService interface {
	List(ctx context.Context) ([]domain.Batch, error)
	Get(ctx context.Context, batchID string) (*domain.Batch, error)
	Upsert(ctx context.Context, in *domain.BatchInput) (*domain.Batch, error)
	Items(ctx context.Context, batchID string) ([]domain.BatchItem, error)
	LatestResponse(ctx context.Context, batchID string) (*domain.ApiResponse, error)
}

type Syncer interface {
	SyncBatch(ctx context.Context, batchID string) (*domain.SyncResult, error)
}

type Initializer interface {
	Initialize(ctx context.Context) (int, error)
}

type HealthChecker interface {
	PingContext(ctx context.Context) error
}
