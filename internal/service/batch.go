package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"batchtrack/internal/domain"
)

type BatchService struct {
	batches   BatchStore
	items     ItemStore
	responses ApiResponseStore
	source    Source
	cache     ItemCache
	cacheTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewBatchService builds the read/write facade over batches. cache may be nil.
func NewBatchService(
	batches BatchStore,
	items ItemStore,
	responses ApiResponseStore,
	source Source,
	cache ItemCache,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *BatchService {
	return &BatchService{
		batches:   batches,
		items:     items,
		responses: responses,
		source:    source,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *BatchService) List(ctx context.Context) ([]domain.Batch, error) {
	batches, err := s.batches.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

func (s *BatchService) Get(ctx context.Context, batchID string) (*domain.Batch, error) {
	batch, err := s.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch %q: %w", batchID, err)
	}
	return batch, nil
}

// Upsert stores the batch, deriving its status from the schedule when the
// caller did not set one.
func (s *BatchService) Upsert(ctx context.Context, in *domain.BatchInput) (*domain.Batch, error) {
	if in.Status == "" {
		in.Status = string(domain.DeriveStatus(s.now(), in.StartsAt, in.CompletedAt))
	}

	batch, err := s.batches.Upsert(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("upsert batch: %w", err)
	}
	return batch, nil
}

// Items returns the batch's items, served from the cache when one is
// configured. Cache failures fall through to the database. The generation is
// read before the database so a fill racing a sync lands under a stale one.
func (s *BatchService) Items(ctx context.Context, batchID string) ([]domain.BatchItem, error) {
	useCache := s.cache != nil
	var gen int64

	if useCache {
		var err error
		gen, err = s.cache.Generation(ctx, batchID)
		if err != nil {
			s.logger.Warn("item cache generation read failed", "batch_id", batchID, "error", err)
			useCache = false
		}
	}

	if useCache {
		items, ok, err := s.cache.GetItems(ctx, batchID, gen)
		switch {
		case err != nil:
			s.logger.Warn("item cache read failed", "batch_id", batchID, "error", err)
		case ok:
			return items, nil
		}
	}

	items, err := s.items.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}

	if useCache {
		if err := s.cache.SetItems(ctx, batchID, gen, items, s.cacheTTL); err != nil {
			s.logger.Warn("item cache write failed", "batch_id", batchID, "error", err)
		}
	}

	return items, nil
}

// LatestResponse returns the newest audited fetch for the batch's endpoint.
func (s *BatchService) LatestResponse(ctx context.Context, batchID string) (*domain.ApiResponse, error) {
	resp, err := s.responses.GetLatest(ctx, batchID, s.source.Endpoint(batchID))
	if err != nil {
		return nil, fmt.Errorf("get latest response: %w", err)
	}
	return resp, nil
}
