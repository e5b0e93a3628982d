package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx/types"

	"batchtrack/internal/domain"
)

const lastSyncLayout = "2006-01-02T15:04:05.000Z07:00"

type SyncService struct {
	source    Source
	batches   BatchStore
	items     ItemStore
	responses ApiResponseStore
	txManager TransactionManager
	publisher Publisher
	cache     ItemCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewSyncService wires the sync pipeline. publisher and cache may be nil.
func NewSyncService(
	source Source,
	batches BatchStore,
	items ItemStore,
	responses ApiResponseStore,
	txManager TransactionManager,
	publisher Publisher,
	cache ItemCache,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		source:    source,
		batches:   batches,
		items:     items,
		responses: responses,
		txManager: txManager,
		publisher: publisher,
		cache:     cache,
		logger:    logger.With("source", source.Name()),
		now:       time.Now,
	}
}

// SyncBatch pulls current content for one batch and reconciles its items.
// Nothing is written when the fetch fails or the body is not JSON. The audit
// row is committed before reconciliation and survives a later failure.
func (s *SyncService) SyncBatch(ctx context.Context, batchID string) (*domain.SyncResult, error) {
	logger := s.logger.With("batch_id", batchID)
	logger.Info("starting batch sync")

	fetch, err := s.source.Fetch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}

	content, err := s.source.Parse(batchID, fetch.Body)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	responseTimeMs := int(fetch.ResponseTime.Milliseconds())
	audit := &domain.ApiResponse{
		BatchID:        batchID,
		Endpoint:       fetch.Endpoint,
		ResponseData:   types.JSONText(fetch.Body),
		StatusCode:     fetch.StatusCode,
		ResponseTimeMs: &responseTimeMs,
	}
	if err := s.responses.Create(ctx, audit); err != nil {
		return nil, fmt.Errorf("store api response: %w", err)
	}

	syncedAt := s.now().UTC()
	var stats domain.ReconcileStats

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		stats, err = s.items.UpsertBatchItems(txCtx, batchID, content.Items)
		if err != nil {
			return fmt.Errorf("upsert items: %w", err)
		}

		patch := map[string]any{
			"lastSyncAt":          syncedAt.Format(lastSyncLayout),
			"externalDataVersion": content.Version,
		}
		if err := s.batches.MergeMetadata(txCtx, batchID, patch); err != nil {
			return fmt.Errorf("update batch metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &domain.SyncResult{
		BatchID:        batchID,
		ItemsProcessed: content.VideoCount,
		ResponseTime:   fetch.ResponseTime,
		Version:        content.Version,
		Reconcile:      stats,
		SyncedAt:       syncedAt,
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, batchID); err != nil {
			logger.Warn("failed to invalidate item cache", "error", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSynced(ctx, result); err != nil {
			logger.Warn("failed to publish sync event", "error", err)
		}
	}

	logger.Info("batch sync completed",
		"items", result.ItemsProcessed,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"unchanged", stats.Unchanged,
		"response_time", result.ResponseTime,
	)

	return result, nil
}

// SyncAll re-syncs every stored batch in turn. A failing batch is logged and
// counted; the pass carries on with the next one.
func (s *SyncService) SyncAll(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()

	batchIDs, err := s.batches.ListBatchIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	s.logger.Info("starting full sync", "batches", len(batchIDs))

	stats := &domain.SyncStats{Batches: len(batchIDs)}

	for _, batchID := range batchIDs {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(startTime)
			return stats, err
		}

		result, err := s.SyncBatch(ctx, batchID)
		if err != nil {
			stats.Failed++
			s.logger.Error("batch sync failed", "batch_id", batchID, "error", err)
			continue
		}

		stats.Succeeded++
		stats.Items += result.ItemsProcessed
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("full sync completed",
		"batches", stats.Batches,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"items", stats.Items,
		"duration", stats.Duration,
	)

	return stats, nil
}
