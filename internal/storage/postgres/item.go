package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"batchtrack/internal/domain"
)

const itemColumns = `id, batch_id, item_type, title, item_data, external_id, live_at, created_at, updated_at`

// insertChunkSize keeps a bulk insert well under the 65535 bind parameter limit.
const insertChunkSize = 1000

type ItemStore struct {
	db *sqlx.DB
}

func NewItemStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) GetByBatchID(ctx context.Context, batchID string) ([]domain.BatchItem, error) {
	items := []domain.BatchItem{}
	query := `
		SELECT ` + itemColumns + `
		FROM batch_items
		WHERE batch_id = $1
		ORDER BY live_at DESC NULLS LAST, title`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &items, query, batchID); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *ItemStore) Create(ctx context.Context, item *domain.BatchItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	query := `
		INSERT INTO batch_items (id, batch_id, item_type, title, item_data, external_id, live_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		item.ID.String(),
		item.BatchID,
		item.ItemType,
		item.Title,
		item.ItemData,
		item.ExternalID,
		item.LiveAt,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

// UpsertBatchItems makes the stored item set for batchID equal to items.
// Stored rows are matched to incoming items by external id; matched rows are
// updated in place when their content changed, the rest are inserted or
// deleted. An empty items slice removes every item of the batch.
//
// Concurrent calls for the same batch are serialized by an advisory lock that
// lives as long as the surrounding transaction, so callers should run this
// inside TransactionManager.WithTransaction.
func (s *ItemStore) UpsertBatchItems(ctx context.Context, batchID string, items []domain.BatchItem) (domain.ReconcileStats, error) {
	var stats domain.ReconcileStats
	exec := GetExecutor(ctx, s.db)

	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, batchID); err != nil {
		return stats, fmt.Errorf("lock batch items: %w", err)
	}

	var existing []domain.BatchItem
	err := sqlx.SelectContext(ctx, exec, &existing, `
		SELECT `+itemColumns+`
		FROM batch_items
		WHERE batch_id = $1
		ORDER BY created_at, id`, batchID)
	if err != nil {
		return stats, fmt.Errorf("load existing items: %w", err)
	}

	for i := range items {
		items[i].BatchID = batchID
	}

	plan := planReconcile(existing, items)

	if err := s.deleteByIDs(ctx, exec, plan.Deletes); err != nil {
		return stats, fmt.Errorf("delete items: %w", err)
	}

	for i := range plan.Updates {
		if err := s.update(ctx, exec, &plan.Updates[i]); err != nil {
			return stats, fmt.Errorf("update item: %w", err)
		}
	}

	for start := 0; start < len(plan.Inserts); start += insertChunkSize {
		end := min(start+insertChunkSize, len(plan.Inserts))
		if err := s.insertBatch(ctx, exec, plan.Inserts[start:end]); err != nil {
			return stats, fmt.Errorf("insert items: %w", err)
		}
	}

	stats.Inserted = len(plan.Inserts)
	stats.Updated = len(plan.Updates)
	stats.Deleted = len(plan.Deletes)
	stats.Unchanged = plan.Unchanged
	return stats, nil
}

func (s *ItemStore) deleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	_, err := exec.ExecContext(ctx, `DELETE FROM batch_items WHERE id = ANY($1::uuid[])`, pq.Array(strIDs))
	return err
}

func (s *ItemStore) update(ctx context.Context, exec sqlx.ExtContext, item *domain.BatchItem) error {
	_, err := exec.ExecContext(ctx, `
		UPDATE batch_items SET
			item_type = $2,
			title = $3,
			item_data = $4,
			external_id = $5,
			live_at = $6,
			updated_at = NOW()
		WHERE id = $1`,
		item.ID.String(),
		item.ItemType,
		item.Title,
		item.ItemData,
		item.ExternalID,
		item.LiveAt,
	)
	return err
}

func (s *ItemStore) insertBatch(ctx context.Context, exec sqlx.ExtContext, items []domain.BatchItem) error {
	if len(items) == 0 {
		return nil
	}

	const cols = 7

	var sb strings.Builder
	sb.WriteString("INSERT INTO batch_items (id, batch_id, item_type, title, item_data, external_id, live_at) VALUES ")
	valueArgs := make([]any, 0, len(items)*cols)

	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := 1; c <= cols; c++ {
			if c > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*cols+c)
		}
		sb.WriteString(")")

		id := item.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		valueArgs = append(valueArgs,
			id.String(),
			item.BatchID,
			item.ItemType,
			item.Title,
			item.ItemData,
			item.ExternalID,
			item.LiveAt,
		)
	}

	_, err := exec.ExecContext(ctx, sb.String(), valueArgs...)
	return err
}
