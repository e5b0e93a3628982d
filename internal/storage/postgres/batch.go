package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"batchtrack/internal/domain"
)

const batchColumns = `id, batch_id, batch_name, exam, starts_at, completed_at,
	total_teachers, status, teacher_data, metadata, created_at, updated_at`

type BatchStore struct {
	db *sqlx.DB
}

func NewBatchStore(db *sqlx.DB) *BatchStore {
	return &BatchStore{db: db}
}

func (s *BatchStore) GetAll(ctx context.Context) ([]domain.Batch, error) {
	batches := []domain.Batch{}
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY created_at DESC`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *BatchStore) GetByBatchID(ctx context.Context, batchID string) (*domain.Batch, error) {
	var batch domain.Batch
	query := `SELECT ` + batchColumns + ` FROM batches WHERE batch_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &batch, query, batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *BatchStore) ListBatchIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids,
		`SELECT batch_id FROM batches ORDER BY created_at DESC`)
	return ids, err
}

func (s *BatchStore) Create(ctx context.Context, in *domain.BatchInput) (*domain.Batch, error) {
	query := `
		INSERT INTO batches (
			batch_id, batch_name, exam, starts_at, completed_at,
			total_teachers, status, teacher_data, metadata
		) VALUES (
			$1, $2, $3, $4, $5, COALESCE($6::integer, 0), $7, $8, $9
		)
		RETURNING ` + batchColumns

	var batch domain.Batch
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &batch, query, batchArgs(in)...)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// Update overwrites the supplied fields of an existing batch. Nil optional
// fields keep their stored values.
func (s *BatchStore) Update(ctx context.Context, batchID string, in *domain.BatchInput) (*domain.Batch, error) {
	query := `
		UPDATE batches SET
			batch_name = $2,
			exam = COALESCE($3, exam),
			starts_at = COALESCE($4, starts_at),
			completed_at = COALESCE($5, completed_at),
			total_teachers = COALESCE($6::integer, total_teachers),
			status = $7,
			teacher_data = COALESCE($8, teacher_data),
			metadata = COALESCE($9, metadata),
			updated_at = NOW()
		WHERE batch_id = $1
		RETURNING ` + batchColumns

	args := batchArgs(in)
	args[0] = batchID

	var batch domain.Batch
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &batch, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// Upsert inserts the batch or, when batch_id already exists, overwrites it
// the same way Update does. With in.ClearSchedule set, nil dates overwrite
// the stored ones. One statement, so concurrent callers cannot both insert.
func (s *BatchStore) Upsert(ctx context.Context, in *domain.BatchInput) (*domain.Batch, error) {
	query := `
		INSERT INTO batches (
			batch_id, batch_name, exam, starts_at, completed_at,
			total_teachers, status, teacher_data, metadata
		) VALUES (
			$1, $2, $3, $4, $5, COALESCE($6::integer, 0), $7, $8, $9
		)
		ON CONFLICT (batch_id) DO UPDATE SET
			batch_name = EXCLUDED.batch_name,
			exam = COALESCE(EXCLUDED.exam, batches.exam),
			starts_at = CASE WHEN $10::boolean THEN EXCLUDED.starts_at
				ELSE COALESCE(EXCLUDED.starts_at, batches.starts_at) END,
			completed_at = CASE WHEN $10::boolean THEN EXCLUDED.completed_at
				ELSE COALESCE(EXCLUDED.completed_at, batches.completed_at) END,
			total_teachers = COALESCE($6::integer, batches.total_teachers),
			status = EXCLUDED.status,
			teacher_data = COALESCE(EXCLUDED.teacher_data, batches.teacher_data),
			metadata = COALESCE(EXCLUDED.metadata, batches.metadata),
			updated_at = NOW()
		RETURNING ` + batchColumns

	args := append(batchArgs(in), in.ClearSchedule)

	var batch domain.Batch
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &batch, query, args...)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// MergeMetadata shallow-merges patch into the batch's metadata object. Stored
// metadata that is not an object is replaced. It is a no-op when the batch
// does not exist.
func (s *BatchStore) MergeMetadata(ctx context.Context, batchID string, patch map[string]any) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE batches
		SET metadata = CASE
				WHEN jsonb_typeof(metadata) = 'object' THEN metadata
				ELSE '{}'::jsonb
			END || $2::jsonb,
			updated_at = NOW()
		WHERE batch_id = $1`,
		batchID, string(body),
	)
	return err
}

func batchArgs(in *domain.BatchInput) []any {
	return []any{
		in.BatchID,
		in.BatchName,
		in.Exam,
		in.StartsAt,
		in.CompletedAt,
		in.TotalTeachers,
		in.Status,
		in.TeacherData,
		in.Metadata,
	}
}
