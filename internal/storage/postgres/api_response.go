package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"batchtrack/internal/domain"
)

type ApiResponseStore struct {
	db *sqlx.DB
}

func NewApiResponseStore(db *sqlx.DB) *ApiResponseStore {
	return &ApiResponseStore{db: db}
}

// Create appends an audit row. Rows are never updated or pruned.
func (s *ApiResponseStore) Create(ctx context.Context, resp *domain.ApiResponse) error {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}

	query := `
		INSERT INTO api_responses (id, batch_id, endpoint, response_data, status_code, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		resp.ID.String(),
		resp.BatchID,
		resp.Endpoint,
		resp.ResponseData,
		resp.StatusCode,
		resp.ResponseTimeMs,
	).Scan(&resp.CreatedAt)
}

func (s *ApiResponseStore) GetLatest(ctx context.Context, batchID, endpoint string) (*domain.ApiResponse, error) {
	var resp domain.ApiResponse
	query := `
		SELECT id, batch_id, endpoint, response_data, status_code, response_time_ms, created_at
		FROM api_responses
		WHERE batch_id = $1 AND endpoint = $2
		ORDER BY created_at DESC
		LIMIT 1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &resp, query, batchID, endpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
