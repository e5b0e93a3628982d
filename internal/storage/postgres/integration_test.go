//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"batchtrack/internal/domain"
	"batchtrack/internal/testutil"
	"batchtrack/migrations"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	names, err := migrations.Files()
	s.Require().NoError(err)

	scripts := make([]string, len(names))
	for i, name := range names {
		scripts[i] = filepath.Join(migrationsPath, name)
	}

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(scripts...),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM batch_items")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM api_responses")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM batches")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM users")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) videoItem(batchID, externalID, title string) domain.BatchItem {
	return domain.BatchItem{
		BatchID:    batchID,
		ItemType:   domain.ItemTypeVideo,
		Title:      testutil.Ptr(title),
		ItemData:   types.JSONText(`{"title":"` + title + `","teacher":"Jane"}`),
		ExternalID: testutil.Ptr(externalID),
	}
}

func (s *PostgresIntegrationSuite) TestBatchStore_Upsert_Insert() {
	store := NewBatchStore(s.db)

	batch, err := store.Upsert(s.ctx, &domain.BatchInput{
		BatchID:       "B100",
		BatchName:     "NEET Dropper 2025",
		Exam:          testutil.Ptr("NEET"),
		TotalTeachers: testutil.Ptr(4),
		Status:        string(domain.StatusActive),
		TeacherData:   types.NullJSONText{JSONText: types.JSONText(`{"teachers":["A","B"]}`), Valid: true},
	})
	s.NoError(err)
	s.Equal("B100", batch.BatchID)
	s.Equal(4, *batch.TotalTeachers)
	s.True(batch.TeacherData.Valid)
	s.False(batch.Metadata.Valid)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM batches WHERE batch_id = $1", "B100")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestBatchStore_Upsert_TwiceKeepsOneRow() {
	store := NewBatchStore(s.db)

	first, err := store.Upsert(s.ctx, &domain.BatchInput{
		BatchID:   "B200",
		BatchName: "Original Name",
		Exam:      testutil.Ptr("JEE"),
		Status:    string(domain.StatusActive),
	})
	s.NoError(err)

	second, err := store.Upsert(s.ctx, &domain.BatchInput{
		BatchID:   "B200",
		BatchName: "Renamed",
		Status:    string(domain.StatusCompleted),
	})
	s.NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal("Renamed", second.BatchName)
	s.Equal("JEE", *second.Exam)
	s.Equal("completed", *second.Status)
	s.False(second.UpdatedAt.Before(first.UpdatedAt))

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM batches WHERE batch_id = $1", "B200")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestBatchStore_Upsert_ClearSchedule() {
	store := NewBatchStore(s.db)
	startsAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	completedAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.Upsert(s.ctx, &domain.BatchInput{
		BatchID:     "B250",
		BatchName:   "Dated",
		Exam:        testutil.Ptr("JEE"),
		StartsAt:    &startsAt,
		CompletedAt: &completedAt,
		Status:      string(domain.StatusCompleted),
	})
	s.Require().NoError(err)

	kept, err := store.Upsert(s.ctx, &domain.BatchInput{
		BatchID:   "B250",
		BatchName: "Dated",
		Status:    string(domain.StatusCompleted),
	})
	s.Require().NoError(err)
	s.Require().NotNil(kept.StartsAt)
	s.Require().NotNil(kept.CompletedAt)

	cleared, err := store.Upsert(s.ctx, &domain.BatchInput{
		BatchID:       "B250",
		BatchName:     "Dated",
		Status:        string(domain.StatusActive),
		ClearSchedule: true,
	})
	s.Require().NoError(err)
	s.Nil(cleared.StartsAt)
	s.Nil(cleared.CompletedAt)
	s.Require().NotNil(cleared.Exam)
	s.Equal("JEE", *cleared.Exam)
}

func (s *PostgresIntegrationSuite) TestBatchStore_GetAll_NewestFirst() {
	store := NewBatchStore(s.db)

	for _, id := range []string{"old", "new"} {
		_, err := store.Create(s.ctx, &domain.BatchInput{BatchID: id, BatchName: id, Status: "active"})
		s.NoError(err)
	}
	_, err := s.db.ExecContext(s.ctx, "UPDATE batches SET created_at = NOW() - INTERVAL '1 day' WHERE batch_id = 'old'")
	s.NoError(err)

	batches, err := store.GetAll(s.ctx)
	s.NoError(err)
	s.Require().Len(batches, 2)
	s.Equal("new", batches[0].BatchID)
	s.Equal("old", batches[1].BatchID)
	s.Equal(0, *batches[0].TotalTeachers)
}

func (s *PostgresIntegrationSuite) TestBatchStore_GetByBatchID_NotFound() {
	store := NewBatchStore(s.db)

	batch, err := store.GetByBatchID(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrNotFound)
	s.Nil(batch)
}

func (s *PostgresIntegrationSuite) TestBatchStore_Update_NotFound() {
	store := NewBatchStore(s.db)

	_, err := store.Update(s.ctx, "missing", &domain.BatchInput{BatchName: "x", Status: "active"})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestBatchStore_MergeMetadata_PreservesKeys() {
	store := NewBatchStore(s.db)

	_, err := store.Upsert(s.ctx, &domain.BatchInput{
		BatchID:   "B300",
		BatchName: "Meta",
		Status:    "active",
		Metadata:  types.NullJSONText{JSONText: types.JSONText(`{"owner":"ops","externalDataVersion":"v1"}`), Valid: true},
	})
	s.NoError(err)

	err = store.MergeMetadata(s.ctx, "B300", map[string]any{
		"lastSyncAt":          "2025-07-21T10:00:00Z",
		"externalDataVersion": "v2",
	})
	s.NoError(err)

	batch, err := store.GetByBatchID(s.ctx, "B300")
	s.NoError(err)

	var meta map[string]any
	s.NoError(batch.Metadata.Unmarshal(&meta))
	s.Equal("ops", meta["owner"])
	s.Equal("v2", meta["externalDataVersion"])
	s.Equal("2025-07-21T10:00:00Z", meta["lastSyncAt"])

	s.NoError(store.MergeMetadata(s.ctx, "missing", map[string]any{"a": 1}))
}

func (s *PostgresIntegrationSuite) TestBatchStore_MergeMetadata_ReplacesNonObject() {
	store := NewBatchStore(s.db)

	for _, tt := range []struct {
		batchID  string
		metadata string
	}{
		{"B310", `[1]`},
		{"B311", `"x"`},
		{"B312", `42`},
	} {
		_, err := store.Upsert(s.ctx, &domain.BatchInput{
			BatchID:   tt.batchID,
			BatchName: "Odd meta",
			Status:    "active",
			Metadata:  types.NullJSONText{JSONText: types.JSONText(tt.metadata), Valid: true},
		})
		s.Require().NoError(err)

		for _, version := range []string{"v1", "v2"} {
			s.Require().NoError(store.MergeMetadata(s.ctx, tt.batchID, map[string]any{
				"lastSyncAt":          "2025-07-21T10:00:00Z",
				"externalDataVersion": version,
			}))
		}

		batch, err := store.GetByBatchID(s.ctx, tt.batchID)
		s.Require().NoError(err)
		s.JSONEq(`{"lastSyncAt":"2025-07-21T10:00:00Z","externalDataVersion":"v2"}`, string(batch.Metadata.JSONText), tt.batchID)
	}
}

func (s *PostgresIntegrationSuite) TestBatchStore_ListBatchIDs() {
	store := NewBatchStore(s.db)

	for _, id := range []string{"X1", "X2"} {
		_, err := store.Upsert(s.ctx, &domain.BatchInput{BatchID: id, BatchName: id, Status: "active"})
		s.NoError(err)
	}

	ids, err := store.ListBatchIDs(s.ctx)
	s.NoError(err)
	s.ElementsMatch([]string{"X1", "X2"}, ids)
}

func (s *PostgresIntegrationSuite) TestItemStore_UpsertBatchItems_InsertAndOrder() {
	store := NewItemStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	early := s.videoItem("B1", "http://x/1", "Lec1")
	early.LiveAt = testutil.Ptr(now.Add(-2 * time.Hour))
	late := s.videoItem("B1", "http://x/2", "Lec2")
	late.LiveAt = testutil.Ptr(now)
	undated := s.videoItem("B1", "B1-Notes", "Notes")

	stats, err := store.UpsertBatchItems(s.ctx, "B1", []domain.BatchItem{early, late, undated})
	s.NoError(err)
	s.Equal(3, stats.Inserted)

	items, err := store.GetByBatchID(s.ctx, "B1")
	s.NoError(err)
	s.Require().Len(items, 3)
	s.Equal("Lec2", *items[0].Title)
	s.Equal("Lec1", *items[1].Title)
	s.Nil(items[2].LiveAt)
}

func (s *PostgresIntegrationSuite) TestItemStore_UpsertBatchItems_ReconcilesByExternalID() {
	store := NewItemStore(s.db)

	_, err := store.UpsertBatchItems(s.ctx, "B2", []domain.BatchItem{
		s.videoItem("B2", "u1", "Lec1"),
		s.videoItem("B2", "u2", "Lec2"),
	})
	s.NoError(err)

	before, err := store.GetByBatchID(s.ctx, "B2")
	s.NoError(err)
	idsByExternal := map[string]string{}
	for _, it := range before {
		idsByExternal[*it.ExternalID] = it.ID.String()
	}

	stats, err := store.UpsertBatchItems(s.ctx, "B2", []domain.BatchItem{
		s.videoItem("B2", "u1", "Lec1"),
		s.videoItem("B2", "u3", "Lec3"),
	})
	s.NoError(err)
	s.Equal(domain.ReconcileStats{Inserted: 1, Deleted: 1, Unchanged: 1}, stats)

	after, err := store.GetByBatchID(s.ctx, "B2")
	s.NoError(err)
	s.Require().Len(after, 2)
	for _, it := range after {
		if *it.ExternalID == "u1" {
			s.Equal(idsByExternal["u1"], it.ID.String())
		}
		s.NotEqual("u2", *it.ExternalID)
	}
}

func (s *PostgresIntegrationSuite) TestItemStore_UpsertBatchItems_EmptyWipes() {
	store := NewItemStore(s.db)
	other := NewItemStore(s.db)

	_, err := store.UpsertBatchItems(s.ctx, "B3", []domain.BatchItem{s.videoItem("B3", "u1", "Lec1")})
	s.NoError(err)
	_, err = other.UpsertBatchItems(s.ctx, "B4", []domain.BatchItem{s.videoItem("B4", "u1", "Lec1")})
	s.NoError(err)

	stats, err := store.UpsertBatchItems(s.ctx, "B3", nil)
	s.NoError(err)
	s.Equal(1, stats.Deleted)

	items, err := store.GetByBatchID(s.ctx, "B3")
	s.NoError(err)
	s.Empty(items)

	items, err = store.GetByBatchID(s.ctx, "B4")
	s.NoError(err)
	s.Len(items, 1)
}

func (s *PostgresIntegrationSuite) TestItemStore_Create() {
	store := NewItemStore(s.db)

	item := s.videoItem("B5", "u1", "Single")
	s.NoError(store.Create(s.ctx, &item))
	s.False(item.CreatedAt.IsZero())

	items, err := store.GetByBatchID(s.ctx, "B5")
	s.NoError(err)
	s.Len(items, 1)
}

func (s *PostgresIntegrationSuite) TestApiResponseStore_CreateAndGetLatest() {
	store := NewApiResponseStore(s.db)

	for i, body := range []string{`{"version":"v1"}`, `{"version":"v2"}`} {
		resp := &domain.ApiResponse{
			BatchID:        "B6",
			Endpoint:       "https://provider/api?batch_id=B6",
			ResponseData:   types.JSONText(body),
			StatusCode:     200,
			ResponseTimeMs: testutil.Ptr(100 + i),
		}
		s.NoError(store.Create(s.ctx, resp))
		time.Sleep(5 * time.Millisecond)
	}

	latest, err := store.GetLatest(s.ctx, "B6", "https://provider/api?batch_id=B6")
	s.NoError(err)
	s.JSONEq(`{"version":"v2"}`, latest.ResponseData.String())
	s.Equal(101, *latest.ResponseTimeMs)

	_, err = store.GetLatest(s.ctx, "B6", "https://other")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestUserStore_CreateAndLookup() {
	store := NewUserStore(s.db)

	created, err := store.Create(s.ctx, "admin", "hunter2")
	s.NoError(err)
	s.NotEqual("hunter2", created.Password)

	byName, err := store.GetByUsername(s.ctx, "admin")
	s.NoError(err)
	s.Equal(created.ID, byName.ID)
	s.True(CheckPassword(byName, "hunter2"))
	s.False(CheckPassword(byName, "wrong"))

	byID, err := store.Get(s.ctx, created.ID)
	s.NoError(err)
	s.Equal("admin", byID.Username)

	_, err = store.GetByUsername(s.ctx, "nobody")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	items := NewItemStore(s.db)
	batches := NewBatchStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := items.UpsertBatchItems(ctx, "B7", []domain.BatchItem{s.videoItem("B7", "u1", "Lec1")}); err != nil {
			return err
		}
		_, err := batches.Upsert(ctx, &domain.BatchInput{BatchID: "B7", BatchName: "tx", Status: "active"})
		return err
	})
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM batch_items WHERE batch_id = $1", "B7")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	items := NewItemStore(s.db)

	_, err := items.UpsertBatchItems(s.ctx, "B8", []domain.BatchItem{s.videoItem("B8", "keep", "Keep")})
	s.NoError(err)

	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := items.UpsertBatchItems(ctx, "B8", nil); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM batch_items WHERE batch_id = $1", "B8")
	s.NoError(err)
	s.Equal(1, count)
}
