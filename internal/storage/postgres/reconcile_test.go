package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"

	"batchtrack/internal/domain"
	"batchtrack/internal/testutil"
)

func video(id uuid.UUID, externalID, title, data string) domain.BatchItem {
	return domain.BatchItem{
		ID:         id,
		BatchID:    "B1",
		ItemType:   domain.ItemTypeVideo,
		Title:      testutil.Ptr(title),
		ItemData:   types.JSONText(data),
		ExternalID: testutil.Ptr(externalID),
	}
}

func TestPlanReconcile_InsertUpdateDelete(t *testing.T) {
	keepID, changeID, dropID := uuid.New(), uuid.New(), uuid.New()

	existing := []domain.BatchItem{
		video(keepID, "u1", "Lec1", `{"title":"Lec1","teacher":"Jane"}`),
		video(changeID, "u2", "Lec2", `{"title":"Lec2"}`),
		video(dropID, "u3", "Lec3", `{"title":"Lec3"}`),
	}
	incoming := []domain.BatchItem{
		video(uuid.Nil, "u1", "Lec1", `{"teacher": "Jane", "title": "Lec1"}`),
		video(uuid.Nil, "u2", "Lec2 (revised)", `{"title":"Lec2 (revised)"}`),
		video(uuid.Nil, "u4", "Lec4", `{"title":"Lec4"}`),
	}

	plan := planReconcile(existing, incoming)

	assert.Equal(t, 1, plan.Unchanged)
	if assert.Len(t, plan.Updates, 1) {
		assert.Equal(t, changeID, plan.Updates[0].ID)
		assert.Equal(t, "Lec2 (revised)", *plan.Updates[0].Title)
	}
	if assert.Len(t, plan.Inserts, 1) {
		assert.Equal(t, "u4", *plan.Inserts[0].ExternalID)
	}
	assert.Equal(t, []uuid.UUID{dropID}, plan.Deletes)
}

func TestPlanReconcile_EmptyIncomingDeletesAll(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	existing := []domain.BatchItem{
		video(a, "u1", "Lec1", `{}`),
		video(b, "u2", "Lec2", `{}`),
	}

	plan := planReconcile(existing, nil)

	assert.Empty(t, plan.Inserts)
	assert.Empty(t, plan.Updates)
	assert.Equal(t, []uuid.UUID{a, b}, plan.Deletes)
}

func TestPlanReconcile_DuplicateExternalIDsKeepOneRowEach(t *testing.T) {
	first := uuid.New()
	existing := []domain.BatchItem{
		video(first, "B1-Intro", "Intro", `{"title":"Intro"}`),
	}
	incoming := []domain.BatchItem{
		video(uuid.Nil, "B1-Intro", "Intro", `{"title":"Intro"}`),
		video(uuid.Nil, "B1-Intro", "Intro", `{"title":"Intro","pdf_url":"x"}`),
	}

	plan := planReconcile(existing, incoming)

	assert.Equal(t, 1, plan.Unchanged)
	assert.Len(t, plan.Inserts, 1)
	assert.Empty(t, plan.Deletes)
}

func TestPlanReconcile_LiveAtChange(t *testing.T) {
	id := uuid.New()
	before := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	after := before.Add(time.Hour)

	stored := video(id, "u1", "Lec1", `{}`)
	stored.LiveAt = &before

	moved := video(uuid.Nil, "u1", "Lec1", `{}`)
	moved.LiveAt = &after

	same := video(uuid.Nil, "u1", "Lec1", `{}`)
	same.LiveAt = testutil.Ptr(before.In(time.FixedZone("IST", 5*3600+1800)))

	assert.Len(t, planReconcile([]domain.BatchItem{stored}, []domain.BatchItem{moved}).Updates, 1)
	assert.Equal(t, 1, planReconcile([]domain.BatchItem{stored}, []domain.BatchItem{same}).Unchanged)
}

func TestJSONEqual(t *testing.T) {
	assert.True(t, jsonEqual(types.JSONText(`{"a":1,"b":[1,2]}`), types.JSONText(`{"b": [1, 2], "a": 1}`)))
	assert.False(t, jsonEqual(types.JSONText(`{"a":1}`), types.JSONText(`{"a":2}`)))
	assert.False(t, jsonEqual(types.JSONText(`{"a":1}`), types.JSONText(`not json`)))
}
