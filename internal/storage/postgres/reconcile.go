package postgres

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"batchtrack/internal/domain"
)

type reconcilePlan struct {
	Inserts   []domain.BatchItem
	Updates   []domain.BatchItem
	Deletes   []uuid.UUID
	Unchanged int
}

// planReconcile pairs stored rows with incoming items that share an external
// id, in order. Duplicate external ids within one sync each keep their own
// row, so N incoming items always end up as N stored rows.
func planReconcile(existing, incoming []domain.BatchItem) reconcilePlan {
	var plan reconcilePlan

	pool := make(map[string][]domain.BatchItem, len(existing))
	for _, e := range existing {
		key := externalKey(e)
		pool[key] = append(pool[key], e)
	}

	matched := make(map[uuid.UUID]struct{}, len(existing))
	for _, in := range incoming {
		key := externalKey(in)
		candidates := pool[key]
		if len(candidates) == 0 {
			plan.Inserts = append(plan.Inserts, in)
			continue
		}

		current := candidates[0]
		pool[key] = candidates[1:]
		matched[current.ID] = struct{}{}

		if itemChanged(current, in) {
			in.ID = current.ID
			plan.Updates = append(plan.Updates, in)
		} else {
			plan.Unchanged++
		}
	}

	for _, e := range existing {
		if _, ok := matched[e.ID]; !ok {
			plan.Deletes = append(plan.Deletes, e.ID)
		}
	}

	return plan
}

func externalKey(item domain.BatchItem) string {
	if item.ExternalID == nil {
		return "\x00"
	}
	return "=" + *item.ExternalID
}

func itemChanged(stored, incoming domain.BatchItem) bool {
	if stored.ItemType != incoming.ItemType {
		return true
	}
	if !equalStringPtr(stored.Title, incoming.Title) {
		return true
	}
	switch {
	case stored.LiveAt == nil && incoming.LiveAt == nil:
	case stored.LiveAt == nil || incoming.LiveAt == nil:
		return true
	case !stored.LiveAt.Equal(*incoming.LiveAt):
		return true
	}
	return !jsonEqual(stored.ItemData, incoming.ItemData)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// jsonEqual compares documents by value; jsonb normalizes key order and
// whitespace, so a byte comparison would report spurious changes.
func jsonEqual(a, b types.JSONText) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
