package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"

	"batchtrack/internal/domain"
)

var (
	ErrSeedNotFound  = errors.New("seed file not found")
	ErrSeedMalformed = errors.New("seed file malformed")
)

const teacherKeyPrefix = "teacher_"

type seedFile struct {
	Batches json.RawMessage `json:"batches"`
}

// Initializer seeds batch rows from a bundled JSON file. Item rows are never
// touched.
type Initializer struct {
	batches BatchStore
	path    string
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

func NewInitializer(batches BatchStore, path string, limit int, logger *slog.Logger) *Initializer {
	return &Initializer{
		batches: batches,
		path:    path,
		limit:   limit,
		logger:  logger.With("seed", path),
		now:     time.Now,
	}
}

// Initialize upserts up to limit batches from the seed file and returns how
// many were stored. Entries that fail are logged and skipped.
func (i *Initializer) Initialize(ctx context.Context) (int, error) {
	entries, err := i.readEntries()
	if err != nil {
		return 0, err
	}

	if i.limit > 0 && len(entries) > i.limit {
		entries = entries[:i.limit]
	}

	processed := 0
	for idx, entry := range entries {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		in, err := i.toBatchInput(entry)
		if err != nil {
			i.logger.Error("skipping seed entry", "index", idx, "error", err)
			continue
		}

		if _, err := i.batches.Upsert(ctx, in); err != nil {
			i.logger.Error("failed to upsert seed batch", "batch_id", in.BatchID, "error", err)
			continue
		}
		processed++
	}

	i.logger.Info("seed initialization completed", "entries", len(entries), "processed", processed)

	return processed, nil
}

func (i *Initializer) readEntries() ([]json.RawMessage, error) {
	data, err := os.ReadFile(i.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeedMalformed, err)
	}

	raw := bytes.TrimSpace(seed.Batches)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: batches is not an array", ErrSeedMalformed)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeedMalformed, err)
	}
	return entries, nil
}

func (i *Initializer) toBatchInput(entry json.RawMessage) (*domain.BatchInput, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
		return nil, errors.New("entry is not an object")
	}

	batchID := scalarString(fields["batch_id"])
	if batchID == "" {
		return nil, errors.New("missing batch_id")
	}
	batchName := scalarString(fields["batch_name"])
	if batchName == "" {
		return nil, fmt.Errorf("batch %s: missing batch_name", batchID)
	}

	in := &domain.BatchInput{
		BatchID:       batchID,
		BatchName:     batchName,
		ClearSchedule: true,
	}

	if exam := scalarString(fields["exam"]); exam != "" {
		in.Exam = &exam
	}

	in.StartsAt = i.timestamp(batchID, "starts_at", fields["starts_at"])
	in.CompletedAt = i.timestamp(batchID, "completed_at", fields["completed_at"])

	totalTeachers := intValue(fields["total_teachers"])
	in.TotalTeachers = &totalTeachers

	teacherData, err := json.Marshal(map[string]any{"teachers": teachers(fields)})
	if err != nil {
		return nil, fmt.Errorf("batch %s: encode teachers: %w", batchID, err)
	}
	in.TeacherData = types.NullJSONText{JSONText: teacherData, Valid: true}

	in.Status = string(domain.DeriveStatus(i.now(), in.StartsAt, in.CompletedAt))

	return in, nil
}

func (i *Initializer) timestamp(batchID, field string, raw json.RawMessage) *time.Time {
	if isFalsy(raw) {
		return nil
	}
	ts, ok := domain.ParseTimestamp(raw)
	if !ok {
		i.logger.Warn("unparseable seed timestamp", "batch_id", batchID, "field", field, "value", string(raw))
	}
	return ts
}

// teachers collects teacher_N values ordered by N, dropping empty ones.
func teachers(fields map[string]json.RawMessage) []json.RawMessage {
	keys := make([]string, 0)
	for k := range fields {
		if strings.HasPrefix(k, teacherKeyPrefix) {
			keys = append(keys, k)
		}
	}

	sort.Slice(keys, func(a, b int) bool {
		na, errA := strconv.Atoi(strings.TrimPrefix(keys[a], teacherKeyPrefix))
		nb, errB := strconv.Atoi(strings.TrimPrefix(keys[b], teacherKeyPrefix))
		if errA == nil && errB == nil && na != nb {
			return na < nb
		}
		if (errA == nil) != (errB == nil) {
			return errA == nil
		}
		return keys[a] < keys[b]
	})

	result := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		if v := fields[k]; !isFalsy(v) {
			result = append(result, v)
		}
	}
	return result
}

func isFalsy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "false", "0":
		return true
	}
	return false
}

// scalarString reads a JSON string or number as text.
func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// intValue accepts a number or numeric string; anything else is zero.
func intValue(raw json.RawMessage) int {
	s := scalarString(raw)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}
