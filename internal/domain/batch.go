package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// ItemTypeVideo is the only item type the content provider currently yields.
const ItemTypeVideo = "video"

type Batch struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	BatchID       string             `db:"batch_id" json:"batchId"`
	BatchName     string             `db:"batch_name" json:"batchName"`
	Exam          *string            `db:"exam" json:"exam"`
	StartsAt      *time.Time         `db:"starts_at" json:"startsAt"`
	CompletedAt   *time.Time         `db:"completed_at" json:"completedAt"`
	TotalTeachers *int               `db:"total_teachers" json:"totalTeachers"`
	Status        *string            `db:"status" json:"status"`
	TeacherData   types.NullJSONText `db:"teacher_data" json:"teacherData"`
	Metadata      types.NullJSONText `db:"metadata" json:"metadata"`
	CreatedAt     time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updatedAt"`
}

// BatchInput carries the writable fields of a batch. Nil optional fields are
// left untouched when the batch already exists, except StartsAt and
// CompletedAt when ClearSchedule is set.
type BatchInput struct {
	BatchID       string
	BatchName     string
	Exam          *string
	StartsAt      *time.Time
	CompletedAt   *time.Time
	TotalTeachers *int
	Status        string
	TeacherData   types.NullJSONText
	Metadata      types.NullJSONText
	ClearSchedule bool
}

type BatchItem struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	BatchID    string         `db:"batch_id" json:"batchId"`
	ItemType   string         `db:"item_type" json:"itemType"`
	Title      *string        `db:"title" json:"title"`
	ItemData   types.JSONText `db:"item_data" json:"itemData"`
	ExternalID *string        `db:"external_id" json:"externalId"`
	LiveAt     *time.Time     `db:"live_at" json:"liveAt"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// ApiResponse is one audited fetch from the content provider.
type ApiResponse struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	BatchID        string         `db:"batch_id" json:"batchId"`
	Endpoint       string         `db:"endpoint" json:"endpoint"`
	ResponseData   types.JSONText `db:"response_data" json:"responseData"`
	StatusCode     int            `db:"status_code" json:"statusCode"`
	ResponseTimeMs *int           `db:"response_time_ms" json:"responseTimeMs"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// User is the legacy account record kept for schema compatibility.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Password string `db:"password" json:"-"`
}
