package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"

	"batchtrack/internal/domain"
)

// BatchRequest is the body of POST /api/batches.
type BatchRequest struct {
	BatchID       string          `json:"batchId" validate:"required,max=255"`
	BatchName     string          `json:"batchName" validate:"required,max=255"`
	Exam          *string         `json:"exam" validate:"omitempty,max=255"`
	StartsAt      *time.Time      `json:"startsAt"`
	CompletedAt   *time.Time      `json:"completedAt"`
	TotalTeachers *int            `json:"totalTeachers" validate:"omitempty,min=0"`
	Status        string          `json:"status" validate:"omitempty,max=32"`
	TeacherData   json.RawMessage `json:"teacherData"`
	Metadata      json.RawMessage `json:"metadata"`
}

func (r *BatchRequest) toInput() *domain.BatchInput {
	return &domain.BatchInput{
		BatchID:       r.BatchID,
		BatchName:     r.BatchName,
		Exam:          r.Exam,
		StartsAt:      r.StartsAt,
		CompletedAt:   r.CompletedAt,
		TotalTeachers: r.TotalTeachers,
		Status:        r.Status,
		TeacherData:   nullJSON(r.TeacherData),
		Metadata:      nullJSON(r.Metadata),
	}
}

func nullJSON(raw json.RawMessage) types.NullJSONText {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: types.JSONText(raw), Valid: true}
}

type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors flattens validator output into the response shape. ok is false
// when err did not come from the validator.
func fieldErrors(err error) ([]FieldError, bool) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, false
	}

	out := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out, true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag())
	}
}
