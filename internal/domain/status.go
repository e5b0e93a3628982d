package domain

import "time"

type BatchStatus string

const (
	StatusActive    BatchStatus = "active"
	StatusCompleted BatchStatus = "completed"
	StatusUpcoming  BatchStatus = "upcoming"
)

// DeriveStatus classifies a batch schedule relative to now. A completion in
// the past wins over a start in the future.
func DeriveStatus(now time.Time, startsAt, completedAt *time.Time) BatchStatus {
	switch {
	case completedAt != nil && completedAt.Before(now):
		return StatusCompleted
	case startsAt != nil && startsAt.After(now):
		return StatusUpcoming
	default:
		return StatusActive
	}
}
