package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2025, 7, 21, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	tests := []struct {
		name        string
		startsAt    *time.Time
		completedAt *time.Time
		want        BatchStatus
	}{
		{"no dates", nil, nil, StatusActive},
		{"started, not finished", &past, &future, StatusActive},
		{"finished", &past, &past, StatusCompleted},
		{"not started", &future, nil, StatusUpcoming},
		{"completion wins over future start", &future, &past, StatusCompleted},
		{"only completion in future", nil, &future, StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(now, tt.startsAt, tt.completedAt))
		})
	}
}
