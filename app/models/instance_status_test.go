package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstanceStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want InstanceStatus
	}{
		{"active", StatusActive},
		{"paused", StatusPaused},
		{"not_enough_balance", StatusNotEnoughBalance},
		{"deleting", StatusDeleting},
		{"", StatusUnknown},
		{"hibernating", StatusUnknown},
		{"ACTIVE", StatusUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseInstanceStatus(tt.raw), tt.raw)
	}
}

func TestNewStatusEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := NewStatusEvent(1, nil, StatusActive, at)
	assert.Nil(t, first.FromStatus)
	assert.Equal(t, StatusActive, first.ToStatus)
	assert.Equal(t, at, first.ChangedAt)

	from := StatusActive
	next := NewStatusEvent(1, &from, StatusPaused, at.Add(time.Hour))
	require.NotNil(t, next.FromStatus)
	assert.Equal(t, "active", *next.FromStatus)
	assert.Equal(t, StatusPaused, next.ToStatus)
}
