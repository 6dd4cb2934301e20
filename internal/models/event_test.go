package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEndTime(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	event := &Event{StartsAt: start, Duration: 90}
	end := event.EndTime()
	require.NotNil(t, end)
	assert.Equal(t, start.Add(90*time.Minute), *end)

	assert.Nil(t, (&Event{StartsAt: start}).EndTime())
}

func TestEventIsRecurring(t *testing.T) {
	assert.True(t, (&Event{RecurrenceRule: "FREQ=DAILY"}).IsRecurring())
	assert.False(t, (&Event{}).IsRecurring())
	// A fragment without a frequency is not a usable rule.
	assert.False(t, (&Event{RecurrenceRule: "BYDAY=MO"}).IsRecurring())
}

func TestEventNextOccurrenceOneTime(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	event := &Event{StartsAt: start}

	next, err := event.NextOccurrence(start.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, start, *next)

	next, err = event.NextOccurrence(start.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestEventNextOccurrenceRecurring(t *testing.T) {
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC) // a Monday
	event := &Event{StartsAt: start, RecurrenceRule: "FREQ=WEEKLY;BYDAY=MO"}

	next, err := event.NextOccurrence(start)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, start.AddDate(0, 0, 7), *next)
}

func TestTodoIsCompleted(t *testing.T) {
	todo := &Todo{Title: "장보기"}
	assert.False(t, todo.IsCompleted())

	now := time.Now()
	todo.CompletedAt = &now
	assert.True(t, todo.IsCompleted())
}

func TestNewIDIsUnique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
