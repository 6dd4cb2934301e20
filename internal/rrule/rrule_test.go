package rrule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRRuleAcceptsPrefix(t *testing.T) {
	dtstart := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	for _, raw := range []string{"FREQ=DAILY", "RRULE:FREQ=DAILY"} {
		rule, err := ParseRRule(raw, dtstart)
		require.NoError(t, err, raw)
		assert.Equal(t, dtstart, rule.After(dtstart.Add(-time.Hour), false))
	}
}

func TestParseRRuleInvalid(t *testing.T) {
	_, err := ParseRRule("FREQ=SOMETIMES", time.Now())
	require.Error(t, err)
}

func TestNextOccurrence(t *testing.T) {
	dtstart := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) // a Monday

	next, err := NextOccurrence("FREQ=WEEKLY;BYDAY=MO", dtstart, dtstart)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceExhaustedRule(t *testing.T) {
	dtstart := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	next, err := NextOccurrence("FREQ=DAILY;COUNT=2", dtstart, dtstart.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextOccurrences(t *testing.T) {
	dtstart := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	got, err := NextOccurrences("FREQ=DAILY", dtstart, dtstart, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, dtstart.AddDate(0, 0, 1), got[0])
	assert.Equal(t, dtstart.AddDate(0, 0, 2), got[1])
	assert.Equal(t, dtstart.AddDate(0, 0, 3), got[2])
}

func TestHumanReadableKorean(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"FREQ=DAILY", "매일"},
		{"RRULE:FREQ=WEEKLY;BYDAY=MO,WE", "매주 월요일, 수요일"},
		{"FREQ=WEEKLY;INTERVAL=2", "2주마다"},
		{"FREQ=MONTHLY;COUNT=6", "매월, 총 6회"},
		{"FREQ=DAILY;BYHOUR=9", "매일 9시"},
		{"", "반복 없음"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanReadableKorean(tt.rule), tt.rule)
	}
}

func TestIsRecurring(t *testing.T) {
	assert.True(t, IsRecurring("FREQ=DAILY"))
	assert.True(t, IsRecurring("rrule:freq=weekly"))
	assert.False(t, IsRecurring(""))
	assert.False(t, IsRecurring("BYDAY=MO"))
}
