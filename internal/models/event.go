package models

import (
	"time"

	"github.com/merehq/mere-core/internal/rrule"
)

type Event struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	StartsAt       time.Time `json:"starts_at"`
	Duration       int       `json:"duration"` // Duration in minutes
	Location       string    `json:"location"`
	Participants   string    `json:"participants"`
	RecurrenceRule string    `json:"recurrence_rule"` // RFC 5545 RRULE
	IsSynced       bool      `json:"is_synced"`
	IsDeleted      bool      `json:"is_deleted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsRecurring returns true if this event has a recurrence rule
func (e *Event) IsRecurring() bool {
	return rrule.IsRecurring(e.RecurrenceRule)
}

// EndTime calculates end time based on starts_at and duration
func (e *Event) EndTime() *time.Time {
	if e.Duration == 0 {
		return nil
	}
	endTime := e.StartsAt.Add(time.Duration(e.Duration) * time.Minute)
	return &endTime
}

// NextOccurrence returns the first occurrence after the given time, or nil
// for a one-time event that has already passed.
func (e *Event) NextOccurrence(after time.Time) (*time.Time, error) {
	if !e.IsRecurring() {
		if e.StartsAt.After(after) {
			t := e.StartsAt
			return &t, nil
		}
		return nil, nil
	}
	return rrule.NextOccurrence(e.RecurrenceRule, e.StartsAt, after)
}
