package models

import "time"

type Todo struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Category    string     `json:"category"`
	DueTime     *time.Time `json:"due_time"`
	CompletedAt *time.Time `json:"completed_at"`
	IsSynced    bool       `json:"is_synced"`
	IsDeleted   bool       `json:"is_deleted"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Todo) IsCompleted() bool {
	return t.CompletedAt != nil
}
