package models

import "time"

type Memo struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Priority  int       `json:"priority"`
	IsSynced  bool      `json:"is_synced"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
