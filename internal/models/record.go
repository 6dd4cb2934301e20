package models

import "github.com/google/uuid"

// Kind identifies a record type. Sync uploads run in declaration order:
// memos first, then todos, then events.
type Kind string

const (
	KindMemo  Kind = "memo"
	KindTodo  Kind = "todo"
	KindEvent Kind = "event"
)

// NewID returns a new record identifier. IDs are assigned by the client at
// creation time and never change, so local and remote copies of a record can
// always be correlated.
func NewID() string {
	return uuid.New().String()
}
