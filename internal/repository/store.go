package repository

import (
	"context"

	"github.com/merehq/mere-core/internal/database"
	"github.com/merehq/mere-core/internal/models"
)

// Store bundles the per-kind repositories so dependents take one handle
// instead of three.
type Store struct {
	Memos  *MemoRepository
	Todos  *TodoRepository
	Events *EventRepository
}

func NewStore(db *database.DB) *Store {
	return &Store{
		Memos:  NewMemoRepository(db),
		Todos:  NewTodoRepository(db),
		Events: NewEventRepository(db),
	}
}

// UnsyncedSet is a snapshot of every record whose last mutation the server
// has not acknowledged, including pending deletions.
type UnsyncedSet struct {
	Memos  []*models.Memo
	Todos  []*models.Todo
	Events []*models.Event
}

func (s *UnsyncedSet) Total() int {
	return len(s.Memos) + len(s.Todos) + len(s.Events)
}

func (s *Store) ListUnsynced(ctx context.Context, ownerID string) (*UnsyncedSet, error) {
	memos, err := s.Memos.ListUnsynced(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	todos, err := s.Todos.ListUnsynced(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	events, err := s.Events.ListUnsynced(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &UnsyncedSet{Memos: memos, Todos: todos, Events: events}, nil
}

// UnsyncedCount is the aggregate the UI shows as pending work.
func (s *Store) UnsyncedCount(ctx context.Context, ownerID string) (int, error) {
	memos, err := s.Memos.CountUnsynced(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	todos, err := s.Todos.CountUnsynced(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	events, err := s.Events.CountUnsynced(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return memos + todos + events, nil
}
