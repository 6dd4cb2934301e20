package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/merehq/mere-core/internal/database"
	"github.com/merehq/mere-core/internal/models"
)

type TodoRepository struct {
	db *database.DB
}

func NewTodoRepository(db *database.DB) *TodoRepository {
	return &TodoRepository{db: db}
}

const todoColumns = `id, owner_id, title, description, priority, category, due_time, completed_at, is_synced, is_deleted, created_at, updated_at`

func scanTodo(row interface{ Scan(...any) error }) (*models.Todo, error) {
	todo := &models.Todo{}
	err := row.Scan(&todo.ID, &todo.OwnerID, &todo.Title, &todo.Description, &todo.Priority,
		&todo.Category, &todo.DueTime, &todo.CompletedAt,
		&todo.IsSynced, &todo.IsDeleted, &todo.CreatedAt, &todo.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: todo row: %v", ErrCorrupted, err)
	}
	return todo, nil
}

func (r *TodoRepository) Create(ctx context.Context, todo *models.Todo) error {
	if todo.ID == "" {
		todo.ID = models.NewID()
	}
	now := time.Now().UTC()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	todo.IsSynced = false

	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO todo (`+todoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 0, 0, ?, ?)`,
		todo.ID, todo.OwnerID, todo.Title, todo.Description, todo.Priority, todo.Category,
		todo.DueTime, todo.CreatedAt, todo.UpdatedAt,
	)
	return err
}

func (r *TodoRepository) GetByID(ctx context.Context, id string) (*models.Todo, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todo WHERE id = ?`, id)
	return scanTodo(row)
}

func (r *TodoRepository) Update(ctx context.Context, todo *models.Todo) error {
	todo.UpdatedAt = time.Now().UTC()
	todo.IsSynced = false
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE todo SET title = ?, description = ?, priority = ?, category = ?, due_time = ?,
		   is_synced = 0, updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		todo.Title, todo.Description, todo.Priority, todo.Category, todo.DueTime,
		todo.UpdatedAt, todo.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Complete stamps completed_at. Completion is a mutation, so it clears
// is_synced like any other write.
func (r *TodoRepository) Complete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE todo SET completed_at = ?, is_synced = 0, updated_at = ?
		 WHERE id = ? AND is_deleted = 0 AND completed_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *TodoRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE todo SET is_deleted = 1, is_synced = 0, updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *TodoRepository) GetByOwnerID(ctx context.Context, ownerID string, includeCompleted bool) ([]*models.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todo WHERE owner_id = ? AND is_deleted = 0`
	if !includeCompleted {
		query += ` AND completed_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.SQL.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTodos(rows)
}

// LatestOpen returns the most recently created todo that is neither
// completed nor deleted. ErrNotFound means there is nothing to complete.
func (r *TodoRepository) LatestOpen(ctx context.Context, ownerID string) (*models.Todo, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todo
		 WHERE owner_id = ? AND is_deleted = 0 AND completed_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`,
		ownerID,
	)
	return scanTodo(row)
}

func (r *TodoRepository) Search(ctx context.Context, ownerID, keyword string, includeCompleted bool) ([]*models.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todo
		 WHERE owner_id = ? AND is_deleted = 0
		   AND (lower(title) LIKE lower(?) OR lower(description) LIKE lower(?) OR lower(category) LIKE lower(?))`
	if !includeCompleted {
		query += ` AND completed_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	pattern := "%" + keyword + "%"
	rows, err := r.db.SQL.QueryContext(ctx, query, ownerID, pattern, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTodos(rows)
}

func (r *TodoRepository) ListUnsynced(ctx context.Context, ownerID string) ([]*models.Todo, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todo
		 WHERE owner_id = ? AND is_synced = 0
		 ORDER BY created_at ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTodos(rows)
}

func (r *TodoRepository) MarkSynced(ctx context.Context, id string, version time.Time) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`UPDATE todo SET is_synced = 1 WHERE id = ? AND updated_at = ?`,
		id, version,
	)
	return err
}

func (r *TodoRepository) ApplyRemote(ctx context.Context, todo *models.Todo) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO todo (`+todoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   description = excluded.description,
		   priority = excluded.priority,
		   category = excluded.category,
		   due_time = excluded.due_time,
		   completed_at = excluded.completed_at,
		   is_synced = 1,
		   is_deleted = excluded.is_deleted,
		   updated_at = excluded.updated_at
		 WHERE excluded.updated_at > todo.updated_at`,
		todo.ID, todo.OwnerID, todo.Title, todo.Description, todo.Priority, todo.Category,
		todo.DueTime, todo.CompletedAt, todo.IsDeleted, todo.CreatedAt.UTC(), todo.UpdatedAt.UTC(),
	)
	return err
}

func (r *TodoRepository) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.SQL.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM todo WHERE owner_id = ? AND is_synced = 0`, ownerID,
	).Scan(&n)
	return n, err
}

func collectTodos(rows *sql.Rows) ([]*models.Todo, error) {
	var todos []*models.Todo
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}
