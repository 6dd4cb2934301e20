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

type MemoRepository struct {
	db *database.DB
}

func NewMemoRepository(db *database.DB) *MemoRepository {
	return &MemoRepository{db: db}
}

const memoColumns = `id, owner_id, content, category, priority, is_synced, is_deleted, created_at, updated_at`

func scanMemo(row interface{ Scan(...any) error }) (*models.Memo, error) {
	memo := &models.Memo{}
	err := row.Scan(&memo.ID, &memo.OwnerID, &memo.Content, &memo.Category, &memo.Priority,
		&memo.IsSynced, &memo.IsDeleted, &memo.CreatedAt, &memo.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: memo row: %v", ErrCorrupted, err)
	}
	return memo, nil
}

// Create persists a new memo. The ID is assigned here if the caller did not
// set one; it never changes afterwards. New records start unsynced.
func (r *MemoRepository) Create(ctx context.Context, memo *models.Memo) error {
	if memo.ID == "" {
		memo.ID = models.NewID()
	}
	now := time.Now().UTC()
	memo.CreatedAt = now
	memo.UpdatedAt = now
	memo.IsSynced = false

	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO memo (`+memoColumns+`) VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		memo.ID, memo.OwnerID, memo.Content, memo.Category, memo.Priority,
		memo.CreatedAt, memo.UpdatedAt,
	)
	return err
}

func (r *MemoRepository) GetByID(ctx context.Context, id string) (*models.Memo, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+memoColumns+` FROM memo WHERE id = ?`, id)
	return scanMemo(row)
}

// Update replaces the mutable fields in one statement, bumping updated_at and
// clearing is_synced with them so the change is all-or-nothing.
func (r *MemoRepository) Update(ctx context.Context, memo *models.Memo) error {
	memo.UpdatedAt = time.Now().UTC()
	memo.IsSynced = false
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE memo SET content = ?, category = ?, priority = ?, is_synced = 0, updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		memo.Content, memo.Category, memo.Priority, memo.UpdatedAt, memo.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SoftDelete marks the memo deleted. Deletion is a mutation like any other:
// it bumps updated_at and clears is_synced so the tombstone gets uploaded.
func (r *MemoRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE memo SET is_deleted = 1, is_synced = 0, updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *MemoRepository) GetByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]*models.Memo, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+memoColumns+` FROM memo
		 WHERE owner_id = ? AND is_deleted = 0
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemos(rows)
}

// Search matches keyword as a case-insensitive substring over content and
// category, skipping deleted memos.
func (r *MemoRepository) Search(ctx context.Context, ownerID, keyword string) ([]*models.Memo, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+memoColumns+` FROM memo
		 WHERE owner_id = ? AND is_deleted = 0
		   AND (lower(content) LIKE lower(?) OR lower(category) LIKE lower(?))
		 ORDER BY created_at DESC`,
		ownerID, "%"+keyword+"%", "%"+keyword+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemos(rows)
}

// ListUnsynced returns every memo, deleted or not, whose last local mutation
// has not been acknowledged by the server. Ordering is stable so sync runs
// are deterministic.
func (r *MemoRepository) ListUnsynced(ctx context.Context, ownerID string) ([]*models.Memo, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+memoColumns+` FROM memo
		 WHERE owner_id = ? AND is_synced = 0
		 ORDER BY created_at ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemos(rows)
}

// MarkSynced flips is_synced only if updated_at still matches the uploaded
// version, so an acknowledgment for a stale copy cannot hide a newer local
// mutation.
func (r *MemoRepository) MarkSynced(ctx context.Context, id string, version time.Time) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`UPDATE memo SET is_synced = 1 WHERE id = ? AND updated_at = ?`,
		id, version,
	)
	return err
}

// ApplyRemote upserts a server copy, keeping the local row unless the remote
// updated_at is strictly newer. Applied rows count as synced.
func (r *MemoRepository) ApplyRemote(ctx context.Context, memo *models.Memo) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO memo (`+memoColumns+`) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   content = excluded.content,
		   category = excluded.category,
		   priority = excluded.priority,
		   is_synced = 1,
		   is_deleted = excluded.is_deleted,
		   updated_at = excluded.updated_at
		 WHERE excluded.updated_at > memo.updated_at`,
		memo.ID, memo.OwnerID, memo.Content, memo.Category, memo.Priority,
		memo.IsDeleted, memo.CreatedAt.UTC(), memo.UpdatedAt.UTC(),
	)
	return err
}

func (r *MemoRepository) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.SQL.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memo WHERE owner_id = ? AND is_synced = 0`, ownerID,
	).Scan(&n)
	return n, err
}

func collectMemos(rows *sql.Rows) ([]*models.Memo, error) {
	var memos []*models.Memo
	for rows.Next() {
		memo, err := scanMemo(rows)
		if err != nil {
			return nil, err
		}
		memos = append(memos, memo)
	}
	return memos, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
