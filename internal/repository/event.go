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

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, owner_id, title, starts_at, duration, location, participants, recurrence_rule, is_synced, is_deleted, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	event := &models.Event{}
	err := row.Scan(&event.ID, &event.OwnerID, &event.Title, &event.StartsAt, &event.Duration,
		&event.Location, &event.Participants, &event.RecurrenceRule,
		&event.IsSynced, &event.IsDeleted, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: event row: %v", ErrCorrupted, err)
	}
	return event, nil
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = models.NewID()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.IsSynced = false

	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO event (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		event.ID, event.OwnerID, event.Title, event.StartsAt, event.Duration,
		event.Location, event.Participants, event.RecurrenceRule,
		event.CreatedAt, event.UpdatedAt,
	)
	return err
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM event WHERE id = ?`, id)
	return scanEvent(row)
}

func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	event.IsSynced = false
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE event SET title = ?, starts_at = ?, duration = ?, location = ?,
		   participants = ?, recurrence_rule = ?, is_synced = 0, updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		event.Title, event.StartsAt, event.Duration, event.Location,
		event.Participants, event.RecurrenceRule, event.UpdatedAt, event.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *EventRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.SQL.ExecContext(ctx,
		`UPDATE event SET is_deleted = 1, is_synced = 0, updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// GetByOwnerID lists events soonest first, the natural order for a schedule.
func (r *EventRepository) GetByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]*models.Event, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM event
		 WHERE owner_id = ? AND is_deleted = 0
		 ORDER BY starts_at ASC LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// GetUpcoming returns non-deleted events starting at or after the given time.
func (r *EventRepository) GetUpcoming(ctx context.Context, ownerID string, from time.Time) ([]*models.Event, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM event
		 WHERE owner_id = ? AND is_deleted = 0 AND starts_at >= ?
		 ORDER BY starts_at ASC`,
		ownerID, from,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *EventRepository) Search(ctx context.Context, ownerID, keyword string) ([]*models.Event, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM event
		 WHERE owner_id = ? AND is_deleted = 0
		   AND (lower(title) LIKE lower(?) OR lower(location) LIKE lower(?))
		 ORDER BY starts_at ASC`,
		ownerID, "%"+keyword+"%", "%"+keyword+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *EventRepository) ListUnsynced(ctx context.Context, ownerID string) ([]*models.Event, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM event
		 WHERE owner_id = ? AND is_synced = 0
		 ORDER BY created_at ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *EventRepository) MarkSynced(ctx context.Context, id string, version time.Time) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`UPDATE event SET is_synced = 1 WHERE id = ? AND updated_at = ?`,
		id, version,
	)
	return err
}

func (r *EventRepository) ApplyRemote(ctx context.Context, event *models.Event) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO event (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   starts_at = excluded.starts_at,
		   duration = excluded.duration,
		   location = excluded.location,
		   participants = excluded.participants,
		   recurrence_rule = excluded.recurrence_rule,
		   is_synced = 1,
		   is_deleted = excluded.is_deleted,
		   updated_at = excluded.updated_at
		 WHERE excluded.updated_at > event.updated_at`,
		event.ID, event.OwnerID, event.Title, event.StartsAt, event.Duration,
		event.Location, event.Participants, event.RecurrenceRule,
		event.IsDeleted, event.CreatedAt.UTC(), event.UpdatedAt.UTC(),
	)
	return err
}

func (r *EventRepository) CountUnsynced(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.SQL.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event WHERE owner_id = ? AND is_synced = 0`, ownerID,
	).Scan(&n)
	return n, err
}

func collectEvents(rows *sql.Rows) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
