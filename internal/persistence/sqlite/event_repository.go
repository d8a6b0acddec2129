package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/groupsync/internal/persistence"
)

const eventColumns = "id, schedule_id, title, description, start_time, end_time, created_at, updated_at"

// CreateEvent inserts an event. The CHECK constraint rejects start >= end.
func (s *Store) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.ScheduleID,
		event.Title,
		event.Description,
		formatTime(event.Start),
		formatTime(event.End),
		formatTime(event.CreatedAt),
		formatTime(event.UpdatedAt),
	)
	return mapError(err)
}

// UpdateEvent rewrites the text and interval of an event. schedule_id and created_at are kept.
func (s *Store) UpdateEvent(ctx context.Context, event persistence.Event) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE events
			SET title = ?, description = ?, start_time = ?, end_time = ?, updated_at = ?
			WHERE id = ?`,
			event.Title,
			event.Description,
			formatTime(event.Start),
			formatTime(event.End),
			formatTime(event.UpdatedAt),
			event.ID,
		)
		if err != nil {
			return mapError(err)
		}
		return expectAffected(result)
	})
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	row := s.pool.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err != nil {
		return persistence.Event{}, mapError(err)
	}
	return event, nil
}

// ListEvents returns events matching the filter ordered by start time. A non-nil but
// empty ScheduleIDs matches nothing.
func (s *Store) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	if filter.ScheduleIDs != nil && len(filter.ScheduleIDs) == 0 {
		return nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	if len(filter.ScheduleIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.ScheduleIDs)), ",")
		clauses = append(clauses, "schedule_id IN ("+placeholders+")")
		for _, id := range filter.ScheduleIDs {
			args = append(args, id)
		}
	}
	if !filter.OverlapsEnd.IsZero() {
		clauses = append(clauses, "start_time < ?")
		args = append(args, formatTime(filter.OverlapsEnd))
	}
	if !filter.OverlapsStart.IsZero() {
		clauses = append(clauses, "end_time > ?")
		args = append(args, formatTime(filter.OverlapsStart))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time, id"

	rows, err := s.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	events := make([]persistence.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate events: %w", err)
	}
	return events, nil
}

// DeleteEvent removes an event by ID.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	result, err := s.pool.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(result)
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var event persistence.Event
	var start, end, createdAt, updatedAt string
	if err := row.Scan(
		&event.ID,
		&event.ScheduleID,
		&event.Title,
		&event.Description,
		&start,
		&end,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Event{}, err
	}

	var err error
	if event.Start, err = parseTime(start); err != nil {
		return persistence.Event{}, err
	}
	if event.End, err = parseTime(end); err != nil {
		return persistence.Event{}, err
	}
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}
