package sqlite

import (
	"context"
	"fmt"

	"github.com/example/groupsync/internal/persistence"
)

// CreateSchedule inserts a personal schedule.
func (s *Store) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.db.ExecContext(ctx,
		`INSERT INTO schedules (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)`,
		schedule.ID, schedule.OwnerID, schedule.Name, formatTime(schedule.CreatedAt),
	)
	return mapError(err)
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	row := s.pool.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at FROM schedules WHERE id = ?`, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		return persistence.Schedule{}, mapError(err)
	}
	return schedule, nil
}

// ListSchedulesByOwner returns the schedules owned by ownerID.
func (s *Store) ListSchedulesByOwner(ctx context.Context, ownerID string) ([]persistence.Schedule, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		`SELECT id, owner_id, name, created_at FROM schedules WHERE owner_id = ? ORDER BY created_at, id`,
		ownerID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	schedules := make([]persistence.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate schedules: %w", err)
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule. Events cascade and memberships sharing it are set to NULL.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	result, err := s.pool.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(result)
}

func scanSchedule(row rowScanner) (persistence.Schedule, error) {
	var (
		schedule  persistence.Schedule
		createdAt string
	)
	if err := row.Scan(&schedule.ID, &schedule.OwnerID, &schedule.Name, &createdAt); err != nil {
		return persistence.Schedule{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return persistence.Schedule{}, err
	}
	schedule.CreatedAt = t
	return schedule, nil
}
