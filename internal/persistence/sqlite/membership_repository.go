package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/groupsync/internal/persistence"
)

const membershipColumns = "id, user_id, group_id, active_schedule_id, joined_at"

// CreateMembership inserts a membership. A second row for the same (user, group) is ErrDuplicate.
func (s *Store) CreateMembership(ctx context.Context, membership persistence.Membership) error {
	if membership.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.db.ExecContext(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES (?, ?, ?, ?, ?)`,
		membership.ID,
		membership.UserID,
		membership.GroupID,
		nullableString(membership.ActiveScheduleID),
		formatTime(membership.JoinedAt),
	)
	return mapError(err)
}

// GetMembership returns the membership of userID in groupID.
func (s *Store) GetMembership(ctx context.Context, groupID, userID string) (persistence.Membership, error) {
	row := s.pool.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	)
	membership, err := scanMembership(row)
	if err != nil {
		return persistence.Membership{}, mapError(err)
	}
	return membership, nil
}

// ListMemberships returns every membership of a group in join order.
func (s *Store) ListMemberships(ctx context.Context, groupID string) ([]persistence.Membership, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE group_id = ? ORDER BY joined_at, user_id`,
		groupID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	memberships := make([]persistence.Membership, 0)
	for rows.Next() {
		membership, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate memberships: %w", err)
	}
	return memberships, nil
}

// SetActiveSchedule points a membership at a schedule, or clears it when scheduleID is nil.
func (s *Store) SetActiveSchedule(ctx context.Context, groupID, userID string, scheduleID *string) error {
	result, err := s.pool.db.ExecContext(ctx,
		`UPDATE memberships SET active_schedule_id = ? WHERE group_id = ? AND user_id = ?`,
		nullableString(scheduleID), groupID, userID,
	)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(result)
}

// DeleteMembership removes userID from groupID.
func (s *Store) DeleteMembership(ctx context.Context, groupID, userID string) error {
	result, err := s.pool.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(result)
}

// ListGroupIDsByActiveSchedule uses idx_memberships_active_schedule_id.
func (s *Store) ListGroupIDsByActiveSchedule(ctx context.Context, scheduleID string) ([]string, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		`SELECT DISTINCT group_id FROM memberships WHERE active_schedule_id = ? ORDER BY group_id`,
		scheduleID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var groupIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan group id: %w", err)
		}
		groupIDs = append(groupIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate group ids: %w", err)
	}
	return groupIDs, nil
}

func scanMembership(row rowScanner) (persistence.Membership, error) {
	var (
		membership persistence.Membership
		activeID   sql.NullString
		joinedAt   string
	)
	if err := row.Scan(&membership.ID, &membership.UserID, &membership.GroupID, &activeID, &joinedAt); err != nil {
		return persistence.Membership{}, err
	}
	t, err := parseTime(joinedAt)
	if err != nil {
		return persistence.Membership{}, err
	}
	membership.ActiveScheduleID = stringPointer(activeID)
	membership.JoinedAt = t
	return membership, nil
}
