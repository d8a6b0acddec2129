package sqlite

import (
	"context"
	"fmt"

	"github.com/example/groupsync/internal/persistence"
)

const groupColumns = "id, name, admin_id, created_at"

// CreateGroup inserts a new group.
func (s *Store) CreateGroup(ctx context.Context, group persistence.Group) error {
	if group.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.db.ExecContext(ctx,
		`INSERT INTO user_groups (id, name, admin_id, created_at) VALUES (?, ?, ?, ?)`,
		group.ID, group.Name, group.AdminID, formatTime(group.CreatedAt),
	)
	return mapError(err)
}

// UpdateGroup replaces the name and admin of an existing group.
func (s *Store) UpdateGroup(ctx context.Context, group persistence.Group) error {
	result, err := s.pool.db.ExecContext(ctx,
		`UPDATE user_groups SET name = ?, admin_id = ? WHERE id = ?`,
		group.Name, group.AdminID, group.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(result)
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	row := s.pool.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM user_groups WHERE id = ?`, id)
	group, err := scanGroup(row)
	if err != nil {
		return persistence.Group{}, mapError(err)
	}
	return group, nil
}

// ListGroupsForUser returns the groups the user administers or belongs to.
func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]persistence.Group, error) {
	rows, err := s.pool.db.QueryContext(ctx, `
		SELECT `+groupColumns+` FROM user_groups
		WHERE admin_id = ?
		   OR id IN (SELECT group_id FROM memberships WHERE user_id = ?)
		ORDER BY created_at, id`,
		userID, userID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	groups := make([]persistence.Group, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate groups: %w", err)
	}
	return groups, nil
}

// DeleteGroup removes a group; memberships cascade.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	result, err := s.pool.db.ExecContext(ctx, `DELETE FROM user_groups WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (persistence.Group, error) {
	var (
		group     persistence.Group
		createdAt string
	)
	if err := row.Scan(&group.ID, &group.Name, &group.AdminID, &createdAt); err != nil {
		return persistence.Group{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return persistence.Group{}, err
	}
	group.CreatedAt = t
	return group, nil
}
