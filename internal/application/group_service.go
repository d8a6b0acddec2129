package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/groupsync/internal/capability"
	"github.com/example/groupsync/internal/persistence"
)

const maxNameLength = 100

// GroupStore captures the persistence operations needed by the group service.
type GroupStore interface {
	persistence.GroupRepository
	persistence.MembershipRepository
	GetSchedule(ctx context.Context, id string) (persistence.Schedule, error)
}

// GroupService manages groups, their members and the schedule each member shares.
type GroupService struct {
	store       GroupStore
	notifier    ChangeNotifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewGroupService wires dependencies for group operations.
func NewGroupService(store GroupStore, notifier ChangeNotifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *GroupService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &GroupService{
		store:       store,
		notifier:    notifierOrNoop(notifier),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *GroupService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "GroupService", operation, attrs...)
}

// CreateGroup creates a group administered by the caller. The admin is not enrolled as a member.
func (s *GroupService) CreateGroup(ctx context.Context, params CreateGroupParams) (group persistence.Group, err error) {
	if s == nil || s.store == nil {
		return persistence.Group{}, fmt.Errorf("GroupService is not configured")
	}
	logger := s.loggerWith(ctx, "CreateGroup", "principal_id", params.Principal.UserID)
	defer func() {
		logOutcome(ctx, logger.With("group_id", group.ID), err, "failed to create group", "group created")
	}()

	if params.Principal.UserID == "" {
		return persistence.Group{}, ErrUnauthenticated
	}
	name, vErr := validateName(params.Name)
	if vErr.HasErrors() {
		return persistence.Group{}, vErr
	}

	group = persistence.Group{
		ID:        s.idGenerator(),
		Name:      name,
		AdminID:   params.Principal.UserID,
		CreatedAt: s.now().UTC(),
	}
	if err = s.store.CreateGroup(ctx, group); err != nil {
		return persistence.Group{}, mapRepoError(err)
	}
	return group, nil
}

// GetGroup returns a group visible to the caller.
func (s *GroupService) GetGroup(ctx context.Context, principal Principal, groupID string) (persistence.Group, error) {
	group, _, err := s.loadVisibleGroup(ctx, principal, groupID)
	return group, err
}

// ListGroups returns the groups the caller administers or belongs to.
func (s *GroupService) ListGroups(ctx context.Context, principal Principal) ([]persistence.Group, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("GroupService is not configured")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthenticated
	}
	groups, err := s.store.ListGroupsForUser(ctx, principal.UserID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return groups, nil
}

// RenameGroup changes a group's name. Only the admin may rename, and an unchanged
// name is accepted without notifying subscribers.
func (s *GroupService) RenameGroup(ctx context.Context, params RenameGroupParams) (group persistence.Group, err error) {
	if s == nil || s.store == nil {
		return persistence.Group{}, fmt.Errorf("GroupService is not configured")
	}
	logger := s.loggerWith(ctx, "RenameGroup",
		"principal_id", params.Principal.UserID,
		"group_id", params.GroupID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to rename group", "group renamed")
	}()

	if params.Principal.UserID == "" {
		return persistence.Group{}, ErrUnauthenticated
	}
	name, vErr := validateName(params.Name)
	if vErr.HasErrors() {
		return persistence.Group{}, vErr
	}

	group, err = s.store.GetGroup(ctx, params.GroupID)
	if err != nil {
		return persistence.Group{}, mapRepoError(err)
	}
	if !capability.IsGroupAdmin(group, params.Principal.UserID) {
		return persistence.Group{}, ErrUnauthorized
	}
	if group.Name == name {
		return group, nil
	}

	previous := group.Name
	group.Name = name
	if err = s.store.UpdateGroup(ctx, group); err != nil {
		return persistence.Group{}, mapRepoError(err)
	}
	s.notifier.GroupRenamed(ctx, group.ID, previous, group.Name)
	return group, nil
}

// DeleteGroup removes a group and its memberships. Admin only.
func (s *GroupService) DeleteGroup(ctx context.Context, principal Principal, groupID string) (err error) {
	if s == nil || s.store == nil {
		return fmt.Errorf("GroupService is not configured")
	}
	logger := s.loggerWith(ctx, "DeleteGroup", "principal_id", principal.UserID, "group_id", groupID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete group", "group deleted")
	}()

	if principal.UserID == "" {
		return ErrUnauthenticated
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return mapRepoError(err)
	}
	if !capability.IsGroupAdmin(group, principal.UserID) {
		return ErrUnauthorized
	}
	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// ListMembers returns the memberships of a group visible to the caller.
func (s *GroupService) ListMembers(ctx context.Context, principal Principal, groupID string) ([]persistence.Membership, error) {
	_, memberships, err := s.loadVisibleGroup(ctx, principal, groupID)
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

// AddMember enrolls a user in a group. Admin only. A new membership has no active
// schedule, so nothing is broadcast.
func (s *GroupService) AddMember(ctx context.Context, params AddMemberParams) (membership persistence.Membership, err error) {
	if s == nil || s.store == nil {
		return persistence.Membership{}, fmt.Errorf("GroupService is not configured")
	}
	logger := s.loggerWith(ctx, "AddMember",
		"principal_id", params.Principal.UserID,
		"group_id", params.GroupID,
		"user_id", params.UserID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to add member", "member added")
	}()

	if params.Principal.UserID == "" {
		return persistence.Membership{}, ErrUnauthenticated
	}
	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		vErr := &ValidationError{}
		vErr.add("user_id", "user id is required")
		return persistence.Membership{}, vErr
	}

	group, err := s.store.GetGroup(ctx, params.GroupID)
	if err != nil {
		return persistence.Membership{}, mapRepoError(err)
	}
	if !capability.IsGroupAdmin(group, params.Principal.UserID) {
		return persistence.Membership{}, ErrUnauthorized
	}

	membership = persistence.Membership{
		ID:       s.idGenerator(),
		UserID:   userID,
		GroupID:  group.ID,
		JoinedAt: s.now().UTC(),
	}
	if err = s.store.CreateMembership(ctx, membership); err != nil {
		return persistence.Membership{}, mapRepoError(err)
	}
	return membership, nil
}

// RemoveMember deletes a membership. The admin may remove anyone; members may leave.
// Removing a member who shared a schedule changes the group's availability.
func (s *GroupService) RemoveMember(ctx context.Context, params RemoveMemberParams) (err error) {
	if s == nil || s.store == nil {
		return fmt.Errorf("GroupService is not configured")
	}
	logger := s.loggerWith(ctx, "RemoveMember",
		"principal_id", params.Principal.UserID,
		"group_id", params.GroupID,
		"user_id", params.UserID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to remove member", "member removed")
	}()

	if params.Principal.UserID == "" {
		return ErrUnauthenticated
	}
	group, err := s.store.GetGroup(ctx, params.GroupID)
	if err != nil {
		return mapRepoError(err)
	}
	if !capability.IsGroupAdmin(group, params.Principal.UserID) && params.Principal.UserID != params.UserID {
		return ErrUnauthorized
	}

	membership, err := s.store.GetMembership(ctx, group.ID, params.UserID)
	if err != nil {
		return mapRepoError(err)
	}
	if err := s.store.DeleteMembership(ctx, group.ID, params.UserID); err != nil {
		return mapRepoError(err)
	}
	if membership.HasActiveSchedule() {
		s.notifier.ActiveScheduleChanged(ctx, group.ID, membership.ActiveScheduleID, nil)
	}
	return nil
}

// SetActiveSchedule designates the caller's shared schedule in a group. The caller must
// be a member and own the schedule. Setting the current value again is a no-op.
func (s *GroupService) SetActiveSchedule(ctx context.Context, params SetActiveScheduleParams) (membership persistence.Membership, err error) {
	if s == nil || s.store == nil {
		return persistence.Membership{}, fmt.Errorf("GroupService is not configured")
	}
	logger := s.loggerWith(ctx, "SetActiveSchedule",
		"principal_id", params.Principal.UserID,
		"group_id", params.GroupID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to set active schedule", "active schedule set")
	}()

	if params.Principal.UserID == "" {
		return persistence.Membership{}, ErrUnauthenticated
	}
	if _, err = s.store.GetGroup(ctx, params.GroupID); err != nil {
		return persistence.Membership{}, mapRepoError(err)
	}

	membership, err = s.store.GetMembership(ctx, params.GroupID, params.Principal.UserID)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Membership{}, ErrUnauthorized
	}
	if err != nil {
		return persistence.Membership{}, mapRepoError(err)
	}

	if params.ScheduleID != nil {
		schedule, err := s.store.GetSchedule(ctx, *params.ScheduleID)
		if err != nil {
			return persistence.Membership{}, mapRepoError(err)
		}
		if !capability.CanShareSchedule(membership, schedule) {
			return persistence.Membership{}, ErrUnauthorized
		}
	}

	if sameSchedule(membership.ActiveScheduleID, params.ScheduleID) {
		return membership, nil
	}

	previous := membership.ActiveScheduleID
	if err = s.store.SetActiveSchedule(ctx, params.GroupID, params.Principal.UserID, params.ScheduleID); err != nil {
		return persistence.Membership{}, mapRepoError(err)
	}
	membership.ActiveScheduleID = params.ScheduleID
	s.notifier.ActiveScheduleChanged(ctx, params.GroupID, previous, params.ScheduleID)
	return membership, nil
}

func (s *GroupService) loadVisibleGroup(ctx context.Context, principal Principal, groupID string) (persistence.Group, []persistence.Membership, error) {
	if s == nil || s.store == nil {
		return persistence.Group{}, nil, fmt.Errorf("GroupService is not configured")
	}
	if principal.UserID == "" {
		return persistence.Group{}, nil, ErrUnauthenticated
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return persistence.Group{}, nil, mapRepoError(err)
	}
	memberships, err := s.store.ListMemberships(ctx, group.ID)
	if err != nil {
		return persistence.Group{}, nil, mapRepoError(err)
	}
	if !capability.CanViewGroup(group, memberships, principal.UserID) {
		return persistence.Group{}, nil, ErrUnauthorized
	}
	return group, memberships, nil
}

func validateName(raw string) (string, *ValidationError) {
	vErr := &ValidationError{}
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		vErr.add("name", "name is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		vErr.add("name", fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return name, vErr
}

func sameSchedule(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
