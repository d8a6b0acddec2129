package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/groupsync/internal/persistence"
)

// Storage is an in-memory schedule store. It mirrors the relational rules of the
// SQLite store: memberships are unique per (group, user), deleting a schedule
// clears the memberships that share it and drops its events, deleting a group
// drops its memberships.
type Storage struct {
	mu          sync.RWMutex
	groups      map[string]persistence.Group
	memberships map[string]persistence.Membership
	schedules   map[string]persistence.Schedule
	events      map[string]persistence.Event
	// activeIndex maps schedule id -> membership ids that currently share it.
	activeIndex map[string]map[string]struct{}
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		groups:      make(map[string]persistence.Group),
		memberships: make(map[string]persistence.Membership),
		schedules:   make(map[string]persistence.Schedule),
		events:      make(map[string]persistence.Event),
		activeIndex: make(map[string]map[string]struct{}),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// --- GroupRepository implementation ---

// CreateGroup stores a new group.
func (s *Storage) CreateGroup(ctx context.Context, group persistence.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ID]; ok {
		return fmt.Errorf("memory: group %s: %w", group.ID, persistence.ErrDuplicate)
	}
	s.groups[group.ID] = group
	return nil
}

// UpdateGroup replaces the mutable fields of an existing group.
func (s *Storage) UpdateGroup(ctx context.Context, group persistence.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[group.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	existing.Name = group.Name
	existing.AdminID = group.AdminID
	s.groups[group.ID] = existing
	return nil
}

// GetGroup retrieves a group by ID.
func (s *Storage) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[id]
	if !ok {
		return persistence.Group{}, persistence.ErrNotFound
	}
	return group, nil
}

// ListGroupsForUser returns the groups a user administers or belongs to, ordered by CreatedAt.
func (s *Storage) ListGroupsForUser(ctx context.Context, userID string) ([]persistence.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	groups := make([]persistence.Group, 0)
	for _, group := range s.groups {
		if group.AdminID == userID {
			seen[group.ID] = struct{}{}
			groups = append(groups, group)
		}
	}
	for _, membership := range s.memberships {
		if membership.UserID != userID {
			continue
		}
		if _, ok := seen[membership.GroupID]; ok {
			continue
		}
		if group, ok := s.groups[membership.GroupID]; ok {
			seen[group.ID] = struct{}{}
			groups = append(groups, group)
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].ID < groups[j].ID
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	return groups, nil
}

// DeleteGroup removes a group and its memberships.
func (s *Storage) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.groups, id)

	for membershipID, membership := range s.memberships {
		if membership.GroupID == id {
			s.unindexLocked(membership)
			delete(s.memberships, membershipID)
		}
	}
	return nil
}

// --- MembershipRepository implementation ---

// CreateMembership stores a membership; a second membership for the same (group, user) is rejected.
func (s *Storage) CreateMembership(ctx context.Context, membership persistence.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[membership.GroupID]; !ok {
		return fmt.Errorf("memory: group %s: %w", membership.GroupID, persistence.ErrForeignKeyViolation)
	}
	if _, ok := s.memberships[membership.ID]; ok {
		return fmt.Errorf("memory: membership %s: %w", membership.ID, persistence.ErrDuplicate)
	}
	if _, ok := s.findMembershipLocked(membership.GroupID, membership.UserID); ok {
		return fmt.Errorf("memory: user %s already in group %s: %w", membership.UserID, membership.GroupID, persistence.ErrDuplicate)
	}
	if membership.HasActiveSchedule() {
		if _, ok := s.schedules[*membership.ActiveScheduleID]; !ok {
			return fmt.Errorf("memory: schedule %s: %w", *membership.ActiveScheduleID, persistence.ErrForeignKeyViolation)
		}
	}

	membership.ActiveScheduleID = cloneString(membership.ActiveScheduleID)
	s.memberships[membership.ID] = membership
	s.indexLocked(membership)
	return nil
}

// GetMembership retrieves the membership of a user in a group.
func (s *Storage) GetMembership(ctx context.Context, groupID, userID string) (persistence.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	membership, ok := s.findMembershipLocked(groupID, userID)
	if !ok {
		return persistence.Membership{}, persistence.ErrNotFound
	}
	return cloneMembership(membership), nil
}

// ListMemberships returns all memberships of a group ordered by JoinedAt.
func (s *Storage) ListMemberships(ctx context.Context, groupID string) ([]persistence.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberships := make([]persistence.Membership, 0)
	for _, membership := range s.memberships {
		if membership.GroupID == groupID {
			memberships = append(memberships, cloneMembership(membership))
		}
	}

	sort.Slice(memberships, func(i, j int) bool {
		if memberships[i].JoinedAt.Equal(memberships[j].JoinedAt) {
			return memberships[i].UserID < memberships[j].UserID
		}
		return memberships[i].JoinedAt.Before(memberships[j].JoinedAt)
	})
	return memberships, nil
}

// SetActiveSchedule replaces the schedule a member shares with the group. A nil
// scheduleID clears it.
func (s *Storage) SetActiveSchedule(ctx context.Context, groupID, userID string, scheduleID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	membership, ok := s.findMembershipLocked(groupID, userID)
	if !ok {
		return persistence.ErrNotFound
	}
	if scheduleID != nil {
		if _, ok := s.schedules[*scheduleID]; !ok {
			return fmt.Errorf("memory: schedule %s: %w", *scheduleID, persistence.ErrForeignKeyViolation)
		}
	}

	s.unindexLocked(membership)
	membership.ActiveScheduleID = cloneString(scheduleID)
	s.memberships[membership.ID] = membership
	s.indexLocked(membership)
	return nil
}

// DeleteMembership removes a user from a group.
func (s *Storage) DeleteMembership(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	membership, ok := s.findMembershipLocked(groupID, userID)
	if !ok {
		return persistence.ErrNotFound
	}
	s.unindexLocked(membership)
	delete(s.memberships, membership.ID)
	return nil
}

// ListGroupIDsByActiveSchedule returns the sorted, distinct group ids whose members share the schedule.
func (s *Storage) ListGroupIDsByActiveSchedule(ctx context.Context, scheduleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	membershipIDs := s.activeIndex[scheduleID]
	if len(membershipIDs) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(membershipIDs))
	groupIDs := make([]string, 0, len(membershipIDs))
	for membershipID := range membershipIDs {
		groupID := s.memberships[membershipID].GroupID
		if _, ok := seen[groupID]; ok {
			continue
		}
		seen[groupID] = struct{}{}
		groupIDs = append(groupIDs, groupID)
	}
	sort.Strings(groupIDs)
	return groupIDs, nil
}

// --- ScheduleRepository implementation ---

// CreateSchedule stores a new schedule.
func (s *Storage) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[schedule.ID]; ok {
		return fmt.Errorf("memory: schedule %s: %w", schedule.ID, persistence.ErrDuplicate)
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Storage) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return persistence.Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

// ListSchedulesByOwner returns the schedules of a user ordered by CreatedAt.
func (s *Storage) ListSchedulesByOwner(ctx context.Context, ownerID string) ([]persistence.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := make([]persistence.Schedule, 0)
	for _, schedule := range s.schedules {
		if schedule.OwnerID == ownerID {
			schedules = append(schedules, schedule)
		}
	}
	sort.Slice(schedules, func(i, j int) bool {
		if schedules[i].CreatedAt.Equal(schedules[j].CreatedAt) {
			return schedules[i].ID < schedules[j].ID
		}
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})
	return schedules, nil
}

// DeleteSchedule removes a schedule, its events, and clears memberships sharing it.
func (s *Storage) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)

	for eventID, event := range s.events {
		if event.ScheduleID == id {
			delete(s.events, eventID)
		}
	}
	for membershipID := range s.activeIndex[id] {
		membership := s.memberships[membershipID]
		membership.ActiveScheduleID = nil
		s.memberships[membershipID] = membership
	}
	delete(s.activeIndex, id)
	return nil
}

// --- EventRepository implementation ---

// CreateEvent stores a new event.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("memory: event %s: %w", event.ID, persistence.ErrDuplicate)
	}
	if _, ok := s.schedules[event.ScheduleID]; !ok {
		return fmt.Errorf("memory: schedule %s: %w", event.ScheduleID, persistence.ErrForeignKeyViolation)
	}
	if !event.Start.Before(event.End) {
		return persistence.ErrConstraintViolation
	}
	s.events[event.ID] = event
	return nil
}

// UpdateEvent replaces the interval and text of an existing event. The owning schedule is immutable.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if !event.Start.Before(event.End) {
		return persistence.ErrConstraintViolation
	}
	event.ScheduleID = existing.ScheduleID
	event.CreatedAt = existing.CreatedAt
	s.events[event.ID] = event
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return event, nil
}

// ListEvents returns events matching the filter ordered by Start.
func (s *Storage) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scheduleSet map[string]struct{}
	if filter.ScheduleIDs != nil {
		if len(filter.ScheduleIDs) == 0 {
			return nil, nil
		}
		scheduleSet = make(map[string]struct{}, len(filter.ScheduleIDs))
		for _, id := range filter.ScheduleIDs {
			scheduleSet[id] = struct{}{}
		}
	}

	events := make([]persistence.Event, 0)
	for _, event := range s.events {
		if scheduleSet != nil {
			if _, ok := scheduleSet[event.ScheduleID]; !ok {
				continue
			}
		}
		if !filter.OverlapsEnd.IsZero() && !event.Start.Before(filter.OverlapsEnd) {
			continue
		}
		if !filter.OverlapsStart.IsZero() && !event.End.After(filter.OverlapsStart) {
			continue
		}
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

// DeleteEvent removes an event by ID.
func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

// --- Helpers ---

func (s *Storage) findMembershipLocked(groupID, userID string) (persistence.Membership, bool) {
	for _, membership := range s.memberships {
		if membership.GroupID == groupID && membership.UserID == userID {
			return membership, true
		}
	}
	return persistence.Membership{}, false
}

func (s *Storage) indexLocked(membership persistence.Membership) {
	if !membership.HasActiveSchedule() {
		return
	}
	scheduleID := *membership.ActiveScheduleID
	ids, ok := s.activeIndex[scheduleID]
	if !ok {
		ids = make(map[string]struct{})
		s.activeIndex[scheduleID] = ids
	}
	ids[membership.ID] = struct{}{}
}

func (s *Storage) unindexLocked(membership persistence.Membership) {
	if !membership.HasActiveSchedule() {
		return
	}
	scheduleID := *membership.ActiveScheduleID
	ids := s.activeIndex[scheduleID]
	delete(ids, membership.ID)
	if len(ids) == 0 {
		delete(s.activeIndex, scheduleID)
	}
}

func cloneMembership(membership persistence.Membership) persistence.Membership {
	membership.ActiveScheduleID = cloneString(membership.ActiveScheduleID)
	return membership
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
