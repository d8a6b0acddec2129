package persistence

import (
	"context"
	"time"
)

// GroupRepository exposes CRUD operations for groups.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group Group) error
	UpdateGroup(ctx context.Context, group Group) error
	GetGroup(ctx context.Context, id string) (Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]Group, error)
	DeleteGroup(ctx context.Context, id string) error
}

// MembershipRepository stores group memberships and the active schedule each member shares.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, membership Membership) error
	GetMembership(ctx context.Context, groupID, userID string) (Membership, error)
	ListMemberships(ctx context.Context, groupID string) ([]Membership, error)
	SetActiveSchedule(ctx context.Context, groupID, userID string, scheduleID *string) error
	DeleteMembership(ctx context.Context, groupID, userID string) error
	// ListGroupIDsByActiveSchedule returns the distinct groups in which at least one
	// member currently shares the schedule.
	ListGroupIDsByActiveSchedule(ctx context.Context, scheduleID string) ([]string, error)
}

// ScheduleRepository stores personal schedules.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	ListSchedulesByOwner(ctx context.Context, ownerID string) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// EventFilter narrows event queries. Events are returned when they overlap
// [OverlapsStart, OverlapsEnd); zero bounds are open.
type EventFilter struct {
	ScheduleIDs   []string
	OverlapsStart time.Time
	OverlapsEnd   time.Time
}

// EventRepository stores busy intervals attached to schedules.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Store is the full schedule store used by the application services.
type Store interface {
	GroupRepository
	MembershipRepository
	ScheduleRepository
	EventRepository
	Close() error
}
