package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/groupsync/internal/persistence"
)

// Seeder writes records straight into a store, bypassing the services, so tests can
// arrange state without triggering notifications.
type Seeder struct {
	tb    testing.TB
	store persistence.Store
	ids   *IDGenerator
	now   time.Time
}

// NewSeeder returns a seeder stamping records with ReferenceTime.
func NewSeeder(tb testing.TB, store persistence.Store) *Seeder {
	return &Seeder{tb: tb, store: store, ids: NewIDGenerator("seed"), now: ReferenceTime()}
}

// Group creates a group administered by adminID.
func (s *Seeder) Group(id, adminID string) persistence.Group {
	s.tb.Helper()
	group := persistence.Group{ID: id, Name: "Group " + id, AdminID: adminID, CreatedAt: s.now}
	if err := s.store.CreateGroup(context.Background(), group); err != nil {
		s.tb.Fatalf("seed group %s: %v", id, err)
	}
	return group
}

// Schedule creates a schedule owned by ownerID.
func (s *Seeder) Schedule(id, ownerID string) persistence.Schedule {
	s.tb.Helper()
	schedule := persistence.Schedule{ID: id, OwnerID: ownerID, Name: "Schedule " + id, CreatedAt: s.now}
	if err := s.store.CreateSchedule(context.Background(), schedule); err != nil {
		s.tb.Fatalf("seed schedule %s: %v", id, err)
	}
	return schedule
}

// Member adds userID to the group. An empty activeScheduleID leaves the member inactive.
func (s *Seeder) Member(groupID, userID, activeScheduleID string) persistence.Membership {
	s.tb.Helper()
	membership := persistence.Membership{
		ID:       s.ids.Next(),
		UserID:   userID,
		GroupID:  groupID,
		JoinedAt: s.now,
	}
	if activeScheduleID != "" {
		membership.ActiveScheduleID = &activeScheduleID
	}
	if err := s.store.CreateMembership(context.Background(), membership); err != nil {
		s.tb.Fatalf("seed membership %s/%s: %v", groupID, userID, err)
	}
	return membership
}

// Busy adds an event covering [start, end) to the schedule.
func (s *Seeder) Busy(scheduleID string, start, end time.Time) persistence.Event {
	s.tb.Helper()
	event := persistence.Event{
		ID:         s.ids.Next(),
		ScheduleID: scheduleID,
		Title:      "Busy",
		Start:      start,
		End:        end,
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	}
	if err := s.store.CreateEvent(context.Background(), event); err != nil {
		s.tb.Fatalf("seed event on %s: %v", scheduleID, err)
	}
	return event
}
