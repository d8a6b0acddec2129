package application

import (
	"context"
	"time"

	"github.com/example/groupsync/internal/availability"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
}

// ChangeNotifier receives committed mutations so subscribers can be told to refetch.
// Implementations must not block on subscriber I/O.
type ChangeNotifier interface {
	EventChanged(ctx context.Context, scheduleID string)
	ActiveScheduleChanged(ctx context.Context, groupID string, previous, current *string)
	GroupRenamed(ctx context.Context, groupID, previousName, name string)
}

type noopNotifier struct{}

func (noopNotifier) EventChanged(context.Context, string) {}
func (noopNotifier) ActiveScheduleChanged(context.Context, string, *string, *string) {}
func (noopNotifier) GroupRenamed(context.Context, string, string, string) {}

func notifierOrNoop(n ChangeNotifier) ChangeNotifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// AvailabilityParams carries the raw query of an availability request. Start and End are
// ISO-8601 timestamps; Step is the slot length in minutes. Mode and MinPeople are
// echoed back and do not influence the computation.
type AvailabilityParams struct {
	Principal Principal
	GroupID   string
	Start     string
	End       string
	Step      string
	Mode      string
	MinPeople string
}

// AvailabilityReport is the computed report plus the echoed request attributes.
type AvailabilityReport struct {
	availability.Report
	GroupID   string
	Mode      string
	MinPeople string
}

// CreateGroupParams wraps the data required to create a group.
type CreateGroupParams struct {
	Principal Principal
	Name      string
}

// RenameGroupParams wraps the data required to rename a group.
type RenameGroupParams struct {
	Principal Principal
	GroupID   string
	Name      string
}

// AddMemberParams wraps the data required to add a user to a group.
type AddMemberParams struct {
	Principal Principal
	GroupID   string
	UserID    string
}

// RemoveMemberParams wraps the data required to remove a user from a group.
type RemoveMemberParams struct {
	Principal Principal
	GroupID   string
	UserID    string
}

// SetActiveScheduleParams designates (or clears, when ScheduleID is nil) the caller's
// shared schedule in a group.
type SetActiveScheduleParams struct {
	Principal  Principal
	GroupID    string
	ScheduleID *string
}

// CreateScheduleParams wraps the data required to create a personal schedule.
type CreateScheduleParams struct {
	Principal Principal
	Name      string
}

// EventInput captures caller provided event fields.
type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// CreateEventParams wraps the data required to add an event to a schedule.
type CreateEventParams struct {
	Principal  Principal
	ScheduleID string
	Input      EventInput
}

// UpdateEventParams wraps the data required to modify an event.
type UpdateEventParams struct {
	Principal  Principal
	ScheduleID string
	EventID    string
	Input      EventInput
}

// ListEventsParams narrows an event listing to an optional window.
type ListEventsParams struct {
	Principal  Principal
	ScheduleID string
	From       time.Time
	To         time.Time
}
