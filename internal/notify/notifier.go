// Package notify turns committed mutations into room broadcasts.
package notify

import (
	"context"
	"log/slog"

	"github.com/example/groupsync/internal/logging"
	"github.com/example/groupsync/internal/realtime"
)

// Payload type discriminants.
const (
	TypeEventChanged        = "event_changed"
	TypeAvailabilityChanged = "availability_changed"
	TypeGroupNameUpdated    = "group_name_updated"
)

// EventChanged tells a schedule's subscribers that its events changed.
type EventChanged struct {
	Type       string `json:"type"`
	ScheduleID string `json:"scheduleId"`
}

// AvailabilityChanged tells a group's subscribers to refetch availability.
type AvailabilityChanged struct {
	Type    string `json:"type"`
	GroupID string `json:"groupId"`
}

// GroupNameUpdated carries a group's new name.
type GroupNameUpdated struct {
	Type    string `json:"type"`
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

// Broadcaster delivers a payload to every subscriber of a room without waiting on them.
type Broadcaster interface {
	BroadcastToRoom(key realtime.RoomKey, payload any) error
}

// ScheduleIndex resolves the groups in which a schedule is currently shared.
type ScheduleIndex interface {
	ListGroupIDsByActiveSchedule(ctx context.Context, scheduleID string) ([]string, error)
}

// Notifier maps mutations to broadcasts. Failures are logged and never returned: the
// mutation that triggered them has already committed.
type Notifier struct {
	broadcaster Broadcaster
	index       ScheduleIndex
	logger      *slog.Logger
}

// New constructs a Notifier.
func New(broadcaster Broadcaster, index ScheduleIndex, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{broadcaster: broadcaster, index: index, logger: logger}
}

// EventChanged announces the change to the schedule's room and asks every group
// sharing the schedule to refetch availability.
func (n *Notifier) EventChanged(ctx context.Context, scheduleID string) {
	logger := n.loggerFor(ctx, "EventChanged").With("schedule_id", scheduleID)

	n.send(ctx, logger, realtime.ScheduleRoom(scheduleID), EventChanged{
		Type:       TypeEventChanged,
		ScheduleID: scheduleID,
	})

	groupIDs, err := n.index.ListGroupIDsByActiveSchedule(ctx, scheduleID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve groups for schedule", "error", err)
		return
	}
	for _, groupID := range groupIDs {
		n.availabilityChanged(ctx, logger, groupID)
	}
}

// ActiveScheduleChanged broadcasts availability_changed only when the value changed.
func (n *Notifier) ActiveScheduleChanged(ctx context.Context, groupID string, previous, current *string) {
	if equal(previous, current) {
		return
	}
	n.availabilityChanged(ctx, n.loggerFor(ctx, "ActiveScheduleChanged"), groupID)
}

// GroupRenamed broadcasts the new name when it differs from the previous one.
func (n *Notifier) GroupRenamed(ctx context.Context, groupID, previousName, name string) {
	if previousName == name {
		return
	}
	n.send(ctx, n.loggerFor(ctx, "GroupRenamed"), realtime.GroupRoom(groupID), GroupNameUpdated{
		Type:    TypeGroupNameUpdated,
		GroupID: groupID,
		Name:    name,
	})
}

func (n *Notifier) availabilityChanged(ctx context.Context, logger *slog.Logger, groupID string) {
	n.send(ctx, logger, realtime.GroupRoom(groupID), AvailabilityChanged{
		Type:    TypeAvailabilityChanged,
		GroupID: groupID,
	})
}

func (n *Notifier) send(ctx context.Context, logger *slog.Logger, key realtime.RoomKey, payload any) {
	if err := n.broadcaster.BroadcastToRoom(key, payload); err != nil {
		logger.ErrorContext(ctx, "broadcast failed", "room", key.String(), "error", err)
	}
}

func (n *Notifier) loggerFor(ctx context.Context, operation string) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = n.logger
	}
	return logger.With("component", "notify.Notifier", "operation", operation)
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
