// Package realtime fans out JSON frames to WebSocket subscribers grouped in rooms.
//
// A Registry tracks which connections belong to which room. The Hub drives the
// lifecycle of a single connection (authenticate, authorize, join, relay, leave)
// and implements BroadcastToRoom for the mutation notifier.
package realtime

import "fmt"

// Namespace identifies the kind of object a room is attached to.
type Namespace string

const (
	NamespaceGroup    Namespace = "group"
	NamespaceSchedule Namespace = "schedule"
)

// RoomKey identifies a broadcast scope.
type RoomKey struct {
	Namespace Namespace
	ObjectID  string
}

// GroupRoom returns the key of a group's room.
func GroupRoom(groupID string) RoomKey {
	return RoomKey{Namespace: NamespaceGroup, ObjectID: groupID}
}

// ScheduleRoom returns the key of a schedule's room.
func ScheduleRoom(scheduleID string) RoomKey {
	return RoomKey{Namespace: NamespaceSchedule, ObjectID: scheduleID}
}

// String renders the key as "namespace:id" for logs and metrics.
func (k RoomKey) String() string {
	return fmt.Sprintf("%s:%s", k.Namespace, k.ObjectID)
}

// ParseNamespace maps the plural URL segment ("groups", "schedules") to a Namespace.
func ParseNamespace(segment string) (Namespace, bool) {
	switch segment {
	case "groups":
		return NamespaceGroup, true
	case "schedules":
		return NamespaceSchedule, true
	default:
		return "", false
	}
}
