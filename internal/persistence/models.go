package persistence

import "time"

// Group is a set of users that compare availability. Exactly one user administers it.
type Group struct {
	ID        string
	Name      string
	AdminID   string
	CreatedAt time.Time
}

// Membership links a user to a group. ActiveScheduleID is nil until the member
// picks a schedule to share with the group.
type Membership struct {
	ID               string
	UserID           string
	GroupID          string
	ActiveScheduleID *string
	JoinedAt         time.Time
}

// HasActiveSchedule reports whether the member shares a schedule with the group.
func (m Membership) HasActiveSchedule() bool {
	return m.ActiveScheduleID != nil && *m.ActiveScheduleID != ""
}

// Schedule is a named personal calendar owned by one user.
type Schedule struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// Event is a busy interval [Start, End) on a schedule.
type Event struct {
	ID          string
	ScheduleID  string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
