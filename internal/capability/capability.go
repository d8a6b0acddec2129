// Package capability holds the storage-free permission predicates shared by the
// HTTP handlers, the realtime hub and the application services.
package capability

import "github.com/example/groupsync/internal/persistence"

// IsGroupAdmin reports whether userID administers the group.
func IsGroupAdmin(group persistence.Group, userID string) bool {
	return userID != "" && group.AdminID == userID
}

// IsGroupMember reports whether any of the memberships belongs to userID.
func IsGroupMember(memberships []persistence.Membership, groupID, userID string) bool {
	if userID == "" {
		return false
	}
	for _, m := range memberships {
		if m.GroupID == groupID && m.UserID == userID {
			return true
		}
	}
	return false
}

// CanViewGroup is the capability required to read a group's availability or join its room.
func CanViewGroup(group persistence.Group, memberships []persistence.Membership, userID string) bool {
	return IsGroupAdmin(group, userID) || IsGroupMember(memberships, group.ID, userID)
}

// OwnsSchedule reports whether userID owns the schedule.
func OwnsSchedule(schedule persistence.Schedule, userID string) bool {
	return userID != "" && schedule.OwnerID == userID
}

// CanShareSchedule reports whether a member may designate the schedule as active in a group.
func CanShareSchedule(membership persistence.Membership, schedule persistence.Schedule) bool {
	return membership.UserID != "" && OwnsSchedule(schedule, membership.UserID)
}
