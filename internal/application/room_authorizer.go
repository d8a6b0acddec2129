package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/groupsync/internal/capability"
	"github.com/example/groupsync/internal/persistence"
	"github.com/example/groupsync/internal/realtime"
)

// RoomStore captures the lookups needed to authorize a realtime subscription.
type RoomStore interface {
	GetGroup(ctx context.Context, id string) (persistence.Group, error)
	GetMembership(ctx context.Context, groupID, userID string) (persistence.Membership, error)
	GetSchedule(ctx context.Context, id string) (persistence.Schedule, error)
}

// RoomAuthorizer decides whether a user may subscribe to a room: group rooms require
// the admin or a member, schedule rooms require the owner. Unknown objects are refused.
type RoomAuthorizer struct {
	store RoomStore
}

// NewRoomAuthorizer constructs the authorizer.
func NewRoomAuthorizer(store RoomStore) *RoomAuthorizer {
	return &RoomAuthorizer{store: store}
}

// CanJoin implements realtime.Authorizer.
func (a *RoomAuthorizer) CanJoin(ctx context.Context, userID string, key realtime.RoomKey) (bool, error) {
	if a == nil || a.store == nil {
		return false, fmt.Errorf("RoomAuthorizer is not configured")
	}
	if userID == "" {
		return false, nil
	}

	switch key.Namespace {
	case realtime.NamespaceGroup:
		group, err := a.store.GetGroup(ctx, key.ObjectID)
		if err != nil {
			return refuseMissing(err)
		}
		if capability.IsGroupAdmin(group, userID) {
			return true, nil
		}
		membership, err := a.store.GetMembership(ctx, group.ID, userID)
		if err != nil {
			return refuseMissing(err)
		}
		return capability.IsGroupMember([]persistence.Membership{membership}, group.ID, userID), nil
	case realtime.NamespaceSchedule:
		schedule, err := a.store.GetSchedule(ctx, key.ObjectID)
		if err != nil {
			return refuseMissing(err)
		}
		return capability.OwnsSchedule(schedule, userID), nil
	default:
		return false, nil
	}
}

func refuseMissing(err error) (bool, error) {
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("application: authorize room: %w", err)
}
