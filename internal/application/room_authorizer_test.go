package application_test

import (
	"context"
	"testing"

	"github.com/example/groupsync/internal/application"
	"github.com/example/groupsync/internal/persistence/memory"
	"github.com/example/groupsync/internal/realtime"
	"github.com/example/groupsync/internal/testfixtures"
)

func TestRoomAuthorizer_CanJoin(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seed := testfixtures.NewSeeder(t, store)
	seed.Group("G", "alice")
	seed.Member("G", "bob", "")
	seed.Schedule("S", "bob")

	authorizer := application.NewRoomAuthorizer(store)

	tests := []struct {
		name   string
		userID string
		key    realtime.RoomKey
		want   bool
	}{
		{name: "admin joins group", userID: "alice", key: realtime.GroupRoom("G"), want: true},
		{name: "member joins group", userID: "bob", key: realtime.GroupRoom("G"), want: true},
		{name: "outsider refused", userID: "mallory", key: realtime.GroupRoom("G"), want: false},
		{name: "unknown group refused", userID: "alice", key: realtime.GroupRoom("missing"), want: false},
		{name: "owner joins schedule", userID: "bob", key: realtime.ScheduleRoom("S"), want: true},
		{name: "group admin cannot join member schedule", userID: "alice", key: realtime.ScheduleRoom("S"), want: false},
		{name: "anonymous refused", userID: "", key: realtime.GroupRoom("G"), want: false},
	}
	for _, tt := range tests {
		got, err := authorizer.CanJoin(context.Background(), tt.userID, tt.key)
		if err != nil {
			t.Fatalf("%s: CanJoin returned error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
