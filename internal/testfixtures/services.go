package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/example/groupsync/internal/application"
	"github.com/example/groupsync/internal/persistence"
)

// ServiceFactory builds application services over one store with deterministic
// identifiers and clocks.
type ServiceFactory struct {
	Store       persistence.Store
	Notifier    *RecordingNotifier
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// NewServiceFactory wires a RecordingNotifier and a silent logger.
func NewServiceFactory(store persistence.Store) *ServiceFactory {
	return &ServiceFactory{
		Store:       store,
		Notifier:    &RecordingNotifier{},
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (f *ServiceFactory) GroupService() *application.GroupService {
	return application.NewGroupService(f.Store, f.Notifier, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

func (f *ServiceFactory) ScheduleService() *application.ScheduleService {
	return application.NewScheduleService(f.Store, f.Notifier, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

func (f *ServiceFactory) AvailabilityService() *application.AvailabilityService {
	return application.NewAvailabilityService(f.Store, nil, f.Logger)
}

// Notification is one call observed by RecordingNotifier.
type Notification struct {
	Kind     string
	ID       string
	Previous *string
	Current  *string
	Name     string
}

// Notification kinds.
const (
	KindEventChanged          = "event_changed"
	KindActiveScheduleChanged = "active_schedule_changed"
	KindGroupRenamed          = "group_renamed"
)

// RecordingNotifier implements application.ChangeNotifier by remembering every call.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []Notification
}

func (r *RecordingNotifier) EventChanged(_ context.Context, scheduleID string) {
	r.record(Notification{Kind: KindEventChanged, ID: scheduleID})
}

func (r *RecordingNotifier) ActiveScheduleChanged(_ context.Context, groupID string, previous, current *string) {
	r.record(Notification{Kind: KindActiveScheduleChanged, ID: groupID, Previous: previous, Current: current})
}

func (r *RecordingNotifier) GroupRenamed(_ context.Context, groupID, _, name string) {
	r.record(Notification{Kind: KindGroupRenamed, ID: groupID, Name: name})
}

// Calls returns a copy of the recorded notifications in call order.
func (r *RecordingNotifier) Calls() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.calls...)
}

// Reset forgets every recorded call.
func (r *RecordingNotifier) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *RecordingNotifier) record(n Notification) {
	r.mu.Lock()
	r.calls = append(r.calls, n)
	r.mu.Unlock()
}
