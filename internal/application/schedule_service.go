package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/groupsync/internal/capability"
	"github.com/example/groupsync/internal/persistence"
)

const maxTitleLength = 200

// ScheduleStore captures the persistence operations needed by the schedule service.
type ScheduleStore interface {
	persistence.ScheduleRepository
	persistence.EventRepository
	ListGroupIDsByActiveSchedule(ctx context.Context, scheduleID string) ([]string, error)
}

// ScheduleService manages personal schedules and their events.
type ScheduleService struct {
	store       ScheduleStore
	notifier    ChangeNotifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(store ScheduleStore, notifier ChangeNotifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		store:       store,
		notifier:    notifierOrNoop(notifier),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ScheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleService", operation, attrs...)
}

// CreateSchedule creates a schedule owned by the caller.
func (s *ScheduleService) CreateSchedule(ctx context.Context, params CreateScheduleParams) (schedule persistence.Schedule, err error) {
	if s == nil || s.store == nil {
		return persistence.Schedule{}, fmt.Errorf("ScheduleService is not configured")
	}
	logger := s.loggerWith(ctx, "CreateSchedule", "principal_id", params.Principal.UserID)
	defer func() {
		logOutcome(ctx, logger.With("schedule_id", schedule.ID), err, "failed to create schedule", "schedule created")
	}()

	if params.Principal.UserID == "" {
		return persistence.Schedule{}, ErrUnauthenticated
	}
	name, vErr := validateName(params.Name)
	if vErr.HasErrors() {
		return persistence.Schedule{}, vErr
	}

	schedule = persistence.Schedule{
		ID:        s.idGenerator(),
		OwnerID:   params.Principal.UserID,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err = s.store.CreateSchedule(ctx, schedule); err != nil {
		return persistence.Schedule{}, mapRepoError(err)
	}
	return schedule, nil
}

// GetSchedule returns a schedule owned by the caller.
func (s *ScheduleService) GetSchedule(ctx context.Context, principal Principal, scheduleID string) (persistence.Schedule, error) {
	return s.loadOwnedSchedule(ctx, principal, scheduleID)
}

// ListSchedules returns the caller's schedules.
func (s *ScheduleService) ListSchedules(ctx context.Context, principal Principal) ([]persistence.Schedule, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("ScheduleService is not configured")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthenticated
	}
	schedules, err := s.store.ListSchedulesByOwner(ctx, principal.UserID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule and its events. Every group in which the schedule
// was shared loses it as an active schedule.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, principal Principal, scheduleID string) (err error) {
	if s == nil || s.store == nil {
		return fmt.Errorf("ScheduleService is not configured")
	}
	logger := s.loggerWith(ctx, "DeleteSchedule", "principal_id", principal.UserID, "schedule_id", scheduleID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete schedule", "schedule deleted")
	}()

	schedule, err := s.loadOwnedSchedule(ctx, principal, scheduleID)
	if err != nil {
		return err
	}

	groupIDs, err := s.store.ListGroupIDsByActiveSchedule(ctx, schedule.ID)
	if err != nil {
		return mapRepoError(err)
	}
	if err := s.store.DeleteSchedule(ctx, schedule.ID); err != nil {
		return mapRepoError(err)
	}

	previous := schedule.ID
	for _, groupID := range groupIDs {
		s.notifier.ActiveScheduleChanged(ctx, groupID, &previous, nil)
	}
	return nil
}

// ListEvents returns the events of an owned schedule, optionally limited to those
// overlapping [From, To).
func (s *ScheduleService) ListEvents(ctx context.Context, params ListEventsParams) ([]persistence.Event, error) {
	schedule, err := s.loadOwnedSchedule(ctx, params.Principal, params.ScheduleID)
	if err != nil {
		return nil, err
	}
	if !params.From.IsZero() && !params.To.IsZero() && !params.From.Before(params.To) {
		vErr := &ValidationError{}
		vErr.add("window", "start must be before end")
		return nil, vErr
	}
	events, err := s.store.ListEvents(ctx, persistence.EventFilter{
		ScheduleIDs:   []string{schedule.ID},
		OverlapsStart: params.From,
		OverlapsEnd:   params.To,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	if events == nil {
		events = []persistence.Event{}
	}
	return events, nil
}

// CreateEvent adds a busy interval to an owned schedule.
func (s *ScheduleService) CreateEvent(ctx context.Context, params CreateEventParams) (event persistence.Event, err error) {
	if s == nil || s.store == nil {
		return persistence.Event{}, fmt.Errorf("ScheduleService is not configured")
	}
	logger := s.loggerWith(ctx, "CreateEvent",
		"principal_id", params.Principal.UserID,
		"schedule_id", params.ScheduleID,
	)
	defer func() {
		logOutcome(ctx, logger.With("event_id", event.ID), err, "failed to create event", "event created")
	}()

	if params.Principal.UserID == "" {
		return persistence.Event{}, ErrUnauthenticated
	}
	input, vErr := validateEventInput(params.Input)
	if vErr.HasErrors() {
		return persistence.Event{}, vErr
	}
	schedule, err := s.loadOwnedSchedule(ctx, params.Principal, params.ScheduleID)
	if err != nil {
		return persistence.Event{}, err
	}

	now := s.now().UTC()
	event = persistence.Event{
		ID:          s.idGenerator(),
		ScheduleID:  schedule.ID,
		Title:       input.Title,
		Description: input.Description,
		Start:       input.Start,
		End:         input.End,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.store.CreateEvent(ctx, event); err != nil {
		return persistence.Event{}, mapRepoError(err)
	}
	s.notifier.EventChanged(ctx, schedule.ID)
	return event, nil
}

// UpdateEvent replaces an event's text and interval. Writing the current values again
// is a no-op: nothing is stored and nothing is broadcast.
func (s *ScheduleService) UpdateEvent(ctx context.Context, params UpdateEventParams) (event persistence.Event, err error) {
	if s == nil || s.store == nil {
		return persistence.Event{}, fmt.Errorf("ScheduleService is not configured")
	}
	logger := s.loggerWith(ctx, "UpdateEvent",
		"principal_id", params.Principal.UserID,
		"schedule_id", params.ScheduleID,
		"event_id", params.EventID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to update event", "event updated")
	}()

	if params.Principal.UserID == "" {
		return persistence.Event{}, ErrUnauthenticated
	}
	input, vErr := validateEventInput(params.Input)
	if vErr.HasErrors() {
		return persistence.Event{}, vErr
	}
	event, err = s.loadOwnedEvent(ctx, params.Principal, params.ScheduleID, params.EventID)
	if err != nil {
		return persistence.Event{}, err
	}
	if event.Title == input.Title && event.Description == input.Description &&
		event.Start.Equal(input.Start) && event.End.Equal(input.End) {
		return event, nil
	}

	event.Title = input.Title
	event.Description = input.Description
	event.Start = input.Start
	event.End = input.End
	event.UpdatedAt = s.now().UTC()
	if err = s.store.UpdateEvent(ctx, event); err != nil {
		return persistence.Event{}, mapRepoError(err)
	}
	s.notifier.EventChanged(ctx, event.ScheduleID)
	return event, nil
}

// DeleteEvent removes an event from an owned schedule.
func (s *ScheduleService) DeleteEvent(ctx context.Context, principal Principal, scheduleID, eventID string) (err error) {
	if s == nil || s.store == nil {
		return fmt.Errorf("ScheduleService is not configured")
	}
	logger := s.loggerWith(ctx, "DeleteEvent",
		"principal_id", principal.UserID,
		"schedule_id", scheduleID,
		"event_id", eventID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete event", "event deleted")
	}()

	event, err := s.loadOwnedEvent(ctx, principal, scheduleID, eventID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, event.ID); err != nil {
		return mapRepoError(err)
	}
	s.notifier.EventChanged(ctx, event.ScheduleID)
	return nil
}

func (s *ScheduleService) loadOwnedSchedule(ctx context.Context, principal Principal, scheduleID string) (persistence.Schedule, error) {
	if s == nil || s.store == nil {
		return persistence.Schedule{}, fmt.Errorf("ScheduleService is not configured")
	}
	if principal.UserID == "" {
		return persistence.Schedule{}, ErrUnauthenticated
	}
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return persistence.Schedule{}, mapRepoError(err)
	}
	if !capability.OwnsSchedule(schedule, principal.UserID) {
		return persistence.Schedule{}, ErrUnauthorized
	}
	return schedule, nil
}

func (s *ScheduleService) loadOwnedEvent(ctx context.Context, principal Principal, scheduleID, eventID string) (persistence.Event, error) {
	schedule, err := s.loadOwnedSchedule(ctx, principal, scheduleID)
	if err != nil {
		return persistence.Event{}, err
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return persistence.Event{}, mapRepoError(err)
	}
	if event.ScheduleID != schedule.ID {
		return persistence.Event{}, ErrNotFound
	}
	return event, nil
}

func validateEventInput(input EventInput) (EventInput, *ValidationError) {
	vErr := &ValidationError{}

	input.Title = strings.TrimSpace(input.Title)
	switch {
	case input.Title == "":
		vErr.add("title", "title is required")
	case utf8.RuneCountInString(input.Title) > maxTitleLength:
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}

	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	}
	if !input.Start.IsZero() && !input.End.IsZero() && !input.Start.Before(input.End) {
		vErr.add("time", "start must be before end")
	}

	input.Start = input.Start.UTC()
	input.End = input.End.UTC()
	return input, vErr
}
