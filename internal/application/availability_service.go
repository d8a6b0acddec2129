package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/example/groupsync/internal/availability"
	"github.com/example/groupsync/internal/capability"
	"github.com/example/groupsync/internal/persistence"
)

// DefaultStepMinutes applies when a request omits the step.
const DefaultStepMinutes = 30

// AvailabilityStore captures the reads needed to compute availability.
type AvailabilityStore interface {
	GetGroup(ctx context.Context, id string) (persistence.Group, error)
	ListMemberships(ctx context.Context, groupID string) ([]persistence.Membership, error)
	ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error)
}

// DurationObserver records how long a computation took.
type DurationObserver interface {
	ObserveAvailability(d time.Duration)
}

// AvailabilityService validates availability queries, checks access and runs the engine.
type AvailabilityService struct {
	store    AvailabilityStore
	observer DurationObserver
	logger   *slog.Logger
}

// NewAvailabilityService constructs the service. observer may be nil.
func NewAvailabilityService(store AvailabilityStore, observer DurationObserver, logger *slog.Logger) *AvailabilityService {
	return &AvailabilityService{store: store, observer: observer, logger: defaultLogger(logger)}
}

// ComputeAvailability returns the report for a group window. The request is fully
// validated before any read; on failure no partial report is returned.
func (s *AvailabilityService) ComputeAvailability(ctx context.Context, params AvailabilityParams) (report AvailabilityReport, err error) {
	if s == nil || s.store == nil {
		return AvailabilityReport{}, fmt.Errorf("AvailabilityService is not configured")
	}

	logger := serviceLogger(ctx, s.logger, "AvailabilityService", "ComputeAvailability",
		"principal_id", params.Principal.UserID,
		"group_id", params.GroupID,
	)
	started := time.Now()
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "availability computation failed", "")
			return
		}
		elapsed := time.Since(started)
		if s.observer != nil {
			s.observer.ObserveAvailability(elapsed)
		}
		logger.DebugContext(ctx, "availability computed",
			"active_count", report.ActiveCount,
			"slot_count", len(report.Slots),
			"duration", elapsed,
		)
	}()

	if params.Principal.UserID == "" {
		return AvailabilityReport{}, ErrUnauthenticated
	}

	query, vErr := parseAvailabilityQuery(params)
	if vErr.HasErrors() {
		return AvailabilityReport{}, vErr
	}

	group, err := s.store.GetGroup(ctx, params.GroupID)
	if err != nil {
		return AvailabilityReport{}, mapRepoError(err)
	}

	// One snapshot feeds both the active and the missing partitions.
	memberships, err := s.store.ListMemberships(ctx, group.ID)
	if err != nil {
		return AvailabilityReport{}, mapRepoError(err)
	}
	if !capability.CanViewGroup(group, memberships, params.Principal.UserID) {
		return AvailabilityReport{}, ErrUnauthorized
	}

	members := make([]availability.Member, 0, len(memberships))
	for _, m := range memberships {
		members = append(members, availability.Member{UserID: m.UserID, ScheduleID: m.ActiveScheduleID})
	}

	busy := make(map[string][]availability.Interval)
	if scheduleIDs := availability.ActiveScheduleIDs(members); len(scheduleIDs) > 0 {
		events, err := s.store.ListEvents(ctx, persistence.EventFilter{
			ScheduleIDs:   scheduleIDs,
			OverlapsStart: query.Start,
			OverlapsEnd:   query.End,
		})
		if err != nil {
			return AvailabilityReport{}, mapRepoError(err)
		}
		for _, event := range events {
			busy[event.ScheduleID] = append(busy[event.ScheduleID], availability.Interval{Start: event.Start, End: event.End})
		}
	}

	return AvailabilityReport{
		Report:    availability.Compute(members, busy, query),
		GroupID:   group.ID,
		Mode:      params.Mode,
		MinPeople: params.MinPeople,
	}, nil
}

func parseAvailabilityQuery(params AvailabilityParams) (availability.Query, *ValidationError) {
	vErr := &ValidationError{}
	query := availability.Query{StepMinutes: DefaultStepMinutes}

	start, err := parseTimestamp(params.Start)
	if err != nil {
		vErr.add("start", err.Error())
	}
	end, err := parseTimestamp(params.End)
	if err != nil {
		vErr.add("end", err.Error())
	}
	if !vErr.HasErrors() && !start.Before(end) {
		vErr.add("window", "start must be before end")
	}

	if raw := strings.TrimSpace(params.Step); raw != "" {
		step, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			vErr.add("step", "step must be an integer")
		case step < availability.MinStepMinutes || step > availability.MaxStepMinutes:
			vErr.add("step", fmt.Sprintf("step must be between %d and %d", availability.MinStepMinutes, availability.MaxStepMinutes))
		default:
			query.StepMinutes = step
		}
	}

	query.Start = start
	query.End = end
	return query, vErr
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseTimestamp accepts ISO-8601 timestamps. Values without an offset are read as UTC.
func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("is required")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.New("must be an ISO-8601 timestamp")
}
