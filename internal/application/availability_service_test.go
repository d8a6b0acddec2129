package application_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/example/groupsync/internal/application"
	"github.com/example/groupsync/internal/persistence/memory"
	"github.com/example/groupsync/internal/testfixtures"
)

type observerFunc func(time.Duration)

func (f observerFunc) ObserveAvailability(d time.Duration) { f(d) }

func TestAvailabilityService_ComputesReport(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seed := testfixtures.NewSeeder(t, store)
	day := testfixtures.ReferenceTime()

	seed.Group("G", "alice")
	seed.Schedule("S-bob", "bob")
	seed.Member("G", "bob", "S-bob")
	seed.Member("G", "carol", "")
	seed.Busy("S-bob", day.Add(15*time.Minute), day.Add(45*time.Minute))

	observed := 0
	svc := application.NewAvailabilityService(store, observerFunc(func(time.Duration) { observed++ }), nil)

	report, err := svc.ComputeAvailability(context.Background(), application.AvailabilityParams{
		Principal: application.Principal{UserID: "carol"},
		GroupID:   "G",
		Start:     "2024-01-02T09:00:00Z",
		End:       "2024-01-02T10:00:00+00:00",
		Step:      "30",
		Mode:      "strict",
		MinPeople: "2",
	})
	if err != nil {
		t.Fatalf("ComputeAvailability returned error: %v", err)
	}

	if report.GroupID != "G" || report.Mode != "strict" || report.MinPeople != "2" {
		t.Fatalf("expected request attributes to be echoed, got %+v", report)
	}
	if report.TotalMembers != 2 || report.ActiveCount != 1 || report.MissingCount != 1 {
		t.Fatalf("unexpected counts: total=%d active=%d missing=%d", report.TotalMembers, report.ActiveCount, report.MissingCount)
	}
	if !reflect.DeepEqual(report.ActiveMemberIDs, []string{"bob"}) || !reflect.DeepEqual(report.MissingMemberIDs, []string{"carol"}) {
		t.Fatalf("unexpected partitions: %v / %v", report.ActiveMemberIDs, report.MissingMemberIDs)
	}
	if len(report.Slots) != 2 || report.Slots[0].Available != 0 || report.Slots[1].Available != 0 {
		t.Fatalf("expected both half-open slots to be busy, got %+v", report.Slots)
	}
	if len(report.FreeBlocks) != 0 {
		t.Fatalf("expected no free blocks, got %+v", report.FreeBlocks)
	}
	if observed != 1 {
		t.Fatalf("expected one observed duration, got %d", observed)
	}
}

func TestAvailabilityService_RejectsBadRequests(t *testing.T) {
	t.Parallel()
	store := memory.New()
	seed := testfixtures.NewSeeder(t, store)
	seed.Group("G", "alice")
	svc := application.NewAvailabilityService(store, nil, nil)
	ctx := context.Background()

	valid := application.AvailabilityParams{
		Principal: application.Principal{UserID: "alice"},
		GroupID:   "G",
		Start:     "2024-01-02T09:00",
		End:       "2024-01-02T10:00",
	}

	report, err := svc.ComputeAvailability(ctx, valid)
	if err != nil {
		t.Fatalf("ComputeAvailability returned error: %v", err)
	}
	if report.StepMinutes != application.DefaultStepMinutes || report.ActiveCount != 0 {
		t.Fatalf("unexpected defaults: %+v", report.Report)
	}

	tests := []struct {
		name   string
		mutate func(*application.AvailabilityParams)
		check  func(error) bool
	}{
		{name: "anonymous", mutate: func(p *application.AvailabilityParams) { p.Principal = application.Principal{} }, check: func(err error) bool { return errors.Is(err, application.ErrUnauthenticated) }},
		{name: "outsider", mutate: func(p *application.AvailabilityParams) { p.Principal.UserID = "mallory" }, check: func(err error) bool { return errors.Is(err, application.ErrUnauthorized) }},
		{name: "unknown group", mutate: func(p *application.AvailabilityParams) { p.GroupID = "nope" }, check: func(err error) bool { return errors.Is(err, application.ErrNotFound) }},
		{name: "inverted window", mutate: func(p *application.AvailabilityParams) { p.Start, p.End = p.End, p.Start }, check: hasField("window")},
		{name: "bad timestamp", mutate: func(p *application.AvailabilityParams) { p.Start = "yesterday" }, check: hasField("start")},
		{name: "step too large", mutate: func(p *application.AvailabilityParams) { p.Step = "241" }, check: hasField("step")},
		{name: "step not a number", mutate: func(p *application.AvailabilityParams) { p.Step = "half" }, check: hasField("step")},
	}
	for _, tt := range tests {
		params := valid
		tt.mutate(&params)
		if _, err := svc.ComputeAvailability(ctx, params); !tt.check(err) {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
	}
}

func hasField(field string) func(error) bool {
	return func(err error) bool {
		var vErr *application.ValidationError
		return errors.As(err, &vErr) && vErr.FieldErrors[field] != ""
	}
}
