// Package availability computes when the active members of a group are free.
//
// Compute is pure: callers load the memberships and busy intervals and pass
// them in, so the engine can be exercised without a store and is safe to call
// concurrently.
package availability

import (
	"sort"
	"time"
)

const (
	// MinStepMinutes and MaxStepMinutes bound the slot length.
	MinStepMinutes = 1
	MaxStepMinutes = 240
)

// Member is one group membership as seen by the engine.
type Member struct {
	UserID     string
	ScheduleID *string
}

// Interval is a half-open busy range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Query describes the window and slot length.
type Query struct {
	Start       time.Time
	End         time.Time
	StepMinutes int
}

// Slot is one step-sized bucket of the window.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available int
}

// Block is a maximal run of slots in which every active member is free.
type Block struct {
	Start time.Time
	End   time.Time
}

// Report is the result of Compute. Slices are never nil.
type Report struct {
	StepMinutes      int
	ActiveCount      int
	TotalMembers     int
	MissingCount     int
	ActiveMemberIDs  []string
	MissingMemberIDs []string
	Slots            []Slot
	FreeBlocks       []Block
}

// ActiveScheduleIDs returns the distinct schedules shared by the members, in member order.
func ActiveScheduleIDs(members []Member) []string {
	seen := make(map[string]struct{}, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.ScheduleID == nil {
			continue
		}
		if _, ok := seen[*m.ScheduleID]; ok {
			continue
		}
		seen[*m.ScheduleID] = struct{}{}
		ids = append(ids, *m.ScheduleID)
	}
	return ids
}

// Compute builds the availability report for the window. busy maps a schedule id
// to its events; intervals outside the window and unknown schedules are ignored.
// The query is assumed valid (Start before End, step within bounds).
func Compute(members []Member, busy map[string][]Interval, q Query) Report {
	report := Report{
		StepMinutes:      q.StepMinutes,
		TotalMembers:     len(members),
		ActiveMemberIDs:  make([]string, 0, len(members)),
		MissingMemberIDs: make([]string, 0),
		Slots:            make([]Slot, 0),
		FreeBlocks:       make([]Block, 0),
	}

	var active []Member
	for _, m := range members {
		if m.ScheduleID == nil {
			report.MissingMemberIDs = append(report.MissingMemberIDs, m.UserID)
			continue
		}
		active = append(active, m)
		report.ActiveMemberIDs = append(report.ActiveMemberIDs, m.UserID)
	}
	report.ActiveCount = len(active)
	report.MissingCount = report.TotalMembers - report.ActiveCount

	if report.ActiveCount == 0 || q.StepMinutes <= 0 || !q.Start.Before(q.End) {
		return report
	}

	cursors := make([]cursor, len(active))
	merged := make(map[string][]Interval, len(active))
	for i, m := range active {
		id := *m.ScheduleID
		intervals, ok := merged[id]
		if !ok {
			intervals = mergeIntervals(busy[id])
			merged[id] = intervals
		}
		cursors[i] = cursor{intervals: intervals}
	}

	start := q.Start.UTC()
	end := q.End.UTC()
	step := time.Duration(q.StepMinutes) * time.Minute

	var open *Block
	for s := start; s.Before(end); s = s.Add(step) {
		e := s.Add(step)
		if e.After(end) {
			e = end
		}

		busyCount := 0
		for i := range cursors {
			if cursors[i].busy(s, e) {
				busyCount++
			}
		}
		available := report.ActiveCount - busyCount
		report.Slots = append(report.Slots, Slot{Start: s, End: e, Available: available})

		if available == report.ActiveCount {
			if open == nil {
				open = &Block{Start: s}
			}
			open.End = e
			continue
		}
		if open != nil {
			report.FreeBlocks = append(report.FreeBlocks, *open)
			open = nil
		}
	}
	if open != nil {
		report.FreeBlocks = append(report.FreeBlocks, *open)
	}

	return report
}

// cursor walks one member's merged intervals alongside the ordered slots.
type cursor struct {
	intervals []Interval
	next      int
}

// busy reports whether some interval overlaps [s, e). Touching endpoints do not overlap.
func (c *cursor) busy(s, e time.Time) bool {
	for c.next < len(c.intervals) && !c.intervals[c.next].End.After(s) {
		c.next++
	}
	return c.next < len(c.intervals) && c.intervals[c.next].Start.Before(e)
}

// mergeIntervals sorts and coalesces overlapping or touching intervals. Empty
// or inverted intervals are dropped.
func mergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.Start.Before(iv.End) {
			sorted = append(sorted, Interval{Start: iv.Start.UTC(), End: iv.End.UTC()})
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := make([]Interval, 0, len(sorted))
	for _, iv := range sorted {
		if n := len(merged); n > 0 && !iv.Start.After(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
