// Package conflict implements the conflict-detection engine: pure functions
// that reconcile a proposed event against participants' time-block
// schedules. Everything here is side-effect free and total over well-formed
// input; callers validate shapes before invoking.
package conflict

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/meetsync/meetsync-api/internal/models"
)

// Severity classifies the aggregate weight of a set of conflicts.
type Severity string

const (
	SeverityNone    Severity = "none"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// TimeRange is a half-open hour interval [StartHour, EndHour) on a single
// calendar date. Dates compare as opaque strings; different dates never
// overlap.
type TimeRange struct {
	Date      string
	StartHour int
	EndHour   int
}

// ProposedEvent is a candidate commitment being checked before creation.
// The window is taken from StartHour/EndHour when set, otherwise derived
// from the HH:MM Time string and Duration (hours, default 1).
type ProposedEvent struct {
	Date      string
	Time      string
	StartHour *int
	EndHour   *int
	Duration  int
}

// Window resolves the event's effective time range.
func (e ProposedEvent) Window() TimeRange {
	start := 0
	if e.StartHour != nil {
		start = *e.StartHour
	} else {
		start = TimeStringToHour(e.Time)
	}

	end := 0
	if e.EndHour != nil {
		end = *e.EndHour
	} else {
		duration := e.Duration
		if duration < 1 {
			duration = 1
		}
		end = start + duration
	}

	return TimeRange{Date: e.Date, StartHour: start, EndHour: end}
}

// TimeStringToHour parses an HH:MM string and returns the hour component.
// Empty input yields 0. Minutes are dropped; the whole engine operates at
// hour granularity.
func TimeStringToHour(s string) int {
	if s == "" {
		return 0
	}
	raw, _, _ := strings.Cut(s, ":")
	hour, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return hour
}

// HasTimeConflict reports whether two half-open ranges overlap. Touching
// boundaries (a ends exactly where b starts) do not conflict.
func HasTimeConflict(a, b TimeRange) bool {
	if a.Date != b.Date {
		return false
	}
	return a.StartHour < b.EndHour && b.StartHour < a.EndHour
}

// Range converts a time block into the engine's interval shape.
func Range(block models.TimeBlock) TimeRange {
	return TimeRange{Date: block.Date, StartHour: block.StartHour, EndHour: block.EndHour}
}

// FindScheduleConflicts returns the blocks in schedule that overlap the
// proposed event, preserving schedule order.
func FindScheduleConflicts(event ProposedEvent, schedule []models.TimeBlock) []models.TimeBlock {
	if len(schedule) == 0 {
		return nil
	}

	window := event.Window()
	var conflicts []models.TimeBlock
	for _, block := range schedule {
		if HasTimeConflict(window, Range(block)) {
			conflicts = append(conflicts, block)
		}
	}
	return conflicts
}

// CheckParticipantConflicts runs FindScheduleConflicts per participant and
// keeps only participants with at least one conflict. The result does not
// depend on map iteration order.
func CheckParticipantConflicts(event ProposedEvent, schedules map[string][]models.TimeBlock) map[string][]models.TimeBlock {
	conflictsByUser := make(map[string][]models.TimeBlock)
	for userID, schedule := range schedules {
		if conflicts := FindScheduleConflicts(event, schedule); len(conflicts) > 0 {
			conflictsByUser[userID] = conflicts
		}
	}
	return conflictsByUser
}

// Flatten merges a per-participant conflict mapping into one sequence,
// ordered by participant id for determinism.
func Flatten(conflictsByUser map[string][]models.TimeBlock) []models.TimeBlock {
	userIDs := make([]string, 0, len(conflictsByUser))
	for userID := range conflictsByUser {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	var flattened []models.TimeBlock
	for _, userID := range userIDs {
		flattened = append(flattened, conflictsByUser[userID]...)
	}
	return flattened
}

// GetConflictSeverity classifies a flattened conflict sequence. A single
// committed event anywhere escalates the whole proposal to error; anything
// else is advisory.
func GetConflictSeverity(conflicts []models.TimeBlock) Severity {
	if len(conflicts) == 0 {
		return SeverityNone
	}
	for _, c := range conflicts {
		if c.Type == models.BlockEvent {
			return SeverityError
		}
	}
	return SeverityWarning
}

// FormatConflictMessage renders a short display string for a conflict set.
func FormatConflictMessage(conflicts []models.TimeBlock) string {
	switch len(conflicts) {
	case 0:
		return "No conflicts"
	case 1:
		title := conflicts[0].Title
		if title == "" {
			title = "Busy"
		}
		return fmt.Sprintf("%s (%d:00 - %d:00)", title, conflicts[0].StartHour, conflicts[0].EndHour)
	default:
		return fmt.Sprintf("%d conflicting items", len(conflicts))
	}
}
