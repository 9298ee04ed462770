package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetsync/meetsync-api/internal/models"
)

func block(date string, start, end int, blockType models.BlockType) models.TimeBlock {
	return models.TimeBlock{Date: date, StartHour: start, EndHour: end, Type: blockType}
}

func TestHasTimeConflictSymmetry(t *testing.T) {
	ranges := []TimeRange{
		{Date: "2024-06-10", StartHour: 8, EndHour: 9},
		{Date: "2024-06-10", StartHour: 9, EndHour: 11},
		{Date: "2024-06-10", StartHour: 10, EndHour: 12},
		{Date: "2024-06-10", StartHour: 0, EndHour: 24},
		{Date: "2024-06-11", StartHour: 9, EndHour: 11},
	}
	for _, a := range ranges {
		for _, b := range ranges {
			assert.Equal(t, HasTimeConflict(a, b), HasTimeConflict(b, a), "symmetry for %+v vs %+v", a, b)
		}
	}
}

func TestHasTimeConflictTouchingBoundaries(t *testing.T) {
	a := TimeRange{Date: "2024-06-10", StartHour: 8, EndHour: 9}
	b := TimeRange{Date: "2024-06-10", StartHour: 9, EndHour: 10}
	assert.False(t, HasTimeConflict(a, b))
	assert.False(t, HasTimeConflict(b, a))
}

func TestHasTimeConflictDifferentDates(t *testing.T) {
	a := TimeRange{Date: "2024-06-10", StartHour: 9, EndHour: 11}
	b := TimeRange{Date: "2024-06-11", StartHour: 9, EndHour: 11}
	assert.False(t, HasTimeConflict(a, b))
}

func TestHasTimeConflictOverlap(t *testing.T) {
	a := TimeRange{Date: "2024-06-10", StartHour: 9, EndHour: 11}
	b := TimeRange{Date: "2024-06-10", StartHour: 10, EndHour: 12}
	assert.True(t, HasTimeConflict(a, b))
	assert.True(t, HasTimeConflict(a, a), "a range overlaps itself")
}

func TestTimeStringToHour(t *testing.T) {
	assert.Equal(t, 14, TimeStringToHour("14:30"))
	assert.Equal(t, 9, TimeStringToHour("9:00"))
	assert.Equal(t, 0, TimeStringToHour(""))
	assert.Equal(t, 0, TimeStringToHour("bogus"))
}

func TestProposedEventWindow(t *testing.T) {
	window := ProposedEvent{Date: "2024-06-10", Time: "09:15"}.Window()
	assert.Equal(t, TimeRange{Date: "2024-06-10", StartHour: 9, EndHour: 10}, window, "duration defaults to one hour")

	window = ProposedEvent{Date: "2024-06-10", Time: "09:00", Duration: 3}.Window()
	assert.Equal(t, 12, window.EndHour)

	start, end := 13, 17
	window = ProposedEvent{Date: "2024-06-10", StartHour: &start, EndHour: &end}.Window()
	assert.Equal(t, TimeRange{Date: "2024-06-10", StartHour: 13, EndHour: 17}, window, "explicit hours win over time string")
}

func TestFindScheduleConflictsEmptySchedule(t *testing.T) {
	event := ProposedEvent{Date: "2024-06-10", Time: "09:00"}
	assert.Empty(t, FindScheduleConflicts(event, nil))
	assert.Empty(t, FindScheduleConflicts(event, []models.TimeBlock{}))
}

func TestFindScheduleConflictsPreservesOrder(t *testing.T) {
	event := ProposedEvent{Date: "2024-06-10", Time: "09:00", Duration: 4}
	schedule := []models.TimeBlock{
		block("2024-06-10", 12, 13, models.BlockBusy),
		block("2024-06-10", 10, 11, models.BlockActivity),
		block("2024-06-11", 9, 10, models.BlockBusy),
		block("2024-06-10", 9, 10, models.BlockAvailable),
	}

	conflicts := FindScheduleConflicts(event, schedule)
	require.Len(t, conflicts, 3)
	assert.Equal(t, 12, conflicts[0].StartHour)
	assert.Equal(t, 10, conflicts[1].StartHour)
	assert.Equal(t, 9, conflicts[2].StartHour)
}

func TestScenarioAvailableOverlapWarns(t *testing.T) {
	event := ProposedEvent{Date: "2024-06-10", Time: "09:00", Duration: 1}
	schedule := []models.TimeBlock{block("2024-06-10", 9, 11, models.BlockAvailable)}

	conflicts := FindScheduleConflicts(event, schedule)
	require.Len(t, conflicts, 1)
	assert.Equal(t, SeverityWarning, GetConflictSeverity(conflicts))
}

func TestScenarioTouchingBusyBlockIsClean(t *testing.T) {
	event := ProposedEvent{Date: "2024-06-10", Time: "09:00", Duration: 1}
	schedule := []models.TimeBlock{block("2024-06-10", 8, 9, models.BlockBusy)}

	conflicts := FindScheduleConflicts(event, schedule)
	assert.Empty(t, conflicts)
	assert.Equal(t, SeverityNone, GetConflictSeverity(conflicts))
}

func TestScenarioCommittedEventEscalates(t *testing.T) {
	event := ProposedEvent{Date: "2024-06-10", Time: "09:00", Duration: 1}
	schedule := []models.TimeBlock{block("2024-06-10", 9, 10, models.BlockEvent)}

	conflicts := FindScheduleConflicts(event, schedule)
	require.Len(t, conflicts, 1)
	assert.Equal(t, SeverityError, GetConflictSeverity(conflicts))
}

func TestCheckParticipantConflictsOmitsCleanParticipants(t *testing.T) {
	event := ProposedEvent{Date: "2024-06-10", Time: "09:00"}
	schedules := map[string][]models.TimeBlock{
		"user-1": {block("2024-06-10", 9, 10, models.BlockEvent)},
		"user-2": {block("2024-06-10", 14, 15, models.BlockBusy)},
		"user-3": nil,
	}

	conflictsByUser := CheckParticipantConflicts(event, schedules)
	require.Len(t, conflictsByUser, 1)
	require.Contains(t, conflictsByUser, "user-1")
	assert.NotEmpty(t, conflictsByUser["user-1"])

	flattened := Flatten(conflictsByUser)
	assert.Equal(t, SeverityError, GetConflictSeverity(flattened))
}

func TestFlattenedSeverityIsErrorOnlyWithEventBlock(t *testing.T) {
	event := ProposedEvent{Date: "2024-06-10", Time: "09:00"}
	schedules := map[string][]models.TimeBlock{
		"user-1": {block("2024-06-10", 9, 10, models.BlockBusy)},
		"user-2": {block("2024-06-10", 9, 11, models.BlockActivity)},
		"user-3": {block("2024-06-10", 8, 10, models.BlockAvailable)},
	}

	flattened := Flatten(CheckParticipantConflicts(event, schedules))
	require.Len(t, flattened, 3)
	assert.Equal(t, SeverityWarning, GetConflictSeverity(flattened))

	schedules["user-4"] = []models.TimeBlock{block("2024-06-10", 9, 10, models.BlockEvent)}
	flattened = Flatten(CheckParticipantConflicts(event, schedules))
	assert.Equal(t, SeverityError, GetConflictSeverity(flattened))
}

func TestFlattenOrderIsDeterministic(t *testing.T) {
	conflictsByUser := map[string][]models.TimeBlock{
		"user-b": {block("2024-06-10", 10, 11, models.BlockBusy)},
		"user-a": {block("2024-06-10", 9, 10, models.BlockBusy)},
	}

	for i := 0; i < 10; i++ {
		flattened := Flatten(conflictsByUser)
		require.Len(t, flattened, 2)
		assert.Equal(t, 9, flattened[0].StartHour)
		assert.Equal(t, 10, flattened[1].StartHour)
	}
}

func TestFormatConflictMessage(t *testing.T) {
	assert.Equal(t, "No conflicts", FormatConflictMessage(nil))

	single := []models.TimeBlock{{Title: "Gym", Date: "2024-06-10", StartHour: 9, EndHour: 11, Type: models.BlockActivity}}
	assert.Equal(t, "Gym (9:00 - 11:00)", FormatConflictMessage(single))

	untitled := []models.TimeBlock{block("2024-06-10", 9, 10, models.BlockBusy)}
	assert.Equal(t, "Busy (9:00 - 10:00)", FormatConflictMessage(untitled))

	two := []models.TimeBlock{
		block("2024-06-10", 9, 10, models.BlockBusy),
		block("2024-06-10", 10, 12, models.BlockBusy),
	}
	assert.Equal(t, "2 conflicting items", FormatConflictMessage(two))
}
