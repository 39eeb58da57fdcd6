package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mentorbook/schedule"
)

// =============================================================================
// SLOT VALIDATION TESTS
// =============================================================================

func TestTimeSlot_Validate_StartBeforeEnd(t *testing.T) {
	slot := schedule.TimeSlot{StartTime: "10:00", EndTime: "11:00"}
	assert.NoError(t, slot.Validate())
}

func TestTimeSlot_Validate_StartEqualsEnd_Rejected(t *testing.T) {
	// GIVEN: A slot where start == end
	// THEN: Validation fails, zero-length slots are meaningless

	slot := schedule.TimeSlot{StartTime: "10:00", EndTime: "10:00"}
	err := slot.Validate()

	assert.Error(t, err)
	assert.ErrorIs(t, err, schedule.ErrInvalidTimeRange)
}

func TestTimeSlot_Validate_StartAfterEnd_Rejected(t *testing.T) {
	slot := schedule.TimeSlot{StartTime: "14:00", EndTime: "13:00"}
	assert.ErrorIs(t, slot.Validate(), schedule.ErrInvalidTimeRange)
}

func TestTimeSlot_Validate_BadClock_Rejected(t *testing.T) {
	for _, raw := range []string{"25:00", "10:61", "1000", "", "10:0"} {
		slot := schedule.TimeSlot{StartTime: raw, EndTime: "11:00"}
		assert.ErrorIs(t, slot.Validate(), schedule.ErrInvalidClock, "clock %q", raw)
	}
}

func TestParseClock_MidnightAndLastMinute(t *testing.T) {
	first, err := schedule.ParseClock("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, first)

	last, err := schedule.ParseClock("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23*60+59, last)
}

// =============================================================================
// OVERLAP TESTS
// =============================================================================

func TestTimeSlot_Overlaps(t *testing.T) {
	base := schedule.TimeSlot{StartTime: "10:00", EndTime: "11:00"}

	cases := []struct {
		name    string
		other   schedule.TimeSlot
		overlap bool
	}{
		{"identical", schedule.TimeSlot{StartTime: "10:00", EndTime: "11:00"}, true},
		{"contained", schedule.TimeSlot{StartTime: "10:15", EndTime: "10:45"}, true},
		{"straddles start", schedule.TimeSlot{StartTime: "09:30", EndTime: "10:30"}, true},
		{"straddles end", schedule.TimeSlot{StartTime: "10:30", EndTime: "11:30"}, true},
		{"back to back before", schedule.TimeSlot{StartTime: "09:00", EndTime: "10:00"}, false},
		{"back to back after", schedule.TimeSlot{StartTime: "11:00", EndTime: "12:00"}, false},
		{"disjoint", schedule.TimeSlot{StartTime: "14:00", EndTime: "15:00"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overlap, base.Overlaps(tc.other))
			assert.Equal(t, tc.overlap, tc.other.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestValidateDaySlots_OverlappingPair_Rejected(t *testing.T) {
	slots := []schedule.TimeSlot{
		{StartTime: "10:00", EndTime: "11:00"},
		{StartTime: "10:30", EndTime: "11:30"},
	}
	assert.ErrorIs(t, schedule.ValidateDaySlots(slots), schedule.ErrOverlappingSlots)
}

func TestValidateDaySlots_BackToBack_Allowed(t *testing.T) {
	slots := []schedule.TimeSlot{
		{StartTime: "09:00", EndTime: "10:00"},
		{StartTime: "10:00", EndTime: "11:00"},
		{StartTime: "11:00", EndTime: "12:00"},
	}
	assert.NoError(t, schedule.ValidateDaySlots(slots))
}

// =============================================================================
// TEMPLATE TESTS
// =============================================================================

func TestWeeklyTemplate_Validate_UnknownWeekday_Rejected(t *testing.T) {
	tmpl := schedule.WeeklyTemplate{
		"funday": {{StartTime: "10:00", EndTime: "11:00"}},
	}
	assert.ErrorIs(t, tmpl.Validate(), schedule.ErrInvalidWeekday)
}

func TestWeeklyTemplate_Validate_EmptyDay_Allowed(t *testing.T) {
	// A weekday with no slots means the mentor does not work that day.
	tmpl := schedule.WeeklyTemplate{
		"monday":  {{StartTime: "10:00", EndTime: "11:00"}},
		"tuesday": {},
	}
	assert.NoError(t, tmpl.Validate())
}

func TestFreeSlots_DropsBooked(t *testing.T) {
	slots := []schedule.TimeSlot{
		{StartTime: "09:00", EndTime: "10:00", Booked: true, OccupantUserID: "user-1"},
		{StartTime: "10:00", EndTime: "11:00"},
		{StartTime: "11:00", EndTime: "12:00", Booked: true, OccupantUserID: "user-2"},
	}

	free := schedule.FreeSlots(slots)

	require.Len(t, free, 1)
	assert.Equal(t, "10:00", free[0].StartTime)
}
