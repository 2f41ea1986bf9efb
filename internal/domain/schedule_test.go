package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in           string
		hour, minute int
	}{
		{"12:00 am", 0, 0},
		{"12:00 pm", 12, 0},
		{"1:30 pm", 13, 30},
		{"9:00 am", 9, 0},
		{"3 PM", 15, 0},
		{"14:45", 14, 45},
		{"11:59 p.m.", 23, 59},
	}
	for _, tc := range cases {
		h, m, err := ParseClock(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.hour, h, tc.in)
		assert.Equal(t, tc.minute, m, tc.in)
	}
}

func TestParseClockRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "noon", "25:00", "9:75 am", "x:10"} {
		_, _, err := ParseClock(in)
		assert.ErrorIs(t, err, ErrInvalidClock, in)
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"Monday": time.Monday, "tue": time.Tuesday, "R": time.Thursday, " sunday ": time.Sunday,
	} {
		got, ok := ParseWeekday(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseWeekday("someday")
	assert.False(t, ok)
}

func TestMeetingWeekdaysMondayFirst(t *testing.T) {
	m := Meeting{Days: []string{"Friday", "monday", "W", "Monday"}}
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, m.Weekdays())
}

func validSchedule() *StructuredSchedule {
	return &StructuredSchedule{
		IsSchedule: true,
		Schedule: []ScheduledCourse{{
			CourseCode: "CMPS 200",
			Section:    "1",
			Title:      "Introduction to Programming",
			Meetings: []Meeting{{
				Days:      []string{"mon", "Wed"},
				StartTime: "9:00 am",
				EndTime:   "9:50 am",
			}},
		}},
	}
}

func TestScheduleValidate(t *testing.T) {
	s := validSchedule()
	s.Normalize()
	require.NoError(t, s.Validate())
	assert.Equal(t, []string{"Monday", "Wednesday"}, s.Schedule[0].Meetings[0].Days)
}

func TestScheduleValidateRejectsBadMeetings(t *testing.T) {
	noDays := validSchedule()
	noDays.Schedule[0].Meetings[0].Days = nil
	assert.Error(t, noDays.Validate())

	unknownDay := validSchedule()
	unknownDay.Schedule[0].Meetings[0].Days = []string{"Funday"}
	assert.Error(t, unknownDay.Validate())

	backwards := validSchedule()
	backwards.Schedule[0].Meetings[0].EndTime = "8:00 am"
	assert.Error(t, backwards.Validate())

	empty := &StructuredSchedule{IsSchedule: true}
	assert.Error(t, empty.Validate())
}

func TestConversationSessionMessages(t *testing.T) {
	s := &ConversationSession{SessionID: "s1"}
	msgs, err := s.Messages()
	require.NoError(t, err)
	assert.Nil(t, msgs)

	require.NoError(t, s.SetMessages([]StoredMessage{{Role: "user", Content: "hi"}}))
	msgs, err = s.Messages()
	require.NoError(t, err)
	assert.Equal(t, []StoredMessage{{Role: "user", Content: "hi"}}, msgs)

	s.MessagesJSON = "{"
	_, err = s.Messages()
	assert.Error(t, err)
}
