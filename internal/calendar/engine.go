// Package calendar detects schedule conflicts and produces Google Calendar
// events and links for structured schedules.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

const (
	// DefaultLookAhead bounds conflict checks against existing events.
	DefaultLookAhead = 30 * 24 * time.Hour
	// SemesterWeeks is the recurrence count for class events.
	SemesterWeeks = 15
	// DefaultLocation is used when a meeting has no location.
	DefaultLocation = "AUB Campus"
)

// ParseClock parses "h:mm am|pm". Malformed input yields 9:00.
func ParseClock(s string) (hour, minute int) {
	h, m, err := domain.ParseClock(s)
	if err != nil {
		return 9, 0
	}
	return h, m
}

// Event is an existing calendar entry.
type Event struct {
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
}

// Conflict is an overlap between a proposed meeting and an existing event.
type Conflict struct {
	Course           string    `json:"course"`
	MeetingDay       string    `json:"meeting_day"`
	MeetingTime      string    `json:"meeting_time"`
	ConflictingEvent string    `json:"conflicting_event"`
	EventTime        string    `json:"event_time"`
	EventStart       time.Time `json:"event_start"`
}

// InternalConflict is an overlap between two proposed meetings.
type InternalConflict struct {
	First      string `json:"first"`
	Second     string `json:"second"`
	Day        string `json:"day"`
	FirstTime  string `json:"first_time"`
	SecondTime string `json:"second_time"`
}

func courseLabel(c domain.ScheduledCourse) string {
	title := c.Title
	if title == "" {
		title = "Class"
	}
	return c.CourseCode + " - " + title
}

func meetingRange(m domain.Meeting) string {
	return m.StartTime + " - " + m.EndTime
}

func at(day time.Time, hour, minute int) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, hour, minute, 0, 0, day.Location())
}

// DetectConflicts reports every pair of (meeting weekday, existing event)
// that overlaps. Events that are all-day or start outside
// [now, now+lookAhead) are ignored. Intervals are half-open.
func DetectConflicts(s *domain.StructuredSchedule, events []Event, now time.Time, lookAhead time.Duration) []Conflict {
	if s == nil {
		return nil
	}
	if lookAhead <= 0 {
		lookAhead = DefaultLookAhead
	}
	windowEnd := now.Add(lookAhead)

	var out []Conflict
	for _, course := range s.Schedule {
		for _, m := range course.Meetings {
			sh, sm := ParseClock(m.StartTime)
			eh, em := ParseClock(m.EndTime)
			for _, wd := range m.Weekdays() {
				for _, ev := range events {
					if ev.AllDay || ev.Start.Before(now) || !ev.Start.Before(windowEnd) {
						continue
					}
					if ev.Start.Weekday() != wd {
						continue
					}
					mStart := at(ev.Start, sh, sm)
					mEnd := at(ev.Start, eh, em)
					if mStart.Before(ev.End) && mEnd.After(ev.Start) {
						out = append(out, Conflict{
							Course:           courseLabel(course),
							MeetingDay:       wd.String(),
							MeetingTime:      meetingRange(m),
							ConflictingEvent: orDefault(ev.Summary, "Unknown Event"),
							EventTime:        ev.Start.Format("03:04 PM") + " - " + ev.End.Format("03:04 PM"),
							EventStart:       ev.Start,
						})
					}
				}
			}
		}
	}
	return out
}

// InternalConflicts reports pairs of proposed meetings that overlap on a
// shared weekday.
func InternalConflicts(s *domain.StructuredSchedule) []InternalConflict {
	if s == nil {
		return nil
	}
	type slot struct {
		label      string
		meeting    domain.Meeting
		start, end int
		days       map[time.Weekday]bool
	}
	var slots []slot
	for _, c := range s.Schedule {
		label := c.CourseCode
		if c.Section != "" {
			label += " (" + c.Section + ")"
		}
		for _, m := range c.Meetings {
			sh, sm := ParseClock(m.StartTime)
			eh, em := ParseClock(m.EndTime)
			days := make(map[time.Weekday]bool)
			for _, wd := range m.Weekdays() {
				days[wd] = true
			}
			slots = append(slots, slot{label: label, meeting: m, start: sh*60 + sm, end: eh*60 + em, days: days})
		}
	}

	var out []InternalConflict
	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			a, b := slots[i], slots[j]
			if !(a.start < b.end && a.end > b.start) {
				continue
			}
			for _, wd := range domain.MondayFirst {
				if a.days[wd] && b.days[wd] {
					out = append(out, InternalConflict{
						First:      a.label,
						Second:     b.label,
						Day:        wd.String(),
						FirstTime:  meetingRange(a.meeting),
						SecondTime: meetingRange(b.meeting),
					})
				}
			}
		}
	}
	return out
}

var rruleDays = map[time.Weekday]string{
	time.Monday: "MO", time.Tuesday: "TU", time.Wednesday: "WE", time.Thursday: "TH",
	time.Friday: "FR", time.Saturday: "SA", time.Sunday: "SU",
}

// Recurrence returns the first occurrence of a meeting and its weekly rule.
// The anchor is the next date of the earliest weekday in the pattern; when
// today is that weekday the anchor moves to next week.
func Recurrence(m domain.Meeting, now time.Time) (start, end time.Time, rule string, ok bool) {
	days := m.Weekdays()
	if len(days) == 0 {
		return time.Time{}, time.Time{}, "", false
	}
	ahead := (int(days[0]) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	day := now.AddDate(0, 0, ahead)
	sh, sm := ParseClock(m.StartTime)
	eh, em := ParseClock(m.EndTime)

	codes := make([]string, len(days))
	for i, wd := range days {
		codes[i] = rruleDays[wd]
	}
	rule = fmt.Sprintf("RRULE:FREQ=WEEKLY;COUNT=%d;BYDAY=%s", SemesterWeeks, strings.Join(codes, ","))
	return at(day, sh, sm), at(day, eh, em), rule, true
}

// Link is a pre-filled Google Calendar event link for one meeting.
type Link struct {
	Day    string `json:"day"`
	Time   string `json:"time"`
	Course string `json:"course"`
	URL    string `json:"url"`
}

// Links builds one render link per meeting. now is interpreted in loc.
func Links(s *domain.StructuredSchedule, now time.Time, loc *time.Location) []Link {
	if s == nil {
		return nil
	}
	if loc != nil {
		now = now.In(loc)
	}
	var out []Link
	for _, course := range s.Schedule {
		for _, m := range course.Meetings {
			start, end, rule, ok := Recurrence(m, now)
			if !ok {
				continue
			}
			q := url.Values{}
			q.Set("action", "TEMPLATE")
			q.Set("text", courseLabel(course))
			q.Set("details", details(course))
			q.Set("location", orDefault(m.Location, DefaultLocation))
			q.Set("dates", start.Format("20060102T150405")+"/"+end.Format("20060102T150405"))
			q.Set("recur", rule)
			if loc != nil {
				q.Set("ctz", loc.String())
			}

			days := make([]string, 0, len(m.Days))
			for _, wd := range m.Weekdays() {
				days = append(days, wd.String())
			}
			out = append(out, Link{
				Day:    strings.Join(days, ", "),
				Time:   meetingRange(m),
				Course: course.CourseCode,
				URL:    "https://calendar.google.com/calendar/render?" + q.Encode(),
			})
		}
	}
	return out
}

func details(c domain.ScheduledCourse) string {
	return fmt.Sprintf("Course: %s\nSection: %s\nInstructor: %s", c.CourseCode, c.Section, orDefault(c.Instructor, "TBA"))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
