package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidClock is returned when a clock string cannot be parsed.
var ErrInvalidClock = errors.New("invalid clock time")

// StructuredSchedule is the machine-readable schedule embedded in a
// schedule responder answer.
type StructuredSchedule struct {
	IsSchedule bool              `json:"is_schedule"`
	Schedule   []ScheduledCourse `json:"schedule" validate:"required,min=1,dive"`
}

// ScheduledCourse is one course section placed in a proposed schedule.
type ScheduledCourse struct {
	CourseCode string    `json:"course_code" validate:"required,max=32"`
	Section    string    `json:"section" validate:"max=16"`
	Title      string    `json:"title" validate:"max=200"`
	Instructor string    `json:"instructor,omitempty" validate:"max=200"`
	Meetings   []Meeting `json:"meetings" validate:"required,min=1,dive"`
}

// Meeting is a weekly recurring meeting pattern.
type Meeting struct {
	Days      []string `json:"days" validate:"required,min=1,max=7,unique,dive,weekday"`
	StartTime string   `json:"start_time" validate:"required,clock"`
	EndTime   string   `json:"end_time" validate:"required,clock"`
	Location  string   `json:"location,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday, "m": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "t": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "w": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "r": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "f": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "s": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday, "u": time.Sunday,
}

// ParseWeekday accepts full names, common abbreviations and the single
// letter registrar codes (M T W R F S U).
func ParseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// ParseClock parses "h:mm am", "h am" or a 24 hour "hh:mm" string.
func ParseClock(s string) (hour, minute int, err error) {
	v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), ".", "")
	if v == "" {
		return 0, 0, fmt.Errorf("%w: empty", ErrInvalidClock)
	}
	pm := strings.Contains(v, "pm")
	am := strings.Contains(v, "am")
	v = strings.TrimSpace(strings.NewReplacer("am", "", "pm", "").Replace(v))

	parts := strings.SplitN(v, ":", 2)
	hour, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 2 {
		minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}

	switch {
	case pm && hour < 12:
		hour += 12
	case am && hour == 12:
		hour = 0
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q out of range", ErrInvalidClock, s)
	}
	return hour, minute, nil
}

// ClockMinutes returns minutes since midnight for a clock string.
func ClockMinutes(s string) (int, error) {
	h, m, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// Weekdays returns the meeting days in Monday-first order, skipping
// names that do not parse.
func (m Meeting) Weekdays() []time.Weekday {
	seen := make(map[time.Weekday]bool, len(m.Days))
	for _, d := range m.Days {
		if wd, ok := ParseWeekday(d); ok {
			seen[wd] = true
		}
	}
	out := make([]time.Weekday, 0, len(seen))
	for _, wd := range MondayFirst {
		if seen[wd] {
			out = append(out, wd)
		}
	}
	return out
}

// MondayFirst is the academic week ordering.
var MondayFirst = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Normalize rewrites day names to their canonical English form and trims
// whitespace. Unknown day names are left untouched so validation reports them.
func (s *StructuredSchedule) Normalize() {
	for i := range s.Schedule {
		c := &s.Schedule[i]
		c.CourseCode = strings.TrimSpace(c.CourseCode)
		c.Section = strings.TrimSpace(c.Section)
		for j := range c.Meetings {
			m := &c.Meetings[j]
			m.StartTime = strings.TrimSpace(m.StartTime)
			m.EndTime = strings.TrimSpace(m.EndTime)
			for k, d := range m.Days {
				if wd, ok := ParseWeekday(d); ok {
					m.Days[k] = wd.String()
				}
			}
		}
	}
}

// Validate checks the schedule invariants: every meeting has at least one
// known weekday and starts before it ends.
func (s *StructuredSchedule) Validate() error {
	if err := scheduleValidator().Struct(s); err != nil {
		return fmt.Errorf("validate schedule: %w", err)
	}
	return nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func scheduleValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, ok := ParseWeekday(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, _, err := ParseClock(fl.Field().String())
			return err == nil
		})
		v.RegisterStructValidation(func(sl validator.StructLevel) {
			m := sl.Current().Interface().(Meeting)
			start, err1 := ClockMinutes(m.StartTime)
			end, err2 := ClockMinutes(m.EndTime)
			if err1 == nil && err2 == nil && start >= end {
				sl.ReportError(m.EndTime, "EndTime", "end_time", "after_start", m.StartTime)
			}
		}, Meeting{})
		validate = v
	})
	return validate
}
