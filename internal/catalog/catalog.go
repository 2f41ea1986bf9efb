// Package catalog loads the scraped term course catalog and matches course
// names against it.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

// ErrCatalogUnavailable is returned when the catalog file is missing or corrupt.
var ErrCatalogUnavailable = errors.New("course catalog unavailable")

// Catalog is one snapshot of the catalog file.
type Catalog struct {
	Terms []Term
}

// Term is one academic term.
type Term struct {
	ID       string
	Name     string
	Subjects []Subject
}

// Subject groups courses by subject code.
type Subject struct {
	Code    string
	Name    string
	Courses map[string][]Section
}

// Section is one course section record.
type Section struct {
	SubjectCode   string        `json:"subject_code"`
	CourseNumber  string        `json:"course_number"`
	CourseCode    string        `json:"course_code"`
	CourseTitle   string        `json:"course_title"`
	Section       string        `json:"section"`
	CRN           string        `json:"crn"`
	Credits       string        `json:"credits"`
	MeetingTimes  []MeetingTime `json:"meeting_times"`
	Prerequisites []string      `json:"prerequisites,omitempty"`
}

// MeetingTime is one weekly meeting of a section.
type MeetingTime struct {
	Days        []string `json:"days"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Building    string   `json:"building"`
	Room        string   `json:"room"`
	Instructors []string `json:"instructors"`
}

// Location joins building and room.
func (m MeetingTime) Location() string {
	return strings.TrimSpace(m.Building + " " + m.Room)
}

// UnmarshalJSON accepts numbers or strings for crn and credits, and the
// scraper's alternate field names.
func (s *Section) UnmarshalJSON(data []byte) error {
	var raw struct {
		SubjectCode   string          `json:"subject_code"`
		CourseNumber  json.RawMessage `json:"course_number"`
		CourseCode    string          `json:"course_code"`
		CourseTitle   string          `json:"course_title"`
		Title         string          `json:"title"`
		Section       json.RawMessage `json:"section"`
		CRN           json.RawMessage `json:"crn"`
		Credits       json.RawMessage `json:"credits"`
		MeetingTimes  []MeetingTime   `json:"meeting_times"`
		Prerequisites json.RawMessage `json:"prerequisites"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Section{
		SubjectCode:   raw.SubjectCode,
		CourseNumber:  flexString(raw.CourseNumber),
		CourseCode:    strings.TrimSpace(raw.CourseCode),
		CourseTitle:   raw.CourseTitle,
		Section:       flexString(raw.Section),
		CRN:           flexString(raw.CRN),
		Credits:       flexString(raw.Credits),
		MeetingTimes:  raw.MeetingTimes,
		Prerequisites: flexList(raw.Prerequisites),
	}
	if s.CourseTitle == "" {
		s.CourseTitle = raw.Title
	}
	if s.CourseCode == "" && s.SubjectCode != "" && s.CourseNumber != "" {
		s.CourseCode = s.SubjectCode + " " + s.CourseNumber
	}
	return nil
}

// UnmarshalJSON accepts days as a list of names, a compact letter code
// ("MWF", "TR") or the scraper's days_array field.
func (m *MeetingTime) UnmarshalJSON(data []byte) error {
	var raw struct {
		Days        json.RawMessage `json:"days"`
		DaysArray   []string        `json:"days_array"`
		StartTime   string          `json:"start_time"`
		EndTime     string          `json:"end_time"`
		Building    string          `json:"building"`
		Room        string          `json:"room"`
		Instructors json.RawMessage `json:"instructors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	days := raw.DaysArray
	if len(days) == 0 {
		days = flexList(raw.Days)
	}
	*m = MeetingTime{
		Days:        expandDays(days),
		StartTime:   strings.TrimSpace(raw.StartTime),
		EndTime:     strings.TrimSpace(raw.EndTime),
		Building:    strings.TrimSpace(raw.Building),
		Room:        strings.TrimSpace(raw.Room),
		Instructors: flexList(raw.Instructors),
	}
	return nil
}

func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func flexList(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// expandDays turns compact registrar codes into weekday names. Anything it
// does not recognize is kept as is.
func expandDays(days []string) []string {
	var out []string
	for _, d := range days {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if wd, ok := domain.ParseWeekday(d); ok {
			out = append(out, wd.String())
			continue
		}
		compact := strings.ReplaceAll(strings.ToUpper(d), " ", "")
		if strings.Trim(compact, "MTWRFSU") == "" {
			for _, r := range compact {
				wd, _ := domain.ParseWeekday(string(r))
				out = append(out, wd.String())
			}
			continue
		}
		out = append(out, d)
	}
	return out
}

// Parse decodes catalog JSON. The top-level "metadata" key is not a term.
func Parse(data []byte) (*Catalog, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	cat := &Catalog{}
	for termID, rawTerm := range top {
		if termID == "metadata" {
			continue
		}
		var t struct {
			TermName string `json:"term_name"`
			Subjects map[string]struct {
				SubjectName string          `json:"subject_name"`
				Courses     json.RawMessage `json:"courses"`
			} `json:"subjects"`
		}
		if err := json.Unmarshal(rawTerm, &t); err != nil {
			return nil, fmt.Errorf("%w: term %s: %v", ErrCatalogUnavailable, termID, err)
		}
		term := Term{ID: termID, Name: t.TermName}
		for code, subj := range t.Subjects {
			courses, err := parseCourses(subj.Courses)
			if err != nil {
				return nil, fmt.Errorf("%w: subject %s: %v", ErrCatalogUnavailable, code, err)
			}
			term.Subjects = append(term.Subjects, Subject{Code: code, Name: subj.SubjectName, Courses: courses})
		}
		sort.Slice(term.Subjects, func(i, j int) bool { return term.Subjects[i].Code < term.Subjects[j].Code })
		cat.Terms = append(cat.Terms, term)
	}
	sort.Slice(cat.Terms, func(i, j int) bool { return cat.Terms[i].ID < cat.Terms[j].ID })
	return cat, nil
}

// parseCourses accepts {course_code: [section...]} or a flat section list.
func parseCourses(raw json.RawMessage) (map[string][]Section, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return map[string][]Section{}, nil
	}
	if raw[0] == '[' {
		var list []Section
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		out := make(map[string][]Section)
		for _, s := range list {
			if s.CourseCode == "" {
				continue
			}
			out[s.CourseCode] = append(out[s.CourseCode], s)
		}
		return out, nil
	}
	var byCode map[string][]Section
	if err := json.Unmarshal(raw, &byCode); err != nil {
		return nil, err
	}
	for code, sections := range byCode {
		for i := range sections {
			if sections[i].CourseCode == "" {
				sections[i].CourseCode = code
			}
		}
	}
	return byCode, nil
}

// CourseCount returns the number of distinct course codes across terms.
func (c *Catalog) CourseCount() int {
	n := 0
	for _, t := range c.Terms {
		for _, s := range t.Subjects {
			n += len(s.Courses)
		}
	}
	return n
}

// Loader reads the catalog file and caches it by modification time.
type Loader struct {
	path string

	mu      sync.Mutex
	cached  *Catalog
	modTime time.Time
	size    int64
}

// NewLoader creates a loader for path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the catalog file path.
func (l *Loader) Path() string { return l.path }

// Load returns the current catalog, re-reading the file when it changed.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil && info.ModTime().Equal(l.modTime) && info.Size() == l.size {
		return l.cached, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, err
	}
	l.cached, l.modTime, l.size = cat, info.ModTime(), info.Size()
	return cat, nil
}

// Available reports whether the catalog can currently be loaded.
func (l *Loader) Available(ctx context.Context) bool {
	_, err := l.Load(ctx)
	return err == nil
}

// Normalize upper-cases a course name and strips all whitespace.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}
