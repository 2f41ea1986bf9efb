package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Match is one catalog course matched by an extracted course name.
type Match struct {
	TermID     string
	TermName   string
	Subject    string
	CourseCode string
	Sections   []Section
}

// Match finds every course whose normalized code contains a normalized
// name. Results follow the order of names, then course code.
func (c *Catalog) Match(names []string) []Match {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []Match
	for _, name := range names {
		n := Normalize(name)
		if n == "" {
			continue
		}
		var found []Match
		for _, t := range c.Terms {
			for _, s := range t.Subjects {
				for code, sections := range s.Courses {
					key := t.ID + "|" + code
					if seen[key] || !strings.Contains(Normalize(code), n) {
						continue
					}
					seen[key] = true
					found = append(found, Match{
						TermID:     t.ID,
						TermName:   t.Name,
						Subject:    s.Name,
						CourseCode: code,
						Sections:   sortedSections(sections),
					})
				}
			}
		}
		sort.Slice(found, func(i, j int) bool {
			if found[i].CourseCode != found[j].CourseCode {
				return found[i].CourseCode < found[j].CourseCode
			}
			return found[i].TermID < found[j].TermID
		})
		out = append(out, found...)
	}
	return out
}

func sortedSections(in []Section) []Section {
	out := make([]Section, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Section < out[j].Section })
	return out
}

// Format renders matches as plain text grouped by course, then section.
func Format(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n")
		}
		title := ""
		if len(m.Sections) > 0 {
			title = m.Sections[0].CourseTitle
		}
		fmt.Fprintf(&b, "Course: %s", m.CourseCode)
		if title != "" {
			fmt.Fprintf(&b, " - %s", title)
		}
		if m.TermName != "" {
			fmt.Fprintf(&b, " (%s)", m.TermName)
		}
		b.WriteString("\n")
		for _, s := range m.Sections {
			writeSection(&b, s)
		}
	}
	return b.String()
}

func writeSection(b *strings.Builder, s Section) {
	fmt.Fprintf(b, "  Section %s", s.Section)
	var extra []string
	if s.CRN != "" {
		extra = append(extra, "CRN "+s.CRN)
	}
	if s.Credits != "" {
		extra = append(extra, s.Credits+" credits")
	}
	if len(extra) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(extra, ", "))
	}
	b.WriteString("\n")
	if len(s.MeetingTimes) == 0 {
		b.WriteString("    No meeting times listed\n")
	}
	for _, mt := range s.MeetingTimes {
		fmt.Fprintf(b, "    %s", describeMeeting(mt))
		b.WriteString("\n")
	}
	if len(s.Prerequisites) > 0 {
		fmt.Fprintf(b, "    Prerequisites: %s\n", strings.Join(s.Prerequisites, ", "))
	}
}

func describeMeeting(mt MeetingTime) string {
	days := strings.Join(mt.Days, ", ")
	if days == "" {
		days = "TBA"
	}
	line := fmt.Sprintf("%s %s - %s", days, orTBA(mt.StartTime), orTBA(mt.EndTime))
	if loc := mt.Location(); loc != "" {
		line += " @ " + loc
	}
	if len(mt.Instructors) > 0 {
		line += " | Instructor: " + strings.Join(mt.Instructors, ", ")
	}
	return line
}

func orTBA(s string) string {
	if s == "" {
		return "TBA"
	}
	return s
}

// Documents renders every section as a retrievable document with
// course_code metadata, for the schedule namespace.
func (c *Catalog) Documents() []*schema.Document {
	var docs []*schema.Document
	for _, t := range c.Terms {
		for _, subj := range t.Subjects {
			codes := make([]string, 0, len(subj.Courses))
			for code := range subj.Courses {
				codes = append(codes, code)
			}
			sort.Strings(codes)
			for _, code := range codes {
				for _, s := range sortedSections(subj.Courses[code]) {
					docs = append(docs, sectionDocument(t, subj, code, s))
				}
			}
		}
	}
	return docs
}

func sectionDocument(t Term, subj Subject, code string, s Section) *schema.Document {
	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s - %s Section %s\n", code, s.CourseTitle, s.Section)
	if s.CRN != "" {
		fmt.Fprintf(&b, "CRN: %s\n", s.CRN)
	}
	if s.Credits != "" {
		fmt.Fprintf(&b, "Credits: %s\n", s.Credits)
	}
	fmt.Fprintf(&b, "Term: %s (%s)\n\nSchedule Information:\n", t.Name, t.ID)
	if len(s.MeetingTimes) == 0 {
		b.WriteString("No meeting time information available.\n")
	}
	for _, mt := range s.MeetingTimes {
		b.WriteString(describeMeeting(mt))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nThis course is part of the %s (%s) subject area.", subj.Name, subj.Code)

	meta := map[string]any{
		"course_code":  code,
		"course_title": s.CourseTitle,
		"subject":      subj.Code,
		"crn":          s.CRN,
		"section":      s.Section,
		"term_id":      t.ID,
		"term_name":    t.Name,
		"type":         "course_schedule",
		"source":       fmt.Sprintf("%s_%s", strings.ReplaceAll(code, " ", "_"), s.Section),
	}
	if len(s.MeetingTimes) > 0 {
		primary := s.MeetingTimes[0]
		meta["days"] = primary.Days
		meta["start_time"] = primary.StartTime
		meta["end_time"] = primary.EndTime
		meta["building"] = primary.Building
		meta["room"] = primary.Room
	}

	id := fmt.Sprintf("%s:%s:%s", t.ID, Normalize(code), s.Section)
	if s.CRN != "" {
		id = fmt.Sprintf("%s:%s", t.ID, s.CRN)
	}
	return &schema.Document{ID: id, Content: b.String(), MetaData: meta}
}
