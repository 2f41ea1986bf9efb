package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "metadata": {"scraped_at": "2025-01-10"},
  "202520": {
    "term_name": "Spring 2024-2025",
    "subjects": {
      "EECE": {
        "subject_name": "Electrical and Computer Engineering",
        "courses": {
          "EECE 230": [
            {"course_title": "Introduction to Programming", "section": "2", "crn": 21345, "credits": 3,
             "meeting_times": [{"days": "TR", "start_time": "11:00 am", "end_time": "12:15 pm", "building": "Bechtel", "room": "110", "instructors": "Jane Doe"}]},
            {"course_title": "Introduction to Programming", "section": "1", "crn": "21344", "credits": "3",
             "meeting_times": [{"days_array": ["Monday", "Wednesday", "Friday"], "start_time": "9:00 am", "end_time": "9:50 am", "instructors": ["John Roe"]}]}
          ],
          "EECE 231": [{"course_title": "Data Structures", "section": "1", "meeting_times": []}]
        }
      },
      "MATH": {
        "subject_name": "Mathematics",
        "courses": [
          {"subject_code": "MATH", "course_number": 201, "course_title": "Calculus III", "section": "1",
           "meeting_times": [{"days": ["Mon", "Wed"], "start_time": "2:00 pm", "end_time": "3:15 pm"}]}
        ]
      }
    }
  }
}`

func TestParseIgnoresMetadataAndNormalizesRecords(t *testing.T) {
	cat, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, cat.Terms, 1)
	assert.Equal(t, "Spring 2024-2025", cat.Terms[0].Name)
	assert.Equal(t, 3, cat.CourseCount())

	matches := cat.Match([]string{"MATH 201"})
	require.Len(t, matches, 1)
	s := matches[0].Sections[0]
	assert.Equal(t, "MATH 201", s.CourseCode)
	assert.Equal(t, []string{"Monday", "Wednesday"}, s.MeetingTimes[0].Days)

	eece := cat.Match([]string{"EECE 230"})
	require.Len(t, eece, 1)
	require.Len(t, eece[0].Sections, 2)
	first := eece[0].Sections[0]
	assert.Equal(t, "1", first.Section)
	assert.Equal(t, "21344", first.CRN)
	assert.Equal(t, "3", eece[0].Sections[1].Credits)
	assert.Equal(t, []string{"Tuesday", "Thursday"}, eece[0].Sections[1].MeetingTimes[0].Days)
	assert.Equal(t, []string{"Jane Doe"}, eece[0].Sections[1].MeetingTimes[0].Instructors)
}

func TestMatchNormalizesNames(t *testing.T) {
	cat, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	for _, name := range []string{"eece230", "EECE  230", " Eece 230 "} {
		got := cat.Match([]string{name})
		require.Len(t, got, 1, name)
		assert.Equal(t, "EECE 230", got[0].CourseCode, name)
	}

	prefix := cat.Match([]string{"EECE", "eece 230"})
	require.Len(t, prefix, 2, "duplicates across names are dropped")
	assert.Equal(t, "EECE 230", prefix[0].CourseCode)
	assert.Equal(t, "EECE 231", prefix[1].CourseCode)

	assert.Empty(t, cat.Match([]string{"", "CIVE 210"}))
	var nilCat *Catalog
	assert.Empty(t, nilCat.Match([]string{"EECE"}))
}

func TestFormatGroupsByCourseAndSection(t *testing.T) {
	cat, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	out := Format(cat.Match([]string{"EECE 23"}))

	assert.Contains(t, out, "Course: EECE 230 - Introduction to Programming (Spring 2024-2025)")
	assert.Contains(t, out, "Section 1 (CRN 21344, 3 credits)")
	assert.Contains(t, out, "Monday, Wednesday, Friday 9:00 am - 9:50 am | Instructor: John Roe")
	assert.Contains(t, out, "Tuesday, Thursday 11:00 am - 12:15 pm @ Bechtel 110")
	assert.Contains(t, out, "No meeting times listed")
	assert.Less(t, strings.Index(out, "Section 1"), strings.Index(out, "Section 2"))
	assert.Empty(t, Format(nil))
}

func TestDocumentsCarryCourseCodeMetadata(t *testing.T) {
	cat, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	docs := cat.Documents()
	require.Len(t, docs, 4)
	for _, d := range docs {
		assert.NotEmpty(t, d.MetaData["course_code"])
		assert.Equal(t, "course_schedule", d.MetaData["type"])
	}
	assert.Equal(t, "202520:21344", docs[0].ID)
}

func TestLoaderCachesByModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courses.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))
	l := NewLoader(path)
	ctx := context.Background()

	a, err := l.Load(ctx)
	require.NoError(t, err)
	b, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, os.WriteFile(path, []byte(`{"202610": {"term_name": "Fall", "subjects": {}}}`), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	c, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fall", c.Terms[0].Name)
}

func TestLoaderReportsUnavailable(t *testing.T) {
	dir := t.TempDir()
	_, err := NewLoader(filepath.Join(dir, "missing.json")).Load(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	l := NewLoader(corrupt)
	_, err = l.Load(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.False(t, l.Available(context.Background()))
}
