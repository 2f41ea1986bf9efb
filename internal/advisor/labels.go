package advisor

import "strings"

// Department is the closed set of responders a question can be routed to.
type Department int

const (
	DeptGeneral Department = iota
	DeptChemical
	DeptMechanical
	DeptCivil
	DeptIndustrial
	DeptECE
	DeptSchedule
	DeptInvalid
)

var departmentLabels = [...]string{
	DeptGeneral:    "MSFEA Advisor",
	DeptChemical:   "Chemical Engineering and Advanced Energy (CHEE)",
	DeptMechanical: "Mechanical Engineering (MECH)",
	DeptCivil:      "Civil and Environmental Engineering (CEE)",
	DeptIndustrial: "Industrial Engineering and Management (ENMG)",
	DeptECE:        "Electrical and Computer Engineering (ECE)",
	DeptSchedule:   "Schedule Helper",
	DeptInvalid:    "Invalid",
}

// Label returns the user-facing department name.
func (d Department) Label() string {
	if d < 0 || int(d) >= len(departmentLabels) {
		return departmentLabels[DeptGeneral]
	}
	return departmentLabels[d]
}

func (d Department) String() string { return d.Label() }

// AgentID returns the knowledge agent that answers for d.
func (d Department) AgentID() string {
	switch d {
	case DeptChemical:
		return "chemical"
	case DeptMechanical:
		return "mechanical"
	case DeptCivil:
		return "civil"
	case DeptIndustrial:
		return "industrial"
	case DeptECE:
		return "ece"
	case DeptSchedule:
		return "schedule_maker"
	default:
		return "msfea_advisor"
	}
}

// Track is a sub-specialization of the ECE department.
type Track int

const (
	TrackGeneral Track = iota
	TrackSystems
	TrackCommunications
)

func (t Track) String() string {
	switch t {
	case TrackSystems:
		return "systems"
	case TrackCommunications:
		return "communications"
	default:
		return "general"
	}
}

// Code is the short program code used in prompts.
func (t Track) Code() string {
	switch t {
	case TrackSystems:
		return "CSE"
	case TrackCommunications:
		return "CCE"
	default:
		return "ECE"
	}
}

// AgentID returns the knowledge agent that answers for t.
func (t Track) AgentID() string {
	switch t {
	case TrackSystems:
		return "cse"
	case TrackCommunications:
		return "cce"
	default:
		return "ece_track"
	}
}

// QueryType is the advisory intent of a question.
type QueryType string

const (
	QueryCurriculum QueryType = "Curriculum"
	QueryCareer     QueryType = "Career"
	QueryAdmission  QueryType = "Admission"
	QueryFaculty    QueryType = "Faculty"
	QueryGeneral    QueryType = "General"
)

var queryTypes = []QueryType{QueryCurriculum, QueryCareer, QueryAdmission, QueryFaculty, QueryGeneral}

// ParseQueryType clamps a model answer to the known set. The first known
// name found in the answer wins; anything else is General.
func ParseQueryType(s string) QueryType {
	l := strings.ToLower(s)
	for _, qt := range queryTypes {
		if strings.Contains(l, strings.ToLower(string(qt))) {
			return qt
		}
	}
	return QueryGeneral
}

var generalKeywords = []string{
	"msfea advisor", "msfea", "general", "faculty", "advisor", "dates", "end", "start",
	"calendar", "semester", "break", "exams", "holidays", "reading period", "vacation",
	"graduation", "opening ceremony", "commencement", "finals", "term dates",
}

var scheduleKeywords = []string{
	"schedule", "timetable", "class time", "course time", "scheduling",
	"class schedule", "course schedule", "class timetable", "course timetable",
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// RouteDepartment maps a classifier label to a department. Order matters:
// faculty-wide and calendar terms win over departments, and departments win
// over scheduling terms.
func RouteDepartment(valid bool, label string) Department {
	l := strings.ToLower(label)
	switch {
	case !valid || strings.Contains(l, "invalid"):
		return DeptInvalid
	case containsAny(l, generalKeywords):
		return DeptGeneral
	case strings.Contains(l, "chemical"):
		return DeptChemical
	case strings.Contains(l, "mechanical"):
		return DeptMechanical
	case strings.Contains(l, "civil"):
		return DeptCivil
	case containsAny(l, []string{"industrial", "enmg", "management"}):
		return DeptIndustrial
	case containsAny(l, []string{"ece", "electrical", "computer", "electronic"}):
		return DeptECE
	case containsAny(l, scheduleKeywords):
		return DeptSchedule
	default:
		return DeptGeneral
	}
}

// RouteTrack maps a track classifier label to a track.
func RouteTrack(label string) Track {
	u := strings.ToUpper(label)
	switch {
	case strings.Contains(u, "CSE"):
		return TrackSystems
	case strings.Contains(u, "CCE"):
		return TrackCommunications
	default:
		return TrackGeneral
	}
}
