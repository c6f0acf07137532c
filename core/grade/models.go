package grade

import (
	"time"

	"github.com/volatiletech/null/v8"
)

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Binary maps female to 1 and everything else, including unknown values, to 0.
func (g Gender) Binary() float64 {
	if g == GenderFemale {
		return 1
	}
	return 0
}

// Label is the raw classifier output.
type Label int

const (
	LabelFail Label = 0
	LabelPass Label = 1
)

func (l Label) String() string {
	if l == LabelPass {
		return "Pass"
	}
	return "Fail"
}

// Student is the read-only identity a MarksRecord belongs to.
type Student struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Gender Gender `json:"gender"` // empty when no profile exists
}

// Marks holds the tracked inputs of a MarksRecord.
type Marks struct {
	NumOfPrevAttempts          int     `json:"num_of_prev_attempts" validate:"gte=0"`
	FinalAssessmentScore       float64 `json:"final_assessment_score" validate:"gte=0"`
	TasksCompleted             int     `json:"tasks_completed" validate:"gte=0"`
	PracticalHours             float64 `json:"practical_hours" validate:"gte=0"`
	TheoryHours                float64 `json:"theory_hours" validate:"gte=0"`
	ExercisesCompleted         int     `json:"exercises_completed" validate:"gte=0"`
	IndustryTrainingExperience float64 `json:"industry_training_experience" validate:"gte=0"`
}

type MarksRecord struct {
	StudentID string `json:"student_id"`
	Marks
	FinalGrade null.Int  `json:"final_grade"` // written only by the Predictor
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// NewMarksRecord returns a zeroed record for studentID.
func NewMarksRecord(studentID string, now time.Time) MarksRecord {
	return MarksRecord{StudentID: studentID, Version: 1, CreatedAt: now, UpdatedAt: now}
}

// GradeLabel returns the rendered final grade, or "" when none was predicted yet.
func (r MarksRecord) GradeLabel() string {
	if !r.FinalGrade.Valid {
		return ""
	}
	return Label(r.FinalGrade.Int).String()
}

// UpdateMarks contains the marks fields editable by teachers.
type UpdateMarks struct {
	Marks
	Version int `json:"version" validate:"gte=0"` // 0 skips the version check
}

type QueryFilter struct {
	Graded *bool  `query:"graded"`
	Grade  *int   `query:"grade"`
	Search string `query:"search"`
}
