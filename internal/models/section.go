package models

import "time"

// SectionShift is the school day shift a section attends.
type SectionShift string

const (
	ShiftManana SectionShift = "MAÑANA"
	ShiftTarde  SectionShift = "TARDE"
)

// Section groups students under a grade label, a letter and a shift.
type Section struct {
	ID         string       `db:"id" json:"id"`
	GradeLabel string       `db:"grade_label" json:"grade_label"`
	Letter     string       `db:"letter" json:"letter"`
	Shift      SectionShift `db:"shift" json:"shift"`
	TeacherID  *string      `db:"teacher_id" json:"teacher_id,omitempty"`
	Capacity   int          `db:"capacity" json:"capacity"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with its assigned teacher's name.
type SectionDetail struct {
	Section
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// SectionFilter captures filtering criteria for listing sections.
type SectionFilter struct {
	GradeLabel string
	Shift      SectionShift
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
