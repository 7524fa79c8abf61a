package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusInscrito EnrollmentStatus = "INSCRITO"
	EnrollmentStatusRetirado EnrollmentStatus = "RETIRADO"
)

// Enrollment captures a student's registration to a section within a period.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SectionID  string           `db:"section_id" json:"section_id"`
	PeriodID   string           `db:"period_id" json:"period_id"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	RetiredAt  *time.Time       `db:"retired_at" json:"retired_at,omitempty"`
	Status     EnrollmentStatus `db:"status" json:"status"`
}

// EnrollmentDetail enriches Enrollment with student and section info.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string `db:"student_name" json:"student_name"`
	StudentCedula string `db:"student_cedula" json:"student_cedula"`
	SectionGrade  string `db:"section_grade" json:"section_grade"`
	SectionLetter string `db:"section_letter" json:"section_letter"`
	PeriodLabel   string `db:"period_label" json:"period_label"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	PeriodID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
