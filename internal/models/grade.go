package models

import "time"

// Grade records a score for a student in a subject during a lapse.
// Scores use the 0-20 national scale.
type Grade struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	SectionID  string    `db:"section_id" json:"section_id"`
	LapseID    string    `db:"lapse_id" json:"lapse_id"`
	Subject    string    `db:"subject" json:"subject"`
	Score      float64   `db:"score" json:"score"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// GradeDetail enriches Grade with student and lapse labels.
type GradeDetail struct {
	Grade
	StudentName   string `db:"student_name" json:"student_name"`
	StudentCedula string `db:"student_cedula" json:"student_cedula"`
	LapseLabel    string `db:"lapse_label" json:"lapse_label"`
}

// GradeFilter provides filters for listing grades.
type GradeFilter struct {
	StudentID string
	SectionID string
	LapseID   string
	Subject   string
	Page      int
	PageSize  int
}
