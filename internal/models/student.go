package models

import "time"

// StudentStatus is the enrollment state carried on the student record itself.
type StudentStatus string

// Student statuses keep the Spanish domain labels.
const (
	StudentStatusInscrito StudentStatus = "INSCRITO"
	StudentStatusRetirado StudentStatus = "RETIRADO"
)

// Student models a pupil. Cedula is the national ID and doubles as the
// roster sort key.
type Student struct {
	ID        string        `db:"id" json:"id"`
	Cedula    string        `db:"cedula" json:"cedula"`
	FirstName string        `db:"first_name" json:"first_name"`
	LastName  string        `db:"last_name" json:"last_name"`
	BirthDate time.Time     `db:"birth_date" json:"birth_date"`
	Address   string        `db:"address" json:"address"`
	Phone     string        `db:"phone" json:"phone"`
	Estado    StudentStatus `db:"estado" json:"estado"`
	SectionID *string       `db:"section_id" json:"section_id,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches Student with its section labels.
type StudentDetail struct {
	Student
	SectionGrade  *string `db:"section_grade" json:"section_grade,omitempty"`
	SectionLetter *string `db:"section_letter" json:"section_letter,omitempty"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	SectionID string
	Estado    *StudentStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
