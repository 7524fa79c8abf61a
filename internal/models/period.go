package models

import "time"

// PeriodStatus is the lifecycle state of a school period.
type PeriodStatus string

const (
	PeriodStatusActivo   PeriodStatus = "ACTIVO"
	PeriodStatusInactivo PeriodStatus = "INACTIVO"
)

// Period models a school year ("2024-2025"). At most one period is ACTIVO
// at any time; INACTIVO is terminal.
type Period struct {
	ID        string       `db:"id" json:"id"`
	Label     string       `db:"label" json:"label"`
	Status    PeriodStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// LapseStatus is the lifecycle state of a lapse (sub-period).
type LapseStatus string

const (
	LapseStatusActivo    LapseStatus = "ACTIVO"
	LapseStatusBloqueado LapseStatus = "BLOQUEADO"
	LapseStatusCerrado   LapseStatus = "CERRADO"
)

// Lapse is a grading sub-period within a school period. Lapses transition
// freely among the three statuses by direct administrator action, but at
// most one lapse is ACTIVO across all periods.
type Lapse struct {
	ID        string      `db:"id" json:"id"`
	Label     string      `db:"label" json:"label"`
	PeriodID  string      `db:"period_id" json:"period_id"`
	Status    LapseStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// ValidLapseStatus reports whether the given value is a known lapse status.
func ValidLapseStatus(s LapseStatus) bool {
	switch s {
	case LapseStatusActivo, LapseStatusBloqueado, LapseStatusCerrado:
		return true
	}
	return false
}
