package models

import "time"

// ReportJobStatus tracks the background generation lifecycle.
type ReportJobStatus string

const (
	ReportJobPending ReportJobStatus = "PENDING"
	ReportJobRunning ReportJobStatus = "RUNNING"
	ReportJobDone    ReportJobStatus = "DONE"
	ReportJobFailed  ReportJobStatus = "FAILED"
)

// Report types and output formats supported by the export pipeline.
const (
	ReportTypeRoster = "roster"
	ReportTypeGrades = "grades"

	ReportFormatPDF = "pdf"
	ReportFormatCSV = "csv"
)

// ReportJob is a persisted asynchronous report generation request.
type ReportJob struct {
	ID          string          `db:"id" json:"id"`
	Type        string          `db:"type" json:"type"`
	Format      string          `db:"format" json:"format"`
	SectionID   *string         `db:"section_id" json:"section_id,omitempty"`
	RequestedBy string          `db:"requested_by" json:"requested_by"`
	Status      ReportJobStatus `db:"status" json:"status"`
	FilePath    string          `db:"file_path" json:"file_path,omitempty"`
	ErrorMsg    string          `db:"error_msg" json:"error_msg,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}
