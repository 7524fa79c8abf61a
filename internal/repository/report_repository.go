package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/colegio-adp-api/internal/models"
)

// ReportRepository persists report job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report job row with generated defaults.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportJobPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	const query = `INSERT INTO report_jobs (id, type, format, section_id, requested_by, status, file_path, error_msg, created_at, updated_at)
        VALUES (:id, :type, :format, :section_id, :requested_by, :status, :file_path, :error_msg, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a job row by its identifier.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, type, format, section_id, requested_by, status, file_path, error_msg, created_at, updated_at
        FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// SetStatus updates a job's lifecycle state. File path and error message
// are only stamped when non-empty.
func (r *ReportRepository) SetStatus(ctx context.Context, id string, status models.ReportJobStatus, filePath, errorMsg string) error {
	const query = `UPDATE report_jobs SET status = $2,
        file_path = CASE WHEN $3 <> '' THEN $3 ELSE file_path END,
        error_msg = CASE WHEN $4 <> '' THEN $4 ELSE error_msg END,
        updated_at = $5
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, filePath, errorMsg, time.Now().UTC()); err != nil {
		return fmt.Errorf("update report job status: %w", err)
	}
	return nil
}

// ListByRequester returns the report jobs submitted by a user, newest first.
func (r *ReportRepository) ListByRequester(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, type, format, section_id, requested_by, status, file_path, error_msg, created_at, updated_at
        FROM report_jobs WHERE requested_by = $1 ORDER BY created_at DESC LIMIT $2`
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}
