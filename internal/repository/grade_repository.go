package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/colegio-adp-api/internal/models"
)

// GradeRepository manages persistence for grade records.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grade details matching the provided filters.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	base := `FROM grades g
        JOIN students st ON st.id = g.student_id
        JOIN lapses l ON l.id = g.lapse_id
        WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("g.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.LapseID != "" {
		conditions = append(conditions, fmt.Sprintf("g.lapse_id = $%d", len(args)+1))
		args = append(args, filter.LapseID)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("g.subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT g.id, g.student_id, g.section_id, g.lapse_id, g.subject, g.score, g.recorded_at,
        st.first_name || ' ' || st.last_name AS student_name, st.cedula AS student_cedula, l.label AS lapse_label
        %s ORDER BY st.cedula ASC, g.subject ASC LIMIT %d OFFSET %d`, base, size, offset)

	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID loads a grade by identifier.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT id, student_id, section_id, lapse_id, subject, score, recorded_at FROM grades WHERE id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Upsert inserts a grade or replaces the score for the same
// student/lapse/subject combination.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.RecordedAt.IsZero() {
		grade.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grades (id, student_id, section_id, lapse_id, subject, score, recorded_at)
        VALUES (:id, :student_id, :section_id, :lapse_id, :subject, :score, :recorded_at)
        ON CONFLICT (student_id, lapse_id, subject) DO UPDATE SET score = EXCLUDED.score, recorded_at = EXCLUDED.recorded_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// Delete removes a grade permanently.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}

// ListBySectionLapse returns the grade details for a whole section in one
// lapse, the dataset behind the grade report.
func (r *GradeRepository) ListBySectionLapse(ctx context.Context, sectionID, lapseID string) ([]models.GradeDetail, error) {
	const query = `SELECT g.id, g.student_id, g.section_id, g.lapse_id, g.subject, g.score, g.recorded_at,
        st.first_name || ' ' || st.last_name AS student_name, st.cedula AS student_cedula, l.label AS lapse_label
        FROM grades g
        JOIN students st ON st.id = g.student_id
        JOIN lapses l ON l.id = g.lapse_id
        WHERE g.section_id = $1 AND g.lapse_id = $2
        ORDER BY st.cedula ASC, g.subject ASC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, sectionID, lapseID); err != nil {
		return nil, fmt.Errorf("list section lapse grades: %w", err)
	}
	return grades, nil
}
