package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/colegio-adp-api/internal/models"
)

// EnrollmentRepository manages persistence for enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentDetailColumns = `e.id, e.student_id, e.section_id, e.period_id, e.enrolled_at, e.retired_at, e.status,
        st.first_name || ' ' || st.last_name AS student_name, st.cedula AS student_cedula,
        sec.grade_label AS section_grade, sec.letter AS section_letter, p.label AS period_label`

const enrollmentDetailJoins = `FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN sections sec ON sec.id = e.section_id
        JOIN periods p ON p.id = e.period_id`

// List returns enrollment details matching the provided filters.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := enrollmentDetailJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.PeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("e.period_id = $%d", len(args)+1))
		args = append(args, filter.PeriodID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY st.cedula ASC LIMIT %d OFFSET %d", enrollmentDetailColumns, base, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID loads an enrollment detail by identifier.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByStudent returns the student's INSCRITO enrollment in a period, if any.
func (r *EnrollmentRepository) FindActiveByStudent(ctx context.Context, studentID, periodID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, period_id, enrolled_at, retired_at, status
        FROM enrollments WHERE student_id = $1 AND period_id = $2 AND status = $3 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, periodID, models.EnrollmentStatusInscrito); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create inserts a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusInscrito
	}
	const query = `INSERT INTO enrollments (id, student_id, section_id, period_id, enrolled_at, retired_at, status)
        VALUES (:id, :student_id, :section_id, :period_id, :enrolled_at, :retired_at, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Retire flips an enrollment to RETIRADO, stamping the retirement time.
func (r *EnrollmentRepository) Retire(ctx context.Context, id string, retiredAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, retired_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusRetirado, retiredAt, models.EnrollmentStatusInscrito)
	if err != nil {
		return fmt.Errorf("retire enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retire enrollment result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountBySection returns the INSCRITO enrollments in a section for a period.
func (r *EnrollmentRepository) CountBySection(ctx context.Context, sectionID, periodID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND period_id = $2 AND status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, periodID, models.EnrollmentStatusInscrito); err != nil {
		return 0, fmt.Errorf("count section enrollments: %w", err)
	}
	return count, nil
}

// RosterPage fetches one keyset-paginated slice of the enrollment roster
// for a period, ordered by the student's cedula.
func (r *EnrollmentRepository) RosterPage(ctx context.Context, periodID string, pageSize int, afterCedula string) ([]models.RosterEntry, error) {
	query := `SELECT e.id, st.cedula, st.first_name || ' ' || st.last_name AS student_name, sec.grade_label, sec.letter, e.status
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN sections sec ON sec.id = e.section_id
        WHERE e.period_id = $1`
	args := []interface{}{periodID}
	if afterCedula != "" {
		query += " AND st.cedula > $2"
		args = append(args, afterCedula)
	}
	query += fmt.Sprintf(" ORDER BY st.cedula ASC LIMIT %d", pageSize)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("enrollment roster page: %w", err)
	}
	defer rows.Close()
	return scanEnrollmentRoster(rows)
}

// RosterAll fetches the full enrollment roster of a period in cedula order.
func (r *EnrollmentRepository) RosterAll(ctx context.Context, periodID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id, st.cedula, st.first_name || ' ' || st.last_name AS student_name, sec.grade_label, sec.letter, e.status
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN sections sec ON sec.id = e.section_id
        WHERE e.period_id = $1
        ORDER BY st.cedula ASC`
	rows, err := r.db.QueryxContext(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("enrollment roster scan: %w", err)
	}
	defer rows.Close()
	return scanEnrollmentRoster(rows)
}

// RosterCount returns the number of enrollments in a period.
func (r *EnrollmentRepository) RosterCount(ctx context.Context, periodID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollments WHERE period_id = $1", periodID); err != nil {
		return 0, fmt.Errorf("count enrollment roster: %w", err)
	}
	return total, nil
}

func scanEnrollmentRoster(rows *sqlx.Rows) ([]models.RosterEntry, error) {
	var entries []models.RosterEntry
	for rows.Next() {
		var id, cedula, name, grade, letter, status string
		if err := rows.Scan(&id, &cedula, &name, &grade, &letter, &status); err != nil {
			return nil, fmt.Errorf("scan enrollment roster row: %w", err)
		}
		entries = append(entries, models.RosterEntry{
			ID:      id,
			SortKey: cedula,
			Fields: map[string]string{
				"cedula":  cedula,
				"nombre":  name,
				"seccion": grade + "-" + letter,
				"estado":  status,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("enrollment roster rows: %w", err)
	}
	return entries, nil
}
