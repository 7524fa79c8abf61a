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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN sections sec ON sec.id = s.section_id"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("s.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.Estado != nil {
		conditions = append(conditions, fmt.Sprintf("s.estado = $%d", len(args)+1))
		args = append(args, *filter.Estado)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.cedula LIKE $%d OR LOWER(s.first_name || ' ' || s.last_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"cedula":     "s.cedula",
		"last_name":  "s.last_name",
		"created_at": "s.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.cedula"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT s.id, s.cedula, s.first_name, s.last_name, s.birth_date, s.address, s.phone, s.estado, s.section_id, s.created_at, s.updated_at,
        sec.grade_label AS section_grade, sec.letter AS section_letter
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.cedula, s.first_name, s.last_name, s.birth_date, s.address, s.phone, s.estado, s.section_id, s.created_at, s.updated_at,
        sec.grade_label AS section_grade, sec.letter AS section_letter
        FROM students s
        LEFT JOIN sections sec ON sec.id = s.section_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByCedula checks if a student with the given cedula exists, optionally excluding an ID.
func (r *StudentRepository) ExistsByCedula(ctx context.Context, cedula string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE cedula = $1"
	args := []interface{}{cedula}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check cedula: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, cedula, first_name, last_name, birth_date, address, phone, estado, section_id, created_at, updated_at)
        VALUES (:id, :cedula, :first_name, :last_name, :birth_date, :address, :phone, :estado, :section_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET cedula = :cedula, first_name = :first_name, last_name = :last_name, birth_date = :birth_date, address = :address, phone = :phone, estado = :estado, section_id = :section_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Retire flips a student to RETIRADO.
func (r *StudentRepository) Retire(ctx context.Context, id string) error {
	const query = `UPDATE students SET estado = $2, section_id = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.StudentStatusRetirado, time.Now().UTC()); err != nil {
		return fmt.Errorf("retire student: %w", err)
	}
	return nil
}

// RosterPage fetches one keyset-paginated slice of the student roster,
// ordered by cedula. An empty afterCedula starts from the beginning.
func (r *StudentRepository) RosterPage(ctx context.Context, pageSize int, afterCedula string) ([]models.RosterEntry, error) {
	query := `SELECT id, cedula, first_name, last_name, estado FROM students`
	var args []interface{}
	if afterCedula != "" {
		query += " WHERE cedula > $1"
		args = append(args, afterCedula)
	}
	query += fmt.Sprintf(" ORDER BY cedula ASC LIMIT %d", pageSize)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("student roster page: %w", err)
	}
	defer rows.Close()
	return scanStudentRoster(rows)
}

// RosterAll fetches the full student roster ordered by cedula. Search
// filtering happens client side because the store only orders, never
// matches substrings.
func (r *StudentRepository) RosterAll(ctx context.Context) ([]models.RosterEntry, error) {
	const query = `SELECT id, cedula, first_name, last_name, estado FROM students ORDER BY cedula ASC`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("student roster scan: %w", err)
	}
	defer rows.Close()
	return scanStudentRoster(rows)
}

// RosterCount returns the total number of students.
func (r *StudentRepository) RosterCount(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"); err != nil {
		return 0, fmt.Errorf("count student roster: %w", err)
	}
	return total, nil
}

func scanStudentRoster(rows *sqlx.Rows) ([]models.RosterEntry, error) {
	var entries []models.RosterEntry
	for rows.Next() {
		var id, cedula, first, last, estado string
		if err := rows.Scan(&id, &cedula, &first, &last, &estado); err != nil {
			return nil, fmt.Errorf("scan student roster row: %w", err)
		}
		entries = append(entries, models.RosterEntry{
			ID:      id,
			SortKey: cedula,
			Fields: map[string]string{
				"cedula": cedula,
				"nombre": first + " " + last,
				"estado": estado,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("student roster rows: %w", err)
	}
	return entries, nil
}
