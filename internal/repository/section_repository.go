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

// SectionRepository manages persistence for sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs a SectionRepository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns sections matching the provided filters.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := "FROM sections s LEFT JOIN teachers t ON t.id = s.teacher_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.GradeLabel != "" {
		conditions = append(conditions, fmt.Sprintf("s.grade_label = $%d", len(args)+1))
		args = append(args, filter.GradeLabel)
	}
	if filter.Shift != "" {
		conditions = append(conditions, fmt.Sprintf("s.shift = $%d", len(args)+1))
		args = append(args, filter.Shift)
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

	query := fmt.Sprintf(`SELECT s.id, s.grade_label, s.letter, s.shift, s.teacher_id, s.capacity, s.created_at, s.updated_at,
        t.full_name AS teacher_name
        %s ORDER BY s.grade_label ASC, s.letter ASC LIMIT %d OFFSET %d`, base, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID loads a section by identifier.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT s.id, s.grade_label, s.letter, s.shift, s.teacher_id, s.capacity, s.created_at, s.updated_at,
        t.full_name AS teacher_name
        FROM sections s
        LEFT JOIN teachers t ON t.id = s.teacher_id
        WHERE s.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists checks whether a section with the same grade, letter and shift exists.
func (r *SectionRepository) Exists(ctx context.Context, gradeLabel, letter string, shift models.SectionShift, excludeID string) (bool, error) {
	query := "SELECT 1 FROM sections WHERE grade_label = $1 AND letter = $2 AND shift = $3"
	args := []interface{}{gradeLabel, letter, shift}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check section uniqueness: %w", err)
	}
	return true, nil
}

// Create inserts a new section record.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	const query = `INSERT INTO sections (id, grade_label, letter, shift, teacher_id, capacity, created_at, updated_at)
        VALUES (:id, :grade_label, :letter, :shift, :teacher_id, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update modifies an existing section.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections SET grade_label = :grade_label, letter = :letter, shift = :shift, teacher_id = :teacher_id, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// Delete removes a section permanently.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	return nil
}

// CountStudents returns the number of students currently placed in a section.
func (r *SectionRepository) CountStudents(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM students WHERE section_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count section students: %w", err)
	}
	return count, nil
}

// RosterPage fetches one keyset-paginated slice of the section roster,
// ordered by the composite grade+letter+shift key.
func (r *SectionRepository) RosterPage(ctx context.Context, pageSize int, afterKey string) ([]models.RosterEntry, error) {
	query := `SELECT s.id, s.grade_label || '-' || s.letter || '-' || s.shift AS sort_key, s.grade_label, s.letter, s.shift, COALESCE(t.full_name, '') AS teacher_name
        FROM sections s LEFT JOIN teachers t ON t.id = s.teacher_id`
	var args []interface{}
	if afterKey != "" {
		query += " WHERE s.grade_label || '-' || s.letter || '-' || s.shift > $1"
		args = append(args, afterKey)
	}
	query += fmt.Sprintf(" ORDER BY sort_key ASC LIMIT %d", pageSize)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("section roster page: %w", err)
	}
	defer rows.Close()
	return scanSectionRoster(rows)
}

// RosterAll fetches the full section roster in sort-key order.
func (r *SectionRepository) RosterAll(ctx context.Context) ([]models.RosterEntry, error) {
	const query = `SELECT s.id, s.grade_label || '-' || s.letter || '-' || s.shift AS sort_key, s.grade_label, s.letter, s.shift, COALESCE(t.full_name, '') AS teacher_name
        FROM sections s LEFT JOIN teachers t ON t.id = s.teacher_id
        ORDER BY sort_key ASC`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("section roster scan: %w", err)
	}
	defer rows.Close()
	return scanSectionRoster(rows)
}

// RosterCount returns the total number of sections.
func (r *SectionRepository) RosterCount(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sections"); err != nil {
		return 0, fmt.Errorf("count section roster: %w", err)
	}
	return total, nil
}

func scanSectionRoster(rows *sqlx.Rows) ([]models.RosterEntry, error) {
	var entries []models.RosterEntry
	for rows.Next() {
		var id, sortKey, grade, letter, shift, teacherName string
		if err := rows.Scan(&id, &sortKey, &grade, &letter, &shift, &teacherName); err != nil {
			return nil, fmt.Errorf("scan section roster row: %w", err)
		}
		entries = append(entries, models.RosterEntry{
			ID:      id,
			SortKey: sortKey,
			Fields: map[string]string{
				"grado":   grade,
				"seccion": letter,
				"turno":   shift,
				"docente": teacherName,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("section roster rows: %w", err)
	}
	return entries, nil
}
