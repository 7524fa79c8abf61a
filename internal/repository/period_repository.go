package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/colegio-adp-api/internal/models"
)

// PeriodRepository handles persistence for school periods and their lapses.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository constructs a PeriodRepository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// List returns all periods, newest label first.
func (r *PeriodRepository) List(ctx context.Context) ([]models.Period, error) {
	const query = `SELECT id, label, status, created_at, updated_at FROM periods ORDER BY label DESC`
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// FindByID loads a period by identifier.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.Period, error) {
	const query = `SELECT id, label, status, created_at, updated_at FROM periods WHERE id = $1`
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// FindActive returns the ACTIVO period.
func (r *PeriodRepository) FindActive(ctx context.Context) (*models.Period, error) {
	const query = `SELECT id, label, status, created_at, updated_at FROM periods WHERE status = $1 LIMIT 1`
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, models.PeriodStatusActivo); err != nil {
		return nil, err
	}
	return &period, nil
}

// ExistsByLabel checks whether a period with the given label already exists.
func (r *PeriodRepository) ExistsByLabel(ctx context.Context, label string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM periods WHERE label = $1 LIMIT 1", label); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check period label: %w", err)
	}
	return true, nil
}

// Create inserts a new ACTIVO period, guarded against a concurrent ACTIVO
// period by a conditional insert. It reports false with no error when
// another ACTIVO period already exists.
func (r *PeriodRepository) Create(ctx context.Context, period *models.Period) (bool, error) {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if period.CreatedAt.IsZero() {
		period.CreatedAt = now
	}
	period.UpdatedAt = now
	period.Status = models.PeriodStatusActivo

	const query = `INSERT INTO periods (id, label, status, created_at, updated_at)
        SELECT $1, $2, $3, $4, $5
        WHERE NOT EXISTS (SELECT 1 FROM periods WHERE status = $3)`
	res, err := r.db.ExecContext(ctx, query, period.ID, period.Label, period.Status, period.CreatedAt, period.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("create period: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create period result: %w", err)
	}
	return affected == 1, nil
}

// DeactivateWithCascade flips the period to INACTIVO and retires every
// INSCRITO student record along with the period's INSCRITO enrollments,
// inside one transaction. The student update is deliberately not scoped by
// enrollment: the period being deactivated is the only ACTIVO one, so every
// INSCRITO student belongs to it, enrolled or not. It returns the number of
// students retired.
func (r *PeriodRepository) DeactivateWithCascade(ctx context.Context, id string, now time.Time) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin deactivate tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	if res, err = tx.ExecContext(ctx, `UPDATE periods SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, models.PeriodStatusInactivo, now, models.PeriodStatusActivo); err != nil {
		return 0, fmt.Errorf("deactivate period: %w", err)
	}
	var flipped int64
	if flipped, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("deactivate period result: %w", err)
	}
	if flipped == 0 {
		err = sql.ErrNoRows
		return 0, err
	}

	if res, err = tx.ExecContext(ctx, `UPDATE students SET estado = $1, section_id = NULL, updated_at = $2 WHERE estado = $3`,
		models.StudentStatusRetirado, now, models.StudentStatusInscrito); err != nil {
		return 0, fmt.Errorf("retire students: %w", err)
	}
	var retired int64
	if retired, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("retire students result: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $2, retired_at = $3 WHERE period_id = $1 AND status = $4`,
		id, models.EnrollmentStatusRetirado, now, models.EnrollmentStatusInscrito); err != nil {
		return 0, fmt.Errorf("retire period enrollments: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit deactivate tx: %w", err)
	}
	return int(retired), nil
}

// ListLapses returns the lapses of a period in label order.
func (r *PeriodRepository) ListLapses(ctx context.Context, periodID string) ([]models.Lapse, error) {
	const query = `SELECT id, label, period_id, status, created_at, updated_at FROM lapses WHERE period_id = $1 ORDER BY label ASC`
	var lapses []models.Lapse
	if err := r.db.SelectContext(ctx, &lapses, query, periodID); err != nil {
		return nil, fmt.Errorf("list lapses: %w", err)
	}
	return lapses, nil
}

// FindLapseByID loads a lapse by identifier.
func (r *PeriodRepository) FindLapseByID(ctx context.Context, id string) (*models.Lapse, error) {
	const query = `SELECT id, label, period_id, status, created_at, updated_at FROM lapses WHERE id = $1`
	var lapse models.Lapse
	if err := r.db.GetContext(ctx, &lapse, query, id); err != nil {
		return nil, err
	}
	return &lapse, nil
}

// CreateLapse inserts a new lapse under a period.
func (r *PeriodRepository) CreateLapse(ctx context.Context, lapse *models.Lapse) error {
	if lapse.ID == "" {
		lapse.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lapse.CreatedAt.IsZero() {
		lapse.CreatedAt = now
	}
	lapse.UpdatedAt = now
	const query = `INSERT INTO lapses (id, label, period_id, status, created_at, updated_at)
        VALUES (:id, :label, :period_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lapse); err != nil {
		return fmt.Errorf("create lapse: %w", err)
	}
	return nil
}

// SetLapseStatus updates a lapse status. Promotions to ACTIVO are guarded
// by a conditional update so at most one lapse is ACTIVO across all
// periods; it reports false with no error when the guard blocked the write.
func (r *PeriodRepository) SetLapseStatus(ctx context.Context, id string, status models.LapseStatus) (bool, error) {
	now := time.Now().UTC()
	if status != models.LapseStatusActivo {
		if _, err := r.db.ExecContext(ctx, `UPDATE lapses SET status = $2, updated_at = $3 WHERE id = $1`, id, status, now); err != nil {
			return false, fmt.Errorf("set lapse status: %w", err)
		}
		return true, nil
	}

	const query = `UPDATE lapses SET status = $2, updated_at = $3
        WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM lapses WHERE status = $2 AND id <> $1)`
	res, err := r.db.ExecContext(ctx, query, id, models.LapseStatusActivo, now)
	if err != nil {
		return false, fmt.Errorf("activate lapse: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activate lapse result: %w", err)
	}
	return affected == 1, nil
}
