package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/colegio-adp-api/internal/models"
)

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "s1", SectionID: "sec1", PeriodID: "p1"}
	err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusInscrito, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRetire(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, retired_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("e1", models.EnrollmentStatusRetirado, now, models.EnrollmentStatusInscrito).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Retire(context.Background(), "e1", now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRetireAlreadyRetired(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, retired_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("e1", models.EnrollmentStatusRetirado, now, models.EnrollmentStatusInscrito).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Retire(context.Background(), "e1", now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRosterPage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "cedula", "student_name", "grade_label", "letter", "status"}).
		AddRow("e1", "10000001", "Ana Gomez", "1er Grado", "A", "INSCRITO")
	mock.ExpectQuery("SELECT e.id, st.cedula").
		WithArgs("p1", "10000000").
		WillReturnRows(rows)

	entries, err := repo.RosterPage(context.Background(), "p1", 10, "10000000")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1er Grado-A", entries[0].Fields["seccion"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountBySection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND period_id = $2 AND status = $3")).
		WithArgs("sec1", "p1", models.EnrollmentStatusInscrito).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(28))

	count, err := repo.CountBySection(context.Background(), "sec1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 28, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
