package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/colegio-adp-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.Student{
		Cedula:    "12345678",
		FirstName: "Maria",
		LastName:  "Perez",
		BirthDate: time.Now(),
		Estado:    models.StudentStatusInscrito,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRosterPageFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "cedula", "first_name", "last_name", "estado"}).
		AddRow("s1", "10000001", "Ana", "Gomez", "INSCRITO").
		AddRow("s2", "10000002", "Luis", "Rojas", "INSCRITO")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, cedula, first_name, last_name, estado FROM students ORDER BY cedula ASC LIMIT 10")).
		WillReturnRows(rows)

	entries, err := repo.RosterPage(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "10000001", entries[0].SortKey)
	assert.Equal(t, "Ana Gomez", entries[0].Fields["nombre"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRosterPageAfterCursor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "cedula", "first_name", "last_name", "estado"}).
		AddRow("s3", "10000003", "Pedro", "Silva", "RETIRADO")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, cedula, first_name, last_name, estado FROM students WHERE cedula > $1 ORDER BY cedula ASC LIMIT 10")).
		WithArgs("10000002").
		WillReturnRows(rows)

	entries, err := repo.RosterPage(context.Background(), 10, "10000002")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s3", entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByCedula(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE cedula = $1 LIMIT 1")).
		WithArgs("12345678").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsByCedula(context.Background(), "12345678", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRetire(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET estado = $2, section_id = NULL, updated_at = $3 WHERE id = $1")).
		WithArgs("s1", models.StudentStatusRetirado, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Retire(context.Background(), "s1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
