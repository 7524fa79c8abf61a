package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/colegio-adp-api/internal/models"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
)

type rosterStub struct {
	entries    []models.RosterEntry
	pageCalls  int
	scanCalls  int
	countCalls int
}

func newRosterStub(n int) *rosterStub {
	s := &rosterStub{}
	for i := 1; i <= n; i++ {
		cedula := fmt.Sprintf("%08d", i)
		s.entries = append(s.entries, models.RosterEntry{
			ID:      fmt.Sprintf("id-%03d", i),
			SortKey: cedula,
			Fields:  map[string]string{"cedula": cedula, "nombre": fmt.Sprintf("Estudiante %d", i)},
		})
	}
	return s
}

func (s *rosterStub) RosterPage(_ context.Context, pageSize int, afterKey string) ([]models.RosterEntry, error) {
	s.pageCalls++
	var out []models.RosterEntry
	for _, e := range s.entries {
		if e.SortKey > afterKey {
			out = append(out, e)
			if len(out) == pageSize {
				break
			}
		}
	}
	return out, nil
}

func (s *rosterStub) RosterAll(_ context.Context) ([]models.RosterEntry, error) {
	s.scanCalls++
	return s.entries, nil
}

func (s *rosterStub) RosterCount(_ context.Context) (int, error) {
	s.countCalls++
	return len(s.entries), nil
}

type enrollmentRosterStub struct {
	inner rosterStub
}

func (s *enrollmentRosterStub) RosterPage(ctx context.Context, periodID string, pageSize int, afterKey string) ([]models.RosterEntry, error) {
	if periodID == "" {
		return nil, nil
	}
	return s.inner.RosterPage(ctx, pageSize, afterKey)
}

func (s *enrollmentRosterStub) RosterAll(ctx context.Context, periodID string) ([]models.RosterEntry, error) {
	if periodID == "" {
		return nil, nil
	}
	return s.inner.RosterAll(ctx)
}

func (s *enrollmentRosterStub) RosterCount(ctx context.Context, periodID string) (int, error) {
	if periodID == "" {
		return 0, nil
	}
	return s.inner.RosterCount(ctx)
}

type periodFinderStub struct {
	period *models.Period
}

func (s *periodFinderStub) FindActive(context.Context) (*models.Period, error) {
	if s.period == nil {
		return nil, sql.ErrNoRows
	}
	return s.period, nil
}

func newRosterServiceForTest(studentCount int, debounce time.Duration) (*RosterService, *rosterStub, *enrollmentRosterStub, *periodFinderStub) {
	students := newRosterStub(studentCount)
	sections := newRosterStub(4)
	enrollments := &enrollmentRosterStub{inner: *newRosterStub(15)}
	periods := &periodFinderStub{period: &models.Period{ID: "p1", Label: "2024-2025", Status: models.PeriodStatusActivo}}
	svc := NewRosterService(students, sections, enrollments, periods, nil, 10, debounce)
	return svc, students, enrollments, periods
}

func TestRosterLoadPageFirstPage(t *testing.T) {
	svc, _, _, _ := newRosterServiceForTest(25, time.Millisecond)

	view, err := svc.LoadPage(context.Background(), "sess-1", models.RosterCollectionStudents, 1, false)
	require.NoError(t, err)
	assert.Equal(t, models.RosterCollectionStudents, view.Collection)
	assert.Equal(t, 1, view.Page)
	assert.Equal(t, 3, view.TotalPages)
	assert.True(t, view.HasMore)
	assert.False(t, view.Searching)
	require.Len(t, view.Items, 10)
	assert.Equal(t, "00000001", view.Items[0].Fields["cedula"])
}

func TestRosterLoadPageLastPage(t *testing.T) {
	svc, _, _, _ := newRosterServiceForTest(25, time.Millisecond)

	view, err := svc.LoadPage(context.Background(), "sess-1", models.RosterCollectionStudents, 3, false)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Page)
	assert.False(t, view.HasMore)
	require.Len(t, view.Items, 5)
	assert.Equal(t, "00000025", view.Items[4].Fields["cedula"])
}

func TestRosterLoadPageOutOfRange(t *testing.T) {
	svc, _, _, _ := newRosterServiceForTest(25, time.Millisecond)

	_, err := svc.LoadPage(context.Background(), "sess-1", models.RosterCollectionStudents, 9, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRosterUnknownCollection(t *testing.T) {
	svc, _, _, _ := newRosterServiceForTest(5, time.Millisecond)

	_, err := svc.LoadPage(context.Background(), "sess-1", "ghosts", 1, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRosterSessionsAreIsolated(t *testing.T) {
	svc, _, _, _ := newRosterServiceForTest(25, time.Millisecond)
	ctx := context.Background()

	viewA, err := svc.LoadPage(ctx, "sess-a", models.RosterCollectionStudents, 2, false)
	require.NoError(t, err)
	viewB, err := svc.LoadPage(ctx, "sess-b", models.RosterCollectionStudents, 1, false)
	require.NoError(t, err)

	assert.Equal(t, 2, viewA.Page)
	assert.Equal(t, 1, viewB.Page)
}

func TestRosterCollectionsAreIsolated(t *testing.T) {
	svc, _, _, _ := newRosterServiceForTest(25, time.Millisecond)
	ctx := context.Background()

	_, err := svc.LoadPage(ctx, "sess-1", models.RosterCollectionStudents, 2, false)
	require.NoError(t, err)
	view, err := svc.LoadPage(ctx, "sess-1", models.RosterCollectionSections, 1, false)
	require.NoError(t, err)

	assert.Equal(t, models.RosterCollectionSections, view.Collection)
	assert.Equal(t, 1, view.Page)
	assert.Len(t, view.Items, 4)
	assert.False(t, view.HasMore)
}

func TestRosterSearchFiltersEntries(t *testing.T) {
	svc, students, _, _ := newRosterServiceForTest(25, time.Millisecond)

	view, err := svc.Search(context.Background(), "sess-1", models.RosterCollectionStudents, "Estudiante 2", "nombre")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.True(t, view.Searching)
	assert.Equal(t, "Estudiante 2", view.Query)
	// "Estudiante 2" plus "Estudiante 20".."Estudiante 25".
	assert.Len(t, view.Items, 7)
	assert.Equal(t, 1, students.scanCalls)
}

func TestRosterSearchEmptyQueryRestoresFirstPage(t *testing.T) {
	svc, _, _, _ := newRosterServiceForTest(25, time.Millisecond)
	ctx := context.Background()

	_, err := svc.Search(ctx, "sess-1", models.RosterCollectionStudents, "Estudiante 2", "nombre")
	require.NoError(t, err)

	view, err := svc.Search(ctx, "sess-1", models.RosterCollectionStudents, "", "")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.False(t, view.Searching)
	assert.Equal(t, 1, view.Page)
	assert.Len(t, view.Items, 10)
}

func TestRosterSearchSupersededReturnsNil(t *testing.T) {
	svc, students, _, _ := newRosterServiceForTest(25, 60*time.Millisecond)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		firstView *RosterView
		firstErr  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstView, firstErr = svc.Search(ctx, "sess-1", models.RosterCollectionStudents, "Estu", "nombre")
	}()
	time.Sleep(15 * time.Millisecond)

	lastView, err := svc.Search(ctx, "sess-1", models.RosterCollectionStudents, "Estudiante 1", "nombre")
	wg.Wait()

	require.NoError(t, firstErr)
	assert.Nil(t, firstView)
	require.NoError(t, err)
	require.NotNil(t, lastView)
	assert.Equal(t, "Estudiante 1", lastView.Query)
	assert.Equal(t, 1, students.scanCalls)
}

func TestRosterEnrollmentsWithoutActivePeriod(t *testing.T) {
	svc, _, _, periods := newRosterServiceForTest(25, time.Millisecond)
	periods.period = nil

	view, err := svc.LoadPage(context.Background(), "sess-1", models.RosterCollectionEnrollments, 1, false)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.False(t, view.HasMore)
	assert.Equal(t, 0, view.TotalPages)
}

func TestRosterResetDropsSessionState(t *testing.T) {
	svc, students, _, _ := newRosterServiceForTest(25, time.Millisecond)
	ctx := context.Background()

	_, err := svc.LoadPage(ctx, "sess-1", models.RosterCollectionStudents, 2, false)
	require.NoError(t, err)
	walked := students.pageCalls

	svc.Reset("sess-1", models.RosterCollectionStudents)

	// A fresh browser replays from page 1 to reach page 2 again.
	view, err := svc.LoadPage(ctx, "sess-1", models.RosterCollectionStudents, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Page)
	assert.Equal(t, walked+2, students.pageCalls)
}
