package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/colegio-adp-api/internal/middleware"
	"github.com/noah-isme/colegio-adp-api/internal/models"
	"github.com/noah-isme/colegio-adp-api/internal/service"
	"github.com/noah-isme/colegio-adp-api/pkg/response"
)

type rosterRepoMock struct {
	entries []models.RosterEntry
}

func newRosterRepoMock(n int) *rosterRepoMock {
	m := &rosterRepoMock{}
	for i := 1; i <= n; i++ {
		cedula := fmt.Sprintf("%08d", i)
		m.entries = append(m.entries, models.RosterEntry{
			ID:      fmt.Sprintf("id-%03d", i),
			SortKey: cedula,
			Fields:  map[string]string{"cedula": cedula, "nombre": fmt.Sprintf("Estudiante %d", i)},
		})
	}
	return m
}

func (m *rosterRepoMock) RosterPage(_ context.Context, pageSize int, afterKey string) ([]models.RosterEntry, error) {
	var out []models.RosterEntry
	for _, e := range m.entries {
		if e.SortKey > afterKey {
			out = append(out, e)
			if len(out) == pageSize {
				break
			}
		}
	}
	return out, nil
}

func (m *rosterRepoMock) RosterAll(context.Context) ([]models.RosterEntry, error) {
	return m.entries, nil
}

func (m *rosterRepoMock) RosterCount(context.Context) (int, error) {
	return len(m.entries), nil
}

type enrollmentRosterRepoMock struct{}

func (m *enrollmentRosterRepoMock) RosterPage(context.Context, string, int, string) ([]models.RosterEntry, error) {
	return nil, nil
}

func (m *enrollmentRosterRepoMock) RosterAll(context.Context, string) ([]models.RosterEntry, error) {
	return nil, nil
}

func (m *enrollmentRosterRepoMock) RosterCount(context.Context, string) (int, error) {
	return 0, nil
}

type activePeriodMock struct{}

func (m *activePeriodMock) FindActive(context.Context) (*models.Period, error) {
	return nil, sql.ErrNoRows
}

func newRosterHandlerForTest(studentCount int) *RosterHandler {
	svc := service.NewRosterService(
		newRosterRepoMock(studentCount),
		newRosterRepoMock(3),
		&enrollmentRosterRepoMock{},
		&activePeriodMock{},
		nil, 10, time.Millisecond)
	return NewRosterHandler(svc)
}

func TestRosterHandlerPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRosterHandlerForTest(25)

	c, w := newGinContext(http.MethodGet, "/roster/students?page=1", nil)
	c.Params = gin.Params{{Key: "collection", Value: models.RosterCollectionStudents}}
	c.Request.Header.Set("X-Session-ID", "sess-1")
	c.Request.URL.RawQuery = "page=1"

	handler.Page(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	require.EqualValues(t, 1, data["page"])
	require.EqualValues(t, 3, data["total_pages"])
	require.Equal(t, true, data["has_more"])
}

func TestRosterHandlerPageSessionFromClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRosterHandlerForTest(25)

	c, w := newGinContext(http.MethodGet, "/roster/students", nil)
	c.Params = gin.Params{{Key: "collection", Value: models.RosterCollectionStudents}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Page(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRosterHandlerPageWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRosterHandlerForTest(25)

	c, w := newGinContext(http.MethodGet, "/roster/students", nil)
	c.Params = gin.Params{{Key: "collection", Value: models.RosterCollectionStudents}}

	handler.Page(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRosterHandlerPageOutOfRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRosterHandlerForTest(25)

	c, w := newGinContext(http.MethodGet, "/roster/students?page=9", nil)
	c.Params = gin.Params{{Key: "collection", Value: models.RosterCollectionStudents}}
	c.Request.Header.Set("X-Session-ID", "sess-1")
	c.Request.URL.RawQuery = "page=9"

	handler.Page(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRosterHandlerPageUnknownCollection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRosterHandlerForTest(25)

	c, w := newGinContext(http.MethodGet, "/roster/ghosts", nil)
	c.Params = gin.Params{{Key: "collection", Value: "ghosts"}}
	c.Request.Header.Set("X-Session-ID", "sess-1")

	handler.Page(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRosterHandlerSearch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRosterHandlerForTest(25)

	c, w := newGinContext(http.MethodGet, "/roster/students/search", nil)
	c.Params = gin.Params{{Key: "collection", Value: models.RosterCollectionStudents}}
	c.Request.Header.Set("X-Session-ID", "sess-1")
	c.Request.URL.RawQuery = "q=Estudiante+25&field=nombre"

	handler.Search(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, data["searching"])
	items, ok := data["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
}

func TestRosterHandlerReset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRosterHandlerForTest(25)

	c, w := newGinContext(http.MethodDelete, "/roster/students", nil)
	c.Params = gin.Params{{Key: "collection", Value: models.RosterCollectionStudents}}
	c.Request.Header.Set("X-Session-ID", "sess-1")

	handler.Reset(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}
