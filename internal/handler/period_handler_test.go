package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/colegio-adp-api/internal/middleware"
	"github.com/noah-isme/colegio-adp-api/internal/models"
	"github.com/noah-isme/colegio-adp-api/internal/service"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
	"github.com/noah-isme/colegio-adp-api/pkg/mailer"
	"github.com/noah-isme/colegio-adp-api/pkg/response"
)

type periodRepoMock struct {
	period       *models.Period
	retiredCount int
}

func (m *periodRepoMock) List(context.Context) ([]models.Period, error) {
	if m.period == nil {
		return nil, nil
	}
	return []models.Period{*m.period}, nil
}

func (m *periodRepoMock) FindByID(_ context.Context, id string) (*models.Period, error) {
	if m.period == nil || m.period.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *m.period
	return &copied, nil
}

func (m *periodRepoMock) FindActive(context.Context) (*models.Period, error) {
	if m.period == nil || m.period.Status != models.PeriodStatusActivo {
		return nil, sql.ErrNoRows
	}
	copied := *m.period
	return &copied, nil
}

func (m *periodRepoMock) ExistsByLabel(_ context.Context, label string) (bool, error) {
	return m.period != nil && m.period.Label == label, nil
}

func (m *periodRepoMock) Create(_ context.Context, period *models.Period) (bool, error) {
	if m.period != nil && m.period.Status == models.PeriodStatusActivo {
		return false, nil
	}
	period.ID = "p-new"
	period.Status = models.PeriodStatusActivo
	copied := *period
	m.period = &copied
	return true, nil
}

func (m *periodRepoMock) DeactivateWithCascade(_ context.Context, id string, _ time.Time) (int, error) {
	if m.period == nil || m.period.ID != id || m.period.Status != models.PeriodStatusActivo {
		return 0, sql.ErrNoRows
	}
	m.period.Status = models.PeriodStatusInactivo
	return m.retiredCount, nil
}

func (m *periodRepoMock) ListLapses(context.Context, string) ([]models.Lapse, error) {
	return nil, nil
}

func (m *periodRepoMock) FindLapseByID(context.Context, string) (*models.Lapse, error) {
	return nil, sql.ErrNoRows
}

func (m *periodRepoMock) CreateLapse(_ context.Context, lapse *models.Lapse) error {
	lapse.ID = "l-new"
	return nil
}

func (m *periodRepoMock) SetLapseStatus(context.Context, string, models.LapseStatus) (bool, error) {
	return true, nil
}

type codeStoreMock struct {
	entries map[string]models.VerificationCode
}

func newCodeStoreMock() *codeStoreMock {
	return &codeStoreMock{entries: make(map[string]models.VerificationCode)}
}

func (m *codeStoreMock) Put(_ context.Context, email string, code models.VerificationCode, _ time.Duration) error {
	m.entries[email] = code
	return nil
}

func (m *codeStoreMock) Get(_ context.Context, email string) (*models.VerificationCode, error) {
	code, ok := m.entries[email]
	if !ok {
		return nil, appErrors.ErrCodeNotFound
	}
	return &code, nil
}

func (m *codeStoreMock) Delete(_ context.Context, email string) error {
	delete(m.entries, email)
	return nil
}

type mailerMock struct {
	sent []mailer.Message
}

func (m *mailerMock) Send(_ context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:   "u1",
		Email:    "directora@colegio.edu.ve",
		FullName: "Directora",
		Role:     models.RoleAdmin,
	}
}

func newPeriodHandlerForTest(repo *periodRepoMock, codes *codeStoreMock, mail *mailerMock) *PeriodHandler {
	svc := service.NewPeriodService(repo, codes, mail, nil, nil, 5*time.Minute)
	return NewPeriodHandler(svc)
}

func TestPeriodHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newPeriodHandlerForTest(&periodRepoMock{}, newCodeStoreMock(), &mailerMock{})

	payload, _ := json.Marshal(service.CreatePeriodRequest{Label: "2024-2025"})
	c, w := newGinContext(http.MethodPost, "/periods", payload)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestPeriodHandlerCreateBadLabel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newPeriodHandlerForTest(&periodRepoMock{}, newCodeStoreMock(), &mailerMock{})

	payload, _ := json.Marshal(service.CreatePeriodRequest{Label: "2024-2030"})
	c, w := newGinContext(http.MethodPost, "/periods", payload)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPeriodHandlerRequestDeactivationCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &periodRepoMock{period: &models.Period{ID: "p1", Label: "2024-2025", Status: models.PeriodStatusActivo}}
	codes := newCodeStoreMock()
	mail := &mailerMock{}
	handler := newPeriodHandlerForTest(repo, codes, mail)

	c, w := newGinContext(http.MethodPost, "/periods/p1/deactivation-code", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.RequestDeactivationCode(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, mail.sent, 1)
	require.Contains(t, codes.entries, "directora@colegio.edu.ve")
}

func TestPeriodHandlerRequestDeactivationCodeUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newPeriodHandlerForTest(&periodRepoMock{}, newCodeStoreMock(), &mailerMock{})

	c, w := newGinContext(http.MethodPost, "/periods/p1/deactivation-code", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}

	handler.RequestDeactivationCode(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPeriodHandlerDeactivateWrongCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &periodRepoMock{period: &models.Period{ID: "p1", Label: "2024-2025", Status: models.PeriodStatusActivo}}
	codes := newCodeStoreMock()
	codes.entries["directora@colegio.edu.ve"] = models.VerificationCode{Code: "123456", ExpiresAt: time.Now().Add(time.Minute)}
	handler := newPeriodHandlerForTest(repo, codes, &mailerMock{})

	payload, _ := json.Marshal(service.ConfirmDeactivationRequest{Code: "654321"})
	c, w := newGinContext(http.MethodPost, "/periods/p1/deactivate", payload)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Deactivate(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, models.PeriodStatusActivo, repo.period.Status)
}

func TestPeriodHandlerDeactivateConfirmed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &periodRepoMock{
		period:       &models.Period{ID: "p1", Label: "2024-2025", Status: models.PeriodStatusActivo},
		retiredCount: 18,
	}
	codes := newCodeStoreMock()
	codes.entries["directora@colegio.edu.ve"] = models.VerificationCode{Code: "123456", ExpiresAt: time.Now().Add(time.Minute)}
	handler := newPeriodHandlerForTest(repo, codes, &mailerMock{})

	payload, _ := json.Marshal(service.ConfirmDeactivationRequest{Code: "123456"})
	c, w := newGinContext(http.MethodPost, "/periods/p1/deactivate", payload)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Deactivate(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.PeriodStatusInactivo, repo.period.Status)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	require.EqualValues(t, 18, data["retired_count"])
}
