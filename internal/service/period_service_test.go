package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/colegio-adp-api/internal/models"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
	"github.com/noah-isme/colegio-adp-api/pkg/mailer"
)

type fakePeriodRepo struct {
	periods       map[string]*models.Period
	lapses        map[string]*models.Lapse
	activeLapseID string
	createBlocked bool
	retiredCount  int
	cascadeCalls  int
}

func newFakePeriodRepo() *fakePeriodRepo {
	return &fakePeriodRepo{
		periods: make(map[string]*models.Period),
		lapses:  make(map[string]*models.Lapse),
	}
}

func (r *fakePeriodRepo) List(_ context.Context) ([]models.Period, error) {
	out := make([]models.Period, 0, len(r.periods))
	for _, p := range r.periods {
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePeriodRepo) FindByID(_ context.Context, id string) (*models.Period, error) {
	p, ok := r.periods[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (r *fakePeriodRepo) FindActive(_ context.Context) (*models.Period, error) {
	for _, p := range r.periods {
		if p.Status == models.PeriodStatusActivo {
			copied := *p
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakePeriodRepo) ExistsByLabel(_ context.Context, label string) (bool, error) {
	for _, p := range r.periods {
		if p.Label == label {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePeriodRepo) Create(_ context.Context, period *models.Period) (bool, error) {
	if r.createBlocked {
		return false, nil
	}
	if period.ID == "" {
		period.ID = "p-" + period.Label
	}
	period.Status = models.PeriodStatusActivo
	copied := *period
	r.periods[period.ID] = &copied
	return true, nil
}

func (r *fakePeriodRepo) DeactivateWithCascade(_ context.Context, id string, _ time.Time) (int, error) {
	p, ok := r.periods[id]
	if !ok || p.Status != models.PeriodStatusActivo {
		return 0, sql.ErrNoRows
	}
	p.Status = models.PeriodStatusInactivo
	r.cascadeCalls++
	return r.retiredCount, nil
}

func (r *fakePeriodRepo) ListLapses(_ context.Context, periodID string) ([]models.Lapse, error) {
	var out []models.Lapse
	for _, l := range r.lapses {
		if l.PeriodID == periodID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakePeriodRepo) FindLapseByID(_ context.Context, id string) (*models.Lapse, error) {
	l, ok := r.lapses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *l
	return &copied, nil
}

func (r *fakePeriodRepo) CreateLapse(_ context.Context, lapse *models.Lapse) error {
	if lapse.ID == "" {
		lapse.ID = "l-" + lapse.Label
	}
	copied := *lapse
	r.lapses[lapse.ID] = &copied
	return nil
}

func (r *fakePeriodRepo) SetLapseStatus(_ context.Context, id string, status models.LapseStatus) (bool, error) {
	if status == models.LapseStatusActivo && r.activeLapseID != "" && r.activeLapseID != id {
		return false, nil
	}
	l, ok := r.lapses[id]
	if !ok {
		return false, nil
	}
	l.Status = status
	if status == models.LapseStatusActivo {
		r.activeLapseID = id
	} else if r.activeLapseID == id {
		r.activeLapseID = ""
	}
	return true, nil
}

type memCodeStore struct {
	entries map[string]models.VerificationCode
	putErr  error
}

func newMemCodeStore() *memCodeStore {
	return &memCodeStore{entries: make(map[string]models.VerificationCode)}
}

func (s *memCodeStore) Put(_ context.Context, email string, code models.VerificationCode, _ time.Duration) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.entries[email] = code
	return nil
}

func (s *memCodeStore) Get(_ context.Context, email string) (*models.VerificationCode, error) {
	code, ok := s.entries[email]
	if !ok {
		return nil, appErrors.ErrCodeNotFound
	}
	return &code, nil
}

func (s *memCodeStore) Delete(_ context.Context, email string) error {
	delete(s.entries, email)
	return nil
}

type fakeMailer struct {
	sent     []mailer.Message
	failNext bool
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if m.failNext {
		m.failNext = false
		return errors.New("smtp unreachable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newPeriodServiceForTest() (*PeriodService, *fakePeriodRepo, *memCodeStore, *fakeMailer) {
	repo := newFakePeriodRepo()
	store := newMemCodeStore()
	mail := &fakeMailer{}
	svc := NewPeriodService(repo, store, mail, nil, nil, 5*time.Minute)
	return svc, repo, store, mail
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

const adminEmail = "directora@colegio.edu.ve"

var admin = models.UserInfo{ID: "u1", Email: adminEmail, FullName: "Directora", Role: models.RoleAdmin}

func TestPeriodServiceCreate(t *testing.T) {
	svc, _, _, _ := newPeriodServiceForTest()

	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusActivo, period.Status)
	assert.Equal(t, "2024-2025", period.Label)
}

func TestPeriodServiceCreateRejectsBadLabels(t *testing.T) {
	svc, _, _, _ := newPeriodServiceForTest()

	for _, label := range []string{"2024", "24-25", "2024/2025", "2024-2026", "2025-2024"} {
		_, err := svc.Create(context.Background(), CreatePeriodRequest{Label: label})
		assert.Equal(t, appErrors.ErrValidation.Code, appCode(t, err), "label=%s", label)
	}
}

func TestPeriodServiceCreateBlockedByActivePeriod(t *testing.T) {
	svc, repo, _, _ := newPeriodServiceForTest()
	repo.createBlocked = true

	_, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	assert.Equal(t, appErrors.ErrActivePeriodExists.Code, appCode(t, err))
}

func TestRequestDeactivationCodeStoresAndSends(t *testing.T) {
	svc, _, store, mail := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)

	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.RequestDeactivationCode(context.Background(), period.ID, admin))

	entry, ok := store.entries[adminEmail]
	require.True(t, ok)
	assert.Regexp(t, `^\d{6}$`, entry.Code)
	assert.Equal(t, now.Add(5*time.Minute), entry.ExpiresAt)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, adminEmail, mail.sent[0].ToAddress)
	assert.Contains(t, mail.sent[0].TextBody, entry.Code)
}

func TestRequestDeactivationCodeOverwritesPrevious(t *testing.T) {
	svc, _, store, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)

	store.entries[adminEmail] = models.VerificationCode{Code: "111111", ExpiresAt: time.Now().Add(time.Minute)}

	require.NoError(t, svc.RequestDeactivationCode(context.Background(), period.ID, admin))
	assert.NotEqual(t, "111111", store.entries[adminEmail].Code)
}

func TestRequestDeactivationCodeMailFailureKeepsEntry(t *testing.T) {
	svc, _, store, mail := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)
	mail.failNext = true

	err = svc.RequestDeactivationCode(context.Background(), period.ID, admin)
	assert.Equal(t, appErrors.ErrMailDelivery.Code, appCode(t, err))

	// The code stays usable: the message may have left the relay even
	// though the API reported a failure.
	_, ok := store.entries[adminEmail]
	assert.True(t, ok)
}

func TestRequestDeactivationCodeInactivePeriod(t *testing.T) {
	svc, repo, _, _ := newPeriodServiceForTest()
	repo.periods["p1"] = &models.Period{ID: "p1", Label: "2023-2024", Status: models.PeriodStatusInactivo}

	err := svc.RequestDeactivationCode(context.Background(), "p1", admin)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appCode(t, err))
}

func TestConfirmDeactivationHappyPath(t *testing.T) {
	svc, repo, store, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)
	repo.retiredCount = 34

	store.entries[adminEmail] = models.VerificationCode{Code: "123456", ExpiresAt: time.Now().Add(time.Minute)}

	result, err := svc.ConfirmDeactivation(context.Background(), period.ID, admin, ConfirmDeactivationRequest{Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusInactivo, result.Period.Status)
	assert.Equal(t, 34, result.RetiredCount)
	assert.Equal(t, 1, repo.cascadeCalls)

	// Single use: the consumed code is gone.
	_, ok := store.entries[adminEmail]
	assert.False(t, ok)
}

func TestConfirmDeactivationMismatchKeepsCode(t *testing.T) {
	svc, repo, store, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)

	store.entries[adminEmail] = models.VerificationCode{Code: "123456", ExpiresAt: time.Now().Add(time.Minute)}

	_, err = svc.ConfirmDeactivation(context.Background(), period.ID, admin, ConfirmDeactivationRequest{Code: "654321"})
	assert.Equal(t, appErrors.ErrCodeMismatch.Code, appCode(t, err))
	assert.Equal(t, 0, repo.cascadeCalls)

	// The entry survives so the right code still works before expiry.
	result, err := svc.ConfirmDeactivation(context.Background(), period.ID, admin, ConfirmDeactivationRequest{Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusInactivo, result.Period.Status)
	_, ok := store.entries[adminEmail]
	assert.False(t, ok)
}

func TestConfirmDeactivationExpiredDiscardsCode(t *testing.T) {
	svc, _, store, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)

	issued := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	store.entries[adminEmail] = models.VerificationCode{Code: "123456", ExpiresAt: issued.Add(5 * time.Minute)}
	svc.now = func() time.Time { return issued.Add(5*time.Minute + time.Second) }

	_, err = svc.ConfirmDeactivation(context.Background(), period.ID, admin, ConfirmDeactivationRequest{Code: "123456"})
	assert.Equal(t, appErrors.ErrCodeExpired.Code, appCode(t, err))

	// The expired entry was discarded on discovery.
	_, err = svc.ConfirmDeactivation(context.Background(), period.ID, admin, ConfirmDeactivationRequest{Code: "123456"})
	assert.Equal(t, appErrors.ErrCodeNotFound.Code, appCode(t, err))
}

func TestConfirmDeactivationWithoutRequest(t *testing.T) {
	svc, _, _, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)

	_, err = svc.ConfirmDeactivation(context.Background(), period.ID, admin, ConfirmDeactivationRequest{Code: "123456"})
	assert.Equal(t, appErrors.ErrCodeNotFound.Code, appCode(t, err))
}

func TestConfirmDeactivationRejectsMalformedCodes(t *testing.T) {
	svc, _, store, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)
	store.entries[adminEmail] = models.VerificationCode{Code: "123456", ExpiresAt: time.Now().Add(time.Minute)}

	for _, code := range []string{"12345", "1234567", "12a456", "      "} {
		_, err := svc.ConfirmDeactivation(context.Background(), period.ID, admin, ConfirmDeactivationRequest{Code: code})
		assert.Equal(t, appErrors.ErrValidation.Code, appCode(t, err), "code=%q", code)
	}
}

func TestCreateLapseAndActivate(t *testing.T) {
	svc, _, _, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)

	first, err := svc.CreateLapse(context.Background(), period.ID, CreateLapseRequest{Label: "1er Lapso", Status: models.LapseStatusActivo})
	require.NoError(t, err)
	assert.Equal(t, models.LapseStatusActivo, first.Status)

	// A second ACTIVO lapse is rejected while the first holds the slot.
	_, err = svc.CreateLapse(context.Background(), period.ID, CreateLapseRequest{Label: "2do Lapso", Status: models.LapseStatusActivo})
	assert.Equal(t, appErrors.ErrActiveLapseExists.Code, appCode(t, err))
}

func TestCreateLapseHonorsRequestedStatus(t *testing.T) {
	svc, repo, _, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)

	lapse, err := svc.CreateLapse(context.Background(), period.ID, CreateLapseRequest{Label: "3er Lapso", Status: models.LapseStatusCerrado})
	require.NoError(t, err)
	assert.Equal(t, models.LapseStatusCerrado, lapse.Status)
	assert.Equal(t, models.LapseStatusCerrado, repo.lapses[lapse.ID].Status)

	// Omitted status still defaults to BLOQUEADO.
	lapse, err = svc.CreateLapse(context.Background(), period.ID, CreateLapseRequest{Label: "2do Lapso"})
	require.NoError(t, err)
	assert.Equal(t, models.LapseStatusBloqueado, lapse.Status)
}

func TestSetLapseStatusReleasesActiveSlot(t *testing.T) {
	svc, _, _, _ := newPeriodServiceForTest()
	period, err := svc.Create(context.Background(), CreatePeriodRequest{Label: "2024-2025"})
	require.NoError(t, err)

	first, err := svc.CreateLapse(context.Background(), period.ID, CreateLapseRequest{Label: "1er Lapso", Status: models.LapseStatusActivo})
	require.NoError(t, err)
	second, err := svc.CreateLapse(context.Background(), period.ID, CreateLapseRequest{Label: "2do Lapso"})
	require.NoError(t, err)

	_, err = svc.SetLapseStatus(context.Background(), second.ID, SetLapseStatusRequest{Status: models.LapseStatusActivo})
	assert.Equal(t, appErrors.ErrActiveLapseExists.Code, appCode(t, err))

	_, err = svc.SetLapseStatus(context.Background(), first.ID, SetLapseStatusRequest{Status: models.LapseStatusCerrado})
	require.NoError(t, err)

	updated, err := svc.SetLapseStatus(context.Background(), second.ID, SetLapseStatusRequest{Status: models.LapseStatusActivo})
	require.NoError(t, err)
	assert.Equal(t, models.LapseStatusActivo, updated.Status)
}
