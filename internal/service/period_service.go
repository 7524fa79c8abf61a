package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/colegio-adp-api/internal/models"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
	"github.com/noah-isme/colegio-adp-api/pkg/mailer"
)

type periodRepository interface {
	List(ctx context.Context) ([]models.Period, error)
	FindByID(ctx context.Context, id string) (*models.Period, error)
	FindActive(ctx context.Context) (*models.Period, error)
	ExistsByLabel(ctx context.Context, label string) (bool, error)
	Create(ctx context.Context, period *models.Period) (bool, error)
	DeactivateWithCascade(ctx context.Context, id string, now time.Time) (int, error)
	ListLapses(ctx context.Context, periodID string) ([]models.Lapse, error)
	FindLapseByID(ctx context.Context, id string) (*models.Lapse, error)
	CreateLapse(ctx context.Context, lapse *models.Lapse) error
	SetLapseStatus(ctx context.Context, id string, status models.LapseStatus) (bool, error)
}

type verificationCodeStore interface {
	Put(ctx context.Context, email string, code models.VerificationCode, ttl time.Duration) error
	Get(ctx context.Context, email string) (*models.VerificationCode, error)
	Delete(ctx context.Context, email string) error
}

var (
	periodLabelPattern = regexp.MustCompile(`^\d{4}-\d{4}$`)
	codePattern        = regexp.MustCompile(`^\d{6}$`)
)

// CreatePeriodRequest describes payload for opening a new school period.
type CreatePeriodRequest struct {
	Label string `json:"label" validate:"required"`
}

// CreateLapseRequest adds a lapse under a period.
type CreateLapseRequest struct {
	Label  string             `json:"label" validate:"required"`
	Status models.LapseStatus `json:"status"`
}

// SetLapseStatusRequest changes a lapse lifecycle state.
type SetLapseStatusRequest struct {
	Status models.LapseStatus `json:"status" validate:"required"`
}

// ConfirmDeactivationRequest carries the emailed one-time code.
type ConfirmDeactivationRequest struct {
	Code string `json:"code" validate:"required"`
}

// DeactivationResult reports the outcome of a confirmed deactivation.
type DeactivationResult struct {
	Period       *models.Period `json:"period"`
	RetiredCount int            `json:"retired_count"`
}

/// PeriodService orchestrates the period lifecycle: creation, the emailed
// verification-code gate on deactivation, and lapse management.
type PeriodService struct {
	repo      periodRepository
	codes     verificationCodeStore
	mail      mailer.Mailer
	validator *validator.Validate
	logger    *zap.Logger
	codeTTL   time.Duration
	now       func() time.Time
}

// NewPeriodService constructs a PeriodService.
func NewPeriodService(repo periodRepository, codes verificationCodeStore, mail mailer.Mailer, validate *validator.Validate, logger *zap.Logger, codeTTL time.Duration) *PeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	return &PeriodService{
		repo:      repo,
		codes:     codes,
		mail:      mail,
		validator: validate,
		logger:    logger,
		codeTTL:   codeTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns all periods.
func (s *PeriodService) List(ctx context.Context) ([]models.Period, error) {
	periods, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
	}
	return periods, nil
}

// Get returns a period by ID.
func (s *PeriodService) Get(ctx context.Context, id string) (*models.Period, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	return period, nil
}

// GetActive returns the ACTIVO period.
func (s *PeriodService) GetActive(ctx context.Context) (*models.Period, error) {
	period, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active period")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active period")
	}
	return period, nil
}

// Create opens a new ACTIVO period. The label must name two consecutive
// years ("2024-2025") and no other period may be ACTIVO.
func (s *PeriodService) Create(ctx context.Context, req CreatePeriodRequest) (*models.Period, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	if err := validatePeriodLabel(req.Label); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByLabel(ctx, req.Label)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check period label")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a period with this label already exists")
	}

	period := &models.Period{Label: req.Label}
	created, err := s.repo.Create(ctx, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create period")
	}
	if !created {
		return nil, appErrors.Clone(appErrors.ErrActivePeriodExists, "")
	}

	s.logger.Info("period created", zap.String("period_id", period.ID), zap.String("label", period.Label))
	return period, nil
}

// RequestDeactivationCode generates a six-digit one-time code, stores it
// keyed by the requesting administrator's email and sends it out of band.
// A repeated request overwrites the previous code. When delivery fails the
// stored code is kept; the email may still have left the building.
func (s *PeriodService) RequestDeactivationCode(ctx context.Context, periodID string, requester models.UserInfo) error {
	if requester.Email == "" {
		return appErrors.Clone(appErrors.ErrValidation, "requesting session has no email")
	}

	period, err := s.Get(ctx, periodID)
	if err != nil {
		return err
	}
	if period.Status != models.PeriodStatusActivo {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "period is not active")
	}

	code, err := generateVerificationCode()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}

	entry := models.VerificationCode{Code: code, ExpiresAt: s.now().Add(s.codeTTL)}
	if err := s.codes.Put(ctx, requester.Email, entry, s.codeTTL); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification code")
	}

	msg := mailer.Message{
		ToName:    requester.FullName,
		ToAddress: requester.Email,
		Subject:   fmt.Sprintf("Código de verificación para cerrar el período %s", period.Label),
		TextBody: fmt.Sprintf(
			"Su código de verificación es %s. Vence en %d minutos.\n\nAl confirmarlo, el período %s pasará a INACTIVO y todos los estudiantes inscritos serán retirados.",
			code, int(s.codeTTL.Minutes()), period.Label),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Error("verification code delivery failed",
			zap.String("period_id", period.ID),
			zap.String("email", requester.Email),
			zap.Error(err))
		return appErrors.Clone(appErrors.ErrMailDelivery, "")
	}

	s.logger.Info("deactivation code sent",
		zap.String("period_id", period.ID),
		zap.String("email", requester.Email))
	return nil
}

// ConfirmDeactivation verifies the submitted code against the stored entry
// and, on a match, flips the period to INACTIVO and retires every INSCRITO
// enrollment. The code is single use: a match consumes it, and an expired
// entry is discarded on discovery. A mismatch leaves the entry in place so
// the administrator can retry until expiry.
func (s *PeriodService) ConfirmDeactivation(ctx context.Context, periodID string, requester models.UserInfo, req ConfirmDeactivationRequest) (*DeactivationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid confirmation payload")
	}
	if !codePattern.MatchString(req.Code) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "code must be exactly six digits")
	}
	if requester.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requesting session has no email")
	}

	entry, err := s.codes.Get(ctx, requester.Email)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrCodeNotFound.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification code")
	}

	if entry.Expired(s.now()) {
		if err := s.codes.Delete(ctx, requester.Email); err != nil {
			s.logger.Warn("failed to discard expired verification code", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrCodeExpired, "")
	}

	if entry.Code != req.Code {
		return nil, appErrors.Clone(appErrors.ErrCodeMismatch, "")
	}

	if err := s.codes.Delete(ctx, requester.Email); err != nil {
		s.logger.Warn("failed to consume verification code", zap.Error(err))
	}

	now := s.now()
	retired, err := s.repo.DeactivateWithCascade(ctx, periodID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "period is not active")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate period")
	}

	period, err := s.Get(ctx, periodID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("period deactivated",
		zap.String("period_id", periodID),
		zap.Int("retired_count", retired))
	return &DeactivationResult{Period: period, RetiredCount: retired}, nil
}

// ListLapses returns the lapses of a period.
func (s *PeriodService) ListLapses(ctx context.Context, periodID string) ([]models.Lapse, error) {
	if _, err := s.Get(ctx, periodID); err != nil {
		return nil, err
	}
	lapses, err := s.repo.ListLapses(ctx, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lapses")
	}
	return lapses, nil
}

// CreateLapse adds a lapse under an ACTIVO period.
func (s *PeriodService) CreateLapse(ctx context.Context, periodID string, req CreateLapseRequest) (*models.Lapse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lapse payload")
	}
	status := req.Status
	if status == "" {
		status = models.LapseStatusBloqueado
	}
	if !models.ValidLapseStatus(status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lapse status")
	}

	period, err := s.Get(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status != models.PeriodStatusActivo {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot add lapses to an inactive period")
	}

	// ACTIVO goes through the guarded promotion below; everything else is
	// stored as requested.
	insertStatus := status
	if insertStatus == models.LapseStatusActivo {
		insertStatus = models.LapseStatusBloqueado
	}
	lapse := &models.Lapse{Label: req.Label, PeriodID: periodID, Status: insertStatus}
	if err := s.repo.CreateLapse(ctx, lapse); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lapse")
	}

	if status == models.LapseStatusActivo {
		updated, err := s.repo.SetLapseStatus(ctx, lapse.ID, models.LapseStatusActivo)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate lapse")
		}
		if !updated {
			return nil, appErrors.Clone(appErrors.ErrActiveLapseExists, "")
		}
		lapse.Status = models.LapseStatusActivo
	}
	return lapse, nil
}

// SetLapseStatus moves a lapse to the requested state. Promoting to ACTIVO
// is rejected while another lapse is ACTIVO.
func (s *PeriodService) SetLapseStatus(ctx context.Context, lapseID string, req SetLapseStatusRequest) (*models.Lapse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lapse status payload")
	}
	if !models.ValidLapseStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lapse status")
	}

	lapse, err := s.repo.FindLapseByID(ctx, lapseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lapse not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lapse")
	}

	updated, err := s.repo.SetLapseStatus(ctx, lapse.ID, req.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lapse status")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrActiveLapseExists, "")
	}

	lapse.Status = req.Status
	return lapse, nil
}

func validatePeriodLabel(label string) error {
	if !periodLabelPattern.MatchString(label) {
		return appErrors.Clone(appErrors.ErrValidation, "label must look like 2024-2025")
	}
	first, _ := strconv.Atoi(label[:4])
	second, _ := strconv.Atoi(label[5:])
	if second != first+1 {
		return appErrors.Clone(appErrors.ErrValidation, "label years must be consecutive")
	}
	return nil
}

func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(100000+n.Int64(), 10), nil
}
