package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/colegio-adp-api/internal/models"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Upsert(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
}

type gradeLapseFinder interface {
	FindLapseByID(ctx context.Context, id string) (*models.Lapse, error)
}

// RecordGradeRequest records or replaces a score on the 0-20 scale.
type RecordGradeRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	SectionID string  `json:"section_id" validate:"required"`
	LapseID   string  `json:"lapse_id" validate:"required"`
	Subject   string  `json:"subject" validate:"required"`
	Score     float64 `json:"score" validate:"min=0,max=20"`
}

// GradeService manages score recording, gated on the lapse being ACTIVO.
type GradeService struct {
	repo      gradeRepository
	lapses    gradeLapseFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService creates a new grade service instance.
func NewGradeService(repo gradeRepository, lapses gradeLapseFinder, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, lapses: lapses, validator: validate, logger: logger}
}

// List returns paginated grade details.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, *models.Pagination, error) {
	grades, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return grades, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Record stores a score for a student, subject and lapse. Writing is only
// allowed while the lapse is ACTIVO.
func (s *GradeService) Record(ctx context.Context, req RecordGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	lapse, err := s.lapses.FindLapseByID(ctx, req.LapseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lapse not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lapse")
	}
	if lapse.Status != models.LapseStatusActivo {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "grades can only be recorded in the active lapse")
	}

	grade := &models.Grade{
		StudentID: req.StudentID,
		SectionID: req.SectionID,
		LapseID:   req.LapseID,
		Subject:   req.Subject,
		Score:     req.Score,
	}
	if err := s.repo.Upsert(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	return grade, nil
}

// Delete removes a grade while its lapse is still ACTIVO.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}

	lapse, err := s.lapses.FindLapseByID(ctx, grade.LapseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lapse")
	}
	if lapse != nil && lapse.Status != models.LapseStatusActivo {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "grades can only be removed in the active lapse")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	return nil
}
