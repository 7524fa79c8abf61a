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

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.SectionDetail, error)
	Exists(ctx context.Context, gradeLabel, letter string, shift models.SectionShift, excludeID string) (bool, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
	Delete(ctx context.Context, id string) error
	CountStudents(ctx context.Context, id string) (int, error)
}

type sectionTeacherFinder interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CreateSectionRequest describes payload for creating a section.
type CreateSectionRequest struct {
	GradeLabel string              `json:"grade_label" validate:"required"`
	Letter     string              `json:"letter" validate:"required,len=1,alpha"`
	Shift      models.SectionShift `json:"shift" validate:"required"`
	TeacherID  *string             `json:"teacher_id"`
	Capacity   int                 `json:"capacity" validate:"required,gt=0"`
}

// UpdateSectionRequest updates mutable fields on a section.
type UpdateSectionRequest struct {
	GradeLabel string              `json:"grade_label" validate:"required"`
	Letter     string              `json:"letter" validate:"required,len=1,alpha"`
	Shift      models.SectionShift `json:"shift" validate:"required"`
	TeacherID  *string             `json:"teacher_id"`
	Capacity   int                 `json:"capacity" validate:"required,gt=0"`
}

// SectionService orchestrates section workflows.
type SectionService struct {
	repo      sectionRepository
	teachers  sectionTeacherFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService creates a new section service instance.
func NewSectionService(repo sectionRepository, teachers sectionTeacherFinder, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, teachers: teachers, validator: validate, logger: logger}
}

// List returns paginated sections.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a section by ID.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// Create adds a new section, unique per grade, letter and shift.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if req.Shift != models.ShiftManana && req.Shift != models.ShiftTarde {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown shift")
	}

	exists, err := s.repo.Exists(ctx, req.GradeLabel, req.Letter, req.Shift, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "section already exists for grade, letter and shift")
	}

	if req.TeacherID != nil {
		if err := s.checkTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
	}

	section := &models.Section{
		GradeLabel: req.GradeLabel,
		Letter:     req.Letter,
		Shift:      req.Shift,
		TeacherID:  req.TeacherID,
		Capacity:   req.Capacity,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	return section, nil
}

// Update modifies a section record.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if req.Shift != models.ShiftManana && req.Shift != models.ShiftTarde {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown shift")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.Exists(ctx, req.GradeLabel, req.Letter, req.Shift, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "section already exists for grade, letter and shift")
	}

	if req.TeacherID != nil {
		if err := s.checkTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
	}

	section := detail.Section
	section.GradeLabel = req.GradeLabel
	section.Letter = req.Letter
	section.Shift = req.Shift
	section.TeacherID = req.TeacherID
	section.Capacity = req.Capacity

	if err := s.repo.Update(ctx, &section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}
	return &section, nil
}

// Delete removes an empty section.
func (s *SectionService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.CountStudents(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section students")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "section still has students placed in it")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete section")
	}
	return nil
}

func (s *SectionService) checkTeacher(ctx context.Context, teacherID string) error {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "assigned teacher does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "assigned teacher is inactive")
	}
	return nil
}
