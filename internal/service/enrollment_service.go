package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/colegio-adp-api/internal/models"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindActiveByStudent(ctx context.Context, studentID, periodID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Retire(ctx context.Context, id string, retiredAt time.Time) error
	CountBySection(ctx context.Context, sectionID, periodID string) (int, error)
}

type enrollmentStudentRepo interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	Update(ctx context.Context, student *models.Student) error
	Retire(ctx context.Context, id string) error
}

type enrollmentSectionRepo interface {
	FindByID(ctx context.Context, id string) (*models.SectionDetail, error)
}

// EnrollRequest places a student in a section for the ACTIVO period.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// EnrollmentService registers students into sections within the ACTIVO
// period and handles individual withdrawals.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  enrollmentStudentRepo
	sections  enrollmentSectionRepo
	periods   activePeriodFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService creates a new enrollment service instance.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentRepo, sections enrollmentSectionRepo, periods activePeriodFinder, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, sections: sections, periods: periods, validator: validate, logger: logger}
}

// List returns paginated enrollment details.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an enrollment by ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Enroll places a student in a section under the ACTIVO period. The
// student must not hold another INSCRITO enrollment in it, and the section
// must have room.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	period, err := s.periods.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active period to enroll into")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active period")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	if _, err := s.repo.FindActiveByStudent(ctx, req.StudentID, period.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this period")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}

	count, err := s.repo.CountBySection(ctx, req.SectionID, period.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section occupancy")
	}
	if section.Capacity > 0 && count >= section.Capacity {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "section is at capacity")
	}

	enrollment := &models.Enrollment{
		StudentID: req.StudentID,
		SectionID: req.SectionID,
		PeriodID:  period.ID,
		Status:    models.EnrollmentStatusInscrito,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	updated := student.Student
	updated.Estado = models.StudentStatusInscrito
	updated.SectionID = &req.SectionID
	if err := s.students.Update(ctx, &updated); err != nil {
		s.logger.Warn("failed to stamp section on student record",
			zap.String("student_id", req.StudentID), zap.Error(err))
	}

	return enrollment, nil
}

// Withdraw retires a single enrollment and its student.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.EnrollmentStatusInscrito {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is already retired")
	}

	now := time.Now().UTC()
	if err := s.repo.Retire(ctx, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is already retired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire enrollment")
	}

	if err := s.students.Retire(ctx, detail.StudentID); err != nil {
		s.logger.Warn("failed to retire student after withdrawal",
			zap.String("student_id", detail.StudentID), zap.Error(err))
	}

	detail.Status = models.EnrollmentStatusRetirado
	detail.RetiredAt = &now
	return detail, nil
}
