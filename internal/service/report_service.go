package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/colegio-adp-api/internal/models"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
	"github.com/noah-isme/colegio-adp-api/pkg/export"
	"github.com/noah-isme/colegio-adp-api/pkg/jobs"
	"github.com/noah-isme/colegio-adp-api/pkg/storage"
)

type reportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	SetStatus(ctx context.Context, id string, status models.ReportJobStatus, filePath, errorMsg string) error
	ListByRequester(ctx context.Context, userID string, limit int) ([]models.ReportJob, error)
}

type reportRosterSource interface {
	RosterAll(ctx context.Context) ([]models.RosterEntry, error)
}

type reportGradeSource interface {
	ListBySectionLapse(ctx context.Context, sectionID, lapseID string) ([]models.GradeDetail, error)
}

// RequestReportRequest asks for an asynchronous export.
type RequestReportRequest struct {
	Type      string  `json:"type" validate:"required"`
	Format    string  `json:"format" validate:"required"`
	SectionID *string `json:"section_id"`
	LapseID   *string `json:"lapse_id"`
}

// ReportStatusResponse is a job row plus, once DONE, a signed download token.
type ReportStatusResponse struct {
	Job           *models.ReportJob `json:"job"`
	DownloadToken string            `json:"download_token,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
}

type reportPayload struct {
	jobID     string
	kind      string
	format    string
	sectionID string
	lapseID   string
}

// ReportService generates roster and grade exports on a background worker
// pool and hands out signed download tokens for finished files.
type ReportService struct {
	repo      reportJobRepository
	roster    reportRosterSource
	grades    reportGradeSource
	periods   activePeriodFinder
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	files     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	queue     *jobs.Queue
}

// ReportQueueConfig tunes the background worker pool.
type ReportQueueConfig struct {
	Workers    int
	MaxRetries int
}

// NewReportService constructs a ReportService with its own job queue.
func NewReportService(repo reportJobRepository, roster reportRosterSource, grades reportGradeSource, periods activePeriodFinder, files *storage.LocalStorage, signer *storage.SignedURLSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ReportQueueConfig) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		repo:      repo,
		roster:    roster,
		grades:    grades,
		periods:   periods,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		files:     files,
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("reports", s.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Request persists a PENDING job and enqueues its generation.
func (s *ReportService) Request(ctx context.Context, requestedBy string, req RequestReportRequest) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if req.Type != models.ReportTypeRoster && req.Type != models.ReportTypeGrades {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report type")
	}
	if req.Format != models.ReportFormatPDF && req.Format != models.ReportFormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report format")
	}
	if req.Type == models.ReportTypeGrades && (req.SectionID == nil || req.LapseID == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade reports need section_id and lapse_id")
	}

	job := &models.ReportJob{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Format:      req.Format,
		SectionID:   req.SectionID,
		RequestedBy: requestedBy,
		Status:      models.ReportJobPending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	payload := reportPayload{jobID: job.ID, kind: req.Type, format: req.Format}
	if req.SectionID != nil {
		payload.sectionID = *req.SectionID
	}
	if req.LapseID != nil {
		payload.lapseID = *req.LapseID
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: req.Type, Payload: payload}); err != nil {
		if uerr := s.repo.SetStatus(ctx, job.ID, models.ReportJobFailed, "", "queue unavailable"); uerr != nil {
			s.logger.Error("failed to mark unqueued report job", zap.String("job_id", job.ID), zap.Error(uerr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return job, nil
}

// Status returns a job and, when finished, a signed download token.
func (s *ReportService) Status(ctx context.Context, jobID string) (*ReportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}

	resp := &ReportStatusResponse{Job: job}
	if job.Status == models.ReportJobDone && job.FilePath != "" {
		token, expiresAt, err := s.signer.Generate(job.ID, job.FilePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
		}
		resp.DownloadToken = token
		resp.ExpiresAt = &expiresAt
	}
	return resp, nil
}

// List returns the requester's recent jobs.
func (s *ReportService) List(ctx context.Context, userID string) ([]models.ReportJob, error) {
	reportJobs, err := s.repo.ListByRequester(ctx, userID, 20)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	return reportJobs, nil
}

// Download validates a signed token and opens the underlying file.
func (s *ReportService) Download(ctx context.Context, token string) (*os.File, *models.ReportJob, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportJobDone || job.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report file is not available")
	}

	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	return file, job, nil
}

func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reportPayload)
	if !ok {
		s.logger.Error("report job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	if err := s.repo.SetStatus(ctx, payload.jobID, models.ReportJobRunning, "", ""); err != nil {
		return err
	}

	data, title, err := s.buildDataset(ctx, payload)
	if err != nil {
		return s.fail(ctx, payload.jobID, err)
	}

	subtitle := ""
	if period, err := s.periods.FindActive(ctx); err == nil {
		subtitle = "Período " + period.Label
	}

	var rendered []byte
	switch payload.format {
	case models.ReportFormatCSV:
		rendered, err = s.csv.Render(data)
	default:
		rendered, err = s.pdf.Render(data, title, subtitle)
	}
	if err != nil {
		return s.fail(ctx, payload.jobID, err)
	}

	filename := fmt.Sprintf("reports/%s.%s", payload.jobID, payload.format)
	if _, err := s.files.Save(filename, rendered); err != nil {
		return s.fail(ctx, payload.jobID, err)
	}

	if err := s.repo.SetStatus(ctx, payload.jobID, models.ReportJobDone, filename, ""); err != nil {
		return err
	}
	s.metrics.RecordReportJob(string(models.ReportJobDone))
	s.logger.Info("report generated", zap.String("job_id", payload.jobID), zap.String("file", filename))
	return nil
}

func (s *ReportService) fail(ctx context.Context, jobID string, cause error) error {
	if err := s.repo.SetStatus(ctx, jobID, models.ReportJobFailed, "", cause.Error()); err != nil {
		s.logger.Error("failed to mark report job as failed", zap.String("job_id", jobID), zap.Error(err))
	}
	s.metrics.RecordReportJob(string(models.ReportJobFailed))
	return cause
}

func (s *ReportService) buildDataset(ctx context.Context, payload reportPayload) (export.Dataset, string, error) {
	switch payload.kind {
	case models.ReportTypeGrades:
		grades, err := s.grades.ListBySectionLapse(ctx, payload.sectionID, payload.lapseID)
		if err != nil {
			return export.Dataset{}, "", err
		}
		data := export.Dataset{Headers: []string{"Cédula", "Estudiante", "Materia", "Nota", "Lapso"}}
		for _, g := range grades {
			data.Rows = append(data.Rows, map[string]string{
				"Cédula":     g.StudentCedula,
				"Estudiante": g.StudentName,
				"Materia":    g.Subject,
				"Nota":       fmt.Sprintf("%.2f", g.Score),
				"Lapso":      g.LapseLabel,
			})
		}
		return data, "Acta de Calificaciones", nil
	default:
		entries, err := s.roster.RosterAll(ctx)
		if err != nil {
			return export.Dataset{}, "", err
		}
		data := export.Dataset{Headers: []string{"Cédula", "Nombre", "Estado"}}
		for _, e := range entries {
			data.Rows = append(data.Rows, map[string]string{
				"Cédula": e.Fields["cedula"],
				"Nombre": e.Fields["nombre"],
				"Estado": e.Fields["estado"],
			})
		}
		return data, "Nómina de Estudiantes", nil
	}
}
