package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/colegio-adp-api/internal/browser"
	"github.com/noah-isme/colegio-adp-api/internal/models"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
)

type studentRosterRepo interface {
	RosterPage(ctx context.Context, pageSize int, afterCedula string) ([]models.RosterEntry, error)
	RosterAll(ctx context.Context) ([]models.RosterEntry, error)
	RosterCount(ctx context.Context) (int, error)
}

type sectionRosterRepo interface {
	RosterPage(ctx context.Context, pageSize int, afterKey string) ([]models.RosterEntry, error)
	RosterAll(ctx context.Context) ([]models.RosterEntry, error)
	RosterCount(ctx context.Context) (int, error)
}

type enrollmentRosterRepo interface {
	RosterPage(ctx context.Context, periodID string, pageSize int, afterCedula string) ([]models.RosterEntry, error)
	RosterAll(ctx context.Context, periodID string) ([]models.RosterEntry, error)
	RosterCount(ctx context.Context, periodID string) (int, error)
}

type activePeriodFinder interface {
	FindActive(ctx context.Context) (*models.Period, error)
}

// RosterView is the navigable slice handed to the UI layer.
type RosterView struct {
	Collection string              `json:"collection"`
	Page       int                 `json:"page"`
	TotalPages int                 `json:"total_pages"`
	HasMore    bool                `json:"has_more"`
	Searching  bool                `json:"searching"`
	Query      string              `json:"query,omitempty"`
	Items      []models.RosterEntry `json:"items"`
}

// RosterService keeps one cursor-caching browser per session and
// collection, so each administrator's navigation state survives between
// requests without interfering with anyone else's.
type RosterService struct {
	students    studentRosterRepo
	sections    sectionRosterRepo
	enrollments enrollmentRosterRepo
	periods     activePeriodFinder
	logger      *zap.Logger

	pageSize int
	debounce time.Duration

	mu         sync.Mutex
	browsers   map[string]*browser.Browser
	debouncers map[string]*browser.Debouncer
}

// NewRosterService constructs a RosterService.
func NewRosterService(students studentRosterRepo, sections sectionRosterRepo, enrollments enrollmentRosterRepo, periods activePeriodFinder, logger *zap.Logger, pageSize int, debounce time.Duration) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &RosterService{
		students:    students,
		sections:    sections,
		enrollments: enrollments,
		periods:     periods,
		logger:      logger,
		pageSize:    pageSize,
		debounce:    debounce,
		browsers:    make(map[string]*browser.Browser),
		debouncers:  make(map[string]*browser.Debouncer),
	}
}

// LoadPage navigates the session's browser for a collection to the target
// page and returns the resulting view.
func (s *RosterService) LoadPage(ctx context.Context, sessionID, collection string, page int, reload bool) (*RosterView, error) {
	b, err := s.browserFor(sessionID, collection)
	if err != nil {
		return nil, err
	}
	if _, err := b.LoadPage(ctx, page, reload); err != nil {
		if errors.Is(err, browser.ErrPageOutOfRange) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "page out of range")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster page")
	}
	return s.viewOf(ctx, collection, b), nil
}

// Search filters the collection by a case-insensitive substring on the
// chosen field. Calls are debounced per session: a burst of keystrokes
// issues a single full scan for the last query, and superseded calls
// return a nil view with no error.
func (s *RosterService) Search(ctx context.Context, sessionID, collection, query, field string) (*RosterView, error) {
	b, err := s.browserFor(sessionID, collection)
	if err != nil {
		return nil, err
	}
	if !s.debouncerFor(sessionID, collection).Coalesce(ctx) {
		return nil, nil
	}
	if _, err := b.Search(ctx, query, field); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search roster")
	}
	view := s.viewOf(ctx, collection, b)
	view.Query = query
	return view, nil
}

// Reset drops the session's browser state for a collection.
func (s *RosterService) Reset(sessionID, collection string) {
	key := sessionID + ":" + collection
	s.mu.Lock()
	delete(s.browsers, key)
	delete(s.debouncers, key)
	s.mu.Unlock()
}

func (s *RosterService) viewOf(ctx context.Context, collection string, b *browser.Browser) *RosterView {
	view := &RosterView{
		Collection: collection,
		Page:       b.Page(),
		HasMore:    b.HasMore(),
		Searching:  b.Searching(),
		Items:      b.Items(),
	}
	totalPages, err := b.TotalPages(ctx)
	if err != nil {
		// Navigation does not depend on the count; the view just loses
		// its page total.
		s.logger.Warn("failed to count roster pages", zap.String("collection", collection), zap.Error(err))
	} else {
		view.TotalPages = totalPages
	}
	return view
}

func (s *RosterService) browserFor(sessionID, collection string) (*browser.Browser, error) {
	source, err := s.sourceFor(collection)
	if err != nil {
		return nil, err
	}
	key := sessionID + ":" + collection
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.browsers[key]; ok {
		return b, nil
	}
	b := browser.New(source, s.pageSize, s.logger)
	s.browsers[key] = b
	return b, nil
}

func (s *RosterService) debouncerFor(sessionID, collection string) *browser.Debouncer {
	key := sessionID + ":" + collection
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.debouncers[key]; ok {
		return d
	}
	d := browser.NewDebouncer(s.debounce)
	s.debouncers[key] = d
	return d
}

func (s *RosterService) sourceFor(collection string) (browser.Source, error) {
	switch collection {
	case models.RosterCollectionStudents:
		return &sourceFuncs{
			page:  s.students.RosterPage,
			all:   s.students.RosterAll,
			count: s.students.RosterCount,
		}, nil
	case models.RosterCollectionSections:
		return &sourceFuncs{
			page:  s.sections.RosterPage,
			all:   s.sections.RosterAll,
			count: s.sections.RosterCount,
		}, nil
	case models.RosterCollectionEnrollments:
		return &sourceFuncs{
			page: func(ctx context.Context, pageSize int, after string) ([]models.RosterEntry, error) {
				periodID, err := s.activePeriodID(ctx)
				if err != nil {
					return nil, err
				}
				if periodID == "" {
					return nil, nil
				}
				return s.enrollments.RosterPage(ctx, periodID, pageSize, after)
			},
			all: func(ctx context.Context) ([]models.RosterEntry, error) {
				periodID, err := s.activePeriodID(ctx)
				if err != nil {
					return nil, err
				}
				if periodID == "" {
					return nil, nil
				}
				return s.enrollments.RosterAll(ctx, periodID)
			},
			count: func(ctx context.Context) (int, error) {
				periodID, err := s.activePeriodID(ctx)
				if err != nil {
					return 0, err
				}
				if periodID == "" {
					return 0, nil
				}
				return s.enrollments.RosterCount(ctx, periodID)
			},
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown roster collection")
	}
}

func (s *RosterService) activePeriodID(ctx context.Context) (string, error) {
	period, err := s.periods.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return period.ID, nil
}

// sourceFuncs adapts repository roster methods to the browser's Source.
type sourceFuncs struct {
	page  func(ctx context.Context, pageSize int, after string) ([]models.RosterEntry, error)
	all   func(ctx context.Context) ([]models.RosterEntry, error)
	count func(ctx context.Context) (int, error)
}

func (f *sourceFuncs) FetchPage(ctx context.Context, pageSize int, afterCursor string) (browser.Page, error) {
	items, err := f.page(ctx, pageSize, afterCursor)
	if err != nil {
		return browser.Page{}, err
	}
	page := browser.Page{Items: items, Full: len(items) == pageSize}
	if len(items) > 0 {
		page.LastCursor = items[len(items)-1].SortKey
	}
	return page, nil
}

func (f *sourceFuncs) FetchAll(ctx context.Context) ([]models.RosterEntry, error) {
	return f.all(ctx)
}

func (f *sourceFuncs) Count(ctx context.Context) (int, error) {
	return f.count(ctx)
}
