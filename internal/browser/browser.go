package browser

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/colegio-adp-api/internal/models"
)

// ErrPageOutOfRange is returned when the requested page lies beyond the
// collection's last page. The browser state is left untouched.
var ErrPageOutOfRange = errors.New("page out of range")

// Page is one fetched slice of an ordered collection. LastCursor marks the
// final item and is the handle for fetching the next contiguous slice.
// Full is true when the slice holds exactly the requested page size, the
// heuristic for "there may be a next page".
type Page struct {
	Items      []models.RosterEntry
	LastCursor string
	Full       bool
}

// Source abstracts the ordered collection behind the browser. FetchPage
// with an empty cursor starts from the beginning. FetchAll exists because
// the store cannot filter by substring; search falls back to a full scan.
type Source interface {
	FetchPage(ctx context.Context, pageSize int, afterCursor string) (Page, error)
	FetchAll(ctx context.Context) ([]models.RosterEntry, error)
	Count(ctx context.Context) (int, error)
}

// Browser keeps a cursor per visited page boundary so backward and forward
// navigation avoid re-scanning. The cursor for page N is only usable when
// pages 1..N were walked in the current cache generation; any gap forces a
// replay from page 1 (the store has no skip-to-page primitive).
type Browser struct {
	source   Source
	pageSize int
	logger   *zap.Logger

	mu        sync.Mutex
	cursors   map[int]string
	items     []models.RosterEntry
	page      int
	hasMore   bool
	searching bool
	query     string
}

// New constructs a browser over the given source.
func New(source Source, pageSize int, logger *zap.Logger) *Browser {
	if pageSize <= 0 {
		pageSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{
		source:   source,
		pageSize: pageSize,
		logger:   logger,
		cursors:  make(map[int]string),
	}
}

// LoadPage makes the target page the visible item set. Page 1 (and any
// forceReload) discards the whole cursor cache and starts a fresh walk;
// a cached cursor for target-1 costs a single fetch; anything else replays
// pages 1..target, caching every boundary cursor along the way and keeping
// only the final page's items. Fetch failures leave the visible items and
// the cursor cache at their last-known-good state.
func (b *Browser) LoadPage(ctx context.Context, target int, forceReload bool) ([]models.RosterEntry, error) {
	if target < 1 {
		target = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if target == 1 || forceReload {
		first, err := b.source.FetchPage(ctx, b.pageSize, "")
		if err != nil {
			return nil, err
		}
		cursors := map[int]string{1: first.LastCursor}
		if target == 1 {
			b.commit(first, 1, cursors)
			return b.items, nil
		}
		return b.replayLocked(ctx, first, cursors, target)
	}

	if after, ok := b.cursors[target-1]; ok && after != "" {
		page, err := b.source.FetchPage(ctx, b.pageSize, after)
		if err != nil {
			return nil, err
		}
		// An empty page means the cached cursor already sat on the last
		// item. Committing it would cache an empty cursor, and an empty
		// cursor restarts the walk from the beginning.
		if len(page.Items) == 0 {
			return nil, ErrPageOutOfRange
		}
		cursors := make(map[int]string, len(b.cursors)+1)
		for k, v := range b.cursors {
			cursors[k] = v
		}
		cursors[target] = page.LastCursor
		b.commit(page, target, cursors)
		return b.items, nil
	}

	// No usable cursor: replay from the beginning.
	first, err := b.source.FetchPage(ctx, b.pageSize, "")
	if err != nil {
		return nil, err
	}
	cursors := map[int]string{1: first.LastCursor}
	return b.replayLocked(ctx, first, cursors, target)
}

// replayLocked walks forward from page 1's result until target, discarding
// intermediate item sets. State is committed only once the target page is
// in hand so a mid-replay failure cannot leave a partially rebuilt cache.
func (b *Browser) replayLocked(ctx context.Context, current Page, cursors map[int]string, target int) ([]models.RosterEntry, error) {
	for p := 2; p <= target; p++ {
		if !current.Full {
			return nil, ErrPageOutOfRange
		}
		next, err := b.source.FetchPage(ctx, b.pageSize, cursors[p-1])
		if err != nil {
			return nil, err
		}
		if len(next.Items) == 0 {
			return nil, ErrPageOutOfRange
		}
		cursors[p] = next.LastCursor
		current = next
	}
	b.commit(current, target, cursors)
	return b.items, nil
}

func (b *Browser) commit(page Page, number int, cursors map[int]string) {
	b.cursors = cursors
	b.items = page.Items
	b.page = number
	b.hasMore = page.Full
	b.searching = false
	b.query = ""
}

// Search switches the browser into unpaged search mode: the store cannot
// filter by substring, so the whole collection is fetched and filtered
// client-side with a case-insensitive match on the chosen field (all
// fields when field is empty). An empty query exits search mode and
// restores page 1.
func (b *Browser) Search(ctx context.Context, query, field string) ([]models.RosterEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return b.LoadPage(ctx, 1, false)
	}

	all, err := b.source.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	matches := make([]models.RosterEntry, 0)
	for _, entry := range all {
		if entryMatches(entry, field, needle) {
			matches = append(matches, entry)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = matches
	b.searching = true
	b.query = query
	return b.items, nil
}

func entryMatches(entry models.RosterEntry, field, needle string) bool {
	if field != "" {
		return strings.Contains(strings.ToLower(entry.Fields[field]), needle)
	}
	if strings.Contains(strings.ToLower(entry.SortKey), needle) {
		return true
	}
	for _, value := range entry.Fields {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

// TotalPages issues a count query and derives the page count. It exists
// for display and bounds-checking only; navigation does not depend on it.
func (b *Browser) TotalPages(ctx context.Context) (int, error) {
	total, err := b.source.Count(ctx)
	if err != nil {
		return 0, err
	}
	pages := total / b.pageSize
	if total%b.pageSize != 0 {
		pages++
	}
	return pages, nil
}

// Items returns the currently visible item set.
func (b *Browser) Items() []models.RosterEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items
}

// Page returns the current page number (meaningless while searching).
func (b *Browser) Page() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

// HasMore reports whether the last fetched page was exactly full, the
// heuristic for a possible next page.
func (b *Browser) HasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasMore
}

// Searching reports whether the browser is in unpaged search mode.
func (b *Browser) Searching() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.searching
}
