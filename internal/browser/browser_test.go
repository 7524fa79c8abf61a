package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/colegio-adp-api/internal/models"
)

// fakeSource serves pages out of an in-memory ordered slice and counts
// fetch calls so tests can assert how much work navigation cost.
type fakeSource struct {
	entries    []models.RosterEntry
	fetchCalls int
	scanCalls  int
	failNext   bool
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{}
	for i := 1; i <= n; i++ {
		s.entries = append(s.entries, models.RosterEntry{
			ID:      fmt.Sprintf("id-%03d", i),
			SortKey: fmt.Sprintf("%08d", i),
			Fields: map[string]string{
				"cedula": fmt.Sprintf("%08d", i),
				"nombre": fmt.Sprintf("Estudiante %d", i),
			},
		})
	}
	return s
}

func (s *fakeSource) FetchPage(_ context.Context, pageSize int, afterCursor string) (Page, error) {
	s.fetchCalls++
	if s.failNext {
		s.failNext = false
		return Page{}, errors.New("store unavailable")
	}
	start := 0
	if afterCursor != "" {
		for i, e := range s.entries {
			if e.SortKey == afterCursor {
				start = i + 1
				break
			}
		}
	}
	end := start + pageSize
	if end > len(s.entries) {
		end = len(s.entries)
	}
	items := s.entries[start:end]
	page := Page{Items: items, Full: len(items) == pageSize}
	if len(items) > 0 {
		page.LastCursor = items[len(items)-1].SortKey
	}
	return page, nil
}

func (s *fakeSource) FetchAll(_ context.Context) ([]models.RosterEntry, error) {
	s.scanCalls++
	if s.failNext {
		s.failNext = false
		return nil, errors.New("store unavailable")
	}
	return s.entries, nil
}

func (s *fakeSource) Count(_ context.Context) (int, error) {
	return len(s.entries), nil
}

func TestLoadPageFirstPage(t *testing.T) {
	src := newFakeSource(25)
	b := New(src, 10, nil)

	items, err := b.LoadPage(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.Equal(t, "id-001", items[0].ID)
	assert.Equal(t, 1, b.Page())
	assert.True(t, b.HasMore())
	assert.Equal(t, 1, src.fetchCalls)
}

func TestLoadPageSequentialWalk(t *testing.T) {
	src := newFakeSource(25)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.LoadPage(ctx, 1, false)
	require.NoError(t, err)
	items, err := b.LoadPage(ctx, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "id-011", items[0].ID)
	assert.Equal(t, 2, src.fetchCalls)

	items, err = b.LoadPage(ctx, 3, false)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, "id-021", items[0].ID)
	assert.False(t, b.HasMore())
	assert.Equal(t, 3, src.fetchCalls)
}

func TestLoadPageDirectJumpMatchesSequentialWalk(t *testing.T) {
	src := newFakeSource(42)
	ctx := context.Background()

	walked := New(src, 10, nil)
	for p := 1; p <= 3; p++ {
		_, err := walked.LoadPage(ctx, p, false)
		require.NoError(t, err)
	}
	want := walked.Items()

	// Cold cache: jumping straight to page 3 replays from the start and
	// must land on the same items.
	jumped := New(newFakeSource(42), 10, nil)
	got, err := jumped.LoadPage(ctx, 3, false)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 3, jumped.Page())
}

func TestLoadPageReplayPopulatesCursorCache(t *testing.T) {
	src := newFakeSource(42)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.LoadPage(ctx, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 4, src.fetchCalls)

	// Backward jump to page 2 should reuse the cursor cached during the
	// replay: a single fetch.
	items, err := b.LoadPage(ctx, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "id-011", items[0].ID)
	assert.Equal(t, 5, src.fetchCalls)
}

func TestLoadPageOneResetsCursorCache(t *testing.T) {
	src := newFakeSource(42)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.LoadPage(ctx, 1, false)
	require.NoError(t, err)
	_, err = b.LoadPage(ctx, 2, false)
	require.NoError(t, err)
	_, err = b.LoadPage(ctx, 1, false)
	require.NoError(t, err)
	calls := src.fetchCalls

	// The fresh walk cached page 1's boundary, so page 2 is one fetch.
	_, err = b.LoadPage(ctx, 2, false)
	require.NoError(t, err)
	assert.Equal(t, calls+1, src.fetchCalls)
}

func TestLoadPageForceReloadDiscardsCache(t *testing.T) {
	src := newFakeSource(42)
	b := New(src, 10, nil)
	ctx := context.Background()

	for p := 1; p <= 3; p++ {
		_, err := b.LoadPage(ctx, p, false)
		require.NoError(t, err)
	}
	calls := src.fetchCalls

	_, err := b.LoadPage(ctx, 3, true)
	require.NoError(t, err)
	assert.Equal(t, calls+3, src.fetchCalls)
}

func TestLoadPageOutOfRange(t *testing.T) {
	src := newFakeSource(15)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.LoadPage(ctx, 1, false)
	require.NoError(t, err)
	before := b.Items()

	_, err = b.LoadPage(ctx, 5, false)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.Equal(t, before, b.Items())
	assert.Equal(t, 1, b.Page())
}

func TestLoadPageOutOfRangeWithWarmCursor(t *testing.T) {
	src := newFakeSource(15)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.LoadPage(ctx, 1, false)
	require.NoError(t, err)
	_, err = b.LoadPage(ctx, 2, false)
	require.NoError(t, err)
	before := b.Items()
	require.Len(t, before, 5)

	// Page 2's boundary cursor is cached, so the browser fetches past the
	// last item and must report out-of-range instead of committing the
	// empty page.
	_, err = b.LoadPage(ctx, 3, false)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.Equal(t, before, b.Items())
	assert.Equal(t, 2, b.Page())

	// No cursor was cached for the phantom page: page 4 replays and also
	// lands out of range rather than serving page 1 relabeled.
	_, err = b.LoadPage(ctx, 4, false)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.Equal(t, before, b.Items())
	assert.Equal(t, 2, b.Page())
}

func TestLoadPageExactMultipleBoundary(t *testing.T) {
	src := newFakeSource(20)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.LoadPage(ctx, 1, false)
	require.NoError(t, err)
	items, err := b.LoadPage(ctx, 2, false)
	require.NoError(t, err)
	require.Len(t, items, 10)
	// Exactly full last page: the heuristic still claims more.
	assert.True(t, b.HasMore())

	_, err = b.LoadPage(ctx, 3, false)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.Equal(t, 2, b.Page())

	// Same answer on a cold cache via replay.
	cold := New(newFakeSource(20), 10, nil)
	_, err = cold.LoadPage(ctx, 3, false)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestLoadPageFetchErrorKeepsState(t *testing.T) {
	src := newFakeSource(25)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.LoadPage(ctx, 1, false)
	require.NoError(t, err)
	before := b.Items()

	src.failNext = true
	_, err = b.LoadPage(ctx, 2, false)
	require.Error(t, err)
	assert.Equal(t, before, b.Items())
	assert.Equal(t, 1, b.Page())

	// The cached cursor survived the failure: retry is one fetch.
	calls := src.fetchCalls
	items, err := b.LoadPage(ctx, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "id-011", items[0].ID)
	assert.Equal(t, calls+1, src.fetchCalls)
}

func TestSearchModeIsUnpaged(t *testing.T) {
	src := newFakeSource(35)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.LoadPage(ctx, 2, false)
	require.NoError(t, err)

	items, err := b.Search(ctx, "estudiante 1", "nombre")
	require.NoError(t, err)
	// "Estudiante 1" plus "Estudiante 10".."Estudiante 19".
	assert.Len(t, items, 11)
	assert.True(t, b.Searching())
	assert.Equal(t, 1, src.scanCalls)
}

func TestSearchMatchesSingleField(t *testing.T) {
	src := newFakeSource(12)
	b := New(src, 10, nil)

	items, err := b.Search(context.Background(), "00000007", "cedula")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "id-007", items[0].ID)
}

func TestSearchNoMatches(t *testing.T) {
	src := newFakeSource(12)
	b := New(src, 10, nil)

	items, err := b.Search(context.Background(), "zzz", "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.True(t, b.Searching())
}

func TestSearchEmptyQueryRestoresPageOne(t *testing.T) {
	src := newFakeSource(35)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.Search(ctx, "estudiante", "nombre")
	require.NoError(t, err)
	require.True(t, b.Searching())

	items, err := b.Search(ctx, "  ", "nombre")
	require.NoError(t, err)
	assert.False(t, b.Searching())
	assert.Equal(t, 1, b.Page())
	assert.Equal(t, "id-001", items[0].ID)
}

func TestLoadPageExitsSearchMode(t *testing.T) {
	src := newFakeSource(35)
	b := New(src, 10, nil)
	ctx := context.Background()

	_, err := b.Search(ctx, "estudiante", "")
	require.NoError(t, err)
	require.True(t, b.Searching())

	_, err = b.LoadPage(ctx, 2, false)
	require.NoError(t, err)
	assert.False(t, b.Searching())
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{0, 0},
		{1, 1},
		{10, 1},
		{11, 2},
		{35, 4},
	}
	for _, tt := range tests {
		b := New(newFakeSource(tt.total), 10, nil)
		pages, err := b.TotalPages(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.want, pages, "total=%d", tt.total)
	}
}
