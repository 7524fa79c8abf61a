package models

// RosterEntry is one listed record in the paginated roster browser. The
// entry is collection-agnostic: ID identifies the record, SortKey is the
// single ascending ordering key the cursor pagination walks, and Fields
// holds the display columns.
type RosterEntry struct {
	ID      string            `json:"id"`
	SortKey string            `json:"sort_key"`
	Fields  map[string]string `json:"fields"`
}

// Roster collections browsable through the roster endpoints.
const (
	RosterCollectionStudents    = "students"
	RosterCollectionSections    = "sections"
	RosterCollectionEnrollments = "enrollments"
)
