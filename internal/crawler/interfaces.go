package crawler

import (
	"context"
	"time"
)

// Credential carries the session material forwarded to the upstream.
type Credential struct {
	Cookies string
}

// Empty reports whether no credential was supplied.
func (c Credential) Empty() bool { return c.Cookies == "" }

// GeoPoint restricts a search to a location.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SearchFilters narrows a search. The zero value means unrestricted.
type SearchFilters struct {
	NoteType    int       `json:"note_type"`
	NoteTime    int       `json:"note_time"`
	NoteRange   int       `json:"note_range"`
	PosDistance int       `json:"pos_distance"`
	Geo         *GeoPoint `json:"geo,omitempty"`
}

// UnrestrictedFilters returns the filter set used by every orchestrated search.
func UnrestrictedFilters() SearchFilters {
	return SearchFilters{}
}

// SearchRequest is the input to a single search call.
type SearchRequest struct {
	Query      string
	Count      int
	Credential Credential
	SortMode   SortMode
	Filters    SearchFilters
}

// Searcher runs one keyword search and returns the raw result items.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]RawItem, error)
}

// DetailFetcher resolves the full note card behind a note URL.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, noteURL string, cred Credential) (RawItem, error)
}

// CommentFetcher lists the comments of one note.
type CommentFetcher interface {
	FetchComments(ctx context.Context, noteID, xsecToken string, cred Credential) ([]RawItem, error)
}

// Upstream bundles every capability the orchestrator consumes.
type Upstream interface {
	Searcher
	DetailFetcher
	CommentFetcher
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
