package crawler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawItem is one untyped upstream payload (search item, detail card or comment).
type RawItem = map[string]any

// SortMode is the closed set of search orderings. The integer value is the
// code used on external transports.
type SortMode int

// Sort modes with their transport codes.
const (
	SortComprehensive SortMode = 0
	SortLatest        SortMode = 1
	SortMostLiked     SortMode = 2
	SortMostCommented SortMode = 3
	SortMostCollected SortMode = 4
)

var sortModeNames = [...]string{
	SortComprehensive: "comprehensive",
	SortLatest:        "latest",
	SortMostLiked:     "most_liked",
	SortMostCommented: "most_commented",
	SortMostCollected: "most_collected",
}

// upstream query values for each sort mode.
var sortModeUpstream = [...]string{
	SortComprehensive: "general",
	SortLatest:        "time_descending",
	SortMostLiked:     "popularity_descending",
	SortMostCommented: "comment_descending",
	SortMostCollected: "collect_descending",
}

// Valid reports whether m is one of the defined sort modes.
func (m SortMode) Valid() bool {
	return m >= SortComprehensive && m <= SortMostCollected
}

// String returns the symbolic name of the sort mode.
func (m SortMode) String() string {
	if !m.Valid() {
		return "sort_mode(" + strconv.Itoa(int(m)) + ")"
	}
	return sortModeNames[m]
}

// Code returns the integer transport code.
func (m SortMode) Code() int { return int(m) }

// UpstreamValue returns the ordering keyword understood by the search endpoint.
func (m SortMode) UpstreamValue() string {
	if !m.Valid() {
		return sortModeUpstream[SortComprehensive]
	}
	return sortModeUpstream[m]
}

// SortModeFromCode maps a transport code to a SortMode.
func SortModeFromCode(code int) (SortMode, error) {
	m := SortMode(code)
	if !m.Valid() {
		return SortComprehensive, fmt.Errorf("unknown sort mode code %d", code)
	}
	return m, nil
}

// ParseSortMode accepts either the symbolic name or the integer code.
func ParseSortMode(s string) (SortMode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return SortComprehensive, nil
	}
	if code, err := strconv.Atoi(s); err == nil {
		return SortModeFromCode(code)
	}
	for i, name := range sortModeNames {
		if name == s {
			return SortMode(i), nil
		}
	}
	return SortComprehensive, fmt.Errorf("unknown sort mode %q", s)
}

// MarshalJSON encodes the sort mode as its transport code.
func (m SortMode) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(m))), nil
}

// UnmarshalJSON accepts an integer code or a symbolic name.
func (m *SortMode) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		parsed, err := SortModeFromCode(code)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode sort mode: %w", err)
	}
	parsed, err := ParseSortMode(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// RunStatus represents the lifecycle state reported for a crawl run.
type RunStatus string

// Run status values carried by lifecycle events.
const (
	RunStatusStarted   RunStatus = "started"
	RunStatusProgress  RunStatus = "progress"
	RunStatusCompleted RunStatus = "completed"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailed    RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusStarted, RunStatusProgress, RunStatusCompleted, RunStatusSuccess, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further events follow s within a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusSuccess || s == RunStatusFailed
}

// NoteType distinguishes image notes from video notes.
type NoteType string

// Note types.
const (
	NoteTypeNormal NoteType = "normal"
	NoteTypeVideo  NoteType = "video"
)

// Phase tags where an isolated failure happened.
type Phase string

// Failure phases.
const (
	PhaseDetail  Phase = "detail"
	PhaseComment Phase = "comment"
	PhaseOther   Phase = "other"
)

// Author identifies the note creator. Every field is nullable.
type Author struct {
	UserID   *string `json:"user_id"`
	Nickname *string `json:"nickname"`
	Avatar   *string `json:"avatar"`
}

// Interactions holds engagement counters. Missing values are zero, never null.
type Interactions struct {
	Liked     int `json:"liked_count"`
	Collected int `json:"collected_count"`
	Commented int `json:"comment_count"`
	Shared    int `json:"share_count"`
}

// Media carries the note's visual assets. Video fields are set only for video notes.
type Media struct {
	VideoCover   *string  `json:"video_cover"`
	VideoAddress *string  `json:"video_addr"`
	ImageList    []string `json:"image_list"`
}

// NoteRecord is the canonical note produced by normalization.
type NoteRecord struct {
	NoteID       string       `json:"note_id"`
	URL          string       `json:"note_url"`
	Type         NoteType     `json:"note_type"`
	Author       Author       `json:"author"`
	Title        *string      `json:"title"`
	Description  *string      `json:"desc"`
	Tags         []string     `json:"tags"`
	UploadTime   *time.Time   `json:"upload_time"`
	Location     *string      `json:"ip_location"`
	Interactions Interactions `json:"interactions"`
	Media        Media        `json:"media"`
	// XsecToken is the opaque continuation token required by follow-up calls.
	XsecToken string `json:"xsec_token"`
}

// Commenter identifies a comment author.
type Commenter struct {
	UserID   *string `json:"user_id"`
	Nickname *string `json:"nickname"`
}

// CommentRecord is the canonical comment produced by normalization.
type CommentRecord struct {
	CommentID       string     `json:"comment_id"`
	NoteID          string     `json:"note_id"`
	Content         string     `json:"content"`
	LikeCount       int        `json:"like_count"`
	UploadTime      *time.Time `json:"upload_time"`
	Location        *string    `json:"ip_location"`
	Commenter       Commenter  `json:"commenter"`
	ParentCommentID *string    `json:"parent_comment_id"`
	RootCommentID   *string    `json:"root_comment_id"`
}

// ErrorEntry describes one isolated failure that did not abort the run.
type ErrorEntry struct {
	Message string `json:"message"`
	NoteID  string `json:"note_id,omitempty"`
	Phase   Phase  `json:"phase"`
}

// String renders the entry for the event errors list.
func (e ErrorEntry) String() string {
	if e.NoteID == "" {
		return fmt.Sprintf("%s: %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("%s: note %s: %s", e.Phase, e.NoteID, e.Message)
}

// NoteURL builds the public note address for id and its continuation token.
func NoteURL(noteID, xsecToken string) string {
	return "https://www.xiaohongshu.com/explore/" + noteID + "?xsec_token=" + xsecToken
}
