package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
	"github.com/JunJD/xiuer-spider/internal/storage/memory"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	statusQueued    = "queued"
)

// listRuns handles GET /v1/runs?status=&limit=&offset=. It returns
// {"runs": [...]} newest first, or 400 for invalid filters.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && status != statusQueued && !crawler.RunStatus(status).Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	var filtered []memory.RunRecord
	for _, rec := range s.deps.Runs.List() {
		if status == "" || toRunDTO(rec).Status == status {
			filtered = append(filtered, rec)
		}
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := min(offset+limit, len(filtered))
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": toRunDTOs(filtered[offset:end]),
	})
}

// getRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} or 404.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	rec, ok := s.deps.Runs.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(rec)})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type runDTO struct {
	RunID       string                   `json:"run_id"`
	TaskID      string                   `json:"task_id,omitempty"`
	Query       string                   `json:"query"`
	SubmittedAt time.Time                `json:"submitted_at"`
	Status      string                   `json:"status"`
	Progress    int                      `json:"progress"`
	Message     string                   `json:"message,omitempty"`
	History     []crawler.RunStatus      `json:"history"`
	Event       *progress.LifecycleEvent `json:"event,omitempty"`
}

func toRunDTOs(in []memory.RunRecord) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toRunDTO(rec))
	}
	return out
}

func toRunDTO(rec memory.RunRecord) runDTO {
	dto := runDTO{
		RunID:       rec.RunID,
		TaskID:      rec.TaskID,
		Query:       rec.Query,
		SubmittedAt: rec.SubmittedAt,
		Status:      statusQueued,
		History:     rec.Statuses,
		Event:       rec.Latest,
	}
	if dto.History == nil {
		dto.History = []crawler.RunStatus{}
	}
	if rec.Latest != nil {
		dto.Status = string(rec.Latest.Status)
		dto.Progress = rec.Latest.Progress
		dto.Message = rec.Latest.Message
	}
	return dto
}
