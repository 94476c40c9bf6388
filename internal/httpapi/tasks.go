package httpapi

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/roby2358/oblique/internal/archive"
	"github.com/roby2358/oblique/internal/engine"
	"github.com/roby2358/oblique/internal/social"
	"github.com/roby2358/oblique/internal/task"
)

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"engine": s.eng.Status(),
		"modes":  s.modes,
	}
	if s.metrics != nil {
		payload["latency"] = s.metrics.SnapshotStages()
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var filter task.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		filter = task.Status(raw)
		if !filter.Valid() {
			respondError(w, http.StatusBadRequest, "invalid_request", "unknown status "+strconv.Quote(raw))
			return
		}
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	var live []task.Snapshot
	if filter != "" {
		live = s.eng.ByStatus(filter)
	} else {
		live = s.eng.Snapshots()
	}

	merged := live
	if s.archive != nil {
		archived, err := s.archive.Recent(r.Context(), limit)
		if err != nil {
			s.log.Warn("archive list failed", "error", err)
		} else {
			merged = mergeSnapshots(live, archived, filter)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].TaskID < merged[j].TaskID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tasks": merged,
		"count": len(merged),
	})
}

// mergeSnapshots layers archived chains under the live table. A chain present
// in both keeps its live snapshot.
func mergeSnapshots(live, archived []task.Snapshot, filter task.Status) []task.Snapshot {
	seen := make(map[string]struct{}, len(live))
	for _, snap := range live {
		seen[snap.TaskID] = struct{}{}
	}
	out := live
	for _, snap := range archived {
		if _, ok := seen[snap.TaskID]; ok {
			continue
		}
		if filter != "" && snap.Status != filter {
			continue
		}
		out = append(out, snap)
	}
	return out
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}

	snap, err := s.eng.Get(taskID)
	if err == nil {
		respondJSON(w, http.StatusOK, snap)
		return
	}
	if !errors.Is(err, engine.ErrTaskNotFound) {
		respondError(w, http.StatusBadRequest, "task_get_failed", err.Error())
		return
	}

	if s.archive != nil {
		snap, err = s.archive.Get(r.Context(), taskID)
		if err == nil {
			respondJSON(w, http.StatusOK, snap)
			return
		}
		if !errors.Is(err, archive.ErrNotFound) {
			respondError(w, http.StatusBadRequest, "task_get_failed", err.Error())
			return
		}
	}
	respondError(w, http.StatusNotFound, "task_not_found", "no job chain with id "+taskID)
}

type cancelTaskRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}

	reason := "canceled via api"
	var req cancelTaskRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Reason) != "" {
		reason = strings.TrimSpace(req.Reason)
	}

	snap, err := s.eng.Cancel(taskID, reason)
	if err != nil {
		if errors.Is(err, engine.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "task_cancel_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type injectMentionRequest struct {
	Acct       string `json:"acct"`
	StatusID   string `json:"status_id"`
	Text       string `json:"text"`
	Visibility string `json:"visibility"`
	Bot        bool   `json:"bot"`
}

type injectMentionResponse struct {
	TaskID  string      `json:"task_id"`
	Version int         `json:"version"`
	Status  task.Status `json:"status"`
}

// handleInjectMention feeds one mention into the same screening and
// submission path the poller uses, for operators and tests.
func (s *Server) handleInjectMention(w http.ResponseWriter, r *http.Request) {
	if s.producer == nil {
		respondError(w, http.StatusNotImplemented, "ingest_unavailable", "mention producer not configured")
		return
	}

	var req injectMentionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	req.Acct = strings.TrimSpace(req.Acct)
	if req.Acct == "" {
		req.Acct = "operator"
	}

	snap, reason := s.producer.Ingest(social.Mention{
		ID:         "api-" + uuid.NewString(),
		StatusID:   strings.TrimSpace(req.StatusID),
		Account:    social.Account{Acct: req.Acct, Bot: req.Bot},
		Text:       req.Text,
		Visibility: strings.TrimSpace(req.Visibility),
	})
	if reason != "" {
		respondError(w, http.StatusUnprocessableEntity, "mention_skipped", reason)
		return
	}

	respondJSON(w, http.StatusCreated, injectMentionResponse{
		TaskID:  snap.TaskID,
		Version: snap.Version,
		Status:  snap.Status,
	})
}
