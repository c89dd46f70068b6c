package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/YannKr/markbot/internal/db"
	"github.com/YannKr/markbot/internal/model"
	"github.com/YannKr/markbot/internal/worker"
)

type jobView struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	State        string   `json:"state"`
	OriginalName string   `json:"original_name,omitempty"`
	ExitCode     *int     `json:"exit_code"`
	Diagnostic   string   `json:"diagnostic,omitempty"`
	Width        *int     `json:"width,omitempty"`
	Height       *int     `json:"height,omitempty"`
	DurationSecs *float64 `json:"duration_secs,omitempty"`
	CreatedAt    string   `json:"created_at"`
	StartedAt    *string  `json:"started_at"`
	CompletedAt  *string  `json:"completed_at"`
	FileURL      string   `json:"file_url,omitempty"`
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toJobView(j *model.Job) jobView {
	v := jobView{
		ID:           j.ID,
		Type:         j.JobType,
		State:        j.State,
		OriginalName: j.OriginalName,
		ExitCode:     j.ExitCode,
		Diagnostic:   j.Diagnostic,
		Width:        j.Width,
		Height:       j.Height,
		DurationSecs: j.DurationSecs,
		CreatedAt:    j.CreatedAt.UTC().Format(time.RFC3339),
		StartedAt:    formatTimePtr(j.StartedAt),
		CompletedAt:  formatTimePtr(j.CompletedAt),
	}
	if (j.State == model.StateCompleted || j.State == model.StateDelivered) && j.JobType == model.JobTypeVideo {
		v.FileURL = "/api/v1/jobs/" + j.ID + "/file"
	}
	return v
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) *model.Job {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return nil
	}
	j, err := db.GetJob(h.DB, id)
	if err != nil {
		slog.Error("get job", "job", id, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	if j == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return nil
	}
	return j
}

// JobGet handles GET /api/v1/jobs/{id}.
func (h *Handler) JobGet(w http.ResponseWriter, r *http.Request) {
	j := h.loadJob(w, r)
	if j == nil {
		return
	}
	jsonOK(w, http.StatusOK, toJobView(j))
}

// JobFile handles GET /api/v1/jobs/{id}/file. A finished video can be
// fetched, or resumed with a Range request, until the cleaner expires it.
func (h *Handler) JobFile(w http.ResponseWriter, r *http.Request) {
	j := h.loadJob(w, r)
	if j == nil {
		return
	}
	switch j.State {
	case model.StateCompleted, model.StateDelivered:
	case model.StatePending, model.StateRunning:
		jsonError(w, "job not finished", http.StatusConflict)
		return
	case model.StateFailed:
		jsonError(w, "job failed", http.StatusConflict)
		return
	default:
		jsonError(w, "result no longer available", http.StatusGone)
		return
	}

	f, err := os.Open(j.OutputPath)
	if err != nil {
		slog.Error("open job output", "job", j.ID, "error", err)
		jsonError(w, "result no longer available", http.StatusGone)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if j.State == model.StateCompleted {
		if _, err := db.MarkJobDelivered(h.DB, j.ID); err != nil {
			slog.Error("mark job delivered", "job", j.ID, "error", err)
		}
	}

	name := outputName(j.OriginalName, filepath.Ext(j.OutputPath))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	http.ServeContent(w, r, name, info.ModTime(), f)
	slog.Info("video served", "job", j.ID, "range", r.Header.Get("Range"))
}

// JobEvents handles GET /api/v1/jobs/{id}/events as a server-sent event
// stream. The stream ends once the job reaches a terminal state.
func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) {
	j := h.loadJob(w, r)
	if j == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before re-reading the state so no transition is missed.
	ch, unsub := h.SSE.Subscribe(worker.Topic(j.ID))
	defer unsub()

	if fresh, err := db.GetJob(h.DB, j.ID); err == nil && fresh != nil {
		j = fresh
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: state\ndata: {\"id\":%q,\"state\":%q}\n\n", j.ID, j.State)
	flusher.Flush()
	if j.Finished() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
			if evt.Type == "completed" || evt.Type == "failed" {
				return
			}
		}
	}
}
