package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/YannKr/markbot/internal/config"
	"github.com/YannKr/markbot/internal/sse"
)

type Handler struct {
	DB  *sql.DB
	Cfg *config.Config
	SSE *sse.Hub
}

func New(database *sql.DB, cfg *config.Config, sseHub *sse.Hub) *Handler {
	return &Handler{DB: database, Cfg: cfg, SSE: sseHub}
}

// workDir is the root holding one sub-directory per job.
func (h *Handler) workDir() string {
	return filepath.Join(h.Cfg.DataDir, "work")
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func jsonOK(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
