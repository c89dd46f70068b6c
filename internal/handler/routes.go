package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(apiRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	// Forwarded headers are client-controlled; only a trusted proxy may set
	// the address the rate limiter keys on.
	if h.Cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Index)
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		if apiRL != nil {
			r.Use(apiRL.Middleware)
		}
		r.Use(h.RequireToken)

		r.Post("/photos", h.PhotoUpload)
		r.Post("/videos", h.VideoUpload)
		r.Get("/jobs/{id}", h.JobGet)
		r.Get("/jobs/{id}/file", h.JobFile)
		r.Get("/jobs/{id}/events", h.JobEvents)
	})

	return r
}

const usage = `Send a photo or a video to add the watermark.

  POST /api/v1/photos   multipart field "file"; responds with the watermarked PNG
  POST /api/v1/videos   multipart field "file"; responds 202 with a job id
  GET  /api/v1/jobs/{id}         job status
  GET  /api/v1/jobs/{id}/file    watermarked video, until it expires
  GET  /api/v1/jobs/{id}/events  server-sent job events
`

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(usage))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
