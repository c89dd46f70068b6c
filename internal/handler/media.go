package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/YannKr/markbot/internal/db"
	"github.com/YannKr/markbot/internal/model"
	"github.com/YannKr/markbot/internal/watermark"
)

// upload is a received file stored in its own job directory.
type upload struct {
	jobID        string
	dir          string
	inputPath    string
	originalName string
}

func (u *upload) discard() {
	if err := os.RemoveAll(u.dir); err != nil {
		slog.Warn("remove work dir", "dir", u.dir, "error", err)
	}
}

type httpError struct {
	msg  string
	code int
}

func (e *httpError) Error() string { return e.msg }

// receiveUpload stores the multipart "file" field under a fresh job
// directory. want restricts the accepted media kind.
func (h *Handler) receiveUpload(w http.ResponseWriter, r *http.Request, want watermark.MediaKind) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &httpError{"file too large", http.StatusRequestEntityTooLarge}
		}
		return nil, &httpError{"failed to parse multipart form", http.StatusBadRequest}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &httpError{"missing file field", http.StatusBadRequest}
	}
	defer file.Close()

	kind, ok := watermark.DetectKind(header.Filename, header.Header.Get("Content-Type"))
	if !ok || kind != want {
		return nil, &httpError{fmt.Sprintf("expected a %s file", want), http.StatusUnsupportedMediaType}
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if kind == watermark.KindVideo {
		ext = watermark.VideoExt(header.Filename)
	}

	u := &upload{
		jobID:        uuid.New().String(),
		originalName: filepath.Base(header.Filename),
	}
	u.dir = filepath.Join(h.workDir(), u.jobID)
	u.inputPath = filepath.Join(u.dir, "input"+ext)

	if err := os.MkdirAll(u.dir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	dst, err := os.Create(u.inputPath)
	if err != nil {
		u.discard()
		return nil, fmt.Errorf("create input: %w", err)
	}
	_, copyErr := io.Copy(dst, file)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		u.discard()
		return nil, fmt.Errorf("store upload: %w", err)
	}
	return u, nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	var he *httpError
	if errors.As(err, &he) {
		jsonError(w, he.msg, he.code)
		return
	}
	slog.Error("receive upload", "error", err)
	jsonError(w, "internal error", http.StatusInternalServerError)
}

// PhotoUpload handles POST /api/v1/photos. The photo is watermarked inline
// and the PNG is written straight back; nothing is kept afterwards.
func (h *Handler) PhotoUpload(w http.ResponseWriter, r *http.Request) {
	u, err := h.receiveUpload(w, r, watermark.KindImage)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer u.discard()

	job := &model.Job{
		ID:           u.jobID,
		JobType:      model.JobTypeImage,
		OriginalName: u.originalName,
		InputPath:    u.inputPath,
		OutputPath:   filepath.Join(u.dir, "output.png"),
	}
	if err := db.StartJob(h.DB, job); err != nil {
		slog.Error("record image job", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	err = watermark.ImageWatermark(r.Context(), watermark.ImageParams{
		InputPath:     job.InputPath,
		WatermarkPath: h.Cfg.WatermarkPath,
		OutputPath:    job.OutputPath,
	})
	if err != nil {
		if dbErr := db.FailJob(h.DB, job.ID, nil, err.Error()); dbErr != nil {
			slog.Error("fail image job", "job", job.ID, "error", dbErr)
		}
		h.writeImageError(w, job, err)
		return
	}
	if err := db.CompleteJob(h.DB, job.ID, 0); err != nil {
		slog.Error("complete image job", "job", job.ID, "error", err)
	}

	f, err := os.Open(job.OutputPath)
	if err != nil {
		slog.Error("open image output", "job", job.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, outputName(u.originalName, ".png")))
	w.Header().Set("X-Job-Id", job.ID)
	if _, err := io.Copy(w, f); err != nil {
		slog.Warn("send image", "job", job.ID, "error", err)
		return
	}
	if _, err := db.MarkJobDelivered(h.DB, job.ID); err != nil {
		slog.Error("mark image delivered", "job", job.ID, "error", err)
	}
	slog.Info("image watermarked", "job", job.ID, "name", u.originalName)
}

func (h *Handler) writeImageError(w http.ResponseWriter, job *model.Job, err error) {
	var decErr *watermark.DecodeError
	var fsErr *watermark.FilesystemError
	switch {
	case errors.As(err, &decErr) && decErr.Path == job.InputPath:
		jsonError(w, "uploaded file is not a decodable image", http.StatusUnprocessableEntity)
	case errors.As(err, &decErr), errors.As(err, &fsErr) && fsErr.Path == h.Cfg.WatermarkPath:
		slog.Error("watermark asset unusable", "job", job.ID, "error", err)
		jsonError(w, "watermark asset unavailable", http.StatusInternalServerError)
	default:
		slog.Error("image watermark", "job", job.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// VideoUpload handles POST /api/v1/videos. The video is queued for the
// worker pool and the job id is returned immediately.
func (h *Handler) VideoUpload(w http.ResponseWriter, r *http.Request) {
	u, err := h.receiveUpload(w, r, watermark.KindVideo)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	job := &model.Job{
		ID:           u.jobID,
		JobType:      model.JobTypeVideo,
		OriginalName: u.originalName,
		InputPath:    u.inputPath,
		OutputPath:   filepath.Join(u.dir, "output"+filepath.Ext(u.inputPath)),
	}
	if err := db.EnqueueJob(h.DB, job); err != nil {
		u.discard()
		slog.Error("enqueue video job", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("video queued", "job", job.ID, "name", u.originalName)

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	jsonOK(w, http.StatusAccepted, map[string]string{
		"id":    job.ID,
		"state": model.StatePending,
	})
}

// outputName derives a download filename from the uploaded one.
func outputName(original, ext string) string {
	base := strings.TrimSuffix(original, filepath.Ext(original))
	base = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." {
		base = "media"
	}
	return base + "_watermarked" + ext
}
