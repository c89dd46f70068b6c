package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	markbot "github.com/YannKr/markbot"
	"github.com/YannKr/markbot/internal/cleanup"
	"github.com/YannKr/markbot/internal/config"
	"github.com/YannKr/markbot/internal/db"
	"github.com/YannKr/markbot/internal/handler"
	"github.com/YannKr/markbot/internal/sse"
	"github.com/YannKr/markbot/internal/worker"
)

// shutdownTimeout bounds how long in-flight requests get to finish.
var shutdownTimeout = 30 * time.Second

// Run listens on cfg.ListenAddr and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	return serve(ctx, cfg, ln)
}

// serve returns only after in-flight requests have drained or shutdownTimeout
// has passed, so the pool, cleaner and database outlive every handler.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	workDir := filepath.Join(cfg.DataDir, "work")
	for _, dir := range []string{cfg.DataDir, workDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			ln.Close()
			return err
		}
	}

	checkTools(cfg)

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		ln.Close()
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, markbot.MigrationFS); err != nil {
		ln.Close()
		return err
	}
	slog.Info("database ready")

	cleaner := &cleanup.Cleaner{
		DB:       database,
		WorkDir:  workDir,
		TTL:      cfg.OutputTTL(),
		Interval: cfg.CleanupInterval(),
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	sseHub := sse.New()

	pool := worker.NewPool(database, cfg, sseHub)
	pool.Start(ctx)
	defer pool.Stop()

	apiRL := handler.PerMinute(cfg.RateLimitPerMin)
	defer apiRL.Stop()

	h := handler.New(database, cfg, sseHub)
	router := h.Routes(apiRL)

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "addr", ln.Addr().String(), "watermark", cfg.WatermarkPath)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	slog.Info("server stopped")

	return nil
}

// checkTools logs problems with external dependencies up front. None of them
// is fatal: each request reports its own failure.
func checkTools(cfg *config.Config) {
	if _, err := os.Stat(cfg.WatermarkPath); err != nil {
		slog.Warn("watermark asset not readable", "path", cfg.WatermarkPath, "error", err)
	}
	for _, bin := range []string{cfg.FFmpegPath, cfg.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			slog.Warn("binary not found", "name", bin, "error", err)
		}
	}
}
