// Command server runs the markbot HTTP service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/YannKr/markbot/internal/app"
	"github.com/YannKr/markbot/internal/config"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(cfg.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("markbot starting",
		"data_dir", cfg.DataDir,
		"workers", cfg.WorkerCount,
		"auth", cfg.AccessTokenHash != "",
		"trust_proxy", cfg.TrustProxy,
	)
	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
