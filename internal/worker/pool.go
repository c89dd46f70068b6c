package worker

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/YannKr/markbot/internal/config"
	"github.com/YannKr/markbot/internal/db"
	"github.com/YannKr/markbot/internal/model"
	"github.com/YannKr/markbot/internal/sse"
	"github.com/YannKr/markbot/internal/watermark"
)

// Pool runs queued video jobs on a fixed number of goroutines. ffmpeg blocks
// for the whole transcode, so each worker handles one job at a time and the
// pool size bounds the number of concurrent ffmpeg processes.
type Pool struct {
	database     *sql.DB
	cfg          *config.Config
	sseHub       *sse.Hub
	pollInterval time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func NewPool(database *sql.DB, cfg *config.Config, sseHub *sse.Hub) *Pool {
	return &Pool{database: database, cfg: cfg, sseHub: sseHub, pollInterval: 2 * time.Second}
}

func (p *Pool) Start(ctx context.Context) {
	if n, err := db.FailInterruptedJobs(p.database); err != nil {
		slog.Error("fail interrupted jobs", "error", err)
	} else if n > 0 {
		slog.Warn("marked interrupted jobs as failed", "count", n)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	workers := p.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("worker pool started", "workers", workers)
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := db.ClaimNextJob(p.database, model.JobTypeVideo)
		if err != nil {
			slog.Error("claim job", "worker", id, "error", err)
			sleep(ctx, p.pollInterval)
			continue
		}
		if job == nil {
			sleep(ctx, p.pollInterval)
			continue
		}

		slog.Info("processing job", "worker", id, "job", job.ID)
		p.processJob(ctx, job)
	}
}

func (p *Pool) processJob(ctx context.Context, job *model.Job) {
	p.publish(job.ID, "running", nil)

	runCtx := ctx
	if timeout := p.cfg.VideoTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome, err := watermark.VideoWatermark(runCtx, watermark.VideoParams{
		InputPath:     job.InputPath,
		WatermarkPath: p.cfg.WatermarkPath,
		OutputPath:    job.OutputPath,
		FFmpegPath:    p.cfg.FFmpegPath,
	})

	switch {
	case err != nil:
		// No exit status to record: ffmpeg never started or was killed.
		diag := err.Error()
		if outcome.Stderr != "" {
			diag += "\n" + outcome.Stderr
		}
		slog.Error("job failed", "job", job.ID, "error", err)
		p.fail(job.ID, nil, diag)

	case !outcome.Success:
		slog.Warn("ffmpeg failed", "job", job.ID, "exit_code", outcome.ExitCode,
			"stderr", db.TailDiagnostic(outcome.Stderr))
		p.fail(job.ID, &outcome.ExitCode, outcome.Diagnostic())

	default:
		if err := db.CompleteJob(p.database, job.ID, outcome.ExitCode); err != nil {
			// Without the COMPLETED row the file cannot be fetched; report
			// the job as failed so event listeners are released.
			slog.Error("complete job", "job", job.ID, "error", err)
			p.fail(job.ID, nil, "record completion: "+err.Error())
			return
		}
		p.recordMedia(ctx, job)
		slog.Info("job completed", "job", job.ID)
		p.publish(job.ID, "completed", nil)
	}
}

func (p *Pool) fail(jobID string, exitCode *int, diagnostic string) {
	if err := db.FailJob(p.database, jobID, exitCode, diagnostic); err != nil {
		slog.Error("fail job", "job", jobID, "error", err)
	}
	p.publish(jobID, "failed", map[string]interface{}{"exit_code": exitCode})
}

// recordMedia stores the output dimensions. ffprobe is optional; a failure
// here does not affect the job result.
func (p *Pool) recordMedia(ctx context.Context, job *model.Job) {
	info, err := watermark.Probe(ctx, p.cfg.FFprobePath, job.OutputPath)
	if err != nil {
		slog.Debug("probe output", "job", job.ID, "error", err)
		return
	}
	if err := db.SetJobMedia(p.database, job.ID, info.Width, info.Height, info.DurationSecs); err != nil {
		slog.Error("set job media", "job", job.ID, "error", err)
	}
}

func (p *Pool) publish(jobID, eventType string, extra map[string]interface{}) {
	if p.sseHub == nil {
		return
	}
	payload := map[string]interface{}{"id": jobID, "state": eventType}
	for k, v := range extra {
		payload[k] = v
	}
	p.sseHub.PublishJSON(Topic(jobID), eventType, payload)
}

// Topic is the SSE topic carrying events for one job.
func Topic(jobID string) string {
	return "job:" + jobID
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
