package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/markbot/internal/db"
	"github.com/YannKr/markbot/internal/model"
)

// Cleaner removes the work directories of finished jobs once they are older
// than TTL, and work directories that no job refers to.
type Cleaner struct {
	DB       *sql.DB
	WorkDir  string
	TTL      time.Duration
	Interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started", "interval", c.Interval, "ttl", c.TTL)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("cleanup scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.RunOnce()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

func (c *Cleaner) RunOnce() {
	cutoff := time.Now().Add(-c.TTL)

	jobs, err := db.ListExpiredJobs(c.DB, cutoff)
	if err != nil {
		slog.Error("cleanup: list expired jobs", "error", err)
	} else {
		for i := range jobs {
			c.expire(&jobs[i])
		}
	}

	c.sweepOrphans(cutoff)
}

func (c *Cleaner) expire(j *model.Job) {
	dir := j.WorkDir()
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("cleanup: remove work dir", "dir", dir, "error", err)
		return
	}
	if err := db.ExpireJob(c.DB, j.ID); err != nil {
		slog.Error("cleanup: expire job", "job", j.ID, "error", err)
		return
	}
	slog.Info("cleanup: expired job", "job", j.ID, "state", j.State)
}

// sweepOrphans removes stale work directories with no matching job row, left
// behind by uploads that failed before the job was recorded.
func (c *Cleaner) sweepOrphans(cutoff time.Time) {
	entries, err := os.ReadDir(c.WorkDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cleanup: read work dir", "dir", c.WorkDir, "error", err)
		}
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		j, err := db.GetJob(c.DB, e.Name())
		if err != nil || (j != nil && j.State != model.StateExpired) {
			continue
		}
		dir := filepath.Join(c.WorkDir, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("cleanup: remove orphan dir", "dir", dir, "error", err)
			continue
		}
		slog.Info("cleanup: removed orphan work dir", "dir", dir)
	}
}
