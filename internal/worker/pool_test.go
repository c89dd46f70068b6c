package worker

import (
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	markbot "github.com/YannKr/markbot"
	"github.com/YannKr/markbot/internal/config"
	"github.com/YannKr/markbot/internal/db"
	"github.com/YannKr/markbot/internal/model"
	"github.com/YannKr/markbot/internal/sse"
)

type fixture struct {
	dir      string
	database *sql.DB
	cfg      *config.Config
	hub      *sse.Hub
	pool     *Pool
}

func script(t *testing.T, dir, name, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func newFixture(t *testing.T, ffmpegBody string) *fixture {
	t.Helper()
	dir := t.TempDir()

	database, err := db.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, markbot.MigrationFS))

	wm := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	wm.SetNRGBA(1, 1, color.NRGBA{255, 255, 255, 200})
	wmPath := filepath.Join(dir, "watermark.png")
	f, err := os.Create(wmPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, wm))
	require.NoError(t, f.Close())

	cfg := &config.Config{
		WatermarkPath: wmPath,
		FFmpegPath:    script(t, dir, "ffmpeg", ffmpegBody),
		FFprobePath: script(t, dir, "ffprobe",
			`echo '{"streams":[{"codec_type":"video","codec_name":"h264","width":320,"height":240}],"format":{"duration":"2.0"}}'`),
		WorkerCount: 2,
	}
	hub := sse.New()
	pool := NewPool(database, cfg, hub)
	pool.pollInterval = 10 * time.Millisecond

	return &fixture{dir: dir, database: database, cfg: cfg, hub: hub, pool: pool}
}

func (fx *fixture) enqueue(t *testing.T) *model.Job {
	t.Helper()
	id := uuid.NewString()
	work := filepath.Join(fx.dir, "work", id)
	require.NoError(t, os.MkdirAll(work, 0755))
	j := &model.Job{
		ID:         id,
		JobType:    model.JobTypeVideo,
		InputPath:  filepath.Join(work, "input.mp4"),
		OutputPath: filepath.Join(work, "output.mp4"),
	}
	require.NoError(t, os.WriteFile(j.InputPath, []byte("video"), 0644))
	require.NoError(t, db.EnqueueJob(fx.database, j))
	return j
}

func (fx *fixture) claim(t *testing.T) *model.Job {
	t.Helper()
	j, err := db.ClaimNextJob(fx.database, model.JobTypeVideo)
	require.NoError(t, err)
	require.NotNil(t, j)
	return j
}

const writeOutput = `eval last=\${$#}
printf 'watermarked' > "$last"`

func TestProcessJobSuccess(t *testing.T) {
	fx := newFixture(t, writeOutput)
	j := fx.enqueue(t)

	events, unsub := fx.hub.Subscribe(Topic(j.ID))
	defer unsub()

	fx.pool.processJob(context.Background(), fx.claim(t))

	got, err := db.GetJob(fx.database, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, got.State)
	assert.Equal(t, 0, *got.ExitCode)
	require.NotNil(t, got.Width)
	assert.Equal(t, 320, *got.Width)
	assert.Equal(t, 240, *got.Height)
	assert.FileExists(t, j.OutputPath)

	require.Len(t, events, 2)
	assert.Equal(t, "running", (<-events).Type)
	assert.Equal(t, "completed", (<-events).Type)
}

func TestProcessJobStateWriteFailurePublishesFailed(t *testing.T) {
	fx := newFixture(t, writeOutput)
	j := fx.enqueue(t)
	claimed := fx.claim(t)

	events, unsub := fx.hub.Subscribe(Topic(j.ID))
	defer unsub()

	require.NoError(t, fx.database.Close())
	fx.pool.processJob(context.Background(), claimed)

	require.Len(t, events, 2)
	assert.Equal(t, "running", (<-events).Type)
	evt := <-events
	assert.Equal(t, "failed", evt.Type)
	assert.Contains(t, evt.Data, `"exit_code":null`)
}

func TestProcessJobFFmpegFailure(t *testing.T) {
	fx := newFixture(t, `echo "moov atom not found" >&2
exit 1`)
	j := fx.enqueue(t)

	fx.pool.processJob(context.Background(), fx.claim(t))

	got, err := db.GetJob(fx.database, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, got.State)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 1, *got.ExitCode)
	assert.Contains(t, got.Diagnostic, "moov atom not found")
}

func TestProcessJobMissingWatermark(t *testing.T) {
	fx := newFixture(t, writeOutput)
	fx.cfg.WatermarkPath = filepath.Join(fx.dir, "gone.png")
	j := fx.enqueue(t)

	fx.pool.processJob(context.Background(), fx.claim(t))

	got, err := db.GetJob(fx.database, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, got.State)
	assert.Nil(t, got.ExitCode)
	assert.Contains(t, got.Diagnostic, "gone.png")
	assert.NoFileExists(t, j.OutputPath)
}

func TestProcessJobTimeout(t *testing.T) {
	fx := newFixture(t, "exec sleep 10")
	fx.cfg.VideoTimeoutSecs = 1
	j := fx.enqueue(t)

	start := time.Now()
	fx.pool.processJob(context.Background(), fx.claim(t))
	assert.Less(t, time.Since(start), 5*time.Second)

	got, err := db.GetJob(fx.database, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, got.State)
	assert.Contains(t, got.Diagnostic, "deadline exceeded")
}

func TestPoolDrainsQueue(t *testing.T) {
	fx := newFixture(t, writeOutput)
	jobs := []*model.Job{fx.enqueue(t), fx.enqueue(t), fx.enqueue(t)}

	fx.pool.Start(context.Background())
	defer fx.pool.Stop()

	for _, j := range jobs {
		id := j.ID
		assert.Eventually(t, func() bool {
			got, err := db.GetJob(fx.database, id)
			return err == nil && got != nil && got.State == model.StateCompleted
		}, 5*time.Second, 20*time.Millisecond)
	}
}
