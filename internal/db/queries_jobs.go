package db

import (
	"database/sql"
	"time"

	"github.com/YannKr/markbot/internal/model"
)

// MaxDiagnosticBytes caps the stored ffmpeg stderr. ffmpeg prints its
// banner first and the actual error last, so the tail is kept.
const MaxDiagnosticBytes = 4096

const jobColumns = `id, job_type, state, original_name, input_path, output_path,
	exit_code, COALESCE(diagnostic, ''), width, height, duration_secs,
	created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var exitCode, width, height sql.NullInt64
	var duration sql.NullFloat64
	var createdAt, startedAt, completedAt SQLiteTime
	err := row.Scan(
		&j.ID, &j.JobType, &j.State, &j.OriginalName, &j.InputPath, &j.OutputPath,
		&exitCode, &j.Diagnostic, &width, &height, &duration,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	j.ExitCode = intPtr(exitCode)
	j.Width = intPtr(width)
	j.Height = intPtr(height)
	if duration.Valid {
		d := duration.Float64
		j.DurationSecs = &d
	}
	j.CreatedAt = createdAt.Time
	j.StartedAt = startedAt.Ptr()
	j.CompletedAt = completedAt.Ptr()
	return j, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// EnqueueJob inserts a PENDING job for the worker pool.
func EnqueueJob(database *sql.DB, j *model.Job) error {
	_, err := database.Exec(
		`INSERT INTO jobs (id, job_type, state, original_name, input_path, output_path)
		 VALUES (?, ?, 'PENDING', ?, ?, ?)`,
		j.ID, j.JobType, j.OriginalName, j.InputPath, j.OutputPath,
	)
	return err
}

// StartJob inserts a job that is processed inline by the caller, already in
// the RUNNING state.
func StartJob(database *sql.DB, j *model.Job) error {
	_, err := database.Exec(
		`INSERT INTO jobs (id, job_type, state, original_name, input_path, output_path, started_at)
		 VALUES (?, ?, 'RUNNING', ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`,
		j.ID, j.JobType, j.OriginalName, j.InputPath, j.OutputPath,
	)
	return err
}

// ClaimNextJob atomically moves the oldest PENDING job of jobType to RUNNING
// and returns it, or nil when the queue is empty.
func ClaimNextJob(database *sql.DB, jobType string) (*model.Job, error) {
	row := database.QueryRow(`
		UPDATE jobs
		SET state = 'RUNNING', started_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = 'PENDING' AND job_type = ?
			ORDER BY created_at ASC LIMIT 1
		)
		RETURNING `+jobColumns, jobType)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func CompleteJob(database *sql.DB, id string, exitCode int) error {
	_, err := database.Exec(
		`UPDATE jobs SET state = 'COMPLETED', exit_code = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, exitCode, id,
	)
	return err
}

// FailJob records a terminal failure. exitCode is nil when no process ran.
func FailJob(database *sql.DB, id string, exitCode *int, diagnostic string) error {
	_, err := database.Exec(
		`UPDATE jobs SET state = 'FAILED', exit_code = ?, diagnostic = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, exitCode, TailDiagnostic(diagnostic), id,
	)
	return err
}

func SetJobMedia(database *sql.DB, id string, width, height int, durationSecs float64) error {
	_, err := database.Exec(
		`UPDATE jobs SET width = ?, height = ?, duration_secs = ? WHERE id = ?`,
		width, height, durationSecs, id,
	)
	return err
}

// MarkJobDelivered flips a COMPLETED job to DELIVERED. It returns false if
// the job was not COMPLETED.
func MarkJobDelivered(database *sql.DB, id string) (bool, error) {
	res, err := database.Exec(`UPDATE jobs SET state = 'DELIVERED' WHERE id = ? AND state = 'COMPLETED'`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func GetJob(database *sql.DB, id string) (*model.Job, error) {
	j, err := scanJob(database.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ListExpiredJobs returns finished jobs whose files are still on disk and
// whose completion predates cutoff.
func ListExpiredJobs(database *sql.DB, cutoff time.Time) ([]model.Job, error) {
	rows, err := database.Query(`
		SELECT `+jobColumns+` FROM jobs
		WHERE state IN ('COMPLETED', 'FAILED', 'DELIVERED')
		  AND completed_at IS NOT NULL AND completed_at < ?
		ORDER BY completed_at ASC`, formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func ExpireJob(database *sql.DB, id string) error {
	_, err := database.Exec(`UPDATE jobs SET state = 'EXPIRED' WHERE id = ?`, id)
	return err
}

// FailInterruptedJobs marks jobs left RUNNING by a previous process as
// FAILED. They are not re-queued.
func FailInterruptedJobs(database *sql.DB) (int64, error) {
	res, err := database.Exec(
		`UPDATE jobs SET state = 'FAILED', diagnostic = 'interrupted by restart',
		        completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE state = 'RUNNING'`,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TailDiagnostic trims s to its last MaxDiagnosticBytes bytes.
func TailDiagnostic(s string) string {
	if len(s) <= MaxDiagnosticBytes {
		return s
	}
	return "..." + s[len(s)-MaxDiagnosticBytes:]
}
