package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// Open opens (creating if needed) the job store under dataDir/db.
func Open(dataDir string) (*sql.DB, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	database, err := sql.Open("sqlite", filepath.Join(dbDir, "markbot.db")+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := database.Exec(p); err != nil {
			database.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	// Workers claim jobs with UPDATE ... RETURNING; a single connection keeps
	// claims serialized.
	database.SetMaxOpenConns(1)

	return database, nil
}

// SQLiteTime scans the TEXT timestamps written by strftime in the schema.
type SQLiteTime struct {
	Time  time.Time
	Valid bool
}

func (st *SQLiteTime) Scan(src interface{}) error {
	st.Valid = false
	switch v := src.(type) {
	case nil:
		st.Time = time.Time{}
		return nil
	case string:
		for _, f := range []string{timeFormat, time.RFC3339Nano, "2006-01-02 15:04:05"} {
			t, err := time.Parse(f, v)
			if err == nil {
				st.Time, st.Valid = t, true
				return nil
			}
		}
		return fmt.Errorf("SQLiteTime: cannot parse %q", v)
	case time.Time:
		st.Time, st.Valid = v, true
	case int64:
		st.Time, st.Valid = time.Unix(v, 0).UTC(), true
	default:
		return fmt.Errorf("SQLiteTime: unsupported type %T", src)
	}
	return nil
}

// Ptr returns nil for NULL columns.
func (st SQLiteTime) Ptr() *time.Time {
	if !st.Valid {
		return nil
	}
	t := st.Time
	return &t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
