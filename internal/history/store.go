// Package history keeps a queryable ledger of controller outcomes in SQLite.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// Outcome statuses recorded in the ledger
const (
	OutcomeSuccess        = "success"
	OutcomeFailed         = "failed"
	OutcomeRetryScheduled = "retry_scheduled"
	OutcomeError          = "error"
)

// timestamps are fixed width so text ordering matches time ordering
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded controller outcome
type Run struct {
	ID              string    `json:"id"`
	ScheduleID      string    `json:"schedule_id"`
	ScheduleName    string    `json:"schedule_name"`
	Attempt         int       `json:"attempt"`
	Retry           bool      `json:"retry"`
	Status          string    `json:"status"`
	ExitCode        *int      `json:"exit_code,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	LogFile         string    `json:"log_file,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the ledger at dbPath
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "creating history directory for %s", dbPath), domain.ErrStoreIO)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "opening history %s", dbPath), domain.ErrStoreIO)
	}
	// one connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Mark(errors.Wrap(err, "configuring history database"), domain.ErrStoreIO)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Mark(errors.Wrap(err, "running migrations"), domain.ErrStoreIO)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a run. An empty ID is filled with a fresh uuid.
func (s *Store) Record(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	var exitCode sql.NullInt64
	if run.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*run.ExitCode), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, schedule_id, schedule_name, attempt, retry, status, exit_code,
			started_at, finished_at, duration_seconds, log_file, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ScheduleID,
		run.ScheduleName,
		run.Attempt,
		run.Retry,
		run.Status,
		exitCode,
		run.StartedAt.UTC().Format(tsLayout),
		run.FinishedAt.UTC().Format(tsLayout),
		run.DurationSeconds,
		run.LogFile,
		run.Error,
	)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "recording run for %s", run.ScheduleID), domain.ErrStoreIO)
	}
	return nil
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	ScheduleID string
	Limit      int
}

// ListRuns returns runs newest first
func (s *Store) ListRuns(opts ListOptions) ([]*Run, error) {
	query := `SELECT id, schedule_id, schedule_name, attempt, retry, status, exit_code,
		started_at, finished_at, duration_seconds, log_file, error FROM runs WHERE 1=1`
	var args []interface{}

	if opts.ScheduleID != "" {
		query += " AND schedule_id = ?"
		args = append(args, opts.ScheduleID)
	}
	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "listing runs"), domain.ErrStoreIO)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteForSchedule removes every run of a schedule
func (s *Store) DeleteForSchedule(scheduleID string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE schedule_id = ?`, scheduleID)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "deleting runs for %s", scheduleID), domain.ErrStoreIO)
	}
	return res.RowsAffected()
}

func scanRun(rows *sql.Rows) (*Run, error) {
	var (
		run                 Run
		exitCode            sql.NullInt64
		started, finished   string
		logFile, errMessage sql.NullString
	)
	err := rows.Scan(
		&run.ID,
		&run.ScheduleID,
		&run.ScheduleName,
		&run.Attempt,
		&run.Retry,
		&run.Status,
		&exitCode,
		&started,
		&finished,
		&run.DurationSeconds,
		&logFile,
		&errMessage,
	)
	if err != nil {
		return nil, errors.Wrap(err, "scanning run")
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.StartedAt, _ = time.Parse(tsLayout, started)
	run.FinishedAt, _ = time.Parse(tsLayout, finished)
	run.LogFile = logFile.String
	run.Error = errMessage.String
	return &run, nil
}
