// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/batchblast/pkg/types"
)

const dbFile = "jobs.db"

// Store is the SQLite job index kept at the work root.
type Store struct {
	db   *sql.DB
	root string
}

// OpenStore opens or creates root/jobs.db and its schema.
func OpenStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating work root: %w", err)
	}

	dbPath := filepath.Join(root, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, root: root}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL DEFAULT '',
			work_dir TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL CHECK (state IN ('submitting', 'waiting', 'polling', 'parsing', 'reporting', 'completed', 'failed')),
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save inserts job or updates the stored row with the same id.
func (s *Store) Save(ctx context.Context, job *types.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, request_id, work_dir, state, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			request_id = excluded.request_id,
			work_dir = excluded.work_dir,
			state = excluded.state,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		job.ID, job.RequestID, job.WorkDir, string(job.State), job.Error,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the stored job with id, or ErrJobNotFound.
func (s *Store) Get(ctx context.Context, id string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request_id, work_dir, state, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, err
}

// Find returns job id from the index, or from the job.yaml in its work
// directory under the store's root when the index has no row for it.
func (s *Store) Find(ctx context.Context, id string) (*types.Job, error) {
	job, err := s.Get(ctx, id)
	if !errors.Is(err, ErrJobNotFound) {
		return job, err
	}
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return nil, err
	}

	dir := filepath.Join(s.root, id)
	manifest, mErr := ReadManifest(dir)
	if errors.Is(mErr, os.ErrNotExist) {
		return nil, err
	}
	if mErr != nil {
		return nil, mErr
	}
	manifest.WorkDir = dir
	return manifest, nil
}

// List returns every stored job, newest first.
func (s *Store) List(ctx context.Context) ([]types.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, work_dir, state, error, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*types.Job, error) {
	var (
		job              types.Job
		state            string
		created, updated string
	)
	if err := sc.Scan(&job.ID, &job.RequestID, &job.WorkDir, &state, &job.Error, &created, &updated); err != nil {
		return nil, err
	}
	job.State = types.JobState(state)

	var err error
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parsing created_at of %s: %w", job.ID, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at of %s: %w", job.ID, err)
	}
	return &job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
