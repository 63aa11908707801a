package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/djsydney04/wrapshot/internal/scenes"
)

// Store persists jobs and breakdown results in SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to the database at path, creating it if needed, and applies
// migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; WAL readers are not blocked by it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Create inserts a PENDING job for the document. The partial unique index on
// active jobs makes this the conditional write: a second insert while one is
// still PENDING or IN_PROGRESS fails with ErrAlreadyRunning.
func (s *Store) Create(ctx context.Context, documentID string) (*Job, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, errors.New("document id is required")
	}
	now := s.now().UTC()
	job := &Job{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, document_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.DocumentID, job.Status, toMillis(now), toMillis(now),
	)
	if isUniqueViolation(err) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// MarkInProgress advances a PENDING job and stamps its start time.
func (s *Store) MarkInProgress(ctx context.Context, id string) (*Job, error) {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusInProgress, now, now, id, StatusPending,
	)
	if err := guarded(res, err, "mark in progress"); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// UpdateProgress records chunk counters on a running job.
func (s *Store) UpdateProgress(ctx context.Context, id string, p Progress) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET total_chunks = ?, chunks_processed = ?, chunks_failed = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		p.TotalChunks, p.ChunksProcessed, p.ChunksFailed, toMillis(s.now()), id, StatusInProgress,
	)
	return guarded(res, err, "update progress")
}

// Complete marks a running job COMPLETE and upserts the document's breakdown
// in the same transaction.
func (s *Store) Complete(ctx context.Context, id string, result scenes.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(s.now())
	var documentID string
	err = tx.QueryRowContext(ctx,
		`UPDATE jobs SET status = ?, scene_count = ?, error_message = NULL, finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?
         RETURNING document_id`,
		StatusComplete, result.TotalScenes, now, now, id, StatusInProgress,
	).Scan(&documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotActive
	}
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO breakdowns (document_id, job_id, result_json, total_pages, total_scenes, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (document_id) DO UPDATE SET
             job_id = excluded.job_id,
             result_json = excluded.result_json,
             total_pages = excluded.total_pages,
             total_scenes = excluded.total_scenes,
             updated_at = excluded.updated_at`,
		documentID, id, string(payload), result.TotalPages, result.TotalScenes, now,
	); err != nil {
		return fmt.Errorf("upsert breakdown: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	return nil
}

// Fail marks a running job FAILED with a message.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed, message, now, now, id, StatusInProgress,
	)
	return guarded(res, err, "fail job")
}

// CancelStale cancels the document's non-terminal jobs that started (or, if
// never started, were created) longer than olderThan ago.
func (s *Store) CancelStale(ctx context.Context, documentID string, olderThan time.Duration) (int64, error) {
	return s.cancelStale(ctx, `AND document_id = ?`, olderThan, documentID)
}

// CancelAllStale runs the staleness sweep across every document.
func (s *Store) CancelAllStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.cancelStale(ctx, ``, olderThan)
}

func (s *Store) cancelStale(ctx context.Context, filter string, olderThan time.Duration, args ...any) (int64, error) {
	now := s.now()
	cutoff := toMillis(now.Add(-olderThan))
	msg := fmt.Sprintf("cancelled: no terminal status within %s", olderThan)

	query := `UPDATE jobs SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
         WHERE status IN (?, ?) AND COALESCE(started_at, created_at) < ? ` + filter
	params := append([]any{
		StatusCancelled, msg, toMillis(now), toMillis(now),
		StatusPending, StatusInProgress, cutoff,
	}, args...)

	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("cancel stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

const jobColumns = `id, document_id, status, error_message, total_chunks, chunks_processed,
    chunks_failed, scene_count, created_at, updated_at, started_at, finished_at`

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListByDocument returns every job for a document, newest first.
func (s *Store) ListByDocument(ctx context.Context, documentID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE document_id = ? ORDER BY created_at DESC, rowid DESC`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Breakdown returns the latest completed result for a document.
func (s *Store) Breakdown(ctx context.Context, documentID string) (*Breakdown, error) {
	var (
		b       Breakdown
		payload string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, job_id, result_json, updated_at FROM breakdowns WHERE document_id = ?`,
		documentID,
	).Scan(&b.DocumentID, &b.JobID, &payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &b.Result); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}
	b.UpdatedAt = fromMillis(updated)
	return &b, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job      Job
		status   string
		errMsg   sql.NullString
		created  int64
		updated  int64
		started  sql.NullInt64
		finished sql.NullInt64
	)
	if err := scanner.Scan(
		&job.ID,
		&job.DocumentID,
		&status,
		&errMsg,
		&job.TotalChunks,
		&job.ChunksProcessed,
		&job.ChunksFailed,
		&job.SceneCount,
		&created,
		&updated,
		&started,
		&finished,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.ErrorMessage = errMsg.String
	job.CreatedAt = fromMillis(created)
	job.UpdatedAt = fromMillis(updated)
	job.StartedAt = nullableMillis(started)
	job.FinishedAt = nullableMillis(finished)
	return &job, nil
}

// guarded turns a status-guarded UPDATE that touched no row into ErrNotActive.
func guarded(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotActive
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullableMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
