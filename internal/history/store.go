// Package history keeps a SQLite ledger of generated reports and the scores
// computed for each of their rows.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Report statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS reports (
	report_id     TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL,
	status        TEXT NOT NULL,
	error         TEXT,
	row_count     INTEGER NOT NULL DEFAULT 0,
	archive_path  TEXT,
	archive_size  INTEGER NOT NULL DEFAULT 0,
	archive_sha   TEXT
);

CREATE TABLE IF NOT EXISTS row_scores (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id     TEXT NOT NULL,
	row_id        TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	clip_score    REAL NOT NULL,
	lpips_score   REAL NOT NULL,
	measured      INTEGER NOT NULL,
	FOREIGN KEY (report_id) REFERENCES reports(report_id)
);

CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
`

// #endregion schema

// Score is one row's recorded scores.
type Score struct {
	RowID      string  `json:"row_id"`
	RunID      string  `json:"run_id"`
	Similarity float64 `json:"clip_score"`
	Distance   float64 `json:"lpips_score"`
	Measured   bool    `json:"lpips_measured"`
}

// Report is one pipeline run.
type Report struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Rows        int       `json:"rows"`
	ArchivePath string    `json:"archive_path,omitempty"`
	ArchiveSize int64     `json:"archive_size"`
	SHA256      string    `json:"sha256,omitempty"`
	Scores      []Score   `json:"scores,omitempty"`
}

// NewID returns a fresh report id.
func NewID() string {
	return uuid.New().String()
}

// Store manages the report ledger.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createdAtLayout keeps every stored timestamp the same width so that text
// ordering matches time ordering.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record inserts r and its scores in one transaction. An empty ID is
// replaced with a new one and a zero CreatedAt with the current time; the
// stored values are returned.
func (s *Store) Record(ctx context.Context, r Report) (Report, error) {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Report{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (report_id, created_at, status, error, row_count, archive_path, archive_size, archive_sha)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.Format(createdAtLayout), r.Status, r.Error, r.Rows, r.ArchivePath, r.ArchiveSize, r.SHA256,
	)
	if err != nil {
		return Report{}, fmt.Errorf("insert report: %w", err)
	}

	for _, sc := range r.Scores {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO row_scores (report_id, row_id, run_id, clip_score, lpips_score, measured)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, sc.RowID, sc.RunID, sc.Similarity, sc.Distance, boolToInt(sc.Measured),
		)
		if err != nil {
			return Report{}, fmt.Errorf("insert score for row %s: %w", sc.RowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Report{}, fmt.Errorf("commit: %w", err)
	}
	return r, nil
}

// List returns up to limit reports, newest first, with their scores.
func (s *Store) List(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_id, created_at, status, COALESCE(error, ''), row_count,
		        COALESCE(archive_path, ''), archive_size, COALESCE(archive_sha, '')
		 FROM reports ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}

	var reports []Report
	for rows.Next() {
		var r Report
		var created string
		if err := rows.Scan(&r.ID, &created, &r.Status, &r.Error, &r.Rows, &r.ArchivePath, &r.ArchiveSize, &r.SHA256); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.CreatedAt, err = time.Parse(createdAtLayout, created)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Scores are loaded after the cursor is closed; the pool has a single
	// connection.
	for i := range reports {
		scores, err := s.scores(ctx, reports[i].ID)
		if err != nil {
			return nil, err
		}
		reports[i].Scores = scores
	}
	return reports, nil
}

func (s *Store) scores(ctx context.Context, reportID string) ([]Score, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_id, run_id, clip_score, lpips_score, measured
		 FROM row_scores WHERE report_id = ? ORDER BY id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var scores []Score
	for rows.Next() {
		var sc Score
		var measured int
		if err := rows.Scan(&sc.RowID, &sc.RunID, &sc.Similarity, &sc.Distance, &measured); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		sc.Measured = measured != 0
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
