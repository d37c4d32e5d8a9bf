package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/label-review/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS validation_results (
	id                     TEXT PRIMARY KEY,
	application_id         TEXT NOT NULL,
	category               TEXT NOT NULL,
	container_size_ml      REAL NOT NULL,
	disposition            TEXT NOT NULL,
	correction_window_days INTEGER NOT NULL DEFAULT 0,
	deadline               DATETIME,
	confidence             INTEGER NOT NULL DEFAULT 0,
	verdicts               TEXT NOT NULL,
	superseded             INTEGER NOT NULL DEFAULT 0,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_validation_results_application ON validation_results(application_id, created_at);
CREATE INDEX IF NOT EXISTS idx_validation_results_disposition ON validation_results(disposition);
`

const sqliteResultColumns = `id, application_id, category, container_size_ml, disposition, correction_window_days, deadline, confidence, verdicts, superseded, created_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r *model.ValidationResult) error {
	prepareResult(r)

	verdictsJSON, err := json.Marshal(r.Verdicts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verdicts")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE validation_results SET superseded = 1 WHERE application_id = ? AND superseded = 0`,
		r.ApplicationID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: supersede results for %s", r.ApplicationID)
	}

	var deadline sql.NullTime
	if r.Deadline != nil {
		deadline = sql.NullTime{Time: r.Deadline.UTC(), Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO validation_results (`+sqliteResultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		r.ID, r.ApplicationID, string(r.Category), r.ContainerSizeML, string(r.Disposition),
		r.CorrectionWindowDays, deadline, r.Confidence, string(verdictsJSON), r.CreatedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert result for %s", r.ApplicationID)
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit result")
	}
	r.Superseded = false
	return nil
}

func (s *SQLiteStore) LatestResult(ctx context.Context, applicationID string) (*model.ValidationResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteResultColumns+` FROM validation_results
		 WHERE application_id = ? AND superseded = 0
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		applicationID,
	)

	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest result for %s", applicationID)
	}
	return r, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.ValidationResult, error) {
	query := `SELECT ` + sqliteResultColumns + ` FROM validation_results WHERE 1=1`
	var args []any

	if filter.ApplicationID != "" {
		query += ` AND application_id = ?`
		args = append(args, filter.ApplicationID)
	}
	if filter.ExcludeSuperseded {
		query += ` AND superseded = 0`
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var results []model.ValidationResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

// helpers

// prepareResult fills in the identity fields a caller may leave unset.
func prepareResult(r *model.ValidationResult) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
}

type scannable interface {
	Scan(dest ...any) error
}

// scanResult returns sql.ErrNoRows unwrapped so callers can detect absence.
func scanResult(row scannable) (*model.ValidationResult, error) {
	var (
		r                     model.ValidationResult
		category, disposition string
		deadline              sql.NullTime
		verdictsJSON          string
	)

	err := row.Scan(&r.ID, &r.ApplicationID, &category, &r.ContainerSizeML, &disposition,
		&r.CorrectionWindowDays, &deadline, &r.Confidence, &verdictsJSON, &r.Superseded, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Category = model.BeverageCategory(category)
	r.Disposition = model.Disposition(disposition)
	if deadline.Valid {
		t := deadline.Time
		r.Deadline = &t
	}
	if err := json.Unmarshal([]byte(verdictsJSON), &r.Verdicts); err != nil {
		return nil, eris.Wrap(err, "unmarshal verdicts")
	}
	return &r, nil
}
