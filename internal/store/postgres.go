package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/label-review/internal/config"
	"github.com/sells-group/label-review/internal/db"
	"github.com/sells-group/label-review/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS validation_results (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	application_id         TEXT NOT NULL,
	category               TEXT NOT NULL,
	container_size_ml      DOUBLE PRECISION NOT NULL,
	disposition            TEXT NOT NULL,
	correction_window_days INTEGER NOT NULL DEFAULT 0,
	deadline               TIMESTAMPTZ,
	confidence             INTEGER NOT NULL DEFAULT 0,
	verdicts               JSONB NOT NULL,
	superseded             BOOLEAN NOT NULL DEFAULT false,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_validation_results_application ON validation_results(application_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_validation_results_current ON validation_results(application_id) WHERE NOT superseded;
`

const postgresResultColumns = `id, application_id, category, container_size_ml, disposition, correction_window_days, deadline, confidence, verdicts, superseded, created_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r *model.ValidationResult) error {
	prepareResult(r)

	verdictsJSON, err := json.Marshal(r.Verdicts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verdicts")
	}

	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE validation_results SET superseded = true WHERE application_id = $1 AND NOT superseded`,
			r.ApplicationID,
		); err != nil {
			return eris.Wrapf(err, "postgres: supersede results for %s", r.ApplicationID)
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO validation_results (`+postgresResultColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)`,
			r.ID, r.ApplicationID, string(r.Category), r.ContainerSizeML, string(r.Disposition),
			r.CorrectionWindowDays, r.Deadline, r.Confidence, verdictsJSON, r.CreatedAt,
		)
		return eris.Wrapf(err, "postgres: insert result for %s", r.ApplicationID)
	})
	if err != nil {
		return err
	}
	r.Superseded = false
	return nil
}

func (s *PostgresStore) LatestResult(ctx context.Context, applicationID string) (*model.ValidationResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresResultColumns+` FROM validation_results
		 WHERE application_id = $1 AND NOT superseded
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		applicationID,
	)

	r, err := scanPostgresResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest result for %s", applicationID)
	}
	return r, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.ValidationResult, error) {
	query := `SELECT ` + postgresResultColumns + ` FROM validation_results WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ApplicationID != "" {
		query += fmt.Sprintf(` AND application_id = $%d`, argIdx)
		args = append(args, filter.ApplicationID)
		argIdx++
	}
	if filter.ExcludeSuperseded {
		query += ` AND NOT superseded`
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var results []model.ValidationResult
	for rows.Next() {
		r, err := scanPostgresResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

// scanPostgresResult returns pgx.ErrNoRows unwrapped so callers can detect
// absence.
func scanPostgresResult(row pgx.Row) (*model.ValidationResult, error) {
	var (
		r                     model.ValidationResult
		category, disposition string
		verdictsJSON          []byte
	)

	err := row.Scan(&r.ID, &r.ApplicationID, &category, &r.ContainerSizeML, &disposition,
		&r.CorrectionWindowDays, &r.Deadline, &r.Confidence, &verdictsJSON, &r.Superseded, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Category = model.BeverageCategory(category)
	r.Disposition = model.Disposition(disposition)
	if err := json.Unmarshal(verdictsJSON, &r.Verdicts); err != nil {
		return nil, eris.Wrap(err, "unmarshal verdicts")
	}
	return &r, nil
}
