package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/forgepoint/gentuner/internal/db"
	"github.com/forgepoint/gentuner/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot append path.
var preparedStatements = map[string]string{
	"insert_attempt": `INSERT INTO attempts (uid, component_type, item_key, parameters, raw_signals, composite_score, success, archived, created_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
	"archive_attempt": `UPDATE attempts SET archived = true WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
CREATE TABLE IF NOT EXISTS attempts (
	id              BIGSERIAL PRIMARY KEY,
	uid             TEXT NOT NULL UNIQUE,
	component_type  TEXT NOT NULL,
	item_key        TEXT,
	parameters      JSONB NOT NULL,
	raw_signals     JSONB NOT NULL,
	composite_score DOUBLE PRECISION NOT NULL,
	success         BOOLEAN NOT NULL DEFAULT false,
	archived        BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_scope ON attempts(component_type, item_key) WHERE NOT archived;
CREATE INDEX IF NOT EXISTS idx_attempts_component_type ON attempts(component_type) WHERE NOT archived;
CREATE INDEX IF NOT EXISTS idx_attempts_score ON attempts(composite_score);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);
`

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

func (s *PostgresStore) Append(ctx context.Context, rec *model.AttemptRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, eris.Wrap(err, "postgres: append attempt")
	}
	stampAttempt(rec)

	paramsJSON, signalsJSON, err := marshalAttemptColumns(rec)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append attempt")
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO attempts (uid, component_type, item_key, parameters, raw_signals, composite_score, success, archived, created_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		rec.UID, rec.ComponentType, nullIfEmpty(rec.ItemKey),
		paramsJSON, signalsJSON,
		rec.CompositeScore, rec.Success, rec.Archived, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert attempt")
	}
	rec.ID = id
	return id, nil
}

// attemptCopyColumns is the column order used by the COPY bulk path.
var attemptCopyColumns = []string{
	"uid", "component_type", "item_key", "parameters", "raw_signals",
	"composite_score", "success", "archived", "created_at",
}

func (s *PostgresStore) AppendBulk(ctx context.Context, recs []model.AttemptRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	// Validate everything up front; a bulk load is all-or-nothing.
	for i := range recs {
		if err := recs[i].Validate(); err != nil {
			return 0, eris.Wrapf(err, "postgres: bulk append record %d", i)
		}
	}

	rows := make([][]any, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		stampAttempt(rec)

		paramsJSON, signalsJSON, err := marshalAttemptColumns(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: bulk append record %d", i)
		}
		rows = append(rows, []any{
			rec.UID, rec.ComponentType, nullIfEmpty(rec.ItemKey),
			paramsJSON, signalsJSON,
			rec.CompositeScore, rec.Success, rec.Archived, rec.CreatedAt,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "attempts", attemptCopyColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk append")
	}
	return n, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.AttemptRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, uid, component_type, item_key, parameters, raw_signals, composite_score, success, archived, created_at FROM attempts WHERE id = $1`,
		id)
	rec, err := scanPGAttempt(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get attempt %d", id)
	}
	return rec, nil
}

func (s *PostgresStore) Query(ctx context.Context, filter AttemptFilter) ([]model.AttemptRecord, error) {
	query := `SELECT id, uid, component_type, item_key, parameters, raw_signals, composite_score, success, archived, created_at FROM attempts WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.IncludeArchived {
		query += ` AND archived = false`
	}
	if filter.SuccessOnly {
		query += ` AND success = true`
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND composite_score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	if filter.Scope.ComponentType != "" && !filter.Scope.IsGlobal() {
		query += fmt.Sprintf(` AND component_type = $%d`, argIdx)
		args = append(args, filter.Scope.ComponentType)
		argIdx++
		if filter.Scope.ItemKey != "" {
			query += fmt.Sprintf(` AND item_key = $%d`, argIdx)
			args = append(args, filter.Scope.ItemKey)
			argIdx++
		}
	}
	query += ` ORDER BY id DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET $%d`, argIdx)
			args = append(args, filter.Offset)
			argIdx++
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query attempts")
	}
	defer rows.Close()

	var attempts []model.AttemptRecord
	for rows.Next() {
		rec, err := scanPGAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *rec)
	}
	return attempts, eris.Wrap(rows.Err(), "postgres: query attempts iterate")
}

func (s *PostgresStore) Count(ctx context.Context, filter AttemptFilter) (int, error) {
	query := `SELECT COUNT(*) FROM attempts WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.IncludeArchived {
		query += ` AND archived = false`
	}
	if filter.SuccessOnly {
		query += ` AND success = true`
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND composite_score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	if filter.Scope.ComponentType != "" && !filter.Scope.IsGlobal() {
		query += fmt.Sprintf(` AND component_type = $%d`, argIdx)
		args = append(args, filter.Scope.ComponentType)
		argIdx++
		if filter.Scope.ItemKey != "" {
			query += fmt.Sprintf(` AND item_key = $%d`, argIdx)
			args = append(args, filter.Scope.ItemKey)
			argIdx++
		}
	}

	var count int
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, eris.Wrap(err, "postgres: count attempts")
}

func (s *PostgresStore) Archive(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE attempts SET archived = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: archive attempt %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "attempt %d", id)
	}
	return nil
}

func scanPGAttempt(row pgx.Row) (*model.AttemptRecord, error) {
	var rec model.AttemptRecord
	var itemKey *string
	var paramsJSON, signalsJSON []byte

	err := row.Scan(&rec.ID, &rec.UID, &rec.ComponentType, &itemKey,
		&paramsJSON, &signalsJSON, &rec.CompositeScore,
		&rec.Success, &rec.Archived, &rec.CreatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan attempt")
	}

	if itemKey != nil {
		rec.ItemKey = *itemKey
	}
	if err := unmarshalAttemptColumns(&rec, paramsJSON, signalsJSON); err != nil {
		return nil, eris.Wrap(err, "postgres: scan attempt")
	}
	return &rec, nil
}
