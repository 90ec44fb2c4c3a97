package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/forgepoint/gentuner/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode so concurrent appenders do not starve readers.
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
CREATE TABLE IF NOT EXISTS attempts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	uid             TEXT NOT NULL UNIQUE,
	component_type  TEXT NOT NULL,
	item_key        TEXT,
	parameters      TEXT NOT NULL,
	raw_signals     TEXT NOT NULL,
	composite_score REAL NOT NULL,
	success         INTEGER NOT NULL DEFAULT 0,
	archived        INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_attempts_scope ON attempts(component_type, item_key);
CREATE INDEX IF NOT EXISTS idx_attempts_component_type ON attempts(component_type);
CREATE INDEX IF NOT EXISTS idx_attempts_score ON attempts(composite_score);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, rec *model.AttemptRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, eris.Wrap(err, "sqlite: append attempt")
	}
	stampAttempt(rec)

	paramsJSON, signalsJSON, err := marshalAttemptColumns(rec)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: append attempt")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (uid, component_type, item_key, parameters, raw_signals, composite_score, success, archived, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UID, rec.ComponentType, nullIfEmpty(rec.ItemKey),
		string(paramsJSON), string(signalsJSON),
		rec.CompositeScore, rec.Success, rec.Archived, rec.CreatedAt,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert attempt")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	rec.ID = id
	return id, nil
}

func (s *SQLiteStore) AppendBulk(ctx context.Context, recs []model.AttemptRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	// Validate everything up front; a bulk load is all-or-nothing.
	for i := range recs {
		if err := recs[i].Validate(); err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk append record %d", i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk append begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range recs {
		rec := &recs[i]
		stampAttempt(rec)

		paramsJSON, signalsJSON, err := marshalAttemptColumns(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk append record %d", i)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO attempts (uid, component_type, item_key, parameters, raw_signals, composite_score, success, archived, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.UID, rec.ComponentType, nullIfEmpty(rec.ItemKey),
			string(paramsJSON), string(signalsJSON),
			rec.CompositeScore, rec.Success, rec.Archived, rec.CreatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk insert record %d", i)
		}
		if rec.ID, err = res.LastInsertId(); err != nil {
			return 0, eris.Wrap(err, "sqlite: bulk last insert id")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk append commit")
	}
	return int64(len(recs)), nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.AttemptRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, uid, component_type, item_key, parameters, raw_signals, composite_score, success, archived, created_at FROM attempts WHERE id = ?`,
		id)
	rec, err := scanAttempt(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get attempt %d", id)
	}
	return rec, nil
}

func (s *SQLiteStore) Query(ctx context.Context, filter AttemptFilter) ([]model.AttemptRecord, error) {
	query := `SELECT id, uid, component_type, item_key, parameters, raw_signals, composite_score, success, archived, created_at FROM attempts WHERE 1=1`
	var args []any

	if !filter.IncludeArchived {
		query += ` AND archived = 0`
	}
	if filter.SuccessOnly {
		query += ` AND success = 1`
	}
	if filter.MinScore > 0 {
		query += ` AND composite_score >= ?`
		args = append(args, filter.MinScore)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	if filter.Scope.ComponentType != "" && !filter.Scope.IsGlobal() {
		query += ` AND component_type = ?`
		args = append(args, filter.Scope.ComponentType)
		if filter.Scope.ItemKey != "" {
			query += ` AND item_key = ?`
			args = append(args, filter.Scope.ItemKey)
		}
	}
	query += ` ORDER BY id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query attempts")
	}
	defer rows.Close()

	var attempts []model.AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *rec)
	}
	return attempts, eris.Wrap(rows.Err(), "sqlite: query attempts iterate")
}

func (s *SQLiteStore) Count(ctx context.Context, filter AttemptFilter) (int, error) {
	query := `SELECT COUNT(*) FROM attempts WHERE 1=1`
	var args []any

	if !filter.IncludeArchived {
		query += ` AND archived = 0`
	}
	if filter.SuccessOnly {
		query += ` AND success = 1`
	}
	if filter.MinScore > 0 {
		query += ` AND composite_score >= ?`
		args = append(args, filter.MinScore)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	if filter.Scope.ComponentType != "" && !filter.Scope.IsGlobal() {
		query += ` AND component_type = ?`
		args = append(args, filter.Scope.ComponentType)
		if filter.Scope.ItemKey != "" {
			query += ` AND item_key = ?`
			args = append(args, filter.Scope.ItemKey)
		}
	}

	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count attempts")
}

func (s *SQLiteStore) Archive(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET archived = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: archive attempt %d", id)
	}
	return checkRowsAffected(res, "attempt", id)
}

// helpers

// stampAttempt fills the store-assigned fields that are blank on a fresh
// record. The id is assigned by the insert itself.
func stampAttempt(rec *model.AttemptRecord) {
	if rec.UID == "" {
		rec.UID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

func marshalAttemptColumns(rec *model.AttemptRecord) ([]byte, []byte, error) {
	paramsJSON, err := json.Marshal(rec.Parameters)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal parameters")
	}
	signalsJSON, err := json.Marshal(rec.RawSignals)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal raw signals")
	}
	return paramsJSON, signalsJSON, nil
}

func unmarshalAttemptColumns(rec *model.AttemptRecord, paramsJSON, signalsJSON []byte) error {
	if err := json.Unmarshal(paramsJSON, &rec.Parameters); err != nil {
		return eris.Wrap(err, "unmarshal parameters")
	}
	if err := json.Unmarshal(signalsJSON, &rec.RawSignals); err != nil {
		return eris.Wrap(err, "unmarshal raw signals")
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAttempt(row scannable) (*model.AttemptRecord, error) {
	var rec model.AttemptRecord
	var itemKey sql.NullString
	var paramsJSON, signalsJSON string

	err := row.Scan(&rec.ID, &rec.UID, &rec.ComponentType, &itemKey,
		&paramsJSON, &signalsJSON, &rec.CompositeScore,
		&rec.Success, &rec.Archived, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan attempt")
	}

	rec.ItemKey = itemKey.String
	if err := unmarshalAttemptColumns(&rec, []byte(paramsJSON), []byte(signalsJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan attempt")
	}
	return &rec, nil
}
