package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ecotek/binderlab/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	pgSelectTest = `SELECT ` + strings.Join(testColumns, ", ") + ` FROM binder_tests`

	pgInsertTest = `INSERT INTO binder_tests (` + strings.Join(testColumns, ", ") + `) VALUES (` +
		placeholders(1, len(testColumns), true) + `)`

	// $1 status, $2..$n+1 fields, then extracted, provenance, updated_at,
	// id and expected version.
	pgUpdateTest = func() string {
		n := len(fieldColumns)
		return fmt.Sprintf(
			`UPDATE binder_tests SET status = $1, %s, extracted = $%d, provenance = $%d, updated_at = $%d, version = version + 1 WHERE id = $%d AND version = $%d`,
			assignments(fieldColumns, 2, true), n+2, n+3, n+4, n+5, n+6,
		)
	}()
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_test":       pgSelectTest + ` WHERE id = $1`,
	"update_test":    pgUpdateTest,
	"insert_edit":    `INSERT INTO manual_edits (id, test_id, field, old_value, new_value, edited_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"list_edits":     `SELECT field, old_value, new_value, edited_at FROM manual_edits WHERE test_id = $1 ORDER BY edited_at, seq`,
	"list_documents": `SELECT id, test_id, original_name, stored_key, mime_type, size_bytes, created_at FROM source_documents WHERE test_id = $1 ORDER BY created_at, original_name`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
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

var postgresMigration = `
CREATE TABLE IF NOT EXISTS binder_tests (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	binder_source TEXT NOT NULL DEFAULT '',
	lab           TEXT NOT NULL DEFAULT '',
	folder_name   TEXT NOT NULL UNIQUE,
	status        TEXT NOT NULL DEFAULT 'PENDING_REVIEW',
	version       BIGINT NOT NULL DEFAULT 1,
` + fieldColumnDDL("DOUBLE PRECISION", "TEXT", "JSONB") + `	extracted     JSONB,
	provenance    JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_binder_tests_status ON binder_tests(status);
CREATE INDEX IF NOT EXISTS idx_binder_tests_created_at ON binder_tests(created_at DESC);

CREATE TABLE IF NOT EXISTS source_documents (
	id            TEXT PRIMARY KEY,
	test_id       TEXT NOT NULL REFERENCES binder_tests(id) ON DELETE CASCADE,
	original_name TEXT NOT NULL,
	stored_key    TEXT NOT NULL,
	mime_type     TEXT NOT NULL,
	size_bytes    BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_source_documents_test_id ON source_documents(test_id);

CREATE TABLE IF NOT EXISTS manual_edits (
	seq       BIGSERIAL,
	id        TEXT PRIMARY KEY,
	test_id   TEXT NOT NULL REFERENCES binder_tests(id) ON DELETE CASCADE,
	field     TEXT NOT NULL,
	old_value JSONB,
	new_value JSONB,
	edited_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_manual_edits_test_id ON manual_edits(test_id, edited_at);
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

func (s *PostgresStore) CreateTest(ctx context.Context, t *model.BinderTest) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.FolderName == "" {
		t.FolderName = t.ID
	}
	if t.Status == "" {
		t.Status = model.StatusPendingReview
	}
	now := time.Now().UTC()
	t.Version = 1
	t.CreatedAt, t.UpdatedAt = now, now

	status, fields, extracted, provenance, err := testArgs(t)
	if err != nil {
		return err
	}
	args := []any{t.ID, t.Name, t.BinderSource, t.Lab, t.FolderName, status, t.Version}
	args = append(args, fields...)
	args = append(args, extracted, provenance, t.CreatedAt, t.UpdatedAt)

	if _, err := s.pool.Exec(ctx, pgInsertTest, args...); err != nil {
		return eris.Wrap(err, "postgres: insert test")
	}
	return nil
}

func (s *PostgresStore) GetTest(ctx context.Context, id string) (*model.BinderTest, error) {
	row := newTestRow()
	err := s.pool.QueryRow(ctx, pgSelectTest+` WHERE id = $1`, id).Scan(row.dests()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get test %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get test %s", id)
	}
	t, err := row.decode()
	if err != nil {
		return nil, err
	}

	edits, err := s.ListEdits(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Edits = edits
	return t, nil
}

func (s *PostgresStore) ListTests(ctx context.Context, filter TestFilter) ([]model.BinderTest, error) {
	query := pgSelectTest + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(` AND (name ILIKE $%d OR binder_source ILIKE $%d OR lab ILIKE $%d)`, argIdx, argIdx, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tests")
	}
	defer rows.Close()

	var tests []model.BinderTest
	for rows.Next() {
		row := newTestRow()
		if err := rows.Scan(row.dests()...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan test")
		}
		t, err := row.decode()
		if err != nil {
			return nil, err
		}
		tests = append(tests, *t)
	}
	return tests, eris.Wrap(rows.Err(), "postgres: iterate tests")
}

func (s *PostgresStore) SaveTest(ctx context.Context, t *model.BinderTest, edits []model.ManualEdit) error {
	status, fields, extracted, provenance, err := testArgs(t)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save test")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	args := []any{status}
	args = append(args, fields...)
	args = append(args, extracted, provenance, now, t.ID, t.Version)

	tag, err := tx.Exec(ctx, pgUpdateTest, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update test %s", t.ID)
	}
	if tag.RowsAffected() == 0 {
		var current int64
		err := tx.QueryRow(ctx, `SELECT version FROM binder_tests WHERE id = $1`, t.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: update test %s", t.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: check version %s", t.ID)
		}
		return eris.Wrapf(ErrVersionConflict, "postgres: test %s is at version %d, not %d", t.ID, current, t.Version)
	}

	for _, e := range edits {
		row, err := encodeEdit(e)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO manual_edits (id, test_id, field, old_value, new_value, edited_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), t.ID, row.field, row.oldValue, row.newValue, row.editedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert edit %s", row.field)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit save test")
	}
	t.Version++
	t.UpdatedAt = now
	t.Edits = append(t.Edits, edits...)
	return nil
}

func (s *PostgresStore) AddDocument(ctx context.Context, d *model.SourceDocument) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_documents (id, test_id, original_name, stored_key, mime_type, size_bytes, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.TestID, d.OriginalName, d.StoredKey, d.MimeType, d.SizeBytes, d.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert document %s", d.OriginalName)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, testID string) ([]model.SourceDocument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, test_id, original_name, stored_key, mime_type, size_bytes, created_at FROM source_documents WHERE test_id = $1 ORDER BY created_at, original_name`,
		testID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.SourceDocument
	for rows.Next() {
		var d model.SourceDocument
		if err := rows.Scan(&d.ID, &d.TestID, &d.OriginalName, &d.StoredKey, &d.MimeType, &d.SizeBytes, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: iterate documents")
}

func (s *PostgresStore) ListEdits(ctx context.Context, testID string) ([]model.ManualEdit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT field, old_value, new_value, edited_at FROM manual_edits WHERE test_id = $1 ORDER BY edited_at, seq`,
		testID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list edits")
	}
	defer rows.Close()

	edits := []model.ManualEdit{}
	for rows.Next() {
		var r editRow
		if err := rows.Scan(&r.field, &r.oldValue, &r.newValue, &r.editedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan edit")
		}
		e, ok, err := r.decode()
		if err != nil {
			return nil, err
		}
		if ok {
			edits = append(edits, e)
		}
	}
	return edits, eris.Wrap(rows.Err(), "postgres: iterate edits")
}
