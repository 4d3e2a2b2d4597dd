package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ecotek/binderlab/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. The pool is limited to one connection so the pragmas hold for every
// statement and writers queue instead of failing with SQLITE_BUSY.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

var (
	sqliteSelectTest = `SELECT ` + strings.Join(testColumns, ", ") + ` FROM binder_tests`

	sqliteInsertTest = `INSERT INTO binder_tests (` + strings.Join(testColumns, ", ") + `) VALUES (` +
		placeholders(1, len(testColumns), false) + `)`

	sqliteUpdateTest = `UPDATE binder_tests SET status = ?, ` + assignments(fieldColumns, 0, false) +
		`, extracted = ?, provenance = ?, updated_at = ?, version = version + 1 WHERE id = ? AND version = ?`
)

var sqliteMigration = `
CREATE TABLE IF NOT EXISTS binder_tests (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	binder_source TEXT NOT NULL DEFAULT '',
	lab           TEXT NOT NULL DEFAULT '',
	folder_name   TEXT NOT NULL UNIQUE,
	status        TEXT NOT NULL DEFAULT 'PENDING_REVIEW',
	version       INTEGER NOT NULL DEFAULT 1,
` + fieldColumnDDL("REAL", "TEXT", "TEXT") + `	extracted     TEXT,
	provenance    TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_binder_tests_status ON binder_tests(status);
CREATE INDEX IF NOT EXISTS idx_binder_tests_created_at ON binder_tests(created_at);

CREATE TABLE IF NOT EXISTS source_documents (
	id            TEXT PRIMARY KEY,
	test_id       TEXT NOT NULL REFERENCES binder_tests(id) ON DELETE CASCADE,
	original_name TEXT NOT NULL,
	stored_key    TEXT NOT NULL,
	mime_type     TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_source_documents_test_id ON source_documents(test_id);

CREATE TABLE IF NOT EXISTS manual_edits (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	test_id   TEXT NOT NULL REFERENCES binder_tests(id) ON DELETE CASCADE,
	field     TEXT NOT NULL,
	old_value TEXT,
	new_value TEXT,
	edited_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_manual_edits_test_id ON manual_edits(test_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTest(ctx context.Context, t *model.BinderTest) error {
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

	if _, err := s.db.ExecContext(ctx, sqliteInsertTest, args...); err != nil {
		return eris.Wrap(err, "sqlite: insert test")
	}
	return nil
}

func (s *SQLiteStore) GetTest(ctx context.Context, id string) (*model.BinderTest, error) {
	row := newTestRow()
	err := s.db.QueryRowContext(ctx, sqliteSelectTest+` WHERE id = ?`, id).Scan(row.dests()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get test %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get test %s", id)
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

func (s *SQLiteStore) ListTests(ctx context.Context, filter TestFilter) ([]model.BinderTest, error) {
	query := sqliteSelectTest + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query += ` AND (name LIKE ? OR binder_source LIKE ? OR lab LIKE ?)`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tests")
	}
	defer rows.Close() //nolint:errcheck

	var tests []model.BinderTest
	for rows.Next() {
		row := newTestRow()
		if err := rows.Scan(row.dests()...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan test")
		}
		t, err := row.decode()
		if err != nil {
			return nil, err
		}
		tests = append(tests, *t)
	}
	return tests, eris.Wrap(rows.Err(), "sqlite: list tests iterate")
}

func (s *SQLiteStore) SaveTest(ctx context.Context, t *model.BinderTest, edits []model.ManualEdit) error {
	status, fields, extracted, provenance, err := testArgs(t)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save test")
	}
	defer tx.Rollback() //nolint:errcheck

	args := []any{status}
	args = append(args, fields...)
	args = append(args, extracted, provenance, now, t.ID, t.Version)

	res, err := tx.ExecContext(ctx, sqliteUpdateTest, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update test %s", t.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM binder_tests WHERE id = ?`, t.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "sqlite: update test %s", t.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: check version %s", t.ID)
		}
		return eris.Wrapf(ErrVersionConflict, "sqlite: test %s is at version %d, not %d", t.ID, current, t.Version)
	}

	for _, e := range edits {
		row, err := encodeEdit(e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manual_edits (id, test_id, field, old_value, new_value, edited_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), t.ID, row.field, row.oldValue, row.newValue, row.editedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert edit %s", row.field)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit save test")
	}
	t.Version++
	t.UpdatedAt = now
	t.Edits = append(t.Edits, edits...)
	return nil
}

func (s *SQLiteStore) AddDocument(ctx context.Context, d *model.SourceDocument) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_documents (id, test_id, original_name, stored_key, mime_type, size_bytes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TestID, d.OriginalName, d.StoredKey, d.MimeType, d.SizeBytes, d.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert document %s", d.OriginalName)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, testID string) ([]model.SourceDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, original_name, stored_key, mime_type, size_bytes, created_at FROM source_documents WHERE test_id = ? ORDER BY created_at, original_name`,
		testID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close() //nolint:errcheck

	var docs []model.SourceDocument
	for rows.Next() {
		var d model.SourceDocument
		if err := rows.Scan(&d.ID, &d.TestID, &d.OriginalName, &d.StoredKey, &d.MimeType, &d.SizeBytes, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) ListEdits(ctx context.Context, testID string) ([]model.ManualEdit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, old_value, new_value, edited_at FROM manual_edits WHERE test_id = ? ORDER BY seq`,
		testID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list edits")
	}
	defer rows.Close() //nolint:errcheck

	edits := []model.ManualEdit{}
	for rows.Next() {
		var r editRow
		if err := rows.Scan(&r.field, &r.oldValue, &r.newValue, &r.editedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan edit")
		}
		e, ok, err := r.decode()
		if err != nil {
			return nil, err
		}
		if ok {
			edits = append(edits, e)
		}
	}
	return edits, eris.Wrap(rows.Err(), "sqlite: list edits iterate")
}
