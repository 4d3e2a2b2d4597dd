package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecotek/binderlab/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func strPtr(s string) *string { return &s }

// testRowValues renders t the way binder_tests returns it.
func testRowValues(t *testing.T, bt *model.BinderTest) []any {
	t.Helper()
	status, fields, extracted, provenance, err := testArgs(bt)
	require.NoError(t, err)

	vals := []any{bt.ID, bt.Name, bt.BinderSource, bt.Lab, bt.FolderName, status, bt.Version}
	for _, f := range fields {
		switch v := f.(type) {
		case *float64:
			if v == nil {
				vals = append(vals, nil)
			} else {
				vals = append(vals, v)
			}
		case *string:
			if v == nil {
				vals = append(vals, nil)
			} else {
				vals = append(vals, v)
			}
		}
	}
	return append(vals, strPtr(extracted), strPtr(provenance), bt.CreatedAt, bt.UpdatedAt)
}

var editColumns = []string{"field", "old_value", "new_value", "edited_at"}

func sampleBinderTest() *model.BinderTest {
	rec := model.NewRecord()
	rec.Set(model.PgHigh, model.Number(76))
	rec.Set(model.PgLow, model.Number(-28))
	rec.Set(model.PerformanceGrade, model.Text("PG 76-28"))
	rec.Set(model.DSRData, model.Curve(map[int]float64{64: 3.2}))

	ext := model.NewRecord()
	ext.Set(model.PgHigh, model.Number(70))

	created := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	return &model.BinderTest{
		ID:         "t-1",
		Name:       "SBS-3 batch 12",
		Lab:        "Ecotek Lab",
		FolderName: "t-1",
		Status:     model.StatusReady,
		Version:    4,
		Fields:     rec,
		Extracted:  ext,
		Provenance: model.Provenance{
			model.PgHigh:           model.SourceManual,
			model.PgLow:            model.SourceParser,
			model.PerformanceGrade: model.SourceParser,
			model.DSRData:          model.SourceAI,
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}
}

func TestPostgresStore_GetTest(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	want := sampleBinderTest()
	editedAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, binder_source, .* FROM binder_tests WHERE id = \$1`).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows(testColumns).AddRow(testRowValues(t, want)...))
	mock.ExpectQuery(`SELECT field, old_value, new_value, edited_at FROM manual_edits`).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows(editColumns).
			AddRow("pgHigh", "70", "76", editedAt).
			AddRow("retiredField", "1", "2", editedAt))

	got, err := s.GetTest(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, "SBS-3 batch 12", got.Name)
	assert.Equal(t, model.StatusReady, got.Status)
	assert.Equal(t, int64(4), got.Version)
	assert.True(t, got.Fields.Get(model.PgHigh).Equal(model.Number(76)))
	assert.True(t, got.Fields.Get(model.PerformanceGrade).Equal(model.Text("PG 76-28")))
	assert.True(t, got.Fields.Get(model.DSRData).Equal(model.Curve(map[int]float64{64: 3.2})))
	assert.True(t, got.Fields.IsNull(model.Ductility))
	assert.True(t, got.Extracted.Get(model.PgHigh).Equal(model.Number(70)))
	assert.Equal(t, model.SourceManual, got.Provenance[model.PgHigh])
	assert.Equal(t, model.SourceAI, got.Provenance[model.DSRData])

	require.Len(t, got.Edits, 1, "unknown field names are skipped")
	assert.Equal(t, model.PgHigh, got.Edits[0].Field)
	assert.True(t, got.Edits[0].OldValue.Equal(model.Number(70)))
	assert.Equal(t, editedAt, got.Edits[0].EditedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTest_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM binder_tests WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetTest(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "get test missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateTest(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO binder_tests \(id, name, binder_source`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	bt := &model.BinderTest{Name: "SBS-3", Fields: model.NewRecord()}
	require.NoError(t, s.CreateTest(context.Background(), bt))

	assert.NotEmpty(t, bt.ID)
	assert.Equal(t, bt.ID, bt.FolderName)
	assert.Equal(t, model.StatusPendingReview, bt.Status)
	assert.Equal(t, int64(1), bt.Version)
	assert.False(t, bt.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateTest_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO binder_tests`).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	err := s.CreateTest(context.Background(), &model.BinderTest{Name: "dup", FolderName: "shared"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert test")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListTests_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	bt := sampleBinderTest()

	mock.ExpectQuery(`FROM binder_tests WHERE true AND status = \$1 AND \(name ILIKE \$2 OR binder_source ILIKE \$2 OR lab ILIKE \$2\) ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("READY", "%sbs%", 5, 10).
		WillReturnRows(pgxmock.NewRows(testColumns).AddRow(testRowValues(t, bt)...))

	tests, err := s.ListTests(context.Background(), TestFilter{Status: model.StatusReady, Search: "sbs", Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "t-1", tests[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListTests_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM binder_tests WHERE true ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(testColumns))

	tests, err := s.ListTests(context.Background(), TestFilter{})
	require.NoError(t, err)
	assert.Empty(t, tests)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveTest(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	bt := sampleBinderTest()
	edit := model.ManualEdit{
		Field:    model.PgHigh,
		OldValue: model.Number(70),
		NewValue: model.Number(76),
		EditedAt: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE binder_tests SET status = \$1, .* WHERE id = \$\d+ AND version = \$\d+`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO manual_edits`).
		WithArgs(pgxmock.AnyArg(), "t-1", "pgHigh", "70", "76", edit.EditedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveTest(context.Background(), bt, []model.ManualEdit{edit}))
	assert.Equal(t, int64(5), bt.Version)
	assert.Len(t, bt.Edits, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveTest_VersionConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	bt := sampleBinderTest()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE binder_tests`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT version FROM binder_tests WHERE id = \$1`).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(6)))
	mock.ExpectRollback()

	err := s.SaveTest(context.Background(), bt, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersionConflict))
	assert.Contains(t, err.Error(), "version 6, not 4")
	assert.Equal(t, int64(4), bt.Version, "version unchanged on conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveTest_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	bt := sampleBinderTest()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE binder_tests`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT version FROM binder_tests`).
		WithArgs("t-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.SaveTest(context.Background(), bt, nil)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveTest_EditInsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	bt := sampleBinderTest()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE binder_tests`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO manual_edits`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.SaveTest(context.Background(), bt, []model.ManualEdit{{Field: model.PgLow, NewValue: model.Number(-22)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert edit pgLow")
	assert.Equal(t, int64(4), bt.Version)
	assert.Empty(t, bt.Edits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveTest_BeginFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := s.SaveTest(context.Background(), sampleBinderTest(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin save test")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Documents(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO source_documents`).
		WithArgs(pgxmock.AnyArg(), "t-1", "report.pdf", "t-1/original/report.pdf", "application/pdf", int64(1024), created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM source_documents WHERE test_id = \$1`).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "test_id", "original_name", "stored_key", "mime_type", "size_bytes", "created_at"}).
			AddRow("d-1", "t-1", "report.pdf", "t-1/original/report.pdf", "application/pdf", int64(1024), created))

	doc := &model.SourceDocument{
		TestID: "t-1", OriginalName: "report.pdf", StoredKey: "t-1/original/report.pdf",
		MimeType: "application/pdf", SizeBytes: 1024, CreatedAt: created,
	}
	require.NoError(t, s.AddDocument(context.Background(), doc))
	assert.NotEmpty(t, doc.ID)

	docs, err := s.ListDocuments(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d-1", docs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEdits_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM manual_edits WHERE test_id = \$1`).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows(editColumns))

	edits, err := s.ListEdits(context.Background(), "t-1")
	require.NoError(t, err)
	assert.NotNil(t, edits)
	assert.Empty(t, edits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PingAndMigrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS binder_tests`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: migrate")
	assert.NoError(t, mock.ExpectationsWereMet())
}
