package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ecotek/binderlab/internal/model"
)

var (
	// ErrNotFound is returned when a test or document does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrVersionConflict is returned when a test changed since it was read.
	ErrVersionConflict = eris.New("store: version conflict")
)

// TestFilter specifies criteria for listing binder tests.
type TestFilter struct {
	Status model.Status `json:"status,omitempty"`
	Search string       `json:"search,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store persists binder tests, their source documents and correction
// history.
type Store interface {
	// Tests
	CreateTest(ctx context.Context, t *model.BinderTest) error
	GetTest(ctx context.Context, id string) (*model.BinderTest, error)
	ListTests(ctx context.Context, filter TestFilter) ([]model.BinderTest, error)
	// SaveTest writes canonical fields, extraction output, provenance and
	// status if t.Version still matches the stored row, and appends edits
	// to the audit log in the same transaction. On success t.Version is
	// incremented.
	SaveTest(ctx context.Context, t *model.BinderTest, edits []model.ManualEdit) error

	// Documents
	AddDocument(ctx context.Context, d *model.SourceDocument) error
	ListDocuments(ctx context.Context, testID string) ([]model.SourceDocument, error)

	// Audit
	ListEdits(ctx context.Context, testID string) ([]model.ManualEdit, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
