package pipeline

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/artifact"
	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/store"
)

// ErrTestNotFound is returned for operations on an unknown test id.
var ErrTestNotFound = store.ErrNotFound

// ServiceOptions configures Service.
type ServiceOptions struct {
	// MissingTestNoop turns operations on an unknown test into a logged
	// no-op returning nil results instead of ErrTestNotFound.
	MissingTestNoop bool
	RecomputeGrade  bool
}

// Service runs extraction and review against persisted tests. Work on one
// test id is serialized in-process; the store's version check catches
// writers in other processes.
type Service struct {
	store     store.Store
	artifacts artifact.Store
	orch      *Orchestrator
	opts      ServiceOptions
	locks     keyedMutex
	now       func() time.Time
}

func NewService(st store.Store, artifacts artifact.Store, orch *Orchestrator, opts ServiceOptions) *Service {
	return &Service{
		store:     st,
		artifacts: artifacts,
		orch:      orch,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ExtractResult is returned by Extract.
type ExtractResult struct {
	Test    *model.BinderTest
	Outcome *Outcome
}

// ReviewOutcome is returned by Review.
type ReviewOutcome struct {
	Test     *model.BinderTest
	NewEdits []model.ManualEdit
}

// parsedArtifact is the content of metadata/parsed_deterministic.json.
type parsedArtifact struct {
	Record     model.Record     `json:"record"`
	Provenance model.Provenance `json:"provenance"`
	Missing    []string         `json:"missing"`
	UsedAI     bool             `json:"usedAi"`
	Degraded   []string         `json:"degraded,omitempty"`
}

// aiArtifact is the content of ai/ai_extraction.json.
type aiArtifact struct {
	Record     model.Record `json:"record"`
	Confidence float64      `json:"confidence"`
}

// CreateTest persists a new test in PENDING_REVIEW.
func (s *Service) CreateTest(ctx context.Context, t *model.BinderTest) error {
	t.Status = model.StatusPendingReview
	t.Fields = model.NewRecord()
	t.Extracted = model.NewRecord()
	t.Provenance = model.Provenance{}
	return eris.Wrap(s.store.CreateTest(ctx, t), "pipeline: create test")
}

// GetTest loads a test with its audit log.
func (s *Service) GetTest(ctx context.Context, id string) (*model.BinderTest, error) {
	t, err := s.store.GetTest(ctx, id)
	return t, eris.Wrapf(err, "pipeline: get test %s", id)
}

// AddDocument stores a source file under the test's original folder and
// records it.
func (s *Service) AddDocument(ctx context.Context, testID, name string, data []byte) (*model.SourceDocument, error) {
	unlock := s.locks.Lock(testID)
	defer unlock()

	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: add document to %s", testID)
	}

	doc := &model.SourceDocument{
		TestID:       t.ID,
		OriginalName: filepath.Base(name),
		StoredKey:    t.OriginalKey(name),
		MimeType:     MimeType(name, data),
		SizeBytes:    int64(len(data)),
	}
	if err := s.artifacts.Put(ctx, doc.StoredKey, data, doc.MimeType); err != nil {
		return nil, eris.Wrapf(err, "pipeline: store %s", name)
	}
	if err := s.store.AddDocument(ctx, doc); err != nil {
		return nil, eris.Wrapf(err, "pipeline: record %s", name)
	}
	return doc, nil
}

// Extract runs the orchestrator over the test's documents and stores the
// result as PENDING_REVIEW. Fields a reviewer set keep their value and
// manual provenance. The audit log is not touched.
func (s *Service) Extract(ctx context.Context, id string) (*ExtractResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	log := zap.L().With(zap.String("test_id", id))

	t, err := s.store.GetTest(ctx, id)
	if err != nil {
		return nil, s.missing(err, "extract", id)
	}

	files, err := s.loadFiles(ctx, t)
	if err != nil {
		return nil, err
	}

	outcome, err := s.orch.RunKeeping(ctx, files, t.Provenance.IsManual)
	if err != nil {
		return nil, err
	}

	fields, prov := applyManual(outcome, t)
	t.Extracted = outcome.Record
	t.Fields = fields
	t.Provenance = prov
	t.Status = model.StatusPendingReview

	parsed := parsedArtifact{
		Record:     outcome.Record,
		Provenance: outcome.Provenance,
		Missing:    model.FieldNames(outcome.Missing),
		UsedAI:     outcome.UsedAI,
	}
	for _, e := range outcome.Degraded {
		parsed.Degraded = append(parsed.Degraded, e.Error())
	}
	if err := artifact.PutJSON(ctx, s.artifacts, t.ArtifactKey(model.DirMetadata, model.ArtifactParsed), parsed); err != nil {
		return nil, eris.Wrap(err, "pipeline: write parsed artifact")
	}
	if outcome.UsedAI {
		ai := aiArtifact{Record: outcome.AI.Record, Confidence: outcome.AI.Confidence}
		if err := artifact.PutJSON(ctx, s.artifacts, t.ArtifactKey(model.DirAI, model.ArtifactAI), ai); err != nil {
			return nil, eris.Wrap(err, "pipeline: write ai artifact")
		}
	}

	if err := s.store.SaveTest(ctx, t, nil); err != nil {
		return nil, eris.Wrapf(err, "pipeline: save extraction %s", id)
	}

	log.Info("pipeline: extraction complete",
		zap.Int("files", len(files)),
		zap.Strings("missing", model.FieldNames(outcome.Missing)),
		zap.Bool("used_ai", outcome.UsedAI),
		zap.Int("degraded", len(outcome.Degraded)),
	)
	return &ExtractResult{Test: t, Outcome: outcome}, nil
}

// Review reconciles a reviewer submission, writes the final snapshot and
// marks the test READY.
func (s *Service) Review(ctx context.Context, id string, submitted map[string]any) (*ReviewOutcome, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.store.GetTest(ctx, id)
	if err != nil {
		return nil, s.missing(err, "review", id)
	}

	res := Reconcile(ReviewInput{
		Fields:     t.Fields,
		Extracted:  t.Extracted,
		Provenance: t.Provenance,
		Edits:      t.Edits,
		Attributes: AttributesOf(t),
		Submitted:  submitted,
	}, ReconcileOptions{RecomputeGrade: s.opts.RecomputeGrade}, s.now())

	if err := artifact.PutJSON(ctx, s.artifacts, t.ArtifactKey(model.DirMetadata, model.ArtifactFinal), res.Record); err != nil {
		return nil, eris.Wrap(err, "pipeline: write final snapshot")
	}

	t.Fields = res.Record
	t.Provenance = res.Provenance
	t.Status = model.StatusReady
	// SaveTest appends the new edits to t.Edits.
	if err := s.store.SaveTest(ctx, t, res.NewEdits); err != nil {
		return nil, eris.Wrapf(err, "pipeline: save review %s", id)
	}

	zap.L().Info("pipeline: review complete",
		zap.String("test_id", id),
		zap.Int("edits", len(res.NewEdits)),
	)
	return &ReviewOutcome{Test: t, NewEdits: res.NewEdits}, nil
}

// missing applies the configured not-found policy. It returns nil when the
// operation should end as a no-op.
func (s *Service) missing(err error, op, id string) error {
	if errors.Is(err, store.ErrNotFound) && s.opts.MissingTestNoop {
		zap.L().Info("pipeline: test not found, skipping", zap.String("op", op), zap.String("test_id", id))
		return nil
	}
	return eris.Wrapf(err, "pipeline: %s %s", op, id)
}

// loadFiles reads every document of t. A document that cannot be read is
// logged and skipped.
func (s *Service) loadFiles(ctx context.Context, t *model.BinderTest) ([]model.SourceFile, error) {
	docs, err := s.store.ListDocuments(ctx, t.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list documents %s", t.ID)
	}
	files := make([]model.SourceFile, 0, len(docs))
	for _, d := range docs {
		data, err := s.artifacts.Get(ctx, d.StoredKey)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "pipeline: load documents")
			}
			zap.L().Warn("pipeline: skipping unreadable document",
				zap.String("test_id", t.ID),
				zap.String("key", d.StoredKey),
				zap.Error(err),
			)
			continue
		}
		files = append(files, model.SourceFile{Name: d.OriginalName, MimeType: d.MimeType, Data: data})
	}
	return files, nil
}

// applyManual keeps reviewer-set fields over a fresh extraction. The
// counterpart of a reviewer-set value is rebuilt from it, so a fresh reading
// in the other unit or under the other name cannot contradict the reviewer.
func applyManual(o *Outcome, t *model.BinderTest) (model.Record, model.Provenance) {
	fields := o.Record.Clone()
	prov := o.Provenance.Clone()
	manual := t.Provenance.IsManual
	for _, f := range model.Fields() {
		if manual(f) {
			fields.Set(f, t.Fields.Get(f))
			prov[f] = model.SourceManual
		}
	}
	for _, f := range model.Fields() {
		if !manual(f) || fields.IsNull(f) {
			continue
		}
		for _, c := range counterparts(f) {
			if manual(c) {
				continue
			}
			pair := model.NewRecord()
			pair.Set(f, fields.Get(f))
			Derive(&pair, Attributes{}, nil)
			fields.Set(c, pair.Get(c))
			prov[c] = model.SourceManual
		}
	}
	return fields, prov
}

// MimeType guesses a document's type from its extension, then its content.
func MimeType(name string, data []byte) string {
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			return parsed
		}
		return mt
	}
	mt := http.DetectContentType(data)
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return mt
}
