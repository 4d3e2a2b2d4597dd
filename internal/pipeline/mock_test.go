package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ecotek/binderlab/internal/aiextract"
	"github.com/ecotek/binderlab/internal/model"
)

// --- Text extractor mock ---

type mockText struct {
	mock.Mock
}

func (m *mockText) ExtractText(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

// --- Fallback mock ---

type mockFallback struct {
	mock.Mock
}

func (m *mockFallback) ExtractFallback(ctx context.Context, missing []model.Field, files []model.SourceFile) (*aiextract.Result, error) {
	args := m.Called(ctx, missing, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aiextract.Result), args.Error(1)
}

func aiResult(values map[model.Field]model.Value) *aiextract.Result {
	rec := model.NewRecord()
	for f, v := range values {
		rec.Set(f, v)
	}
	return &aiextract.Result{Record: rec, Confidence: 0.9}
}

var (
	reportPDF = model.SourceFile{Name: "report.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.7")}
	labPhoto  = model.SourceFile{Name: "label.png", MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
)

const reportText = "PG 76-28 ... Softening Point 58.5 ... Ductility 45 ... Viscosity @155 ... 155 ... 420"
