package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/aiextract"
	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/ocr"
	"github.com/ecotek/binderlab/internal/parser"
)

// Fallback fills fields the parser could not find. *aiextract.Extractor
// implements it.
type Fallback interface {
	ExtractFallback(ctx context.Context, missing []model.Field, files []model.SourceFile) (*aiextract.Result, error)
}

// Outcome is the result of one orchestrator run.
type Outcome struct {
	Record     model.Record
	Provenance model.Provenance
	// Missing lists the fields still empty after both stages.
	Missing []model.Field
	// UsedAI is true when the fallback contributed at least one value.
	UsedAI bool
	// AI is the fallback's reply, nil when the stage did not run.
	AI *aiextract.Result
	// Degraded collects extraction failures that were absorbed.
	Degraded []error
}

// Orchestrator runs the deterministic parser and escalates to the AI
// fallback for whatever is still missing.
type Orchestrator struct {
	text     ocr.Extractor
	fallback Fallback
}

// NewOrchestrator wires the text extractor and fallback. Either may be nil:
// without a text extractor the parser stage is skipped, without a fallback
// the AI stage is.
func NewOrchestrator(text ocr.Extractor, fallback Fallback) *Orchestrator {
	return &Orchestrator{text: text, fallback: fallback}
}

// Run extracts a record from the source files. Text extraction and AI
// transport failures degrade the outcome instead of failing it; only
// cancellation of ctx is returned as an error.
func (o *Orchestrator) Run(ctx context.Context, files []model.SourceFile) (*Outcome, error) {
	return o.RunKeeping(ctx, files, nil)
}

// RunKeeping is Run for a test whose fields in keep are already settled.
// Those fields are never requested from the AI fallback. keep may be nil.
func (o *Orchestrator) RunKeeping(ctx context.Context, files []model.SourceFile, keep func(model.Field) bool) (*Outcome, error) {
	out := &Outcome{Record: model.NewRecord(), Provenance: model.Provenance{}}

	if pdf, ok := firstPDF(files); ok && o.text != nil {
		text, err := o.text.ExtractText(ctx, pdf.Name, pdf.Data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, eris.Wrap(ctxErr, "pipeline: extract text")
			}
			zap.L().Error("pipeline: text extraction failed",
				zap.String("file", pdf.Name),
				zap.Error(err),
			)
			out.Degraded = append(out.Degraded, err)
		} else {
			out.Record = parser.Parse(text)
		}
	}

	for _, f := range out.Record.Filled() {
		out.Provenance[f] = model.SourceParser
	}

	if out.Record.IsNull(model.PerformanceGrade) {
		hi, okHi := out.Record.Float(model.PgHigh)
		lo, okLo := out.Record.Float(model.PgLow)
		if okHi && okLo {
			out.Record.Set(model.PerformanceGrade, model.Text(model.FormatGrade(hi, lo)))
			out.Provenance[model.PerformanceGrade] = model.SourceParser
		}
	}

	var missing []model.Field
	for _, f := range model.FindMissing(out.Record) {
		if keep == nil || !keep(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 && o.fallback != nil && hasVisual(files) {
		res, err := o.fallback.ExtractFallback(ctx, missing, files)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, eris.Wrap(ctxErr, "pipeline: ai fallback")
			}
			zap.L().Error("pipeline: ai fallback failed", zap.Error(err))
			out.Degraded = append(out.Degraded, err)
		case res != nil:
			out.AI = res
			out.UsedAI = mergeAI(out, res.Record)
		}
	}

	out.Missing = model.FindMissing(out.Record)
	return out, nil
}

// mergeAI copies AI values into fields that are still empty. Parser values
// are never replaced.
func mergeAI(out *Outcome, ai model.Record) bool {
	used := false
	for _, f := range ai.Filled() {
		if !out.Record.IsNull(f) {
			continue
		}
		out.Record.Set(f, ai.Get(f))
		out.Provenance[f] = model.SourceAI
		used = true
	}
	if !used {
		return false
	}
	// An AI reading in one viscosity unit fills the other.
	for _, d := range deriveViscosity(&out.Record, nil) {
		out.Provenance[d.Field] = out.Provenance[d.From]
	}
	return true
}

func firstPDF(files []model.SourceFile) (model.SourceFile, bool) {
	for _, f := range files {
		if f.IsPDF() {
			return f, true
		}
	}
	return model.SourceFile{}, false
}

func hasVisual(files []model.SourceFile) bool {
	for _, f := range files {
		if f.IsPDF() || f.IsImage() {
			return true
		}
	}
	return false
}
