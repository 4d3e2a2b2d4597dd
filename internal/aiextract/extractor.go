// Package aiextract asks a multimodal model for the binder-test fields the
// deterministic parser could not find.
package aiextract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/resilience"
	"github.com/ecotek/binderlab/pkg/anthropic"
)

const (
	systemPrompt = "You are a lab assistant extracting asphalt binder test data. Respond ONLY with valid JSON."

	defaultMaxTokens = 2048

	// defaultConfidence is recorded when the reply carries no usable
	// confidence of its own.
	defaultConfidence = 0.9
)

// ExtractionError is an I/O level failure of the AI call: transport errors,
// exhausted retries or an open circuit. Malformed replies are not errors.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "aiextract: extraction failed: " + e.Err.Error() }

func (e *ExtractionError) Unwrap() error { return e.Err }

// Result is the partial record returned by the model.
type Result struct {
	Record     model.Record
	Confidence float64
	// Raw is the cleaned JSON reply, kept for the ai_extraction artifact.
	Raw   json.RawMessage
	Usage anthropic.TokenUsage
}

// Options configures an Extractor.
type Options struct {
	Model     string
	MaxTokens int64
	// RatePerMinute limits calls across the process. Zero means unlimited.
	RatePerMinute int
	Policy        resilience.Policy
}

// Extractor wraps the AI fallback call. A nil client means no credential is
// configured and every call returns an empty result.
type Extractor struct {
	client  anthropic.Client
	opts    Options
	limiter *rate.Limiter
}

// New creates an Extractor. client may be nil.
func New(client anthropic.Client, opts Options) *Extractor {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	e := &Extractor{client: client, opts: opts}
	if opts.RatePerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	return e
}

// Enabled reports whether a backend is configured.
func (e *Extractor) Enabled() bool { return e != nil && e.client != nil }

// ExtractFallback asks for the missing fields only. It returns an empty
// result, not an error, when no backend is configured, when no file is an
// image or PDF, or when the reply is not valid JSON. Transport failures
// beyond the retry budget come back as *ExtractionError.
func (e *Extractor) ExtractFallback(ctx context.Context, missing []model.Field, files []model.SourceFile) (*Result, error) {
	empty := &Result{Record: model.NewRecord()}
	if !e.Enabled() || len(missing) == 0 {
		return empty, nil
	}

	attachments := visualAttachments(files)
	if len(attachments) == 0 {
		return empty, nil
	}

	req := anthropic.MessageRequest{
		Model:     e.opts.Model,
		MaxTokens: e.opts.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages: []anthropic.Message{{
			Role:        "user",
			Content:     buildPrompt(missing),
			Attachments: attachments,
		}},
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &ExtractionError{Err: eris.Wrap(err, "aiextract: rate limit wait")}
		}
	}

	resp, err := resilience.Call(ctx, e.opts.Policy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := e.client.CreateMessage(ctx, req)
		if err != nil {
			if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
				return nil, resilience.NewTransientError(err, code)
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	resp.Usage.LogCost(e.opts.Model, "ai_fallback")

	result := parseReply(resp.Text(), missing)
	result.Usage = resp.Usage
	return result, nil
}

func visualAttachments(files []model.SourceFile) []anthropic.Attachment {
	var out []anthropic.Attachment
	for _, f := range files {
		if !f.IsPDF() && !f.IsImage() {
			continue
		}
		if len(f.Data) == 0 {
			continue
		}
		out = append(out, anthropic.Attachment{MediaType: f.MimeType, Data: f.Data})
	}
	return out
}

func buildPrompt(missing []model.Field) string {
	return fmt.Sprintf(
		"Provide JSON for only these fields: %s. Use null for any field you cannot find. "+
			"Numbers must be plain JSON numbers without units. dsrData maps test temperature in °C to G*/sinδ in kPa. "+
			"Keys: %s.",
		strings.Join(model.FieldNames(missing), ", "),
		strings.Join(model.FieldNames(model.Fields()), ", "),
	)
}

// parseReply keeps only the requested fields. Anything unparseable yields an
// empty record.
func parseReply(text string, requested []model.Field) *Result {
	result := &Result{Record: model.NewRecord(), Confidence: defaultConfidence}

	cleaned := cleanJSON(text)
	raw, err := model.DecodeObject([]byte(cleaned))
	if err != nil {
		zap.L().Warn("aiextract: reply is not a JSON object",
			zap.Int("reply_len", len(text)),
			zap.Error(err),
		)
		result.Confidence = 0
		return result
	}
	result.Raw = json.RawMessage(cleaned)

	if c, ok := model.CoerceNumber(raw["confidence"]).Float(); ok && c >= 0 && c <= 1 {
		result.Confidence = c
	}

	wanted := make(map[model.Field]bool, len(requested))
	for _, f := range requested {
		wanted[f] = true
	}
	for name, v := range raw {
		f, ok := model.ParseField(name)
		if !ok || !wanted[f] {
			continue
		}
		result.Record.Set(f, model.Coerce(f, v))
	}
	return result
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
