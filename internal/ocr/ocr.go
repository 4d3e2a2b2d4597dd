// Package ocr turns PDF bytes into plain text for the deterministic parser.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ecotek/binderlab/internal/config"
)

// Extractor extracts the page-ordered text content of a PDF.
type Extractor interface {
	ExtractText(ctx context.Context, name string, data []byte) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
