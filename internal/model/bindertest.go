package model

import (
	"math"
	"path"
	"strconv"
	"strings"
	"time"
)

// Status is the review lifecycle state of a binder test.
type Status string

const (
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusReady         Status = "READY"
)

// BinderTest is a lab test of one binder sample together with its extracted
// fields, their provenance and the reviewer correction history.
type BinderTest struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	BinderSource string       `json:"binderSource,omitempty"`
	Lab          string       `json:"lab,omitempty"`
	FolderName   string       `json:"folderName"`
	Status       Status       `json:"status"`
	Version      int64        `json:"version"`
	Fields       Record       `json:"fields"`
	Extracted    Record       `json:"extracted"`
	Provenance   Provenance   `json:"provenance"`
	Edits        []ManualEdit `json:"manualEdits"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Folder sub-directories and artifact names of a test.
const (
	DirOriginal = "original"
	DirAI       = "ai"
	DirMetadata = "metadata"

	ArtifactParsed = "parsed_deterministic.json"
	ArtifactAI     = "ai_extraction.json"
	ArtifactFinal  = "final_validated.json"
)

// OriginalKey is the storage key of an uploaded source file.
func (t *BinderTest) OriginalKey(name string) string {
	return path.Join(t.FolderName, DirOriginal, path.Base(name))
}

// ArtifactKey is the storage key of a generated artifact.
func (t *BinderTest) ArtifactKey(dir, name string) string {
	return path.Join(t.FolderName, dir, name)
}

// SourceDocument is an uploaded file attached to a test.
type SourceDocument struct {
	ID           string    `json:"id"`
	TestID       string    `json:"testId"`
	OriginalName string    `json:"originalName"`
	StoredKey    string    `json:"storedKey"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SourceFile is a document's content loaded for extraction.
type SourceFile struct {
	Name     string
	MimeType string
	Data     []byte
}

func (f SourceFile) IsPDF() bool { return f.MimeType == "application/pdf" }

func (f SourceFile) IsImage() bool { return strings.HasPrefix(f.MimeType, "image/") }

// FormatGrade renders a performance grade such as "PG 76-28". The low
// temperature is written without its sign.
func FormatGrade(high, low float64) string {
	return "PG " + strconv.FormatFloat(high, 'f', -1, 64) + "-" + strconv.FormatFloat(math.Abs(low), 'f', -1, 64)
}
