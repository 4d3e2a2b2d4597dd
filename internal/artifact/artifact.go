// Package artifact stores uploaded source files and the JSON artifacts the
// pipeline writes next to them. Keys are slash-separated paths relative to
// the store root, e.g. "{folder}/metadata/final_validated.json".
package artifact

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ecotek/binderlab/internal/config"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = eris.New("artifact: not found")

// Store reads and writes objects by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.ArtifactsConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.Root), nil
	case "minio":
		return NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, eris.Errorf("artifact: unknown driver %q", cfg.Driver)
	}
}

// PutJSON writes v as indented JSON.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "artifact: encode %s", key)
	}
	return s.Put(ctx, key, b, "application/json")
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", eris.Errorf("artifact: invalid key %q", key)
	}
	return k, nil
}
