package compliance

import (
	"os"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNotLoaded is returned by Cache.Standard before Load or after
	// Invalidate.
	ErrNotLoaded = eris.New("compliance: standards not loaded")
	// ErrUnknownStandard is returned for a code that is not in the cache.
	ErrUnknownStandard = eris.New("compliance: unknown standard")
)

// standardsFile is the YAML layout of a standards file.
type standardsFile struct {
	Standards []Standard `yaml:"standards"`
}

// Cache holds the standards available to the evaluator. It is filled by
// Load and emptied by Invalidate; lookups never load implicitly.
type Cache struct {
	path    string
	primary string

	mu        sync.RWMutex
	loaded    bool
	standards map[string]Standard
}

// NewCache returns an empty cache reading path (may be empty for the
// built-in standard only). primary is the code used when a lookup passes
// an empty code.
func NewCache(path, primary string) *Cache {
	if primary == "" {
		primary = DefaultCode
	}
	return &Cache{path: path, primary: primary}
}

// Load reads the standards file. Entries override the built-in standard
// when their codes match.
func (c *Cache) Load() error {
	standards := map[string]Standard{DefaultCode: DefaultStandard()}

	if c.path != "" {
		data, err := os.ReadFile(c.path)
		if err != nil {
			return eris.Wrapf(err, "compliance: read %s", c.path)
		}
		var file standardsFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return eris.Wrapf(err, "compliance: parse %s", c.path)
		}
		for _, s := range file.Standards {
			if err := s.validate(); err != nil {
				return err
			}
			standards[s.Code] = s
		}
	}

	if _, ok := standards[c.primary]; !ok {
		return eris.Wrapf(ErrUnknownStandard, "compliance: primary standard %s", c.primary)
	}

	c.mu.Lock()
	c.standards = standards
	c.loaded = true
	c.mu.Unlock()

	zap.L().Info("compliance: standards loaded",
		zap.String("path", c.path),
		zap.Int("count", len(standards)),
	)
	return nil
}

// Invalidate drops the loaded standards.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.standards = nil
	c.loaded = false
	c.mu.Unlock()
}

// Reload reads the standards file again. On error the previously loaded
// standards stay in place.
func (c *Cache) Reload() error {
	return c.Load()
}

// Standard returns the standard for code, or the primary standard when code
// is empty.
func (c *Cache) Standard(code string) (Standard, error) {
	if code == "" {
		code = c.primary
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return Standard{}, ErrNotLoaded
	}
	s, ok := c.standards[code]
	if !ok {
		return Standard{}, eris.Wrapf(ErrUnknownStandard, "compliance: %s", code)
	}
	return s, nil
}

// Codes lists the loaded standard codes in sorted order.
func (c *Cache) Codes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.standards))
	for code := range c.standards {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
