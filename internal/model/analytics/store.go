package analytics

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrEmptyCatalog = errors.New("catalog has no models")

// Store exposes the selectable models and capabilities to handlers and the chat controller.
type Store interface {
	List() []Model
	FindByID(id string) (Model, bool)
	Default() Model
	Features() []Feature
}

// MemoryStore implements Store over an in-memory catalog that can be swapped at runtime.
type MemoryStore struct {
	mu      sync.RWMutex
	catalog Catalog
}

// NewMemoryStore validates the catalog and returns a store holding a copy of it.
func NewMemoryStore(catalog Catalog) (*MemoryStore, error) {
	s := &MemoryStore{}
	if err := s.Replace(catalog); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace validates and installs a new catalog. The previous catalog stays in place on error.
func (s *MemoryStore) Replace(catalog Catalog) error {
	normalized, err := normalize(catalog)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.catalog = normalized
	s.mu.Unlock()
	return nil
}

// List returns the selectable models in display order.
func (s *MemoryStore) List() []Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Model(nil), s.catalog.Models...)
}

// FindByID looks up a model by identifier.
func (s *MemoryStore) FindByID(id string) (Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.catalog.Models {
		if item.ID == id {
			return item, true
		}
	}
	return Model{}, false
}

// Default returns the preselected model.
func (s *MemoryStore) Default() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.catalog.Models {
		if item.ID == s.catalog.Default {
			return item
		}
	}
	return s.catalog.Models[0]
}

// Features returns the capability list.
func (s *MemoryStore) Features() []Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	features := make([]Feature, len(s.catalog.Features))
	for i, f := range s.catalog.Features {
		f.Examples = append([]string(nil), f.Examples...)
		features[i] = f
	}
	return features
}

func normalize(catalog Catalog) (Catalog, error) {
	out := Catalog{Default: strings.TrimSpace(catalog.Default)}
	seen := make(map[string]struct{}, len(catalog.Models))

	for _, m := range catalog.Models {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return Catalog{}, fmt.Errorf("catalog model with empty id")
		}
		if _, dup := seen[m.ID]; dup {
			return Catalog{}, fmt.Errorf("duplicate catalog model %q", m.ID)
		}
		seen[m.ID] = struct{}{}
		if strings.TrimSpace(m.Label) == "" {
			m.Label = m.ID
		}
		out.Models = append(out.Models, m)
	}

	if len(out.Models) == 0 {
		return Catalog{}, ErrEmptyCatalog
	}
	if out.Default == "" {
		out.Default = out.Models[0].ID
	} else if _, ok := seen[out.Default]; !ok {
		return Catalog{}, fmt.Errorf("default model %q is not in the catalog", out.Default)
	}

	for _, f := range catalog.Features {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		f.Examples = append([]string(nil), f.Examples...)
		out.Features = append(out.Features, f)
	}

	return out, nil
}
