package analytics

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// LoadFile decodes a TOML catalog such as:
//
//	default = "Analytic_Model_Comercial"
//
//	[[models]]
//	id = "Analytic_Model_Comercial"
//	label = "Modelo Comercial"
//
//	[[features]]
//	icon = "📊"
//	text = "Generar gráficas"
//	examples = ["Graficar la tendencia mensual de facturación en 2024."]
func LoadFile(path string) (Catalog, error) {
	var catalog Catalog
	meta, err := toml.DecodeFile(path, &catalog)
	if err != nil {
		return Catalog{}, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Catalog{}, fmt.Errorf("catalog %s has unknown keys: %v", path, undecoded)
	}
	return catalog, nil
}

// LoadStore builds a store from path, or from Seed when path is empty.
func LoadStore(path string) (*MemoryStore, error) {
	if path == "" {
		return NewMemoryStore(Seed())
	}

	catalog, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if len(catalog.Features) == 0 {
		catalog.Features = Seed().Features
	}
	return NewMemoryStore(catalog)
}

// Reload re-reads path into the store. A broken file leaves the current catalog untouched.
func (s *MemoryStore) Reload(path string) error {
	catalog, err := LoadFile(path)
	if err != nil {
		return err
	}
	if len(catalog.Features) == 0 {
		catalog.Features = s.Features()
	}
	return s.Replace(catalog)
}
