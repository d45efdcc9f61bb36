package analytics

import (
	"errors"
	"testing"
)

func TestSeedStoreDefaultsToComercial(t *testing.T) {
	store, err := NewMemoryStore(Seed())
	if err != nil {
		t.Fatalf("NewMemoryStore err: %v", err)
	}

	if got := store.Default().ID; got != "Analytic_Model_Comercial" {
		t.Fatalf("unexpected default model: %s", got)
	}
	if len(store.List()) != 3 {
		t.Fatalf("expected 3 seeded models, got %d", len(store.List()))
	}
	if _, ok := store.FindByID("Analytic_Model_Finanzas"); !ok {
		t.Fatal("expected finanzas model to be found")
	}
	if _, ok := store.FindByID("missing"); ok {
		t.Fatal("unexpected model found")
	}
}

func TestReplaceRejectsInvalidCatalog(t *testing.T) {
	store, err := NewMemoryStore(Seed())
	if err != nil {
		t.Fatalf("NewMemoryStore err: %v", err)
	}

	cases := map[string]Catalog{
		"empty":           {},
		"blank id":        {Models: []Model{{ID: " "}}},
		"duplicate":       {Models: []Model{{ID: "a"}, {ID: "a"}}},
		"unknown default": {Default: "b", Models: []Model{{ID: "a"}}},
	}
	for name, catalog := range cases {
		if err := store.Replace(catalog); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if got := store.Default().ID; got != "Analytic_Model_Comercial" {
		t.Fatalf("previous catalog should survive failed replace, default=%s", got)
	}
	if err := store.Replace(Catalog{}); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
}

func TestReplaceFillsDefaultsAndLabels(t *testing.T) {
	store, err := NewMemoryStore(Catalog{Models: []Model{{ID: "Analytic_Model_Logistica"}}})
	if err != nil {
		t.Fatalf("NewMemoryStore err: %v", err)
	}

	def := store.Default()
	if def.ID != "Analytic_Model_Logistica" || def.Label != "Analytic_Model_Logistica" {
		t.Fatalf("unexpected default: %+v", def)
	}
}

func TestFeaturesReturnsCopy(t *testing.T) {
	store, err := NewMemoryStore(Seed())
	if err != nil {
		t.Fatalf("NewMemoryStore err: %v", err)
	}

	features := store.Features()
	features[0].Examples[0] = "changed"

	if store.Features()[0].Examples[0] == "changed" {
		t.Fatal("Features should not expose internal slices")
	}
}
