package plan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCatalogExactMatch(t *testing.T) {
	c := DefaultCatalog()

	p, ok := c.PlanFor("com.kotono_iro.standard_monthly")
	if !ok || p != Standard {
		t.Fatalf("standard_monthly = (%v, %v), want (Standard, true)", p, ok)
	}

	p, ok = c.PlanFor("com.kotono_iro.ultimate_monthly")
	if !ok || p != Ultimate {
		t.Fatalf("ultimate_monthly = (%v, %v), want (Ultimate, true)", p, ok)
	}
}

func TestCatalogRejectsSubstringMatches(t *testing.T) {
	c := DefaultCatalog()

	// Substrings and near-misses of registered ids must not resolve.
	for _, id := range []string{
		"standard_monthly",
		"com.kotono_iro.standard_monthly_v2",
		"com.other.standard_monthly",
		"",
	} {
		if p, ok := c.PlanFor(id); ok || p != Free {
			t.Errorf("PlanFor(%q) = (%v, %v), want (Free, false)", id, p, ok)
		}
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	data := `{"products":[
		{"product_id":"com.example.gold","plan":"Premium"},
		{"product_id":"com.example.silver","plan":"Standard"}
	]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("catalog size = %d, want 2", c.Len())
	}
	if p, ok := c.PlanFor("com.example.gold"); !ok || p != Premium {
		t.Fatalf("gold = (%v, %v), want (Premium, true)", p, ok)
	}
}

func TestLoadCatalogRejectsUnknownPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	data := `{"products":[{"product_id":"com.example.gold","plan":"Diamond"}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected error for unknown plan name")
	}
}
