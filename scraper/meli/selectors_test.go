package meli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSelectorRulesDefaults(t *testing.T) {
	rules, err := LoadSelectorRules("")
	if err != nil {
		t.Fatalf("LoadSelectorRules(\"\"): %v", err)
	}
	if rules != DefaultSelectorRules() {
		t.Errorf("empty path must return the defaults, got %+v", rules)
	}
}

func TestLoadSelectorRulesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	yaml := "card: div.new-card\nprice: span.new-price\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write override file: %v", err)
	}

	rules, err := LoadSelectorRules(path)
	if err != nil {
		t.Fatalf("LoadSelectorRules: %v", err)
	}

	if rules.Card != "div.new-card" {
		t.Errorf("card = %q; want override", rules.Card)
	}
	if rules.Price != "span.new-price" {
		t.Errorf("price = %q; want override", rules.Price)
	}
	// Fields absent from the file keep their defaults.
	if rules.Title != DefaultSelectorRules().Title {
		t.Errorf("title = %q; want default", rules.Title)
	}
}

func TestLoadSelectorRulesMissingFile(t *testing.T) {
	if _, err := LoadSelectorRules("/nonexistent/selectors.yaml"); err == nil {
		t.Error("expected an error for a missing override file")
	}
}
