package meli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// SelectorRules maps semantic listing fields to CSS selectors. All page
// structure knowledge lives here, so site-format drift means editing one
// mapping (or shipping a YAML override), not rewriting the extractor.
type SelectorRules struct {
	Card       string `yaml:"card"`
	Title      string `yaml:"title"`
	Price      string `yaml:"price"`
	Currency   string `yaml:"currency"`
	Link       string `yaml:"link"`
	Attributes string `yaml:"attributes"`
	Seller     string `yaml:"seller"`
	Location   string `yaml:"location"`
}

// DefaultSelectorRules matches the current result-page markup (polycard
// layout, with the legacy ui-search selectors as fallbacks).
func DefaultSelectorRules() SelectorRules {
	return SelectorRules{
		Card:       "li.ui-search-layout__item, div.poly-card",
		Title:      "a.poly-component__title, h2.ui-search-item__title a, h2.ui-search-item__title",
		Price:      "span.andes-money-amount__fraction",
		Currency:   "span.andes-money-amount__currency-symbol",
		Link:       "a.poly-component__title, a.ui-search-link",
		Attributes: "li.poly-attributes-list__item, ul.ui-search-card-attributes li",
		Seller:     "span.poly-component__seller",
		Location:   "span.poly-component__location, span.ui-search-item__location",
	}
}

// LoadSelectorRules reads a YAML override file on top of the defaults.
// Empty fields in the file keep their default selector.
func LoadSelectorRules(path string) (SelectorRules, error) {
	rules := DefaultSelectorRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("selectors: read %q: %w", path, err)
	}

	var override SelectorRules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return rules, fmt.Errorf("selectors: parse %q: %w", path, err)
	}

	if override.Card != "" {
		rules.Card = override.Card
	}
	if override.Title != "" {
		rules.Title = override.Title
	}
	if override.Price != "" {
		rules.Price = override.Price
	}
	if override.Currency != "" {
		rules.Currency = override.Currency
	}
	if override.Link != "" {
		rules.Link = override.Link
	}
	if override.Attributes != "" {
		rules.Attributes = override.Attributes
	}
	if override.Seller != "" {
		rules.Seller = override.Seller
	}
	if override.Location != "" {
		rules.Location = override.Location
	}

	return rules, nil
}
