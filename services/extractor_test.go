package services

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/scraper/meli"
)

const resultPage = `
<html><body><ol>
  <div class="poly-card">
    <a class="poly-component__title" href="https://autos.mercadolibre.com.ar/MLA-111?tracking=abc#position=1">Toyota Corolla XEI 2.0</a>
    <span class="andes-money-amount__currency-symbol">$</span>
    <span class="andes-money-amount__fraction">3.000.000</span>
    <ul>
      <li class="poly-attributes-list__item">2018</li>
      <li class="poly-attributes-list__item">65.000 Km</li>
      <li class="poly-attributes-list__item">Automática</li>
    </ul>
    <span class="poly-component__seller">Dueño directo</span>
  </div>
  <div class="poly-card">
    <a class="poly-component__title" href="https://autos.mercadolibre.com.ar/MLA-222">Card sin precio</a>
  </div>
  <div class="poly-card">
    <a class="poly-component__title" href="https://autos.mercadolibre.com.ar/MLA-333">Peugeot 208 Feline</a>
    <span class="andes-money-amount__currency-symbol">US$</span>
    <span class="andes-money-amount__fraction">15.500</span>
    <ul>
      <li class="poly-attributes-list__item">2020</li>
      <li class="poly-attributes-list__item">Manual</li>
    </ul>
  </div>
</ol></body></html>`

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse test html: %v", err)
	}
	return doc
}

func TestExtractParsesCardsAndSkipsMalformed(t *testing.T) {
	e := NewExtractor(meli.DefaultSelectorRules(), newTestLogger())

	raws := e.Extract(parseDoc(t, resultPage))
	if len(raws) != 2 {
		t.Fatalf("expected 2 listings (priceless card dropped), got %d", len(raws))
	}

	first := raws[0]
	if first.Title != "Toyota Corolla XEI 2.0" {
		t.Errorf("title = %q", first.Title)
	}
	if first.PriceAmount != 3000000 {
		t.Errorf("price = %.0f; want 3000000", first.PriceAmount)
	}
	if first.PriceCurrency != models.CurrencyARS {
		t.Errorf("currency = %s; want ARS", first.PriceCurrency)
	}
	if first.Year != 2018 {
		t.Errorf("year = %d; want 2018", first.Year)
	}
	if first.Km != 65000 {
		t.Errorf("km = %d; want 65000", first.Km)
	}
	if first.Transmission != models.TransmissionAutomatic {
		t.Errorf("transmission = %s; want automatic", first.Transmission)
	}
	if first.OwnerType != models.OwnerDirect {
		t.Errorf("owner = %s; want direct", first.OwnerType)
	}
	if first.URL != "https://autos.mercadolibre.com.ar/MLA-111" {
		t.Errorf("url = %q; want canonical form without query/fragment", first.URL)
	}

	second := raws[1]
	if second.PriceCurrency != models.CurrencyUSD {
		t.Errorf("second currency = %s; want USD", second.PriceCurrency)
	}
	if second.PriceAmount != 15500 {
		t.Errorf("second price = %.0f; want 15500", second.PriceAmount)
	}
	if second.Transmission != models.TransmissionManual {
		t.Errorf("second transmission = %s; want manual", second.Transmission)
	}
	if second.OwnerType != models.OwnerUnknown {
		t.Errorf("second owner = %s; want unknown", second.OwnerType)
	}
}

func TestExtractEmptyPage(t *testing.T) {
	e := NewExtractor(meli.DefaultSelectorRules(), newTestLogger())

	raws := e.Extract(parseDoc(t, "<html><body><p>No hay publicaciones</p></body></html>"))
	if len(raws) != 0 {
		t.Errorf("expected no listings, got %d", len(raws))
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"3.000.000", 3000000, true},
		{"15.500", 15500, true},
		{"980000", 980000, true},
		{"", 0, false},
		{"Consultar", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseAmount(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseAmount(%q) = (%.0f, %v); want (%.0f, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		raw  string
		want models.Currency
	}{
		{"$", models.CurrencyARS},
		{"US$", models.CurrencyUSD},
		{"U$S", models.CurrencyUSD},
		{"USD", models.CurrencyUSD},
		{"", models.CurrencyUnknown},
		{"R$", models.CurrencyUnknown},
	}

	for _, tt := range tests {
		if got := parseCurrency(tt.raw); got != tt.want {
			t.Errorf("parseCurrency(%q) = %s; want %s", tt.raw, got, tt.want)
		}
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://autos.mercadolibre.com.ar/MLA-1?a=b#c", "https://autos.mercadolibre.com.ar/MLA-1"},
		{"https://autos.mercadolibre.com.ar/MLA-1", "https://autos.mercadolibre.com.ar/MLA-1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalURL(tt.raw); got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}
