package services

import (
	"testing"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLogger(false) }

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		title      string
		aggressive bool
		want       string
	}{
		{"Toyota Corolla XEI 1.8", false, "toyota corolla xei 1 8"},
		{"  Peugeot   208 ", false, "peugeot 208"},
		{"Citroën C4 Picasso", false, "citroen c4 picasso"},
		{"CAMIONETA AÑO 2015!!", false, "camioneta ano 2015"},
		{"Gol Trend - Única Dueña", false, "gol trend unica duena"},
		{"Corolla XLI Full", true, "corolla xli"},
		{"Corolla XLI Full", false, "corolla xli full"},
		{"Vento 2.5 Linea Nueva", true, "vento 2 5"},
		{"Focus AT Premium Pack", true, "focus"},
		{"", false, ""},
		{"!!!", false, ""},
	}

	for _, tt := range tests {
		got := NormalizeTitle(tt.title, tt.aggressive)
		if got != tt.want {
			t.Errorf("NormalizeTitle(%q, %v) = %q; want %q", tt.title, tt.aggressive, got, tt.want)
		}
	}
}

func TestTitleKeyCoreTitle(t *testing.T) {
	n := NewNormalizer(NormalizerOptions{
		UseCoreTitle: true,
		Stopwords:    []string{"impecable", "gnc", "permuto"},
		USDARS:       1000,
		MispriceARS:  200000,
	}, newTestLogger())

	tests := []struct {
		title string
		want  string
	}{
		{"Gol Trend Impecable GNC", "gol trend"},
		{"Gol Trend", "gol trend"},
		{"Corsa permuto impecable", "corsa"},
	}

	for _, tt := range tests {
		if got := n.TitleKey(tt.title); got != tt.want {
			t.Errorf("TitleKey(%q) = %q; want %q", tt.title, got, tt.want)
		}
	}
}

func TestResolvePrice(t *testing.T) {
	n := NewNormalizer(NormalizerOptions{USDARS: 1000, MispriceARS: 200000}, newTestLogger())

	tests := []struct {
		name        string
		amount      float64
		currency    models.Currency
		wantARS     float64
		wantUSD     float64
		wantAssumed string
	}{
		{"tagged USD", 15000, models.CurrencyUSD, 15000000, 15000, "USD"},
		{"tagged ARS", 3000000, models.CurrencyARS, 3000000, 3000, "ARS"},
		// A tagged ARS price below the threshold is honored as-is.
		{"tagged ARS low", 150000, models.CurrencyARS, 150000, 150, "ARS"},
		{"untagged low is mistyped USD", 18500, models.CurrencyUnknown, 18500000, 18500, "USD*"},
		{"untagged high is ARS", 5000000, models.CurrencyUnknown, 5000000, 5000, "ARS"},
		{"untagged at threshold is ARS", 200000, models.CurrencyUnknown, 200000, 200, "ARS"},
	}

	for _, tt := range tests {
		ars, usd, assumed := n.resolvePrice(tt.amount, tt.currency)
		if ars != tt.wantARS || usd != tt.wantUSD || assumed != tt.wantAssumed {
			t.Errorf("%s: resolvePrice(%.0f, %s) = (%.0f, %.0f, %q); want (%.0f, %.0f, %q)",
				tt.name, tt.amount, tt.currency, ars, usd, assumed, tt.wantARS, tt.wantUSD, tt.wantAssumed)
		}
	}
}

func TestNormalizeDrops(t *testing.T) {
	n := NewNormalizer(NormalizerOptions{USDARS: 1000, MispriceARS: 200000}, newTestLogger())

	tests := []struct {
		name string
		raw  *models.RawListing
		keep bool
	}{
		{"complete", &models.RawListing{Title: "Corolla", PriceAmount: 3000000, PriceCurrency: models.CurrencyARS, Year: 2018}, true},
		{"no year", &models.RawListing{Title: "Corolla", PriceAmount: 3000000, PriceCurrency: models.CurrencyARS}, false},
		{"empty title key", &models.RawListing{Title: "!!!", PriceAmount: 3000000, PriceCurrency: models.CurrencyARS, Year: 2018}, false},
		{"zero price", &models.RawListing{Title: "Corolla", PriceAmount: 0, PriceCurrency: models.CurrencyARS, Year: 2018}, false},
	}

	for _, tt := range tests {
		got := n.Normalize(tt.raw)
		if (got != nil) != tt.keep {
			t.Errorf("%s: Normalize kept=%v; want kept=%v", tt.name, got != nil, tt.keep)
		}
	}
}

func TestNormalizeAllCountsDrops(t *testing.T) {
	n := NewNormalizer(NormalizerOptions{USDARS: 1000, MispriceARS: 200000}, newTestLogger())

	raws := []*models.RawListing{
		{Title: "Corolla", PriceAmount: 3000000, PriceCurrency: models.CurrencyARS, Year: 2018},
		{Title: "Gol", PriceAmount: 0, PriceCurrency: models.CurrencyARS, Year: 2015},
		{Title: "Vento", PriceAmount: 4000000, PriceCurrency: models.CurrencyARS},
	}

	kept, dropped := n.NormalizeAll(raws)
	if len(kept) != 1 || dropped != 2 {
		t.Errorf("NormalizeAll = %d kept, %d dropped; want 1 kept, 2 dropped", len(kept), dropped)
	}
}

func TestMatchesTokens(t *testing.T) {
	tests := []struct {
		title    string
		tokens   []string
		matchAll bool
		want     bool
	}{
		{"Toyota Corolla XEI", nil, false, true},
		{"Toyota Corolla XEI", []string{"corolla"}, false, true},
		{"Toyota Corolla XEI", []string{"Corolla", "hilux"}, false, true},
		{"Toyota Corolla XEI", []string{"hilux"}, false, false},
		{"Toyota Corolla XEI", []string{"toyota", "corolla"}, true, true},
		{"Toyota Corolla XEI", []string{"toyota", "hilux"}, true, false},
		{"Citroën C4", []string{"citroen"}, false, true},
	}

	for _, tt := range tests {
		got := MatchesTokens(tt.title, tt.tokens, tt.matchAll)
		if got != tt.want {
			t.Errorf("MatchesTokens(%q, %v, %v) = %v; want %v", tt.title, tt.tokens, tt.matchAll, got, tt.want)
		}
	}
}
