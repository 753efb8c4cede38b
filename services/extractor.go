package services

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/scraper/meli"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

var (
	digitsRegexp = regexp.MustCompile(`\d+`)
	yearRegexp   = regexp.MustCompile(`\b(19[5-9]\d|20[0-3]\d)\b`)
)

// Extractor turns one result page into raw listing records. Every card is
// parsed independently: a malformed card is skipped, never failing the page.
type Extractor struct {
	rules  meli.SelectorRules
	logger *utils.Logger
}

// NewExtractor creates an Extractor bound to a selector rule set.
func NewExtractor(rules meli.SelectorRules, logger *utils.Logger) *Extractor {
	return &Extractor{rules: rules, logger: logger}
}

// Extract parses all listing cards in doc. Cards missing a title or a usable
// price are dropped silently.
func (e *Extractor) Extract(doc *goquery.Document) []*models.RawListing {
	var listings []*models.RawListing
	now := time.Now()

	doc.Find(e.rules.Card).Each(func(_ int, card *goquery.Selection) {
		raw, ok := e.extractCard(card, now)
		if !ok {
			e.logger.Debug("[extractor] skipped malformed card")
			return
		}
		listings = append(listings, raw)
	})

	return listings
}

func (e *Extractor) extractCard(card *goquery.Selection, scrapedAt time.Time) (*models.RawListing, bool) {
	title := strings.TrimSpace(card.Find(e.rules.Title).First().Text())
	if title == "" {
		return nil, false
	}

	amount, ok := parseAmount(card.Find(e.rules.Price).First().Text())
	if !ok || amount <= 0 {
		return nil, false
	}

	raw := &models.RawListing{
		Title:         title,
		PriceAmount:   amount,
		PriceCurrency: parseCurrency(card.Find(e.rules.Currency).First().Text()),
		Transmission:  models.TransmissionUnknown,
		OwnerType:     models.OwnerUnknown,
		ScrapedAt:     scrapedAt,
	}

	if href, exists := card.Find(e.rules.Link).First().Attr("href"); exists {
		raw.URL = CanonicalURL(href)
	}

	card.Find(e.rules.Attributes).Each(func(_ int, attr *goquery.Selection) {
		applyAttribute(raw, strings.TrimSpace(attr.Text()))
	})

	if seller := strings.TrimSpace(card.Find(e.rules.Seller).First().Text()); seller != "" {
		raw.OwnerType = classifySeller(seller)
	}

	return raw, true
}

// parseAmount reads a displayed price figure like "3.000.000" or "15.500".
// Thousands separators are stripped; the fraction element never carries cents.
func parseAmount(text string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseCurrency maps the displayed currency marker to its tag. An absent
// marker yields UNKNOWN; resolution happens later in the normalizer.
func parseCurrency(symbol string) models.Currency {
	switch s := strings.ToUpper(strings.TrimSpace(symbol)); {
	case s == "":
		return models.CurrencyUnknown
	case strings.Contains(s, "US$"), strings.Contains(s, "U$S"), strings.Contains(s, "USD"):
		return models.CurrencyUSD
	case s == "$", strings.Contains(s, "ARS"):
		return models.CurrencyARS
	default:
		return models.CurrencyUnknown
	}
}

// applyAttribute fills year, km and transmission from a card attribute chip.
func applyAttribute(raw *models.RawListing, text string) {
	if text == "" {
		return
	}
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "km"):
		if m := digitsRegexp.FindAllString(lower, -1); len(m) > 0 {
			if km, err := strconv.Atoi(strings.Join(m, "")); err == nil {
				raw.Km = km
			}
		}
	case strings.Contains(lower, "autom"):
		raw.Transmission = models.TransmissionAutomatic
	case strings.Contains(lower, "cvt"):
		raw.Transmission = models.TransmissionCVT
	case strings.Contains(lower, "manual"):
		raw.Transmission = models.TransmissionManual
	default:
		if m := yearRegexp.FindString(text); m != "" && raw.Year == 0 {
			raw.Year, _ = strconv.Atoi(m)
		}
	}
}

func classifySeller(seller string) models.OwnerType {
	lower := strings.ToLower(seller)
	if strings.Contains(lower, "dueño") || strings.Contains(lower, "dueno") || strings.Contains(lower, "particular") {
		return models.OwnerDirect
	}
	return models.OwnerDealer
}

// CanonicalURL strips query and fragment from a permalink so tracking
// parameters don't create duplicate listings.
func CanonicalURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
