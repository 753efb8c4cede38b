package services

import (
	"strings"
	"time"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

// accentFold maps the accented characters seen in listing titles to their
// ASCII base; everything else non-alphanumeric becomes a space.
var accentFold = strings.NewReplacer(
	"á", "a", "à", "a", "ä", "a",
	"é", "e", "è", "e", "ë", "e",
	"í", "i", "ì", "i", "ï", "i",
	"ó", "o", "ò", "o", "ö", "o",
	"ú", "u", "ù", "u", "ü", "u",
	"ñ", "n",
)

// trimTokens are equipment/trim adjectives the aggressive mode removes so
// near-duplicate titles ("Corolla XLI" vs "Corolla XLI Full") share a key.
var trimTokens = map[string]struct{}{
	"full": {}, "extra": {}, "la": {}, "mejor": {}, "pack": {}, "premium": {},
	"linea": {}, "nueva": {}, "look": {}, "at": {}, "mt": {},
}

// NormalizerOptions control how far title folding and grouping reach.
type NormalizerOptions struct {
	Aggressive   bool
	UseCoreTitle bool
	Stopwords    []string
	USDARS       float64
	MispriceARS  float64
}

// Normalizer turns raw listings into currency-resolved, keyed records,
// dropping anything without a positive ARS price, a year, or a title key.
type Normalizer struct {
	opts     NormalizerOptions
	stopword map[string]struct{}
	logger   *utils.Logger
}

// NewNormalizer creates a Normalizer with the given options.
func NewNormalizer(opts NormalizerOptions, logger *utils.Logger) *Normalizer {
	stop := make(map[string]struct{}, len(opts.Stopwords))
	for _, w := range opts.Stopwords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Normalizer{opts: opts, stopword: stop, logger: logger}
}

// NormalizeAll processes a batch, returning kept listings and the drop count.
func (n *Normalizer) NormalizeAll(raws []*models.RawListing) ([]*models.Listing, int) {
	kept := make([]*models.Listing, 0, len(raws))
	dropped := 0

	for _, raw := range raws {
		if l := n.Normalize(raw); l != nil {
			kept = append(kept, l)
		} else {
			dropped++
		}
	}

	if dropped > 0 {
		n.logger.Info("[normalizer] %d → %d listings (dropped %d)", len(raws), len(kept), dropped)
	}
	return kept, dropped
}

// Normalize converts one raw listing; nil means dropped.
func (n *Normalizer) Normalize(raw *models.RawListing) *models.Listing {
	if raw.Year == 0 {
		return nil
	}

	key := n.TitleKey(raw.Title)
	if key == "" {
		return nil
	}

	priceARS, priceUSD, assumed := n.resolvePrice(raw.PriceAmount, raw.PriceCurrency)
	if priceARS <= 0 {
		return nil
	}

	return &models.Listing{
		Title:           raw.Title,
		TitleKey:        key,
		Year:            raw.Year,
		Km:              raw.Km,
		Transmission:    raw.Transmission,
		OwnerType:       raw.OwnerType,
		URL:             raw.URL,
		PriceAmount:     raw.PriceAmount,
		PriceCurrency:   raw.PriceCurrency,
		AssumedCurrency: assumed,
		PriceARS:        priceARS,
		PriceUSD:        priceUSD,
		CreatedAt:       time.Now(),
	}
}

// TitleKey computes the grouping key for a title under the configured
// aggressiveness.
func (n *Normalizer) TitleKey(title string) string {
	key := NormalizeTitle(title, n.opts.Aggressive)
	if n.opts.UseCoreTitle {
		key = n.coreTitle(key)
	}
	return key
}

// NormalizeTitle lower-cases, folds accents, drops punctuation and collapses
// whitespace. Aggressive mode additionally removes trim/adjective tokens.
func NormalizeTitle(title string, aggressive bool) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = accentFold.Replace(s)

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	if !aggressive {
		return strings.Join(fields, " ")
	}

	kept := fields[:0]
	for _, tok := range fields {
		if _, isTrim := trimTokens[tok]; isTrim {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// coreTitle strips the descriptive stoplist from an already-normalized key,
// leaving a brand+model core. Strictly more aggressive than NormalizeTitle;
// applied only on request since it raises the false-grouping risk.
func (n *Normalizer) coreTitle(normalized string) string {
	if normalized == "" {
		return normalized
	}
	tokens := strings.Fields(normalized)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, stop := n.stopword[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// resolvePrice converts a tagged amount to ARS (and a USD reference figure).
// An explicitly tagged currency is always honored; the mistyped-USD
// heuristic fires only on UNKNOWN tags below the configured threshold,
// flagged as "USD*".
func (n *Normalizer) resolvePrice(amount float64, currency models.Currency) (ars, usd float64, assumed string) {
	if amount <= 0 {
		return 0, 0, ""
	}

	switch currency {
	case models.CurrencyUSD:
		return amount * n.opts.USDARS, amount, "USD"
	case models.CurrencyARS:
		return amount, amount / n.opts.USDARS, "ARS"
	default:
		if amount < n.opts.MispriceARS {
			return amount * n.opts.USDARS, amount, "USD*"
		}
		return amount, amount / n.opts.USDARS, "ARS"
	}
}

// MatchesTokens reports whether the normalized title matches the given
// tokens: all of them when matchAll is set, any of them otherwise.
func MatchesTokens(title string, tokens []string, matchAll bool) bool {
	if len(tokens) == 0 {
		return true
	}
	norm := NormalizeTitle(title, false)

	matched := 0
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			matched++
			continue
		}
		if strings.Contains(norm, tok) {
			matched++
		} else if matchAll {
			return false
		}
	}
	if matchAll {
		return true
	}
	return matched > 0
}
