package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/config"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/scraper/meli"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

// ListingFetcher is what the search pipeline needs from the scraper.
type ListingFetcher interface {
	Fetch(ctx context.Context, filters models.SearchFilters, limits models.PlanLimits, handler meli.PageHandler) ([]models.PageLog, error)
}

// SearchService runs one full search: quota gate, per-year retrieval,
// extraction, normalization and aggregation.
type SearchService struct {
	cfg       *config.Config
	gate      *QuotaGate
	fetcher   ListingFetcher
	extractor *Extractor
	logger    *utils.Logger
}

// NewSearchService wires the pipeline.
func NewSearchService(cfg *config.Config, gate *QuotaGate, fetcher ListingFetcher, extractor *Extractor, logger *utils.Logger) *SearchService {
	return &SearchService{cfg: cfg, gate: gate, fetcher: fetcher, extractor: extractor, logger: logger}
}

// Run executes a search for the given session. Quota and filter validation
// failures abort; per-page and per-card failures never do. A search that
// finishes with zero listings is an empty result, not an error.
func (s *SearchService) Run(ctx context.Context, sessionID, planCode string, filters models.SearchFilters) (*models.SearchResult, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	limits, err := s.gate.CheckAndConsume(ctx, sessionID, planCode)
	if err != nil {
		return nil, err
	}

	s.logger.Info("[search] session %s plan=%s years=%d-%d pages/year=%d",
		sessionID, limits.Plan, filters.YearMin, filters.YearMax, limits.PagesPerYear)

	seen := utils.NewURLSet()
	var raws []*models.RawListing
	byYear := make(map[int]int)

	currentYear := 0
	handler := func(doc *goquery.Document, plog *models.PageLog) int {
		extracted := s.extractor.Extract(doc)
		for _, raw := range extracted {
			if raw.URL == "" || !seen.Add(raw.URL) {
				continue
			}
			if raw.Year == 0 {
				// Card without a year chip: the queried year is authoritative.
				raw.Year = currentYear
			}
			raws = append(raws, raw)
			byYear[raw.Year]++
		}
		return len(extracted)
	}

	// Years are fetched one at a time; the handler closure needs to know
	// which year is in flight for imputation, so drive Fetch per year.
	var logs []models.PageLog
	for year := filters.YearMin; year <= filters.YearMax; year++ {
		currentYear = year
		oneYear := filters
		oneYear.YearMin, oneYear.YearMax = year, year

		yearLogs, err := s.fetcher.Fetch(ctx, oneYear, limits, handler)
		logs = append(logs, yearLogs...)
		if err != nil {
			return nil, err
		}
	}

	normalizer := NewNormalizer(NormalizerOptions{
		Aggressive:   filters.Aggressive,
		UseCoreTitle: filters.UseCoreTitle,
		Stopwords:    s.cfg.TitleStopwords,
		USDARS:       s.cfg.USDARS,
		MispriceARS:  s.cfg.MispriceARSLimit,
	}, s.logger)

	listings, dropped := normalizer.NormalizeAll(raws)
	listings = filterByTokens(listings, filters)

	aggregator := NewAggregator(s.cfg.OpportunityLowPct, s.cfg.OpportunityHighPct, s.cfg.MinGroupSize, s.logger)
	groups, opportunities := aggregator.Aggregate(listings)

	sorted := make([]*models.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Year != sorted[j].Year {
			return sorted[i].Year < sorted[j].Year
		}
		return sorted[i].PriceARS < sorted[j].PriceARS
	})

	result := &models.SearchResult{
		Listings:      sorted,
		Groups:        groups,
		Opportunities: opportunities,
		RawListings:   raws,
		PageLogs:      logs,
		ByYear:        yearCounts(filters, byYear),
		RawCount:      len(raws),
		Dropped:       dropped,
	}

	s.logger.Info("[search] done: %d raw, %d kept, %d groups, %d opportunities",
		result.RawCount, len(result.Listings), len(result.Groups), len(result.Opportunities))
	return result, nil
}

func validateFilters(f models.SearchFilters) error {
	if f.YearMin == 0 || f.YearMax == 0 {
		return fmt.Errorf("search: year range is required")
	}
	if f.YearMin > f.YearMax {
		return fmt.Errorf("search: year range %d-%d is inverted", f.YearMin, f.YearMax)
	}
	if f.PriceMaxARS > 0 && f.PriceMinARS > f.PriceMaxARS {
		return fmt.Errorf("search: price range is inverted")
	}
	if f.KmMax > 0 && f.KmMin > f.KmMax {
		return fmt.Errorf("search: km range is inverted")
	}
	return nil
}

func filterByTokens(listings []*models.Listing, f models.SearchFilters) []*models.Listing {
	if len(f.BrandTokens) == 0 && len(f.ModelTokens) == 0 {
		return listings
	}
	kept := listings[:0]
	for _, l := range listings {
		if !MatchesTokens(l.Title, f.BrandTokens, f.MatchAllWords) {
			continue
		}
		if !MatchesTokens(l.Title, f.ModelTokens, f.MatchAllWords) {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

func yearCounts(f models.SearchFilters, byYear map[int]int) []models.YearCount {
	var counts []models.YearCount
	for year := f.YearMin; year <= f.YearMax; year++ {
		counts = append(counts, models.YearCount{Year: year, Items: byYear[year]})
	}
	return counts
}
