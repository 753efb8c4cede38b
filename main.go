package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/api"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/config"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/scraper/meli"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/services"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/storage"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

func main() {
	var (
		serve        = flag.Bool("serve", false, "run the HTTP API instead of a one-shot search")
		yearMin      = flag.Int("year-min", 0, "first model year to search (required in CLI mode)")
		yearMax      = flag.Int("year-max", 0, "last model year to search (required in CLI mode)")
		priceMin     = flag.Int("price-min", 0, "minimum price in ARS")
		priceMax     = flag.Int("price-max", 0, "maximum price in ARS")
		kmMin        = flag.Int("km-min", 0, "minimum kilometers")
		kmMax        = flag.Int("km-max", 0, "maximum kilometers")
		transmission = flag.String("transmission", "", "comma-separated transmissions: automatic,manual,cvt")
		directOwner  = flag.Bool("direct-owner", false, "only listings from private sellers")
		brand        = flag.String("brand", "", "brand words to keep, comma-separated")
		model        = flag.String("model", "", "model words to keep, comma-separated")
		allWords     = flag.Bool("all-words", false, "require every brand/model word to match")
		aggressive   = flag.Bool("aggressive", false, "aggressive title normalization")
		coreTitle    = flag.Bool("core-title", false, "group by core title (stopwords removed)")
		premiumCode  = flag.String("premium-code", "", "premium access code")
		session      = flag.String("session", "cli", "session identifier for quota accounting")
		verbose      = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logger := utils.NewLogger(*verbose)
	cfg := config.Load()

	logger.Info("=== Vehicle opportunity scanner starting ===")
	logger.Info("Config — base: %s | mode: %s | free limit: %d searches/30d",
		cfg.BaseURL, cfg.FetchMode, cfg.FreeLimitSearches)

	rules, err := meli.LoadSelectorRules(cfg.SelectorsPath)
	if err != nil {
		logger.Error("Failed to load selector rules: %v", err)
		os.Exit(1)
	}

	fetcher, err := meli.NewFetcher(cfg, logger)
	if err != nil {
		logger.Error("Failed to create fetcher: %v", err)
		os.Exit(1)
	}

	var store services.QuotaStore
	if cfg.RedisAddr != "" {
		redisStore, err := storage.NewRedisQuotaStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info("Quota store: Redis at %s", cfg.RedisAddr)
	} else {
		store = storage.NewMemoryQuotaStore()
		logger.Info("Quota store: in-memory (counters reset on restart)")
	}

	gate := services.NewQuotaGate(store, cfg, logger)
	extractor := services.NewExtractor(rules, logger)
	search := services.NewSearchService(cfg, gate, fetcher, extractor, logger)

	if *serve {
		server := api.NewServer(search, logger)
		logger.Info("API listening on %s", cfg.APIAddr)
		if err := http.ListenAndServe(cfg.APIAddr, server.Router()); err != nil {
			logger.Error("API server stopped: %v", err)
			os.Exit(1)
		}
		return
	}

	filters := models.SearchFilters{
		YearMin:         *yearMin,
		YearMax:         *yearMax,
		PriceMinARS:     *priceMin,
		PriceMaxARS:     *priceMax,
		KmMin:           *kmMin,
		KmMax:           *kmMax,
		Transmissions:   parseTransmissions(*transmission),
		OnlyDirectOwner: *directOwner,
		BrandTokens:     splitWords(*brand),
		ModelTokens:     splitWords(*model),
		MatchAllWords:   *allWords,
		Aggressive:      *aggressive,
		UseCoreTitle:    *coreTitle,
	}

	result, err := search.Run(context.Background(), *session, *premiumCode, filters)
	if err != nil {
		logger.Error("Search failed: %v", err)
		os.Exit(1)
	}

	if result.RawCount == 0 {
		logger.Error("No listings were retrieved. Exiting.")
		os.Exit(1)
	}

	logger.Info("Retrieved %d raw listings — writing raw CSV...", result.RawCount)
	if err := writeRawCSV(cfg.CSVOutputPath, result.RawListings); err != nil {
		logger.Error("CSV write failed: %v", err)
	} else {
		logger.Info("Raw listings saved to %s", cfg.CSVOutputPath)
	}

	excelWriter := storage.NewExcelWriter(cfg.XLSXOutputPath)
	if err := excelWriter.Export(result); err != nil {
		logger.Error("Excel export failed: %v", err)
	} else {
		logger.Info("Report saved to %s", cfg.XLSXOutputPath)
	}

	if cfg.PostgresDB != "" {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
		} else {
			defer pgWriter.Close()
			if err := pgWriter.Write(result.Listings); err != nil {
				logger.Error("PostgreSQL write failed: %v", err)
			} else {
				logger.Info("Normalized listings stored in PostgreSQL (table: listings)")
			}
		}
	}

	printSummary(result)
}

func writeRawCSV(path string, raws []*models.RawListing) error {
	csvWriter, err := storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	defer csvWriter.Close()
	return csvWriter.WriteRaw(raws)
}

func printSummary(result *models.SearchResult) {
	fmt.Println()
	fmt.Printf("  Listings kept:  %d (of %d scraped, %d dropped)\n",
		len(result.Listings), result.RawCount, result.Dropped)
	fmt.Printf("  Groups:         %d\n", len(result.Groups))
	fmt.Printf("  Opportunities:  %d\n", len(result.Opportunities))
	for _, o := range result.Opportunities {
		fmt.Printf("    %-50s %d  $%.0f  (avg $%.0f, -%.1f%%)\n",
			truncate(o.Listing.Title, 50), o.Listing.Year,
			o.Listing.PriceARS, o.GroupAverage, o.DiscountPct*100)
	}
	fmt.Println()
}

func parseTransmissions(raw string) []models.Transmission {
	var out []models.Transmission
	for _, part := range strings.Split(raw, ",") {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "automatic", "automatica", "auto":
			out = append(out, models.TransmissionAutomatic)
		case "manual":
			out = append(out, models.TransmissionManual)
		case "cvt":
			out = append(out, models.TransmissionCVT)
		}
	}
	return out
}

func splitWords(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
