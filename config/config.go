package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is built once in main and passed down; deep logic never reads the
// environment on its own.
type Config struct {
	// Freemium plan limits.
	FreeLimitSearches   int
	FreePagesPerYear    int
	FreeItemsPerPage    int
	PremiumPagesPerYear int
	PremiumItemsPerPage int
	PremiumCodes        map[string]struct{}

	// Price normalization.
	USDARS              float64
	MispriceARSLimit    float64
	TitleStopwords      []string

	// Fetching.
	BaseURL        string
	FetchMode      string // "http" or "browser"
	RequestDelayMs int
	BackoffMs      int
	MaxRetries     int
	ProxyURL       string
	SelectorsPath  string
	ChromeBin      string

	// Grouping / opportunity detection.
	MinGroupSize       int
	OpportunityLowPct  float64
	OpportunityHighPct float64

	// Quota store (Redis when configured, in-memory otherwise).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Postgres (persistence is skipped when the database name is empty).
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Outputs / API.
	CSVOutputPath  string
	XLSXOutputPath string
	APIAddr        string
}

// defaultStopwords are the descriptive tokens the core-title reduction drops.
// Overridable through TITLE_STOPWORDS (comma-separated).
var defaultStopwords = []string{
	"impecable", "excelente", "unico", "dueno", "permuto", "permuta",
	"urgente", "oportunidad", "full", "pack", "cuero",
	"gnc", "nafta", "diesel", "tdi", "turbo", "16v", "v6", "v8",
	"financio", "financiacion", "usd", "dolares",
	"km", "kms", "reales", "poco", "uso", "segunda", "mano", "primer",
	"la", "mejor", "extra",
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		FreeLimitSearches:   getEnvInt("FREE_LIMIT_SEARCHES", 10),
		FreePagesPerYear:    getEnvInt("FREE_PAGES_PER_YEAR", 8),
		FreeItemsPerPage:    getEnvInt("FREE_ITEMS_PER_PAGE", 36),
		PremiumPagesPerYear: getEnvInt("PREMIUM_PAGES_PER_YEAR", 30),
		PremiumItemsPerPage: getEnvInt("PREMIUM_ITEMS_PER_PAGE", 48),
		PremiumCodes:        splitSet(getEnv("PREMIUM_CODES", "")),

		USDARS:           getEnvFloat("USD_ARS", 1350),
		MispriceARSLimit: getEnvFloat("MISPRICE_ARS_THRESHOLD", 200000),
		TitleStopwords:   splitList(getEnv("TITLE_STOPWORDS", ""), defaultStopwords),

		BaseURL:        getEnv("BASE_URL", "https://autos.mercadolibre.com.ar"),
		FetchMode:      getEnv("FETCH_MODE", "http"),
		RequestDelayMs: getEnvInt("REQUEST_DELAY_MS", 800),
		BackoffMs:      getEnvInt("BACKOFF_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		ProxyURL:       getEnv("PROXY_URL", os.Getenv("HTTP_PROXY")),
		SelectorsPath:  getEnv("SELECTORS_PATH", ""),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		MinGroupSize:       getEnvInt("MIN_GROUP_SIZE", 2),
		OpportunityLowPct:  getEnvFloat("OPPORTUNITY_LOW_PCT", 10),
		OpportunityHighPct: getEnvFloat("OPPORTUNITY_HIGH_PCT", 30),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		CSVOutputPath:  getEnv("CSV_OUTPUT_PATH", "./output/raw_listings.csv"),
		XLSXOutputPath: getEnv("XLSX_OUTPUT_PATH", "./output/oportunidades.xlsx"),
		APIAddr:        getEnv("API_ADDR", ":8080"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// IsPremiumCode reports whether code exactly matches a configured premium code.
// An empty configured set grants nothing.
func (c *Config) IsPremiumCode(code string) bool {
	if code == "" {
		return false
	}
	_, ok := c.PremiumCodes[code]
	return ok
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func splitSet(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func splitList(raw string, fallback []string) []string {
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
