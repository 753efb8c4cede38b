package models

import "time"

// Currency is the price tag shown on a listing card.
type Currency string

const (
	CurrencyARS     Currency = "ARS"
	CurrencyUSD     Currency = "USD"
	CurrencyUnknown Currency = "UNKNOWN"
)

// Transmission as advertised on the card (or in the search route).
type Transmission string

const (
	TransmissionManual    Transmission = "manual"
	TransmissionAutomatic Transmission = "automatic"
	TransmissionCVT       Transmission = "cvt"
	TransmissionUnknown   Transmission = "unknown"
)

// OwnerType distinguishes private sellers from dealerships.
type OwnerType string

const (
	OwnerDirect  OwnerType = "direct"
	OwnerDealer  OwnerType = "dealer"
	OwnerUnknown OwnerType = "unknown"
)

// RawListing is one scraped card, exactly as extracted from the result page.
// Immutable once built; the normalizer never mutates it.
type RawListing struct {
	Title         string
	PriceAmount   float64
	PriceCurrency Currency
	Year          int
	Km            int
	Transmission  Transmission
	OwnerType     OwnerType
	URL           string // canonical permalink: scheme+host+path only
	ScrapedAt     time.Time
}

// Listing is the normalized, currency-resolved record the aggregator works on.
type Listing struct {
	ID            int64
	Title         string
	TitleKey      string // normalized title (or core-title variant)
	Year          int
	Km            int
	Transmission  Transmission
	OwnerType     OwnerType
	URL           string
	PriceAmount   float64
	PriceCurrency Currency
	// AssumedCurrency records what the resolver decided: "ARS", "USD", or
	// "USD*" when an untagged low price was assumed to be a mistyped USD figure.
	AssumedCurrency string
	PriceARS        float64
	PriceUSD        float64
	CreatedAt       time.Time
}

// GroupKey identifies a comparable set.
type GroupKey struct {
	TitleKey string
	Year     int
}

// Group holds the members sharing a (title_key, year) pair, in discovery order.
type Group struct {
	Key          GroupKey
	Members      []*Listing
	AveragePrice float64
	MemberCount  int
}

// Opportunity is a listing priced inside the configured band below its
// group's average.
type Opportunity struct {
	Listing      *Listing
	GroupAverage float64
	GroupSize    int
	DiffARS      float64
	DiscountPct  float64 // fraction: (avg - price) / avg
}

// PlanLimits bounds how much retrieval work one search may trigger.
type PlanLimits struct {
	Plan         string // "free" or "premium"
	PagesPerYear int
	ItemsPerPage int
}

// MaxItemsPerYear is the retrieval ceiling for a single queried year.
func (p PlanLimits) MaxItemsPerYear() int {
	return p.PagesPerYear * p.ItemsPerPage
}

// SessionQuota is the per-session rolling-window counter. The JSON shape
// ({count, ts}) is the store wire format.
type SessionQuota struct {
	SearchesUsed int   `json:"count"`
	WindowStart  int64 `json:"ts"` // unix seconds
}

// SearchFilters is everything the caller controls about one search.
type SearchFilters struct {
	YearMin         int            `json:"year_min"`
	YearMax         int            `json:"year_max"`
	PriceMinARS     int            `json:"price_min_ars"`
	PriceMaxARS     int            `json:"price_max_ars"`
	KmMin           int            `json:"km_min"`
	KmMax           int            `json:"km_max"`
	Transmissions   []Transmission `json:"transmissions"`
	OnlyDirectOwner bool           `json:"only_direct_owner"`
	BrandTokens     []string       `json:"brand_tokens"`
	ModelTokens     []string       `json:"model_tokens"`
	MatchAllWords   bool           `json:"match_all_words"`
	Aggressive      bool           `json:"aggressive"`
	UseCoreTitle    bool           `json:"use_title_core"`
}

// PageLog records the outcome of one page fetch, blocked pages included.
type PageLog struct {
	Year     int    `json:"year"`
	Page     int    `json:"page"`
	URL      string `json:"url"`
	Status   int    `json:"status"`
	Listings int    `json:"listings"`
	Blocked  bool   `json:"blocked"`
	Error    string `json:"error,omitempty"`
}

// YearCount is the consolidated (deduplicated) item count for one queried year.
type YearCount struct {
	Year  int `json:"year"`
	Items int `json:"items"`
}

// SearchResult is the full output of one search, in the stable orders the
// export consumers rely on.
type SearchResult struct {
	Listings      []*Listing     // year asc, price_ars asc
	Groups        []*Group       // first-encounter order
	Opportunities []*Opportunity // discount desc, ties in discovery order
	RawListings   []*RawListing  // deduplicated, discovery order
	PageLogs      []PageLog
	ByYear        []YearCount
	RawCount      int
	Dropped       int
}
