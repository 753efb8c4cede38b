package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/services"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

const sessionCookie = "sid"

// linkLabel is the fixed display label for listing URLs in API responses.
const linkLabel = "Abrir"

// Server exposes the search engine over HTTP. Session identity rides an
// opaque cookie; the quota gate decides what the session may do.
type Server struct {
	search *services.SearchService
	logger *utils.Logger
	router *mux.Router
}

// NewServer builds the router.
func NewServer(search *services.SearchService, logger *utils.Logger) *Server {
	s := &Server{search: search, logger: logger, router: mux.NewRouter()}

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodPost)

	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

type searchRequest struct {
	models.SearchFilters
	PremiumCode string `json:"premium_code"`
}

type link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type listingRow struct {
	Title           string  `json:"title"`
	Year            int     `json:"year"`
	Km              int     `json:"km"`
	Transmission    string  `json:"transmission"`
	OwnerType       string  `json:"owner_type"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	AssumedCurrency string  `json:"assumed_currency"`
	PriceUSD        float64 `json:"price_usd"`
	PriceARS        float64 `json:"price_ars"`
	Link            link    `json:"link"`
}

type groupRow struct {
	TitleKey     string  `json:"title_key"`
	Year         int     `json:"year"`
	MemberCount  int     `json:"member_count"`
	AveragePrice float64 `json:"average_price"`
}

type opportunityRow struct {
	Title        string  `json:"title"`
	Year         int     `json:"year"`
	PriceARS     float64 `json:"price_ars"`
	GroupAverage float64 `json:"group_average"`
	GroupSize    int     `json:"group_size"`
	DiffARS      float64 `json:"diff_ars"`
	DiscountPct  float64 `json:"discount_pct"`
	Link         link    `json:"link"`
}

type searchResponse struct {
	Listings      []listingRow       `json:"listings"`
	Groups        []groupRow         `json:"groups"`
	Opportunities []opportunityRow   `json:"opportunities"`
	ByYear        []models.YearCount `json:"by_year"`
	PageLogs      []models.PageLog   `json:"page_logs"`
	RawCount      int                `json:"raw_count"`
	Dropped       int                `json:"dropped"`
}

type quotaErrorResponse struct {
	Error         string `json:"error"`
	SearchesUsed  int    `json:"searches_used"`
	Limit         int    `json:"limit"`
	WindowResetAt string `json:"window_reset_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sessionID := s.sessionID(w, r)

	result, err := s.search.Run(r.Context(), sessionID, req.PremiumCode, req.SearchFilters)
	if err != nil {
		var quotaErr *services.QuotaExceededError
		if errors.As(err, &quotaErr) {
			writeJSON(w, http.StatusTooManyRequests, quotaErrorResponse{
				Error:         "search quota exceeded",
				SearchesUsed:  quotaErr.SearchesUsed,
				Limit:         quotaErr.Limit,
				WindowResetAt: quotaErr.WindowResetAt.Format(time.RFC3339),
			})
			return
		}
		s.logger.Error("[api] search failed: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, buildResponse(result))
}

// sessionID returns the session cookie value, issuing a fresh opaque ID when
// the browser has none.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		HttpOnly: true,
	})
	return id
}

func buildResponse(result *models.SearchResult) searchResponse {
	resp := searchResponse{
		Listings:      make([]listingRow, 0, len(result.Listings)),
		Groups:        make([]groupRow, 0, len(result.Groups)),
		Opportunities: make([]opportunityRow, 0, len(result.Opportunities)),
		ByYear:        result.ByYear,
		PageLogs:      result.PageLogs,
		RawCount:      result.RawCount,
		Dropped:       result.Dropped,
	}

	for _, l := range result.Listings {
		resp.Listings = append(resp.Listings, listingRow{
			Title:           l.Title,
			Year:            l.Year,
			Km:              l.Km,
			Transmission:    string(l.Transmission),
			OwnerType:       string(l.OwnerType),
			Price:           l.PriceAmount,
			Currency:        string(l.PriceCurrency),
			AssumedCurrency: l.AssumedCurrency,
			PriceUSD:        l.PriceUSD,
			PriceARS:        l.PriceARS,
			Link:            link{Label: linkLabel, URL: l.URL},
		})
	}

	for _, g := range result.Groups {
		resp.Groups = append(resp.Groups, groupRow{
			TitleKey:     g.Key.TitleKey,
			Year:         g.Key.Year,
			MemberCount:  g.MemberCount,
			AveragePrice: g.AveragePrice,
		})
	}

	for _, o := range result.Opportunities {
		resp.Opportunities = append(resp.Opportunities, opportunityRow{
			Title:        o.Listing.Title,
			Year:         o.Listing.Year,
			PriceARS:     o.Listing.PriceARS,
			GroupAverage: o.GroupAverage,
			GroupSize:    o.GroupSize,
			DiffARS:      o.DiffARS,
			DiscountPct:  o.DiscountPct,
			Link:         link{Label: linkLabel, URL: o.Listing.URL},
		})
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
