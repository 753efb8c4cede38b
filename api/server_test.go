package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/config"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/scraper/meli"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/services"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/storage"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

// staticFetcher serves the same canned page for every request.
type staticFetcher struct {
	html string
}

func (f *staticFetcher) Fetch(_ context.Context, filters models.SearchFilters, _ models.PlanLimits, handler meli.PageHandler) ([]models.PageLog, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.html))
	if err != nil {
		return nil, err
	}
	plog := models.PageLog{Year: filters.YearMin, Page: 1, Status: 200}
	plog.Listings = handler(doc, &plog)
	return []models.PageLog{plog}, nil
}

func testServer(freeLimit int) *Server {
	cfg := &config.Config{
		FreeLimitSearches:  freeLimit,
		FreePagesPerYear:   3,
		FreeItemsPerPage:   36,
		USDARS:             1000,
		MispriceARSLimit:   200000,
		MinGroupSize:       2,
		OpportunityLowPct:  10,
		OpportunityHighPct: 30,
	}
	logger := utils.NewLogger(false)
	gate := services.NewQuotaGate(storage.NewMemoryQuotaStore(), cfg, logger)
	extractor := services.NewExtractor(meli.DefaultSelectorRules(), logger)

	page := `<html><body>
<div class="poly-card">
  <a class="poly-component__title" href="https://autos.mercadolibre.com.ar/MLA-1">Toyota Corolla XEI</a>
  <span class="andes-money-amount__currency-symbol">$</span>
  <span class="andes-money-amount__fraction">3.000.000</span>
  <ul><li class="poly-attributes-list__item">2018</li></ul>
</div>
</body></html>`

	search := services.NewSearchService(cfg, gate, &staticFetcher{html: page}, extractor, logger)
	return NewServer(search, logger)
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(5)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d; want 200", rec.Code)
	}
}

func TestSearchEndpointIssuesSessionCookie(t *testing.T) {
	srv := testServer(5)
	body := `{"year_min": 2018, "year_max": 2018}`
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d; want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var sid string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			sid = c.Value
		}
	}
	if sid == "" {
		t.Error("expected a sid cookie on the first request")
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Listings) != 1 {
		t.Errorf("listings = %d; want 1", len(resp.Listings))
	}
	if resp.Listings[0].Link.Label != "Abrir" || resp.Listings[0].Link.URL == "" {
		t.Errorf("link = %+v; want Abrir label with a URL", resp.Listings[0].Link)
	}
}

func TestSearchEndpointRejectsBadBody(t *testing.T) {
	srv := testServer(5)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestSearchEndpointRejectsInvalidFilters(t *testing.T) {
	srv := testServer(5)
	body := `{"year_min": 2020, "year_max": 2018}`
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestSearchEndpointQuotaExceeded(t *testing.T) {
	srv := testServer(0)
	body := `{"year_min": 2018, "year_max": 2018}`
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body)))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d; want 429", rec.Code)
	}

	var resp quotaErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode quota error: %v", err)
	}
	if resp.Limit != 0 || resp.WindowResetAt == "" {
		t.Errorf("quota error body = %+v", resp)
	}
}
