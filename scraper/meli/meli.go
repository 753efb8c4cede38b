package meli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/config"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ErrChallenge marks an anti-bot/captcha response. It is recoverable per
// page: the fetcher retries once after a backoff, then skips the page.
var ErrChallenge = errors.New("meli: anti-bot challenge")

// RetrievalError is a transport failure for one page, after retries.
type RetrievalError struct {
	URL    string
	Status int
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("meli: fetch %s (status %d): %v", e.URL, e.Status, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// PageFetcher retrieves one result page as a parsed document. Implementations:
// HTTPFetcher (default) and BrowserFetcher (headless Chrome).
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*goquery.Document, int, error)
}

// PageHandler consumes one fetched page and reports how many listings it
// extracted. Returning 0 ends pagination for the current year.
type PageHandler func(doc *goquery.Document, log *models.PageLog) int

// Fetcher drives the per-(year, page) retrieval loop. It owns pagination,
// pacing, the challenge backoff policy, and the search URL shape; everything
// past the raw page is the handler's business.
type Fetcher struct {
	baseURL   string
	transport PageFetcher
	throttle  *utils.Throttle
	backoff   time.Duration
	retries   int
	logger    *utils.Logger
	canon     *http.Client
}

// NewFetcher builds a Fetcher from config. FETCH_MODE selects the transport.
func NewFetcher(cfg *config.Config, logger *utils.Logger) (*Fetcher, error) {
	var transport PageFetcher
	var err error

	switch cfg.FetchMode {
	case "", "http":
		transport, err = NewHTTPFetcher(cfg.ProxyURL, 20*time.Second)
	case "browser":
		transport, err = NewBrowserFetcher(cfg.ChromeBin, cfg.ProxyURL)
	default:
		err = fmt.Errorf("meli: unknown fetch mode %q", cfg.FetchMode)
	}
	if err != nil {
		return nil, err
	}

	canonClient, err := newHTTPClient(cfg.ProxyURL, 20*time.Second)
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		transport: transport,
		throttle:  utils.NewThrottle(cfg.RequestDelayMs),
		backoff:   time.Duration(cfg.BackoffMs) * time.Millisecond,
		retries:   cfg.MaxRetries,
		logger:    logger,
		canon:     canonClient,
	}, nil
}

// Fetch walks every (year, page) pair inside filters' year range, handing
// each page to handler. A page that yields zero listings ends that year; a
// blocked or failed page is logged and skipped. Only context cancellation
// stops the whole search.
func (f *Fetcher) Fetch(ctx context.Context, filters models.SearchFilters, limits models.PlanLimits, handler PageHandler) ([]models.PageLog, error) {
	var logs []models.PageLog

	for year := filters.YearMin; year <= filters.YearMax; year++ {
		seed := f.BuildSearchURL(filters, year)

		canonical, challenged := f.canonicalize(ctx, seed)
		if challenged {
			f.logger.Warn("[meli] year %d: seed request hit a verification wall — continuing anyway", year)
		}

		for page := 1; page <= limits.PagesPerYear; page++ {
			if err := f.throttle.Wait(ctx); err != nil {
				return logs, err
			}

			pageURL := pageOffsetURL(canonical, page, limits.ItemsPerPage)
			plog := models.PageLog{Year: year, Page: page, URL: pageURL}

			doc, status, err := f.fetchWithPolicy(ctx, pageURL)
			plog.Status = status
			if err != nil {
				if ctx.Err() != nil {
					logs = append(logs, plog)
					return logs, ctx.Err()
				}
				if errors.Is(err, ErrChallenge) {
					plog.Blocked = true
					f.logger.Warn("[meli] year %d page %d blocked by challenge — skipping", year, page)
				} else {
					plog.Error = err.Error()
					f.logger.Warn("[meli] year %d page %d failed: %v — skipping", year, page, err)
				}
				logs = append(logs, plog)
				continue
			}

			count := handler(doc, &plog)
			plog.Listings = count
			logs = append(logs, plog)

			if count == 0 {
				f.logger.Debug("[meli] year %d: page %d empty — end of results", year, page)
				break
			}
		}
	}

	return logs, nil
}

// fetchWithPolicy applies the error taxonomy: challenges get exactly one
// backoff-then-retry, transport errors get the configured retry budget.
func (f *Fetcher) fetchWithPolicy(ctx context.Context, pageURL string) (*goquery.Document, int, error) {
	doc, status, err := f.transport.FetchPage(ctx, pageURL)
	if err == nil {
		return doc, status, nil
	}

	if errors.Is(err, ErrChallenge) {
		select {
		case <-time.After(f.backoff):
		case <-ctx.Done():
			return nil, status, ctx.Err()
		}
		return f.transport.FetchPage(ctx, pageURL)
	}

	retry := &utils.RetryConfig{MaxAttempts: f.retries, BaseDelay: f.backoff, Logger: f.logger}
	rerr := retry.Do(ctx, "fetch-page", func() error {
		doc, status, err = f.transport.FetchPage(ctx, pageURL)
		return err
	})
	if rerr != nil {
		return nil, status, rerr
	}
	return doc, status, nil
}

// BuildSearchURL assembles the search route for one year. This is the only
// place that knows the site's path/query shape.
func (f *Fetcher) BuildSearchURL(filters models.SearchFilters, year int) string {
	var b strings.Builder
	b.WriteString(f.baseURL)

	if seg := transmissionSegment(filters.Transmissions); seg != "" {
		b.WriteString("/" + seg)
	}
	if filters.OnlyDirectOwner {
		b.WriteString("/dueno-directo")
	}

	b.WriteString(fmt.Sprintf("/ano-%d-%d", year, year))

	if filters.PriceMaxARS > 0 {
		b.WriteString(fmt.Sprintf("_PriceRange_%dARS-%dARS", filters.PriceMinARS, filters.PriceMaxARS))
	}
	if filters.KmMax > 0 {
		b.WriteString(fmt.Sprintf("_KILOMETERS_%dkm-%dkm", filters.KmMin, filters.KmMax))
	}

	return b.String()
}

// transmissionSegment returns the route segment when exactly one transmission
// is selected; any other selection keeps the route unfiltered.
func transmissionSegment(ts []models.Transmission) string {
	if len(ts) != 1 {
		return ""
	}
	switch ts[0] {
	case models.TransmissionAutomatic:
		return "automatica"
	case models.TransmissionManual:
		return "manual"
	case models.TransmissionCVT:
		return "cvt"
	}
	return ""
}

// pageOffsetURL appends the _Desde_ pagination suffix for pages past the first.
func pageOffsetURL(seed string, page, itemsPerPage int) string {
	if page <= 1 {
		return seed
	}
	offset := (page-1)*itemsPerPage + 1
	return fmt.Sprintf("%s_Desde_%d", seed, offset)
}

var desdeSuffix = regexp.MustCompile(`(?i)_Desde_\d+/?$`)

// canonicalize resolves the seed URL through redirects and strips any
// pagination suffix the site tacked on. A redirect into the verification
// flow is reported but the original URL is still used.
func (f *Fetcher) canonicalize(ctx context.Context, seed string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seed, nil)
	if err != nil {
		return seed, false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "es-AR,es;q=0.9,en;q=0.8")

	resp, err := f.canon.Do(req)
	if err != nil {
		return seed, false
	}
	defer resp.Body.Close()

	final := resp.Request.URL.String()
	if isVerificationURL(final) {
		return seed, true
	}
	return desdeSuffix.ReplaceAllString(final, ""), false
}

func isVerificationURL(u string) bool {
	return strings.Contains(u, "account-verification") ||
		(strings.Contains(u, "/gz/") && strings.Contains(u, "verification"))
}

// HTTPFetcher retrieves result pages over plain HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds the default transport, optionally through a proxy.
func NewHTTPFetcher(proxyURL string, timeout time.Duration) (*HTTPFetcher, error) {
	client, err := newHTTPClient(proxyURL, timeout)
	if err != nil {
		return nil, err
	}
	return &HTTPFetcher{client: client}, nil
}

// FetchPage implements PageFetcher.
func (h *HTTPFetcher) FetchPage(ctx context.Context, pageURL string) (*goquery.Document, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, &RetrievalError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "es-AR,es;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://autos.mercadolibre.com.ar/")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, &RetrievalError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, fmt.Errorf("status %d: %w", resp.StatusCode, ErrChallenge)
	}
	if isVerificationURL(resp.Request.URL.String()) {
		return nil, resp.StatusCode, fmt.Errorf("redirected to verification: %w", ErrChallenge)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &RetrievalError{
			URL: pageURL, Status: resp.StatusCode,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &RetrievalError{URL: pageURL, Status: resp.StatusCode, Err: err}
	}
	return doc, resp.StatusCode, nil
}

func newHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("meli: invalid proxy url %q: %w", proxyURL, err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
