package meli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher retrieves result pages through headless Chrome. Useful when
// the plain HTTP transport keeps landing on the JS-walled variant of the
// result page.
type BrowserFetcher struct {
	allocOpts []chromedp.ExecAllocatorOption
}

// NewBrowserFetcher locates a Chrome binary and prepares allocator options.
func NewBrowserFetcher(chromeBin, proxyURL string) (*BrowserFetcher, error) {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	if chromeBin == "" {
		return nil, fmt.Errorf("meli: no Chrome/Chromium binary found for browser fetch mode")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
		chromedp.ExecPath(chromeBin),
	)
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}

	return &BrowserFetcher{allocOpts: opts}, nil
}

// FetchPage implements PageFetcher: navigates, waits for the cards to render,
// and hands the page HTML to goquery.
func (b *BrowserFetcher) FetchPage(ctx context.Context, pageURL string) (*goquery.Document, int, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocOpts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 60*time.Second)
	defer cancelTimeout()

	var html, location string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, 0, &RetrievalError{URL: pageURL, Err: err}
	}

	if isVerificationURL(location) {
		return nil, http.StatusOK, fmt.Errorf("browser landed on verification: %w", ErrChallenge)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, http.StatusOK, &RetrievalError{URL: pageURL, Err: err}
	}
	return doc, http.StatusOK, nil
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
