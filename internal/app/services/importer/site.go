package importer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/conedex/conedex/internal/httputil"
)

const maxPageBytes = 1 << 20

// SiteScraper reads a shop's own website for details the places provider
// does not return.
type SiteScraper struct {
	client *http.Client
}

// NewSiteScraper creates a scraper. A nil client gets a 10s timeout.
func NewSiteScraper(client *http.Client) *SiteScraper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SiteScraper{client: client}
}

// Description returns the page's meta description, falling back to
// og:description. An empty string with nil error means the page has none.
func (s *SiteScraper) Description(ctx context.Context, pageURL string) (string, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return "", fmt.Errorf("unsupported url %q", pageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "ConeDexBot/1.0 (+https://conedex.app)")
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, _, err := httputil.ReadAllWithLimit(resp.Body, maxPageBytes)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", pageURL, err)
	}

	for _, selector := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if content = strings.Join(strings.Fields(content), " "); content != "" {
				return content, nil
			}
		}
	}
	return "", nil
}
