package scraperapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/palomar-labs/entity-research-pipeline/internal/search"
)

const (
	defaultBaseURL    = "https://api.scraperapi.com/"
	defaultMaxResults = 5

	// Google SERP result block selectors. Adjust if the markup changes.
	resultBlockSelector = "div.g"
	titleSelector       = "h3"
	linkSelector        = "a[href]"
	snippetSelector     = "div.VwiC3b"
)

type Config struct {
	APIKey string

	// BaseURL overrides the ScraperAPI endpoint. Useful for proxies/testing.
	BaseURL string

	// MaxResults caps how many parsed records are returned per query.
	MaxResults int

	HTTPClient *http.Client
}

// Client issues Google searches through the ScraperAPI render proxy and
// parses the returned SERP HTML into records.
type Client struct {
	apiKey     string
	baseURL    string
	maxResults int
	http       *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("SCRAPERAPI_KEY is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		maxResults: maxResults,
		http:       hc,
	}, nil
}

// Search fetches one Google SERP for the query and returns up to
// MaxResults parsed records. An empty or result-free page is not an
// error: it yields an empty slice.
func (c *Client) Search(ctx context.Context, query string) ([]search.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(query), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scraperapi: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		statusErr := fmt.Errorf("scraperapi: unexpected status %s", resp.Status)
		if resp.StatusCode == 429 || resp.StatusCode/100 == 5 {
			return nil, &search.TransientError{Err: statusErr}
		}
		return nil, statusErr
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, nil
	}

	records, err := parseSERP(strings.NewReader(string(body)), c.maxResults)
	if err != nil {
		return nil, fmt.Errorf("scraperapi: parse serp html: %w", err)
	}
	return records, nil
}

func (c *Client) requestURL(query string) string {
	target := "https://www.google.com/search?q=" + url.QueryEscape(query)
	v := url.Values{}
	v.Set("api_key", c.apiKey)
	v.Set("url", target)
	return strings.TrimRight(c.baseURL, "/") + "/?" + v.Encode()
}

func parseSERP(r io.Reader, maxResults int) ([]search.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var records []search.Record
	doc.Find(resultBlockSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(records) >= maxResults {
			return false
		}
		link, _ := s.Find(linkSelector).First().Attr("href")
		if !strings.HasPrefix(link, "http") {
			return true
		}
		records = append(records, search.Record{
			Title:   strings.TrimSpace(s.Find(titleSelector).First().Text()),
			Link:    link,
			Snippet: strings.TrimSpace(s.Find(snippetSelector).First().Text()),
		})
		return true
	})
	return records, nil
}
