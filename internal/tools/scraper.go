package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Article is the readable content extracted from a web page.
type Article struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
	Content string `json:"content"`
}

// Fetcher downloads a page and extracts its readable article.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Article, error)
}

const defaultMaxContent = 50000

// Crawler fetches pages over plain HTTP.
type Crawler struct {
	UserAgent  string
	Client     *http.Client
	MaxContent int
}

func NewCrawler(timeout time.Duration) *Crawler {
	return &Crawler{
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		Client:     &http.Client{Timeout: timeout},
		MaxContent: defaultMaxContent,
	}
}

func (c *Crawler) Fetch(ctx context.Context, rawURL string) (*Article, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	return extractArticle(resp.Body, parsedURL, c.MaxContent)
}

// extractArticle runs readability over an HTML document and strips any
// markup that survives.
func extractArticle(r io.Reader, pageURL *url.URL, maxContent int) (*Article, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse article: %w", err)
	}

	p := bluemonday.StrictPolicy()
	content := strings.TrimSpace(p.Sanitize(article.TextContent))
	if maxContent > 0 && len(content) > maxContent {
		content = content[:maxContent] + "\n... (content truncated) ..."
	}

	return &Article{
		URL:     pageURL.String(),
		Title:   strings.TrimSpace(p.Sanitize(article.Title)),
		Excerpt: strings.TrimSpace(p.Sanitize(article.Excerpt)),
		Content: content,
	}, nil
}

// Summary returns the excerpt, or the head of the content when the page
// has no excerpt.
func (a *Article) Summary(limit int) string {
	text := a.Excerpt
	if text == "" {
		text = a.Content
	}
	if r := []rune(text); limit > 0 && len(r) > limit {
		text = strings.TrimSpace(string(r[:limit])) + "..."
	}
	return text
}
