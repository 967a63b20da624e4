package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// DuckDuckGo searches without a credential through langchaingo's tool.
type DuckDuckGo struct {
	UserAgent string
}

func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{UserAgent: duckduckgo.DefaultUserAgent}
}

func (d *DuckDuckGo) Name() string {
	return "duckduckgo"
}

func (d *DuckDuckGo) RequiresCredential() bool {
	return false
}

func (d *DuckDuckGo) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	client, err := duckduckgo.New(max(1, q.MaxResults), d.UserAgent)
	if err != nil {
		return nil, searchError(d.Name(), err)
	}

	raw, err := client.Call(ctx, q.Text)
	if err != nil {
		return nil, searchError(d.Name(), err)
	}
	return parseDuckDuckGo(raw), nil
}

// parseDuckDuckGo reads the "Title:/Description:/URL:" blocks produced by
// the langchaingo tool. Blocks without a URL are dropped.
func parseDuckDuckGo(raw string) []Result {
	var results []Result
	for _, block := range strings.Split(raw, "\n\n") {
		var r Result
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Title:"):
				r.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
			case strings.HasPrefix(line, "Description:"):
				r.Snippet = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
			case strings.HasPrefix(line, "URL:"):
				r.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
			}
		}
		if r.URL != "" {
			results = append(results, r)
		}
	}
	return results
}

const TavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	Endpoint string
	Client   *http.Client
}

func NewTavily() *Tavily {
	return &Tavily{Endpoint: TavilyEndpoint, Client: &http.Client{}}
}

func (t *Tavily) Name() string {
	return "tavily"
}

func (t *Tavily) RequiresCredential() bool {
	return true
}

func (t *Tavily) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Credential == "" {
		return nil, searchError(t.Name(), errors.New("API key is required"))
	}
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(map[string]any{
		"api_key":     q.Credential,
		"query":       q.Text,
		"max_results": q.MaxResults,
	})
	if err != nil {
		return nil, searchError(t.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, searchError(t.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, searchError(t.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, searchError(t.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, searchError(t.Name(), fmt.Errorf("status code %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	results := gjson.GetBytes(body, "results")
	if !results.Exists() {
		return nil, searchError(t.Name(), errors.New("response missing 'results' field"))
	}
	return normalizeResults(results), nil
}

// normalizeResults maps provider fields to the canonical result shape.
// Tavily names the excerpt "content"; "snippet" wins when both exist.
func normalizeResults(raw gjson.Result) []Result {
	var out []Result
	raw.ForEach(func(_, item gjson.Result) bool {
		snippet := item.Get("snippet").String()
		if snippet == "" {
			snippet = item.Get("content").String()
		}
		out = append(out, Result{
			Title:   item.Get("title").String(),
			URL:     item.Get("url").String(),
			Snippet: snippet,
		})
		return true
	})
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
