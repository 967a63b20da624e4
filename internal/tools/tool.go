package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"
)

// Result is one normalized web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Query is the input to a search provider.
type Query struct {
	Text       string
	Credential string
	MaxResults int
	Timeout    time.Duration
}

// Searcher turns a query into ranked results. Implementations must honor
// q.Timeout and report failures as *SearchError.
type Searcher interface {
	Name() string
	RequiresCredential() bool
	Search(ctx context.Context, q Query) ([]Result, error)
}

// SearchError is returned by providers when a search cannot be completed.
type SearchError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *SearchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s search timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s search failed: %v", e.Provider, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

func searchError(provider string, err error) *SearchError {
	return &SearchError{Provider: provider, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Registry manages the set of available search providers.
type Registry struct {
	Searchers map[string]Searcher
}

func NewRegistry() *Registry {
	return &Registry{
		Searchers: make(map[string]Searcher),
	}
}

func (r *Registry) Register(s Searcher) {
	r.Searchers[s.Name()] = s
}

func (r *Registry) Get(name string) (Searcher, error) {
	s, ok := r.Searchers[name]
	if !ok {
		return nil, fmt.Errorf("unknown search provider %q (available: %v)", name, r.Names())
	}
	return s, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Searchers))
	for name := range r.Searchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
