package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lin-Guanguo/my-deep-research/internal/governance"
	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/tools"
)

type fakeSearcher struct {
	name     string
	needsKey bool
	results  []tools.Result
	err      error
	queries  []tools.Query
}

func (f *fakeSearcher) Name() string             { return f.name }
func (f *fakeSearcher) RequiresCredential() bool { return f.needsKey }

func (f *fakeSearcher) Search(ctx context.Context, q tools.Query) ([]tools.Result, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeFetcher struct {
	articles map[string]*tools.Article
	fetched  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*tools.Article, error) {
	f.fetched = append(f.fetched, rawURL)
	if a, ok := f.articles[rawURL]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("404: %s", rawURL)
}

func researchStep() plan.Step {
	return plan.Step{
		ID:              "step-1",
		Title:           "Survey battery manufacturers",
		StepType:        plan.StepResearch,
		ExpectedOutcome: "Vendor overview",
		Status:          plan.StatusInProgress,
	}
}

func hits(n int) []tools.Result {
	out := make([]tools.Result, n)
	for i := range out {
		out[i] = tools.Result{
			Title:   fmt.Sprintf("Battery vendor %d", i+1),
			URL:     fmt.Sprintf("https://example.com/%d", i+1),
			Snippet: "Solid-state cells enter pilot production.",
		}
	}
	return out
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestResearcher_RunStep(t *testing.T) {
	searcher := &fakeSearcher{name: "tavily", needsKey: true, results: hits(5)}
	r := NewResearcher(searcher, "tvly-key", nil)

	res, err := r.RunStep(context.Background(), ResearchContext{
		Topic:      "Solid-state batteries",
		Locale:     "en-US",
		Step:       researchStep(),
		MaxResults: 4,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "Solid-state batteries | Survey battery manufacturers | en-US", res.Query)
	assert.Len(t, res.Notes, 3)
	assert.Equal(t, []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"}, res.References)
	assert.Equal(t, 5, res.TotalResults)
	assert.Equal(t, 4, res.AppliedMaxResults)
	assert.Equal(t, 3, res.AppliedMaxNotes)
	assert.Empty(t, res.DegradationMode)

	require.Len(t, searcher.queries, 1)
	q := searcher.queries[0]
	assert.Equal(t, "tvly-key", q.Credential)
	assert.Equal(t, 4, q.MaxResults)
	assert.Equal(t, 5*time.Second, q.Timeout)
}

func TestResearcher_LowCostBudgetDegrades(t *testing.T) {
	searcher := &fakeSearcher{name: "tavily", needsKey: true, results: hits(5)}
	r := NewResearcher(searcher, "key", nil)

	res, err := r.RunStep(context.Background(), ResearchContext{
		Topic:           "t",
		Step:            researchStep(),
		MaxResults:      5,
		BudgetCostLimit: floatp(0.5),
	})
	require.NoError(t, err)

	assert.Equal(t, ModeBudget, res.DegradationMode)
	assert.LessOrEqual(t, res.AppliedMaxResults, 2)
	assert.LessOrEqual(t, res.AppliedMaxNotes, 1)
	assert.Len(t, res.Notes, 1)
	assert.Equal(t, res.AppliedMaxResults, searcher.queries[0].MaxResults)
}

func TestResearcher_ClampsInputs(t *testing.T) {
	searcher := &fakeSearcher{name: "duckduckgo", results: hits(1)}
	r := NewResearcher(searcher, "", nil)

	res, err := r.RunStep(context.Background(), ResearchContext{Topic: "t", Step: researchStep()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AppliedMaxResults)
	assert.Equal(t, time.Second, searcher.queries[0].Timeout)
}

func TestResearcher_Failures(t *testing.T) {
	timeoutErr := &tools.SearchError{Provider: "tavily", Timeout: true, Err: context.DeadlineExceeded}

	tests := []struct {
		name       string
		searcher   *fakeSearcher
		credential string
		contains   string
		timeout    bool
		searched   bool
	}{
		{
			name:     "missing key",
			searcher: &fakeSearcher{name: "tavily", needsKey: true, results: hits(2)},
			contains: "missing tavily API key",
		},
		{
			name:       "no results",
			searcher:   &fakeSearcher{name: "tavily", needsKey: true},
			credential: "key",
			contains:   "no usable results",
			searched:   true,
		},
		{
			name:       "results without urls",
			searcher:   &fakeSearcher{name: "tavily", needsKey: true, results: []tools.Result{{Title: "x"}}},
			credential: "key",
			contains:   "no usable results",
			searched:   true,
		},
		{
			name:       "timeout",
			searcher:   &fakeSearcher{name: "tavily", needsKey: true, err: timeoutErr},
			credential: "key",
			contains:   "timed out",
			timeout:    true,
			searched:   true,
		},
		{
			name:       "hard failure",
			searcher:   &fakeSearcher{name: "tavily", needsKey: true, err: &tools.SearchError{Provider: "tavily", Err: errors.New("HTTP 500")}},
			credential: "key",
			contains:   "HTTP 500",
			searched:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResearcher(tt.searcher, tt.credential, nil)
			_, err := r.RunStep(context.Background(), ResearchContext{Topic: "t", Step: researchStep(), MaxResults: 3})

			var rerr *ResearcherError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, "step-1", rerr.StepID)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.timeout, rerr.Timeout())
			assert.Equal(t, tt.searched, len(tt.searcher.queries) > 0)
		})
	}
}

func TestResearcher_PolicyDenies(t *testing.T) {
	searcher := &fakeSearcher{name: "tavily", needsKey: true, results: hits(2)}
	policy, err := governance.NewPolicyEngine(nil, []string{"batter(y|ies)"})
	require.NoError(t, err)

	r := NewResearcher(searcher, "key", nil)
	r.Policy = policy

	_, err = r.RunStep(context.Background(), ResearchContext{Topic: "Solid-state batteries", Step: researchStep(), MaxResults: 3})
	var rerr *ResearcherError
	require.ErrorAs(t, err, &rerr)
	assert.Empty(t, searcher.queries, "denied queries must not reach the provider")
}

func TestResearcher_EnrichesMissingEvidence(t *testing.T) {
	results := []tools.Result{
		{Title: "No snippet", URL: "https://example.com/a"},
		{Title: "Has snippet", URL: "https://example.com/b", Snippet: "kept"},
	}
	fetcher := &fakeFetcher{articles: map[string]*tools.Article{
		"https://example.com/a": {Excerpt: "Fetched excerpt"},
	}}
	r := NewResearcher(&fakeSearcher{name: "duckduckgo", results: results}, "", nil)
	r.Fetcher = fetcher

	res, err := r.RunStep(context.Background(), ResearchContext{Topic: "t", Step: researchStep(), MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, res.Notes, 2)

	assert.Equal(t, "Fetched excerpt", res.Notes[0].EvidenceText())
	assert.InDelta(t, 0.6, *res.Notes[0].Confidence, 1e-9, "confidence is scored on the search snippet")
	assert.Equal(t, "kept", res.Notes[1].EvidenceText())
	assert.Equal(t, []string{"https://example.com/a"}, fetcher.fetched)
}

func TestResolveDegradationMode(t *testing.T) {
	tests := []struct {
		name   string
		hint   string
		tokens *int
		cost   *float64
		want   string
	}{
		{"nothing", "", nil, nil, ""},
		{"healthy budgets", "", intp(5000), floatp(3), ""},
		{"hint only", ModeConservative, nil, nil, ModeConservative},
		{"low tokens", "", intp(499), nil, ModeBudget},
		{"low cost", "", nil, floatp(0.5), ModeBudget},
		{"hint then budget", ModeAggressive, intp(100), nil, "aggressive,budget"},
		{"deduplicated", ModeBudget, intp(10), floatp(0.1), ModeBudget},
		{"carried hint", "aggressive,budget", intp(10), nil, "aggressive,budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDegradationMode(tt.hint, tt.tokens, tt.cost))
		})
	}
}

func TestEffectiveLimits(t *testing.T) {
	tests := []struct {
		mode                 string
		results, notes       int
		wantResults, wantNot int
	}{
		{"", 5, 3, 5, 3},
		{ModeBudget, 5, 3, 2, 1},
		{ModeConservative, 1, 1, 1, 1},
		{ModeAggressive, 5, 3, 2, 1},
		{ModeAggressive, 1, 1, 1, 1},
		{"aggressive,budget", 8, 4, 1, 1},
	}
	for _, tt := range tests {
		gotResults, gotNotes := EffectiveLimits(tt.mode, tt.results, tt.notes)
		assert.Equal(t, tt.wantResults, gotResults, "mode %q results", tt.mode)
		assert.Equal(t, tt.wantNot, gotNotes, "mode %q notes", tt.mode)
		assert.LessOrEqual(t, gotResults, tt.results)
		assert.LessOrEqual(t, gotNotes, tt.notes)
	}
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "a | b | en-US", BuildQuery(" a ", "b", "en-US"))
	assert.Equal(t, "a | en-US", BuildQuery("a", "  ", "en-US"))
	assert.Equal(t, "", BuildQuery("", "", ""))
}

func TestExtractNotes_SkipsDuplicatesAndEmptyURLs(t *testing.T) {
	step := researchStep()
	results := []tools.Result{
		{Title: "First", URL: "https://a"},
		{Title: "Dup", URL: "https://a"},
		{Title: "Empty", URL: "  "},
		{Title: "", URL: "https://b", Snippet: "s"},
	}

	notes, refs := ExtractNotes(step, results, 5)
	require.Len(t, notes, 2)
	assert.Equal(t, []string{"https://a", "https://b"}, refs)
	assert.Equal(t, "First", notes[0].Claim)
	assert.Equal(t, step.ExpectedOutcome, notes[1].Claim, "claim falls back to the expected outcome")
	assert.Nil(t, notes[0].Evidence)
}

func TestEstimateConfidence(t *testing.T) {
	step := researchStep()
	long := strings.Repeat("y", 121)

	assert.InDelta(t, 0.6, EstimateConfidence(step, "", ""), 1e-9)
	assert.InDelta(t, 0.75, EstimateConfidence(step, "", "short"), 1e-9)
	assert.InDelta(t, 0.8, EstimateConfidence(step, "", long), 1e-9)
	assert.InDelta(t, 0.85, EstimateConfidence(step, "Top Battery makers", long), 1e-9)
	assert.InDelta(t, 0.65, EstimateConfidence(step, "MANUFACTURERS ranked", ""), 1e-9)

	for _, title := range []string{"", "survey", "unrelated"} {
		for _, snippet := range []string{"", "x", long} {
			c := EstimateConfidence(step, title, snippet)
			assert.GreaterOrEqual(t, c, 0.5)
			assert.LessOrEqual(t, c, 0.95)
		}
	}
}
