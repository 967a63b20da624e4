package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Lin-Guanguo/my-deep-research/internal/governance"
	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/tools"
)

const (
	lowTokenBudget = 500
	lowCostBudget  = 1.0

	ModeBudget       = "budget"
	ModeConservative = "conservative"
	ModeAggressive   = "aggressive"
)

// ResearcherError is returned when a step cannot be researched. It is not
// fatal to the run: the step is marked BLOCKED and the workflow moves on.
type ResearcherError struct {
	StepID string
	Msg    string
	Err    error
}

func (e *ResearcherError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("research step %s: %s: %v", e.StepID, e.Msg, e.Err)
	}
	return fmt.Sprintf("research step %s: %s", e.StepID, e.Msg)
}

func (e *ResearcherError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying search timed out.
func (e *ResearcherError) Timeout() bool {
	var serr *tools.SearchError
	return errors.As(e.Err, &serr) && serr.Timeout
}

// ResearchContext is everything the researcher needs to execute one step.
type ResearchContext struct {
	Topic                 string
	Locale                string
	Step                  plan.Step
	MaxResults            int
	Timeout               time.Duration
	MaxNotes              *int
	BudgetTokensRemaining *int
	BudgetCostLimit       *float64
	DegradationHint       string
}

// ResearchResult is what a successful step execution produced.
// Notes and References are 1:1.
type ResearchResult struct {
	Query             string
	Notes             []plan.ResearchNote
	References        []string
	Duration          time.Duration
	TotalResults      int
	AppliedMaxResults int
	AppliedMaxNotes   int
	DegradationMode   string
}

// Researcher fills plan steps with evidence from a search provider.
type Researcher struct {
	Searcher   tools.Searcher
	Credential string
	Policy     governance.PolicyEngine
	Fetcher    tools.Fetcher
	Logger     *observability.Logger
}

func NewResearcher(searcher tools.Searcher, credential string, logger *observability.Logger) *Researcher {
	return &Researcher{
		Searcher:   searcher,
		Credential: credential,
		Logger:     logger,
	}
}

// RunStep executes a single plan step and returns the captured notes.
func (r *Researcher) RunStep(ctx context.Context, rc ResearchContext) (*ResearchResult, error) {
	stepID := rc.Step.ID
	if r.Searcher.RequiresCredential() && r.Credential == "" {
		return nil, &ResearcherError{StepID: stepID, Msg: fmt.Sprintf("missing %s API key; cannot execute research step", r.Searcher.Name())}
	}

	maxResults := max(1, rc.MaxResults)
	timeout := max(time.Second, rc.Timeout)

	mode := ResolveDegradationMode(rc.DegradationHint, rc.BudgetTokensRemaining, rc.BudgetCostLimit)
	baseNotes := min(3, maxResults)
	if rc.MaxNotes != nil && *rc.MaxNotes > 0 {
		baseNotes = *rc.MaxNotes
	}
	effResults, effNotes := EffectiveLimits(mode, maxResults, baseNotes)

	query := BuildQuery(rc.Topic, rc.Step.Title, rc.Locale)

	if r.Policy != nil {
		decision, err := r.Policy.Evaluate(ctx, governance.Request{Provider: r.Searcher.Name(), Query: query, StepID: stepID})
		if err != nil {
			return nil, &ResearcherError{StepID: stepID, Msg: "policy evaluation failed", Err: err}
		}
		if decision.Effect == governance.EffectDeny {
			return nil, &ResearcherError{StepID: stepID, Msg: decision.Reason}
		}
	}

	r.log().LogResearch(stepID, query, effResults, effNotes, mode)

	started := time.Now()
	results, err := r.Searcher.Search(ctx, tools.Query{
		Text:       query,
		Credential: r.Credential,
		MaxResults: effResults,
		Timeout:    timeout,
	})
	duration := time.Since(started)
	if err != nil {
		return nil, &ResearcherError{StepID: stepID, Msg: "search failed", Err: err}
	}

	notes, refs := ExtractNotes(rc.Step, results, effNotes)
	if len(notes) == 0 {
		return nil, &ResearcherError{StepID: stepID, Msg: fmt.Sprintf("%s returned no usable results for this step", r.Searcher.Name())}
	}
	if r.Fetcher != nil {
		r.enrich(ctx, notes)
	}

	return &ResearchResult{
		Query:             query,
		Notes:             notes,
		References:        refs,
		Duration:          duration,
		TotalResults:      len(results),
		AppliedMaxResults: effResults,
		AppliedMaxNotes:   effNotes,
		DegradationMode:   mode,
	}, nil
}

// enrich fills missing evidence from the fetched article. Failures are
// logged and leave the note as it was.
func (r *Researcher) enrich(ctx context.Context, notes []plan.ResearchNote) {
	for i := range notes {
		if notes[i].Evidence != nil {
			continue
		}
		article, err := r.Fetcher.Fetch(ctx, notes[i].Source)
		if err != nil {
			r.log().Warn("article fetch failed", zap.String("url", notes[i].Source), zap.Error(err))
			continue
		}
		if summary := article.Summary(400); summary != "" {
			notes[i].Evidence = &summary
		}
	}
}

func (r *Researcher) log() *observability.Logger {
	if r.Logger == nil {
		return observability.NewNop()
	}
	return r.Logger
}

// ResolveDegradationMode returns the comma-joined degradation modes in the
// order first seen: the hint tokens, then "budget" when either budget is low.
func ResolveDegradationMode(hint string, tokensRemaining *int, costLimit *float64) string {
	var modes []string
	add := func(m string) {
		for _, existing := range modes {
			if existing == m {
				return
			}
		}
		modes = append(modes, m)
	}

	for _, token := range strings.Split(hint, ",") {
		if token = strings.TrimSpace(token); token != "" {
			add(token)
		}
	}
	if tokensRemaining != nil && *tokensRemaining < lowTokenBudget {
		add(ModeBudget)
	}
	if costLimit != nil && *costLimit < lowCostBudget {
		add(ModeBudget)
	}
	return strings.Join(modes, ",")
}

// EffectiveLimits shrinks the result and note caps for a degradation mode.
// Limits are only ever lowered.
func EffectiveLimits(mode string, maxResults, maxNotes int) (int, int) {
	if mode == "" {
		return maxResults, maxNotes
	}
	if strings.Contains(mode, ModeBudget) {
		maxResults = min(maxResults, 2)
		maxNotes = min(maxNotes, 1)
	}
	if strings.Contains(mode, ModeConservative) {
		maxResults = min(maxResults, 2)
		maxNotes = min(maxNotes, 1)
	}
	if strings.Contains(mode, ModeAggressive) {
		maxResults = max(1, maxResults/2)
		maxNotes = max(1, maxNotes/2)
	}
	return maxResults, maxNotes
}

// BuildQuery joins the non-empty parts with " | ".
func BuildQuery(topic, stepTitle, locale string) string {
	var parts []string
	for _, p := range []string{topic, stepTitle, locale} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " | ")
}

// ExtractNotes converts search results into notes, skipping empty and
// repeated URLs, until maxNotes notes are collected.
func ExtractNotes(step plan.Step, results []tools.Result, maxNotes int) ([]plan.ResearchNote, []string) {
	var (
		notes []plan.ResearchNote
		refs  []string
	)
	seen := make(map[string]bool)

	for _, item := range results {
		if len(notes) >= maxNotes {
			break
		}
		url := strings.TrimSpace(item.URL)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true

		title := strings.TrimSpace(item.Title)
		snippet := strings.TrimSpace(item.Snippet)
		claim := title
		if claim == "" {
			claim = step.ExpectedOutcome
		}

		note, err := plan.NewNote(url, claim,
			plan.WithEvidence(snippet),
			plan.WithConfidence(EstimateConfidence(step, title, snippet)),
		)
		if err != nil {
			continue
		}
		notes = append(notes, note)
		refs = append(refs, url)
	}
	return notes, refs
}

// EstimateConfidence scores a search hit against the step it serves.
// The score is always within [0.5, 0.95].
func EstimateConfidence(step plan.Step, title, snippet string) float64 {
	score := 0.6
	if snippet != "" {
		score += 0.15
		if utf8.RuneCountInString(snippet) > 120 {
			score += 0.05
		}
	}
	if title != "" {
		lower := strings.ToLower(title)
		for _, kw := range stepKeywords(step) {
			if strings.Contains(lower, kw) {
				score += 0.05
				break
			}
		}
	}
	return max(0.5, min(score, 0.95))
}

func stepKeywords(step plan.Step) []string {
	var tokens []string
	for _, text := range []string{step.Title, step.ExpectedOutcome} {
		for _, word := range strings.Fields(text) {
			if utf8.RuneCountInString(word) > 3 {
				tokens = append(tokens, strings.ToLower(word))
			}
		}
	}
	return tokens
}
