package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/telemetry"
)

func samplePlan(t *testing.T) *plan.Plan {
	t.Helper()
	note, err := plan.NewNote("https://example.com/doc", "LangGraph enables declarative graphs",
		plan.WithEvidence("LangGraph docs section 1"),
		plan.WithConfidence(0.8),
	)
	require.NoError(t, err)

	return &plan.Plan{
		Topic: "LangGraph Deep Research",
		Goal:  "Summarize best practices",
		Steps: []plan.Step{
			{
				ID: "step-1", Title: "Collect references", StepType: plan.StepResearch,
				ExpectedOutcome: "List official docs", Status: plan.StatusCompleted,
				Notes: []plan.ResearchNote{note}, References: []string{note.Source},
			},
			{
				ID: "step-2", Title: "Synthesize findings", StepType: plan.StepSynthesize,
				ExpectedOutcome: "Produce guidance", Status: plan.StatusPending,
			},
		},
	}
}

func TestRenderMarkdown_Sections(t *testing.T) {
	p := samplePlan(t)
	m := &telemetry.Metrics{}
	m.Record(telemetry.Call{StepID: "step-1", Query: "LangGraph | Collect references", NoteCount: 1, Measured: true, ResultCount: 3})
	summary := telemetry.Summarize(p, m)

	md := RenderMarkdown(p, &summary, "en-US")

	for _, want := range []string{
		"# Research Report: LangGraph Deep Research (en-US)",
		"**Goal:** Summarize best practices",
		"## Researcher Telemetry",
		"- Total calls: 1",
		"- Search results reviewed: 3",
		"### Per-call Details",
		"`step-1` → 1 notes, 3 results",
		"\\_ Query: LangGraph | Collect references",
		"## Findings by Step",
		"### Step 1: Collect references",
		"- **Claim:** LangGraph enables declarative graphs",
		"  - Confidence: 0.80",
		"### Step 2: Synthesize findings",
		"- No notes captured.",
		"## Citations",
		"| 1 | https://example.com/doc |",
	} {
		assert.Contains(t, md, want)
	}
	assert.NotContains(t, md, "## Low Confidence Notes")
	assert.True(t, strings.HasSuffix(md, "|\n"))
}

func TestRenderMarkdown_LowConfidenceAndBlocked(t *testing.T) {
	p := samplePlan(t)
	low := 0.5
	p.Steps[0].Notes[0].Confidence = &low
	p.Steps[1].Status = plan.StatusBlocked
	reason := "search failed"
	p.Steps[1].ExecutionResult = &reason

	summary := telemetry.Summarize(p, nil)
	md := RenderMarkdown(p, &summary, "")

	assert.Contains(t, md, "# Research Report: LangGraph Deep Research\n")
	assert.Contains(t, md, "- No researcher telemetry available.")
	assert.Contains(t, md, "## Low Confidence Notes")
	assert.Contains(t, md, "(confidence: 0.50)")
	assert.Contains(t, md, "- `step-2` Synthesize findings: search failed")
}

func TestRenderMarkdown_CitationsDeduplicated(t *testing.T) {
	p := samplePlan(t)
	dup, err := plan.NewNote(" https://example.com/doc ", "Same source")
	require.NoError(t, err)
	p.Steps[1].Notes = []plan.ResearchNote{dup}

	md := RenderMarkdown(p, nil, "")
	assert.Equal(t, 1, strings.Count(md, "https://example.com/doc |"))
}

func TestValidateNotes(t *testing.T) {
	conf := 0.4
	notes := []plan.ResearchNote{
		{Source: "https://example.com", Claim: "Example claim"},
		{Source: " ", Claim: "Claim without citation"},
		{Source: "https://example.com/1", Claim: "", Confidence: &conf},
	}

	issues, flags := ValidateNotes(notes, telemetry.LowConfidenceThreshold)
	require.Len(t, issues, 2)
	assert.Equal(t, Issue{Index: 1, Kind: IssueMissingSource, Message: "note.source is empty"}, issues[0])
	assert.Equal(t, IssueMissingClaim, issues[1].Kind)
	require.Len(t, flags, 1)
	assert.Equal(t, 2, flags[0].Index)
	assert.Equal(t, 0.4, flags[0].Confidence)
}

func TestValidatePlan_TagsSteps(t *testing.T) {
	p := samplePlan(t)
	p.Steps[1].Notes = []plan.ResearchNote{{Source: "", Claim: "x"}}

	issues, flags := ValidatePlan(p, 0.9)
	require.Len(t, issues, 1)
	assert.Equal(t, "step-2", issues[0].StepID)
	require.Len(t, flags, 1)
	assert.Equal(t, "step-1", flags[0].StepID)

	issues, flags = ValidatePlan(nil, 0.6)
	assert.Nil(t, issues)
	assert.Nil(t, flags)
}

func TestRenderHTML_Sanitizes(t *testing.T) {
	md := "# Title\n\n<script>alert(1)</script>\n\n| # | Source |\n| --- | --- |\n| 1 | https://example.com |\n"
	page := string(RenderHTML("A <b> report", md))

	assert.Contains(t, page, "<title>A &lt;b&gt; report</title>")
	assert.Contains(t, page, "<h1")
	assert.Contains(t, page, "<table>")
	assert.NotContains(t, page, "<script>")
}

func TestPlanOutline(t *testing.T) {
	p := samplePlan(t)
	tokens := 1000
	p.Metadata.BudgetTokens = &tokens
	out := PlanOutline(p)

	assert.Contains(t, out, "Topic: LangGraph Deep Research")
	assert.Contains(t, out, "  step-1 [RESEARCH] Collect references")
	assert.Contains(t, out, "Budget: 1000 tokens")
}
