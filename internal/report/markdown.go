// Package report turns a finished plan and its telemetry into documents.
package report

import (
	"fmt"
	"strings"

	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/telemetry"
)

// RenderMarkdown renders the research report. summary may be nil.
func RenderMarkdown(p *plan.Plan, summary *telemetry.Summary, locale string) string {
	var b strings.Builder

	title := "# Research Report: " + p.Topic
	if locale != "" {
		title += " (" + locale + ")"
	}
	b.WriteString(title + "\n\n")
	fmt.Fprintf(&b, "**Goal:** %s\n", p.Goal)

	var metrics *telemetry.Metrics
	if summary != nil {
		metrics = summary.ResearcherMetrics
	}
	writeTelemetry(&b, metrics)
	writeFindings(&b, p.Steps)

	if summary != nil && len(summary.LowConfidence) > 0 {
		b.WriteString("## Low Confidence Notes\n")
		for _, item := range summary.LowConfidence {
			fmt.Fprintf(&b, "- Step `%s`: %s (confidence: %.2f)\n", item.StepID, item.Claim, item.Confidence)
		}
	}

	if blocked := blockedSteps(p); len(blocked) > 0 {
		b.WriteString("\n## Blocked Steps\n")
		for _, s := range blocked {
			line := fmt.Sprintf("- `%s` %s", s.ID, s.Title)
			if s.ExecutionResult != nil && *s.ExecutionResult != "" {
				line += ": " + *s.ExecutionResult
			}
			b.WriteString(line + "\n")
		}
	}

	if citations := collectCitations(p.Steps); len(citations) > 0 {
		b.WriteString("\n## Citations\n")
		b.WriteString("| # | Source |\n")
		b.WriteString("| --- | --- |\n")
		for i, source := range citations {
			fmt.Fprintf(&b, "| %d | %s |\n", i+1, source)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeTelemetry(b *strings.Builder, m *telemetry.Metrics) {
	b.WriteString("\n## Researcher Telemetry\n")
	if m == nil {
		b.WriteString("- No researcher telemetry available.\n")
		return
	}

	fmt.Fprintf(b, "- Total calls: %d\n", m.TotalCalls)
	fmt.Fprintf(b, "- Notes captured: %d\n", m.TotalNotes)
	if m.TotalResults != nil {
		fmt.Fprintf(b, "- Search results reviewed: %d\n", *m.TotalResults)
	}
	if m.TotalDurationSeconds != nil {
		fmt.Fprintf(b, "- Total duration: %.2fs\n", *m.TotalDurationSeconds)
	}
	if len(m.DegradationModes) > 0 {
		fmt.Fprintf(b, "- Degradation modes: %s\n", strings.Join(m.DegradationModes, ", "))
	}

	if len(m.Calls) == 0 {
		return
	}
	b.WriteString("\n### Per-call Details\n")
	for _, call := range m.Calls {
		detail := fmt.Sprintf("- `%s` → %d notes", call.StepID, call.NoteCount)
		if call.ResultCount != nil {
			detail += fmt.Sprintf(", %d results", *call.ResultCount)
		}
		if call.DurationSeconds != nil {
			detail += fmt.Sprintf(", %.2fs", *call.DurationSeconds)
		}
		if call.Query != "" {
			detail += "\n  \\_ Query: " + call.Query
		}
		b.WriteString(detail + "\n")
	}
}

func writeFindings(b *strings.Builder, steps []plan.Step) {
	b.WriteString("\n## Findings by Step\n")
	if len(steps) == 0 {
		b.WriteString("No plan steps available.\n")
		return
	}

	for i, step := range steps {
		fmt.Fprintf(b, "\n### Step %d: %s\n", i+1, step.Title)
		fmt.Fprintf(b, "_Expected outcome:_ %s\n", step.ExpectedOutcome)
		if len(step.Notes) == 0 {
			b.WriteString("- No notes captured.\n")
			continue
		}
		for _, note := range step.Notes {
			writeNote(b, note)
		}
	}
}

func writeNote(b *strings.Builder, n plan.ResearchNote) {
	fmt.Fprintf(b, "- **Claim:** %s\n", n.Claim)
	if ev := n.EvidenceText(); ev != "" {
		fmt.Fprintf(b, "  - Evidence: %s\n", ev)
	}
	if n.Source != "" {
		fmt.Fprintf(b, "  - Source: %s\n", n.Source)
	}
	if n.Confidence != nil {
		fmt.Fprintf(b, "  - Confidence: %.2f\n", *n.Confidence)
	}
	if n.Todo != nil && *n.Todo != "" {
		fmt.Fprintf(b, "  - Follow-up: %s\n", *n.Todo)
	}
}

func blockedSteps(p *plan.Plan) []plan.Step {
	var out []plan.Step
	for _, s := range p.Steps {
		if s.Status == plan.StatusBlocked {
			out = append(out, s)
		}
	}
	return out
}

// collectCitations returns note sources in first-seen order.
func collectCitations(steps []plan.Step) []string {
	seen := make(map[string]bool)
	var ordered []string
	for _, step := range steps {
		for _, note := range step.Notes {
			source := strings.TrimSpace(note.Source)
			if source == "" || seen[source] {
				continue
			}
			seen[source] = true
			ordered = append(ordered, source)
		}
	}
	return ordered
}

// PlanOutline renders a proposed plan for a reviewer.
func PlanOutline(p *plan.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", p.Topic)
	fmt.Fprintf(&b, "Goal: %s\n", p.Goal)
	b.WriteString("Assumptions:\n")
	for _, item := range p.Assumptions {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	b.WriteString("Risks:\n")
	for _, item := range p.Risks {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	b.WriteString("Steps:\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "  %s [%s] %s\n", s.ID, s.StepType, s.Title)
		fmt.Fprintf(&b, "     Expected outcome: %s\n", s.ExpectedOutcome)
	}
	if m := p.Metadata; m.BudgetTokens != nil || m.BudgetCostUSD != nil {
		b.WriteString("Budget:")
		if m.BudgetTokens != nil {
			fmt.Fprintf(&b, " %d tokens", *m.BudgetTokens)
		}
		if m.BudgetCostUSD != nil {
			fmt.Fprintf(&b, " $%.2f", *m.BudgetCostUSD)
		}
		b.WriteString("\n")
	}
	return b.String()
}
