package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError lists every schema problem found in a plan.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid plan: " + strings.Join(e.Problems, "; ")
}

// Parse decodes the canonical JSON form of a plan and validates it.
// Unknown fields are ignored; steps without a status start as PENDING.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(bytes.TrimSpace(data), &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode renders the canonical JSON form of the plan.
func (p *Plan) Encode() ([]byte, error) {
	cp := p.Clone()
	cp.normalize()
	return json.Marshal(cp)
}

// Validate checks that a plan is well formed.
func (p *Plan) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Topic) == "" {
		problems = append(problems, "topic is required")
	}
	if strings.TrimSpace(p.Goal) == "" {
		problems = append(problems, "goal is required")
	}
	if len(p.Steps) == 0 {
		problems = append(problems, "at least one step is required")
	}

	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		if strings.TrimSpace(s.ID) == "" {
			problems = append(problems, where+".id is required")
		} else if seen[s.ID] {
			problems = append(problems, fmt.Sprintf("%s.id %q is duplicated", where, s.ID))
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Title) == "" {
			problems = append(problems, where+".title is required")
		}
		if !s.StepType.Valid() {
			problems = append(problems, fmt.Sprintf("%s.step_type %q is not one of RESEARCH, PROCESS, SYNTHESIZE, REVIEW", where, s.StepType))
		}
		if !s.Status.Valid() {
			problems = append(problems, fmt.Sprintf("%s.status %q is unknown", where, s.Status))
		}
		if s.Status == StatusCompleted && len(s.Notes) == 0 {
			problems = append(problems, where+" is COMPLETED without notes")
		}
		for j, n := range s.Notes {
			if strings.TrimSpace(n.Source) == "" {
				problems = append(problems, fmt.Sprintf("%s.notes[%d].source is empty", where, j))
			}
			if n.Confidence != nil && (*n.Confidence < 0 || *n.Confidence > 1) {
				problems = append(problems, fmt.Sprintf("%s.notes[%d].confidence out of range", where, j))
			}
		}
	}

	if p.Metadata.BudgetTokens != nil && *p.Metadata.BudgetTokens < 0 {
		problems = append(problems, "metadata.budget_tokens must not be negative")
	}
	if p.Metadata.BudgetCostUSD != nil && *p.Metadata.BudgetCostUSD < 0 {
		problems = append(problems, "metadata.budget_cost_usd must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (p *Plan) normalize() {
	if p.Assumptions == nil {
		p.Assumptions = []string{}
	}
	if p.Risks == nil {
		p.Risks = []string{}
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Status == "" {
			s.Status = StatusPending
		}
		if s.Notes == nil {
			s.Notes = []ResearchNote{}
		}
		if s.References == nil {
			s.References = []string{}
		}
	}
}

// ExtractJSON strips a surrounding markdown code fence from model output.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
