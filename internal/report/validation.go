package report

import (
	"strings"

	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
)

// Issue kinds.
const (
	IssueMissingSource = "missing_source"
	IssueMissingClaim  = "missing_claim"
)

// Issue is a blocking problem found in a note.
type Issue struct {
	StepID  string `json:"step_id,omitempty"`
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// LowConfidenceFlag marks a note below the confidence threshold.
type LowConfidenceFlag struct {
	StepID     string  `json:"step_id,omitempty"`
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
	Claim      string  `json:"claim"`
}

// ValidateNotes checks citations and claims and flags notes whose
// confidence is below threshold.
func ValidateNotes(notes []plan.ResearchNote, threshold float64) ([]Issue, []LowConfidenceFlag) {
	var (
		issues []Issue
		flags  []LowConfidenceFlag
	)
	for i, n := range notes {
		if strings.TrimSpace(n.Source) == "" {
			issues = append(issues, Issue{Index: i, Kind: IssueMissingSource, Message: "note.source is empty"})
		}
		if strings.TrimSpace(n.Claim) == "" {
			issues = append(issues, Issue{Index: i, Kind: IssueMissingClaim, Message: "note.claim is empty"})
		}
		if n.Confidence != nil && *n.Confidence < threshold {
			flags = append(flags, LowConfidenceFlag{Index: i, Confidence: *n.Confidence, Claim: n.Claim})
		}
	}
	return issues, flags
}

// ValidatePlan runs ValidateNotes over every step, tagging results with the step id.
func ValidatePlan(p *plan.Plan, threshold float64) ([]Issue, []LowConfidenceFlag) {
	var (
		issues []Issue
		flags  []LowConfidenceFlag
	)
	if p == nil {
		return nil, nil
	}
	for _, s := range p.Steps {
		stepIssues, stepFlags := ValidateNotes(s.Notes, threshold)
		for _, is := range stepIssues {
			is.StepID = s.ID
			issues = append(issues, is)
		}
		for _, f := range stepFlags {
			f.StepID = s.ID
			flags = append(flags, f)
		}
	}
	return issues, flags
}
