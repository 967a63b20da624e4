package telemetry

import (
	"github.com/montanaflynn/stats"

	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
)

// LowConfidenceThreshold marks notes the reporter should flag.
const LowConfidenceThreshold = 0.6

// LowConfidenceNote is a note whose confidence fell below the threshold.
type LowConfidenceNote struct {
	StepID     string  `json:"step_id"`
	Claim      string  `json:"claim"`
	Confidence float64 `json:"confidence"`
}

// Summary is the reporter's view of a finished run.
type Summary struct {
	TotalNotes        int                 `json:"total_notes"`
	AverageConfidence *float64            `json:"average_confidence"`
	LowConfidence     []LowConfidenceNote `json:"low_confidence"`
	BlockedSteps      []string            `json:"blocked_steps,omitempty"`
	ResearcherMetrics *Metrics            `json:"researcher_metrics"`
}

// Summarize builds a reporter summary. A nil plan yields the zero summary
// with the metrics still attached.
func Summarize(p *plan.Plan, m *Metrics) Summary {
	summary := Summary{
		LowConfidence:     []LowConfidenceNote{},
		ResearcherMetrics: m.Clone(),
	}
	if p == nil {
		return summary
	}

	var confidences stats.Float64Data
	for _, step := range p.Steps {
		if step.Status == plan.StatusBlocked {
			summary.BlockedSteps = append(summary.BlockedSteps, step.ID)
		}
		for _, note := range step.Notes {
			summary.TotalNotes++
			if note.Confidence == nil {
				continue
			}
			confidences = append(confidences, *note.Confidence)
			if *note.Confidence < LowConfidenceThreshold {
				summary.LowConfidence = append(summary.LowConfidence, LowConfidenceNote{
					StepID:     step.ID,
					Claim:      note.Claim,
					Confidence: *note.Confidence,
				})
			}
		}
	}

	if len(confidences) > 0 {
		if avg, err := stats.Mean(confidences); err == nil {
			summary.AverageConfidence = &avg
		}
	}
	return summary
}
