package workflow

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Question is one entry of a batch.
type Question struct {
	Topic   string `yaml:"question" json:"question"`
	Locale  string `yaml:"locale,omitempty" json:"locale,omitempty"`
	Context string `yaml:"context,omitempty" json:"context,omitempty"`
}

// BatchResult pairs a question with the outcome of its run.
type BatchResult struct {
	Question Question
	Result   *Result
	Err      error
}

// RunBatch runs every question on its own state, at most parallel at a time.
// Results keep the input order. A failed run does not stop the others.
func (e *Engine) RunBatch(ctx context.Context, questions []Question, parallel int) []BatchResult {
	results := make([]BatchResult, len(questions))
	if parallel <= 0 {
		parallel = 1
	}

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, q := range questions {
		g.Go(func() error {
			st := NewState(q.Topic, q.Locale, q.Context)
			res, err := e.Run(ctx, st)
			if err != nil {
				e.log().Error("batch run failed",
					zap.Int("index", i),
					zap.String("run_id", st.RunID),
					zap.Error(err))
			}
			results[i] = BatchResult{Question: q, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
