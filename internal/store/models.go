package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Lin-Guanguo/my-deep-research/internal/plan"
	"github.com/Lin-Guanguo/my-deep-research/internal/telemetry"
	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
)

// RunTelemetry is the optional telemetry attached to a persisted run.
type RunTelemetry struct {
	Researcher *telemetry.Metrics `json:"researcher,omitempty"`
}

// RunRecord is one persisted, non-aborted run.
type RunRecord struct {
	Timestamp time.Time                 `json:"timestamp"`
	Question  string                    `json:"question"`
	Locale    string                    `json:"locale"`
	Context   string                    `json:"context"`
	Plan      *plan.Plan                `json:"plan"`
	ReviewLog []workflow.ReviewLogEntry `json:"review_log"`
	Telemetry *RunTelemetry             `json:"telemetry,omitempty"`
}

// NewRunRecord captures the persistable part of a finished run.
func NewRunRecord(st *workflow.State, ts time.Time) RunRecord {
	rec := RunRecord{
		Timestamp: ts.UTC(),
		Question:  strings.TrimSpace(st.Topic),
		Locale:    strings.TrimSpace(st.Locale),
		Context:   strings.TrimSpace(st.Metadata.Context),
		Plan:      st.Plan.Clone(),
		ReviewLog: append([]workflow.ReviewLogEntry{}, st.Metadata.ReviewLog...),
	}
	if m := st.Metadata.ResearcherMetrics; m != nil {
		rec.Telemetry = &RunTelemetry{Researcher: m.Clone()}
	}
	return rec
}

// Validate checks the record against the persisted schema.
func (r *RunRecord) Validate() error {
	var problems []string
	if r.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}
	if strings.TrimSpace(r.Question) == "" {
		problems = append(problems, "question is required")
	}
	if strings.TrimSpace(r.Locale) == "" {
		problems = append(problems, "locale is required")
	}
	if r.Plan == nil {
		problems = append(problems, "plan is required")
	} else if err := r.Plan.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	for i, entry := range r.ReviewLog {
		if entry.Attempt < 1 {
			problems = append(problems, fmt.Sprintf("review_log[%d].attempt must be >= 1", i))
		}
		if !entry.Action.Valid() {
			problems = append(problems, fmt.Sprintf("review_log[%d].action %q is not a review action", i, entry.Action))
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ParseRecord decodes and validates one JSONL line. Telemetry that does not
// match the strict schema is rebuilt with CoerceMetrics.
func ParseRecord(line []byte) (*RunRecord, error) {
	var raw struct {
		RunRecord
		Plan      json.RawMessage `json:"plan"`
		Telemetry json.RawMessage `json:"telemetry"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	rec := raw.RunRecord
	rec.Question = strings.TrimSpace(rec.Question)
	rec.Locale = strings.TrimSpace(rec.Locale)
	rec.Context = strings.TrimSpace(rec.Context)
	for i := range rec.ReviewLog {
		rec.ReviewLog[i].Feedback = strings.TrimSpace(rec.ReviewLog[i].Feedback)
	}

	if len(raw.Plan) > 0 && string(raw.Plan) != "null" {
		p, err := plan.Parse(raw.Plan)
		if err != nil {
			return nil, err
		}
		rec.Plan = p
	}

	if researcher := gjson.GetBytes(raw.Telemetry, "researcher"); researcher.Exists() && researcher.Type != gjson.Null {
		var m telemetry.Metrics
		if err := json.Unmarshal([]byte(researcher.Raw), &m); err != nil {
			m = *CoerceMetrics([]byte(researcher.Raw))
		}
		rec.Telemetry = &RunTelemetry{Researcher: &m}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CoerceMetrics rebuilds researcher metrics from loosely typed JSON, such as
// numbers encoded as strings. Call entries without a step id are dropped and
// unparseable optional values become absent.
func CoerceMetrics(payload []byte) *telemetry.Metrics {
	doc := gjson.ParseBytes(payload)
	m := &telemetry.Metrics{Calls: []telemetry.CallRecord{}}

	doc.Get("calls").ForEach(func(_, call gjson.Result) bool {
		if !call.IsObject() {
			return true
		}
		stepID := strings.TrimSpace(call.Get("step_id").String())
		if stepID == "" {
			return true
		}
		m.Calls = append(m.Calls, telemetry.CallRecord{
			StepID:          stepID,
			Query:           strings.TrimSpace(call.Get("query").String()),
			NoteCount:       int(call.Get("note_count").Int()),
			DurationSeconds: optFloat(call.Get("duration_seconds")),
			ResultCount:     optInt(call.Get("result_count")),
			DegradationMode: call.Get("degradation_mode").String(),
		})
		return true
	})

	if v := doc.Get("total_calls"); v.Exists() {
		m.TotalCalls = int(v.Int())
	} else {
		m.TotalCalls = len(m.Calls)
	}
	m.TotalNotes = int(doc.Get("total_notes").Int())
	m.TotalDurationSeconds = optFloat(doc.Get("total_duration_seconds"))
	m.TotalResults = optInt(doc.Get("total_results"))
	doc.Get("degradation_modes").ForEach(func(_, mode gjson.Result) bool {
		if s := mode.String(); s != "" {
			m.DegradationModes = append(m.DegradationModes, s)
		}
		return true
	})
	return m
}

func optFloat(v gjson.Result) *float64 {
	if !numeric(v) {
		return nil
	}
	f := v.Float()
	return &f
}

func optInt(v gjson.Result) *int {
	if !numeric(v) {
		return nil
	}
	i := int(v.Int())
	return &i
}

// numeric reports whether v is a number or a string holding one.
func numeric(v gjson.Result) bool {
	switch v.Type {
	case gjson.Number:
		return true
	case gjson.String:
		_, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return err == nil
	}
	return false
}
