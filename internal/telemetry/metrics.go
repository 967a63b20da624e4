package telemetry

import "time"

// CallRecord describes one successful researcher invocation.
type CallRecord struct {
	StepID          string   `json:"step_id"`
	Query           string   `json:"query"`
	NoteCount       int      `json:"note_count"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	ResultCount     *int     `json:"result_count,omitempty"`
	DegradationMode string   `json:"degradation_mode,omitempty"`
}

// Metrics accumulates researcher activity over a run. Totals only grow.
type Metrics struct {
	TotalCalls           int          `json:"total_calls"`
	TotalNotes           int          `json:"total_notes"`
	TotalDurationSeconds *float64     `json:"total_duration_seconds,omitempty"`
	TotalResults         *int         `json:"total_results,omitempty"`
	DegradationModes     []string     `json:"degradation_modes,omitempty"`
	Calls                []CallRecord `json:"calls"`
}

// Call is the input to Record. Duration and ResultCount are only read when
// Measured is set, so a measured zero still counts.
type Call struct {
	StepID          string
	Query           string
	NoteCount       int
	Measured        bool
	Duration        time.Duration
	ResultCount     int
	DegradationMode string
}

// Record folds one researcher call into the running totals. Unmeasured
// calls leave the duration and result totals untouched.
func (m *Metrics) Record(c Call) {
	m.TotalCalls++
	m.TotalNotes += c.NoteCount

	rec := CallRecord{
		StepID:          c.StepID,
		Query:           c.Query,
		NoteCount:       c.NoteCount,
		DegradationMode: c.DegradationMode,
	}

	if c.Measured {
		secs := c.Duration.Seconds()
		total := secs
		if m.TotalDurationSeconds != nil {
			total += *m.TotalDurationSeconds
		}
		m.TotalDurationSeconds = &total
		rec.DurationSeconds = &secs
	}

	if c.Measured {
		count := c.ResultCount
		total := count
		if m.TotalResults != nil {
			total += *m.TotalResults
		}
		m.TotalResults = &total
		rec.ResultCount = &count
	}

	if c.DegradationMode != "" && !contains(m.DegradationModes, c.DegradationMode) {
		m.DegradationModes = append(m.DegradationModes, c.DegradationMode)
	}

	m.Calls = append(m.Calls, rec)
}

// Clone returns a deep copy safe to hand to readers.
func (m *Metrics) Clone() *Metrics {
	if m == nil {
		return nil
	}
	cp := *m
	if m.TotalDurationSeconds != nil {
		v := *m.TotalDurationSeconds
		cp.TotalDurationSeconds = &v
	}
	if m.TotalResults != nil {
		v := *m.TotalResults
		cp.TotalResults = &v
	}
	cp.DegradationModes = append([]string(nil), m.DegradationModes...)
	cp.Calls = append([]CallRecord(nil), m.Calls...)
	return &cp
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
