package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lin-Guanguo/my-deep-research/internal/telemetry"
	"github.com/Lin-Guanguo/my-deep-research/internal/workflow"
)

const maxErrorLen = 240

// maxLineBytes caps a single run log record.
var maxLineBytes = 16 << 20

// LineError reports a malformed record in a run log.
type LineError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// AppendJSONL appends rec as one line to the log at path.
func AppendJSONL(path string, rec RunRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid record: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// ReadJSONL parses every non-blank line of r. Malformed or oversized lines
// are reported and skipped; only read failures are returned as an error.
func ReadJSONL(r io.Reader) ([]RunRecord, []LineError, error) {
	var (
		records []RunRecord
		bad     []LineError
	)
	br := bufio.NewReader(r)
	line := 0
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			if rec, lerr := parseLine(line, raw); lerr != nil {
				bad = append(bad, *lerr)
			} else if rec != nil {
				records = append(records, *rec)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, bad, fmt.Errorf("read run log: %w", err)
		}
	}
	return records, bad, nil
}

func parseLine(line int, raw []byte) (*RunRecord, *LineError) {
	if len(raw) > maxLineBytes {
		msg := fmt.Sprintf("line is %d bytes, limit is %d", len(raw), maxLineBytes)
		return nil, &LineError{Line: line, Error: msg}
	}
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, nil
	}
	rec, err := ParseRecord(payload)
	if err != nil {
		return nil, &LineError{Line: line, Error: truncateError(err.Error(), maxErrorLen)}
	}
	return rec, nil
}

// LoadJSONL reads the log at path. A missing file yields os.ErrNotExist.
func LoadJSONL(path string) ([]RunRecord, []LineError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadJSONL(f)
}

func truncateError(msg string, limit int) string {
	msg = strings.TrimSpace(msg)
	r := []rune(msg)
	if len(r) <= limit {
		return msg
	}
	return string(r[:limit-3]) + "..."
}

// ValidationSummary is the result of validating a run log.
type ValidationSummary struct {
	LogPath     string      `json:"log_path"`
	Total       int         `json:"total"`
	Valid       int         `json:"valid"`
	Invalid     []LineError `json:"invalid"`
	MissingFile bool        `json:"missing_file"`
}

// ValidateLog checks every record in the log at path.
func ValidateLog(path string) (*ValidationSummary, error) {
	summary := &ValidationSummary{LogPath: path, Invalid: []LineError{}}
	records, bad, err := LoadJSONL(path)
	if errors.Is(err, os.ErrNotExist) {
		summary.MissingFile = true
		return summary, nil
	}
	if err != nil {
		return nil, err
	}
	summary.Valid = len(records)
	summary.Invalid = append(summary.Invalid, bad...)
	summary.Total = summary.Valid + len(bad)
	return summary, nil
}

// ReplayStep is the condensed form of a plan step in a replay summary.
type ReplayStep struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	StepType        string `json:"step_type"`
	Status          string `json:"status"`
	ExpectedOutcome string `json:"expected_outcome"`
	NoteCount       int    `json:"note_count"`
}

// ReplayDetail describes the selected record.
type ReplayDetail struct {
	Question          string                    `json:"question"`
	Locale            string                    `json:"locale"`
	Context           string                    `json:"context"`
	PlanGoal          string                    `json:"plan_goal"`
	StepCount         int                       `json:"step_count"`
	Steps             []ReplayStep              `json:"steps"`
	ReviewActions     []workflow.ReviewLogEntry `json:"review_actions"`
	ResearcherMetrics *telemetry.Metrics        `json:"researcher_metrics,omitempty"`
}

// ReplaySummary is the result of replaying a run log.
type ReplaySummary struct {
	LogPath          string        `json:"log_path"`
	RecordsAvailable int           `json:"records_available"`
	SelectedIndex    *int          `json:"selected_index"`
	MissingFile      bool          `json:"missing_file"`
	ValidationErrors []LineError   `json:"validation_errors"`
	SelectedRecord   *ReplayDetail `json:"selected_record"`
}

// Replay loads the log at path and summarizes the record at index. A nil
// index selects the latest record; negative indexes count from the end and
// out-of-range indexes are clamped.
func Replay(path string, index *int) (*ReplaySummary, error) {
	summary := &ReplaySummary{LogPath: path, ValidationErrors: []LineError{}}
	records, bad, err := LoadJSONL(path)
	if errors.Is(err, os.ErrNotExist) {
		summary.MissingFile = true
		return summary, nil
	}
	if err != nil {
		return nil, err
	}
	summary.ValidationErrors = append(summary.ValidationErrors, bad...)
	summary.RecordsAvailable = len(records)
	if len(records) == 0 {
		return summary, nil
	}

	idx := NormalizeIndex(index, len(records))
	summary.SelectedIndex = &idx
	summary.SelectedRecord = replayDetail(records[idx])
	return summary, nil
}

// NormalizeIndex maps index onto [0, size). size must be positive.
func NormalizeIndex(index *int, size int) int {
	if index == nil {
		return size - 1
	}
	idx := *index
	if idx < 0 {
		idx += size
	}
	return max(0, min(idx, size-1))
}

func replayDetail(rec RunRecord) *ReplayDetail {
	d := &ReplayDetail{
		Question:      rec.Question,
		Locale:        rec.Locale,
		Context:       rec.Context,
		PlanGoal:      rec.Plan.Goal,
		StepCount:     len(rec.Plan.Steps),
		Steps:         make([]ReplayStep, 0, len(rec.Plan.Steps)),
		ReviewActions: append([]workflow.ReviewLogEntry{}, rec.ReviewLog...),
	}
	for _, s := range rec.Plan.Steps {
		d.Steps = append(d.Steps, ReplayStep{
			ID:              s.ID,
			Title:           s.Title,
			StepType:        string(s.StepType),
			Status:          string(s.Status),
			ExpectedOutcome: s.ExpectedOutcome,
			NoteCount:       len(s.Notes),
		})
	}
	if rec.Telemetry != nil {
		d.ResearcherMetrics = rec.Telemetry.Researcher
	}
	return d
}

// WriteSummary writes v as indented JSON to dir/name and returns the path.
func WriteSummary(dir, name string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", err
	}
	return path, nil
}
