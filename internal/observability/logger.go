package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeNode     EventType = "node"
	EventTypePlan     EventType = "plan"
	EventTypeReview   EventType = "review"
	EventTypeResearch EventType = "research"
	EventTypeStep     EventType = "step"
	EventTypeCost     EventType = "cost"
	EventTypeLLM      EventType = "llm"
	EventTypeReport   EventType = "report"
	EventTypeStore    EventType = "store"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	StepID    string    `json:"step_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	z          *zap.Logger
	llmLogPath string
	maxSize    int64
	fileMu     sync.Mutex
}

// NewLogger wraps z. LLM events are also appended to llmLogPath unless it is empty.
func NewLogger(z *zap.Logger, llmLogPath string) *Logger {
	return &Logger{
		z:          z,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return NewLogger(zap.NewNop(), "")
}

// NewZap builds the process logger: production JSON, debug level when verbose.
func NewZap(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func (l *Logger) Zap() *zap.Logger {
	return l.z
}

func (l *Logger) Sync() {
	_ = l.z.Sync()
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	fields := []zap.Field{zap.String("type", string(evt.Type))}
	if evt.RunID != "" {
		fields = append(fields, zap.String("run_id", evt.RunID))
	}
	if evt.StepID != "" {
		fields = append(fields, zap.String("step_id", evt.StepID))
	}
	fields = append(fields, zap.Any("data", evt.Data))

	if evt.Type == EventTypeLLM {
		l.z.Debug("event", fields...)
		l.writeToFile(evt)
		return
	}
	l.z.Info("event", fields...)
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

func (l *Logger) writeToFile(evt Event) {
	if l.llmLogPath == "" {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		l.z.Warn("failed to marshal llm event", zap.Error(err))
		return
	}

	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.z.Warn("failed to create log directory", zap.Error(err))
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.z.Warn("failed to open log file", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.z.Warn("failed to write to log file", zap.Error(err))
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogNode(runID, node string) {
	l.Log(Event{
		Type:  EventTypeNode,
		RunID: runID,
		Data:  map[string]string{"node": node},
	})
}

func (l *Logger) LogPlan(runID, topic, locale string, steps int) {
	l.Log(Event{
		Type:  EventTypePlan,
		RunID: runID,
		Data: map[string]any{
			"topic":  topic,
			"locale": locale,
			"steps":  steps,
		},
	})
}

func (l *Logger) LogReview(runID string, attempt int, action, feedback string) {
	l.Log(Event{
		Type:  EventTypeReview,
		RunID: runID,
		Data: map[string]any{
			"attempt":  attempt,
			"action":   action,
			"feedback": feedback,
		},
	})
}

func (l *Logger) LogResearch(stepID, query string, maxResults, maxNotes int, mode string) {
	l.Log(Event{
		Type:   EventTypeResearch,
		StepID: stepID,
		Data: map[string]any{
			"query":            query,
			"max_results":      maxResults,
			"max_notes":        maxNotes,
			"degradation_mode": mode,
		},
	})
}

func (l *Logger) LogStep(runID, stepID, status string, notes int, detail string) {
	l.Log(Event{
		Type:   EventTypeStep,
		RunID:  runID,
		StepID: stepID,
		Data: map[string]any{
			"status": status,
			"notes":  notes,
			"detail": detail,
		},
	})
}

func (l *Logger) LogCost(runID string, promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type:  EventTypeCost,
		RunID: runID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogLLM(runID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}

func (l *Logger) LogReport(runID string, totalNotes int, blocked []string) {
	l.Log(Event{
		Type:  EventTypeReport,
		RunID: runID,
		Data: map[string]any{
			"total_notes":   totalNotes,
			"blocked_steps": blocked,
		},
	})
}

func (l *Logger) LogStore(runID, target, location string) {
	l.Log(Event{
		Type:  EventTypeStore,
		RunID: runID,
		Data: map[string]string{
			"target":   target,
			"location": location,
		},
	})
}
