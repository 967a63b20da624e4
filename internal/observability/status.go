package observability

import (
	"context"
	"sync"
	"time"
)

// Stage names the workflow node currently executing.
type Stage string

const StageIdle Stage = "idle"

type SystemStatus struct {
	mu          sync.RWMutex
	Stage       Stage
	ActiveTask  string
	LastChanged time.Time
}

var globalStatus = &SystemStatus{
	Stage:       StageIdle,
	LastChanged: time.Now(),
}

// SetStatus records the node and task the process is working on.
func SetStatus(stage Stage, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.Stage = stage
	globalStatus.ActiveTask = task
	globalStatus.LastChanged = time.Now()
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Stage, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.Stage, globalStatus.ActiveTask, globalStatus.LastChanged
}

type runIDKey struct{}

// WithRunID tags ctx with the id of the run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run id carried by ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
