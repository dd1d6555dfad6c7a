// Package metrics provides metrics recording for pipeline runs.
package metrics

import (
	"sync"
	"time"
)

// Recorder observes scheduler and pipeline events. The pipeline driver calls
// it on every processed item and state transition.
type Recorder interface {
	ObserveTask(taskID, status string, duration time.Duration)
	ObserveRetry(operation string)
	ObserveStateTransition(from, to string)
}

// InternalRecorder implements Recorder with in-memory aggregation. It is the
// default and what tests assert against; Prometheus export is opt-in.
type InternalRecorder struct {
	mu          sync.RWMutex
	taskCounts  map[string]int64 // status -> count
	retryCounts map[string]int64 // operation -> count
	transitions map[string]int64 // "from->to" -> count
}

// NewInternalRecorder creates an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		taskCounts:  make(map[string]int64),
		retryCounts: make(map[string]int64),
		transitions: make(map[string]int64),
	}
}

// ObserveTask records one processed task by terminal status.
func (r *InternalRecorder) ObserveTask(taskID, status string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taskCounts[status]++
}

// ObserveRetry records one retry attempt for an operation.
func (r *InternalRecorder) ObserveRetry(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCounts[operation]++
}

// ObserveStateTransition records a pipeline state change.
func (r *InternalRecorder) ObserveStateTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[from+"->"+to]++
}

// TaskCount returns the number of tasks observed with the given status.
func (r *InternalRecorder) TaskCount(status string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.taskCounts[status]
}

// RetryCount returns the retries observed for an operation.
func (r *InternalRecorder) RetryCount(operation string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retryCounts[operation]
}

// TransitionCount returns how often the from->to transition occurred.
func (r *InternalRecorder) TransitionCount(from, to string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transitions[from+"->"+to]
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) ObserveTask(string, string, time.Duration) {}
func (NopRecorder) ObserveRetry(string)                       {}
func (NopRecorder) ObserveStateTransition(string, string)     {}
