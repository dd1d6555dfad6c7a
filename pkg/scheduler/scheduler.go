// Package scheduler walks the backlog graph, selects eligible work, and
// drives each subtask through its status lifecycle by delegating execution to
// the collaborator boundary.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"foreman/pkg/agent"
	"foreman/pkg/backlog"
	"foreman/pkg/cache"
	"foreman/pkg/logx"
	"foreman/pkg/metrics"
	"foreman/pkg/retry"
	"foreman/pkg/session"
)

// Scheduler selects and executes eligible subtasks. The read-check-write
// sequence on the shared backlog is serialized through mu so a bounded worker
// pool can share one scheduler; with parallelism 1 the lock is uncontended.
type Scheduler struct {
	store    *session.Store
	executor agent.Executor
	policy   *retry.Policy
	recorder metrics.Recorder
	cache    *cache.Cache
	logger   *logx.Logger

	mu       sync.Mutex
	failures []TaskFailure
}

// New creates a scheduler over the given session store and executor.
// A nil policy disables retries; a nil recorder discards metrics.
func New(store *session.Store, executor agent.Executor, policy *retry.Policy, recorder metrics.Recorder) *Scheduler {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &Scheduler{
		store:    store,
		executor: executor,
		policy:   policy,
		recorder: recorder,
		logger:   logx.NewLogger("scheduler"),
	}
}

// SetCache attaches an optional content-addressed result cache. A hit lets a
// subtask complete without invoking the executor.
func (s *Scheduler) SetCache(c *cache.Cache) {
	s.cache = c
}

// nextEligible scans the backlog depth-first in declaration order and returns
// the first planned subtask whose dependencies are all complete. Declaration
// order is the tie-break, so selection is deterministic. Caller holds mu.
func (s *Scheduler) nextEligible(b *backlog.Backlog) *backlog.Subtask {
	for _, sub := range b.Subtasks() {
		if sub.Status != backlog.StatusPlanned {
			continue
		}
		if s.dependenciesMet(b, sub) {
			return sub
		}
	}
	return nil
}

func (s *Scheduler) dependenciesMet(b *backlog.Backlog, sub *backlog.Subtask) bool {
	for _, depID := range sub.Dependencies {
		dep := b.FindSubtask(depID)
		if dep == nil || dep.Status != backlog.StatusComplete {
			return false
		}
	}
	return true
}

// ProcessNextItem selects the next eligible subtask and runs it to a terminal
// status. It returns false when no eligible item exists (including an empty
// backlog) — the execution loop's only natural termination signal. A
// collaborator failure never stops the scan: it becomes a failed status plus
// a recorded TaskFailure, and ProcessNextItem still returns true because an
// item was consumed.
func (s *Scheduler) ProcessNextItem(ctx context.Context) (bool, error) {
	s.mu.Lock()
	b := s.store.Backlog()
	if b == nil {
		s.mu.Unlock()
		return false, fmt.Errorf("no backlog loaded")
	}

	sub := s.nextEligible(b)
	if sub == nil {
		s.mu.Unlock()
		return false, nil
	}

	if err := s.store.UpdateItemStatus(sub.ID, backlog.StatusImplementing); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	start := time.Now()
	var result *agent.ExecutionResult
	var execErr error
	if cached, ok := s.cachedResult(sub); ok {
		result = cached
	} else {
		s.logger.Info("executing %s: %s", sub.ID, sub.Title)
		result, execErr = s.execute(ctx, sub, b)
		if execErr == nil && s.cache != nil && result != nil {
			if err := s.cache.Put(sub, result.Summary); err != nil {
				s.logger.Debug("cache store failed for %s: %v", sub.ID, err)
			}
		}
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	if execErr != nil {
		phase, milestone := b.Locate(sub.ID)
		s.failures = append(s.failures, newTaskFailure(sub.ID, sub.Title, phase, milestone, execErr))
		_ = s.store.UpdateItemStatus(sub.ID, backlog.StatusFailed)
		s.logger.Warn("subtask %s failed after %s: %v", sub.ID, elapsed.Round(time.Millisecond), execErr)
		s.recorder.ObserveTask(sub.ID, string(backlog.StatusFailed), elapsed)
	} else {
		_ = s.store.UpdateItemStatus(sub.ID, backlog.StatusComplete)
		s.logger.Info("subtask %s complete in %s", sub.ID, elapsed.Round(time.Millisecond))
		s.recorder.ObserveTask(sub.ID, string(backlog.StatusComplete), elapsed)
	}
	s.mu.Unlock()

	if execErr == nil && result != nil {
		if err := s.store.WriteArtifacts(sub.ID, result); err != nil {
			s.logger.Warn("failed to persist artifacts for %s: %v", sub.ID, err)
		}
	}

	if err := s.store.FlushUpdates(); err != nil {
		return true, fmt.Errorf("failed to flush status updates: %w", err)
	}
	return true, nil
}

// cachedResult returns a synthetic execution result when the cache holds a
// fresh entry for the subtask's content.
func (s *Scheduler) cachedResult(sub *backlog.Subtask) (*agent.ExecutionResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, ok, err := s.cache.Get(sub)
	if err != nil || !ok {
		return nil, false
	}
	s.logger.Info("reusing cached result for %s", sub.ID)
	now := time.Now()
	return &agent.ExecutionResult{Summary: payload, StartedAt: now, FinishedAt: now}, true
}

// execute invokes the collaborator under the retry policy, converting panics
// into errors so a misbehaving executor cannot take down the run.
func (s *Scheduler) execute(ctx context.Context, sub *backlog.Subtask, b *backlog.Backlog) (result *agent.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	if s.policy == nil {
		return s.executor.Execute(ctx, sub.ContextScope, b)
	}

	return retry.DoValue(ctx, s.policyFor(sub.ID), func(ctx context.Context) (*agent.ExecutionResult, error) {
		return s.executor.Execute(ctx, sub.ContextScope, b)
	})
}

// policyFor clones the configured policy with an OnRetry hook feeding the
// metrics recorder.
func (s *Scheduler) policyFor(taskID string) *retry.Policy {
	p := retry.NewPolicy(s.policy.Config, s.policy.Classifier)
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.recorder.ObserveRetry("executor")
		s.logger.Debug("retrying %s (attempt %d) after %v: %v", taskID, attempt, delay, err)
	}
	return p
}

// Failures returns a copy of the failures recorded so far.
func (s *Scheduler) Failures() []TaskFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// classifyErrorCode derives a coarse error code for failure reports.
func classifyErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELLED"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "TIMEOUT"
	case strings.Contains(msg, "network"), strings.Contains(msg, "connection"):
		return "NETWORK"
	case strings.Contains(msg, "validation"), strings.Contains(msg, "schema"):
		return "VALIDATION"
	case strings.Contains(msg, "panic"):
		return "PANIC"
	default:
		return "EXECUTION"
	}
}
