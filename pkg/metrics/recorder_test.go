package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInternalRecorder(t *testing.T) {
	r := NewInternalRecorder()

	r.ObserveTask("P1.M1.T1.S1", "complete", time.Second)
	r.ObserveTask("P1.M1.T1.S2", "complete", 2*time.Second)
	r.ObserveTask("P1.M1.T1.S3", "failed", time.Second)
	r.ObserveRetry("executor")
	r.ObserveRetry("executor")
	r.ObserveStateTransition("executing", "backlog_complete")

	assert.Equal(t, int64(2), r.TaskCount("complete"))
	assert.Equal(t, int64(1), r.TaskCount("failed"))
	assert.Equal(t, int64(0), r.TaskCount("skipped"))
	assert.Equal(t, int64(2), r.RetryCount("executor"))
	assert.Equal(t, int64(1), r.TransitionCount("executing", "backlog_complete"))
	assert.Equal(t, int64(0), r.TransitionCount("init", "error"))
}
