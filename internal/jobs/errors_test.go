package jobs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"jobkeeper/internal/jobs"
	"jobkeeper/internal/shared"
)

func TestErrorKinds(t *testing.T) {
	storeErr := errors.New("connection reset")
	perr := &jobs.PersistenceError{Op: "load config", Job: "x", Err: storeErr}
	assert.Equal(t, `load config job "x": connection reset`, perr.Error())
	assert.ErrorIs(t, perr, storeErr)
	assert.Equal(t, shared.KindDependencyFailure, shared.KindOf(perr))

	herr := &jobs.HandlerExecutionError{Job: "x", Panic: "boom"}
	assert.Contains(t, herr.Error(), "panicked: boom")

	assert.True(t, shared.IsConflict(jobs.ErrAlreadyStarted))
}

func TestStatus(t *testing.T) {
	assert.True(t, jobs.StatusSuccess.Terminal())
	assert.True(t, jobs.StatusFailed.Terminal())
	assert.False(t, jobs.StatusRunning.Terminal())
	assert.True(t, jobs.StatusRunning.Valid())
	assert.False(t, jobs.Status("queued").Valid())
}
