package jobs

import (
	"context"
	"runtime/debug"

	"github.com/google/uuid"

	"jobkeeper/internal/shared"
	"jobkeeper/pkg/retry"
)

// tick runs one fire of a job: overlap gate, running record, handler,
// terminal record. It never panics on handler failure and reports false only
// when the fire was skipped because the job was still running.
func (s *Service) tick(name string, handler Handler) bool {
	if !s.running.TryAdd(name) {
		s.logger.Warn("job still running, skipping tick", "job", name)
		if s.hooks.OnSkip != nil {
			s.hooks.OnSkip(name)
		}
		return false
	}
	defer s.running.Remove(name)

	rec := ExecutionRecord{
		ID:        uuid.NewString(),
		JobName:   name,
		StartedAt: s.now(),
		Status:    StatusRunning,
	}
	recorded := true
	if err := s.writeRecord(func(ctx context.Context) error {
		return s.executions.CreateExecution(ctx, rec)
	}); err != nil {
		recorded = false
		s.logger.Error("failed to create execution record",
			"job", name,
			"error", persistenceError("create execution", name, err),
		)
	}

	if s.hooks.OnStart != nil {
		s.hooks.OnStart(name)
	}

	err := s.invoke(name, handler)
	completedAt := s.now()
	duration := completedAt.Sub(rec.StartedAt)

	outcome := ExecutionOutcome{
		Status:      StatusSuccess,
		CompletedAt: completedAt,
		DurationMs:  duration.Milliseconds(),
	}
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = errorMessage(err)
		s.logger.Error("job failed", "job", name, "execution_id", rec.ID, "duration", duration, "error", err)
	} else {
		s.logger.Debug("job completed", "job", name, "execution_id", rec.ID, "duration", duration)
	}

	if recorded {
		s.finishRecord(name, rec.ID, outcome)
	}

	if s.hooks.OnFinish != nil {
		s.hooks.OnFinish(name, duration, err)
	}
	return true
}

// invoke calls handler and turns an error or panic into a HandlerExecutionError.
func (s *Service) invoke(name string, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
			err = &HandlerExecutionError{Job: name, Panic: r}
		}
	}()
	if herr := handler(s.baseCtx); herr != nil {
		return &HandlerExecutionError{Job: name, Err: herr}
	}
	return nil
}

// finishRecord writes the terminal update, retrying transient store errors.
// Unknown ids and already terminal records are not retried. A failure here
// is logged and dropped.
func (s *Service) finishRecord(name, id string, outcome ExecutionOutcome) {
	err := retry.DoWithRetryable(context.WithoutCancel(s.baseCtx), s.retry, func(ctx context.Context) error {
		return s.writeRecordCtx(ctx, func(ctx context.Context) error {
			return s.executions.UpdateExecution(ctx, id, outcome)
		})
	}, shared.Transient)
	if err != nil {
		s.logger.Error("failed to finalize execution record",
			"job", name,
			"execution_id", id,
			"status", outcome.Status,
			"error", persistenceError("update execution", name, err),
		)
	}
}

func (s *Service) writeRecord(fn func(ctx context.Context) error) error {
	return s.writeRecordCtx(context.WithoutCancel(s.baseCtx), fn)
}

func (s *Service) writeRecordCtx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.recordTimeout)
	defer cancel()
	return fn(ctx)
}

