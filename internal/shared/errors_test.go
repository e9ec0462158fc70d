package shared_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jobkeeper/internal/shared"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "net error" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestValidationf(t *testing.T) {
	err := shared.Validationf("job name %q is empty", "")
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	assert.Contains(t, err.Error(), "job name")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want shared.Kind
	}{
		{"nil", nil, shared.KindUnknown},
		{"plain", errors.New("x"), shared.KindUnknown},
		{"not found", fmt.Errorf("load: %w", shared.ErrNotFound), shared.KindNotFound},
		{"conflict", shared.ErrConflict, shared.KindConflict},
		{"validation", shared.ErrValidation, shared.KindValidation},
		{"dependency", shared.ErrDependencyFailure, shared.KindDependencyFailure},
		{"canceled", context.Canceled, shared.KindCanceled},
		{"deadline", context.DeadlineExceeded, shared.KindTimeout},
		{"net timeout", fakeNetError{timeout: true}, shared.KindTimeout},
		{"net non-timeout", fakeNetError{timeout: false}, shared.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shared.KindOf(tt.err))
		})
	}
}

func TestKindOf_PriorityWithJoin(t *testing.T) {
	// A store failure that also reports "not found" is classified as NotFound.
	err := errors.Join(shared.ErrDependencyFailure, shared.ErrNotFound)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	// Cancellation wins over everything.
	err = errors.Join(shared.ErrConflict, context.Canceled)
	assert.Equal(t, shared.KindCanceled, shared.KindOf(err))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NotFound", shared.KindNotFound.String())
	assert.Equal(t, "DependencyFailure", shared.KindDependencyFailure.String())
	assert.Equal(t, "Canceled", shared.KindCanceled.String())
	assert.Equal(t, "Unknown", shared.KindUnknown.String())
	assert.Equal(t, "Unknown", shared.Kind(999).String())
}

func TestMarkKind(t *testing.T) {
	base := errors.New("connection refused")

	marked := shared.MarkKind(base, shared.KindDependencyFailure)
	assert.True(t, shared.IsDependencyFailure(marked))
	assert.ErrorIs(t, marked, base)

	// idempotent
	assert.Same(t, marked, shared.MarkKind(marked, shared.KindDependencyFailure))

	// nil error yields the sentinel
	assert.Equal(t, shared.ErrNotFound, shared.MarkKind(nil, shared.KindNotFound))

	// kinds without sentinel leave the error alone
	assert.Equal(t, base, shared.MarkKind(base, shared.KindUnknown))
	assert.Equal(t, base, shared.MarkKind(base, shared.KindCanceled))
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection reset"), true},
		{shared.MarkKind(errors.New("db down"), shared.KindDependencyFailure), true},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("update: %w", shared.ErrNotFound), false},
		{shared.ErrConflict, false},
		{shared.Validationf("bad"), false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shared.Transient(tt.err), "%v", tt.err)
	}
}

func TestIsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	assert.True(t, shared.IsTimeout(ctx.Err()))
	assert.True(t, shared.IsTimeout(fmt.Errorf("wrap: %w", shared.ErrTimeout)))
	assert.False(t, shared.IsTimeout(nil))
	assert.False(t, shared.IsTimeout(errors.New("other")))
}

func TestPredicates(t *testing.T) {
	assert.True(t, shared.IsNotFound(fmt.Errorf("job x: %w", shared.ErrNotFound)))
	assert.True(t, shared.IsConflict(fmt.Errorf("job x: %w", shared.ErrConflict)))
	assert.False(t, shared.IsConflict(shared.ErrNotFound))
	assert.True(t, shared.IsCanceled(fmt.Errorf("tick: %w", context.Canceled)))
	assert.False(t, shared.IsCanceled(nil))
}
