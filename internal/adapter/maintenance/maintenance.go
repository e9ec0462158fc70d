// Package maintenance provides the built-in housekeeping jobs: execution
// history retention and a storage heartbeat.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jobkeeper/internal/jobs"
)

// Built-in job names and the heartbeat cadence.
const (
	PruneJobName      = "execution-history-prune"
	HeartbeatJobName  = "storage-heartbeat"
	HeartbeatSchedule = "@every 1m"
)

const defaultPingTimeout = 5 * time.Second

// Store is the storage surface the housekeeping jobs need.
type Store interface {
	PruneExecutions(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// Registrar accepts job registrations; *jobs.Service satisfies it.
type Registrar interface {
	Register(ctx context.Context, name, defaultSchedule string, handler jobs.Handler) error
}

// Options configures Register.
type Options struct {
	Store Store
	// RetentionDays of 0 disables the prune job.
	RetentionDays int
	PruneSchedule string
	PingTimeout   time.Duration
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Register adds the housekeeping jobs to r.
func Register(ctx context.Context, r Registrar, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "maintenance")

	if opts.RetentionDays > 0 {
		retention := time.Duration(opts.RetentionDays) * 24 * time.Hour
		h := PruneHandler(opts.Store, retention, opts.Clock, log)
		if err := r.Register(ctx, PruneJobName, opts.PruneSchedule, h); err != nil {
			return fmt.Errorf("register %s: %w", PruneJobName, err)
		}
	} else {
		log.Info("execution history retention disabled")
	}

	h := HeartbeatHandler(opts.Store, opts.PingTimeout, log)
	if err := r.Register(ctx, HeartbeatJobName, HeartbeatSchedule, h); err != nil {
		return fmt.Errorf("register %s: %w", HeartbeatJobName, err)
	}
	return nil
}

// PruneHandler deletes terminal execution records older than retention.
func PruneHandler(store Store, retention time.Duration, clock func() time.Time, log *slog.Logger) jobs.Handler {
	if clock == nil {
		clock = time.Now
	}
	return func(ctx context.Context) error {
		cutoff := clock().Add(-retention)
		deleted, err := store.PruneExecutions(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune executions before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if deleted > 0 {
			log.Info("pruned execution history", "deleted", deleted, "cutoff", cutoff)
		} else {
			log.Debug("no execution history to prune", "cutoff", cutoff)
		}
		return nil
	}
}

// HeartbeatHandler pings the store and logs when it is unreachable.
func HeartbeatHandler(store Store, timeout time.Duration, log *slog.Logger) jobs.Handler {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			log.Error("storage heartbeat failed", "err", err)
			return fmt.Errorf("storage ping: %w", err)
		}
		return nil
	}
}
