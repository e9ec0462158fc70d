package jobs

import (
	"context"
	"time"
)

// Handler is the unit of work a job runs on every fire.
// The context is the service base context and carries no deadline.
type Handler func(ctx context.Context) error

// CronEngine parses cron expressions and invokes callbacks on schedule.
type CronEngine interface {
	Schedule(expr string, fn func()) (Handle, error)
	Validate(expr string) error
}

// Handle stops one scheduled callback. Stop must be idempotent.
type Handle interface {
	Stop()
}

// NextFirer is implemented by handles that know their next fire time.
type NextFirer interface {
	Next() time.Time
}

// Status is the lifecycle state of an execution record.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// PersistedJobConfig is the durable configuration of one job, keyed by name.
type PersistedJobConfig struct {
	JobName   string
	Schedule  string
	Enabled   bool
	UpdatedAt time.Time
	UpdatedBy string
}

// ConfigPatch carries the fields an update provides. Nil means "keep".
type ConfigPatch struct {
	Schedule  *string
	Enabled   *bool
	UpdatedAt time.Time
	UpdatedBy string
}

// Apply returns cfg with the provided fields overwritten. An empty UpdatedBy
// keeps the stored author.
func (p ConfigPatch) Apply(cfg PersistedJobConfig) PersistedJobConfig {
	if p.Schedule != nil {
		cfg.Schedule = *p.Schedule
	}
	if p.Enabled != nil {
		cfg.Enabled = *p.Enabled
	}
	cfg.UpdatedAt = p.UpdatedAt
	if p.UpdatedBy != "" {
		cfg.UpdatedBy = p.UpdatedBy
	}
	return cfg
}

// ExecutionRecord is one run of one job.
type ExecutionRecord struct {
	ID          string
	JobName     string
	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMs  *int64
	Status      Status
	Error       string
}

// ExecutionOutcome is the terminal update written when a run settles.
type ExecutionOutcome struct {
	Status      Status
	CompletedAt time.Time
	DurationMs  int64
	Error       string
}

// ExecutionFilter narrows ListExecutions. Zero values match everything.
// Results are ordered newest first.
type ExecutionFilter struct {
	JobName string
	Status  Status
	Limit   int
}

// ConfigStore persists one PersistedJobConfig per job name.
type ConfigStore interface {
	// FindJobConfig returns false when no config exists for name.
	FindJobConfig(ctx context.Context, name string) (PersistedJobConfig, bool, error)
	// CreateJobConfig inserts cfg; an existing name yields shared.ErrConflict.
	CreateJobConfig(ctx context.Context, cfg PersistedJobConfig) (PersistedJobConfig, error)
	// UpsertJobConfig applies patch to the stored config, inserting seed
	// with the patch applied when none exists.
	UpsertJobConfig(ctx context.Context, name string, patch ConfigPatch, seed PersistedJobConfig) error
	// DeleteJobConfig is a no-op for unknown names.
	DeleteJobConfig(ctx context.Context, name string) error
}

// ExecutionTracker stores execution records.
type ExecutionTracker interface {
	CreateExecution(ctx context.Context, rec ExecutionRecord) error
	// UpdateExecution moves a running record to a terminal state. Unknown ids
	// yield shared.ErrNotFound, already terminal records shared.ErrConflict.
	UpdateExecution(ctx context.Context, id string, outcome ExecutionOutcome) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]ExecutionRecord, error)
	// PruneExecutions deletes terminal records started before the cutoff.
	PruneExecutions(ctx context.Context, before time.Time) (int64, error)
}

// JobConfigView is the read-only projection of a registered job.
type JobConfigView struct {
	Name            string     `json:"name"`
	Schedule        string     `json:"schedule"`
	Enabled         bool       `json:"enabled"`
	DefaultSchedule string     `json:"defaultSchedule"`
	Running         bool       `json:"running"`
	NextRun         *time.Time `json:"nextRun,omitempty"`
}

// ConfigUpdate is an administrative change to a job. Nil fields are left as is.
type ConfigUpdate struct {
	Schedule  *string
	Enabled   *bool
	UpdatedBy string
}

// Hooks are optional observability callbacks.
type Hooks struct {
	OnStart  func(job string)
	OnFinish func(job string, duration time.Duration, err error)
	OnSkip   func(job string)
}
