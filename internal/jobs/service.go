package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"jobkeeper/internal/shared"
	"jobkeeper/pkg/retry"
)

// Config holds the dependencies of a Service.
type Config struct {
	// Configs, Executions and Engine are required.
	Configs    ConfigStore
	Executions ExecutionTracker
	Engine     CronEngine

	Logger *slog.Logger
	Hooks  Hooks
	// Clock defaults to time.Now.
	Clock func() time.Time
	// RecordTimeout bounds each execution record write. Defaults to 10s.
	RecordTimeout time.Duration
	// Retry applies to the terminal execution update. Defaults to retry.DefaultConfig.
	Retry retry.Config
	// BaseContext is passed to handlers. Defaults to context.Background.
	BaseContext context.Context
}

type descriptor struct {
	name            string
	defaultSchedule string
	currentSchedule string
	enabled         bool
	handler         Handler
	activeTimer     Handle
}

// Service owns the job registry and drives activation, updates and ticks.
//
// Administrative calls are serialized by opMu. Registry reads only take mu,
// so projections never wait on store I/O.
type Service struct {
	configs       ConfigStore
	executions    ExecutionTracker
	engine        CronEngine
	logger        *slog.Logger
	hooks         Hooks
	now           func() time.Time
	recordTimeout time.Duration
	retry         retry.Config
	baseCtx       context.Context

	opMu    sync.Mutex
	mu      sync.RWMutex
	jobs    map[string]*descriptor
	order   []string
	started bool

	running *RunningSet
}

// New validates cfg and returns a stopped Service with an empty registry.
func New(cfg Config) (*Service, error) {
	var missing []string
	if cfg.Configs == nil {
		missing = append(missing, "Configs")
	}
	if cfg.Executions == nil {
		missing = append(missing, "Executions")
	}
	if cfg.Engine == nil {
		missing = append(missing, "Engine")
	}
	if len(missing) > 0 {
		return nil, shared.Validationf("jobs: missing dependencies: %s", strings.Join(missing, ", "))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	recordTimeout := cfg.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = 10 * time.Second
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.DefaultConfig()
	}
	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	return &Service{
		configs:       cfg.Configs,
		executions:    cfg.Executions,
		engine:        cfg.Engine,
		logger:        logger.With("component", "jobs"),
		hooks:         cfg.Hooks,
		now:           clock,
		recordTimeout: recordTimeout,
		retry:         retryCfg,
		baseCtx:       baseCtx,
		jobs:          make(map[string]*descriptor),
		running:       NewRunningSet(),
	}, nil
}

// Register adds a job with its code default schedule. Registered jobs start
// enabled. When the service is already started the job is loaded and
// activated right away; on failure it is removed again.
func (s *Service) Register(ctx context.Context, name, defaultSchedule string, handler Handler) error {
	if strings.TrimSpace(name) == "" {
		return shared.Validationf("job name is required")
	}
	if handler == nil {
		return shared.Validationf("job %q: handler is required", name)
	}
	if err := s.engine.Validate(defaultSchedule); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if _, exists := s.jobs[name]; exists {
		s.mu.Unlock()
		return duplicateJobError(name)
	}
	d := &descriptor{
		name:            name,
		defaultSchedule: defaultSchedule,
		currentSchedule: defaultSchedule,
		enabled:         true,
		handler:         handler,
	}
	s.jobs[name] = d
	s.order = append(s.order, name)
	started := s.started
	s.mu.Unlock()

	s.logger.Info("job registered", "job", name, "schedule", defaultSchedule)
	if !started {
		return nil
	}

	if err := s.loadAndActivate(ctx, d); err != nil {
		s.stopTimer(d)
		s.mu.Lock()
		s.removeLocked(name)
		s.mu.Unlock()
		s.logger.Error("late registration failed", "job", name, "error", err)
		return err
	}
	return nil
}

// Start loads or creates the persisted config of every registered job in
// registration order and activates the enabled ones. On error every timer
// activated by this call is stopped and the service stays stopped.
func (s *Service) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	if s.started {
		s.mu.RUnlock()
		return ErrAlreadyStarted
	}
	descs := s.descriptorsLocked()
	s.mu.RUnlock()

	activated := make([]*descriptor, 0, len(descs))
	for _, d := range descs {
		if err := s.loadAndActivate(ctx, d); err != nil {
			for _, a := range activated {
				s.stopTimer(a)
			}
			s.logger.Error("scheduler start failed", "job", d.name, "error", err)
			return err
		}
		if d.activeTimer != nil {
			activated = append(activated, d)
		}
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", len(descs), "active", len(activated))
	return nil
}

// Stop deactivates every timer and marks the service stopped. The registry
// and persisted configs are kept, in-flight handlers are not waited for.
func (s *Service) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	var handles []Handle
	for _, name := range s.order {
		d := s.jobs[name]
		if d.activeTimer != nil {
			handles = append(handles, d.activeTimer)
			d.activeTimer = nil
		}
	}
	s.started = false
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	s.logger.Info("scheduler stopped", "deactivated", len(handles))
}

// UpdateJobConfig persists the provided fields and applies them to the live
// job. A changed schedule or enabled flag replaces the active timer; handlers
// already running are left alone.
func (s *Service) UpdateJobConfig(ctx context.Context, name string, upd ConfigUpdate) (JobConfigView, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	d, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobConfigView{}, unknownJobError(name)
	}

	if upd.Schedule != nil {
		if err := s.engine.Validate(*upd.Schedule); err != nil {
			return JobConfigView{}, err
		}
	}

	patch := ConfigPatch{
		Schedule:  upd.Schedule,
		Enabled:   upd.Enabled,
		UpdatedAt: s.now(),
		UpdatedBy: upd.UpdatedBy,
	}
	seed := PersistedJobConfig{JobName: name, Schedule: d.currentSchedule, Enabled: d.enabled}
	if err := s.configs.UpsertJobConfig(ctx, name, patch, seed); err != nil {
		return JobConfigView{}, persistenceError("update config", name, err)
	}

	s.mu.Lock()
	scheduleChanged := upd.Schedule != nil && *upd.Schedule != d.currentSchedule
	enabledChanged := upd.Enabled != nil && *upd.Enabled != d.enabled
	if upd.Schedule != nil {
		d.currentSchedule = *upd.Schedule
	}
	if upd.Enabled != nil {
		d.enabled = *upd.Enabled
	}
	started := s.started
	s.mu.Unlock()

	if scheduleChanged || enabledChanged {
		s.stopTimer(d)
		if d.enabled && started {
			if err := s.activateTimer(d); err != nil {
				return s.view(name), err
			}
		}
	}

	s.logger.Info("job config updated",
		"job", name,
		"schedule", d.currentSchedule,
		"enabled", d.enabled,
		"updated_by", upd.UpdatedBy,
		"rescheduled", scheduleChanged || enabledChanged,
	)
	return s.view(name), nil
}

// Disable is UpdateJobConfig with enabled=false.
func (s *Service) Disable(ctx context.Context, name, updatedBy string) (JobConfigView, error) {
	enabled := false
	return s.UpdateJobConfig(ctx, name, ConfigUpdate{Enabled: &enabled, UpdatedBy: updatedBy})
}

// Enable is UpdateJobConfig with enabled=true.
func (s *Service) Enable(ctx context.Context, name, updatedBy string) (JobConfigView, error) {
	enabled := true
	return s.UpdateJobConfig(ctx, name, ConfigUpdate{Enabled: &enabled, UpdatedBy: updatedBy})
}

// Unregister deactivates and forgets a job, optionally deleting its
// persisted config.
func (s *Service) Unregister(ctx context.Context, name string, deleteFromDatabase bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	d, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return unknownJobError(name)
	}
	s.removeLocked(name)
	s.mu.Unlock()

	s.stopTimer(d)
	s.logger.Info("job unregistered", "job", name, "delete_config", deleteFromDatabase)

	if deleteFromDatabase {
		if err := s.configs.DeleteJobConfig(ctx, name); err != nil {
			return persistenceError("delete config", name, err)
		}
	}
	return nil
}

// GetJobConfig returns the projection of one job.
func (s *Service) GetJobConfig(name string) (JobConfigView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.jobs[name]
	if !ok {
		return JobConfigView{}, false
	}
	return s.viewLocked(d), true
}

// GetAllJobConfigs returns every job in registration order.
func (s *Service) GetAllJobConfigs() []JobConfigView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobConfigView, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.viewLocked(s.jobs[name]))
	}
	return out
}

// TriggerNow runs a job once outside its schedule, through the same tick
// wrapper as scheduled fires. It reports false if the job was already running.
func (s *Service) TriggerNow(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	d, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return false, unknownJobError(name)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.tick(name, d.handler), nil
}

// Running returns the sorted names of jobs with a handler in flight.
func (s *Service) Running() []string {
	return s.running.Names()
}

// Started reports whether Start has succeeded and Stop has not been called since.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// loadAndActivate applies the persisted config to d, creating it from the
// defaults when absent, and schedules d if enabled. Caller holds opMu.
func (s *Service) loadAndActivate(ctx context.Context, d *descriptor) error {
	cfg, found, err := s.configs.FindJobConfig(ctx, d.name)
	if err != nil {
		return persistenceError("load config", d.name, err)
	}
	if !found {
		seed := PersistedJobConfig{
			JobName:   d.name,
			Schedule:  d.defaultSchedule,
			Enabled:   true,
			UpdatedAt: s.now(),
		}
		cfg, err = s.configs.CreateJobConfig(ctx, seed)
		if err != nil {
			return persistenceError("create config", d.name, err)
		}
		s.logger.Info("created default job config", "job", d.name, "schedule", cfg.Schedule)
	}

	schedule := cfg.Schedule
	if err := s.engine.Validate(schedule); err != nil {
		s.logger.Error("persisted schedule rejected", "job", d.name, "schedule", schedule, "error", err)
		return err
	}

	s.mu.Lock()
	d.currentSchedule = schedule
	d.enabled = cfg.Enabled
	s.mu.Unlock()

	if !d.enabled {
		s.logger.Info("job loaded disabled", "job", d.name, "schedule", schedule)
		return nil
	}
	return s.activateTimer(d)
}

func (s *Service) activateTimer(d *descriptor) error {
	name, handler := d.name, d.handler
	h, err := s.engine.Schedule(d.currentSchedule, func() { s.tick(name, handler) })
	if err != nil {
		return err
	}
	if h == nil {
		return errors.New("cron engine returned no handle")
	}

	s.mu.Lock()
	d.activeTimer = h
	s.mu.Unlock()

	s.logger.Info("job scheduled", "job", name, "schedule", d.currentSchedule)
	return nil
}

func (s *Service) stopTimer(d *descriptor) {
	s.mu.Lock()
	h := d.activeTimer
	d.activeTimer = nil
	s.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

func (s *Service) removeLocked(name string) {
	delete(s.jobs, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Service) descriptorsLocked() []*descriptor {
	out := make([]*descriptor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.jobs[name])
	}
	return out
}

func (s *Service) view(name string) JobConfigView {
	v, _ := s.GetJobConfig(name)
	return v
}

func (s *Service) viewLocked(d *descriptor) JobConfigView {
	v := JobConfigView{
		Name:            d.name,
		Schedule:        d.currentSchedule,
		Enabled:         d.enabled,
		DefaultSchedule: d.defaultSchedule,
		Running:         s.running.Contains(d.name),
	}
	if nf, ok := d.activeTimer.(NextFirer); ok {
		if next := nf.Next(); !next.IsZero() {
			v.NextRun = &next
		}
	}
	return v
}
