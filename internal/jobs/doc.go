// Package jobs is the scheduling core: it registers recurring jobs, keeps
// their schedule and enabled state in a ConfigStore, activates them through a
// CronEngine and records every run in an ExecutionTracker.
//
// Persisted configuration always wins over the defaults a job is registered
// with. The first Start for a job seeds its configuration from those defaults;
// later starts (including after a restart) load whatever an operator saved.
//
// Fires of the same job never overlap: a tick that finds the job still running
// is skipped and leaves no execution record. Handler errors and panics are
// recorded and logged, never returned to the engine.
//
// Typical wiring:
//
//	svc, err := jobs.New(jobs.Config{
//	    Configs:    store,
//	    Executions: store,
//	    Engine:     engine,
//	    Logger:     logger,
//	})
//	_ = svc.Register(ctx, "cleanup", "0 3 * * *", cleanup)
//	if err := svc.Start(ctx); err != nil {
//	    return err
//	}
//	defer svc.Stop()
package jobs
