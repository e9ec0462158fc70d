package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"jobkeeper/internal/adapter/httpapi"
	"jobkeeper/internal/adapter/maintenance"
	"jobkeeper/internal/adapter/metrics"
	"jobkeeper/internal/adapter/scheduler"
	"jobkeeper/internal/config"
	"jobkeeper/internal/jobs"
	"jobkeeper/internal/platform/logger"
)

type jobSpec struct {
	name     string
	schedule string
	handler  jobs.Handler
}

// Option customizes App.
type Option func(*App)

// WithJob registers an application job next to the built-in ones.
func WithJob(name, defaultSchedule string, handler jobs.Handler) Option {
	return func(a *App) {
		a.jobs = append(a.jobs, jobSpec{name: name, schedule: defaultSchedule, handler: handler})
	}
}

// App wires application components.
type App struct {
	cfg  config.Config
	log  *slog.Logger
	jobs []jobSpec

	// ready is called once the scheduler and HTTP listener are up.
	ready func(svc *jobs.Service, addr net.Addr)
}

// New creates a new App instance and loads configuration.
func New(opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "jobkeeper",
	})
	return NewWithConfig(cfg, log, opts...), nil
}

// NewWithConfig builds an App from an already loaded config.
func NewWithConfig(cfg config.Config, log *slog.Logger, opts ...Option) *App {
	a := &App{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Close(a.log) }()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	a.log.Info("starting", "storage", a.cfg.Storage.Driver, "addr", a.cfg.HTTP.Addr)

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.log.Error("close storage", "err", err)
		}
	}()

	engine := scheduler.New(scheduler.Config{Logger: a.log, Location: loc})
	svc, err := jobs.New(jobs.Config{
		Configs:       store,
		Executions:    store,
		Engine:        engine,
		Logger:        a.log,
		Hooks:         metrics.New().Hooks(),
		RecordTimeout: a.cfg.Scheduler.RecordTimeout,
		BaseContext:   ctx,
	})
	if err != nil {
		return err
	}

	if err := maintenance.Register(ctx, svc, maintenance.Options{
		Store:         store,
		RetentionDays: a.cfg.History.RetentionDays,
		PruneSchedule: a.cfg.History.PruneSchedule,
		Logger:        a.log,
	}); err != nil {
		return err
	}
	for _, j := range a.jobs {
		if err := svc.Register(ctx, j.name, j.schedule, j.handler); err != nil {
			return err
		}
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	engine.Start()

	router := httpapi.NewRouter(httpapi.Options{
		Scheduler: svc,
		History:   store,
		Health:    store,
		Logger:    a.log,
		RateLimit: a.cfg.HTTP.RateLimit,
		RateBurst: a.cfg.HTTP.RateBurst,
	})
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		a.shutdown(svc, engine, nil)
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	a.log.Info("http server listening", "addr", ln.Addr().String())

	if a.ready != nil {
		a.ready(svc, ln.Addr())
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-serveErr:
		a.log.Error("server", "err", err)
		runErr = err
	}

	a.shutdown(svc, engine, srv)
	a.log.Info("stopped")
	return runErr
}

// shutdown stops intake first, then timers, then waits for running handlers.
func (a *App) shutdown(svc *jobs.Service, engine *scheduler.Engine, srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Scheduler.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Error("http shutdown", "err", err)
		}
	}
	svc.Stop()
	if err := engine.StopContext(ctx); err != nil {
		a.log.Warn("running jobs did not finish before shutdown timeout",
			"running", svc.Running(), "err", err)
	}
}
