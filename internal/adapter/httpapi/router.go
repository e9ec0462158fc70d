package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"jobkeeper/internal/jobs"
)

// Scheduler is the part of jobs.Service the API drives.
type Scheduler interface {
	GetAllJobConfigs() []jobs.JobConfigView
	GetJobConfig(name string) (jobs.JobConfigView, bool)
	UpdateJobConfig(ctx context.Context, name string, upd jobs.ConfigUpdate) (jobs.JobConfigView, error)
	Disable(ctx context.Context, name, updatedBy string) (jobs.JobConfigView, error)
	Enable(ctx context.Context, name, updatedBy string) (jobs.JobConfigView, error)
	TriggerNow(ctx context.Context, name string) (bool, error)
}

// History lists execution records.
type History interface {
	ListExecutions(ctx context.Context, filter jobs.ExecutionFilter) ([]jobs.ExecutionRecord, error)
}

// Pinger reports backend reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	Scheduler Scheduler
	History   History
	Health    Pinger
	Logger    *slog.Logger
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// HealthTimeout bounds the /healthz ping. Defaults to 2s.
	HealthTimeout time.Duration
}

// UpdatedByHeader names the caller recorded as UpdatedBy on config changes.
const UpdatedByHeader = "X-Updated-By"

const defaultUpdatedBy = "api"

type api struct {
	sched         Scheduler
	history       History
	health        Pinger
	log           *slog.Logger
	healthTimeout time.Duration
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 2 * time.Second
	}

	a := &api{
		sched:         opts.Scheduler,
		history:       opts.History,
		health:        opts.Health,
		log:           log,
		healthTimeout: healthTimeout,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	if opts.RateLimit > 0 {
		r.Use(NewRateLimiter(opts.RateLimit, opts.RateBurst).Middleware())
	}

	r.GET("/healthz", a.healthz)

	g := r.Group("/api/jobs")
	g.GET("", a.listJobs)
	g.GET("/:name", a.getJob)
	g.PATCH("/:name", a.patchJob)
	g.POST("/:name/disable", a.disableJob)
	g.POST("/:name/enable", a.enableJob)
	g.POST("/:name/run", a.runJob)
	g.GET("/:name/executions", a.listExecutions)
	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
