package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"jobkeeper/internal/jobs"
	"jobkeeper/internal/shared"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

type patchJobRequest struct {
	Schedule *string `json:"schedule" binding:"omitempty,min=1,max=128"`
	Enabled  *bool   `json:"enabled"`
}

type executionsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=running success failed"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

type executionResponse struct {
	ID          string     `json:"id"`
	JobName     string     `json:"jobName"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  *int64     `json:"durationMs,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

type runResponse struct {
	Job string `json:"job"`
	Ran bool   `json:"ran"`
}

func (a *api) healthz(c *gin.Context) {
	if a.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), a.healthTimeout)
	defer cancel()
	if err := a.health.Ping(ctx); err != nil {
		a.log.Warn("health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *api) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, a.sched.GetAllJobConfigs())
}

func (a *api) getJob(c *gin.Context) {
	view, ok := a.sched.GetJobConfig(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, errorBody("unknown job: "+c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *api) patchJob(c *gin.Context) {
	var req patchJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.Schedule == nil && req.Enabled == nil {
		c.JSON(http.StatusBadRequest, errorBody("nothing to update: provide schedule or enabled"))
		return
	}
	if req.Schedule != nil {
		s := strings.TrimSpace(*req.Schedule)
		req.Schedule = &s
	}

	view, err := a.sched.UpdateJobConfig(c.Request.Context(), c.Param("name"), jobs.ConfigUpdate{
		Schedule:  req.Schedule,
		Enabled:   req.Enabled,
		UpdatedBy: updatedBy(c),
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *api) disableJob(c *gin.Context) {
	view, err := a.sched.Disable(c.Request.Context(), c.Param("name"), updatedBy(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *api) enableJob(c *gin.Context) {
	view, err := a.sched.Enable(c.Request.Context(), c.Param("name"), updatedBy(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// runJob executes the job synchronously; 409 means a run was already in flight.
func (a *api) runJob(c *gin.Context) {
	name := c.Param("name")
	ran, err := a.sched.TriggerNow(c.Request.Context(), name)
	if err != nil {
		a.writeError(c, err)
		return
	}
	status := http.StatusOK
	if !ran {
		status = http.StatusConflict
	}
	c.JSON(status, runResponse{Job: name, Ran: ran})
}

func (a *api) listExecutions(c *gin.Context) {
	name := c.Param("name")
	if _, ok := a.sched.GetJobConfig(name); !ok {
		c.JSON(http.StatusNotFound, errorBody("unknown job: "+name))
		return
	}

	var q executionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultExecutionLimit
	}
	limit = min(limit, maxExecutionLimit)

	recs, err := a.history.ListExecutions(c.Request.Context(), jobs.ExecutionFilter{
		JobName: name,
		Status:  jobs.Status(q.Status),
		Limit:   limit,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}

	out := make([]executionResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, executionResponse{
			ID:          r.ID,
			JobName:     r.JobName,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
			DurationMs:  r.DurationMs,
			Status:      string(r.Status),
			Error:       r.Error,
		})
	}
	c.JSON(http.StatusOK, out)
}

func updatedBy(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(UpdatedByHeader)); v != "" {
		return v
	}
	return defaultUpdatedBy
}

// writeError maps the shared error taxonomy onto HTTP status codes.
func (a *api) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", "path", c.FullPath(), "job", c.Param("name"), "err", err)
	}
	c.JSON(status, errorBody(err.Error()))
}

func statusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindDependencyFailure:
		return http.StatusServiceUnavailable
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	case shared.KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}
