package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/service"
	"github.com/jengzang/taxi-etl-go/pkg/response"
)

// PipelineHandler serves the trigger and read-back endpoints
type PipelineHandler struct {
	service *service.PipelineService
}

// NewPipelineHandler creates a pipeline handler
func NewPipelineHandler(service *service.PipelineService) *PipelineHandler {
	return &PipelineHandler{service: service}
}

// RunRequest optionally narrows a run to some stages
type RunRequest struct {
	Stages []string `json:"stages"`
}

// Health reports whether the store answers
// GET /health
func (h *PipelineHandler) Health(c *gin.Context) {
	if !h.service.Healthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListStages returns the stage order of a full run
// GET /api/v1/stages
func (h *PipelineHandler) ListStages(c *gin.Context) {
	response.Success(c, gin.H{"stages": h.service.Stages()})
}

// RunPipeline starts a full run, or the stages named in the body
// POST /api/v1/pipeline/run
func (h *PipelineHandler) RunPipeline(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}
	h.start(c, req.Stages...)
}

// RunStage starts a single stage
// POST /api/v1/stages/:name/run
func (h *PipelineHandler) RunStage(c *gin.Context) {
	h.start(c, c.Param("name"))
}

func (h *PipelineHandler) start(c *gin.Context, names ...string) {
	runID, err := h.service.Start(names...)
	if err != nil {
		fail(c, err)
		return
	}
	response.Accepted(c, gin.H{"run_id": runID})
}

// GetRun returns the recorded stages of one run
// GET /api/v1/runs/:id
func (h *PipelineHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, run)
}

// ListRuns returns the latest stage outcomes
// GET /api/v1/runs?limit=20
func (h *PipelineHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}

	runs, err := h.service.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, runs)
}

// ListTrips returns a sample of the loaded trips in pickup order
// GET /api/v1/trips?limit=50
func (h *PipelineHandler) ListTrips(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}

	trips, err := h.service.Trips(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, trips)
}

// GetSummary returns the loaded aggregates
// GET /api/v1/summary?rows=true
func (h *PipelineHandler) GetSummary(c *gin.Context) {
	withRows, _ := strconv.ParseBool(c.DefaultQuery("rows", "false"))

	view, err := h.service.Summary(c.Request.Context(), withRows)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, view)
}

// fail maps pipeline error kinds onto HTTP status codes
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrRunNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, models.ErrConfiguration):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}
