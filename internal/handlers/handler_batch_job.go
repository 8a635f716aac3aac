package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/canbulut/fxbatch/internal/apperrors"
	portssvc "github.com/canbulut/fxbatch/internal/core/ports/services"
	"github.com/canbulut/fxbatch/internal/dto"
	"github.com/canbulut/fxbatch/internal/middleware"
	"github.com/gin-gonic/gin"
)

// maxUploadBytes caps the accepted file size; larger uploads are rejected outright.
const maxUploadBytes = 10 << 20

// batchJobHandler handles HTTP requests for bulk conversion jobs.
type batchJobHandler struct {
	batchService  portssvc.BatchJobSvcFacade
	statusService portssvc.JobStatusSvcFacade
}

func newBatchJobHandler(bs portssvc.BatchJobSvcFacade, ss portssvc.JobStatusSvcFacade) *batchJobHandler {
	return &batchJobHandler{
		batchService:  bs,
		statusService: ss,
	}
}

// registerBatchJobRoutes registers routes related to bulk conversion jobs.
// uploadGuard, when non-nil, rate limits the upload endpoints.
func registerBatchJobRoutes(rg *gin.RouterGroup, batchService portssvc.BatchJobSvcFacade, statusService portssvc.JobStatusSvcFacade, uploadGuard gin.HandlerFunc) {
	h := newBatchJobHandler(batchService, statusService)

	batch := rg.Group("/batch")
	{
		uploads := batch.Group("")
		if uploadGuard != nil {
			uploads.Use(uploadGuard)
		}
		uploads.POST("/upload", h.uploadSync)
		uploads.POST("/upload/async", h.uploadAsync)

		batch.GET("/tasks/:taskId", h.pollTask)
		batch.GET("/jobs/:jobId", h.getJob)
		batch.POST("/jobs/:jobId/stop", h.stopJob)
		batch.POST("/jobs/:jobId/restart", h.restartJob)
		batch.GET("/running", h.runningJobs)
		batch.GET("/history", h.jobsByName)
		batch.GET("/statistics", h.statistics)
		batch.GET("/content/stats", h.contentStats)
		batch.DELETE("/content", h.cleanupContent)
	}
}

// uploadSync godoc
// @Summary Run a bulk conversion synchronously
// @Description Uploads a CSV file and processes it to completion before responding
// @Tags batch
// @Accept  multipart/form-data
// @Produce  json
// @Param   file formData file true "CSV file of conversion requests"
// @Success 200 {object} dto.JobSummaryResponse
// @Failure 400 {object} map[string]string "Invalid file"
// @Failure 409 {object} map[string]string "Same file already being processed"
// @Router /batch/upload [post]
func (h *batchJobHandler) uploadSync(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	filename, content, ok := h.readUpload(c, logger)
	if !ok {
		return
	}

	logger.Info("Received sync bulk conversion upload",
		slog.String("filename", filename), slog.Int("size_bytes", len(content)))

	exec, err := h.batchService.ProcessFile(c.Request.Context(), filename, content)
	if err != nil {
		h.writeLaunchError(c, logger, err)
		return
	}

	logger.Info("Bulk conversion finished",
		slog.String("job_id", exec.JobID), slog.String("status", string(exec.Status)))
	c.JSON(http.StatusOK, dto.ToJobSummaryResponse(exec))
}

// uploadAsync godoc
// @Summary Submit a bulk conversion asynchronously
// @Description Uploads a CSV file and queues it; returns a task id to poll
// @Tags batch
// @Accept  multipart/form-data
// @Produce  json
// @Param   file formData file true "CSV file of conversion requests"
// @Success 202 {object} dto.AsyncTaskResponse
// @Failure 400 {object} map[string]string "Invalid file"
// @Failure 409 {object} map[string]string "Same file already being processed"
// @Failure 429 {object} map[string]string "Worker queue full"
// @Router /batch/upload/async [post]
func (h *batchJobHandler) uploadAsync(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	filename, content, ok := h.readUpload(c, logger)
	if !ok {
		return
	}

	logger.Info("Received async bulk conversion upload",
		slog.String("filename", filename), slog.Int("size_bytes", len(content)))

	taskID, err := h.batchService.ProcessFileAsync(c.Request.Context(), filename, content)
	if err != nil {
		h.writeLaunchError(c, logger, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.AsyncTaskResponse{
		TaskID:  taskID,
		Status:  "SUBMITTED",
		Message: "Poll /api/v1/batch/tasks/" + taskID + " for the result",
	})
}

// pollTask godoc
// @Summary Poll an async task
// @Description Reports task state; a finished task is collected and its id invalidated
// @Tags batch
// @Produce  json
// @Param   taskId path string true "Task ID"
// @Success 200 {object} dto.TaskPollResponse
// @Failure 404 {object} map[string]string "Unknown or already collected task"
// @Router /batch/tasks/{taskId} [get]
func (h *batchJobHandler) pollTask(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	taskID := c.Param("taskId")

	state, exec, err := h.batchService.PollTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown or already collected task: " + taskID})
		} else {
			logger.Error("Failed to poll task", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to poll task"})
		}
		return
	}

	resp := dto.TaskPollResponse{TaskID: taskID, State: state}
	if exec != nil {
		summary := dto.ToJobSummaryResponse(exec)
		resp.Job = &summary
	}
	c.JSON(http.StatusOK, resp)
}

// getJob godoc
// @Summary Get a job execution
// @Tags batch
// @Produce  json
// @Param   jobId path string true "Job ID"
// @Success 200 {object} dto.JobSummaryResponse
// @Failure 404 {object} map[string]string "Job not found"
// @Router /batch/jobs/{jobId} [get]
func (h *batchJobHandler) getJob(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	jobID := c.Param("jobId")

	exec, err := h.statusService.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		} else {
			logger.Error("Failed to get job from service", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve job"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToJobSummaryResponse(exec))
}

// stopJob godoc
// @Summary Request a running job to stop
// @Description The stop takes effect at the next chunk boundary
// @Tags batch
// @Produce  json
// @Param   jobId path string true "Job ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} map[string]string "Job not found"
// @Failure 409 {object} map[string]string "Job already finished"
// @Router /batch/jobs/{jobId}/stop [post]
func (h *batchJobHandler) stopJob(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	jobID := c.Param("jobId")

	if err := h.batchService.StopJob(c.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to stop job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop job"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Stop requested for job " + jobID})
}

// restartJob godoc
// @Summary Restart a failed or stopped job from its checkpoint
// @Tags batch
// @Produce  json
// @Param   jobId path string true "Job ID"
// @Success 202 {object} dto.AsyncTaskResponse
// @Failure 400 {object} map[string]string "Staged content expired"
// @Failure 404 {object} map[string]string "Job not found"
// @Failure 409 {object} map[string]string "Job not restartable"
// @Router /batch/jobs/{jobId}/restart [post]
func (h *batchJobHandler) restartJob(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	jobID := c.Param("jobId")

	taskID, err := h.batchService.RestartJob(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrCapacity):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to restart job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restart job"})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.AsyncTaskResponse{
		TaskID: taskID,
		Status: "SUBMITTED",
	})
}

// runningJobs godoc
// @Summary List running jobs
// @Tags batch
// @Produce  json
// @Success 200 {array} dto.JobSummaryResponse
// @Router /batch/running [get]
func (h *batchJobHandler) runningJobs(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	execs, err := h.statusService.RunningJobs(c.Request.Context())
	if err != nil {
		logger.Error("Failed to list running jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list running jobs"})
		return
	}

	c.JSON(http.StatusOK, dto.ToListJobSummaryResponse(execs))
}

// jobsByName godoc
// @Summary List execution history for one job name
// @Tags batch
// @Produce  json
// @Param   jobName query string false "Job name" default(bulkConversionJob)
// @Param   page query int false "Zero-based page" default(0)
// @Param   size query int false "Page size" default(20) maximum(100)
// @Success 200 {object} dto.JobPageResponse
// @Router /batch/history [get]
func (h *batchJobHandler) jobsByName(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	jobName := c.DefaultQuery("jobName", "bulkConversionJob")
	page := queryInt(c, "page", 0)
	size := queryInt(c, "size", 20)

	execs, total, err := h.statusService.JobsByName(c.Request.Context(), jobName, page, size)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			logger.Error("Failed to list job history", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list job history"})
		}
		return
	}

	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	c.JSON(http.StatusOK, dto.ToJobPageResponse(execs, page, size, total))
}

// statistics godoc
// @Summary Aggregate job counts by status
// @Tags batch
// @Produce  json
// @Success 200 {object} dto.JobStatisticsResponse
// @Router /batch/statistics [get]
func (h *batchJobHandler) statistics(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	counts, total, err := h.statusService.Statistics(c.Request.Context())
	if err != nil {
		logger.Error("Failed to aggregate statistics", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate statistics"})
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	c.JSON(http.StatusOK, dto.JobStatisticsResponse{TotalJobs: total, CountsByStatus: byStatus})
}

// contentStats godoc
// @Summary Content store occupancy
// @Tags batch
// @Produce  json
// @Success 200 {object} contentstore.Stats
// @Router /batch/content/stats [get]
func (h *batchJobHandler) contentStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.batchService.ContentStats())
}

// cleanupContent godoc
// @Summary Remove staged content
// @Description Sweeps expired entries; with all=true clears every entry
// @Tags batch
// @Produce  json
// @Param   all query bool false "Clear everything, not just expired entries"
// @Success 200 {object} map[string]int
// @Router /batch/content [delete]
func (h *batchJobHandler) cleanupContent(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	all := c.Query("all") == "true"

	removed := h.batchService.CleanupContent(all)
	logger.Info("Content cleanup done", slog.Bool("all", all), slog.Int("removed", removed))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// readUpload pulls the uploaded file out of the multipart form, falling back to the raw
// request body for text/csv posts. Responds with a 400 itself when the upload is bad.
func (h *batchJobHandler) readUpload(c *gin.Context, logger *slog.Logger) (string, string, bool) {
	fileHeader, err := c.FormFile("file")
	if err == nil {
		if fileHeader.Size > maxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
			return "", "", false
		}
		f, err := fileHeader.Open()
		if err != nil {
			logger.Error("Failed to open uploaded file", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read uploaded file"})
			return "", "", false
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		if err != nil {
			logger.Error("Failed to read uploaded file", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read uploaded file"})
			return "", "", false
		}
		if len(data) > maxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
			return "", "", false
		}
		return fileHeader.Filename, string(data), true
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'file' form field or request body"})
		return "", "", false
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return "", "", false
	}
	return "upload.csv", string(data), true
}

func (h *batchJobHandler) writeLaunchError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		logger.Warn("Invalid bulk conversion upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrConflict):
		logger.Warn("Duplicate bulk conversion launch", slog.String("error", err.Error()))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrCapacity):
		logger.Warn("Bulk conversion queue full")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		logger.Error("Failed to launch bulk conversion", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process file"})
	}
}
