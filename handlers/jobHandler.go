package handlers

import (
	"RatedApp/repositories"
	"RatedApp/services"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	service *services.AnalyticsService
}

func NewJobHandler(service *services.AnalyticsService) *JobHandler {
	return &JobHandler{service: service}
}

// StartJob kicks off a bulk scoring run over every patient seen between
// start_date and end_date (inclusive, YYYY-MM-DD).
func (h *JobHandler) StartJob(c *gin.Context) {
	var body struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	startDate, err := time.Parse("2006-01-02", body.StartDate)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid start_date, expected YYYY-MM-DD"})
		return
	}
	endDate, err := time.Parse("2006-01-02", body.EndDate)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid end_date, expected YYYY-MM-DD"})
		return
	}

	job, err := h.service.StartJob(c, startDate, endDate)
	if err != nil {
		if errors.Is(err, services.ErrJobAlreadyRunning) {
			c.JSON(409, gin.H{"error": err.Error()})
			return
		}
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(202, job)
}

func (h *JobHandler) GetJob(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("job_id"), 10, 32)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid job ID"})
		return
	}
	job, err := h.service.GetJob(c, uint(id))
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(404, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(200, job)
}

func (h *JobHandler) GetAllJobs(c *gin.Context) {
	jobs, err := h.service.GetAllJobs(c)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, jobs)
}

// CancelJob requests a cooperative stop; the runner finishes the current
// patient and halts.
func (h *JobHandler) CancelJob(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("job_id"), 10, 32)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid job ID"})
		return
	}
	if err := h.service.CancelJob(c, uint(id)); err != nil {
		if errors.Is(err, repositories.ErrJobNotCancellable) {
			c.JSON(409, gin.H{"error": err.Error()})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(202, gin.H{"message": "Cancellation requested"})
}
