package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/printforge/dispatch/internal/config"
	"github.com/printforge/dispatch/internal/core"
	"github.com/printforge/dispatch/internal/db"
)

// CreateJobRequest is the intake contract with the order layer: one order
// becomes one print job. Either the array file fields or the legacy
// single-file triple must be present, never both.
type CreateJobRequest struct {
	OrderID   string   `json:"orderId"`
	FileURLs  []string `json:"fileURLs"`
	FileNames []string `json:"originalFileNames"`
	FileTypes []string `json:"fileTypes"`

	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`

	PrintingOptions core.PrintingOptions `json:"printingOptions" binding:"required"`
	PrinterIndex    int                  `json:"printerIndex"`
	Priority        int                  `json:"priority"`
	CustomerInfo    *core.CustomerInfo   `json:"customerInfo"`
}

type ListJobsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"max=100"`
	Offset int    `form:"offset"`
}

type JobHandler struct {
	store *db.Store
	cfg   config.SchedulerConfig
}

func NewJobHandler(store *db.Store, cfg config.SchedulerConfig) *JobHandler {
	return &JobHandler{store: store, cfg: cfg}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobFromRequest(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Jobs.Create(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *JobHandler) jobFromRequest(req *CreateJobRequest) (*db.PrintJob, error) {
	hasArray := len(req.FileURLs) > 0
	hasLegacy := req.FileURL != ""

	switch {
	case hasArray && hasLegacy:
		return nil, errors.New("provide either fileURLs or fileUrl, not both")
	case !hasArray && !hasLegacy:
		return nil, core.ErrNoFiles
	}

	if hasArray {
		if len(req.FileNames) > 0 && len(req.FileNames) != len(req.FileURLs) {
			return nil, errors.New("originalFileNames length must match fileURLs")
		}
		if len(req.FileTypes) > 0 && len(req.FileTypes) != len(req.FileURLs) {
			return nil, errors.New("fileTypes length must match fileURLs")
		}
	}

	opts := req.PrintingOptions
	if opts.PageSize != core.PageSizeA4 && opts.PageSize != core.PageSizeA3 {
		return nil, errors.New("pageSize must be A4 or A3")
	}
	switch opts.Color {
	case core.ColorModeColor, core.ColorModeBW, core.ColorModeMixed:
	default:
		return nil, errors.New("color must be color, bw or mixed")
	}
	if opts.Sided != core.SidedSingle && opts.Sided != core.SidedDouble {
		return nil, errors.New("sided must be single or double")
	}
	if opts.Copies < 1 {
		return nil, errors.New("copies must be a positive integer")
	}
	if opts.PageCount < 1 {
		return nil, errors.New("pageCount must be a positive integer")
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}

	job := &db.PrintJob{
		OrderID:      orderID,
		PageSize:     opts.PageSize,
		ColorMode:    opts.Color,
		Sided:        opts.Sided,
		Copies:       opts.Copies,
		PageCount:    opts.PageCount,
		PageColors:   opts.PageColors,
		PrinterIndex: req.PrinterIndex,
		Priority:     req.Priority,
		MaxRetries:   h.cfg.MaxRetries,
	}

	// Legacy single-file intake is normalized to one-element arrays; the
	// table stores one shape only.
	if hasArray {
		job.FileURLs = req.FileURLs
		job.FileNames = req.FileNames
		job.FileTypes = req.FileTypes
	} else {
		job.FileURLs = []string{req.FileURL}
		if req.FileName != "" {
			job.FileNames = []string{req.FileName}
		}
		if req.FileType != "" {
			job.FileTypes = []string{req.FileType}
		}
	}

	if req.CustomerInfo != nil {
		job.CustomerName = req.CustomerInfo.Name
		job.CustomerEmail = req.CustomerInfo.Email
		job.CustomerPhone = req.CustomerInfo.Phone
	}

	return job, nil
}

func (h *JobHandler) GetJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.store.Jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var q ListJobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}

	jobs, err := h.store.Jobs.List(c.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	if jobs == nil {
		jobs = []*db.PrintJob{}
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if err := h.store.Jobs.Cancel(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *JobHandler) RetryJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if err := h.store.Jobs.ManualRetry(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}
