package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/printforge/dispatch/internal/core"
	"github.com/printforge/dispatch/internal/db"
)

type CreatePrinterRequest struct {
	Name             string          `json:"name" binding:"required"`
	PrinterID        string          `json:"printer_id"`
	Capabilities     db.Capabilities `json:"capabilities" binding:"required"`
	IsActive         *bool           `json:"is_active"`
	AutoPrintEnabled *bool           `json:"auto_print_enabled"`
}

type UpdatePrinterStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

var validPrinterStatuses = map[string]bool{
	db.PrinterStatusOnline:      true,
	db.PrinterStatusOffline:     true,
	db.PrinterStatusError:       true,
	db.PrinterStatusMaintenance: true,
	db.PrinterStatusBusy:        true,
}

type PrinterHandler struct {
	store  *db.Store
	client *core.Client
}

func NewPrinterHandler(store *db.Store, client *core.Client) *PrinterHandler {
	return &PrinterHandler{store: store, client: client}
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := &db.Printer{
		Name:             req.Name,
		PrinterID:        req.PrinterID,
		Capabilities:     req.Capabilities,
		IsActive:         true,
		AutoPrintEnabled: true,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.AutoPrintEnabled != nil {
		p.AutoPrintEnabled = *req.AutoPrintEnabled
	}

	if err := h.store.Printers.Create(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create printer"})
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	printers, err := h.store.Printers.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list printers"})
		return
	}
	if printers == nil {
		printers = []*db.Printer{}
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers})
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer id"})
		return
	}

	p, err := h.store.Printers.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get printer"})
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer id"})
		return
	}

	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := &db.Printer{
		ID:               id,
		Name:             req.Name,
		PrinterID:        req.PrinterID,
		Capabilities:     req.Capabilities,
		IsActive:         true,
		AutoPrintEnabled: true,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.AutoPrintEnabled != nil {
		p.AutoPrintEnabled = *req.AutoPrintEnabled
	}

	if err := h.store.Printers.Update(c.Request.Context(), p); err != nil {
		if errors.Is(err, db.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update printer"})
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) UpdatePrinterStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer id"})
		return
	}

	var req UpdatePrinterStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validPrinterStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	if err := h.store.Printers.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		if errors.Is(err, db.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update printer status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (h *PrinterHandler) DeletePrinter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer id"})
		return
	}

	if err := h.store.Printers.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrPrinterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete printer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// BackendHealth probes the backend endpoint a printer index resolves to.
// Diagnostics only; the scheduler never calls this before dispatching.
func (h *PrinterHandler) BackendHealth(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer index"})
		return
	}

	status, err := h.client.Health(c.Request.Context(), index)
	if err != nil {
		if errors.Is(err, core.ErrNoEndpoints) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "health probe failed"})
		return
	}

	c.JSON(http.StatusOK, status)
}
